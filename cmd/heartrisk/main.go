// Command heartrisk runs the heart-disease training pipeline and serves the
// prediction API.
//
//	heartrisk clean    raw CSV → cleaned CSV (+ EDA figures)
//	heartrisk split    cleaned CSV → X_train/X_test/y_train/y_test
//	heartrisk train    compare the five families, save the best pipeline
//	heartrisk tune     grid-search three families, save the best model
//	heartrisk predict  score the reference patient with the saved model
//	heartrisk serve    start the HTTP API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
