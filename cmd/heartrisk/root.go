package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartrisk/config"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

const version = "0.1.0"

// app carries the state shared by every subcommand.
type app struct {
	cfgFile string
	cfg     *config.Config
}

func (a *app) logger(name string) log.Logger {
	return log.GetLoggerWithName(name)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:     "heartrisk",
		Short:   "Heart disease risk training pipeline and prediction API",
		Version: version,
		Long: `heartrisk cleans the UCI heart disease table, splits it, selects and tunes
a classifier, and serves predictions from the saved model over HTTP.`,
		Example: `  # full offline pipeline
  $ heartrisk clean && heartrisk split && heartrisk tune

  # serve the tuned model
  $ heartrisk serve --config configs/config.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			log.SetGlobalProvider(cfg.Log.Provider(os.Stderr))
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "path to config file (default: ./configs/config.yaml or ./config.yaml)")

	root.AddCommand(
		newCleanCmd(a),
		newSplitCmd(a),
		newTrainCmd(a),
		newTuneCmd(a),
		newPredictCmd(a),
		newServeCmd(a),
	)
	return root
}
