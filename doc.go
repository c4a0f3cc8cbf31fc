// Package heartrisk trains and serves a binary heart disease classifier on the
// UCI heart disease table.
//
// The offline pipeline runs as a sequence of heartrisk subcommands, each
// reading the previous stage's files:
//
//	heartrisk clean   # impute, canonicalize, binarize the target, EDA figures
//	heartrisk split   # stratified 80/20 train/test split
//	heartrisk train   # compare five families, save the best pipeline
//	heartrisk tune    # grid-search three families, save the best tuned model
//	heartrisk predict # score the reference patient with the saved model
//	heartrisk serve   # HTTP prediction API
//
// # Packages
//
//   - heart: record schema, cleaning, categorical vocabulary and the split
//   - dataset: string-celled tables with CSV I/O
//   - preprocessing: scaler, one-hot encoder and column transformer
//   - sklearn/...: the candidate classifiers, cross-validation and grid search
//   - pipeline: preprocessing plus classifier as one estimator
//   - training: model selection and hyperparameter tuning
//   - metrics, report: scores, tables and figures
//   - artifact: gob persistence of a fitted pipeline and its metadata
//   - inference, server: the prediction service and its gin HTTP surface
//   - config, cmd/heartrisk: viper configuration and the cobra CLI
//
// # Quick Start
//
//	X, y := heart.SyntheticCohort(200, 1)
//	p, err := pipeline.New(pipeline.RandomForest)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := p.Fit(X, y); err != nil {
//	    log.Fatal(err)
//	}
//	a, _ := artifact.New(p, nil)
//	svc := inference.NewServiceFromArtifact(a, "", nil)
//	res, err := svc.Predict(ctx, heart.ExampleRecord())
//
// # Errors
//
// Every package returns errors from pkg/errors, built on
// github.com/cockroachdb/errors. Callers branch with errors.As on the typed
// errors (ValidationError, FileNotFoundError, ModelUnavailableError,
// PredictionError, ConfigurationError); the HTTP layer maps them to status
// codes.
//
// # Logging
//
// Structured logging goes through pkg/log, a zerolog-backed Logger. The CLI
// installs a global provider from the log section of the configuration.
package heartrisk
