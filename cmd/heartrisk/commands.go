package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/inference"
	"github.com/YuminosukeSato/heartrisk/report"
	"github.com/YuminosukeSato/heartrisk/server"
	"github.com/YuminosukeSato/heartrisk/training"
)

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "clean the raw table and render EDA figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger("clean")
			opts := []heart.CleanerOption{heart.WithCleanerLogger(logger)}
			if a.cfg.Training.EDA && a.cfg.Paths.ReportDir != "" {
				opts = append(opts, heart.WithEDA(report.NewEDA(logger), a.cfg.Paths.ReportDir))
			}
			sum, err := heart.NewCleaner(opts...).CleanFile(a.cfg.Paths.RawData, a.cfg.Paths.ProcessedData)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleaned %d rows (%d positive, %d negative) → %s\n",
				sum.Rows, sum.Positives, sum.Negatives, a.cfg.Paths.ProcessedData)
			return nil
		},
	}
}

func newSplitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "split",
		Short: "stratified train/test split of the cleaned table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := heart.NewSplitter(a.logger("split"))
			s.TestSize = a.cfg.Training.TestSize
			s.Seed = uint64(a.cfg.Training.Seed)
			sp, err := s.SplitFile(a.cfg.Paths.ProcessedData, a.cfg.Paths.SplitDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "train %d rows, test %d rows → %s\n",
				sp.XTrain.NRows(), sp.XTest.NRows(), a.cfg.Paths.SplitDir)
			return nil
		},
	}
}

func newTrainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "compare the candidate families and save the best pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := training.LoadData(a.cfg.Paths.SplitDir)
			if err != nil {
				return err
			}
			s := training.NewSelector(a.logger("train"))
			s.NJobs = a.cfg.Training.NJobs
			s.ReportDir = a.cfg.Paths.ReportDir
			s.ArtifactPath = a.cfg.Paths.SelectionModel
			res, err := s.Select(cmd.Context(), d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := report.SelectionTable(selectionRows(res)).WriteCSV(out); err != nil {
				return err
			}
			fmt.Fprintf(out, "best pipeline (%s) saved to %s\n", res.Best.DisplayName(), s.ArtifactPath)
			return nil
		},
	}
}

func selectionRows(res *training.SelectionResult) []report.SelectionRow {
	rows := make([]report.SelectionRow, len(res.Candidates))
	for i, c := range res.Candidates {
		rows[i] = report.SelectionRow{Model: c.Family.DisplayName(), Scores: c.Scores}
	}
	return rows
}

func newTuneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tune",
		Short: "grid-search each family and save the best tuned model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := training.LoadData(a.cfg.Paths.SplitDir)
			if err != nil {
				return err
			}
			t := training.NewTuner(a.logger("tune"))
			t.Folds = a.cfg.Training.Folds
			t.Seed = a.cfg.Training.Seed
			t.NJobs = a.cfg.Training.NJobs
			t.ReportDir = a.cfg.Paths.ReportDir
			t.ArtifactPath = a.cfg.Paths.TunedModel
			res, err := t.Tune(cmd.Context(), d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range res.Results {
				fmt.Fprintf(out, "%-20s accuracy %.4f  ROC-AUC %.4f\n", r.Family.DisplayName(), r.Accuracy, r.ROCAUC)
			}
			fmt.Fprintf(out, "best model: %s, saved to %s\n", res.Best.DisplayName(), t.ArtifactPath)
			return nil
		},
	}
}

func newPredictCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "score the reference patient with the saved model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := inference.NewService(a.cfg.Paths.ServeModel, a.logger("predict"))
			if !svc.Ready() {
				return svc.LoadError()
			}
			res, err := svc.Predict(cmd.Context(), heart.ExampleRecord())
			if err != nil {
				return err
			}
			answer := "NO"
			if res.Prediction == 1 {
				answer = "YES"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Heart Disease: %s\n", answer)
			fmt.Fprintf(out, "Probability: %.2f%%\n", res.Probability*100)
			fmt.Fprintf(out, "Risk level: %s\n", res.RiskLevel)
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the prediction API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger("server")
			svc := inference.NewService(a.cfg.Paths.ServeModel, logger)
			srv, err := server.New(a.cfg.Server, svc, logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}
