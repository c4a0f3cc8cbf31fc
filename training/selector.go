package training

import (
	"context"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/heartrisk/artifact"
	"github.com/YuminosukeSato/heartrisk/core/parallel"
	"github.com/YuminosukeSato/heartrisk/metrics"
	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/report"
)

// Candidate is one family's held-out scores.
type Candidate struct {
	Family pipeline.Family
	Scores metrics.Scores
}

// SelectionResult is the outcome of Selector.Select.
type SelectionResult struct {
	Candidates []Candidate
	Best       pipeline.Family
	Artifact   *artifact.Artifact
}

// Selector fits every family at its default hyperparameters and keeps the
// one with the highest test F1.
type Selector struct {
	Families    []pipeline.Family
	NewPipeline PipelineFactory
	// NJobs bounds concurrent candidate fits; 0 means all CPUs.
	NJobs int
	// ReportDir receives model_selection.csv when set.
	ReportDir string
	// ArtifactPath receives the winning artifact when set.
	ArtifactPath string

	logger log.Logger
}

// NewSelector returns a selector over pipeline.Families.
func NewSelector(logger log.Logger) *Selector {
	if logger == nil {
		logger = log.GetLoggerWithName("training.Selector")
	}
	return &Selector{
		Families:    pipeline.Families,
		NewPipeline: pipeline.New,
		logger:      logger,
	}
}

func (s *Selector) build(f pipeline.Family) (*pipeline.Pipeline, error) {
	p, err := s.NewPipeline(f)
	if err != nil {
		return nil, err
	}
	p.SetLogger(s.logger)
	return p, nil
}

// Select scores each family on d.XTest, picks the maximum F1 (the first
// family wins ties), refits a fresh pipeline of that family on the train
// table and wraps it in an artifact.
func (s *Selector) Select(ctx context.Context, d *Data) (*SelectionResult, error) {
	if len(s.Families) == 0 {
		return nil, errors.NewValueError("Selector.Select", "no candidate families")
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	start := time.Now()

	candidates := make([]Candidate, len(s.Families))
	err := parallel.ForEach(len(s.Families), s.NJobs, func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := s.Families[i]
		p, err := s.build(f)
		if err != nil {
			return err
		}
		if err := p.Fit(d.XTrain, d.YTrain); err != nil {
			return errors.Wrapf(err, "fit %s", f.DisplayName())
		}
		out, err := predict(p, d.XTest)
		if err != nil {
			return errors.Wrapf(err, "evaluate %s", f.DisplayName())
		}
		scores, err := metrics.Evaluate(d.YTest, out.Labels, out.Proba)
		if err != nil {
			return errors.Wrapf(err, "score %s", f.DisplayName())
		}
		candidates[i] = Candidate{Family: f, Scores: scores}
		return nil
	})
	if err != nil {
		return nil, err
	}

	best := 0
	for i, c := range candidates {
		s.logger.Info("candidate evaluated",
			log.PhaseKey, log.PhaseTraining,
			log.ModelNameKey, c.Family.DisplayName(),
			log.AccuracyKey, c.Scores.Accuracy,
			log.PrecisionKey, c.Scores.Precision,
			log.RecallKey, c.Scores.Recall,
			log.F1Key, c.Scores.F1,
			log.ROCAUCKey, metrics.FormatAUC(c.Scores.ROCAUC),
		)
		if c.Scores.F1 > candidates[best].Scores.F1 {
			best = i
		}
	}
	winner := candidates[best]

	if s.ReportDir != "" {
		rows := make([]report.SelectionRow, len(candidates))
		for i, c := range candidates {
			rows[i] = report.SelectionRow{Model: c.Family.DisplayName(), Scores: c.Scores}
		}
		if err := report.WriteSelection(filepath.Join(s.ReportDir, report.ModelSelectionFile), rows); err != nil {
			return nil, err
		}
	}

	// refit from scratch
	p, err := s.build(winner.Family)
	if err != nil {
		return nil, err
	}
	if err := p.Fit(d.XTrain, d.YTrain); err != nil {
		return nil, errors.Wrapf(err, "refit %s", winner.Family.DisplayName())
	}
	a, err := artifact.New(p, scoreMap(winner.Scores))
	if err != nil {
		return nil, err
	}
	if s.ArtifactPath != "" {
		if err := a.Save(s.ArtifactPath); err != nil {
			return nil, err
		}
	}

	s.logger.Info("best pipeline selected",
		log.PhaseKey, log.PhaseTraining,
		log.ModelNameKey, winner.Family.DisplayName(),
		log.ModelIDKey, a.ID,
		log.F1Key, winner.Scores.F1,
		log.PathKey, s.ArtifactPath,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &SelectionResult{Candidates: candidates, Best: winner.Family, Artifact: a}, nil
}

func scoreMap(s metrics.Scores) map[string]float64 {
	m := map[string]float64{
		"accuracy":  s.Accuracy,
		"precision": s.Precision,
		"recall":    s.Recall,
		"f1":        s.F1,
	}
	if s.ROCAUC != nil {
		m["roc_auc"] = *s.ROCAUC
	}
	return m
}
