package heart

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// ImputedNumericColumns are median-imputed by the Cleaner. Age is included
// so that a cleaned table never contains an empty numeric cell.
var ImputedNumericColumns = []string{ColTrestbps, ColChol, ColThalch, ColOldpeak, ColCA, ColAge}

// ImputedCategoricalColumns are filled with the Missing sentinel.
var ImputedCategoricalColumns = []string{ColSlope, ColThal, ColRestecg, ColCP, ColSex, ColExang, ColFbs}

// EDARenderer draws exploratory figures for a cleaned table.
type EDARenderer interface {
	RenderEDA(cleaned *dataset.Frame, dir string) error
}

// CleanSummary describes what a Clean call changed.
type CleanSummary struct {
	Rows          int
	Imputed       map[string]int
	Medians       map[string]float64
	MissingTarget int
	Positives     int
	Negatives     int
}

// Cleaner turns the raw UCI table into the cleaned table.
type Cleaner struct {
	logger    log.Logger
	eda       EDARenderer
	reportDir string
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithCleanerLogger sets the logger.
func WithCleanerLogger(l log.Logger) CleanerOption {
	return func(c *Cleaner) { c.logger = l }
}

// WithEDA renders exploratory figures into dir after each file clean.
func WithEDA(r EDARenderer, dir string) CleanerOption {
	return func(c *Cleaner) {
		c.eda = r
		c.reportDir = dir
	}
}

// NewCleaner creates a Cleaner.
func NewCleaner(opts ...CleanerOption) *Cleaner {
	c := &Cleaner{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("heart.Cleaner")
	}
	return c
}

// Clean drops identifier columns, imputes gaps, canonicalizes categorical
// spellings and replaces the severity column with a binary target. The input
// frame is not modified.
func (c *Cleaner) Clean(raw *dataset.Frame) (*dataset.Frame, CleanSummary, error) {
	summary := CleanSummary{
		Rows:    raw.NRows(),
		Imputed: make(map[string]int),
		Medians: make(map[string]float64),
	}

	severity, err := raw.Column(ColSeverity)
	if err != nil {
		return nil, summary, err
	}

	out := raw.Drop(ColID, ColDataset, ColSeverity)

	for _, col := range ImputedNumericColumns {
		if !out.Has(col) {
			continue
		}
		values, err := out.Float(col)
		if err != nil {
			return nil, summary, err
		}
		med, ok := median(values)
		n := 0
		for i, v := range values {
			if !math.IsNaN(v) {
				continue
			}
			if !ok {
				return nil, summary, errors.NewSchemaError(raw.Name, fmt.Sprintf("column %q has no values to impute from", col))
			}
			out.Set(i, col, dataset.FormatFloat(med))
			n++
		}
		if ok {
			summary.Medians[col] = med
		}
		summary.Imputed[col] = n
	}

	for _, col := range ImputedCategoricalColumns {
		if !out.Has(col) {
			continue
		}
		n := 0
		for i := 0; i < out.NRows(); i++ {
			cell := out.Get(i, col)
			if dataset.IsMissing(cell) {
				out.Set(i, col, Missing)
				n++
				continue
			}
			out.Set(i, col, Canonicalize(col, cell))
		}
		summary.Imputed[col] = n
	}

	target := make([]string, len(severity))
	for i, s := range severity {
		if dataset.IsMissing(s) {
			summary.MissingTarget++
			target[i] = "0"
			summary.Negatives++
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, summary, errors.NewSchemaError(raw.Name, fmt.Sprintf("row %d: severity %q is not numeric", i, s))
		}
		if v > 0 {
			target[i] = "1"
			summary.Positives++
		} else {
			target[i] = "0"
			summary.Negatives++
		}
	}

	out, err = out.WithColumn(ColTarget, target)
	if err != nil {
		return nil, summary, err
	}
	return out, summary, nil
}

// CleanFile reads the raw table at in, writes the cleaned table to out and,
// when configured, renders the exploratory figures.
func (c *Cleaner) CleanFile(in, out string) (CleanSummary, error) {
	raw, err := dataset.ReadCSVFile(in, "Download the UCI heart disease table into the raw data directory.")
	if err != nil {
		return CleanSummary{}, err
	}
	cleaned, summary, err := c.Clean(raw)
	if err != nil {
		return summary, err
	}
	if err := cleaned.WriteCSVFile(out); err != nil {
		return summary, err
	}

	c.logger.Info("cleaned dataset saved",
		log.PhaseKey, log.PhaseCleaning,
		log.PathKey, out,
		log.SamplesKey, summary.Rows,
		"positives", summary.Positives,
		"negatives", summary.Negatives,
		"missing_target", summary.MissingTarget,
	)
	cols := make([]string, 0, len(summary.Imputed))
	for col := range summary.Imputed {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if n := summary.Imputed[col]; n > 0 {
			c.logger.Debug("imputed missing values", log.ColumnKey, col, log.MissingKey, n)
		}
	}
	if summary.MissingTarget > 0 {
		c.logger.Warn("rows with missing severity labelled negative", log.MissingKey, summary.MissingTarget)
	}

	if c.eda != nil && c.reportDir != "" {
		if err := c.eda.RenderEDA(cleaned, c.reportDir); err != nil {
			return summary, errors.Wrap(err, "render EDA figures")
		}
	}
	return summary, nil
}

// median returns the median of the non-NaN values, averaging the two middle
// values for even counts.
func median(values []float64) (float64, bool) {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return 0, false
	}
	sort.Float64s(present)
	mid := len(present) / 2
	if len(present)%2 == 1 {
		return present[mid], true
	}
	return (present[mid-1] + present[mid]) / 2, true
}
