package report

import (
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// EDA figure file names.
const (
	ClassBalanceFile       = "class_balance.png"
	AgeDistributionFile    = "age_distribution.png"
	CorrelationHeatmapFile = "correlation_heatmap.png"
	CholesterolFile        = "Cholesterol_vs_target.png"
	ThalchByAgeGroupFile   = "thalch_by_agegroup.png"
)

var targetNames = []string{"0 = NO", "1 = YES"}

// ageGroups are right-closed bins (20,35], (35,50], (50,65], (65,80].
var ageGroups = []struct {
	name   string
	lo, hi float64
}{
	{"20-35", 20, 35}, {"36-50", 35, 50}, {"51-65", 50, 65}, {"66-80", 65, 80},
}

// EDA renders exploratory figures of a cleaned table. It satisfies
// heart.EDARenderer.
type EDA struct {
	logger log.Logger
}

// NewEDA returns a renderer; a nil logger uses the global one.
func NewEDA(logger log.Logger) *EDA {
	if logger == nil {
		logger = log.GetLoggerWithName("report.EDA")
	}
	return &EDA{logger: logger}
}

var _ heart.EDARenderer = (*EDA)(nil)

// RenderEDA writes the class balance, age distribution, numeric correlation,
// cholesterol and max-heart-rate figures into dir.
func (e *EDA) RenderEDA(cleaned *dataset.Frame, dir string) error {
	target, err := cleaned.Float(heart.ColTarget)
	if err != nil {
		return errors.NewSchemaError(cleaned.Name, "target column not found")
	}
	byTarget := func(col string) ([][]float64, error) {
		values, err := cleaned.Float(col)
		if err != nil {
			return nil, err
		}
		groups := make([][]float64, 2)
		for i, v := range values {
			if math.IsNaN(v) {
				continue
			}
			k := int(target[i])
			if k == 0 || k == 1 {
				groups[k] = append(groups[k], v)
			}
		}
		return groups, nil
	}

	counts := make([]float64, 2)
	for _, t := range target {
		if t == 0 || t == 1 {
			counts[int(t)]++
		}
	}
	if err := bars(filepath.Join(dir, ClassBalanceFile),
		"Class balance: Heart Disease (0 = NO, 1 = YES)", "Count", targetNames, counts); err != nil {
		return err
	}

	ages, err := byTarget(heart.ColAge)
	if err != nil {
		return err
	}
	if err := overlaidHistograms(filepath.Join(dir, AgeDistributionFile),
		"Age distribution by Heart Disease", "Age", targetNames, ages, 20); err != nil {
		return err
	}

	if err := e.correlation(cleaned, filepath.Join(dir, CorrelationHeatmapFile)); err != nil {
		return err
	}

	chol, err := byTarget(heart.ColChol)
	if err != nil {
		return err
	}
	if err := boxPlots(filepath.Join(dir, CholesterolFile),
		"Cholesterol level v/s Heart Disease", "Cholesterol level (mg/dl)", targetNames, chol); err != nil {
		return err
	}

	if err := e.thalchByAgeGroup(cleaned, target, filepath.Join(dir, ThalchByAgeGroupFile)); err != nil {
		return err
	}

	e.logger.Info("EDA figures written",
		log.PhaseKey, log.PhaseCleaning,
		log.PathKey, dir,
		log.SamplesKey, cleaned.NRows(),
	)
	return nil
}

// correlation draws Pearson correlations between the numeric columns and the
// target. Constant columns correlate as 0.
func (e *EDA) correlation(cleaned *dataset.Frame, path string) error {
	var names []string
	var cols [][]float64
	for _, c := range append(append([]string(nil), heart.NumericColumns...), heart.ColTarget) {
		if !cleaned.Has(c) {
			continue
		}
		values, err := cleaned.Float(c)
		if err != nil {
			return err
		}
		names = append(names, c)
		cols = append(cols, values)
	}
	n := len(names)
	corr := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 1.0
			if i != j {
				v = stat.Correlation(cols[i], cols[j], nil)
			}
			if math.IsNaN(v) {
				v = 0
			}
			corr.Set(i, j, v)
			corr.Set(j, i, v)
		}
	}
	return annotatedHeatMap(path, "Correlation heatmap (numeric features)", "", "", corr, names, "%.2f")
}

// thalchByAgeGroup draws one box per (age group, target) pair.
func (e *EDA) thalchByAgeGroup(cleaned *dataset.Frame, target []float64, path string) error {
	age, err := cleaned.Float(heart.ColAge)
	if err != nil {
		return err
	}
	thalch, err := cleaned.Float(heart.ColThalch)
	if err != nil {
		return err
	}
	var names []string
	var groups [][]float64
	for _, g := range ageGroups {
		for t := 0; t < 2; t++ {
			var values []float64
			for i := range age {
				if age[i] > g.lo && age[i] <= g.hi && int(target[i]) == t {
					values = append(values, thalch[i])
				}
			}
			names = append(names, g.name+" / "+targetNames[t][:1])
			groups = append(groups, values)
		}
	}
	return boxPlots(path, "Max heart rate (thalch) by Age Group & Target", "Max heart rate (thalch)", names, groups)
}
