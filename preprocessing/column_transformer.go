package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// ColumnTransformer one-hot encodes the categorical columns and
// standardizes the numeric columns of a table. The output places the
// categorical block first and the numeric block second.
//
// A ColumnTransformer is fit exactly once; Transform only ever applies the
// statistics learned from the training table.
type ColumnTransformer struct {
	State *model.StateManager

	// Categorical and Numeric are the configured columns. Columns absent
	// from the training table are removed at fit time.
	Categorical []string
	Numeric     []string

	Encoder *OneHotEncoder
	Scaler  *StandardScaler

	logger log.Logger
}

// NewColumnTransformer configures a transformer for the given columns.
func NewColumnTransformer(categorical, numeric []string) *ColumnTransformer {
	return &ColumnTransformer{
		State:       model.NewStateManager(),
		Categorical: append([]string(nil), categorical...),
		Numeric:     append([]string(nil), numeric...),
		Encoder:     NewOneHotEncoder(),
		Scaler:      NewStandardScalerDefault(),
	}
}

// SetLogger overrides the component logger.
func (ct *ColumnTransformer) SetLogger(l log.Logger) { ct.logger = l }

func (ct *ColumnTransformer) getLogger() log.Logger {
	if ct.logger == nil {
		ct.logger = log.GetLoggerWithName("preprocessing.ColumnTransformer")
	}
	return ct.logger
}

// IsFitted reports whether Fit has completed.
func (ct *ColumnTransformer) IsFitted() bool {
	return ct.State != nil && ct.State.IsFitted()
}

// Fit learns encoder categories and scaler statistics from f.
func (ct *ColumnTransformer) Fit(f *dataset.Frame) error {
	if ct.IsFitted() {
		return errors.NewValueError("ColumnTransformer.Fit", "transformer is already fitted; build a new one to refit")
	}
	if f.NRows() == 0 {
		return errors.NewModelError("ColumnTransformer.Fit", "empty data", errors.ErrEmptyData)
	}
	if ct.State == nil {
		ct.State = model.NewStateManager()
	}

	ct.Categorical = ct.present(f, ct.Categorical)
	ct.Numeric = ct.present(f, ct.Numeric)
	if len(ct.Categorical)+len(ct.Numeric) == 0 {
		return errors.NewSchemaError(f.Name, "none of the configured feature columns are present")
	}

	if len(ct.Categorical) > 0 {
		cells, err := categoricalCells(f, ct.Categorical)
		if err != nil {
			return err
		}
		if err := ct.Encoder.Fit(cells); err != nil {
			return err
		}
	}
	if len(ct.Numeric) > 0 {
		X, err := numericMatrix(f, ct.Numeric)
		if err != nil {
			return err
		}
		if err := ct.Scaler.Fit(X); err != nil {
			return err
		}
	}

	ct.State.SetDimensions(len(ct.Categorical)+len(ct.Numeric), f.NRows())
	ct.State.SetFitted()
	ct.getLogger().Debug("column transformer fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, f.NRows(),
		log.FeaturesKey, ct.NOutputs(),
	)
	return nil
}

func (ct *ColumnTransformer) present(f *dataset.Frame, cols []string) []string {
	kept := make([]string, 0, len(cols))
	for _, c := range cols {
		if f.Has(c) {
			kept = append(kept, c)
			continue
		}
		ct.getLogger().Warn("configured column absent from training data, dropping it", log.ColumnKey, c)
	}
	return kept
}

// Transform applies the learned encoding and scaling to f.
func (ct *ColumnTransformer) Transform(f *dataset.Frame) (*mat.Dense, error) {
	if !ct.IsFitted() {
		return nil, errors.NewNotFittedError("ColumnTransformer", "Transform")
	}
	if f.NRows() == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Transform", "empty data", errors.ErrEmptyData)
	}

	nCat := 0
	if len(ct.Categorical) > 0 {
		nCat = ct.Encoder.NOutputs()
	}
	out := mat.NewDense(f.NRows(), ct.NOutputs(), nil)

	if len(ct.Categorical) > 0 {
		cells, err := categoricalCells(f, ct.Categorical)
		if err != nil {
			return nil, err
		}
		enc, err := ct.Encoder.Transform(cells)
		if err != nil {
			return nil, err
		}
		out.Slice(0, f.NRows(), 0, nCat).(*mat.Dense).Copy(enc)
	}
	if len(ct.Numeric) > 0 {
		X, err := numericMatrix(f, ct.Numeric)
		if err != nil {
			return nil, err
		}
		scaled, err := ct.Scaler.Transform(X)
		if err != nil {
			return nil, err
		}
		out.Slice(0, f.NRows(), nCat, nCat+len(ct.Numeric)).(*mat.Dense).Copy(scaled)
	}
	return out, nil
}

// FitTransform fits on f and returns its transformation.
func (ct *ColumnTransformer) FitTransform(f *dataset.Frame) (*mat.Dense, error) {
	if err := ct.Fit(f); err != nil {
		return nil, err
	}
	return ct.Transform(f)
}

// NOutputs returns the width of the transformed matrix.
func (ct *ColumnTransformer) NOutputs() int {
	n := len(ct.Numeric)
	if len(ct.Categorical) > 0 && ct.Encoder != nil {
		n += ct.Encoder.NOutputs()
	}
	return n
}

// FeatureNames returns the names of the output columns in order.
func (ct *ColumnTransformer) FeatureNames() []string {
	var names []string
	if len(ct.Categorical) > 0 && ct.Encoder != nil {
		names = append(names, ct.Encoder.FeatureNames(ct.Categorical)...)
	}
	return append(names, ct.Numeric...)
}

func categoricalCells(f *dataset.Frame, cols []string) ([][]string, error) {
	sel, err := f.Select(cols...)
	if err != nil {
		return nil, err
	}
	cells := make([][]string, sel.NRows())
	for i := range cells {
		cells[i] = sel.Row(i)
	}
	return cells, nil
}

func numericMatrix(f *dataset.Frame, cols []string) (*mat.Dense, error) {
	X := mat.NewDense(f.NRows(), len(cols), nil)
	for j, c := range cols {
		values, err := f.Float(c)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if math.IsNaN(v) {
				return nil, errors.NewValueError("ColumnTransformer", fmt.Sprintf("column %q row %d is missing; clean the table first", c, i))
			}
			X.Set(i, j, v)
		}
	}
	return X, nil
}
