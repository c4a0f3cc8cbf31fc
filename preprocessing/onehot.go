package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// OneHotEncoder maps each categorical column to one indicator column per
// value seen during Fit. Values not seen during Fit encode as all zeros.
type OneHotEncoder struct {
	State *model.StateManager

	// Categories_ holds the sorted distinct values per input column.
	Categories_ [][]string
}

// NewOneHotEncoder returns an unfitted encoder.
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{State: model.NewStateManager()}
}

// IsFitted reports whether Fit has completed.
func (e *OneHotEncoder) IsFitted() bool {
	return e.State != nil && e.State.IsFitted()
}

// Fit learns the categories of each column of X (n_samples x n_columns).
func (e *OneHotEncoder) Fit(X [][]string) error {
	if len(X) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	if e.State == nil {
		e.State = model.NewStateManager()
	}
	nCols := len(X[0])
	sets := make([]map[string]struct{}, nCols)
	for j := range sets {
		sets[j] = make(map[string]struct{})
	}
	for _, row := range X {
		if len(row) != nCols {
			return errors.NewDimensionError("OneHotEncoder.Fit", nCols, len(row), 1)
		}
		for j, v := range row {
			sets[j][v] = struct{}{}
		}
	}

	e.Categories_ = make([][]string, nCols)
	for j, set := range sets {
		cats := make([]string, 0, len(set))
		for v := range set {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories_[j] = cats
	}

	e.State.SetDimensions(nCols, len(X))
	e.State.SetFitted()
	return nil
}

// NOutputs returns the number of indicator columns Transform produces.
func (e *OneHotEncoder) NOutputs() int {
	n := 0
	for _, cats := range e.Categories_ {
		n += len(cats)
	}
	return n
}

// Transform encodes X using the learned categories.
func (e *OneHotEncoder) Transform(X [][]string) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	if len(X) == 0 {
		return nil, errors.NewModelError("OneHotEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	lookup := make([]map[string]int, len(e.Categories_))
	offset := 0
	for j, cats := range e.Categories_ {
		lookup[j] = make(map[string]int, len(cats))
		for k, v := range cats {
			lookup[j][v] = offset + k
		}
		offset += len(cats)
	}

	out := mat.NewDense(len(X), offset, nil)
	for i, row := range X {
		if err := e.State.RequireFeatures("OneHotEncoder.Transform", len(row)); err != nil {
			return nil, err
		}
		for j, v := range row {
			if col, ok := lookup[j][v]; ok {
				out.Set(i, col, 1)
			}
		}
	}
	return out, nil
}

// FeatureNames returns "<column>_<category>" for every output column.
func (e *OneHotEncoder) FeatureNames(columns []string) []string {
	var names []string
	for j, cats := range e.Categories_ {
		for _, v := range cats {
			names = append(names, columns[j]+"_"+v)
		}
	}
	return names
}
