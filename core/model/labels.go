package model

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// ClassLabels returns the distinct values of the first column of y in
// ascending order. PredictProba columns follow this order.
func ClassLabels(y mat.Matrix) []float64 {
	r, _ := y.Dims()
	seen := make(map[float64]struct{}, 2)
	var classes []float64
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	slices.Sort(classes)
	return classes
}

// LabelIndices maps each label of y onto its position in classes.
func LabelIndices(y mat.Matrix, classes []float64) ([]int, error) {
	r, _ := y.Dims()
	idx := make([]int, r)
	for i := 0; i < r; i++ {
		k, ok := slices.BinarySearch(classes, y.At(i, 0))
		if !ok {
			return nil, errors.NewValueError("LabelIndices", "label not present in classes")
		}
		idx[i] = k
	}
	return idx, nil
}

// CheckXY validates the shapes passed to Fit.
func CheckXY(op string, X, y mat.Matrix) (nSamples, nFeatures int, err error) {
	nSamples, nFeatures = X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != nSamples {
		return 0, 0, errors.NewDimensionError(op, nSamples, yRows, 0)
	}
	return nSamples, nFeatures, nil
}

// Columns copies X into column-major slices for repeated per-feature scans.
func Columns(X mat.Matrix) [][]float64 {
	r, c := X.Dims()
	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = make([]float64, r)
		mat.Col(cols[j], j, X)
	}
	return cols
}

// Rows copies X into row-major slices.
func Rows(X mat.Matrix) [][]float64 {
	r, _ := X.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}
	return rows
}

// ProbaLabels maps each row of probas onto the class with the highest
// probability. With two classes the positive label is chosen exactly when
// its probability is at least 0.5; otherwise ties go to the later class.
func ProbaLabels(probas mat.Matrix, classes []float64) *mat.Dense {
	r, _ := probas.Dims()
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, len(classes))
	for i := 0; i < r; i++ {
		mat.Row(row, i, probas)
		if len(classes) == 2 {
			k := 0
			if row[1] >= 0.5 {
				k = 1
			}
			out.Set(i, 0, classes[k])
			continue
		}
		out.Set(i, 0, classes[ArgMax(row)])
	}
	return out
}

// ArgMax returns the index of the largest value, the last one on ties.
func ArgMax(row []float64) int {
	best := 0
	for j := 1; j < len(row); j++ {
		if row[j] >= row[best] {
			best = j
		}
	}
	return best
}
