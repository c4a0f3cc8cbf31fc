// Package model_selection provides cross-validation splitters, parameter
// grids and an exhaustive grid search scored by cross-validation.
package model_selection

import (
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Splitter yields train/test index pairs for cross-validation.
type Splitter interface {
	Split(y mat.Vector) ([]CVFold, error)
	GetNSplits() int
}

// CVFold represents a single fold in cross-validation
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// StratifiedKFold implements stratified k-fold cross-validation: every fold
// keeps the class proportions of y.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int { return skf.NSplits }

// Split generates stratified train/test indices for each fold. Classes are
// visited in ascending label order and each class's leftover samples start
// at the fold after the previous class's leftovers, so fold sizes differ by
// at most one.
func (skf *StratifiedKFold) Split(y mat.Vector) ([]CVFold, error) {
	nSamples := y.Len()
	classIndices := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.AtVec(i)
		classIndices[label] = append(classIndices[label], i)
	}
	labels := make([]float64, 0, len(classIndices))
	for label, idx := range classIndices {
		if len(idx) < skf.NSplits {
			return nil, errors.NewValueError("StratifiedKFold.Split",
				"every class needs at least n_splits members")
		}
		labels = append(labels, label)
	}
	slices.Sort(labels)

	var r *rand.Rand
	if skf.Shuffle {
		r = rand.New(rand.NewPCG(uint64(skf.RandomSeed), uint64(skf.RandomSeed)))
	}

	assignment := make([]int, nSamples)
	shift := 0
	for _, label := range labels {
		indices := classIndices[label]
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		nClass := len(indices)
		foldSize, remainder := nClass/skf.NSplits, nClass%skf.NSplits
		pos := 0
		for i := 0; i < skf.NSplits; i++ {
			f := (shift + i) % skf.NSplits
			size := foldSize
			if i < remainder {
				size++
			}
			for _, idx := range indices[pos : pos+size] {
				assignment[idx] = f
			}
			pos += size
		}
		shift = (shift + remainder) % skf.NSplits
	}
	return foldsFromAssignment(assignment, skf.NSplits), nil
}

// foldsFromAssignment builds folds with indices in ascending order.
func foldsFromAssignment(assignment []int, k int) []CVFold {
	folds := make([]CVFold, k)
	for idx, f := range assignment {
		for g := range folds {
			if g == f {
				folds[g].TestIndices = append(folds[g].TestIndices, idx)
			} else {
				folds[g].TrainIndices = append(folds[g].TrainIndices, idx)
			}
		}
	}
	return folds
}
