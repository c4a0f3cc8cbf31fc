package heart

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// File names of the persisted split tables.
const (
	XTrainFile = "X_train.csv"
	XTestFile  = "X_test.csv"
	YTrainFile = "y_train.csv"
	YTestFile  = "y_test.csv"
)

// Split holds the four train/test tables.
type Split struct {
	XTrain, XTest *dataset.Frame
	YTrain, YTest *dataset.Frame
}

// Splitter performs a stratified train/test split on the target column.
type Splitter struct {
	TestSize float64
	Seed     uint64

	logger log.Logger
}

// NewSplitter returns a Splitter with a 0.2 test fraction and seed 42.
func NewSplitter(logger log.Logger) *Splitter {
	if logger == nil {
		logger = log.GetLoggerWithName("heart.Splitter")
	}
	return &Splitter{TestSize: 0.2, Seed: 42, logger: logger}
}

// Split partitions f so that each class contributes to the test set in
// proportion to its frequency. Rows inside each class are shuffled with a
// PCG source seeded from s.Seed, so the partition is reproducible.
func (s *Splitter) Split(f *dataset.Frame) (*Split, error) {
	labels, err := f.Column(ColTarget)
	if err != nil {
		return nil, errors.NewSchemaError(f.Name, "target column not found; run the clean command first")
	}
	n := len(labels)
	if n < 2 {
		return nil, errors.NewValueError("Splitter.Split", "need at least two rows to split")
	}
	if s.TestSize <= 0 || s.TestSize >= 1 {
		return nil, errors.NewValueError("Splitter.Split", "test size must be in (0, 1)")
	}

	groups := make(map[string][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	classes := make([]string, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	nTest := int(math.Ceil(s.TestSize * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	alloc := allocate(nTest, classes, groups, n)

	rng := rand.New(rand.NewPCG(s.Seed, s.Seed))
	var trainIdx, testIdx []int
	for _, c := range classes {
		idx := append([]int(nil), groups[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		testIdx = append(testIdx, idx[:alloc[c]]...)
		trainIdx = append(trainIdx, idx[alloc[c]:]...)
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	features := f.Drop(ColTarget)
	target, err := f.Select(ColTarget)
	if err != nil {
		return nil, err
	}
	return &Split{
		XTrain: rename(features.Take(trainIdx), XTrainFile),
		XTest:  rename(features.Take(testIdx), XTestFile),
		YTrain: rename(target.Take(trainIdx), YTrainFile),
		YTest:  rename(target.Take(testIdx), YTestFile),
	}, nil
}

func rename(f *dataset.Frame, name string) *dataset.Frame {
	f.Name = name
	return f
}

// allocate distributes nTest test rows across classes by the largest
// remainder method. Ties in the remainder go to the earlier class.
func allocate(nTest int, classes []string, groups map[string][]int, n int) map[string]int {
	alloc := make(map[string]int, len(classes))
	type rem struct {
		class string
		frac  float64
	}
	rems := make([]rem, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(len(groups[c])) / float64(n)
		k := int(math.Floor(exact))
		alloc[c] = k
		assigned += k
		rems = append(rems, rem{c, exact - float64(k)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < nTest && i < len(rems); i++ {
		c := rems[i].class
		if alloc[c] < len(groups[c]) {
			alloc[c]++
			assigned++
		}
	}
	return alloc
}

// SplitFile reads the cleaned table at in and writes the four split tables
// into outDir.
func (s *Splitter) SplitFile(in, outDir string) (*Split, error) {
	f, err := dataset.ReadCSVFile(in, "Make sure you ran the clean command first.")
	if err != nil {
		return nil, err
	}
	sp, err := s.Split(f)
	if err != nil {
		return nil, err
	}
	for _, t := range []*dataset.Frame{sp.XTrain, sp.XTest, sp.YTrain, sp.YTest} {
		if err := t.WriteCSVFile(filepath.Join(outDir, t.Name)); err != nil {
			return nil, err
		}
	}
	s.logger.Info("train/test data saved",
		log.PhaseKey, log.PhaseSplit,
		log.PathKey, outDir,
		"train_rows", sp.XTrain.NRows(),
		"test_rows", sp.XTest.NRows(),
		log.RandomSeedKey, s.Seed,
	)
	return sp, nil
}

// LoadSplit reads the four split tables from dir.
func LoadSplit(dir string) (*Split, error) {
	const hint = "Run the split command first."
	var sp Split
	targets := []struct {
		name string
		dst  **dataset.Frame
	}{
		{XTrainFile, &sp.XTrain}, {XTestFile, &sp.XTest},
		{YTrainFile, &sp.YTrain}, {YTestFile, &sp.YTest},
	}
	for _, t := range targets {
		f, err := dataset.ReadCSVFile(filepath.Join(dir, t.name), hint)
		if err != nil {
			return nil, err
		}
		*t.dst = f
	}
	if sp.XTrain.NRows() != sp.YTrain.NRows() {
		return nil, errors.NewDimensionError("LoadSplit", sp.XTrain.NRows(), sp.YTrain.NRows(), 0)
	}
	if sp.XTest.NRows() != sp.YTest.NRows() {
		return nil, errors.NewDimensionError("LoadSplit", sp.XTest.NRows(), sp.YTest.NRows(), 0)
	}
	return &sp, nil
}

// Labels parses a single-column label table into a vector of 0/1 values.
func Labels(f *dataset.Frame) (*mat.VecDense, error) {
	if f.NCols() != 1 {
		return nil, errors.NewSchemaError(f.Name, "expected exactly one label column, got "+strconv.Itoa(f.NCols()))
	}
	if f.NRows() == 0 {
		return nil, errors.NewSchemaError(f.Name, "no rows")
	}
	values, err := f.Float(f.Columns()[0])
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if v != 0 && v != 1 {
			return nil, errors.NewSchemaError(f.Name, "labels must be 0 or 1, row "+strconv.Itoa(i)+" has "+strings.TrimSpace(dataset.FormatFloat(v)))
		}
	}
	return mat.NewVecDense(len(values), values), nil
}
