package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

const logLossEps = 1e-15

// checkPair validates that both vectors are non-empty and of equal length.
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, fmt.Sprintf("labels must be 0 or 1, got %v at index %d", v, i))
		}
	}
	return nil
}

// firstColumn copies column 0 of m into a vector.
func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}

// AUC はROC曲線下面積を計算する
//
// yPred holds scores for the positive class. Ties receive their average rank
// (Mann-Whitney U). When yTrue contains a single class the area is undefined
// and 0.5 is returned.
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yPred.AtVec(idx[a]) < yPred.AtVec(idx[b])
	})

	var nPos, sumPosRanks float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && yPred.AtVec(idx[j+1]) == yPred.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				nPos++
				sumPosRanks += avgRank
			}
		}
		i = j + 1
	}

	nNeg := float64(n) - nPos
	if nPos == 0 || nNeg == 0 {
		return 0.5, nil
	}
	return (sumPosRanks - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（先頭列を使用）
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, err := firstColumn("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	p, err := firstColumn("AUCMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return AUC(t, p)
}

// BinaryLogLoss は二値分類の対数損失を計算する
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yPred.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率 (1 - Accuracy) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// binaryCounts returns tp, fp, fn, tn for the positive label 1.
func binaryCounts(op string, yTrue, yPred *mat.VecDense) (tp, fp, fn, tn float64, err error) {
	n, err := checkPair(op, yTrue, yPred)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i) == 1, yPred.AtVec(i) == 1
		switch {
		case t && p:
			tp++
		case !t && p:
			fp++
		case t && !p:
			fn++
		default:
			tn++
		}
	}
	return tp, fp, fn, tn, nil
}

// Precision computes tp / (tp + fp) for the positive label 1. With no
// positive predictions it returns 0 and emits an UndefinedMetricWarning.
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	tp, fp, _, _, err := binaryCounts("Precision", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples", 0))
		return 0, nil
	}
	return tp / (tp + fp), nil
}

// Recall computes tp / (tp + fn) for the positive label 1. With no positive
// samples it returns 0 and emits an UndefinedMetricWarning.
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	tp, _, fn, _, err := binaryCounts("Recall", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples", 0))
		return 0, nil
	}
	return tp / (tp + fn), nil
}

// F1Score is the harmonic mean of precision and recall for the positive
// label 1, or 0 when both are zero.
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	tp, fp, fn, _, err := binaryCounts("F1Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	denom := 2*tp + fp + fn
	if denom == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("f1", "no true nor predicted samples", 0))
		return 0, nil
	}
	return 2 * tp / denom, nil
}

// ConfusionMatrix counts yTrue (rows) against yPred (columns) over the
// sorted union of labels, which is also returned.
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, []float64, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[float64]struct{})
	for i := 0; i < n; i++ {
		seen[yTrue.AtVec(i)] = struct{}{}
		seen[yPred.AtVec(i)] = struct{}{}
	}
	labels := make([]float64, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Float64s(labels)
	pos := make(map[float64]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		r, c := pos[yTrue.AtVec(i)], pos[yPred.AtVec(i)]
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, labels, nil
}

// ROCCurve returns false-positive rates, true-positive rates and the
// descending score thresholds at which they are reached. The first point is
// (0, 0) at threshold +Inf.
func ROCCurve(yTrue, yScore *mat.VecDense) (fpr, tpr, thresholds []float64, err error) {
	n, err := checkPair("ROCCurve", yTrue, yScore)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkBinary("ROCCurve", yTrue); err != nil {
		return nil, nil, nil, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) > yScore.AtVec(idx[b])
	})

	var nPos, nNeg float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
		} else {
			nNeg++
		}
	}

	fpr = []float64{0}
	tpr = []float64{0}
	thresholds = []float64{math.Inf(1)}
	var tp, fp float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(idx[i]) == 1 {
			tp++
		} else {
			fp++
		}
		if i+1 < n && yScore.AtVec(idx[i+1]) == yScore.AtVec(idx[i]) {
			continue
		}
		fpr = append(fpr, safeRate(fp, nNeg))
		tpr = append(tpr, safeRate(tp, nPos))
		thresholds = append(thresholds, yScore.AtVec(idx[i]))
	}
	return fpr, tpr, thresholds, nil
}

func safeRate(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// ClassificationReport renders per-class precision, recall, F1 and support
// plus accuracy, in the familiar text layout.
func ClassificationReport(yTrue, yPred *mat.VecDense) (string, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return "", err
	}
	n := yTrue.Len()

	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")

	var correct, macroP, macroR, macroF float64
	for i, l := range labels {
		var colSum, rowSum float64
		for j := range labels {
			colSum += cm.At(j, i)
			rowSum += cm.At(i, j)
		}
		tp := cm.At(i, i)
		correct += tp
		p, r := safeRate(tp, colSum), safeRate(tp, rowSum)
		f := 0.0
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		macroP += p
		macroR += r
		macroF += f
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", fmt.Sprint(l), p, r, f, int(rowSum))
	}
	k := float64(len(labels))
	fmt.Fprintf(&b, "\n%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", correct/float64(n), n)
	fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", "macro avg", macroP/k, macroR/k, macroF/k, n)
	return b.String(), nil
}

// Scores bundles the held-out metrics reported for a fitted classifier.
// ROCAUC is nil when the classifier produced no probability output.
type Scores struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	ROCAUC    *float64
}

// Evaluate computes Scores from labels, predictions and optional
// positive-class probabilities (nil to omit ROC-AUC).
func Evaluate(yTrue, yPred, yProba *mat.VecDense) (Scores, error) {
	var s Scores
	var err error
	if s.Accuracy, err = Accuracy(yTrue, yPred); err != nil {
		return s, err
	}
	if s.Precision, err = Precision(yTrue, yPred); err != nil {
		return s, err
	}
	if s.Recall, err = Recall(yTrue, yPred); err != nil {
		return s, err
	}
	if s.F1, err = F1Score(yTrue, yPred); err != nil {
		return s, err
	}
	if yProba != nil {
		auc, err := AUC(yTrue, yProba)
		if err != nil {
			return s, err
		}
		s.ROCAUC = &auc
	}
	return s, nil
}

// FormatAUC renders an optional ROC-AUC with four decimals or "N/A".
func FormatAUC(auc *float64) string {
	if auc == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.4f", *auc)
}
