package svm

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/heartrisk/core/parallel"
)

const (
	tau = 1e-12
	// kernelParallelThreshold is the row count below which the Gram matrix
	// is filled on a single goroutine.
	kernelParallelThreshold = 64
)

// kernelFunc evaluates K(a, b).
type kernelFunc struct {
	Kind  string
	Gamma float64
}

func (k kernelFunc) eval(a, b []float64) float64 {
	if k.Kind == "linear" {
		return floats.Dot(a, b)
	}
	d := floats.Distance(a, b, 2)
	return math.Exp(-k.Gamma * d * d)
}

// gram computes the full symmetric kernel matrix in row-major order.
func (k kernelFunc) gram(rows [][]float64) []float64 {
	n := len(rows)
	K := make([]float64, n*n)
	parallel.ParallelizeWithThreshold(n, kernelParallelThreshold, 0, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < n; j++ {
				K[i*n+j] = k.eval(rows[i], rows[j])
			}
		}
	})
	return K
}

// dualSolution is the outcome of one SMO run.
type dualSolution struct {
	alpha     []float64
	rho       float64
	iter      int
	converged bool
}

// solveDual solves the C-SVC dual
//
//	min 0.5 aᵀQa - eᵀa  s.t. yᵀa = 0, 0 <= a_i <= C
//
// with Q_ij = y_i y_j K_ij, using SMO with second-order working set
// selection. y holds +1/-1.
func solveDual(K []float64, y []float64, C, eps float64, maxIter int) dualSolution {
	n := len(y)
	alpha := make([]float64, n)
	grad := make([]float64, n)
	qd := make([]float64, n)
	for i := range grad {
		grad[i] = -1
		qd[i] = K[i*n+i]
	}
	q := func(i, j int) float64 { return y[i] * y[j] * K[i*n+j] }
	upper := func(i int) bool { return alpha[i] >= C }
	lower := func(i int) bool { return alpha[i] <= 0 }

	iter := 0
	converged := false
	for iter < maxIter {
		i, j, done := selectWorkingSet(n, y, grad, qd, q, upper, lower, eps)
		if done {
			converged = true
			break
		}
		iter++

		oldI, oldJ := alpha[i], alpha[j]
		qij := q(i, j)
		if y[i] != y[j] {
			quad := qd[i] + qd[j] + 2*qij
			if quad <= 0 {
				quad = tau
			}
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = diff
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if diff > 0 {
				if alpha[i] > C {
					alpha[i] = C
					alpha[j] = C - diff
				}
			} else if alpha[j] > C {
				alpha[j] = C
				alpha[i] = C + diff
			}
		} else {
			quad := qd[i] + qd[j] - 2*qij
			if quad <= 0 {
				quad = tau
			}
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > C {
				if alpha[i] > C {
					alpha[i] = C
					alpha[j] = sum - C
				}
			} else if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
			if sum > C {
				if alpha[j] > C {
					alpha[j] = C
					alpha[i] = sum - C
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for k := 0; k < n; k++ {
			grad[k] += q(i, k)*dI + q(j, k)*dJ
		}
	}

	return dualSolution{alpha: alpha, rho: computeRho(y, grad, upper, lower), iter: iter, converged: converged}
}

// selectWorkingSet picks the maximal violating i and the j giving the largest
// second-order decrease of the objective. done is true once the KKT gap is
// below eps.
func selectWorkingSet(n int, y, grad, qd []float64, q func(i, j int) float64,
	upper, lower func(int) bool, eps float64,
) (int, int, bool) {
	gmax, gmax2 := math.Inf(-1), math.Inf(-1)
	iSel, jSel := -1, -1

	for t := 0; t < n; t++ {
		if y[t] > 0 {
			if !upper(t) && -grad[t] >= gmax {
				gmax = -grad[t]
				iSel = t
			}
		} else if !lower(t) && grad[t] >= gmax {
			gmax = grad[t]
			iSel = t
		}
	}
	if iSel < 0 {
		return 0, 0, true
	}

	objMin := math.Inf(1)
	for t := 0; t < n; t++ {
		var gradDiff, quad float64
		if y[t] > 0 {
			if lower(t) {
				continue
			}
			gmax2 = math.Max(gmax2, grad[t])
			gradDiff = gmax + grad[t]
			quad = qd[iSel] + qd[t] - 2*y[iSel]*q(iSel, t)
		} else {
			if upper(t) {
				continue
			}
			gmax2 = math.Max(gmax2, -grad[t])
			gradDiff = gmax - grad[t]
			quad = qd[iSel] + qd[t] + 2*y[iSel]*q(iSel, t)
		}
		if gradDiff <= 0 {
			continue
		}
		if quad <= 0 {
			quad = tau
		}
		if obj := -(gradDiff * gradDiff) / quad; obj <= objMin {
			objMin = obj
			jSel = t
		}
	}
	if gmax+gmax2 < eps || jSel < 0 {
		return 0, 0, true
	}
	return iSel, jSel, false
}

// computeRho returns the offset: the mean of y_i*G_i over free vectors, or
// the midpoint of the feasible interval when no vector is free.
func computeRho(y, grad []float64, upper, lower func(int) bool) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	sumFree, nFree := 0.0, 0
	for i := range y {
		yg := y[i] * grad[i]
		switch {
		case upper(i):
			if y[i] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case lower(i):
			if y[i] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			nFree++
			sumFree += yg
		}
	}
	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}
