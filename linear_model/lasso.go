// Package linear_model implements L1-penalized (lasso) logistic regression
// for sparse variable selection, with a warm-started penalty path and k-fold
// cross-validated penalty selection.
//
// The solver is coordinate descent on the iteratively reweighted least
// squares (IRLS) quadratic approximation with soft thresholding, the
// standard approach for penalized generalized linear models. The intercept
// is never penalized and never counts as a selected predictor.
package linear_model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/moderato-ml/moderato/core/model"
	"github.com/moderato-ml/moderato/pkg/errors"
)

// ZeroTol is the magnitude below which a coefficient counts as exactly zero.
const ZeroTol = 1e-8

const (
	probClamp = 1e-5 // probability clamp for IRLS weights
	maxInner  = 1000 // coordinate sweeps per IRLS step
)

// LassoLogistic is a binary logistic regression with a pure L1 penalty at a
// fixed strength lambda.
type LassoLogistic struct {
	state *model.StateManager

	lambda  float64
	tol     float64
	maxIter int // IRLS outer iterations

	intercept float64
	coef      []float64
	nFeatures int
}

// Option is a functional option for LassoLogistic.
type Option func(*LassoLogistic)

// WithLambda sets the L1 penalty strength.
func WithLambda(lambda float64) Option {
	return func(l *LassoLogistic) { l.lambda = lambda }
}

// WithTol sets the coefficient-change convergence tolerance (default 1e-7).
func WithTol(tol float64) Option {
	return func(l *LassoLogistic) { l.tol = tol }
}

// WithMaxIter sets the IRLS iteration budget (default 100).
func WithMaxIter(maxIter int) Option {
	return func(l *LassoLogistic) { l.maxIter = maxIter }
}

// NewLassoLogistic creates a LassoLogistic with the given options.
func NewLassoLogistic(opts ...Option) *LassoLogistic {
	l := &LassoLogistic{
		state:   model.NewStateManager(),
		lambda:  0.01,
		tol:     1e-7,
		maxIter: 100,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fit trains the model on X (n×p) and binary labels y.
func (l *LassoLogistic) Fit(x *mat.Dense, y []float64) error {
	n, p := x.Dims()
	if n == 0 || p == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LassoLogistic.Fit")
	}
	if len(y) != n {
		return errors.NewDimensionError("LassoLogistic.Fit", n, len(y), 0)
	}
	for _, v := range y {
		if v != 0 && v != 1 {
			return errors.NewValueError("LassoLogistic.Fit", "labels must be in {0,1}")
		}
	}

	b0, beta, err := cdFit(x, y, l.lambda, 0, nil, l.tol, l.maxIter)
	if err != nil {
		return err
	}
	l.intercept = b0
	l.coef = beta
	l.nFeatures = p
	l.state.SetDimensions(p, n)
	l.state.SetFitted()
	return nil
}

// Intercept returns the fitted intercept.
func (l *LassoLogistic) Intercept() float64 { return l.intercept }

// Coef returns a copy of the fitted coefficient vector.
func (l *LassoLogistic) Coef() []float64 { return append([]float64(nil), l.coef...) }

// Lambda returns the penalty strength the model was fitted at.
func (l *LassoLogistic) Lambda() float64 { return l.lambda }

// NumNonzero returns the count of coefficients with |coef| > ZeroTol.
func (l *LassoLogistic) NumNonzero() int { return countNonzero(l.coef) }

// PredictProba returns P(y=1) for each row of x.
func (l *LassoLogistic) PredictProba(x *mat.Dense) ([]float64, error) {
	if !l.state.IsFitted() {
		return nil, errors.NewNotFittedError("LassoLogistic", "PredictProba")
	}
	n, p := x.Dims()
	if p != l.nFeatures {
		return nil, errors.NewDimensionError("LassoLogistic.PredictProba", l.nFeatures, p, 1)
	}
	probs := make([]float64, n)
	for i := 0; i < n; i++ {
		eta := l.intercept
		for j := 0; j < p; j++ {
			eta += x.At(i, j) * l.coef[j]
		}
		probs[i] = sigmoid(eta)
	}
	return probs, nil
}

// PredictorSet extracts the non-zero coefficients as (name, coefficient)
// pairs in column order. The intercept is tracked on the model and is never
// a member.
func (l *LassoLogistic) PredictorSet(columns []string) (PredictorSet, error) {
	if !l.state.IsFitted() {
		return PredictorSet{}, errors.NewNotFittedError("LassoLogistic", "PredictorSet")
	}
	if len(columns) != l.nFeatures {
		return PredictorSet{}, errors.NewDimensionError("LassoLogistic.PredictorSet", l.nFeatures, len(columns), 1)
	}
	ps := PredictorSet{Lambda: l.lambda}
	for j, c := range l.coef {
		if math.Abs(c) > ZeroTol {
			ps.Predictors = append(ps.Predictors, Predictor{Name: columns[j], Coefficient: c})
		}
	}
	return ps, nil
}

// Predictor is one selected covariate and its fitted coefficient.
type Predictor struct {
	Name        string  `json:"name"`
	Coefficient float64 `json:"coefficient"`
}

// PredictorSet is the ordered non-zero coefficient set of a lasso fit plus
// the penalty it was fitted at.
type PredictorSet struct {
	Predictors []Predictor `json:"predictors"`
	Lambda     float64     `json:"lambda"`
}

// Names returns the selected covariate names in set order.
func (ps PredictorSet) Names() []string {
	names := make([]string, len(ps.Predictors))
	for i, p := range ps.Predictors {
		names[i] = p.Name
	}
	return names
}

// Top returns the k predictors with the largest absolute coefficients,
// preserving the set's original order. k <= 0 or k >= len returns ps.
func (ps PredictorSet) Top(k int) PredictorSet {
	if k <= 0 || k >= len(ps.Predictors) {
		return ps
	}
	// Rank |coefficient| descending with a stable order tiebreak.
	idx := make([]int, len(ps.Predictors))
	for i := range idx {
		idx[i] = i
	}
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			ca := math.Abs(ps.Predictors[idx[a]].Coefficient)
			cb := math.Abs(ps.Predictors[idx[b]].Coefficient)
			if cb > ca || (cb == ca && idx[b] < idx[a]) {
				idx[a], idx[b] = idx[b], idx[a]
			}
		}
	}
	keep := make(map[int]bool, k)
	for _, i := range idx[:k] {
		keep[i] = true
	}
	out := PredictorSet{Lambda: ps.Lambda}
	for i, p := range ps.Predictors {
		if keep[i] {
			out.Predictors = append(out.Predictors, p)
		}
	}
	return out
}

// ===========================================================================
// Penalty path
// ===========================================================================

// PathPoint is one solution along the penalty path.
type PathPoint struct {
	Lambda    float64
	Intercept float64
	Coef      []float64
}

// NumNonzero returns the count of coefficients with |coef| > ZeroTol.
func (p PathPoint) NumNonzero() int { return countNonzero(p.Coef) }

// LambdaGrid builds the geometric penalty grid for X, y: nLambda values from
// the smallest penalty that zeroes every coefficient (the null-model KKT
// bound) down to minRatio times that bound.
func LambdaGrid(x *mat.Dense, y []float64, nLambda int, minRatio float64) ([]float64, error) {
	n, p := x.Dims()
	if n == 0 || p == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "linear_model.LambdaGrid")
	}
	if nLambda < 2 {
		return nil, errors.NewValueError("linear_model.LambdaGrid", "nLambda must be >= 2")
	}
	if minRatio <= 0 || minRatio >= 1 {
		return nil, errors.NewValueError("linear_model.LambdaGrid", "minRatio must be in (0,1)")
	}

	ybar := floats.Sum(y) / float64(n)

	lambdaMax := 0.0
	for j := 0; j < p; j++ {
		g := 0.0
		for i := 0; i < n; i++ {
			g += x.At(i, j) * (y[i] - ybar)
		}
		g = math.Abs(g) / float64(n)
		if g > lambdaMax {
			lambdaMax = g
		}
	}
	if lambdaMax < ZeroTol {
		return nil, errors.NewValueError("linear_model.LambdaGrid", "all covariates are orthogonal to the outcome")
	}

	grid := make([]float64, nLambda)
	step := math.Pow(minRatio, 1/float64(nLambda-1))
	lam := lambdaMax
	for i := range grid {
		grid[i] = lam
		lam *= step
	}
	return grid, nil
}

// FitPath fits the full penalty path with warm starts, largest lambda first.
// Sparsity is non-increasing in lambda along the returned points.
func FitPath(x *mat.Dense, y []float64, lambdas []float64, tol float64, maxIter int) ([]PathPoint, error) {
	points := make([]PathPoint, 0, len(lambdas))
	var beta []float64
	b0 := 0.0
	for i, lam := range lambdas {
		var err error
		warm := beta
		if i == 0 {
			warm = nil
		}
		b0, beta, err = cdFit(x, y, lam, b0, warm, tol, maxIter)
		if err != nil {
			return nil, err
		}
		points = append(points, PathPoint{
			Lambda:    lam,
			Intercept: b0,
			Coef:      append([]float64(nil), beta...),
		})
	}
	return points, nil
}

// ===========================================================================
// Coordinate descent core
// ===========================================================================

// cdFit solves the L1-penalized logistic problem at a fixed lambda by
// coordinate descent over the IRLS quadratic approximation. warmBeta may be
// nil for a cold start. Returns the intercept and coefficient vector.
func cdFit(x *mat.Dense, y []float64, lambda, warmB0 float64, warmBeta []float64, tol float64, maxIter int) (float64, []float64, error) {
	n, p := x.Dims()

	beta := make([]float64, p)
	b0 := warmB0
	if warmBeta != nil {
		copy(beta, warmBeta)
	} else {
		ybar := errors.ClipValue(floats.Sum(y)/float64(n), probClamp, 1-probClamp)
		b0 = math.Log(ybar / (1 - ybar))
	}

	eta := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, n)
	resid := make([]float64, n)
	betaOld := make([]float64, p)

	converged := false
	for outer := 0; outer < maxIter; outer++ {
		// IRLS working response and weights at the current solution.
		for i := 0; i < n; i++ {
			e := b0
			for j := 0; j < p; j++ {
				if beta[j] != 0 {
					e += x.At(i, j) * beta[j]
				}
			}
			eta[i] = e
			pi := errors.ClipValue(sigmoid(e), probClamp, 1-probClamp)
			w[i] = pi * (1 - pi)
			z[i] = e + (y[i]-pi)/w[i]
			resid[i] = z[i] - e
		}
		copy(betaOld, beta)

		// Coordinate sweeps on the weighted least-squares subproblem.
		for inner := 0; inner < maxInner; inner++ {
			maxDelta := 0.0
			for j := 0; j < p; j++ {
				num, denom := 0.0, 0.0
				bj := beta[j]
				for i := 0; i < n; i++ {
					xij := x.At(i, j)
					if xij == 0 {
						continue
					}
					num += w[i] * xij * (resid[i] + xij*bj)
					denom += w[i] * xij * xij
				}
				num /= float64(n)
				denom /= float64(n)
				if denom < ZeroTol {
					continue
				}
				newBj := softThreshold(num, lambda) / denom
				if d := newBj - bj; d != 0 {
					for i := 0; i < n; i++ {
						resid[i] -= x.At(i, j) * d
					}
					beta[j] = newBj
					if ad := math.Abs(d); ad > maxDelta {
						maxDelta = ad
					}
				}
			}
			// Unpenalized intercept update.
			sw, swr := 0.0, 0.0
			for i := 0; i < n; i++ {
				sw += w[i]
				swr += w[i] * resid[i]
			}
			if d := swr / sw; d != 0 {
				b0 += d
				for i := 0; i < n; i++ {
					resid[i] -= d
				}
				if ad := math.Abs(d); ad > maxDelta {
					maxDelta = ad
				}
			}
			if maxDelta < tol {
				break
			}
		}

		if err := errors.CheckScalar("LassoLogistic.cdFit intercept", b0); err != nil {
			return 0, nil, err
		}

		maxChange := 0.0
		for j := 0; j < p; j++ {
			if d := math.Abs(beta[j] - betaOld[j]); d > maxChange {
				maxChange = d
			}
		}
		if maxChange < tol {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LassoLogistic", maxIter, ""))
	}
	return b0, beta, nil
}

func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	}
	return 0
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-z))
}

func countNonzero(coef []float64) int {
	n := 0
	for _, c := range coef {
		if math.Abs(c) > ZeroTol {
			n++
		}
	}
	return n
}
