package linear_model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/moderato-ml/moderato/core/parallel"
	"github.com/moderato-ml/moderato/pkg/errors"
)

// CVFold is a single train/validation index split.
type CVFold struct {
	TrainIndices []int
	ValIndices   []int
}

// KFold produces k shuffled folds, deterministic in the seed.
type KFold struct {
	NSplits int
	Seed    uint64
}

// NewKFold creates a k-fold splitter (k is clamped to at least 2).
func NewKFold(nSplits int, seed uint64) *KFold {
	if nSplits < 2 {
		nSplits = 2
	}
	return &KFold{NSplits: nSplits, Seed: seed}
}

// Split generates the train/validation indices for each fold over n rows.
func (kf *KFold) Split(n int) []CVFold {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(kf.Seed, kf.Seed))
	r.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	folds := make([]CVFold, kf.NSplits)
	foldSize := n / kf.NSplits
	remainder := n % kf.NSplits

	current := 0
	for f := 0; f < kf.NSplits; f++ {
		valSize := foldSize
		if f < remainder {
			valSize++
		}
		val := append([]int(nil), indices[current:current+valSize]...)
		train := make([]int, 0, n-valSize)
		train = append(train, indices[:current]...)
		train = append(train, indices[current+valSize:]...)
		folds[f] = CVFold{TrainIndices: train, ValIndices: val}
		current += valSize
	}
	return folds
}

// CVResult records a cross-validated penalty selection.
type CVResult struct {
	Lambdas       []float64 // searched grid, descending
	MeanDeviance  []float64 // mean held-out deviance per grid value (NaN if no valid fold)
	BestIndex     int
	BestLambda    float64
	ExcludedFolds int // folds dropped for single-class halves
}

// CVLassoLogistic selects the lasso penalty by k-fold cross-validation over
// a shared geometric grid, then refits once on the full data at the chosen
// penalty. Folds whose training or validation half holds a single outcome
// class are excluded from the loss average with a warning.
type CVLassoLogistic struct {
	Folds    int
	NLambda  int
	MinRatio float64
	Seed     uint64
	Tol      float64
	MaxIter  int

	result *CVResult
	model  *LassoLogistic
}

// CVOption is a functional option for CVLassoLogistic.
type CVOption func(*CVLassoLogistic)

// WithFolds sets the fold count (default 10).
func WithFolds(k int) CVOption {
	return func(cv *CVLassoLogistic) { cv.Folds = k }
}

// WithNLambda sets the penalty grid size (default 60).
func WithNLambda(n int) CVOption {
	return func(cv *CVLassoLogistic) { cv.NLambda = n }
}

// WithMinRatio sets the grid's smallest penalty as a fraction of the largest
// (default 0.01).
func WithMinRatio(r float64) CVOption {
	return func(cv *CVLassoLogistic) { cv.MinRatio = r }
}

// WithCVSeed sets the seed driving fold assignment.
func WithCVSeed(seed uint64) CVOption {
	return func(cv *CVLassoLogistic) { cv.Seed = seed }
}

// WithCVTol sets the solver tolerance (default 1e-7).
func WithCVTol(tol float64) CVOption {
	return func(cv *CVLassoLogistic) { cv.Tol = tol }
}

// WithCVMaxIter sets the solver iteration budget (default 100).
func WithCVMaxIter(maxIter int) CVOption {
	return func(cv *CVLassoLogistic) { cv.MaxIter = maxIter }
}

// NewCVLassoLogistic creates a CV selector with the given options.
func NewCVLassoLogistic(opts ...CVOption) *CVLassoLogistic {
	cv := &CVLassoLogistic{
		Folds:    10,
		NLambda:  60,
		MinRatio: 0.01,
		Tol:      1e-7,
		MaxIter:  100,
	}
	for _, opt := range opts {
		opt(cv)
	}
	return cv
}

// Fit runs the full selection: grid construction, per-fold path fits, loss
// averaging, and the final full-data refit at the winning penalty.
func (cv *CVLassoLogistic) Fit(x *mat.Dense, y []float64) error {
	n, _ := x.Dims()
	if len(y) != n {
		return errors.NewDimensionError("CVLassoLogistic.Fit", n, len(y), 0)
	}
	if cv.Folds > n {
		return errors.NewValueError("CVLassoLogistic.Fit", "more folds than rows")
	}

	grid, err := LambdaGrid(x, y, cv.NLambda, cv.MinRatio)
	if err != nil {
		return err
	}

	folds := NewKFold(cv.Folds, cv.Seed).Split(n)
	nFolds := len(folds)

	// devs[f] holds fold f's held-out deviance per grid value; NaN marks an
	// excluded fold. Folds are independent, so they run in parallel.
	devs := make([][]float64, nFolds)
	errs := make([]error, nFolds)
	parallel.ForEach(nFolds, func(f int) {
		devs[f] = cv.foldDeviance(x, y, folds[f], f, nFolds, grid, &errs[f])
	})
	for _, e := range errs {
		if e != nil {
			return e
		}
	}

	mean := make([]float64, len(grid))
	excluded := 0
	for l := range grid {
		sum, count := 0.0, 0
		for f := 0; f < nFolds; f++ {
			if devs[f] == nil {
				continue
			}
			sum += devs[f][l]
			count++
		}
		if count == 0 {
			mean[l] = math.NaN()
		} else {
			mean[l] = sum / float64(count)
		}
	}
	for f := 0; f < nFolds; f++ {
		if devs[f] == nil {
			excluded++
		}
	}
	if excluded == nFolds {
		return errors.NewValueError("CVLassoLogistic.Fit", "every fold was excluded; outcome classes too imbalanced for this fold count")
	}

	best := 0
	for l := 1; l < len(grid); l++ {
		if mean[l] < mean[best] {
			best = l
		}
	}

	cv.result = &CVResult{
		Lambdas:       grid,
		MeanDeviance:  mean,
		BestIndex:     best,
		BestLambda:    grid[best],
		ExcludedFolds: excluded,
	}

	// Refit once on the full data, warm-starting down the path to lambda*.
	points, err := FitPath(x, y, grid[:best+1], cv.Tol, cv.MaxIter)
	if err != nil {
		return err
	}
	final := points[len(points)-1]
	m := NewLassoLogistic(WithLambda(final.Lambda), WithTol(cv.Tol), WithMaxIter(cv.MaxIter))
	m.intercept = final.Intercept
	m.coef = append([]float64(nil), final.Coef...)
	m.nFeatures = len(final.Coef)
	m.state.SetDimensions(m.nFeatures, n)
	m.state.SetFitted()
	cv.model = m
	return nil
}

// foldDeviance fits the path on the fold's training half and returns the
// held-out deviance per grid value, or nil when the fold is degenerate.
func (cv *CVLassoLogistic) foldDeviance(x *mat.Dense, y []float64, fold CVFold, f, nFolds int, grid []float64, errOut *error) []float64 {
	trainX, trainY := subset(x, y, fold.TrainIndices)
	valX, valY := subset(x, y, fold.ValIndices)

	if cls, ok := singleClass(trainY); ok {
		errors.Warn(errors.NewDegenerateFoldWarning(f, nFolds, cls, "penalty selection (training half)"))
		return nil
	}
	if cls, ok := singleClass(valY); ok {
		errors.Warn(errors.NewDegenerateFoldWarning(f, nFolds, cls, "penalty selection (validation half)"))
		return nil
	}

	points, err := FitPath(trainX, trainY, grid, cv.Tol, cv.MaxIter)
	if err != nil {
		*errOut = errors.Wrapf(err, "fold %d", f)
		return nil
	}

	out := make([]float64, len(grid))
	nVal, p := valX.Dims()
	for l, pt := range points {
		probs := make([]float64, nVal)
		for i := 0; i < nVal; i++ {
			eta := pt.Intercept
			for j := 0; j < p; j++ {
				eta += valX.At(i, j) * pt.Coef[j]
			}
			probs[i] = sigmoid(eta)
		}
		out[l] = BinomialDeviance(valY, probs)
	}
	return out
}

// Result returns the selection record; nil before Fit.
func (cv *CVLassoLogistic) Result() *CVResult { return cv.result }

// Model returns the full-data refit at the selected penalty; nil before Fit.
func (cv *CVLassoLogistic) Model() *LassoLogistic { return cv.model }

// BinomialDeviance computes the mean binomial deviance of probabilities p
// against binary labels y, with log stabilization.
func BinomialDeviance(y, p []float64) float64 {
	dev := 0.0
	for i := range y {
		if y[i] == 1 {
			dev -= 2 * errors.StabilizeLog(p[i])
		} else {
			dev -= 2 * errors.StabilizeLog(1-p[i])
		}
	}
	return dev / float64(len(y))
}

func subset(x *mat.Dense, y []float64, indices []int) (*mat.Dense, []float64) {
	_, p := x.Dims()
	xs := mat.NewDense(len(indices), p, nil)
	ys := make([]float64, len(indices))
	for r, idx := range indices {
		for j := 0; j < p; j++ {
			xs.Set(r, j, x.At(idx, j))
		}
		ys[r] = y[idx]
	}
	return xs, ys
}

func singleClass(y []float64) (float64, bool) {
	if len(y) == 0 {
		return 0, false
	}
	first := y[0]
	for _, v := range y[1:] {
		if v != first {
			return 0, false
		}
	}
	return first, true
}
