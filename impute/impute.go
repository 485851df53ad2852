// Package impute fills missing dataset entries by iterative chained-equations
// imputation with predictive mean matching (PMM). Each field with missing
// entries is regressed on all other fields over its observed rows; missing
// entries borrow the observed value of a donor row whose prediction is close,
// which preserves the empirical distribution instead of smoothing it and
// keeps binary/ordinal fields on legal values for free.
//
// The engine runs a fixed iteration budget with no convergence detection:
// within one sweep, fields imputed earlier feed the models of fields imputed
// later at their previous-iteration values, so stale imputations can persist
// into later passes. The budget (default 50) makes this a non-issue at trial
// scale.
package impute

import (
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/moderato-ml/moderato/dataset"
	"github.com/moderato-ml/moderato/pkg/errors"
)

const ridgeEps = 1e-6

// Imputer configures the chained-equations engine.
type Imputer struct {
	draws   int // parallel imputation draws (m)
	maxIter int // chained-equation sweeps per draw (maxit)
	donors  int // donor pool size for PMM
	seed    uint64
}

// Option is a functional option for the Imputer.
type Option func(*Imputer)

// WithDraws sets the number of imputation draws (default 5).
func WithDraws(m int) Option {
	return func(im *Imputer) { im.draws = m }
}

// WithMaxIter sets the number of chained-equation sweeps (default 50).
func WithMaxIter(maxit int) Option {
	return func(im *Imputer) { im.maxIter = maxit }
}

// WithDonors sets the PMM donor pool size (default 5).
func WithDonors(k int) Option {
	return func(im *Imputer) { im.donors = k }
}

// WithSeed sets the random seed controlling donor sampling.
func WithSeed(seed uint64) Option {
	return func(im *Imputer) { im.seed = seed }
}

// New creates an Imputer with the given options.
func New(opts ...Option) *Imputer {
	im := &Imputer{
		draws:   5,
		maxIter: 50,
		donors:  5,
		seed:    0,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Impute produces im.draws completed datasets. Draws are independent: draw d
// uses its own generator derived from the configured seed, so results are
// deterministic regardless of scheduling. The returned slice is ordered by
// draw index.
func (im *Imputer) Impute(ds *dataset.Dataset) ([]*dataset.Completed, error) {
	if im.draws < 1 {
		return nil, errors.NewValueError("impute.Impute", "draws must be >= 1")
	}
	if im.maxIter < 1 {
		return nil, errors.NewValueError("impute.Impute", "maxit must be >= 1")
	}
	if im.donors < 1 {
		return nil, errors.NewValueError("impute.Impute", "donors must be >= 1")
	}
	missingFields, err := im.checkFeasible(ds)
	if err != nil {
		return nil, err
	}

	completed := make([]*dataset.Completed, im.draws)
	var g errgroup.Group
	for d := 0; d < im.draws; d++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(im.seed, uint64(d)+1))
			c, err := im.runChain(ds, missingFields, rng)
			if err != nil {
				return err
			}
			completed[d] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return completed, nil
}

// checkFeasible verifies every field with missing entries can be imputed and
// returns the field columns to sweep, in storage order.
func (im *Imputer) checkFeasible(ds *dataset.Dataset) ([]int, error) {
	fields := ds.Schema().Fields()
	if len(fields) < 2 {
		return nil, errors.NewImputationError(fields[0].Name, "no other fields to predict from")
	}

	var missingFields []int
	for j, f := range fields {
		nMissing, nObserved := 0, 0
		for i := 0; i < ds.NumRows(); i++ {
			if ds.Missing(i, j) {
				nMissing++
			} else {
				nObserved++
			}
		}
		if nMissing == 0 {
			continue
		}
		if nObserved == 0 {
			return nil, errors.NewImputationError(f.Name, "no observed values")
		}
		if nObserved < im.donors {
			return nil, errors.NewImputationError(f.Name, "fewer observed rows than the donor pool size")
		}
		if !hasUsablePredictor(ds, j) {
			return nil, errors.NewImputationError(f.Name, "all other fields are missing in every row where this field is missing")
		}
		missingFields = append(missingFields, j)
	}
	return missingFields, nil
}

// hasUsablePredictor reports whether at least one other field is observed in
// at least one row where field j is missing.
func hasUsablePredictor(ds *dataset.Dataset, j int) bool {
	for i := 0; i < ds.NumRows(); i++ {
		if !ds.Missing(i, j) {
			continue
		}
		for k := 0; k < ds.NumFields(); k++ {
			if k != j && !ds.Missing(i, k) {
				return true
			}
		}
	}
	return false
}

// runChain executes one imputation draw.
func (im *Imputer) runChain(ds *dataset.Dataset, missingFields []int, rng *rand.Rand) (*dataset.Completed, error) {
	n := ds.NumRows()
	p := ds.NumFields()
	fields := ds.Schema().Fields()

	// Working copy with a crude initial fill; observed entries never change.
	working := make([][]float64, n)
	for i := 0; i < n; i++ {
		working[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			working[i][j] = ds.At(i, j)
		}
	}
	for _, j := range missingFields {
		fill := initialFill(ds, fields[j], j)
		for i := 0; i < n; i++ {
			if ds.Missing(i, j) {
				working[i][j] = fill
			}
		}
	}

	for it := 0; it < im.maxIter; it++ {
		for _, j := range missingFields {
			if err := im.sweepField(ds, working, j, fields[j].Name, rng); err != nil {
				return nil, err
			}
		}
	}
	return dataset.NewCompleted(ds.Schema(), working)
}

// sweepField refits field j's predictive model on its observed rows and
// replaces every missing entry with a PMM donor value.
func (im *Imputer) sweepField(ds *dataset.Dataset, working [][]float64, j int, name string, rng *rand.Rand) error {
	n := ds.NumRows()
	p := ds.NumFields()

	var obsRows, misRows []int
	for i := 0; i < n; i++ {
		if ds.Missing(i, j) {
			misRows = append(misRows, i)
		} else {
			obsRows = append(obsRows, i)
		}
	}

	// Design: intercept plus every other field at its current working value.
	xCols := p // 1 intercept + (p-1) predictors
	buildRow := func(i int, dst []float64) {
		dst[0] = 1
		k := 1
		for c := 0; c < p; c++ {
			if c == j {
				continue
			}
			dst[k] = working[i][c]
			k++
		}
	}

	xObs := mat.NewDense(len(obsRows), xCols, nil)
	yObs := make([]float64, len(obsRows))
	row := make([]float64, xCols)
	for r, i := range obsRows {
		buildRow(i, row)
		xObs.SetRow(r, row)
		yObs[r] = working[i][j]
	}

	beta, err := solveRidge(xObs, yObs, ridgeEps)
	if err != nil {
		return errors.Wrapf(err, "impute: field %q", name)
	}

	predObs := make([]float64, len(obsRows))
	for r := range obsRows {
		predObs[r] = floats.Dot(xObs.RawRowView(r), beta)
	}

	donors := im.donors
	xMis := make([]float64, xCols)
	for _, i := range misRows {
		buildRow(i, xMis)
		target := floats.Dot(xMis, beta)
		donor := nearestDonors(predObs, target, donors)
		pick := donor[rng.IntN(len(donor))]
		working[i][j] = yObs[pick]
	}
	return nil
}

// initialFill returns the observed mean for continuous fields and the
// observed mode for binary/ordinal fields (ties resolve to the lower value).
func initialFill(ds *dataset.Dataset, f dataset.Field, j int) float64 {
	if f.Type == dataset.Continuous {
		sum, count := 0.0, 0
		for i := 0; i < ds.NumRows(); i++ {
			if !ds.Missing(i, j) {
				sum += ds.At(i, j)
				count++
			}
		}
		return sum / float64(count)
	}

	counts := map[float64]int{}
	for i := 0; i < ds.NumRows(); i++ {
		if !ds.Missing(i, j) {
			counts[ds.At(i, j)]++
		}
	}
	values := make([]float64, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Float64s(values)
	best, bestCount := values[0], counts[values[0]]
	for _, v := range values[1:] {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// nearestDonors returns the indices of the k predictions closest to target.
// Ties resolve toward lower indices so draws differ only through sampling.
func nearestDonors(preds []float64, target float64, k int) []int {
	if k > len(preds) {
		k = len(preds)
	}
	type cand struct {
		idx  int
		dist float64
	}
	best := make([]cand, 0, k)
	for i, p := range preds {
		d := math.Abs(p - target)
		if len(best) < k {
			best = append(best, cand{i, d})
			sort.Slice(best, func(a, b int) bool {
				if best[a].dist != best[b].dist {
					return best[a].dist < best[b].dist
				}
				return best[a].idx < best[b].idx
			})
			continue
		}
		if d < best[k-1].dist {
			best[k-1] = cand{i, d}
			sort.Slice(best, func(a, b int) bool {
				if best[a].dist != best[b].dist {
					return best[a].dist < best[b].dist
				}
				return best[a].idx < best[b].idx
			})
		}
	}
	out := make([]int, len(best))
	for i, c := range best {
		out[i] = c.idx
	}
	return out
}

// solveRidge solves min ||Xb - y||^2 + eps*||b||^2 via the normal equations.
// The small ridge keeps the system well-posed when predictors are collinear.
func solveRidge(x *mat.Dense, y []float64, eps float64) ([]float64, error) {
	n, c := x.Dims()
	if n == 0 || c == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "solveRidge")
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 0; i < c; i++ {
		xtx.Set(i, i, xtx.At(i, i)+eps*float64(n))
	}
	yVec := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yVec)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, errors.Wrap(errors.ErrSingularSystem, "solveRidge")
	}
	return append([]float64(nil), beta.RawVector().Data...), nil
}
