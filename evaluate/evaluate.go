// Package evaluate quantifies out-of-sample performance: it splits a
// completed dataset into train/test partitions, fits the full two-pass
// selection recipe on the training partition only, scores the held-out
// partition with the training-fitted encoding and column list, and reports
// the ROC curve and AUC.
package evaluate

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/moderato-ml/moderato/dataset"
	"github.com/moderato-ml/moderato/design"
	"github.com/moderato-ml/moderato/linear_model"
	"github.com/moderato-ml/moderato/metrics"
	"github.com/moderato-ml/moderato/pkg/errors"
	"github.com/moderato-ml/moderato/preprocessing"
)

// Recipe is the model-fitting procedure shared by the reporting pass (full
// data) and the holdout evaluation (training partition): encoder fit, pass-1
// lasso screen over baseline main effects, interaction build restricted to
// the screened covariates, pass-2 lasso over the moderation design.
type Recipe struct {
	Folds         int
	NLambda       int
	MinRatio      float64
	Tol           float64
	MaxIter       int
	MaxModerators int
	Seed          uint64
}

// RecipeFit holds every training-fitted artifact needed to score new data.
type RecipeFit struct {
	Encoder        *preprocessing.Encoder
	TreatmentNames []string
	Builder        *design.Builder
	Pass1          linear_model.PredictorSet
	Pass1CV        *linear_model.CVResult
	Pass2          linear_model.PredictorSet
	Pass2CV        *linear_model.CVResult
	Model          *design.FittedModel
}

// Fit runs the recipe on c. Pass 1 and pass 2 use distinct fold seeds
// derived from the recipe seed so the two selections are independent but
// reproducible.
func (r Recipe) Fit(c *dataset.Completed) (*RecipeFit, error) {
	fit := &RecipeFit{Encoder: preprocessing.NewEncoder()}

	encoded, err := fit.Encoder.FitTransform(c)
	if err != nil {
		return nil, err
	}
	y := c.Outcome()

	// Pass 1: screen baseline covariates, main effects only.
	cv1 := linear_model.NewCVLassoLogistic(
		linear_model.WithFolds(r.Folds),
		linear_model.WithNLambda(r.NLambda),
		linear_model.WithMinRatio(r.MinRatio),
		linear_model.WithCVTol(r.Tol),
		linear_model.WithCVMaxIter(r.MaxIter),
		linear_model.WithCVSeed(r.Seed+1),
	)
	pass1Matrix := design.MainEffects(encoded)
	if err := cv1.Fit(pass1Matrix.X, y); err != nil {
		return nil, errors.Wrap(err, "pass 1 selection")
	}
	fit.Pass1CV = cv1.Result()
	fit.Pass1, err = cv1.Model().PredictorSet(pass1Matrix.Columns)
	if err != nil {
		return nil, err
	}

	// Pass 2: full main effects plus interactions for the screened subset.
	fit.Builder = design.NewBuilder(fit.Pass1, r.MaxModerators)
	treatments, treatmentNames := preprocessing.Treatments(c)
	fit.TreatmentNames = treatmentNames
	dm, err := fit.Builder.Build(treatments, treatmentNames, encoded)
	if err != nil {
		return nil, err
	}
	cv2 := linear_model.NewCVLassoLogistic(
		linear_model.WithFolds(r.Folds),
		linear_model.WithNLambda(r.NLambda),
		linear_model.WithMinRatio(r.MinRatio),
		linear_model.WithCVTol(r.Tol),
		linear_model.WithCVMaxIter(r.MaxIter),
		linear_model.WithCVSeed(r.Seed+2),
	)
	if err := cv2.Fit(dm.X, y); err != nil {
		return nil, errors.Wrap(err, "pass 2 selection")
	}
	fit.Pass2CV = cv2.Result()
	fit.Pass2, err = cv2.Model().PredictorSet(dm.Columns)
	if err != nil {
		return nil, err
	}
	fit.Model, err = design.NewFittedModel(cv2.Model(), dm.Columns)
	if err != nil {
		return nil, err
	}
	return fit, nil
}

// Score encodes c with the training-fitted spec, rebuilds the design with
// the training-fitted moderator set, aligns to the model's column list, and
// returns predicted probabilities. Columns absent from c's design zero-fill;
// no row is ever dropped.
func (f *RecipeFit) Score(c *dataset.Completed) ([]float64, error) {
	encoded, err := f.Encoder.Transform(c)
	if err != nil {
		return nil, err
	}
	treatments, treatmentNames := preprocessing.Treatments(c)
	dm, err := f.Builder.Build(treatments, treatmentNames, encoded)
	if err != nil {
		return nil, err
	}
	return f.Model.PredictProba(dm), nil
}

// TrainTestSplit shuffles row indices with a PCG stream seeded by seed and
// assigns the first ⌊frac·n⌋ to training, the rest to test. Counts are exact
// (300 rows at 0.8 give 240/60); class balance is not stratified, which is a
// documented limitation of uniform assignment.
func TrainTestSplit(n int, frac float64, seed uint64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, errors.NewValueError("evaluate.TrainTestSplit", "need at least two rows")
	}
	if frac <= 0 || frac >= 1 {
		return nil, nil, errors.NewValueError("evaluate.TrainTestSplit", "train fraction must be in (0,1)")
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	nTrain := int(frac * float64(n))
	if nTrain == 0 || nTrain == n {
		return nil, nil, errors.NewValueError("evaluate.TrainTestSplit", "split leaves an empty partition")
	}
	return indices[:nTrain], indices[nTrain:], nil
}

// Result is the holdout evaluation outcome.
type Result struct {
	AUC    float64            `json:"auc"`
	ROC    []metrics.ROCPoint `json:"roc"`
	NTrain int                `json:"n_train"`
	NTest  int                `json:"n_test"`
}

// FromPredictions computes the evaluation result for known labels and
// predicted probabilities.
func FromPredictions(yTrue, probs []float64, nTrain, nTest int) (*Result, error) {
	yVec := mat.NewVecDense(len(yTrue), yTrue)
	pVec := mat.NewVecDense(len(probs), probs)
	auc, err := metrics.AUC(yVec, pVec)
	if err != nil {
		return nil, err
	}
	roc, err := metrics.ROCCurve(yVec, pVec)
	if err != nil {
		return nil, err
	}
	return &Result{AUC: auc, ROC: roc, NTrain: nTrain, NTest: nTest}, nil
}

// Holdout splits c, fits the recipe on the training partition, scores the
// test partition, and computes ROC/AUC. The returned RecipeFit is the
// train-partition fit used for scoring.
func Holdout(c *dataset.Completed, recipe Recipe, frac float64, seed uint64) (*Result, *RecipeFit, error) {
	train, test, err := TrainTestSplit(c.NumRows(), frac, seed)
	if err != nil {
		return nil, nil, err
	}

	fit, err := recipe.Fit(c.Subset(train))
	if err != nil {
		return nil, nil, errors.Wrap(err, "holdout training")
	}
	probs, err := fit.Score(c.Subset(test))
	if err != nil {
		return nil, nil, errors.Wrap(err, "holdout scoring")
	}

	res, err := FromPredictions(c.Subset(test).Outcome(), probs, len(train), len(test))
	if err != nil {
		return nil, nil, err
	}
	return res, fit, nil
}
