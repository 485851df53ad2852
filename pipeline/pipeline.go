// Package pipeline orchestrates the full predictor-selection and treatment-
// moderation run as a strictly forward stage machine:
//
//	Ingested → Imputed → Encoded → Screened → InteractionsBuilt →
//	Selected → Split → Fitted → Evaluated
//
// Each stage consumes the previous stage's immutable value and produces a
// new one; nothing is mutated in place and no stage loops back. Any stage
// failure terminates the run in the Failed state carrying the originating
// error.
package pipeline

import (
	"log/slog"
	"time"

	"github.com/moderato-ml/moderato/dataset"
	"github.com/moderato-ml/moderato/design"
	"github.com/moderato-ml/moderato/evaluate"
	"github.com/moderato-ml/moderato/impute"
	"github.com/moderato-ml/moderato/linear_model"
	"github.com/moderato-ml/moderato/pkg/errors"
)

// Stage identifies a pipeline state.
type Stage string

// Pipeline stages, in order. Failed is the only terminal error state.
const (
	StageIngested          Stage = "ingested"
	StageImputed           Stage = "imputed"
	StageEncoded           Stage = "encoded"
	StageScreened          Stage = "screened"
	StageInteractionsBuilt Stage = "interactions_built"
	StageSelected          Stage = "selected"
	StageSplit             Stage = "split"
	StageFitted            Stage = "fitted"
	StageEvaluated         Stage = "evaluated"
	StageFailed            Stage = "failed"
)

// Result carries every artifact external reporting consumes, plus the stage
// the run terminated in.
type Result struct {
	Stage Stage `json:"stage"`

	MissingSummary    []dataset.FieldMissing    `json:"missing_summary"`
	Correlation       [][]float64               `json:"correlation"`
	CorrelationFields []string                  `json:"correlation_fields"`
	Pass1             linear_model.PredictorSet `json:"pass1"`
	Pass2             linear_model.PredictorSet `json:"pass2"`
	Moderators        []string                  `json:"moderators"`
	Model             *design.FittedModel       `json:"model"`
	Evaluation        *evaluate.Result          `json:"evaluation"`
}

// Pipeline runs the whole computation for one configuration.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

// New validates cfg and creates a Pipeline logging to the default slog
// logger.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, log: slog.Default()}, nil
}

// Run executes every stage on ds. On failure the returned Result still
// reports the artifacts of the stages that completed, with Stage set to
// Failed, alongside the originating error.
func (p *Pipeline) Run(ds *dataset.Dataset) (res *Result, err error) {
	defer errors.Recover(&err, "pipeline.Run")
	defer func() {
		if err != nil && res != nil {
			res.Stage = StageFailed
			p.log.Error("pipeline failed", "stage", res.Stage, "error", err)
		}
	}()

	res = &Result{Stage: StageIngested}
	started := time.Now()
	p.log.Info("pipeline started", "rows", ds.NumRows(), "fields", ds.NumFields(), "seed", p.cfg.Seed)

	// Pre-imputation reporting artifacts.
	res.MissingSummary = ds.MissingSummary()
	res.Correlation, res.CorrelationFields = ds.CorrelationMatrix()

	// Imputation. The pipeline models on draw 0; the remaining draws exist
	// for imputation diagnostics, not pooling.
	imputer := impute.New(
		impute.WithDraws(p.cfg.Imputation.Draws),
		impute.WithMaxIter(p.cfg.Imputation.MaxIter),
		impute.WithDonors(p.cfg.Imputation.Donors),
		impute.WithSeed(p.cfg.Seed),
	)
	completed, err := imputer.Impute(ds)
	if err != nil {
		return res, err
	}
	analysis := completed[0]
	res.Stage = StageImputed
	p.log.Info("imputation complete", "stage", res.Stage, "draws", len(completed), "maxit", p.cfg.Imputation.MaxIter)

	// Full-data reporting fit: encoding, pass-1 screen, interaction build,
	// pass-2 selection.
	recipe := evaluate.Recipe{
		Folds:         p.cfg.CV.Folds,
		NLambda:       p.cfg.Lasso.NLambda,
		MinRatio:      p.cfg.Lasso.MinRatio,
		Tol:           p.cfg.Lasso.Tol,
		MaxIter:       p.cfg.Lasso.MaxIter,
		MaxModerators: p.cfg.MaxModerators,
		Seed:          p.cfg.Seed,
	}
	fullFit, err := recipe.Fit(analysis)
	if err != nil {
		return res, err
	}
	res.Stage = StageEncoded
	p.log.Info("encoding complete", "stage", res.Stage, "columns", len(fullFit.Encoder.Columns()))
	res.Pass1 = fullFit.Pass1
	res.Stage = StageScreened
	p.log.Info("pass 1 screen complete", "stage", res.Stage,
		"selected", len(fullFit.Pass1.Predictors), "lambda", fullFit.Pass1.Lambda)
	res.Moderators = fullFit.Builder.Moderators()
	res.Stage = StageInteractionsBuilt
	p.log.Info("interaction design built", "stage", res.Stage, "moderators", len(res.Moderators))
	res.Pass2 = fullFit.Pass2
	res.Model = fullFit.Model
	res.Stage = StageSelected
	p.log.Info("pass 2 selection complete", "stage", res.Stage,
		"selected", len(fullFit.Pass2.Predictors), "lambda", fullFit.Pass2.Lambda)

	// Holdout evaluation: refit the recipe on the training partition only
	// and score the held-out partition with train-fitted parameters.
	train, test, err := evaluate.TrainTestSplit(analysis.NumRows(), p.cfg.Split.TrainFraction, p.cfg.Seed)
	if err != nil {
		return res, err
	}
	res.Stage = StageSplit
	p.log.Info("holdout split drawn", "stage", res.Stage, "train", len(train), "test", len(test))

	holdoutFit, err := recipe.Fit(analysis.Subset(train))
	if err != nil {
		return res, errors.Wrap(err, "holdout training")
	}
	res.Stage = StageFitted
	p.log.Info("holdout model fitted", "stage", res.Stage, "lambda", holdoutFit.Model.Lambda)

	evalRes, err := scoreHoldout(analysis, holdoutFit, train, test)
	if err != nil {
		return res, err
	}
	res.Evaluation = evalRes
	res.Stage = StageEvaluated
	p.log.Info("pipeline evaluated", "stage", res.Stage, "auc", evalRes.AUC, "elapsed", time.Since(started).String())
	return res, nil
}

func scoreHoldout(analysis *dataset.Completed, fit *evaluate.RecipeFit, train, test []int) (*evaluate.Result, error) {
	probs, err := fit.Score(analysis.Subset(test))
	if err != nil {
		return nil, errors.Wrap(err, "holdout scoring")
	}
	yTest := analysis.Subset(test).Outcome()
	return evaluate.FromPredictions(yTest, probs, len(train), len(test))
}
