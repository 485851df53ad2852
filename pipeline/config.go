package pipeline

import (
	"github.com/moderato-ml/moderato/pkg/errors"
)

// ImputationConfig controls the chained-equations engine.
type ImputationConfig struct {
	Method  string `yaml:"method"`  // only "pmm" is supported
	Draws   int    `yaml:"m"`       // parallel imputation draws
	MaxIter int    `yaml:"maxit"`   // sweeps per draw
	Donors  int    `yaml:"donors"`  // PMM donor pool size
}

// CVConfig controls cross-validated penalty selection.
type CVConfig struct {
	Folds int `yaml:"folds"`
}

// LassoConfig controls the penalized solver and its grid.
type LassoConfig struct {
	Mixing   float64 `yaml:"mixing"`           // elastic-net mixing; fixed at 1.0 (pure L1)
	NLambda  int     `yaml:"nlambda"`
	MinRatio float64 `yaml:"lambda_min_ratio"`
	Tol      float64 `yaml:"tol"`
	MaxIter  int     `yaml:"max_iter"`
}

// SplitConfig controls the holdout partition.
type SplitConfig struct {
	TrainFraction float64 `yaml:"train_fraction"`
}

// Config is the pipeline's complete option surface. Every option is explicit
// with a documented default; there are no hidden knobs.
type Config struct {
	Seed          uint64           `yaml:"seed"`
	Imputation    ImputationConfig `yaml:"imputation"`
	CV            CVConfig         `yaml:"cv"`
	Lasso         LassoConfig      `yaml:"lasso"`
	Split         SplitConfig      `yaml:"split"`
	MaxModerators int              `yaml:"max_moderators"`
}

// DefaultConfig returns the documented defaults: PMM with m=5 draws and
// maxit=50, 10-fold CV, pure L1 mixing, an 80/20 split, and at most 5
// moderation covariates.
func DefaultConfig() Config {
	return Config{
		Seed: 1,
		Imputation: ImputationConfig{
			Method:  "pmm",
			Draws:   5,
			MaxIter: 50,
			Donors:  5,
		},
		CV: CVConfig{Folds: 10},
		Lasso: LassoConfig{
			Mixing:   1.0,
			NLambda:  60,
			MinRatio: 0.01,
			Tol:      1e-7,
			MaxIter:  100,
		},
		Split:         SplitConfig{TrainFraction: 0.8},
		MaxModerators: 5,
	}
}

// Validate rejects unsupported or out-of-range options.
func (c Config) Validate() error {
	if c.Imputation.Method != "pmm" {
		return errors.NewValueError("pipeline.Config", "imputation method must be \"pmm\"")
	}
	if c.Imputation.Draws < 1 {
		return errors.NewValueError("pipeline.Config", "imputation draws must be >= 1")
	}
	if c.Imputation.MaxIter < 1 {
		return errors.NewValueError("pipeline.Config", "imputation maxit must be >= 1")
	}
	if c.Imputation.Donors < 1 {
		return errors.NewValueError("pipeline.Config", "imputation donors must be >= 1")
	}
	if c.CV.Folds < 2 {
		return errors.NewValueError("pipeline.Config", "cv folds must be >= 2")
	}
	if c.Lasso.Mixing != 1.0 {
		return errors.NewValueError("pipeline.Config", "lasso mixing is fixed at 1.0 (pure L1)")
	}
	if c.Lasso.NLambda < 2 {
		return errors.NewValueError("pipeline.Config", "lasso nlambda must be >= 2")
	}
	if c.Lasso.MinRatio <= 0 || c.Lasso.MinRatio >= 1 {
		return errors.NewValueError("pipeline.Config", "lasso lambda_min_ratio must be in (0,1)")
	}
	if c.Lasso.Tol <= 0 {
		return errors.NewValueError("pipeline.Config", "lasso tol must be positive")
	}
	if c.Lasso.MaxIter < 1 {
		return errors.NewValueError("pipeline.Config", "lasso max_iter must be >= 1")
	}
	if c.Split.TrainFraction <= 0 || c.Split.TrainFraction >= 1 {
		return errors.NewValueError("pipeline.Config", "train_fraction must be in (0,1)")
	}
	return nil
}
