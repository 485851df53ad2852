package pipeline

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moderato-ml/moderato/dataset"
)

func trialSchema() dataset.Schema {
	return dataset.Schema{
		Outcome: dataset.Field{Name: "response", Type: dataset.Binary},
		Treatments: [2]dataset.Field{
			{Name: "arm_a", Type: dataset.Binary},
			{Name: "arm_b", Type: dataset.Binary},
		},
		Baseline: []dataset.Field{
			{Name: "age", Type: dataset.Continuous},
			{Name: "biomarker", Type: dataset.Continuous},
			{Name: "prior_therapy", Type: dataset.Binary},
		},
	}
}

// trialDataset draws n records with an informative biomarker, an arm_a
// effect moderated by it, and a slice of biomarker entries blanked.
func trialDataset(t *testing.T, n int, missFrac float64, seed uint64) *dataset.Dataset {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed))
	rows := make([][]float64, n)
	for i := range rows {
		armA := float64(r.IntN(2))
		armB := 0.0
		if armA == 0 {
			armB = float64(r.IntN(2))
		}
		age := 60 + 10*r.NormFloat64()
		marker := 0.02*(age-60) + r.NormFloat64()
		prior := float64(r.IntN(2))
		eta := -0.5 + 1.5*marker + armA*(0.5+marker)
		response := 0.0
		if r.Float64() < 1/(1+math.Exp(-eta)) {
			response = 1
		}
		if r.Float64() < missFrac {
			marker = math.NaN()
		}
		rows[i] = []float64{response, armA, armB, age, marker, prior}
	}
	ds, err := dataset.New(trialSchema(), rows)
	if err != nil {
		t.Fatalf("dataset.New() error = %v", err)
	}
	return ds
}

func testConfig(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.Seed = seed
	cfg.Imputation.Draws = 2
	cfg.Imputation.MaxIter = 10
	cfg.CV.Folds = 5
	cfg.Lasso.NLambda = 15
	cfg.Lasso.Tol = 1e-6
	cfg.Lasso.MaxIter = 50
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Unsupported imputation method", func(c *Config) { c.Imputation.Method = "mean" }},
		{"Zero draws", func(c *Config) { c.Imputation.Draws = 0 }},
		{"One fold", func(c *Config) { c.CV.Folds = 1 }},
		{"Elastic-net mixing", func(c *Config) { c.Lasso.Mixing = 0.5 }},
		{"Ratio out of range", func(c *Config) { c.Lasso.MinRatio = 1.5 }},
		{"Bad train fraction", func(c *Config) { c.Split.TrainFraction = 1.2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
			if _, err := New(cfg); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestPipelineRun(t *testing.T) {
	ds := trialDataset(t, 300, 0.2, 314)

	p, err := New(testConfig(9))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := p.Run(ds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Stage != StageEvaluated {
		t.Errorf("Stage = %q, want %q", res.Stage, StageEvaluated)
	}

	// Pre-imputation reporting artifacts are populated.
	if len(res.MissingSummary) != 6 {
		t.Errorf("missing summary covers %d fields, want 6", len(res.MissingSummary))
	}
	markerMissing := 0
	for _, fm := range res.MissingSummary {
		if fm.Field == "biomarker" {
			markerMissing = fm.Count
		}
	}
	if markerMissing == 0 {
		t.Error("missing summary reports no absent biomarker entries")
	}
	// Continuous fields plus the outcome.
	if diff := cmp.Diff([]string{"response", "age", "biomarker"}, res.CorrelationFields); diff != "" {
		t.Errorf("correlation fields mismatch (-want +got):\n%s", diff)
	}

	// Selection artifacts.
	if len(res.Pass1.Predictors) == 0 {
		t.Error("pass 1 selected nothing despite a strong biomarker signal")
	}
	if res.Model == nil {
		t.Fatal("no fitted model in the result")
	}
	if len(res.Moderators) > 5 {
		t.Errorf("moderators = %d, want at most 5", len(res.Moderators))
	}

	// Evaluation artifacts.
	if res.Evaluation == nil {
		t.Fatal("no evaluation in the result")
	}
	if res.Evaluation.NTrain != 240 || res.Evaluation.NTest != 60 {
		t.Errorf("partition = %d/%d, want 240/60", res.Evaluation.NTrain, res.Evaluation.NTest)
	}
	if res.Evaluation.AUC < 0 || res.Evaluation.AUC > 1 {
		t.Errorf("AUC = %v, want in [0,1]", res.Evaluation.AUC)
	}
}

func TestPipelineDeterministic(t *testing.T) {
	ds := trialDataset(t, 250, 0.15, 2718)

	run := func() *Result {
		p, err := New(testConfig(42))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		res, err := p.Run(ds)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return res
	}

	a, b := run(), run()
	if diff := cmp.Diff(a.Pass1, b.Pass1); diff != "" {
		t.Errorf("pass 1 differs between identical runs:\n%s", diff)
	}
	if diff := cmp.Diff(a.Pass2, b.Pass2); diff != "" {
		t.Errorf("pass 2 differs between identical runs:\n%s", diff)
	}
	if diff := cmp.Diff(a.Moderators, b.Moderators); diff != "" {
		t.Errorf("moderators differ between identical runs:\n%s", diff)
	}
	if a.Evaluation.AUC != b.Evaluation.AUC {
		t.Errorf("AUC differs between identical runs: %v vs %v", a.Evaluation.AUC, b.Evaluation.AUC)
	}
	if diff := cmp.Diff(a.Model, b.Model); diff != "" {
		t.Errorf("fitted model differs between identical runs:\n%s", diff)
	}
}

func TestPipelineFailureState(t *testing.T) {
	// Every biomarker entry missing: imputation is infeasible and the run
	// must terminate in the failed state with the partial artifacts intact.
	ds := trialDataset(t, 50, 0, 5)
	schema := trialSchema()
	j := schema.FieldIndex("biomarker")
	rows := make([][]float64, ds.NumRows())
	for i := range rows {
		rows[i] = make([]float64, ds.NumFields())
		for c := 0; c < ds.NumFields(); c++ {
			rows[i][c] = ds.At(i, c)
		}
		rows[i][j] = math.NaN()
	}
	broken, err := dataset.New(schema, rows)
	if err != nil {
		t.Fatalf("dataset.New() error = %v", err)
	}

	p, err := New(testConfig(1))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := p.Run(broken)
	if err == nil {
		t.Fatal("Run() succeeded on an infeasible dataset")
	}
	if res == nil {
		t.Fatal("Run() returned no result alongside the error")
	}
	if res.Stage != StageFailed {
		t.Errorf("Stage = %q, want %q", res.Stage, StageFailed)
	}
	// Pre-failure artifacts survive.
	if len(res.MissingSummary) == 0 {
		t.Error("missing summary lost on failure")
	}
}
