package design

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/moderato-ml/moderato/linear_model"
	"github.com/moderato-ml/moderato/pkg/errors"
	"github.com/moderato-ml/moderato/preprocessing"
)

func screened(names []string, coefs []float64) linear_model.PredictorSet {
	ps := linear_model.PredictorSet{Lambda: 0.1}
	for i, n := range names {
		ps.Predictors = append(ps.Predictors, linear_model.Predictor{Name: n, Coefficient: coefs[i]})
	}
	return ps
}

func TestBuilderColumnOrder(t *testing.T) {
	b := NewBuilder(screened([]string{"age", "stage=2"}, []float64{0.8, -0.3}), 5)

	got := b.Columns([]string{"arm_a", "arm_b"}, []string{"age", "prior", "stage=2"})
	want := []string{
		"arm_a", "arm_b",
		"age", "prior", "stage=2",
		"arm_a:age", "arm_a:stage=2",
		"arm_b:age", "arm_b:stage=2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("column order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderCapsModerators(t *testing.T) {
	ps := screened(
		[]string{"a", "b", "c", "d"},
		[]float64{0.1, -2.0, 0.5, 1.5},
	)
	b := NewBuilder(ps, 2)

	// The two largest absolute coefficients, in original set order.
	if diff := cmp.Diff([]string{"b", "d"}, b.Moderators()); diff != "" {
		t.Errorf("moderators mismatch (-want +got):\n%s", diff)
	}

	// No cap keeps every screened covariate.
	if all := NewBuilder(ps, 0); len(all.Moderators()) != 4 {
		t.Errorf("uncapped moderators = %d, want 4", len(all.Moderators()))
	}
}

func TestBuildInteractionProducts(t *testing.T) {
	b := NewBuilder(screened([]string{"age"}, []float64{1.0}), 5)

	treatments := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		0, 0,
	})
	enc := &preprocessing.EncodedMatrix{
		X:       mat.NewDense(3, 2, []float64{0.5, 1, -1.2, 0, 2.0, 1}),
		Columns: []string{"age", "prior"},
	}

	dm, err := b.Build(treatments, []string{"arm_a", "arm_b"}, enc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"arm_a", "arm_b", "age", "prior", "arm_a:age", "arm_b:age"}
	if diff := cmp.Diff(want, dm.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	// Interaction entries are element-wise products.
	wantAA := []float64{0.5, 0, 0}  // arm_a * age
	wantBA := []float64{0, -1.2, 0} // arm_b * age
	for i := 0; i < 3; i++ {
		if dm.X.At(i, 4) != wantAA[i] {
			t.Errorf("arm_a:age[%d] = %v, want %v", i, dm.X.At(i, 4), wantAA[i])
		}
		if dm.X.At(i, 5) != wantBA[i] {
			t.Errorf("arm_b:age[%d] = %v, want %v", i, dm.X.At(i, 5), wantBA[i])
		}
	}
}

func TestBuildMissingModerator(t *testing.T) {
	b := NewBuilder(screened([]string{"weight"}, []float64{1.0}), 5)
	treatments := mat.NewDense(1, 2, []float64{1, 0})
	enc := &preprocessing.EncodedMatrix{
		X:       mat.NewDense(1, 1, []float64{0.5}),
		Columns: []string{"age"},
	}

	_, err := b.Build(treatments, []string{"arm_a", "arm_b"}, enc)
	var ve *errors.ValueError
	if !errors.As(err, &ve) {
		t.Errorf("Build() error = %v, want ValueError", err)
	}
}

func TestAlign(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	m := &Matrix{
		X:       mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		Columns: []string{"a", "b", "extra"},
	}

	out := Align(m, []string{"b", "absent", "a"}, "test")

	n, p := out.Dims()
	if n != 2 || p != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", n, p)
	}
	// Reordered, zero-filled, extras dropped; no row is lost.
	want := [][]float64{
		{2, 0, 1},
		{5, 0, 4},
	}
	for i := range want {
		for j := range want[i] {
			if out.At(i, j) != want[i][j] {
				t.Errorf("out[%d][%d] = %v, want %v", i, j, out.At(i, j), want[i][j])
			}
		}
	}

	found := false
	for _, w := range warnings {
		var cfw *errors.ColumnFillWarning
		if errors.As(w, &cfw) {
			found = true
		}
	}
	if !found {
		t.Error("no ColumnFillWarning was emitted for the absent column")
	}
}

func TestFittedModelPredictProba(t *testing.T) {
	model := &FittedModel{
		Intercept:    -1,
		Coefficients: []float64{2, 0},
		Columns:      []string{"x1", "x2"},
		Lambda:       0.1,
	}

	dm := &Matrix{
		// Columns arrive in a different order than the model was trained on.
		X:       mat.NewDense(2, 2, []float64{0, 0.5, 1, 1.5}),
		Columns: []string{"x2", "x1"},
	}

	probs := model.PredictProba(dm)
	want := []float64{
		1 / (1 + math.Exp(0)),  // eta = -1 + 2*0.5
		1 / (1 + math.Exp(-2)), // eta = -1 + 2*1.5
	}
	for i, w := range want {
		if math.Abs(probs[i]-w) > 1e-12 {
			t.Errorf("probs[%d] = %v, want %v", i, probs[i], w)
		}
	}
}

func TestFittedModelPredictorSet(t *testing.T) {
	model := &FittedModel{
		Intercept:    0.2,
		Coefficients: []float64{0.5, 0, -1.1},
		Columns:      []string{"a", "b", "c"},
		Lambda:       0.05,
	}
	ps := model.PredictorSet()
	if diff := cmp.Diff([]string{"a", "c"}, ps.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if ps.Lambda != 0.05 {
		t.Errorf("lambda = %v, want 0.05", ps.Lambda)
	}
}
