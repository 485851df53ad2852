// Package design assembles the moderation model's design matrix and keeps
// train/score column alignment explicit. The matrix holds both treatment
// indicators and every baseline covariate as main effects, plus one
// interaction column per (treatment × selected covariate) pair; interaction
// terms are restricted to the covariates screened by the first lasso pass so
// the column count stays tractable while main effects remain complete.
//
// Every column list is constructed programmatically once and carried with
// the matrix, so the exact column set driving a fit is always inspectable.
package design

import (
	"gonum.org/v1/gonum/mat"

	"github.com/moderato-ml/moderato/linear_model"
	"github.com/moderato-ml/moderato/pkg/errors"
	"github.com/moderato-ml/moderato/preprocessing"
)

// Matrix is a design matrix with its ordered column names.
type Matrix struct {
	X       *mat.Dense
	Columns []string
}

// Builder constructs moderation design matrices for a fixed moderator set.
type Builder struct {
	moderators []string
}

// NewBuilder fixes the interaction covariates: the members of the first-pass
// predictor set, capped at maxModerators by absolute coefficient
// (maxModerators <= 0 means no cap).
func NewBuilder(selected linear_model.PredictorSet, maxModerators int) *Builder {
	return &Builder{moderators: selected.Top(maxModerators).Names()}
}

// Moderators returns the covariate names interactions are built for.
func (b *Builder) Moderators() []string {
	return append([]string(nil), b.moderators...)
}

// Columns returns the design column order for the given inputs: treatments,
// all baseline covariate columns, then treatment×moderator interactions
// grouped by treatment.
func (b *Builder) Columns(treatmentNames, baselineColumns []string) []string {
	cols := make([]string, 0, len(treatmentNames)+len(baselineColumns)+len(treatmentNames)*len(b.moderators))
	cols = append(cols, treatmentNames...)
	cols = append(cols, baselineColumns...)
	for _, t := range treatmentNames {
		for _, m := range b.moderators {
			cols = append(cols, t+":"+m)
		}
	}
	return cols
}

// Build assembles the design matrix from the treatment columns and the
// encoded baseline matrix. Each interaction column is the element-wise
// product of its treatment indicator and its moderator column. Every
// moderator must be present in the encoded matrix.
func (b *Builder) Build(treatments *mat.Dense, treatmentNames []string, enc *preprocessing.EncodedMatrix) (*Matrix, error) {
	n, nTreat := treatments.Dims()
	encRows, _ := enc.X.Dims()
	if encRows != n {
		return nil, errors.NewDimensionError("design.Build", n, encRows, 0)
	}
	if nTreat != len(treatmentNames) {
		return nil, errors.NewDimensionError("design.Build", len(treatmentNames), nTreat, 1)
	}

	modIdx := make([]int, len(b.moderators))
	for k, m := range b.moderators {
		modIdx[k] = indexOf(enc.Columns, m)
		if modIdx[k] < 0 {
			return nil, errors.NewValueError("design.Build", "moderator column "+m+" absent from encoded matrix")
		}
	}

	columns := b.Columns(treatmentNames, enc.Columns)
	out := mat.NewDense(n, len(columns), nil)
	for i := 0; i < n; i++ {
		c := 0
		for t := 0; t < nTreat; t++ {
			out.Set(i, c, treatments.At(i, t))
			c++
		}
		for j := range enc.Columns {
			out.Set(i, c, enc.X.At(i, j))
			c++
		}
		for t := 0; t < nTreat; t++ {
			for _, j := range modIdx {
				out.Set(i, c, treatments.At(i, t)*enc.X.At(i, j))
				c++
			}
		}
	}
	return &Matrix{X: out, Columns: columns}, nil
}

// MainEffects wraps an encoded baseline matrix as a design matrix with no
// treatment or interaction columns (the first screening pass).
func MainEffects(enc *preprocessing.EncodedMatrix) *Matrix {
	return &Matrix{X: enc.X, Columns: append([]string(nil), enc.Columns...)}
}

// Align reindexes m to the target column list: target columns absent from m
// are zero-filled (with a ColumnFillWarning), columns of m absent from the
// target are dropped. Rows are never dropped and Align never fails on a
// column mismatch.
func Align(m *Matrix, target []string, op string) *mat.Dense {
	n, _ := m.X.Dims()
	out := mat.NewDense(n, len(target), nil)
	for c, name := range target {
		src := indexOf(m.Columns, name)
		if src < 0 {
			errors.Warn(errors.NewColumnFillWarning(op, name))
			continue // column stays zero
		}
		for i := 0; i < n; i++ {
			out.Set(i, c, m.X.At(i, src))
		}
	}
	return out
}

// FittedModel is the scoring artifact of the final lasso fit: intercept,
// coefficient vector, penalty, and the exact ordered column list it was
// trained on.
type FittedModel struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	Columns      []string  `json:"columns"`
	Lambda       float64   `json:"lambda"`
}

// NewFittedModel captures a fitted lasso and its training column list.
func NewFittedModel(l *linear_model.LassoLogistic, columns []string) (*FittedModel, error) {
	coef := l.Coef()
	if len(coef) != len(columns) {
		return nil, errors.NewDimensionError("design.NewFittedModel", len(columns), len(coef), 1)
	}
	return &FittedModel{
		Intercept:    l.Intercept(),
		Coefficients: coef,
		Columns:      append([]string(nil), columns...),
		Lambda:       l.Lambda(),
	}, nil
}

// PredictorSet returns the model's non-zero coefficients.
func (m *FittedModel) PredictorSet() linear_model.PredictorSet {
	ps := linear_model.PredictorSet{Lambda: m.Lambda}
	for j, c := range m.Coefficients {
		if c > linear_model.ZeroTol || c < -linear_model.ZeroTol {
			ps.Predictors = append(ps.Predictors, linear_model.Predictor{Name: m.Columns[j], Coefficient: c})
		}
	}
	return ps
}

// PredictProba aligns dm to the model's column list and returns P(y=1) per
// row. Missing columns score as zero contribution; extra columns are
// ignored.
func (m *FittedModel) PredictProba(dm *Matrix) []float64 {
	x := Align(dm, m.Columns, "FittedModel.PredictProba")
	n, p := x.Dims()
	probs := make([]float64, n)
	for i := 0; i < n; i++ {
		eta := m.Intercept
		for j := 0; j < p; j++ {
			eta += x.At(i, j) * m.Coefficients[j]
		}
		probs[i] = 1 / (1 + errors.StabilizeExp(-eta))
	}
	return probs
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}
