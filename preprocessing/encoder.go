package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/moderato-ml/moderato/core/model"
	"github.com/moderato-ml/moderato/dataset"
	"github.com/moderato-ml/moderato/pkg/errors"
)

// EncodedMatrix is a numeric table with its ordered column names. Column set
// and order are fixed by the encoding spec that produced it.
type EncodedMatrix struct {
	X       *mat.Dense
	Columns []string
}

// fieldEncoding records how one baseline field maps to output columns.
type fieldEncoding struct {
	field    dataset.Field
	colStart int       // first output column of this field's block
	levels   []float64 // dummy levels (ordinal only): field.Levels[1:]
	scaleIdx int       // index into the scaler's column set (continuous only)
}

// Encoder maps a completed dataset's baseline covariates to numeric columns:
// binary fields pass through, continuous fields are standardized with
// train-fitted statistics, and ordinal fields expand to dummy indicators
// anchored to the schema's canonical level ordering (first level is the
// reference and gets no column).
//
// Unseen-level policy: an ordinal value absent from the canonical levels at
// transform time zero-fills the field's dummy block (the row is treated as
// the reference level) and emits an UnseenLevelWarning. Rows are never
// dropped and encoding never silently misaligns columns.
type Encoder struct {
	state *model.StateManager

	schema    dataset.Schema
	encodings []fieldEncoding
	columns   []string
	scaler    *StandardScaler
	contCols  []int // baseline field indices (within schema.Baseline) that are continuous
}

// NewEncoder creates an unfitted Encoder.
func NewEncoder() *Encoder {
	return &Encoder{state: model.NewStateManager(), scaler: NewStandardScaler()}
}

// Fit derives the encoding spec from the training data: the output column
// list (fixed by the schema alone) and the standardization statistics of
// every continuous field (fixed by the training rows).
func (e *Encoder) Fit(c *dataset.Completed) error {
	if c.NumRows() == 0 {
		return errors.Wrap(errors.ErrEmptyData, "Encoder.Fit")
	}
	e.schema = c.Schema()
	e.encodings = e.encodings[:0]
	e.columns = e.columns[:0]
	e.contCols = e.contCols[:0]

	for bi, f := range e.schema.Baseline {
		enc := fieldEncoding{field: f, colStart: len(e.columns), scaleIdx: -1}
		switch f.Type {
		case dataset.Binary:
			e.columns = append(e.columns, f.Name)
		case dataset.Continuous:
			enc.scaleIdx = len(e.contCols)
			e.contCols = append(e.contCols, bi)
			e.columns = append(e.columns, f.Name)
		case dataset.Ordinal:
			enc.levels = f.Levels[1:]
			for _, lv := range enc.levels {
				e.columns = append(e.columns, fmt.Sprintf("%s=%g", f.Name, lv))
			}
		}
		e.encodings = append(e.encodings, enc)
	}

	if len(e.contCols) > 0 {
		cont := mat.NewDense(c.NumRows(), len(e.contCols), nil)
		for k, bi := range e.contCols {
			name := e.schema.Baseline[bi].Name
			col := c.Column(name)
			for i, v := range col {
				cont.Set(i, k, v)
			}
		}
		if err := e.scaler.Fit(cont); err != nil {
			return errors.Wrap(err, "Encoder.Fit")
		}
	}

	e.state.SetDimensions(len(e.columns), c.NumRows())
	e.state.SetFitted()
	return nil
}

// Transform encodes any completed dataset with the fitted spec. Statistics
// are never recomputed from the input; the training-fitted column order and
// scaler parameters apply verbatim.
func (e *Encoder) Transform(c *dataset.Completed) (*EncodedMatrix, error) {
	if !e.state.IsFitted() {
		return nil, errors.NewNotFittedError("Encoder", "Transform")
	}

	n := c.NumRows()
	out := mat.NewDense(n, len(e.columns), nil)

	// Standardize the continuous block with the train-fitted scaler.
	var contScaled *mat.Dense
	if len(e.contCols) > 0 {
		cont := mat.NewDense(n, len(e.contCols), nil)
		for k, bi := range e.contCols {
			col := c.Column(e.schema.Baseline[bi].Name)
			for i, v := range col {
				cont.Set(i, k, v)
			}
		}
		var err error
		contScaled, err = e.scaler.Transform(cont)
		if err != nil {
			return nil, errors.Wrap(err, "Encoder.Transform")
		}
	}

	for _, enc := range e.encodings {
		col := c.Column(enc.field.Name)
		switch enc.field.Type {
		case dataset.Binary:
			for i, v := range col {
				out.Set(i, enc.colStart, v)
			}
		case dataset.Continuous:
			for i := 0; i < n; i++ {
				out.Set(i, enc.colStart, contScaled.At(i, enc.scaleIdx))
			}
		case dataset.Ordinal:
			for i, v := range col {
				if !isKnownLevel(enc.field.Levels, v) {
					errors.Warn(errors.NewUnseenLevelWarning(enc.field.Name, v, i))
					continue // dummy block stays zero
				}
				for k, lv := range enc.levels {
					if v == lv {
						out.Set(i, enc.colStart+k, 1)
					}
				}
			}
		}
	}

	return &EncodedMatrix{X: out, Columns: append([]string(nil), e.columns...)}, nil
}

// FitTransform fits the spec on c and encodes c.
func (e *Encoder) FitTransform(c *dataset.Completed) (*EncodedMatrix, error) {
	if err := e.Fit(c); err != nil {
		return nil, err
	}
	return e.Transform(c)
}

// Columns returns the fitted output column order for baseline covariates.
func (e *Encoder) Columns() []string {
	return append([]string(nil), e.columns...)
}

// IsFitted reports whether Fit has completed.
func (e *Encoder) IsFitted() bool { return e.state.IsFitted() }

// Treatments extracts the two treatment indicator columns unchanged (raw
// 0/1, never standardized), with their names.
func Treatments(c *dataset.Completed) (*mat.Dense, []string) {
	s := c.Schema()
	names := []string{s.Treatments[0].Name, s.Treatments[1].Name}
	out := mat.NewDense(c.NumRows(), 2, nil)
	for k, name := range names {
		col := c.Column(name)
		for i, v := range col {
			out.Set(i, k, v)
		}
	}
	return out, names
}

func isKnownLevel(levels []float64, v float64) bool {
	for _, lv := range levels {
		if v == lv {
			return true
		}
	}
	return false
}
