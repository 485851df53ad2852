// Package dataset defines the typed in-memory table the pipeline operates
// on: a declared schema (one binary outcome, two binary treatment indicators,
// a set of typed baseline covariates) plus row-major float64 storage where
// NaN marks a missing entry. The schema is always declared up front; field
// types and categorical level orderings are never inferred from data, so
// encoding stays reproducible across training and scoring.
package dataset

import (
	"math"

	"github.com/moderato-ml/moderato/pkg/errors"
)

// FieldType declares how a field's values are interpreted.
type FieldType int

const (
	// Continuous fields hold arbitrary finite numeric values.
	Continuous FieldType = iota
	// Binary fields hold {0, 1}.
	Binary
	// Ordinal fields hold one of a declared, canonically ordered level set.
	Ordinal
)

// String returns the type name.
func (t FieldType) String() string {
	switch t {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	case Ordinal:
		return "ordinal"
	}
	return "unknown"
}

// Field describes a single column: its name, type, and for ordinal fields
// the canonical level ordering fixed independently of any dataset instance.
type Field struct {
	Name   string
	Type   FieldType
	Levels []float64 // ordinal only; first level is the encoding reference
}

// Schema is the fixed column contract: one binary outcome, two binary
// treatment indicators, and the declared baseline covariates.
type Schema struct {
	Outcome    Field
	Treatments [2]Field
	Baseline   []Field
}

// Validate checks the schema's internal consistency.
func (s Schema) Validate() error {
	if s.Outcome.Name == "" {
		return errors.NewSchemaError("outcome", "missing field name")
	}
	if s.Outcome.Type != Binary {
		return errors.NewSchemaError(s.Outcome.Name, "outcome must be binary")
	}
	for _, tr := range s.Treatments {
		if tr.Name == "" {
			return errors.NewSchemaError("treatment", "missing field name")
		}
		if tr.Type != Binary {
			return errors.NewSchemaError(tr.Name, "treatment indicator must be binary")
		}
	}
	seen := map[string]bool{s.Outcome.Name: true}
	for _, tr := range s.Treatments {
		if seen[tr.Name] {
			return errors.NewSchemaError(tr.Name, "duplicate field name")
		}
		seen[tr.Name] = true
	}
	for _, f := range s.Baseline {
		if f.Name == "" {
			return errors.NewSchemaError("baseline", "missing field name")
		}
		if seen[f.Name] {
			return errors.NewSchemaError(f.Name, "duplicate field name")
		}
		seen[f.Name] = true
		if f.Type == Ordinal && len(f.Levels) < 2 {
			return errors.NewSchemaError(f.Name, "ordinal field needs at least two declared levels")
		}
	}
	return nil
}

// Fields returns all fields in storage order: outcome, both treatments,
// then the baseline covariates in declared order.
func (s Schema) Fields() []Field {
	fields := make([]Field, 0, 3+len(s.Baseline))
	fields = append(fields, s.Outcome, s.Treatments[0], s.Treatments[1])
	fields = append(fields, s.Baseline...)
	return fields
}

// FieldIndex returns the storage column of the named field, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields() {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Dataset is an ordered collection of records conforming to a Schema.
// Missing entries are stored as NaN and tracked in the MissingnessMask.
type Dataset struct {
	schema Schema
	fields []Field
	data   [][]float64 // rows × fields
	mask   [][]bool    // true where the entry was originally absent
}

// New validates rows against the schema and builds the dataset together
// with its missingness mask. Type violations are fatal SchemaErrors: a
// non-{0,1} value in a binary field, a non-declared level in an ordinal
// field, or an infinite value anywhere.
func New(schema Schema, rows [][]float64) (*Dataset, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	fields := schema.Fields()
	if len(rows) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.New")
	}

	data := make([][]float64, len(rows))
	mask := make([][]bool, len(rows))
	for i, row := range rows {
		if len(row) != len(fields) {
			return nil, errors.NewDimensionError("dataset.New", len(fields), len(row), 1)
		}
		data[i] = make([]float64, len(fields))
		mask[i] = make([]bool, len(fields))
		copy(data[i], row)
		for j, v := range row {
			if math.IsNaN(v) {
				mask[i][j] = true
				continue
			}
			if err := checkValue(fields[j], v); err != nil {
				return nil, err
			}
		}
	}
	return &Dataset{schema: schema, fields: fields, data: data, mask: mask}, nil
}

func checkValue(f Field, v float64) error {
	if math.IsInf(v, 0) {
		return errors.NewSchemaError(f.Name, "infinite value")
	}
	switch f.Type {
	case Binary:
		if v != 0 && v != 1 {
			return errors.NewSchemaError(f.Name, "binary field contains a value outside {0,1}")
		}
	case Ordinal:
		for _, lv := range f.Levels {
			if v == lv {
				return nil
			}
		}
		return errors.NewSchemaError(f.Name, "ordinal field contains a non-declared level")
	}
	return nil
}

// Schema returns the declared schema.
func (d *Dataset) Schema() Schema { return d.schema }

// NumRows returns the record count.
func (d *Dataset) NumRows() int { return len(d.data) }

// NumFields returns the field count.
func (d *Dataset) NumFields() int { return len(d.fields) }

// At returns the value at row i, field column j (NaN when missing).
func (d *Dataset) At(i, j int) float64 { return d.data[i][j] }

// Missing reports whether the entry at row i, field column j was absent.
func (d *Dataset) Missing(i, j int) bool { return d.mask[i][j] }

// Column returns a copy of the named field's values.
func (d *Dataset) Column(name string) []float64 {
	j := d.schema.FieldIndex(name)
	if j < 0 {
		return nil
	}
	col := make([]float64, len(d.data))
	for i := range d.data {
		col[i] = d.data[i][j]
	}
	return col
}

// Subset returns a new Dataset holding the given rows, preserving masks.
func (d *Dataset) Subset(indices []int) *Dataset {
	data := make([][]float64, len(indices))
	mask := make([][]bool, len(indices))
	for k, idx := range indices {
		data[k] = append([]float64(nil), d.data[idx]...)
		mask[k] = append([]bool(nil), d.mask[idx]...)
	}
	return &Dataset{schema: d.schema, fields: d.fields, data: data, mask: mask}
}

// Completed is a Dataset with every missing value filled in. It is produced
// by the imputation engine and is immutable from the pipeline's view.
type Completed struct {
	schema Schema
	fields []Field
	data   [][]float64
}

// NewCompleted wraps fully observed rows. It refuses any remaining NaN.
func NewCompleted(schema Schema, rows [][]float64) (*Completed, error) {
	fields := schema.Fields()
	data := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(fields) {
			return nil, errors.NewDimensionError("dataset.NewCompleted", len(fields), len(row), 1)
		}
		for j, v := range row {
			if math.IsNaN(v) {
				return nil, errors.NewImputationError(fields[j].Name, "completed dataset still contains a missing value")
			}
		}
		data[i] = append([]float64(nil), row...)
	}
	return &Completed{schema: schema, fields: fields, data: data}, nil
}

// Schema returns the declared schema.
func (c *Completed) Schema() Schema { return c.schema }

// NumRows returns the record count.
func (c *Completed) NumRows() int { return len(c.data) }

// At returns the value at row i, field column j.
func (c *Completed) At(i, j int) float64 { return c.data[i][j] }

// Column returns a copy of the named field's values.
func (c *Completed) Column(name string) []float64 {
	j := c.schema.FieldIndex(name)
	if j < 0 {
		return nil
	}
	col := make([]float64, len(c.data))
	for i := range c.data {
		col[i] = c.data[i][j]
	}
	return col
}

// Outcome returns the outcome vector.
func (c *Completed) Outcome() []float64 { return c.Column(c.schema.Outcome.Name) }

// Subset returns a new Completed holding the given rows.
func (c *Completed) Subset(indices []int) *Completed {
	data := make([][]float64, len(indices))
	for k, idx := range indices {
		data[k] = append([]float64(nil), c.data[idx]...)
	}
	return &Completed{schema: c.schema, fields: c.fields, data: data}
}
