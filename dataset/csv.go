package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/moderato-ml/moderato/pkg/errors"
)

// missingTokens are the cell values ReadCSV treats as absent entries.
var missingTokens = map[string]bool{
	"":   true,
	"NA": true,
	"na": true,
	".":  true,
}

// ReadCSV parses a header-bearing CSV stream into a Dataset conforming to
// the schema. The header must contain every declared field; extra columns
// are ignored. Cells holding a missing token become NaN entries.
func ReadCSV(r io.Reader, schema Schema) (*Dataset, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "dataset.ReadCSV: header")
	}
	colOf := make(map[string]int, len(header))
	for i, name := range header {
		colOf[name] = i
	}
	fields := schema.Fields()
	fieldCols := make([]int, len(fields))
	for j, f := range fields {
		c, ok := colOf[f.Name]
		if !ok {
			return nil, errors.NewSchemaError(f.Name, "required field absent from CSV header")
		}
		fieldCols[j] = c
	}

	var rows [][]float64
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "dataset.ReadCSV: line %d", line)
		}
		row := make([]float64, len(fields))
		for j, c := range fieldCols {
			cell := record[c]
			if missingTokens[cell] {
				row[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.NewSchemaError(fields[j].Name,
					"non-numeric entry "+strconv.Quote(cell))
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return New(schema, rows)
}
