package dataset

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// FieldMissing summarizes the missing entries of one field.
type FieldMissing struct {
	Field   string  `json:"field"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// MissingSummary reports, per field in storage order, how many entries were
// originally absent. Produced before imputation for external reporting.
func (d *Dataset) MissingSummary() []FieldMissing {
	n := d.NumRows()
	out := make([]FieldMissing, len(d.fields))
	for j, f := range d.fields {
		count := 0
		for i := range d.mask {
			if d.mask[i][j] {
				count++
			}
		}
		out[j] = FieldMissing{
			Field:   f.Name,
			Count:   count,
			Percent: 100 * float64(count) / float64(n),
		}
	}
	return out
}

// CorrelationMatrix returns the Pearson correlation matrix over the
// continuous baseline fields plus the outcome, with the matching name list.
// Each pairwise coefficient uses only rows where both entries are observed;
// pairs with fewer than two complete rows yield NaN.
func (d *Dataset) CorrelationMatrix() ([][]float64, []string) {
	cols := []int{}
	names := []string{}
	for j, f := range d.fields {
		if f.Type == Continuous || f.Name == d.schema.Outcome.Name {
			cols = append(cols, j)
			names = append(names, f.Name)
		}
	}

	k := len(cols)
	corr := make([][]float64, k)
	for a := range corr {
		corr[a] = make([]float64, k)
		corr[a][a] = 1
	}
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			var xa, xb []float64
			for i := range d.data {
				if d.mask[i][cols[a]] || d.mask[i][cols[b]] {
					continue
				}
				xa = append(xa, d.data[i][cols[a]])
				xb = append(xb, d.data[i][cols[b]])
			}
			r := math.NaN()
			if len(xa) >= 2 {
				r = stat.Correlation(xa, xb, nil)
			}
			corr[a][b] = r
			corr[b][a] = r
		}
	}
	return corr, names
}
