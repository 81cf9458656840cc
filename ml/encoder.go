package ml

import "sort"

// OneHotEncoder maps categorical string columns onto a fixed 0/1 vector.
// A value never seen during fit encodes as an all-zero block instead of an
// error, so unseen categories still produce a prediction.
type OneHotEncoder struct {
	Columns []string   `json:"columns"`
	Values  [][]string `json:"values"`
}

// FitEncoder collects the sorted distinct values of each column. samples
// holds one value per column, in column order.
func FitEncoder(columns []string, samples [][]string) *OneHotEncoder {
	enc := &OneHotEncoder{
		Columns: append([]string(nil), columns...),
		Values:  make([][]string, len(columns)),
	}
	for col := range columns {
		seen := make(map[string]struct{})
		for _, sample := range samples {
			if col < len(sample) {
				seen[sample[col]] = struct{}{}
			}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		enc.Values[col] = values
	}
	return enc
}

// Width is the length of the encoded vector.
func (e *OneHotEncoder) Width() int {
	total := 0
	for _, values := range e.Values {
		total += len(values)
	}
	return total
}

// Transform encodes one sample, values in Columns order.
func (e *OneHotEncoder) Transform(sample []string) []float64 {
	out := make([]float64, e.Width())
	base := 0
	for col, values := range e.Values {
		if col < len(sample) {
			if i := sort.SearchStrings(values, sample[col]); i < len(values) && values[i] == sample[col] {
				out[base+i] = 1
			}
		}
		base += len(values)
	}
	return out
}
