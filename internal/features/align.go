package features

// Frame is a named-column matrix of feature rows.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// Valuer exposes a feature row's values by column name.
type Valuer interface {
	Value(column string) (float64, bool)
}

// NewFrame lays rows out in the given column order. Columns a row does not
// know are left at 0.
func NewFrame[R Valuer](rows []R, columns []string) *Frame {
	frame := &Frame{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]float64, len(rows)),
	}
	for i, row := range rows {
		values := make([]float64, len(columns))
		for j, c := range columns {
			if v, ok := row.Value(c); ok {
				values[j] = v
			}
		}
		frame.Rows[i] = values
	}
	return frame
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Last returns the final row.
func (f *Frame) Last() []float64 {
	return f.Rows[len(f.Rows)-1]
}

// Align returns f in the canonical column order. Canonical columns missing
// from f are filled with 0 and extra columns are dropped. With no canonical
// order f is returned unchanged. Align(Align(f, c), c) equals Align(f, c).
func Align(f *Frame, canonical []string) *Frame {
	if len(canonical) == 0 {
		return f
	}

	index := make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		index[c] = i
	}

	out := &Frame{
		Columns: append([]string(nil), canonical...),
		Rows:    make([][]float64, len(f.Rows)),
	}
	for r, row := range f.Rows {
		aligned := make([]float64, len(canonical))
		for j, c := range canonical {
			if i, ok := index[c]; ok {
				aligned[j] = row[i]
			}
		}
		out.Rows[r] = aligned
	}
	return out
}
