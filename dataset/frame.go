// Package dataset holds the string-celled tables that move between the
// cleaning, split, training and inference stages, together with CSV I/O.
//
// Cells are kept as the raw strings read from disk so that a table can be
// round-tripped byte for byte. Numeric views are produced on demand.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// missingTokens are the spellings treated as a null cell. They follow the
// defaults of the CSV readers the raw UCI dumps were produced with.
var missingTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"null": {}, "NULL": {}, "None": {}, "<NA>": {}, "#N/A": {}, "#NA": {}, "NA/NaN": {},
	"1.#IND": {}, "1.#QNAN": {}, "-1.#IND": {}, "-1.#QNAN": {}, "#N/A N/A": {},
}

// IsMissing reports whether a cell represents a null value.
func IsMissing(cell string) bool {
	_, ok := missingTokens[strings.TrimSpace(cell)]
	return ok
}

// FormatFloat renders v with the shortest representation that round-trips.
// Integral values print without a decimal point.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Frame is an ordered set of named columns over rows of string cells.
type Frame struct {
	Name string

	columns []string
	index   map[string]int
	rows    [][]string
}

// New returns an empty frame with the given columns.
func New(name string, columns ...string) *Frame {
	f := &Frame{Name: name}
	f.setColumns(columns)
	return f
}

func (f *Frame) setColumns(columns []string) {
	f.columns = append([]string(nil), columns...)
	f.index = make(map[string]int, len(columns))
	for i, c := range columns {
		f.index[c] = i
	}
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// NRows returns the number of data rows.
func (f *Frame) NRows() int { return len(f.rows) }

// NCols returns the number of columns.
func (f *Frame) NCols() int { return len(f.columns) }

// Has reports whether the frame has the named column.
func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

// AppendRow adds a row. The cell count must match the column count.
func (f *Frame) AppendRow(cells ...string) error {
	if len(cells) != len(f.columns) {
		return errors.NewSchemaError(f.Name, fmt.Sprintf("row has %d cells, expected %d", len(cells), len(f.columns)))
	}
	f.rows = append(f.rows, append([]string(nil), cells...))
	return nil
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []string {
	return append([]string(nil), f.rows[i]...)
}

// Get returns the cell at row i of column. Unknown columns yield "".
func (f *Frame) Get(i int, column string) string {
	j, ok := f.index[column]
	if !ok {
		return ""
	}
	return f.rows[i][j]
}

// Set overwrites a cell. Unknown columns are ignored.
func (f *Frame) Set(i int, column, value string) {
	if j, ok := f.index[column]; ok {
		f.rows[i][j] = value
	}
}

// Column returns a copy of the named column.
func (f *Frame) Column(column string) ([]string, error) {
	j, ok := f.index[column]
	if !ok {
		return nil, errors.NewMissingColumnError(f.Name, column)
	}
	out := make([]string, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[j]
	}
	return out, nil
}

// Float parses the named column. Missing cells become NaN; any other
// unparsable cell is an error.
func (f *Frame) Float(column string) ([]float64, error) {
	cells, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		if IsMissing(c) {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, errors.NewSchemaError(f.Name, fmt.Sprintf("column %q row %d: %q is not numeric", column, i, c))
		}
		out[i] = v
	}
	return out, nil
}

// Drop returns a new frame without the named columns. Absent names are
// ignored.
func (f *Frame) Drop(columns ...string) *Frame {
	drop := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}
	var keep []string
	for _, c := range f.columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	out, _ := f.Select(keep...)
	return out
}

// Select returns a new frame holding only the named columns, in the given
// order.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	pos := make([]int, len(columns))
	for k, c := range columns {
		j, ok := f.index[c]
		if !ok {
			return nil, errors.NewMissingColumnError(f.Name, c)
		}
		pos[k] = j
	}
	out := New(f.Name, columns...)
	out.rows = make([][]string, len(f.rows))
	for i, row := range f.rows {
		cells := make([]string, len(pos))
		for k, j := range pos {
			cells[k] = row[j]
		}
		out.rows[i] = cells
	}
	return out, nil
}

// Take returns a new frame with the given rows, in the given order.
func (f *Frame) Take(rows []int) *Frame {
	out := New(f.Name, f.columns...)
	out.rows = make([][]string, len(rows))
	for k, i := range rows {
		out.rows[k] = append([]string(nil), f.rows[i]...)
	}
	return out
}

// WithColumn returns a new frame with column appended, or replaced in place
// when it already exists.
func (f *Frame) WithColumn(column string, values []string) (*Frame, error) {
	if len(values) != len(f.rows) {
		return nil, errors.NewDimensionError("Frame.WithColumn", len(f.rows), len(values), 0)
	}
	cols := f.columns
	j, exists := f.index[column]
	if !exists {
		cols = append(append([]string(nil), f.columns...), column)
		j = len(f.columns)
	}
	out := New(f.Name, cols...)
	out.rows = make([][]string, len(f.rows))
	for i, row := range f.rows {
		cells := make([]string, len(cols))
		copy(cells, row)
		cells[j] = values[i]
		out.rows[i] = cells
	}
	return out, nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := New(f.Name, f.columns...)
	out.rows = make([][]string, len(f.rows))
	for i, row := range f.rows {
		out.rows[i] = append([]string(nil), row...)
	}
	return out
}
