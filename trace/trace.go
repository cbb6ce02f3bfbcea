// Package trace holds the samples a chain retains: one row per kept
// iteration and one column per monitored node.
package trace

import (
	"iter"

	"github.com/pkg/errors"
)

// Trace is the immutable sample table of one chain.
type Trace struct {
	Chain   int
	Columns []string

	rows  [][]float64
	index map[string]int
}

// New copies rows into a trace. Every row needs one value per column.
func New(chain int, columns []string, rows [][]float64) (*Trace, error) {
	b := NewBuffer(chain, columns, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, errors.Errorf("Row %d has %d values for %d columns", i, len(r), len(columns))
		}
		b.Append(r)
	}
	return b.Trace(), nil
}

func newTrace(chain int, columns []string, rows [][]float64) *Trace {
	t := &Trace{
		Chain:   chain,
		Columns: columns,
		rows:    rows,
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		t.index[c] = i
	}
	return t
}

// Len is the number of rows
func (t *Trace) Len() int { return len(t.rows) }

// Row returns a copy of row i
func (t *Trace) Row(i int) []float64 {
	cp := make([]float64, len(t.rows[i]))
	copy(cp, t.rows[i])
	return cp
}

// Rows yields each row index and a copy of the row
func (t *Trace) Rows() iter.Seq2[int, []float64] {
	return func(yield func(int, []float64) bool) {
		for i := range t.rows {
			if !yield(i, t.Row(i)) {
				return
			}
		}
	}
}

// Has reports whether the trace has a column
func (t *Trace) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column
func (t *Trace) Column(name string) ([]float64, error) {
	c, ok := t.index[name]
	if !ok {
		return nil, errors.Errorf("No column %s in trace of chain %d", name, t.Chain)
	}
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[c]
	}
	return out, nil
}

// Value returns one cell
func (t *Trace) Value(row int, name string) (float64, error) {
	c, ok := t.index[name]
	if !ok {
		return 0, errors.Errorf("No column %s in trace of chain %d", name, t.Chain)
	}
	if row < 0 || row >= len(t.rows) {
		return 0, errors.Errorf("Row %d out of range (%d rows)", row, len(t.rows))
	}
	return t.rows[row][c], nil
}

// Buffer accumulates rows for one chain while it runs. It is owned by that
// chain until Trace hands the rows off.
type Buffer struct {
	chain   int
	columns []string
	rows    [][]float64
}

// NewBuffer starts an empty buffer
func NewBuffer(chain int, columns []string, capacity int) *Buffer {
	cols := make([]string, len(columns))
	copy(cols, columns)
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{chain: chain, columns: cols, rows: make([][]float64, 0, capacity)}
}

// Append copies a row in
func (b *Buffer) Append(row []float64) {
	cp := make([]float64, len(row))
	copy(cp, row)
	b.rows = append(b.rows, cp)
}

// Len is the number of rows so far
func (b *Buffer) Len() int { return len(b.rows) }

// Trace hands the rows to an immutable Trace. The buffer is empty
// afterwards.
func (b *Buffer) Trace() *Trace {
	t := newTrace(b.chain, b.columns, b.rows)
	b.rows = nil
	return t
}
