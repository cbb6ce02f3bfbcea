package trace

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// WriteCSV writes traces as one table with leading chain and row columns.
// All traces must share the same columns.
func WriteCSV(w io.Writer, traces ...*Trace) error {
	if len(traces) < 1 {
		return errors.Errorf("No traces to write")
	}
	columns := traces[0].Columns
	for _, t := range traces[1:] {
		if !sameColumns(columns, t.Columns) {
			return errors.Errorf("Chain %d columns differ from chain %d", t.Chain, traces[0].Chain)
		}
	}

	cw := csv.NewWriter(w)
	header := append([]string{"chain", "row"}, columns...)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "Could not write CSV header")
	}

	record := make([]string, len(header))
	for _, t := range traces {
		for i, row := range t.rows {
			record[0] = strconv.Itoa(t.Chain)
			record[1] = strconv.Itoa(i)
			for j, v := range row {
				record[j+2] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := cw.Write(record); err != nil {
				return errors.Wrapf(err, "Could not write chain %d row %d", t.Chain, i)
			}
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "Could not flush CSV")
}

// ReadCSV reads what WriteCSV wrote, one trace per chain in order of first
// appearance.
func ReadCSV(r io.Reader) ([]*Trace, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "Could not read CSV")
	}
	if len(records) < 1 || len(records[0]) < 2 || records[0][0] != "chain" || records[0][1] != "row" {
		return nil, errors.Errorf("CSV header must start with chain,row")
	}
	columns := records[0][2:]

	var order []int
	rows := make(map[int][][]float64)
	for n, rec := range records[1:] {
		chain, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, errors.Wrapf(err, "Line %d: bad chain", n+2)
		}
		row := make([]float64, len(columns))
		for j := range columns {
			if row[j], err = strconv.ParseFloat(rec[j+2], 64); err != nil {
				return nil, errors.Wrapf(err, "Line %d: bad value for %s", n+2, columns[j])
			}
		}
		if _, seen := rows[chain]; !seen {
			order = append(order, chain)
		}
		rows[chain] = append(rows[chain], row)
	}

	traces := make([]*Trace, 0, len(order))
	for _, chain := range order {
		traces = append(traces, newTrace(chain, columns, rows[chain]))
	}
	return traces, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
