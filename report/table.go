// Package report turns the outcomes of a latency analysis into tables, csv
// files, charts, a result store, and metrics.
package report

import (
	"golang.org/x/exp/slices"

	"github.com/iti/tsnlat"
)

// Row holds the bounds of one flow, one per formula, with the labels of the run
// that produced them
type Row struct {
	Flow   string
	Labels map[string]string
	Bounds map[string]float64 // seconds, by formula
	Errors map[string]string  // failure message, by formula
}

// Table is a set of rows sharing label and formula columns
type Table struct {
	Labels   []string
	Formulas []string
	Rows     []Row
}

// CreateTable is a constructor.  labels name the extra columns a run is identified by,
// formulas the columns holding bounds.
func CreateTable(labels, formulas []string) *Table {
	t := new(Table)
	t.Labels = slices.Clone(labels)
	t.Formulas = slices.Clone(formulas)
	t.Rows = make([]Row, 0)
	return t
}

// AddOutcomes adds one row per flow found in outcomes, in order of first appearance.
// Formulas not yet among the table's columns are added to them.
func (t *Table) AddOutcomes(outcomes []tsnlat.FlowOutcome, labels map[string]string) {
	rowOf := make(map[string]int)
	for _, outcome := range outcomes {
		if !slices.Contains(t.Formulas, outcome.Formula) {
			t.Formulas = append(t.Formulas, outcome.Formula)
		}

		idx, present := rowOf[outcome.FlowID]
		if !present {
			row := Row{
				Flow:   outcome.FlowID,
				Labels: make(map[string]string),
				Bounds: make(map[string]float64),
				Errors: make(map[string]string),
			}
			for key, value := range labels {
				row.Labels[key] = value
			}
			t.Rows = append(t.Rows, row)
			idx = len(t.Rows) - 1
			rowOf[outcome.FlowID] = idx
		}

		if outcome.Err != nil {
			t.Rows[idx].Errors[outcome.Formula] = outcome.Err.Error()
		} else {
			t.Rows[idx].Bounds[outcome.Formula] = outcome.Result.Total
		}
	}
}

// Header returns the column names
func (t *Table) Header() []string {
	header := []string{"ExecutionTime", "Flow"}
	header = append(header, t.Labels...)
	return append(header, t.Formulas...)
}
