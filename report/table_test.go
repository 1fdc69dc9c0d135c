package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iti/tsnlat"
)

// sampleOutcomes has flow f1 bounded by both formulas and flow f2 failing under ba2021
func sampleOutcomes() []tsnlat.FlowOutcome {
	hop := tsnlat.HopResult{
		Index:        0,
		Queue:        tsnlat.QueueKey{Node: "A", Port: "S", Class: 6},
		Transmission: 12e-6,
		Total:        12.4e-6,
	}
	hop.Delay = 0.4e-6
	hop.Blocking = 0.4e-6

	return []tsnlat.FlowOutcome{
		{FlowID: "f1", Formula: tsnlat.Q2022ID,
			Result: &tsnlat.LatencyResult{FlowID: "f1", Formula: tsnlat.Q2022ID, Total: 12.4e-6, Hops: []tsnlat.HopResult{hop}}},
		{FlowID: "f1", Formula: tsnlat.BA2021ID,
			Result: &tsnlat.LatencyResult{FlowID: "f1", Formula: tsnlat.BA2021ID, Total: 250e-6}},
		{FlowID: "f2", Formula: tsnlat.Q2022ID,
			Result: &tsnlat.LatencyResult{FlowID: "f2", Formula: tsnlat.Q2022ID, Total: 1.25e-3}},
		{FlowID: "f2", Formula: tsnlat.BA2021ID, Err: errors.New("class load exceeds idle slope")},
	}
}

func TestTableAddOutcomes(t *testing.T) {
	table := CreateTable([]string{"Name"}, []string{tsnlat.Q2022ID})
	table.AddOutcomes(sampleOutcomes(), map[string]string{"Name": "FixedCMI", "Ignored": "x"})

	assert.Equal(t, []string{tsnlat.Q2022ID, tsnlat.BA2021ID}, table.Formulas)
	assert.Equal(t, []string{"ExecutionTime", "Flow", "Name", tsnlat.Q2022ID, tsnlat.BA2021ID}, table.Header())
	require.Len(t, table.Rows, 2)

	assert.Equal(t, "f1", table.Rows[0].Flow)
	assert.Equal(t, 250e-6, table.Rows[0].Bounds[tsnlat.BA2021ID])
	assert.Equal(t, "FixedCMI", table.Rows[0].Labels["Name"])

	assert.Equal(t, "f2", table.Rows[1].Flow)
	assert.NotContains(t, table.Rows[1].Bounds, tsnlat.BA2021ID)
	assert.Contains(t, table.Rows[1].Errors[tsnlat.BA2021ID], "idle slope")

	// a second run adds rows, not columns it already has
	table.AddOutcomes(sampleOutcomes()[:1], map[string]string{"Name": "FlowRate"})
	require.Len(t, table.Rows, 3)
	assert.Len(t, table.Formulas, 2)
	assert.Equal(t, "FlowRate", table.Rows[2].Labels["Name"])
}

func readCSV(t *testing.T, filename string) [][]string {
	t.Helper()
	file, err := os.Open(filename)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteCSV(t *testing.T) {
	table := CreateTable([]string{"Name"}, nil)
	table.AddOutcomes(sampleOutcomes(), map[string]string{"Name": "FixedCMI"})

	filename := filepath.Join(t.TempDir(), "bounds.csv")
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, WriteCSV(filename, table, now))

	records := readCSV(t, filename)
	require.Len(t, records, 3)
	assert.Equal(t, table.Header(), records[0])
	assert.Equal(t, []string{"2024-05-01 10:30:00.000000", "f1", "FixedCMI", "0.000012", "0.000250"}, records[1])
	assert.Equal(t, []string{"2024-05-01 10:30:00.000000", "f2", "FixedCMI", "0.001250", failedCell}, records[2])

	// a second write appends rows only
	require.NoError(t, WriteCSV(filename, table, now.Add(time.Minute)))
	records = readCSV(t, filename)
	require.Len(t, records, 5)
	assert.Equal(t, "2024-05-01 10:31:00.000000", records[3][0])
}
