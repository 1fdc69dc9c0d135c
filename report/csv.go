package report

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// cell content for a formula that failed on the flow
const failedCell = "error"

// csvRow formats a row; bounds are in seconds with six decimals
func (t *Table) csvRow(row Row, now time.Time) []string {
	record := []string{now.Format("2006-01-02 15:04:05.000000"), row.Flow}
	for _, label := range t.Labels {
		record = append(record, row.Labels[label])
	}
	for _, formula := range t.Formulas {
		bound, present := row.Bounds[formula]
		switch {
		case present:
			record = append(record, strconv.FormatFloat(bound, 'f', 6, 64))
		case len(row.Errors[formula]) > 0:
			record = append(record, failedCell)
		default:
			record = append(record, "")
		}
	}
	return record
}

// WriteCSV appends the rows of t to the csv file filename, stamped with now.  A header
// is written first when the file does not exist yet, so successive runs of a study
// accumulate in one file.
func WriteCSV(filename string, t *Table, now time.Time) error {
	_, serr := os.Stat(filename)
	writeHeader := os.IsNotExist(serr)

	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", filename)
	}
	defer file.Close()

	csvWriter := csv.NewWriter(file)
	if writeHeader {
		if err := csvWriter.Write(t.Header()); err != nil {
			return errors.Wrap(err, "failed to write table description row")
		}
	}
	for _, row := range t.Rows {
		if err := csvWriter.Write(t.csvRow(row, now)); err != nil {
			return errors.Wrapf(err, "failed to write row of flow %s", row.Flow)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return errors.Wrap(err, "csv writer failed after flush")
	}
	return nil
}
