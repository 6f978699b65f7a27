package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"whale-futures/models"
)

// WriteCSV writes a header line and one line per row. Lines end in "\n" and
// fields containing a comma, a quote or a line break are quoted.
func WriteCSV(w io.Writer, rows []models.Position, loc *time.Location) error {
	columns := Columns(loc)
	cw := csv.NewWriter(w)

	record := make([]string, len(columns))
	for i, c := range columns {
		record[i] = c.Header
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		for i, c := range columns {
			record[i] = c.Value(row)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %s: %w", row.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// CSV renders rows as a single string without a trailing newline, the form
// sent to the summarizers
func CSV(rows []models.Position, loc *time.Location) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows, loc); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Filename names a CSV download taken at t
func Filename(t time.Time) string {
	return "positions-" + t.UTC().Format("20060102-150405") + ".csv"
}
