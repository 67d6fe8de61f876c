package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// readCSV loads a numeric CSV file (no header). Lines starting with '#'
// are skipped.
func readCSV(filename string) ([][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("read %s: empty file", filename)
	}

	data := make([][]float64, len(records))
	for i, record := range records {
		data[i] = make([]float64, len(record))
		for j, val := range record {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d, col %d: %w", filename, i, j, err)
			}
			data[i][j] = f
		}
	}

	return data, nil
}

// readColumn loads a single-column CSV file, one value per row.
func readColumn(filename string) ([]float64, error) {
	rows, err := readCSV(filename)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != 1 {
			return nil, fmt.Errorf("%s: row %d has %d columns, want 1", filename, i, len(row))
		}
		out[i] = row[0]
	}
	return out, nil
}

// writeCSV saves rows to a CSV file with full float64 precision.
func writeCSV(filename string, rows [][]float64) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	writer := csv.NewWriter(file)
	for _, row := range rows {
		record := make([]string, len(row))
		for j, val := range row {
			record[j] = strconv.FormatFloat(val, 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
