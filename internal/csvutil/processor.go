// Package csvutil reads query batches out of CSV files. Rows are handed to
// the parser keyed by header name, so column order in the file does not
// matter.
package csvutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ProcessorOptions configures CSV processing behavior.
type ProcessorOptions struct {
	// SkipInvalid controls whether to skip invalid rows or return an error.
	SkipInvalid bool
}

// ProcessCSV reads a CSV file and parses each row into type T. The parser
// receives the row as a header-keyed map with lowercased keys. Returns the
// parsed items or an error.
func ProcessCSV[T any](filename string, parser func(map[string]string) (T, error), opts ProcessorOptions) ([]T, error) {
	csvFile, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer func() { _ = csvFile.Close() }()

	if fi, err := csvFile.Stat(); err != nil || fi.Size() == 0 {
		return nil, fmt.Errorf("CSV file is empty or cannot be read")
	}

	reader := csv.NewReader(csvFile)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %v", err)
	}
	for i, col := range header {
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}

	var items []T

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Error reading row", "error", err)
			continue
		}

		fields := make(map[string]string, len(header))
		for i, value := range row {
			if i >= len(header) {
				break
			}
			fields[header[i]] = strings.TrimSpace(value)
		}

		item, err := parser(fields)
		if err != nil {
			if opts.SkipInvalid {
				slog.Warn("Skipping invalid row", "error", err)
				continue
			}
			return nil, fmt.Errorf("invalid row: %v", err)
		}

		items = append(items, item)
	}

	return items, nil
}
