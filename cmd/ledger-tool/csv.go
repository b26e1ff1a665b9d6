package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/angelmondragon/clinicops-backend/internal/ledger"
)

// readRows decodes a CSV export whose first record is a header row. Header
// cells resolve through the ledger aliases; unknown columns are returned so
// the caller can report them.
func readRows(r io.Reader) ([]ledger.Fields, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	columns := make([]ledger.Field, len(header))
	var unknown []string
	keyed := false
	for i, cell := range header {
		f, ok := ledger.FieldForHeader(cell)
		if !ok {
			if strings.TrimSpace(cell) != "" {
				unknown = append(unknown, cell)
			}
			continue
		}
		columns[i] = f
		if f == ledger.KeyField {
			keyed = true
		}
	}
	if !keyed {
		return nil, unknown, fmt.Errorf("csv header has no %s column", ledger.KeyField)
	}

	var rows []ledger.Fields
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, unknown, fmt.Errorf("line %d: %w", line, err)
		}
		fields := ledger.Fields{}
		for i, value := range record {
			if i >= len(columns) || columns[i] == "" {
				continue
			}
			if v := strings.TrimSpace(value); v != "" {
				fields[columns[i]] = v
			}
		}
		if len(fields) == 0 {
			continue
		}
		rows = append(rows, fields)
	}
	return rows, unknown, nil
}
