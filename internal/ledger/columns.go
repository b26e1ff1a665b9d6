package ledger

import (
	"context"
	"fmt"
)

// ColumnMap binds logical fields to header offsets.
type ColumnMap struct {
	cols  map[Field]int
	width int
}

// ResolveColumns maps header cells to fields. The first header matching a
// field wins; unknown headers are ignored. missing lists the logical fields
// absent from the header, in AllFields order.
func ResolveColumns(header []string) (cm ColumnMap, missing []Field) {
	cm = ColumnMap{cols: make(map[Field]int, len(AllFields)), width: len(header)}
	for i, name := range header {
		field, ok := FieldForHeader(name)
		if !ok {
			continue
		}
		if _, dup := cm.cols[field]; dup {
			continue
		}
		cm.cols[field] = i
	}
	for _, f := range AllFields {
		if _, ok := cm.cols[f]; !ok {
			missing = append(missing, f)
		}
	}
	return cm, missing
}

// Column returns the offset of f.
func (c ColumnMap) Column(f Field) (int, bool) {
	i, ok := c.cols[f]
	return i, ok
}

// Width is the number of header cells.
func (c ColumnMap) Width() int {
	return c.width
}

// Decode reads a row's cells into Fields.
func (c ColumnMap) Decode(cells []string) Fields {
	out := make(Fields, len(c.cols))
	for f, i := range c.cols {
		out[f] = cellAt(cells, i)
	}
	return out
}

// Encode lays fields out as cell writes. Fields without a column are dropped.
func (c ColumnMap) Encode(fields Fields) map[int]string {
	out := make(map[int]string, len(fields))
	for f, v := range fields {
		if i, ok := c.cols[f]; ok {
			out[i] = v
		}
	}
	return out
}

// Row renders fields as a full-width cell slice.
func (c ColumnMap) Row(fields Fields) []string {
	cells := make([]string, c.width)
	for i, v := range c.Encode(fields) {
		cells[i] = v
	}
	return cells
}

// bindColumns resolves the header, appending any missing logical fields.
func bindColumns(ctx context.Context, sheet Sheet) (ColumnMap, error) {
	header, err := sheet.Header(ctx)
	if err != nil {
		return ColumnMap{}, fmt.Errorf("read header: %w", err)
	}
	cm, missing := ResolveColumns(header)
	if len(missing) == 0 {
		return cm, nil
	}
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = string(f)
	}
	if err := sheet.AppendHeader(ctx, names...); err != nil {
		return ColumnMap{}, fmt.Errorf("append header columns: %w", err)
	}
	for i, f := range missing {
		cm.cols[f] = len(header) + i
	}
	cm.width = len(header) + len(missing)
	return cm, nil
}
