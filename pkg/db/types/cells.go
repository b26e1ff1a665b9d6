package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Cells stores one sheet row as a JSON array of strings so the same column
// works on Postgres (jsonb/text) and SQLite (text).
type Cells []string

func (c *Cells) Scan(src any) error {
	if src == nil {
		*c = Cells{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return c.parse([]byte(v))
	case []byte:
		return c.parse(v)
	default:
		return fmt.Errorf("Cells: unsupported Scan type %T", src)
	}
}

func (c Cells) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, fmt.Errorf("Cells: marshal: %w", err)
	}
	return string(b), nil
}

func (c *Cells) parse(b []byte) error {
	if len(b) == 0 {
		*c = Cells{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("Cells: parse: %w", err)
	}
	*c = Cells(out)
	return nil
}
