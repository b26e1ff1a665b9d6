package ledger

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateKey is returned by Sheet.AppendRow when the business key is already present.
	ErrDuplicateKey = errors.New("ledger: duplicate business key")
	// ErrRowNotFound is returned for positions outside the data range.
	ErrRowNotFound = errors.New("ledger: row not found")
	// ErrMissingKey is returned when a mutation carries an empty business key.
	ErrMissingKey = errors.New("ledger: business key is required")
)

// Sheet is a header-indexed table of string cells. Data rows are addressed by
// 1-based position and are never removed. Column indexes are 0-based offsets
// into the header.
type Sheet interface {
	Header(ctx context.Context) ([]string, error)
	AppendHeader(ctx context.Context, names ...string) error
	RowCount(ctx context.Context) (int, error)
	ReadRow(ctx context.Context, position int) ([]string, error)
	ReadColumn(ctx context.Context, column int) ([]string, error)
	ReadAll(ctx context.Context) ([][]string, error)
	WriteCells(ctx context.Context, position int, cells map[int]string) error
	AppendRow(ctx context.Context, key string, cells []string) (int, error)
}

// Transactional is implemented by sheets that can apply several writes atomically.
type Transactional interface {
	InTx(ctx context.Context, fn func(Sheet) error) error
}

func cellAt(cells []string, column int) string {
	if column < 0 || column >= len(cells) {
		return ""
	}
	return cells[column]
}
