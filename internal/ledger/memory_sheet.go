package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemorySheet is an in-process Sheet used by tests and local runs.
type MemorySheet struct {
	mu     sync.RWMutex
	header []string
	rows   [][]string
	keys   map[string]int
}

// NewMemorySheet returns a sheet with the given header row.
func NewMemorySheet(header ...string) *MemorySheet {
	return &MemorySheet{
		header: append([]string(nil), header...),
		keys:   map[string]int{},
	}
}

func (s *MemorySheet) Header(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.header...), nil
}

func (s *MemorySheet) AppendHeader(_ context.Context, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header = append(s.header, names...)
	return nil
}

func (s *MemorySheet) RowCount(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

func (s *MemorySheet) ReadRow(_ context.Context, position int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if position < 1 || position > len(s.rows) {
		return nil, fmt.Errorf("position %d: %w", position, ErrRowNotFound)
	}
	return append([]string(nil), s.rows[position-1]...), nil
}

func (s *MemorySheet) ReadColumn(_ context.Context, column int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.rows))
	for i, row := range s.rows {
		out[i] = cellAt(row, column)
	}
	return out, nil
}

func (s *MemorySheet) ReadAll(context.Context) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]string, len(s.rows))
	for i, row := range s.rows {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

func (s *MemorySheet) WriteCells(_ context.Context, position int, cells map[int]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if position < 1 || position > len(s.rows) {
		return fmt.Errorf("position %d: %w", position, ErrRowNotFound)
	}
	row := s.rows[position-1]
	for col, value := range cells {
		for len(row) <= col {
			row = append(row, "")
		}
		row[col] = value
	}
	s.rows[position-1] = row
	return nil
}

func (s *MemorySheet) AppendRow(_ context.Context, key string, cells []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" {
		if _, exists := s.keys[key]; exists {
			return 0, ErrDuplicateKey
		}
	}
	s.rows = append(s.rows, append([]string(nil), cells...))
	position := len(s.rows)
	if key != "" {
		s.keys[key] = position
	}
	return position, nil
}

// InTx runs fn against the sheet and restores the previous contents if fn fails.
func (s *MemorySheet) InTx(ctx context.Context, fn func(Sheet) error) error {
	snapshot := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// SetCell overwrites a single cell, bypassing the store. It exists so that
// operators and tests can reproduce hand edits.
func (s *MemorySheet) SetCell(position, column int, value string) {
	_ = s.WriteCells(context.Background(), position, map[int]string{column: value})
}

type memorySnapshot struct {
	header []string
	rows   [][]string
	keys   map[string]int
}

func (s *MemorySheet) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memorySnapshot{
		header: append([]string(nil), s.header...),
		rows:   make([][]string, len(s.rows)),
		keys:   make(map[string]int, len(s.keys)),
	}
	for i, row := range s.rows {
		snap.rows[i] = append([]string(nil), row...)
	}
	for k, v := range s.keys {
		snap.keys[k] = v
	}
	return snap
}

func (s *MemorySheet) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header = snap.header
	s.rows = snap.rows
	s.keys = snap.keys
}
