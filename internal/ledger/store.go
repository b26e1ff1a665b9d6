package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/clinicops-backend/internal/normalize"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
)

// Index is the advisory key -> position cache consulted before scanning.
type Index interface {
	Lookup(ctx context.Context, key string) (int, bool, error)
	Upsert(ctx context.Context, key string, position int, at time.Time) error
}

// Row is one decoded data row.
type Row struct {
	Position int
	Fields   Fields
}

// Key returns the row's business key.
func (r Row) Key() string {
	return r.Fields.Get(KeyField)
}

// UpsertResult describes the outcome of UpsertRow.
type UpsertResult struct {
	Row     Row
	Created bool
	Changed bool
}

// StoreParams configure a Store.
type StoreParams struct {
	Instance string
	Sheet    Sheet
	Index    Index
	Logger   *logger.Logger
	Clock    func() time.Time
}

// Store is the header-driven row store of one ledger instance. Callers are
// expected to serialize mutations (see internal/lock).
type Store struct {
	instance string
	sheet    Sheet
	index    Index
	logg     *logger.Logger
	now      func() time.Time
}

// NewStore validates params and builds a Store.
func NewStore(p StoreParams) (*Store, error) {
	if p.Sheet == nil {
		return nil, fmt.Errorf("ledger sheet required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(p.Instance) == "" {
		return nil, fmt.Errorf("ledger instance required")
	}
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{
		instance: p.Instance,
		sheet:    p.Sheet,
		index:    p.Index,
		logg:     p.Logger,
		now:      now,
	}, nil
}

// Instance returns the ledger instance name.
func (s *Store) Instance() string {
	return s.instance
}

// FindRowByKey returns the position of the row holding key.
func (s *Store) FindRowByKey(ctx context.Context, key string) (int, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, false, ErrMissingKey
	}
	cm, err := bindColumns(ctx, s.sheet)
	if err != nil {
		return 0, false, err
	}
	return s.find(ctx, s.sheet, cm, key)
}

// UpsertRow appends a row for key or merges fields into the existing one.
// Only the fields present are written; the business key is never rewritten.
func (s *Store) UpsertRow(ctx context.Context, key string, fields Fields) (UpsertResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return UpsertResult{}, ErrMissingKey
	}
	cm, err := bindColumns(ctx, s.sheet)
	if err != nil {
		return UpsertResult{}, err
	}
	pos, found, err := s.find(ctx, s.sheet, cm, key)
	if err != nil {
		return UpsertResult{}, err
	}
	return s.apply(ctx, s.sheet, cm, key, fields, pos, found)
}

// Row reads the row at position.
func (s *Store) Row(ctx context.Context, position int) (Row, error) {
	cm, err := bindColumns(ctx, s.sheet)
	if err != nil {
		return Row{}, err
	}
	cells, err := s.sheet.ReadRow(ctx, position)
	if err != nil {
		return Row{}, err
	}
	return Row{Position: position, Fields: cm.Decode(cells)}, nil
}

// Rows returns every row that carries a business key, in position order.
func (s *Store) Rows(ctx context.Context) ([]Row, error) {
	cm, err := bindColumns(ctx, s.sheet)
	if err != nil {
		return nil, err
	}
	all, err := s.sheet.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	out := make([]Row, 0, len(all))
	for i, cells := range all {
		row := Row{Position: i + 1, Fields: cm.Decode(cells)}
		if row.Key() == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// KeyPositions maps every business key to its first position.
func (s *Store) KeyPositions(ctx context.Context) (map[string]int, error) {
	cm, err := bindColumns(ctx, s.sheet)
	if err != nil {
		return nil, err
	}
	return s.keyPositions(ctx, s.sheet, cm)
}

func (s *Store) keyPositions(ctx context.Context, sheet Sheet, cm ColumnMap) (map[string]int, error) {
	keyCol, _ := cm.Column(KeyField)
	column, err := sheet.ReadColumn(ctx, keyCol)
	if err != nil {
		return nil, fmt.Errorf("read key column: %w", err)
	}
	out := make(map[string]int, len(column))
	for i, key := range column {
		if key == "" {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = i + 1
		}
	}
	return out, nil
}

func (s *Store) find(ctx context.Context, sheet Sheet, cm ColumnMap, key string) (int, bool, error) {
	keyCol, _ := cm.Column(KeyField)
	if s.index != nil {
		pos, ok, err := s.index.Lookup(ctx, key)
		switch {
		case err != nil:
			s.logg.Warn(s.logCtx(ctx, key), fmt.Sprintf("identity index lookup failed, scanning: %v", err))
		case ok:
			cells, readErr := sheet.ReadRow(ctx, pos)
			if readErr == nil && cellAt(cells, keyCol) == key {
				return pos, true, nil
			}
			if readErr != nil && !errors.Is(readErr, ErrRowNotFound) {
				return 0, false, readErr
			}
			s.logg.Debug(s.logg.WithField(s.logCtx(ctx, key), "hinted_position", pos), "identity index entry stale")
		}
	}
	return s.scan(ctx, sheet, keyCol, key)
}

func (s *Store) scan(ctx context.Context, sheet Sheet, keyCol int, key string) (int, bool, error) {
	column, err := sheet.ReadColumn(ctx, keyCol)
	if err != nil {
		return 0, false, fmt.Errorf("scan key column: %w", err)
	}
	for i, v := range column {
		if v == key {
			pos := i + 1
			s.touchIndex(ctx, key, pos)
			return pos, true, nil
		}
	}
	return 0, false, nil
}

// apply writes fields for key at a known position, or appends when !found.
func (s *Store) apply(ctx context.Context, sheet Sheet, cm ColumnMap, key string, fields Fields, pos int, found bool) (UpsertResult, error) {
	writes := fields.Clone()
	delete(writes, KeyField)
	delete(writes, FieldUpdatedAt)

	if !found {
		writes[KeyField] = key
		writes[FieldUpdatedAt] = normalize.FormatRevision(s.now())
		cells := cm.Row(writes)
		newPos, err := sheet.AppendRow(ctx, key, cells)
		switch {
		case err == nil:
			s.touchIndex(ctx, key, newPos)
			return UpsertResult{Row: Row{Position: newPos, Fields: cm.Decode(cells)}, Created: true, Changed: true}, nil
		case errors.Is(err, ErrDuplicateKey):
			keyCol, _ := cm.Column(KeyField)
			pos, found, err = s.scan(ctx, sheet, keyCol, key)
			if err != nil {
				return UpsertResult{}, err
			}
			if !found {
				return UpsertResult{}, fmt.Errorf("key %q reported duplicate but not found: %w", key, ErrDuplicateKey)
			}
			s.logg.Info(s.logCtx(ctx, key), "concurrent append detected, merging into existing row")
			delete(writes, KeyField)
			delete(writes, FieldUpdatedAt)
		default:
			return UpsertResult{}, fmt.Errorf("append row: %w", err)
		}
	}

	cells, err := sheet.ReadRow(ctx, pos)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("read row %d: %w", pos, err)
	}
	current := cm.Decode(cells)
	changed := Fields{}
	for f, v := range writes {
		if current.Get(f) != v {
			changed[f] = v
		}
	}
	if len(changed) == 0 {
		return UpsertResult{Row: Row{Position: pos, Fields: current}}, nil
	}
	changed[FieldUpdatedAt] = normalize.FormatRevision(s.now())
	if err := sheet.WriteCells(ctx, pos, cm.Encode(changed)); err != nil {
		return UpsertResult{}, fmt.Errorf("write row %d: %w", pos, err)
	}
	for f, v := range changed {
		current[f] = v
	}
	return UpsertResult{Row: Row{Position: pos, Fields: current}, Changed: true}, nil
}

func (s *Store) touchIndex(ctx context.Context, key string, pos int) {
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(ctx, key, pos, s.now()); err != nil {
		s.logg.Warn(s.logCtx(ctx, key), fmt.Sprintf("identity index update failed: %v", err))
	}
}

func (s *Store) logCtx(ctx context.Context, key string) context.Context {
	ctx = s.logg.WithInstance(ctx, s.instance)
	return s.logg.WithPaymentID(ctx, key)
}
