package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/clinicops-backend/pkg/db"
	"github.com/angelmondragon/clinicops-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/clinicops-backend/pkg/db/types"
	"gorm.io/gorm"
)

const (
	businessKeyIndex  = "ux_ledger_sheet_rows_key"
	businessKeyColumn = "ledger_sheet_rows.business_key"
)

// SQLSheet stores one ledger instance in the ledger_sheet_headers and
// ledger_sheet_rows tables.
type SQLSheet struct {
	db       *gorm.DB
	instance string
}

// NewSQLSheet binds a sheet to an instance name.
func NewSQLSheet(conn *gorm.DB, instance string) (*SQLSheet, error) {
	if conn == nil {
		return nil, fmt.Errorf("ledger sheet db required")
	}
	if instance == "" {
		return nil, fmt.Errorf("ledger sheet instance required")
	}
	return &SQLSheet{db: conn, instance: instance}, nil
}

// WithTx returns a copy bound to tx.
func (s *SQLSheet) WithTx(tx *gorm.DB) *SQLSheet {
	if tx == nil {
		return s
	}
	return &SQLSheet{db: tx, instance: s.instance}
}

func (s *SQLSheet) Header(ctx context.Context) ([]string, error) {
	var headers []models.LedgerSheetHeader
	if err := s.db.WithContext(ctx).
		Where("instance = ?", s.instance).
		Order("position ASC").
		Find(&headers).Error; err != nil {
		return nil, err
	}
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = h.Name
	}
	return out, nil
}

func (s *SQLSheet) AppendHeader(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	var next int64
	if err := s.db.WithContext(ctx).
		Model(&models.LedgerSheetHeader{}).
		Where("instance = ?", s.instance).
		Select("COALESCE(MAX(position), -1) + 1").
		Scan(&next).Error; err != nil {
		return err
	}
	headers := make([]models.LedgerSheetHeader, len(names))
	for i, name := range names {
		headers[i] = models.LedgerSheetHeader{
			Instance: s.instance,
			Position: int(next) + i,
			Name:     name,
		}
	}
	return s.db.WithContext(ctx).Create(&headers).Error
}

func (s *SQLSheet) RowCount(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.LedgerSheetRow{}).
		Where("instance = ?", s.instance).
		Select("COALESCE(MAX(position), 0)").
		Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *SQLSheet) ReadRow(ctx context.Context, position int) ([]string, error) {
	row, err := s.loadRow(ctx, position)
	if err != nil {
		return nil, err
	}
	return []string(row.Cells), nil
}

func (s *SQLSheet) ReadColumn(ctx context.Context, column int) ([]string, error) {
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = cellAt(row, column)
	}
	return out, nil
}

func (s *SQLSheet) ReadAll(ctx context.Context) ([][]string, error) {
	var rows []models.LedgerSheetRow
	if err := s.db.WithContext(ctx).
		Where("instance = ?", s.instance).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return [][]string{}, nil
	}
	out := make([][]string, rows[len(rows)-1].Position)
	for _, row := range rows {
		out[row.Position-1] = []string(row.Cells)
	}
	return out, nil
}

func (s *SQLSheet) WriteCells(ctx context.Context, position int, cells map[int]string) error {
	row, err := s.loadRow(ctx, position)
	if err != nil {
		return err
	}
	updated := append(dbtypes.Cells(nil), row.Cells...)
	for col, value := range cells {
		for len(updated) <= col {
			updated = append(updated, "")
		}
		updated[col] = value
	}
	return s.db.WithContext(ctx).
		Model(&models.LedgerSheetRow{}).
		Where("instance = ? AND position = ?", s.instance, position).
		Update("cells", updated).Error
}

func (s *SQLSheet) AppendRow(ctx context.Context, key string, cells []string) (int, error) {
	position, err := s.RowCount(ctx)
	if err != nil {
		return 0, err
	}
	position++
	row := models.LedgerSheetRow{
		Instance: s.instance,
		Position: position,
		Cells:    dbtypes.Cells(append([]string(nil), cells...)),
	}
	if key != "" {
		row.BusinessKey = &key
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if db.IsUniqueViolation(err, businessKeyIndex) || db.IsUniqueViolation(err, businessKeyColumn) {
			return 0, ErrDuplicateKey
		}
		return 0, err
	}
	return position, nil
}

// InTx runs fn inside a database transaction.
func (s *SQLSheet) InTx(ctx context.Context, fn func(Sheet) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.WithTx(tx))
	})
}

func (s *SQLSheet) loadRow(ctx context.Context, position int) (*models.LedgerSheetRow, error) {
	var row models.LedgerSheetRow
	err := s.db.WithContext(ctx).
		Where("instance = ? AND position = ?", s.instance, position).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("position %d: %w", position, ErrRowNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
