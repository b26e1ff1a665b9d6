package models

import (
	"time"

	dbtypes "github.com/angelmondragon/clinicops-backend/pkg/db/types"
)

// LedgerSheetHeader holds the header row of one ledger instance, one record per column.
type LedgerSheetHeader struct {
	Instance string `gorm:"column:instance;primaryKey"`
	Position int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	Name     string `gorm:"column:name;not null"`
}

func (LedgerSheetHeader) TableName() string { return "ledger_sheet_headers" }

// LedgerSheetRow is one data row. Position is 1-based and never reused.
type LedgerSheetRow struct {
	Instance    string        `gorm:"column:instance;primaryKey;uniqueIndex:ux_ledger_sheet_rows_key,priority:1"`
	Position    int           `gorm:"column:position;primaryKey;autoIncrement:false"`
	BusinessKey *string       `gorm:"column:business_key;uniqueIndex:ux_ledger_sheet_rows_key,priority:2"`
	Cells       dbtypes.Cells `gorm:"column:cells;type:text;not null"`
	UpdatedAt   time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

func (LedgerSheetRow) TableName() string { return "ledger_sheet_rows" }
