package mirror

import (
	"context"

	"github.com/angelmondragon/clinicops-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for mirrored payment orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, orders ...models.PaymentOrder) error
	FindByID(ctx context.Context, id string) (*models.PaymentOrder, error)
	ListByPatient(ctx context.Context, patientID string) ([]models.PaymentOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a mirror repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// notOlder keeps a mirrored row when the incoming snapshot carries an older
// ledger revision than the one already stored.
var notOlder = clause.Where{Exprs: []clause.Expression{clause.Expr{
	SQL: "payment_orders.ledger_updated_at IS NULL OR excluded.ledger_updated_at IS NULL OR payment_orders.ledger_updated_at <= excluded.ledger_updated_at",
}}}

// Upsert inserts orders, overwriting every column on primary-key conflict
// unless the stored row is newer than the incoming one.
func (r *repository) Upsert(ctx context.Context, orders ...models.PaymentOrder) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			Where:     notOlder,
			UpdateAll: true,
		}).
		Create(&orders).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByPatient(ctx context.Context, patientID string) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
