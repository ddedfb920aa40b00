package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	breeze "github.com/beamo-co/breeze-go"
)

// DeliveredTransaction is the row written for every delivery
type DeliveredTransaction struct {
	ID          string    `gorm:"primaryKey;size:128"`
	ProductID   string    `gorm:"size:128;index"`
	ProductType string    `gorm:"size:32"`
	Source      string    `gorm:"size:32"`
	DeliveredAt time.Time `gorm:"index"`
}

// TableName overrides the gorm default
func (DeliveredTransaction) TableName() string {
	return "breeze_delivered_transactions"
}

// GormLedger records deliveries in a SQL table. The primary key on the
// transaction id makes MarkDelivered atomic across processes.
type GormLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormLedger creates a ledger on db and migrates its table
func NewGormLedger(db *gorm.DB, opts ...Option) (*GormLedger, error) {
	cfg := newConfig(opts)
	if err := db.AutoMigrate(&DeliveredTransaction{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger table: %w", err)
	}
	return &GormLedger{db: db, now: cfg.now}, nil
}

// MarkDelivered records tx and reports whether its id was new
func (l *GormLedger) MarkDelivered(ctx context.Context, tx breeze.CompletedTransaction) (bool, error) {
	row := DeliveredTransaction{
		ID:          tx.ID,
		ProductID:   tx.ProductID,
		ProductType: string(tx.ProductType),
		Source:      string(tx.Source),
		DeliveredAt: l.now(),
	}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record delivery %s: %w", tx.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Exists reports whether id has been recorded
func (l *GormLedger) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&DeliveredTransaction{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}

// Prune deletes records delivered before cutoff and returns how many were removed
func (l *GormLedger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("delivered_at < ?", cutoff).
		Delete(&DeliveredTransaction{})
	return res.RowsAffected, res.Error
}

var _ breeze.DeliveryLedger = (*GormLedger)(nil)
