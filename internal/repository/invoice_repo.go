package repository

import (
	"context"
	"errors"

	"github.com/paydue/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

// InvoiceRepository reads the synced invoice cache. The single write is the
// status/balance refresh after a pre-dispatch verification.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	RefreshStatus(ctx context.Context, id string, status domain.InvoiceStatus, balance float64) error
}

type GormInvoiceRepo struct {
	db *gorm.DB
}

func NewGormInvoiceRepo(db *gorm.DB) *GormInvoiceRepo {
	return &GormInvoiceRepo{db: db}
}

func (r *GormInvoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *GormInvoiceRepo) RefreshStatus(ctx context.Context, id string, status domain.InvoiceStatus, balance float64) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":  status,
			"balance": balance,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
