package repository

import (
	"context"
	"errors"

	"github.com/Otuja/bookshop/models"

	"gorm.io/gorm"
)

// PaymentRepository defines the interface for payment transaction data access
type PaymentRepository interface {
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	FindByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error)
	MarkSettled(ctx context.Context, reference, status, rawResponse string) (bool, error)
	UpdateRawResponse(ctx context.Context, reference, rawResponse string) error
}

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new instance of GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *GormPaymentRepository) FindByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// MarkSettled moves a pending transaction into a terminal status and stores
// the provider payload in the same statement. The status guard means exactly
// one of any number of concurrent duplicate deliveries wins; the rest see
// RowsAffected == 0.
func (r *GormPaymentRepository) MarkSettled(ctx context.Context, reference, status, rawResponse string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("reference = ? AND status = ?", reference, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"raw_response": rawResponse,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateRawResponse refreshes the stored provider payload without touching
// status. Last notification wins; the payload is an audit trail.
func (r *GormPaymentRepository) UpdateRawResponse(ctx context.Context, reference, rawResponse string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("reference = ?", reference).
		Update("raw_response", rawResponse).Error
}
