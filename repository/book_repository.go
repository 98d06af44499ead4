package repository

import (
	"context"
	"errors"

	"github.com/Otuja/bookshop/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientStock is returned when a guarded stock decrement finds
	// fewer copies than requested
	ErrInsufficientStock = errors.New("insufficient stock")
)

// BookRepository defines catalog data access
type BookRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
	Save(ctx context.Context, book *models.Book) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	AddStock(ctx context.Context, id uuid.UUID, quantity int) error
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
}

// GormBookRepository implements BookRepository using GORM
type GormBookRepository struct {
	db *gorm.DB
}

// NewGormBookRepository creates a new instance of GormBookRepository
func NewGormBookRepository(db *gorm.DB) BookRepository {
	return &GormBookRepository{db: db}
}

func (r *GormBookRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&book).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &book, nil
}

func (r *GormBookRepository) Save(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Save(book).Error
}

// Update writes the given catalog columns only, so a stale in-memory
// stock_quantity is never written back over concurrent stock mutations.
func (r *GormBookRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddStock tops up stock as a relative increment in a single statement,
// so it commutes with any settlement decrement running at the same time.
func (r *GormBookRepository) AddStock(ctx context.Context, id uuid.UUID, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", id).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementStock removes quantity copies from stock. The stock_quantity
// guard makes the decrement a compare-and-swap: under concurrent settlements
// only writers that still see enough stock succeed, and the counter can
// never go below zero.
func (r *GormBookRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND stock_quantity >= ?", id, quantity).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}
