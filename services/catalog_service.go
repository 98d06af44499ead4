package services

import (
	"context"
	"errors"

	"github.com/Otuja/bookshop/apperrors"
	"github.com/Otuja/bookshop/models"
	"github.com/Otuja/bookshop/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SetStockRequest struct {
	Title    string          `json:"title"`
	Author   string          `json:"author"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" binding:"min=0"`
}

// CatalogService handles catalog lookups and the admin stock upsert
type CatalogService struct {
	bookRepo repository.BookRepository
	logger   *zap.Logger
}

func NewCatalogService(bookRepo repository.BookRepository, logger *zap.Logger) *CatalogService {
	return &CatalogService{bookRepo: bookRepo, logger: logger}
}

// GetBook resolves a book by identifier
func (s *CatalogService) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, *apperrors.Error) {
	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.BookNotFound(id.String())
		}
		s.logger.Error("Failed to fetch book", zap.String("book_id", id.String()), zap.Error(err))
		return nil, apperrors.Internal("failed to fetch book", err)
	}
	return book, nil
}

// SetStock initializes or tops up inventory for a book (upsert). Incoming
// quantity is added to current stock; title, author and price update the
// catalog entry when provided.
func (s *CatalogService) SetStock(ctx context.Context, id uuid.UUID, req *SetStockRequest) (*models.Book, *apperrors.Error) {
	existing, err := s.bookRepo.FindByID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal("failed to check existing stock", err)
	}

	if existing != nil {
		updates := map[string]interface{}{}
		if req.Title != "" {
			updates["title"] = req.Title
		}
		if req.Author != "" {
			updates["author"] = req.Author
		}
		if req.Price.IsPositive() {
			updates["price"] = req.Price
		}
		if len(updates) > 0 {
			if err := s.bookRepo.Update(ctx, id, updates); err != nil {
				return nil, apperrors.Internal("failed to update book", err)
			}
		}
		// Top up as a relative increment rather than writing the quantity
		// read above, so a settlement decrement that lands in between is
		// not overwritten.
		if req.Quantity > 0 {
			if err := s.bookRepo.AddStock(ctx, id, req.Quantity); err != nil {
				return nil, apperrors.Internal("failed to update stock", err)
			}
		}
		book, err := s.bookRepo.FindByID(ctx, id)
		if err != nil {
			return nil, apperrors.Internal("failed to reload book", err)
		}
		s.logger.Info("Stock updated",
			zap.String("book_id", id.String()),
			zap.Int("added", req.Quantity),
			zap.Int("stock", book.StockQuantity),
		)
		return book, nil
	}

	if req.Title == "" || !req.Price.IsPositive() {
		return nil, apperrors.Validation("title and a positive price are required for a new book", nil)
	}

	book := &models.Book{
		ID:            id,
		Title:         req.Title,
		Author:        req.Author,
		Price:         req.Price,
		StockQuantity: req.Quantity,
		IsActive:      true,
	}
	if err := s.bookRepo.Save(ctx, book); err != nil {
		return nil, apperrors.Internal("failed to create book", err)
	}

	s.logger.Info("Book created",
		zap.String("book_id", id.String()),
		zap.Int("stock", req.Quantity),
	)
	return book, nil
}
