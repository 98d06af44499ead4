package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Otuja/bookshop/apperrors"
	"github.com/Otuja/bookshop/models"
	"github.com/Otuja/bookshop/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CheckoutItem struct {
	BookID   uuid.UUID `json:"book_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required,min=1"`
}

type InitiateCheckoutRequest struct {
	Email    string         `json:"email" binding:"required,email"`
	Provider string         `json:"provider" binding:"required"`
	UserID   *uuid.UUID     `json:"user_id"`
	Items    []CheckoutItem `json:"items" binding:"required,min=1,dive"`
}

type CheckoutResponse struct {
	PaymentURL string    `json:"payment_url"`
	Reference  string    `json:"reference"`
	OrderID    uuid.UUID `json:"order_id"`
}

// CheckoutService turns a validated cart into a pending order with a
// pending payment transaction, as one atomic unit.
type CheckoutService struct {
	db             *gorm.DB
	paymentBaseURL string
	logger         *zap.Logger
}

func NewCheckoutService(db *gorm.DB, paymentBaseURL string, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		db:             db,
		paymentBaseURL: paymentBaseURL,
		logger:         logger,
	}
}

// InitiateCheckout prices every line against the current catalog, persists
// the order, its items and a pending transaction in a single database
// transaction, and returns the redirect handle for the payment page.
// Stock is validated here but not decremented; depletion happens exactly
// once at settlement time (see SettlementService).
func (s *CheckoutService) InitiateCheckout(ctx context.Context, req *InitiateCheckoutRequest) (*CheckoutResponse, *apperrors.Error) {
	var resp *CheckoutResponse
	var appErr *apperrors.Error

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := repository.NewGormBookRepository(tx)
		orders := repository.NewGormOrderRepository(tx)
		payments := repository.NewGormPaymentRepository(tx)

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(req.Items))

		for _, line := range req.Items {
			book, err := books.FindByID(ctx, line.BookID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					appErr = apperrors.BookNotFound(line.BookID.String())
					return appErr
				}
				return err
			}

			if book.StockQuantity < line.Quantity {
				appErr = apperrors.InsufficientStock(book.Title, book.StockQuantity, line.Quantity)
				return appErr
			}

			bookID := book.ID
			subtotal := book.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			items = append(items, models.OrderItem{
				BookID:   &bookID,
				Quantity: line.Quantity,
				Price:    book.Price,
				Subtotal: subtotal,
			})
			total = total.Add(subtotal)
		}

		order := &models.Order{
			UserID:        req.UserID,
			Email:         req.Email,
			TotalAmount:   total,
			PaymentStatus: models.OrderStatusPending,
			PaymentMethod: req.Provider,
			Items:         items,
		}
		if err := orders.Create(ctx, order); err != nil {
			return err
		}

		reference := uuid.NewString()
		txn := &models.PaymentTransaction{
			OrderID:   order.ID,
			Provider:  req.Provider,
			Reference: reference,
			Status:    models.TransactionStatusPending,
		}
		if err := payments.Create(ctx, txn); err != nil {
			return err
		}

		resp = &CheckoutResponse{
			PaymentURL: fmt.Sprintf("%s/pay/%s", s.paymentBaseURL, reference),
			Reference:  reference,
			OrderID:    order.ID,
		}
		return nil
	})

	if appErr != nil {
		return nil, appErr
	}
	if err != nil {
		s.logger.Error("Checkout transaction failed", zap.Error(err))
		return nil, apperrors.Internal("failed to initiate checkout", err)
	}

	s.logger.Info("Checkout initiated",
		zap.String("order_id", resp.OrderID.String()),
		zap.String("reference", resp.Reference),
		zap.String("provider", req.Provider),
	)
	return resp, nil
}
