package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Otuja/bookshop/apperrors"
	"github.com/Otuja/bookshop/events"
	"github.com/Otuja/bookshop/models"
	"github.com/Otuja/bookshop/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettlementResult reports the transaction status after a notification or
// status query.
type SettlementResult struct {
	Status  string    `json:"status"`
	OrderID uuid.UUID `json:"order_id"`

	// AlreadySettled marks an idempotent no-op: the transaction was already
	// terminal when the notification arrived. Not an error; the gateway still
	// acknowledges receipt.
	AlreadySettled bool `json:"-"`
}

// SettlementService drives order and transaction status transitions from
// provider notifications. Both statuses and the stock decrements move inside
// one database transaction, so a crash mid-apply leaves either the pre- or
// the fully-post-notification state.
type SettlementService struct {
	db        *gorm.DB
	publisher events.Publisher
	logger    *zap.Logger
}

// NewSettlementService creates a SettlementService. publisher may be nil;
// settlement then skips event fan-out.
func NewSettlementService(db *gorm.DB, publisher events.Publisher, logger *zap.Logger) *SettlementService {
	return &SettlementService{
		db:        db,
		publisher: publisher,
		logger:    logger,
	}
}

var errOversold = errors.New("stock oversold at settlement")

// ApplyNotification applies one provider notification identified by its
// reference. Safe under at-least-once delivery: once a transaction is
// terminal, re-applying any outcome only refreshes the stored raw payload.
// The first successful notification marks the order paid and decrements
// every ordered book's stock exactly once; the first failure notification
// marks transaction and order failed with no stock effect.
//
// Stock availability was only checked, not reserved, at checkout time, so a
// competing order may have drained stock since. The decrement re-validates
// via its compare-and-swap guard; if any line no longer has enough stock the
// whole apply rolls back and the settlement is failed instead (see
// failOversold).
func (s *SettlementService) ApplyNotification(ctx context.Context, reference string, succeeded bool, rawPayload []byte) (*SettlementResult, *apperrors.Error) {
	raw := string(rawPayload)

	var result *SettlementResult
	var appErr *apperrors.Error
	var order *models.Order
	provider := ""

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments := repository.NewGormPaymentRepository(tx)
		orders := repository.NewGormOrderRepository(tx)
		books := repository.NewGormBookRepository(tx)

		txn, err := payments.FindByReference(ctx, reference)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				appErr = apperrors.TransactionNotFound(reference)
				return appErr
			}
			return err
		}
		provider = txn.Provider

		if txn.Status != models.TransactionStatusPending {
			// Terminal already: audit trail refresh only.
			if err := payments.UpdateRawResponse(ctx, reference, raw); err != nil {
				return err
			}
			result = &SettlementResult{Status: txn.Status, OrderID: txn.OrderID, AlreadySettled: true}
			return nil
		}

		target := models.TransactionStatusFailed
		if succeeded {
			target = models.TransactionStatusSuccessful
		}

		won, err := payments.MarkSettled(ctx, reference, target, raw)
		if err != nil {
			return err
		}
		if !won {
			// A concurrent duplicate delivery settled first. Still refresh
			// the audit trail: the last notification's payload wins.
			current, err := payments.FindByReference(ctx, reference)
			if err != nil {
				return err
			}
			if err := payments.UpdateRawResponse(ctx, reference, raw); err != nil {
				return err
			}
			result = &SettlementResult{Status: current.Status, OrderID: current.OrderID, AlreadySettled: true}
			return nil
		}

		ord, err := orders.FindByID(ctx, txn.OrderID)
		if err != nil {
			return err
		}
		order = ord

		if !succeeded {
			ok, err := orders.MarkPaymentStatus(ctx, txn.OrderID, models.OrderStatusPending, models.OrderStatusFailed, "")
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("order %s not pending while its transaction was", txn.OrderID)
			}
			result = &SettlementResult{Status: models.TransactionStatusFailed, OrderID: txn.OrderID}
			return nil
		}

		ok, err := orders.MarkPaymentStatus(ctx, txn.OrderID, models.OrderStatusPending, models.OrderStatusPaid, reference)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s not pending while its transaction was", txn.OrderID)
		}

		for _, item := range ord.Items {
			if item.BookID == nil {
				// Book removed from the catalog since ordering; nothing to deplete.
				continue
			}
			if err := books.DecrementStock(ctx, *item.BookID, item.Quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					return errOversold
				}
				return err
			}
		}

		result = &SettlementResult{Status: models.TransactionStatusSuccessful, OrderID: txn.OrderID}
		return nil
	})

	if appErr != nil {
		return nil, appErr
	}
	if errors.Is(err, errOversold) {
		return s.failOversold(ctx, reference, raw, provider)
	}
	if err != nil {
		s.logger.Error("Settlement transaction failed",
			zap.String("reference", reference),
			zap.Error(err),
		)
		return nil, apperrors.Internal("failed to apply notification", err)
	}

	if result.AlreadySettled {
		s.logger.Info("Skipping duplicate notification",
			zap.String("reference", reference),
			zap.String("status", result.Status),
		)
		return result, nil
	}

	s.logger.Info("Settlement applied",
		zap.String("reference", reference),
		zap.String("order_id", result.OrderID.String()),
		zap.String("status", result.Status),
	)
	s.publishEvent(ctx, result.Status, reference, provider, order)
	return result, nil
}

// failOversold settles a transaction as failed after its stock decrement lost
// the race against competing orders. The winning-then-rolled-back success
// apply left both rows pending, so the normal guarded transitions still hold.
func (s *SettlementService) failOversold(ctx context.Context, reference, raw, provider string) (*SettlementResult, *apperrors.Error) {
	var result *SettlementResult
	var order *models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments := repository.NewGormPaymentRepository(tx)
		orders := repository.NewGormOrderRepository(tx)

		won, err := payments.MarkSettled(ctx, reference, models.TransactionStatusFailed, raw)
		if err != nil {
			return err
		}
		txn, err := payments.FindByReference(ctx, reference)
		if err != nil {
			return err
		}
		if !won {
			if err := payments.UpdateRawResponse(ctx, reference, raw); err != nil {
				return err
			}
			result = &SettlementResult{Status: txn.Status, OrderID: txn.OrderID, AlreadySettled: true}
			return nil
		}

		ok, err := orders.MarkPaymentStatus(ctx, txn.OrderID, models.OrderStatusPending, models.OrderStatusFailed, "")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s not pending while its transaction was", txn.OrderID)
		}
		ord, err := orders.FindByID(ctx, txn.OrderID)
		if err != nil {
			return err
		}
		order = ord
		result = &SettlementResult{Status: models.TransactionStatusFailed, OrderID: txn.OrderID}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("failed to settle oversold order", err)
	}

	s.logger.Warn("Stock exhausted at settlement; order failed",
		zap.String("reference", reference),
		zap.String("order_id", result.OrderID.String()),
	)
	if !result.AlreadySettled {
		s.publishEvent(ctx, result.Status, reference, provider, order)
	}
	return result, nil
}

// QueryStatus is the pull-side counterpart of ApplyNotification, used by the
// caller to resolve the post-payment redirect.
func (s *SettlementService) QueryStatus(ctx context.Context, reference string) (*SettlementResult, *apperrors.Error) {
	payments := repository.NewGormPaymentRepository(s.db)

	txn, err := payments.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.TransactionNotFound(reference)
		}
		return nil, apperrors.Internal("failed to query transaction", err)
	}

	return &SettlementResult{Status: txn.Status, OrderID: txn.OrderID}, nil
}

// publishEvent emits the settlement outcome. Best-effort: failures are
// logged and never fail the notification that triggered them.
func (s *SettlementService) publishEvent(ctx context.Context, status, reference, provider string, order *models.Order) {
	if s.publisher == nil || order == nil {
		return
	}

	event := models.PaymentEvent{
		Type:      "payment_" + status,
		OrderID:   order.ID.String(),
		Reference: reference,
		Provider:  provider,
		Amount:    order.TotalAmount,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish payment event",
			zap.String("event_type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Payment event published",
		zap.String("event_type", event.Type),
		zap.String("order_id", event.OrderID),
	)
}
