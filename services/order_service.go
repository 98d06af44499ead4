package services

import (
	"context"
	"errors"

	"github.com/Otuja/bookshop/apperrors"
	"github.com/Otuja/bookshop/models"
	"github.com/Otuja/bookshop/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderListResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

// OrderService serves order reads
type OrderService struct {
	orderRepo repository.OrderRepository
	logger    *zap.Logger
}

func NewOrderService(orderRepo repository.OrderRepository, logger *zap.Logger) *OrderService {
	return &OrderService{orderRepo: orderRepo, logger: logger}
}

// GetOrderByID retrieves a specific order with its items
func (s *OrderService) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, *apperrors.Error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.OrderNotFound(id.String())
		}
		s.logger.Error("Failed to fetch order", zap.String("order_id", id.String()), zap.Error(err))
		return nil, apperrors.Internal("failed to fetch order", err)
	}
	return order, nil
}

// ListOrders retrieves paginated orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, page, limit int) (*OrderListResponse, *apperrors.Error) {
	orders, total, err := s.orderRepo.FindAll(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch orders", zap.Error(err))
		return nil, apperrors.Internal("failed to fetch orders", err)
	}

	return &OrderListResponse{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}, nil
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
