package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order payment statuses. Paid and failed are terminal.
const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// Payment transaction statuses. Successful and failed are terminal.
const (
	TransactionStatusPending    = "pending"
	TransactionStatusSuccessful = "successful"
	TransactionStatusFailed     = "failed"
)

// Book is the catalog entry checkout prices against. Stock is mutated only
// by settlement and by the admin stock upsert.
type Book struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string          `gorm:"not null" json:"title"`
	Author        string          `json:"author"`
	Price         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	StockQuantity int             `gorm:"not null;default:0" json:"stock_quantity"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Order owns its items. UserID is nullable: guest checkout is allowed.
type Order struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           *uuid.UUID      `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Email            string          `gorm:"not null" json:"email"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_amount"`
	PaymentStatus    string          `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	PaymentMethod    string          `gorm:"type:varchar(50)" json:"payment_method"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem snapshots the book's price at order time. BookID is a weak
// reference and survives book deletion.
type OrderItem struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	BookID   *uuid.UUID      `gorm:"type:uuid" json:"book_id,omitempty"`
	Quantity int             `gorm:"not null" json:"quantity"`
	Price    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Subtotal decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"subtotal"`
}

func (oi *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if oi.ID == uuid.Nil {
		oi.ID = uuid.New()
	}
	return nil
}

// BeforeSave keeps subtotal consistent with price and quantity on every write.
func (oi *OrderItem) BeforeSave(tx *gorm.DB) error {
	oi.Subtotal = oi.Price.Mul(decimal.NewFromInt(int64(oi.Quantity)))
	return nil
}

// PaymentTransaction tracks one settlement attempt with an external provider.
// Reference is the provider-facing idempotency key.
type PaymentTransaction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	Provider    string    `gorm:"type:varchar(50);not null" json:"provider"`
	Reference   string    `gorm:"uniqueIndex;not null" json:"reference"`
	Status      string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	RawResponse string    `json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// PaymentEvent is the message published after a settlement commits.
type PaymentEvent struct {
	Type      string          `json:"type"`
	OrderID   string          `json:"order_id"`
	Reference string          `json:"reference"`
	Provider  string          `json:"provider"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}
