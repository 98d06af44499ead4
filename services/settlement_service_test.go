package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/Otuja/bookshop/apperrors"
	"github.com/Otuja/bookshop/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// mockPublisher captures published payment events
type mockPublisher struct {
	events []models.PaymentEvent
}

func (m *mockPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	m.events = append(m.events, event)
	return nil
}

func getBook(t *testing.T, db *gorm.DB, id interface{}) *models.Book {
	t.Helper()
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to load book: %v", err)
	}
	return &book
}

func getOrder(t *testing.T, db *gorm.DB, id interface{}) *models.Order {
	t.Helper()
	var order models.Order
	if err := db.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	return &order
}

func getTxn(t *testing.T, db *gorm.DB, reference string) *models.PaymentTransaction {
	t.Helper()
	var txn models.PaymentTransaction
	if err := db.First(&txn, "reference = ?", reference).Error; err != nil {
		t.Fatalf("failed to load transaction: %v", err)
	}
	return &txn
}

// Concrete end-to-end scenario: Book A (10.00, stock 5), checkout A x3,
// successful notification, then an identical re-delivery.
func TestApplyNotification_SuccessThenDuplicate(t *testing.T) {
	db := newTestDB(t)
	book := seedBook(t, db, "Book A", "10.00", 5)
	resp := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 3}})

	pub := &mockPublisher{}
	svc := NewSettlementService(db, pub, zap.NewNop())

	payload := []byte(`{"reference":"` + resp.Reference + `","status":"successful","amount":"30.00"}`)
	result, appErr := svc.ApplyNotification(context.Background(), resp.Reference, true, payload)
	if appErr != nil {
		t.Fatalf("ApplyNotification failed: %v", appErr)
	}
	if result.Status != models.TransactionStatusSuccessful || result.AlreadySettled {
		t.Fatalf("unexpected result: %+v", result)
	}

	if got := getBook(t, db, book.ID).StockQuantity; got != 2 {
		t.Fatalf("expected stock 2 after settlement, got %d", got)
	}
	order := getOrder(t, db, resp.OrderID)
	if order.PaymentStatus != models.OrderStatusPaid {
		t.Fatalf("expected order paid, got %q", order.PaymentStatus)
	}
	if order.PaymentReference != resp.Reference {
		t.Fatalf("expected payment reference %q, got %q", resp.Reference, order.PaymentReference)
	}
	txn := getTxn(t, db, resp.Reference)
	if txn.Status != models.TransactionStatusSuccessful {
		t.Fatalf("expected successful transaction, got %q", txn.Status)
	}
	if txn.RawResponse != string(payload) {
		t.Fatalf("expected raw payload stored verbatim, got %q", txn.RawResponse)
	}

	// Identical re-delivery: same end state, stock decremented exactly once.
	retry := []byte(`{"reference":"` + resp.Reference + `","status":"successful","retry":true}`)
	result, appErr = svc.ApplyNotification(context.Background(), resp.Reference, true, retry)
	if appErr != nil {
		t.Fatalf("duplicate ApplyNotification failed: %v", appErr)
	}
	if !result.AlreadySettled {
		t.Fatal("expected duplicate to be an idempotent no-op")
	}
	if got := getBook(t, db, book.ID).StockQuantity; got != 2 {
		t.Fatalf("duplicate delivery changed stock to %d", got)
	}
	if got := getOrder(t, db, resp.OrderID).PaymentStatus; got != models.OrderStatusPaid {
		t.Fatalf("duplicate delivery changed order status to %q", got)
	}
	// Audit trail follows the last notification.
	if got := getTxn(t, db, resp.Reference).RawResponse; got != string(retry) {
		t.Fatalf("expected raw payload refreshed, got %q", got)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected exactly one published event, got %d", len(pub.events))
	}
	event := pub.events[0]
	if event.Type != "payment_successful" || event.Reference != resp.Reference {
		t.Fatalf("unexpected event: %+v", event)
	}
	if !event.Amount.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("expected event amount 30.00, got %s", event.Amount)
	}
}

func TestApplyNotification_Failure(t *testing.T) {
	db := newTestDB(t)
	book := seedBook(t, db, "Book B", "10.00", 5)
	resp := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 2}})

	svc := NewSettlementService(db, nil, zap.NewNop())
	result, appErr := svc.ApplyNotification(context.Background(), resp.Reference, false, []byte(`{"status":"failed"}`))
	if appErr != nil {
		t.Fatalf("ApplyNotification failed: %v", appErr)
	}
	if result.Status != models.TransactionStatusFailed {
		t.Fatalf("expected failed result, got %q", result.Status)
	}

	if got := getOrder(t, db, resp.OrderID).PaymentStatus; got != models.OrderStatusFailed {
		t.Fatalf("expected failed order, got %q", got)
	}
	if got := getBook(t, db, book.ID).StockQuantity; got != 5 {
		t.Fatalf("failure notification must not touch stock, got %d", got)
	}
}

func TestApplyNotification_TerminalStateIsImmutable(t *testing.T) {
	db := newTestDB(t)
	book := seedBook(t, db, "Book C", "10.00", 5)

	// Success first, then a contradictory failure.
	resp := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 1}})
	svc := NewSettlementService(db, nil, zap.NewNop())

	if _, appErr := svc.ApplyNotification(context.Background(), resp.Reference, true, []byte(`{}`)); appErr != nil {
		t.Fatalf("success apply failed: %v", appErr)
	}
	result, appErr := svc.ApplyNotification(context.Background(), resp.Reference, false, []byte(`{"late":"failure"}`))
	if appErr != nil {
		t.Fatalf("late failure apply errored: %v", appErr)
	}
	if !result.AlreadySettled || result.Status != models.TransactionStatusSuccessful {
		t.Fatalf("late failure must not transition, got %+v", result)
	}
	if got := getOrder(t, db, resp.OrderID).PaymentStatus; got != models.OrderStatusPaid {
		t.Fatalf("order reverted to %q", got)
	}
	if got := getBook(t, db, book.ID).StockQuantity; got != 4 {
		t.Fatalf("stock changed by late failure: %d", got)
	}

	// And the mirror case: failure first, then a late success.
	resp2 := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 1}})
	if _, appErr := svc.ApplyNotification(context.Background(), resp2.Reference, false, []byte(`{}`)); appErr != nil {
		t.Fatalf("failure apply failed: %v", appErr)
	}
	result, appErr = svc.ApplyNotification(context.Background(), resp2.Reference, true, []byte(`{"late":"success"}`))
	if appErr != nil {
		t.Fatalf("late success apply errored: %v", appErr)
	}
	if !result.AlreadySettled || result.Status != models.TransactionStatusFailed {
		t.Fatalf("late success must not transition, got %+v", result)
	}
	if got := getBook(t, db, book.ID).StockQuantity; got != 4 {
		t.Fatalf("late success mutated stock: %d", got)
	}
}

func TestApplyNotification_UnknownReference(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, nil, zap.NewNop())

	_, appErr := svc.ApplyNotification(context.Background(), "no-such-reference", true, []byte(`{}`))
	if appErr == nil {
		t.Fatal("expected an error for unknown reference")
	}
	if appErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", appErr.Code)
	}
}

// Availability is only checked at checkout, so two orders can both pass the
// check against the same stock. The loser is detected at settlement time and
// failed; stock never goes negative.
func TestApplyNotification_OversoldAtSettlement(t *testing.T) {
	db := newTestDB(t)
	book := seedBook(t, db, "Contested Book", "10.00", 5)

	first := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 3}})
	second := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 3}})

	pub := &mockPublisher{}
	svc := NewSettlementService(db, pub, zap.NewNop())

	if _, appErr := svc.ApplyNotification(context.Background(), first.Reference, true, []byte(`{}`)); appErr != nil {
		t.Fatalf("first settlement failed: %v", appErr)
	}
	if got := getBook(t, db, book.ID).StockQuantity; got != 2 {
		t.Fatalf("expected stock 2 after first settlement, got %d", got)
	}

	result, appErr := svc.ApplyNotification(context.Background(), second.Reference, true, []byte(`{}`))
	if appErr != nil {
		t.Fatalf("oversold settlement errored: %v", appErr)
	}
	if result.Status != models.TransactionStatusFailed {
		t.Fatalf("expected oversold settlement to fail the transaction, got %q", result.Status)
	}

	// No partial decrement, both rows terminal failed.
	if got := getBook(t, db, book.ID).StockQuantity; got != 2 {
		t.Fatalf("oversold settlement mutated stock: %d", got)
	}
	if got := getTxn(t, db, second.Reference).Status; got != models.TransactionStatusFailed {
		t.Fatalf("expected failed transaction, got %q", got)
	}
	if got := getOrder(t, db, second.OrderID).PaymentStatus; got != models.OrderStatusFailed {
		t.Fatalf("expected failed order, got %q", got)
	}
	if len(pub.events) != 2 || pub.events[1].Type != "payment_failed" {
		t.Fatalf("expected a payment_failed event for the oversold order, got %+v", pub.events)
	}
}

// At-least-once delivery also means duplicates arriving in parallel, not just
// in sequence. Exactly one delivery may apply the settlement; the rest must
// report it as already settled.
func TestApplyNotification_ConcurrentDuplicateDeliveries(t *testing.T) {
	db := newTestDB(t)
	book := seedBook(t, db, "Hot Book", "10.00", 5)
	resp := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 3}})

	svc := NewSettlementService(db, nil, zap.NewNop())

	const deliveries = 8
	results := make([]*SettlementResult, deliveries)
	errs := make([]*apperrors.Error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf(`{"status":"successful","attempt":%d}`, i))
			results[i], errs[i] = svc.ApplyNotification(context.Background(), resp.Reference, true, payload)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < deliveries; i++ {
		if errs[i] != nil {
			t.Fatalf("delivery %d errored: %v", i, errs[i])
		}
		if results[i].Status != models.TransactionStatusSuccessful {
			t.Fatalf("delivery %d reported status %q", i, results[i].Status)
		}
		if !results[i].AlreadySettled {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one delivery to apply the settlement, got %d", applied)
	}
	if got := getBook(t, db, book.ID).StockQuantity; got != 2 {
		t.Fatalf("expected stock decremented exactly once to 2, got %d", got)
	}
	if got := getOrder(t, db, resp.OrderID).PaymentStatus; got != models.OrderStatusPaid {
		t.Fatalf("expected order paid, got %q", got)
	}
}

// A delivery whose guarded settle loses to a rival committing between its
// pending read and its own write must take the idempotent path, leave stock
// alone, and still refresh the stored payload.
func TestApplyNotification_RacedDuplicateRefreshesPayload(t *testing.T) {
	db := newTestDB(t)
	book := seedBook(t, db, "Raced Book", "10.00", 5)
	resp := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 3}})

	// Flip the transaction terminal right before this delivery's guarded
	// settle executes, as a rival delivery committing in between would.
	raced := false
	err := db.Callback().Update().Before("gorm:update").Register("rival_settlement", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "payment_transactions" {
			return
		}
		raced = true
		rival := tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.PaymentTransaction{}).
			Where("reference = ? AND status = ?", resp.Reference, models.TransactionStatusPending).
			Updates(map[string]interface{}{
				"status":       models.TransactionStatusSuccessful,
				"raw_response": `{"rival":true}`,
			})
		if rival.Error != nil {
			t.Errorf("rival settle failed: %v", rival.Error)
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	svc := NewSettlementService(db, nil, zap.NewNop())
	late := `{"late":"duplicate"}`
	result, appErr := svc.ApplyNotification(context.Background(), resp.Reference, true, []byte(late))
	if appErr != nil {
		t.Fatalf("ApplyNotification failed: %v", appErr)
	}
	if !raced {
		t.Fatal("rival settle never ran")
	}
	if !result.AlreadySettled || result.Status != models.TransactionStatusSuccessful {
		t.Fatalf("expected already-settled successful result, got %+v", result)
	}
	if got := getBook(t, db, book.ID).StockQuantity; got != 5 {
		t.Fatalf("losing delivery mutated stock: %d", got)
	}
	// Audit trail follows the last notification even on the losing path.
	if got := getTxn(t, db, resp.Reference).RawResponse; got != late {
		t.Fatalf("expected last payload stored, got %q", got)
	}
}

// If the order slips out of pending while its transaction is being failed for
// oversell, the settle must surface the broken invariant, not half-apply.
func TestApplyNotification_OversoldSettleGuardsOrderStatus(t *testing.T) {
	db := newTestDB(t)
	book := seedBook(t, db, "Drained Book", "10.00", 5)
	resp := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 3}})

	// Drain stock below the ordered quantity so the success apply oversells.
	if err := db.Model(&models.Book{}).Where("id = ?", book.ID).
		Update("stock_quantity", 1).Error; err != nil {
		t.Fatalf("failed to drain stock: %v", err)
	}

	// The first orders update is the rolled-back success apply; flip the
	// order to paid just before the second, the oversell failure write.
	ordersUpdates := 0
	flipping := false
	err := db.Callback().Update().Before("gorm:update").Register("rival_order_flip", func(tx *gorm.DB) {
		if flipping || tx.Statement.Table != "orders" {
			return
		}
		ordersUpdates++
		if ordersUpdates != 2 {
			return
		}
		flipping = true
		flip := tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.Order{}).
			Where("id = ?", resp.OrderID).
			Update("payment_status", models.OrderStatusPaid)
		if flip.Error != nil {
			t.Errorf("rival order flip failed: %v", flip.Error)
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	svc := NewSettlementService(db, nil, zap.NewNop())
	_, appErr := svc.ApplyNotification(context.Background(), resp.Reference, true, []byte(`{}`))
	if appErr == nil {
		t.Fatal("expected an error when the order is no longer pending")
	}
	if appErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", appErr.Code)
	}
	// The failure settle rolled back whole: transaction still pending.
	if got := getTxn(t, db, resp.Reference).Status; got != models.TransactionStatusPending {
		t.Fatalf("expected transaction still pending, got %q", got)
	}
}

func TestQueryStatus(t *testing.T) {
	db := newTestDB(t)
	book := seedBook(t, db, "Status Book", "4.00", 3)
	resp := initiateTestCheckout(t, db, []CheckoutItem{{BookID: book.ID, Quantity: 1}})

	svc := NewSettlementService(db, nil, zap.NewNop())

	result, appErr := svc.QueryStatus(context.Background(), resp.Reference)
	if appErr != nil {
		t.Fatalf("QueryStatus failed: %v", appErr)
	}
	if result.Status != models.TransactionStatusPending || result.OrderID != resp.OrderID {
		t.Fatalf("unexpected status result: %+v", result)
	}

	if _, appErr := svc.ApplyNotification(context.Background(), resp.Reference, true, []byte(`{}`)); appErr != nil {
		t.Fatalf("settlement failed: %v", appErr)
	}
	result, appErr = svc.QueryStatus(context.Background(), resp.Reference)
	if appErr != nil {
		t.Fatalf("QueryStatus after settlement failed: %v", appErr)
	}
	if result.Status != models.TransactionStatusSuccessful {
		t.Fatalf("expected successful status, got %q", result.Status)
	}

	if _, appErr := svc.QueryStatus(context.Background(), "missing"); appErr == nil || appErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown reference, got %v", appErr)
	}
}
