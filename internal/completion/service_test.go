package completion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/internal/credits"
	"github.com/seatswap/seatswap-backend/internal/orders"
	"github.com/seatswap/seatswap-backend/internal/tickets"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	"github.com/seatswap/seatswap-backend/pkg/enums"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
	"github.com/seatswap/seatswap-backend/pkg/outbox"
)

type stubOutboxPublisher struct {
	events []outbox.DomainEvent
}

func (s *stubOutboxPublisher) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func newService(t *testing.T, db *gorm.DB, published *stubOutboxPublisher) Service {
	t.Helper()
	svc, err := NewService(
		orders.NewRepository(db),
		tickets.NewRepository(db),
		credits.NewRepository(db),
		dbTxRunner{db: db},
		published,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// fixture is a delivered, paid order over sold tickets, ready to finalize.
type fixture struct {
	order   *models.Order
	buyer   *models.Wallet
	seller  *models.Wallet
	tickets []*models.Ticket
}

func seedDeliveredOrder(t *testing.T, db *gorm.DB, sellout enums.EventSelloutStatus, ticketCount, buyerCredits int) *fixture {
	t.Helper()

	buyer := seedWallet(t, db, buyerCredits)
	seller := seedWallet(t, db, 0)
	event := &models.Event{ID: uuid.New(), Name: "test event", SelloutStatus: sellout}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}

	now := time.Now()
	order := &models.Order{
		ID:             uuid.New(),
		BuyerID:        buyer.ID,
		SellerID:       seller.ID,
		IdempotencyKey: uuid.NewString(),
		AmountCents:    10000,
		FeeCents:       875,
		TotalCents:     10875,
		Status:         enums.OrderStatusDelivered,
		PaidAt:         &now,
		DeliveredAt:    &now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	payment := &models.Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Status:      enums.PaymentStatusSucceeded,
		AmountCents: order.TotalCents,
		SucceededAt: &now,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	f := &fixture{order: order, buyer: buyer, seller: seller}
	for i := 0; i < ticketCount; i++ {
		ticket := &models.Ticket{
			ID:             uuid.New(),
			SellerID:       seller.ID,
			EventID:        event.ID,
			PriceCents:     10000 / ticketCount,
			FaceValueCents: 10000 / ticketCount,
			Status:         enums.TicketStatusSold,
			SoldAt:         &now,
		}
		if err := db.Create(ticket).Error; err != nil {
			t.Fatalf("seed ticket: %v", err)
		}
		item := &models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			TicketID:       ticket.ID,
			PriceCents:     ticket.PriceCents,
			FaceValueCents: ticket.FaceValueCents,
		}
		if err := db.Create(item).Error; err != nil {
			t.Fatalf("seed order item: %v", err)
		}
		f.tickets = append(f.tickets, ticket)
	}
	return f
}

func TestCompleteFinalizesAndAppliesCredits(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	published := &stubOutboxPublisher{}
	svc := newService(t, db, published)
	ctx := context.Background()
	f := seedDeliveredOrder(t, db, enums.EventSoldOut, 2, 5)

	result, err := svc.Complete(ctx, CompleteInput{OrderID: f.order.ID, ActorUserID: f.order.BuyerID, ActorRole: "buyer"})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if result.Replayed {
		t.Fatalf("first completion reported as replay")
	}
	if result.CreditsApplied != 4 {
		t.Fatalf("expected 4 ledger rows, got %d", result.CreditsApplied)
	}
	if result.Order.Status != enums.OrderStatusCompleted || result.Order.CompletedAt == nil {
		t.Fatalf("order not completed: %+v", result.Order)
	}

	var buyerWallet, sellerWallet models.Wallet
	if err := db.First(&buyerWallet, "id = ?", f.buyer.ID).Error; err != nil {
		t.Fatalf("load buyer wallet: %v", err)
	}
	if err := db.First(&sellerWallet, "id = ?", f.seller.ID).Error; err != nil {
		t.Fatalf("load seller wallet: %v", err)
	}
	if buyerWallet.CreditBalance != 3 {
		t.Fatalf("buyer balance = %d, want 3", buyerWallet.CreditBalance)
	}
	if sellerWallet.CreditBalance != 2 {
		t.Fatalf("seller balance = %d, want 2", sellerWallet.CreditBalance)
	}
	if sellerWallet.LifetimeSalesCount != 1 || sellerWallet.LifetimeSalesCents != 10000 {
		t.Fatalf("lifetime sales not recorded: %+v", sellerWallet)
	}

	var completedEvents, creditEvents int
	for _, event := range published.events {
		switch event.EventType {
		case enums.EventOrderCompleted:
			completedEvents++
		case enums.EventCreditsApplied:
			creditEvents++
		}
	}
	if completedEvents != 1 || creditEvents != 2 {
		t.Fatalf("unexpected events: %+v", published.events)
	}
}

func TestCompleteTwiceIsReplay(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	published := &stubOutboxPublisher{}
	svc := newService(t, db, published)
	ctx := context.Background()
	f := seedDeliveredOrder(t, db, enums.EventSoldOut, 1, 1)
	input := CompleteInput{OrderID: f.order.ID, ActorUserID: f.order.BuyerID, ActorRole: "buyer"}

	if _, err := svc.Complete(ctx, input); err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	firstEventCount := len(published.events)

	result, err := svc.Complete(ctx, input)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !result.Replayed {
		t.Fatalf("second completion must be a replay")
	}
	if result.CreditsApplied != 2 {
		t.Fatalf("replay should report the existing rows, got %d", result.CreditsApplied)
	}
	if len(published.events) != firstEventCount {
		t.Fatalf("replay emitted events")
	}

	var count int64
	if err := db.Model(&models.CreditTransaction{}).Where("order_id = ?", f.order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", count)
	}
}

func TestCompleteRequiresDeliveredOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()
	f := seedDeliveredOrder(t, db, enums.EventNotSoldOut, 1, 0)
	if err := db.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("status", enums.OrderStatusPaid).Error; err != nil {
		t.Fatalf("set status: %v", err)
	}

	_, err := svc.Complete(ctx, CompleteInput{OrderID: f.order.ID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCompleteRequiresSettledPayment(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()
	f := seedDeliveredOrder(t, db, enums.EventNotSoldOut, 1, 0)
	if err := db.Model(&models.Payment{}).Where("order_id = ?", f.order.ID).Update("status", enums.PaymentStatusPending).Error; err != nil {
		t.Fatalf("set payment status: %v", err)
	}

	_, err := svc.Complete(ctx, CompleteInput{OrderID: f.order.ID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCompleteRequiresSoldTickets(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()
	f := seedDeliveredOrder(t, db, enums.EventNotSoldOut, 1, 0)
	if err := db.Model(&models.Ticket{}).Where("id = ?", f.tickets[0].ID).Update("status", enums.TicketStatusReserved).Error; err != nil {
		t.Fatalf("set ticket status: %v", err)
	}

	_, err := svc.Complete(ctx, CompleteInput{OrderID: f.order.ID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCompleteNonSoldOutEventSkipsCredits(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	published := &stubOutboxPublisher{}
	svc := newService(t, db, published)
	ctx := context.Background()
	f := seedDeliveredOrder(t, db, enums.EventNotSoldOut, 1, 0)

	result, err := svc.Complete(ctx, CompleteInput{OrderID: f.order.ID})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if result.CreditsApplied != 0 {
		t.Fatalf("expected no credits, got %d", result.CreditsApplied)
	}

	var count int64
	if err := db.Model(&models.CreditTransaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if count != 0 {
		t.Fatalf("ledger must stay empty, got %d rows", count)
	}

	var sellerWallet models.Wallet
	if err := db.First(&sellerWallet, "id = ?", f.seller.ID).Error; err != nil {
		t.Fatalf("load seller wallet: %v", err)
	}
	if sellerWallet.LifetimeSalesCount != 1 {
		t.Fatalf("lifetime sales still recorded for regular events: %+v", sellerWallet)
	}
	for _, event := range published.events {
		if event.EventType == enums.EventCreditsApplied {
			t.Fatalf("unexpected credits event: %+v", event)
		}
	}
}

func TestCompleteInsufficientBuyerCreditsAborts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db, &stubOutboxPublisher{})
	ctx := context.Background()
	f := seedDeliveredOrder(t, db, enums.EventSoldOut, 1, 0)

	_, err := svc.Complete(ctx, CompleteInput{OrderID: f.order.ID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	// the rollback must leave the order deliverable again
	var stored models.Order
	if err := db.First(&stored, "id = ?", f.order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusDelivered {
		t.Fatalf("order status = %s, want delivered", stored.Status)
	}
	var count int64
	if err := db.Model(&models.CreditTransaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if count != 0 {
		t.Fatalf("ledger must stay empty after abort, got %d rows", count)
	}
}

func TestCompleteUnknownOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db, &stubOutboxPublisher{})

	_, err := svc.Complete(context.Background(), CompleteInput{OrderID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:completion_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Event{},
		&models.Ticket{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.Wallet{},
		&models.CreditTransaction{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedWallet(t *testing.T, db *gorm.DB, balance int) *models.Wallet {
	t.Helper()
	wallet := &models.Wallet{ID: uuid.New(), DisplayName: "wallet", CreditBalance: balance}
	if err := db.Create(wallet).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return wallet
}
