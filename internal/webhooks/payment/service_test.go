package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/internal/orders"
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

// stubGuard mimics the redis SetNX replay guard in memory.
type stubGuard struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newStubGuard() *stubGuard {
	return &stubGuard{keys: make(map[string]struct{})}
}

func (g *stubGuard) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return false, nil
	}
	g.keys[key] = struct{}{}
	return true, nil
}

func (g *stubGuard) Del(_ context.Context, keys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		delete(g.keys, key)
	}
	return nil
}

func (g *stubGuard) WebhookEventKey(provider, eventID string) string {
	return "ss:webhook:" + provider + ":" + eventID
}

func newService(t *testing.T, db *gorm.DB, guard replayGuard, published *stubOutboxPublisher) Service {
	t.Helper()
	svc, err := NewService(
		orders.NewRepository(db),
		NewRepository(db),
		guard,
		dbTxRunner{db: db},
		published,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedPendingOrder(t *testing.T, db *gorm.DB, withTicket bool) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:             uuid.New(),
		BuyerID:        uuid.New(),
		SellerID:       uuid.New(),
		IdempotencyKey: uuid.NewString(),
		AmountCents:    10000,
		FeeCents:       875,
		TotalCents:     10875,
		Status:         enums.OrderStatusPending,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if withTicket {
		event := &models.Event{ID: uuid.New(), Name: "test event", SelloutStatus: enums.EventNotSoldOut}
		if err := db.Create(event).Error; err != nil {
			t.Fatalf("seed event: %v", err)
		}
		until := time.Now().Add(10 * time.Minute)
		ticket := &models.Ticket{
			ID:              uuid.New(),
			SellerID:        order.SellerID,
			EventID:         event.ID,
			PriceCents:      10000,
			FaceValueCents:  10000,
			Status:          enums.TicketStatusReserved,
			ReservedOrderID: &order.ID,
			ReservedUntil:   &until,
		}
		if err := db.Create(ticket).Error; err != nil {
			t.Fatalf("seed ticket: %v", err)
		}
		item := &models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			TicketID:       ticket.ID,
			PriceCents:     10000,
			FaceValueCents: 10000,
		}
		if err := db.Create(item).Error; err != nil {
			t.Fatalf("seed order item: %v", err)
		}
	}
	return order
}

func succeededEvent(orderID uuid.UUID) EventInput {
	return EventInput{
		Provider:        "stripe",
		ProviderEventID: "evt_" + uuid.NewString(),
		Type:            EventPaymentSucceeded,
		OrderID:         orderID,
		ProviderRef:     "pi_" + uuid.NewString(),
	}
}

func TestHandleSucceededMarksOrderPaid(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	published := &stubOutboxPublisher{}
	svc := newService(t, db, newStubGuard(), published)
	ctx := context.Background()
	order := seedPendingOrder(t, db, false)

	input := succeededEvent(order.ID)
	result, err := svc.HandleEvent(ctx, input)
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if result.Replayed || result.OrderStatus != enums.OrderStatusPaid {
		t.Fatalf("unexpected result: %+v", result)
	}

	var stored models.Order
	if err := db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusPaid || stored.PaidAt == nil {
		t.Fatalf("order not paid: %+v", stored)
	}

	var payment models.Payment
	if err := db.First(&payment, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != enums.PaymentStatusSucceeded || payment.SucceededAt == nil {
		t.Fatalf("payment not settled: %+v", payment)
	}
	if payment.ProviderRef == nil || *payment.ProviderRef != input.ProviderRef {
		t.Fatalf("provider ref not stored: %+v", payment)
	}

	if len(published.events) != 1 || published.events[0].EventType != enums.EventOrderPaid {
		t.Fatalf("unexpected events: %+v", published.events)
	}
}

func TestHandleDuplicateEventIsReplay(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	published := &stubOutboxPublisher{}
	svc := newService(t, db, newStubGuard(), published)
	ctx := context.Background()
	order := seedPendingOrder(t, db, false)
	input := succeededEvent(order.ID)

	if _, err := svc.HandleEvent(ctx, input); err != nil {
		t.Fatalf("first handle failed: %v", err)
	}
	result, err := svc.HandleEvent(ctx, input)
	if err != nil {
		t.Fatalf("duplicate handle failed: %v", err)
	}
	if !result.Replayed {
		t.Fatalf("duplicate delivery must be a replay")
	}
	if len(published.events) != 1 {
		t.Fatalf("duplicate emitted events: %+v", published.events)
	}
}

func TestHandleDuplicateBeforeFirstCommitConflicts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	guard := newStubGuard()
	svc := newService(t, db, guard, &stubOutboxPublisher{})
	ctx := context.Background()
	order := seedPendingOrder(t, db, false)
	input := succeededEvent(order.ID)

	// the first delivery has claimed the guard key but has not committed its
	// ledger row yet
	key := guard.WebhookEventKey(input.Provider, input.ProviderEventID)
	if claimed, err := guard.SetNX(ctx, key, "1", time.Minute); err != nil || !claimed {
		t.Fatalf("pre-claim guard key: claimed=%v err=%v", claimed, err)
	}

	_, err := svc.HandleEvent(ctx, input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict while the first delivery is in flight, got %v", err)
	}

	var count int64
	if err := db.Model(&models.WebhookEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected duplicate must not write the ledger")
	}
}

func TestHandleDuplicateSurvivesColdGuard(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	published := &stubOutboxPublisher{}
	svc := newService(t, db, newStubGuard(), published)
	ctx := context.Background()
	order := seedPendingOrder(t, db, false)
	input := succeededEvent(order.ID)

	if _, err := svc.HandleEvent(ctx, input); err != nil {
		t.Fatalf("first handle failed: %v", err)
	}

	// a fresh guard simulates redis losing the key; the database unique
	// index must still catch the duplicate
	coldSvc := newService(t, db, newStubGuard(), published)
	result, err := coldSvc.HandleEvent(ctx, input)
	if err != nil {
		t.Fatalf("duplicate handle failed: %v", err)
	}
	if !result.Replayed {
		t.Fatalf("database guard must flag the replay")
	}
	if result.OrderStatus != enums.OrderStatusPaid {
		t.Fatalf("replay should report current status, got %s", result.OrderStatus)
	}
	if len(published.events) != 1 {
		t.Fatalf("duplicate emitted events: %+v", published.events)
	}
}

func TestHandleFailedReleasesTickets(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	published := &stubOutboxPublisher{}
	svc := newService(t, db, newStubGuard(), published)
	ctx := context.Background()
	order := seedPendingOrder(t, db, true)

	result, err := svc.HandleEvent(ctx, EventInput{
		Provider:        "stripe",
		ProviderEventID: "evt_" + uuid.NewString(),
		Type:            EventPaymentFailed,
		OrderID:         order.ID,
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if result.OrderStatus != enums.OrderStatusFailed {
		t.Fatalf("unexpected status: %s", result.OrderStatus)
	}

	var stored models.Order
	if err := db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusFailed {
		t.Fatalf("order not failed: %+v", stored)
	}

	var ticket models.Ticket
	if err := db.First(&ticket, "reserved_order_id = ? OR status = ?", order.ID, enums.TicketStatusAvailable).Error; err != nil {
		t.Fatalf("load ticket: %v", err)
	}
	if ticket.Status != enums.TicketStatusAvailable || ticket.ReservedOrderID != nil {
		t.Fatalf("ticket not released: %+v", ticket)
	}

	var failedEvents, releasedEvents int
	for _, event := range published.events {
		switch event.EventType {
		case enums.EventOrderFailed:
			failedEvents++
		case enums.EventReservationReleased:
			releasedEvents++
		}
	}
	if failedEvents != 1 || releasedEvents != 1 {
		t.Fatalf("unexpected events: %+v", published.events)
	}
}

func TestHandleFailedOnTerminalOrderIsNoOp(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	published := &stubOutboxPublisher{}
	svc := newService(t, db, newStubGuard(), published)
	ctx := context.Background()
	order := seedPendingOrder(t, db, false)
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusCancelled).Error; err != nil {
		t.Fatalf("set status: %v", err)
	}

	result, err := svc.HandleEvent(ctx, EventInput{
		Provider:        "stripe",
		ProviderEventID: "evt_" + uuid.NewString(),
		Type:            EventPaymentFailed,
		OrderID:         order.ID,
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if result.OrderStatus != enums.OrderStatusCancelled {
		t.Fatalf("terminal order must not move, got %s", result.OrderStatus)
	}
	for _, event := range published.events {
		if event.EventType == enums.EventOrderFailed {
			t.Fatalf("no failure event expected: %+v", event)
		}
	}
}

func TestHandleRefundedRequiresSettledOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db, newStubGuard(), &stubOutboxPublisher{})
	ctx := context.Background()

	pending := seedPendingOrder(t, db, false)
	_, err := svc.HandleEvent(ctx, EventInput{
		Provider:        "stripe",
		ProviderEventID: "evt_" + uuid.NewString(),
		Type:            EventPaymentRefunded,
		OrderID:         pending.ID,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	paid := seedPendingOrder(t, db, false)
	if err := db.Model(&models.Order{}).Where("id = ?", paid.ID).Update("status", enums.OrderStatusPaid).Error; err != nil {
		t.Fatalf("set status: %v", err)
	}
	result, err := svc.HandleEvent(ctx, EventInput{
		Provider:        "stripe",
		ProviderEventID: "evt_" + uuid.NewString(),
		Type:            EventPaymentRefunded,
		OrderID:         paid.ID,
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if result.OrderStatus != enums.OrderStatusRefunded {
		t.Fatalf("unexpected status: %s", result.OrderStatus)
	}
}

func TestHandleUnknownOrderFreesGuard(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	guard := newStubGuard()
	svc := newService(t, db, guard, &stubOutboxPublisher{})
	ctx := context.Background()

	input := succeededEvent(uuid.New())
	_, err := svc.HandleEvent(ctx, input)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	// the guard key must be released so a later retry is not misread as a
	// replay
	if _, held := guard.keys[guard.WebhookEventKey(input.Provider, input.ProviderEventID)]; held {
		t.Fatalf("guard key leaked after failed processing")
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:webhooks_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		&models.WebhookEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
