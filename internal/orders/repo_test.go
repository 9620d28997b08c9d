package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/pkg/db/models"
	"github.com/seatswap/seatswap-backend/pkg/enums"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
)

func TestTransitionStatusOnlyOneWriterWins(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	order := seedOrder(t, db, enums.OrderStatusPending)

	rows, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected first transition to win, rows=%d", rows)
	}

	rows, err = repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected second transition to lose, rows=%d", rows)
	}

	var stored models.Order
	if err := db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusPaid {
		t.Fatalf("unexpected status %s", stored.Status)
	}
	if stored.PaidAt == nil {
		t.Fatalf("paid_at not stamped")
	}
}

func TestAdvanceReplayAndConflict(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	order := seedOrder(t, db, enums.OrderStatusPending)

	replayed, err := Advance(ctx, repo, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if replayed {
		t.Fatalf("first advance should not report replay")
	}

	replayed, err = Advance(ctx, repo, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid)
	if err != nil {
		t.Fatalf("replayed advance failed: %v", err)
	}
	if !replayed {
		t.Fatalf("expected replay when target state already reached")
	}

	_, err = Advance(ctx, repo, order.ID, enums.OrderStatusDelivered, enums.OrderStatusCompleted)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestAdvanceUnknownOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)

	_, err := Advance(context.Background(), repo, uuid.New(), enums.OrderStatusPending, enums.OrderStatusPaid)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindByIdempotencyKey(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	order := seedOrder(t, db, enums.OrderStatusPending)

	found, err := repo.FindByIdempotencyKey(ctx, order.IdempotencyKey)
	if err != nil {
		t.Fatalf("find by key failed: %v", err)
	}
	if found.ID != order.ID {
		t.Fatalf("wrong order returned")
	}

	if _, err := repo.FindByIdempotencyKey(ctx, "missing-key"); err != gorm.ErrRecordNotFound {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Event{}, &models.Ticket{}, &models.Order{}, &models.OrderItem{}, &models.Payment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:             uuid.New(),
		BuyerID:        uuid.New(),
		SellerID:       uuid.New(),
		IdempotencyKey: uuid.NewString(),
		AmountCents:    10000,
		FeeCents:       875,
		TotalCents:     10875,
		Status:         status,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}
