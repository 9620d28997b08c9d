package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/pkg/config"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	"github.com/seatswap/seatswap-backend/pkg/enums"
	"github.com/seatswap/seatswap-backend/pkg/logger"
)

func TestSweepOnceReclaimsExpiredHolds(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	expired := time.Now().Add(-time.Minute).UTC()
	live := time.Now().Add(10 * time.Minute).UTC()
	holder := uuid.New()

	for i := 0; i < 3; i++ {
		seedReservedTicket(t, db, holder, expired)
	}
	liveTicket := seedReservedTicket(t, db, holder, live)

	service := newTestService(t, db, 2)
	if err := service.sweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var reserved int64
	if err := db.Model(&models.Ticket{}).Where("status = ?", enums.TicketStatusReserved).Count(&reserved).Error; err != nil {
		t.Fatalf("count reserved: %v", err)
	}
	if reserved != 1 {
		t.Fatalf("expected only the live hold to survive, got %d reserved", reserved)
	}

	var stored models.Ticket
	if err := db.First(&stored, "id = ?", liveTicket.ID).Error; err != nil {
		t.Fatalf("load live ticket: %v", err)
	}
	if stored.ReservedOrderID == nil || *stored.ReservedOrderID != holder {
		t.Fatalf("live hold lost its holder")
	}
}

func TestSweepOnceNoExpiredHoldsIsNoOp(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	seedReservedTicket(t, db, uuid.New(), time.Now().Add(10*time.Minute).UTC())

	service := newTestService(t, db, 100)
	if err := service.sweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var reserved int64
	if err := db.Model(&models.Ticket{}).Where("status = ?", enums.TicketStatusReserved).Count(&reserved).Error; err != nil {
		t.Fatalf("count reserved: %v", err)
	}
	if reserved != 1 {
		t.Fatalf("expected live hold untouched, got %d reserved", reserved)
	}
}

func newTestService(t *testing.T, db *gorm.DB, batchSize int) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Sweeper.Interval = time.Minute
	cfg.Sweeper.BatchSize = batchSize
	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logger.New(logger.Options{ServiceName: "sweeper-test"}),
		DB:     &testDBClient{db: db},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return service
}

type testDBClient struct {
	db *gorm.DB
}

func (c *testDBClient) Ping(ctx context.Context) error {
	return nil
}

func (c *testDBClient) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:sweeper_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Event{}, &models.Ticket{}); err != nil {
		t.Fatalf("migrate tickets: %v", err)
	}
	return db
}

func seedReservedTicket(t *testing.T, db *gorm.DB, orderID uuid.UUID, until time.Time) *models.Ticket {
	t.Helper()
	event := &models.Event{ID: uuid.New(), Name: "test event", SelloutStatus: enums.EventNotSoldOut}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	ticket := &models.Ticket{
		ID:              uuid.New(),
		SellerID:        uuid.New(),
		EventID:         event.ID,
		PriceCents:      10000,
		FaceValueCents:  10000,
		Status:          enums.TicketStatusReserved,
		ReservedOrderID: &orderID,
		ReservedUntil:   &until,
	}
	if err := db.Create(ticket).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}
