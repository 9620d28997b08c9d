package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/pkg/db/models"
	"github.com/seatswap/seatswap-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payment").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payment").
		Where("idempotency_key = ?", key).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// statusStampColumns maps a target status to the timestamp column set in the
// same write. An empty entry means the transition stamps nothing extra.
var statusStampColumns = map[enums.OrderStatus]string{
	enums.OrderStatusPaid:      "paid_at",
	enums.OrderStatusDelivered: "delivered_at",
	enums.OrderStatusCompleted: "completed_at",
	enums.OrderStatusCancelled: "cancelled_at",
}

// TransitionStatus performs the guarded transition write. The predicate and
// the status change are one atomic statement; the returned row count tells
// the caller whether it won the transition.
func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (int64, error) {
	if !from.IsValid() || !to.IsValid() {
		return 0, fmt.Errorf("invalid order status transition %s -> %s", from, to)
	}

	query := `
		UPDATE orders
		SET status = ?, updated_at = CURRENT_TIMESTAMP`
	if stamp, ok := statusStampColumns[to]; ok {
		query += fmt.Sprintf(", %s = CURRENT_TIMESTAMP", stamp)
	}
	query += `
		WHERE id = ? AND status = ?`

	res := r.db.WithContext(ctx).Exec(query, to, orderID, from)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) FindPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
