package credits

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatswap/seatswap-backend/pkg/db/models"
)

// Repository persists wallets and the append-only credit ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	CreateTransaction(ctx context.Context, txn *models.CreditTransaction) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CreditTransaction, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.CreditTransaction, error)
	UpdateBalance(ctx context.Context, walletID uuid.UUID, from, to int) (int64, error)
	BumpSellerLifetime(ctx context.Context, walletID uuid.UUID, salesDelta, centsDelta int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed credits repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) FindWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", walletID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// UpdateBalance writes the cached wallet balance only when the stored value
// still matches what the caller read. Zero rows affected means a concurrent
// writer moved the balance first.
func (r *repository) UpdateBalance(ctx context.Context, walletID uuid.UUID, from, to int) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET credit_balance = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND credit_balance = ?`,
		to, walletID, from,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) BumpSellerLifetime(ctx context.Context, walletID uuid.UUID, salesDelta, centsDelta int) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET lifetime_sales_count = lifetime_sales_count + ?,
		     lifetime_sales_cents = lifetime_sales_cents + ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		salesDelta, centsDelta, walletID,
	).Error
}
