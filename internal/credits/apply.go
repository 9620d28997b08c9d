package credits

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/pkg/db"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	"github.com/seatswap/seatswap-backend/pkg/enums"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
)

// Entry is one requested ledger row. Amount is signed: earned entries are
// positive, spent entries negative.
type Entry struct {
	WalletID uuid.UUID
	TicketID uuid.UUID
	Type     enums.CreditTransactionType
	Amount   int
}

// Result reports what a batch application actually wrote.
type Result struct {
	Applied         int
	Skipped         int
	Balances        map[uuid.UUID]int
	AppliedByWallet map[uuid.UUID]int
}

// Apply appends the given entries to the ledger for one order, inside the
// caller's transaction. Entries that already exist under the
// (wallet, order, ticket, type) key are skipped, so re-running the same batch
// is a no-op. Each written row carries the wallet's running balance, and the
// cached wallet balance is updated once per wallet with a conditional write;
// a wallet that would go negative aborts the whole batch.
func Apply(ctx context.Context, repo Repository, orderID uuid.UUID, entries []Entry) (*Result, error) {
	if err := validateBatch(orderID, entries); err != nil {
		return nil, err
	}

	existing, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load existing credit transactions")
	}
	seen := make(map[string]struct{}, len(existing))
	for _, txn := range existing {
		seen[entryKey(txn.WalletID, txn.TicketID, txn.Type)] = struct{}{}
	}

	result := &Result{
		Balances:        make(map[uuid.UUID]int),
		AppliedByWallet: make(map[uuid.UUID]int),
	}
	start := make(map[uuid.UUID]int)

	for _, entry := range entries {
		if _, dup := seen[entryKey(entry.WalletID, entry.TicketID, entry.Type)]; dup {
			result.Skipped++
			continue
		}

		balance, ok := result.Balances[entry.WalletID]
		if !ok {
			wallet, err := repo.FindWallet(ctx, entry.WalletID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
			}
			balance = wallet.CreditBalance
			start[entry.WalletID] = balance
		}

		balance += entry.Amount
		if balance < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient credits").
				WithDetails(map[string]any{
					"wallet_id": entry.WalletID,
					"ticket_id": entry.TicketID,
					"balance":   balance - entry.Amount,
					"amount":    entry.Amount,
				})
		}

		err := repo.CreateTransaction(ctx, &models.CreditTransaction{
			ID:           uuid.New(),
			WalletID:     entry.WalletID,
			OrderID:      orderID,
			TicketID:     entry.TicketID,
			Type:         entry.Type,
			Amount:       entry.Amount,
			BalanceAfter: balance,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "ux_credit_txns_wallet_order_ticket_type", "credit_transactions.wallet_id") {
				result.Skipped++
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create credit transaction")
		}

		seen[entryKey(entry.WalletID, entry.TicketID, entry.Type)] = struct{}{}
		result.Balances[entry.WalletID] = balance
		result.AppliedByWallet[entry.WalletID]++
		result.Applied++
	}

	for walletID, balance := range result.Balances {
		rows, err := repo.UpdateBalance(ctx, walletID, start[walletID], balance)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update wallet balance")
		}
		if rows == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "wallet balance changed concurrently").
				WithDetails(map[string]any{"wallet_id": walletID})
		}
	}

	return result, nil
}

func validateBatch(orderID uuid.UUID, entries []Entry) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if len(entries) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one credit entry is required")
	}
	for i, entry := range entries {
		switch {
		case entry.WalletID == uuid.Nil:
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: wallet id is required", i))
		case entry.TicketID == uuid.Nil:
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: ticket id is required", i))
		case !entry.Type.IsValid():
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: invalid credit transaction type", i))
		case entry.Amount == 0:
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: amount must be non-zero", i))
		case entry.Type == enums.CreditTransactionTypeEarned && entry.Amount < 0:
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: earned amount must be positive", i))
		case entry.Type == enums.CreditTransactionTypeSpent && entry.Amount > 0:
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d: spent amount must be negative", i))
		}
	}
	return nil
}

func entryKey(walletID, ticketID uuid.UUID, txnType enums.CreditTransactionType) string {
	return walletID.String() + "|" + ticketID.String() + "|" + string(txnType)
}
