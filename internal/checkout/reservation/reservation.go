package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
)

// MaxTickets bounds the all-or-nothing reservation so a single checkout can
// never lock an unbounded slice of inventory.
const MaxTickets = 10

// Reserve places a hold on every ticket in ticketIDs for orderID until
// holdUntil. The caller passes the expiry so the order row and the ticket
// holds advertise the same deadline.
//
// Each ticket is claimed by one conditional UPDATE whose predicate accepts an
// available ticket or a reserved ticket whose hold has already expired. The
// predicate and the write are a single atomic statement, so of any number of
// concurrent callers exactly one can observe RowsAffected == 1 per ticket.
// Any ticket that cannot be claimed aborts the surrounding transaction with a
// Conflict naming that ticket; no application-level locking is involved.
func Reserve(ctx context.Context, tx *gorm.DB, ticketIDs []uuid.UUID, orderID uuid.UUID, holdUntil time.Time) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for reservation")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if len(ticketIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one ticket required")
	}
	if len(ticketIDs) > MaxTickets {
		return pkgerrors.New(pkgerrors.CodeValidation, "too many tickets in one reservation").
			WithDetails(map[string]any{"max": MaxTickets, "requested": len(ticketIDs)})
	}

	now := time.Now().UTC()
	if !holdUntil.After(now) {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation expiry must be in the future")
	}
	expiry := holdUntil.UTC()

	for _, ticketID := range ticketIDs {
		if ticketID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE tickets
			SET status = 'reserved',
				reserved_order_id = ?,
				reserved_until = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
			  AND (status = 'available'
			   OR (status = 'reserved' AND reserved_until < ?))
		`, orderID, expiry, ticketID, now)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve ticket")
		}
		if res.RowsAffected != 1 {
			return pkgerrors.New(pkgerrors.CodeConflict, "ticket unavailable").
				WithDetails(map[string]any{"ticket_id": ticketID.String()})
		}
	}

	return nil
}

// Release returns a ticket held by orderID to the open market. Releasing a
// hold another order now owns is a no-op, which makes release safe to call
// from cancellation paths that may race a re-reservation.
func Release(ctx context.Context, tx *gorm.DB, ticketID, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for release")
	}
	if ticketID == uuid.Nil || orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ticket id and order id required")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE tickets
		SET status = 'available',
			reserved_order_id = NULL,
			reserved_until = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		  AND status = 'reserved'
		  AND reserved_order_id = ?
	`, ticketID, orderID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release ticket")
	}
	return nil
}

// MarkSold flips a ticket held by orderID to sold, clearing the reservation
// fields in the same statement. RowsAffected == 0 means the hold was lost.
func MarkSold(ctx context.Context, tx *gorm.DB, ticketID, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE tickets
		SET status = 'sold',
			sold_at = CURRENT_TIMESTAMP,
			reserved_order_id = NULL,
			reserved_until = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		  AND status = 'reserved'
		  AND reserved_order_id = ?
	`, ticketID, orderID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark ticket sold")
	}
	if res.RowsAffected != 1 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "ticket not held by order").
			WithDetails(map[string]any{"ticket_id": ticketID.String(), "order_id": orderID.String()})
	}
	return nil
}

// SweepExpired reclaims up to limit reserved tickets whose hold expired. The
// sweep is an optimization only; the reserve predicate reclaims lazily anyway.
func SweepExpired(ctx context.Context, tx *gorm.DB, limit int) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	if limit <= 0 {
		limit = 100
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE tickets
		SET status = 'available',
			reserved_order_id = NULL,
			reserved_until = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id IN (
			SELECT id FROM tickets
			WHERE status = 'reserved' AND reserved_until < ?
			LIMIT ?
		)
	`, time.Now().UTC(), limit)
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "sweep expired reservations")
	}
	return res.RowsAffected, nil
}
