package escrow

import "github.com/seatswap/seatswap-backend/pkg/enums"

// Derive maps (order status, payment status) to the caller-facing escrow
// state. Every surface that needs to explain where the money sits goes
// through this one function; nothing else may re-derive escrow meaning from
// raw status fields.
//
// Refund signals win over failure signals, failures win over everything else.
func Derive(orderStatus enums.OrderStatus, paymentStatus enums.PaymentStatus) enums.EscrowState {
	if orderStatus == enums.OrderStatusRefunded || paymentStatus == enums.PaymentStatusRefunded {
		return enums.EscrowStateRefunded
	}
	if orderStatus == enums.OrderStatusFailed || paymentStatus == enums.PaymentStatusFailed {
		return enums.EscrowStateFailed
	}
	if paymentStatus != enums.PaymentStatusSucceeded {
		return enums.EscrowStateNotFunded
	}

	switch orderStatus {
	case enums.OrderStatusPaid:
		return enums.EscrowStateFundsHeld
	case enums.OrderStatusDelivered:
		return enums.EscrowStateReleaseReady
	case enums.OrderStatusCompleted:
		return enums.EscrowStateReleased
	default:
		return enums.EscrowStateFundsHeld
	}
}
