package enums

// EscrowState summarizes where an order's funds currently sit. It is derived
// from (OrderStatus, PaymentStatus) and never stored.
type EscrowState string

const (
	EscrowStateNotFunded    EscrowState = "not_funded"
	EscrowStateFundsHeld    EscrowState = "funds_held"
	EscrowStateReleaseReady EscrowState = "release_ready"
	EscrowStateReleased     EscrowState = "released"
	EscrowStateRefunded     EscrowState = "refunded"
	EscrowStateFailed       EscrowState = "failed"
)

// String implements fmt.Stringer.
func (e EscrowState) String() string {
	return string(e)
}
