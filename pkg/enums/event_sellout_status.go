package enums

import "fmt"

// EventSelloutStatus records whether an event's primary inventory is sold out.
// Purchases of tickets for sold-out events consume access credits.
type EventSelloutStatus string

const (
	EventSoldOut    EventSelloutStatus = "sold_out"
	EventNotSoldOut EventSelloutStatus = "not_sold_out"
)

var validEventSelloutStatuses = []EventSelloutStatus{
	EventSoldOut,
	EventNotSoldOut,
}

// IsValid reports whether the value is a known EventSelloutStatus.
func (e EventSelloutStatus) IsValid() bool {
	for _, candidate := range validEventSelloutStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventSelloutStatus converts raw input into an EventSelloutStatus.
func ParseEventSelloutStatus(value string) (EventSelloutStatus, error) {
	for _, candidate := range validEventSelloutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event sellout status %q", value)
}
