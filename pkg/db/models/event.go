package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/pkg/enums"
)

// Event is the concert/match/show a ticket grants entry to. The sellout flag
// decides whether buying one of its tickets consumes an access credit.
type Event struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Name          string                   `gorm:"column:name;type:text;not null"`
	StartsAt      time.Time                `gorm:"column:starts_at;not null"`
	SelloutStatus enums.EventSelloutStatus `gorm:"column:sellout_status;type:event_sellout_status;not null;default:'not_sold_out'"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
