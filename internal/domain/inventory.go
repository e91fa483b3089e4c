package domain

import (
	"time"

	"github.com/Domenick1991/tourledger/internal/daterange"
)

// InventoryRecord is the capacity row for one subject (tour) on one day.
// Capacity is the last configured total, Slots what is still bookable.
type InventoryRecord struct {
	SubjectID          string
	Date               daterange.Date
	Slots              int
	Capacity           int
	HotelAvailable     bool
	TransportAvailable bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Consumed is the number of slots taken by reservations since the capacity
// was last configured.
func (r InventoryRecord) Consumed() int {
	if r.Capacity <= r.Slots {
		return 0
	}
	return r.Capacity - r.Slots
}

// InventoryPatch carries a management upsert where every attribute is optional.
type InventoryPatch struct {
	SubjectID          string
	Date               daterange.Date
	Slots              *int
	HotelAvailable     *bool
	TransportAvailable *bool
}

// SlotStatus is the public projection of an InventoryRecord.
type SlotStatus struct {
	SubjectID          string         `json:"subjectId,omitempty"`
	Date               daterange.Date `json:"date"`
	SlotsLeft          int            `json:"slotsLeft"`
	HotelAvailable     bool           `json:"hotelAvailable"`
	TransportAvailable bool           `json:"transportAvailable"`
}
