// Package events defines the ledger event log records shared by the store,
// the notifier, the dispatcher and the HTTP replay surface.
package events

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"coldchain/pkg/domain"
)

// Kind names a ledger event.
type Kind string

const (
	KindShipmentCreated    Kind = "ShipmentCreated"
	KindCustodyTransferred Kind = "CustodyTransferred"
	KindTemperatureUpdated Kind = "TemperatureUpdated"
	KindFaultDetected      Kind = "FaultDetected"
)

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindShipmentCreated, KindCustodyTransferred, KindTemperatureUpdated, KindFaultDetected:
		return true
	}
	return false
}

// Event is one committed ledger mutation. Seq is assigned by the log at
// append time, starts at 1 and has no gaps in commit order.
//
// Field use by kind:
//   - ShipmentCreated: Actor (manufacturer, initial custodian), To.
//   - CustodyTransferred: Actor, From, To.
//   - TemperatureUpdated, FaultDetected: Actor (oracle), Temperature,
//     Location, ReadingIndex, ReadingTimestamp.
type Event struct {
	ID               uuid.UUID         `json:"id"`
	Seq              uint64            `json:"seq"`
	Kind             Kind              `json:"kind"`
	ShipmentID       domain.ShipmentID `json:"shipment_id"`
	Actor            domain.Identity   `json:"actor"`
	From             domain.Identity   `json:"from,omitempty"`
	To               domain.Identity   `json:"to,omitempty"`
	Temperature      int64             `json:"temperature"`
	Location         string            `json:"location,omitempty"`
	ReadingIndex     int               `json:"reading_index"`
	ReadingTimestamp int64             `json:"reading_timestamp"`
	RecordedAt       time.Time         `json:"recorded_at"`
	PrevHash         string            `json:"prev_hash"`
	Hash             string            `json:"hash"`
}

// NoReading marks events that do not carry a reading.
const NoReading = -1

// Filter selects events for replay and subscriptions. Zero fields match all.
type Filter struct {
	ShipmentID domain.ShipmentID
	Kinds      []Kind
	After      uint64
}

// Matches reports whether e passes the shipment and kind filters. After is
// applied by the reader, not here.
func (f Filter) Matches(e Event) bool {
	if !f.ShipmentID.IsNil() && e.ShipmentID != f.ShipmentID {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Kind) {
		return false
	}
	return true
}
