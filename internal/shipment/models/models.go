package models

import (
	"time"

	"coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// Status is the compliance state of a shipment.
type Status string

const (
	StatusActive      Status = "Active"
	StatusCompromised Status = "Compromised"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusCompromised
}

// CanTransitionTo allows only Active -> Compromised; Compromised is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && next == StatusCompromised
}

// Shipment is the aggregate root for one tracked consignment.
//
// Invariants:
//   - MinTemp <= MaxTemp, fixed at creation
//   - ProductDetails and the bounds never change after creation
//   - Status only moves Active -> Compromised
//   - Custodian is always a valid, non-zero identity
type Shipment struct {
	ID             domain.ShipmentID `json:"id"`
	Status         Status            `json:"status"`
	Custodian      domain.Identity   `json:"custodian"`
	MinTemp        int64             `json:"min_temp"`
	MaxTemp        int64             `json:"max_temp"`
	ProductDetails string            `json:"product_details"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewShipment builds an Active shipment held by custodian.
func NewShipment(
	id domain.ShipmentID,
	productDetails string,
	minTemp, maxTemp int64,
	custodian domain.Identity,
	now time.Time,
) (*Shipment, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "shipment id is required")
	}
	if minTemp > maxTemp {
		return nil, dErrors.New(dErrors.CodeInvalidRange, "min_temp must not exceed max_temp")
	}
	if custodian.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidIdentity, "custodian is required")
	}
	if err := validText("product_details", productDetails, maxProductDetailsLength); err != nil {
		return nil, err
	}
	return &Shipment{
		ID:             id,
		Status:         StatusActive,
		Custodian:      custodian,
		MinTemp:        minTemp,
		MaxTemp:        maxTemp,
		ProductDetails: productDetails,
		CreatedAt:      now,
	}, nil
}

// Breaches reports whether temperature falls outside the inclusive bounds.
func (s *Shipment) Breaches(temperature int64) bool {
	return temperature < s.MinTemp || temperature > s.MaxTemp
}

// Details is the read view returned by getShipmentDetails.
func (s *Shipment) Details() *ShipmentDetails {
	return &ShipmentDetails{
		ID:        s.ID,
		Status:    s.Status,
		Custodian: s.Custodian,
		MinTemp:   s.MinTemp,
		MaxTemp:   s.MaxTemp,
	}
}

// ShipmentDetails is the snapshot returned by getShipmentDetails.
type ShipmentDetails struct {
	ID        domain.ShipmentID `json:"id"`
	Status    Status            `json:"status"`
	Custodian domain.Identity   `json:"custodian"`
	MinTemp   int64             `json:"min_temp"`
	MaxTemp   int64             `json:"max_temp"`
}

// Reading is one immutable entry in a shipment's temperature log. Timestamp is
// sensor-supplied Unix seconds and need not be monotonic.
type Reading struct {
	Timestamp   int64  `json:"timestamp"`
	Temperature int64  `json:"temperature"`
	Location    string `json:"location"`
}

// Validate checks the location can be stored by every backend.
func (r Reading) Validate() error {
	return validText("location", r.Location, maxLocationLength)
}

// IngestResult reports where a reading landed and what it did to the status.
type IngestResult struct {
	Index         int    `json:"index"`
	Status        Status `json:"status"`
	FaultDetected bool   `json:"fault_detected"`
}
