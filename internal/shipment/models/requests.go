package models

import (
	"strings"
	"unicode/utf8"

	dErrors "coldchain/pkg/domain-errors"
)

const (
	maxProductDetailsLength = 4096
	maxLocationLength       = 512
)

// CreateShipmentRequest is the body of POST /shipments.
type CreateShipmentRequest struct {
	ID             string `json:"id"`
	ProductDetails string `json:"product_details"`
	MinTemp        *int64 `json:"min_temp"`
	MaxTemp        *int64 `json:"max_temp"`
}

// Validate checks shape only; range and uniqueness belong to the ledger.
func (r *CreateShipmentRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "id is required")
	}
	if r.MinTemp == nil || r.MaxTemp == nil {
		return dErrors.New(dErrors.CodeBadRequest, "min_temp and max_temp are required")
	}
	return validText("product_details", r.ProductDetails, maxProductDetailsLength)
}

// TransferCustodyRequest is the body of POST /shipments/{id}/custody.
type TransferCustodyRequest struct {
	NewCustodian string `json:"new_custodian"`
}

// IngestReadingRequest is the body of POST /shipments/{id}/readings and of a
// sensor feed message (which also carries ShipmentID).
type IngestReadingRequest struct {
	ShipmentID  string `json:"shipment_id,omitempty"`
	Timestamp   *int64 `json:"timestamp"`
	Temperature *int64 `json:"temperature"`
	Location    string `json:"location"`
}

func (r *IngestReadingRequest) Validate() error {
	if r.Timestamp == nil || r.Temperature == nil {
		return dErrors.New(dErrors.CodeBadRequest, "timestamp and temperature are required")
	}
	return validText("location", r.Location, maxLocationLength)
}

// Reading converts a validated request.
func (r *IngestReadingRequest) Reading() Reading {
	return Reading{Timestamp: *r.Timestamp, Temperature: *r.Temperature, Location: r.Location}
}

// validText rejects values no storage backend can hold: invalid UTF-8 and NUL
// bytes, which Postgres TEXT columns refuse.
func validText(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return dErrors.New(dErrors.CodeBadRequest, field+" is too long")
	}
	if !utf8.ValidString(value) {
		return dErrors.New(dErrors.CodeBadRequest, field+" must be valid UTF-8")
	}
	if strings.IndexByte(value, 0) >= 0 {
		return dErrors.New(dErrors.CodeBadRequest, field+" must not contain NUL bytes")
	}
	return nil
}
