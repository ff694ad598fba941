// Package policy decides which identity may create shipments, transfer
// custody or ingest readings. It is pure: no I/O, no clock.
package policy

import (
	"coldchain/internal/shipment/models"
	"coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// Policy holds the two process-wide roles fixed at startup.
type Policy struct {
	manufacturer domain.Identity
	oracle       domain.Identity
}

// New validates both roles; a zero identity would silently lock the ledger.
func New(manufacturer, oracle domain.Identity) (*Policy, error) {
	if manufacturer.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidIdentity, "manufacturer identity is required")
	}
	if oracle.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidIdentity, "oracle identity is required")
	}
	return &Policy{manufacturer: manufacturer, oracle: oracle}, nil
}

func (p *Policy) Manufacturer() domain.Identity { return p.manufacturer }
func (p *Policy) Oracle() domain.Identity       { return p.oracle }

// CanCreate allows only the manufacturer.
func (p *Policy) CanCreate(caller domain.Identity) error {
	if caller.IsNil() || caller != p.manufacturer {
		return dErrors.New(dErrors.CodeUnauthorized, "only the manufacturer can create shipments")
	}
	return nil
}

// CanTransfer allows only the current custodian, whatever the status.
func (p *Policy) CanTransfer(caller domain.Identity, shipment *models.Shipment) error {
	if caller.IsNil() || caller != shipment.Custodian {
		return dErrors.New(dErrors.CodeUnauthorized, "only the current custodian can transfer custody")
	}
	return nil
}

// CanIngest allows only the trusted oracle.
func (p *Policy) CanIngest(caller domain.Identity) error {
	if caller.IsNil() || caller != p.oracle {
		return dErrors.New(dErrors.CodeUnauthorized, "only the trusted oracle can submit readings")
	}
	return nil
}
