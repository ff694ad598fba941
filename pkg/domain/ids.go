package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"

	dErrors "coldchain/pkg/domain-errors"
)

// maxShipmentIDLength bounds caller-chosen shipment IDs at the trust boundary.
const maxShipmentIDLength = 128

const (
	identityPrefix    = "0x"
	identityHexLength = 40
)

// ShipmentID is the opaque, caller-chosen key of a shipment.
type ShipmentID string

// ParseShipmentID accepts any printable, non-blank string up to 128 bytes.
// The value is otherwise opaque and kept byte-for-byte.
func ParseShipmentID(s string) (ShipmentID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "shipment id is required")
	}
	if len(s) > maxShipmentIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "shipment id is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "shipment id must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "shipment id contains control characters")
		}
	}
	return ShipmentID(s), nil
}

func (id ShipmentID) String() string { return string(id) }

// IsNil reports whether the ID is empty.
func (id ShipmentID) IsNil() bool { return id == "" }

// Identity is an address-like actor reference: 0x followed by 40 hex digits.
// Identities are stored lower-cased so checksum casing never affects equality.
type Identity string

// ParseIdentity validates and normalizes an address. The all-zero address is
// rejected because it cannot hold custody.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidIdentity, "identity is required")
	}
	hexPart, ok := cutHexPrefix(s)
	if !ok || len(hexPart) != identityHexLength || !govalidator.IsHexadecimal(hexPart) {
		return "", dErrors.New(dErrors.CodeInvalidIdentity, "identity must be 0x followed by 40 hex digits")
	}
	if strings.Trim(hexPart, "0") == "" {
		return "", dErrors.New(dErrors.CodeInvalidIdentity, "zero identity is not allowed")
	}
	return Identity(identityPrefix + strings.ToLower(hexPart)), nil
}

// MustIdentity is ParseIdentity for constants in tests and wiring code.
func MustIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func cutHexPrefix(s string) (string, bool) {
	if after, ok := strings.CutPrefix(s, identityPrefix); ok {
		return after, true
	}
	return strings.CutPrefix(s, "0X")
}

func (i Identity) String() string { return string(i) }

// IsNil reports whether the identity is unset.
func (i Identity) IsNil() bool { return i == "" }
