package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: shipment or reading does not exist in the store
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrOutOfRange: a positional read went past the end of a log
//   - ErrUnavailable: backing service temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrOutOfRange  = errors.New("out of range")
	ErrUnavailable = errors.New("unavailable")
)
