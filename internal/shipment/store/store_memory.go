// Package store holds the shipment registry and per-shipment temperature logs.
// The registry has no locking discipline of its own beyond memory safety; the
// ledger service serializes mutations per shipment.
package store

import (
	"context"
	"sync"

	"coldchain/internal/shipment/models"
	"coldchain/pkg/domain"
	"coldchain/pkg/platform/sentinel"
)

type record struct {
	shipment models.Shipment
	readings []models.Reading
}

// InMemory is the registry backed by a map.
type InMemory struct {
	mu        sync.RWMutex
	shipments map[domain.ShipmentID]*record
}

func NewInMemory() *InMemory {
	return &InMemory{shipments: make(map[domain.ShipmentID]*record)}
}

func (s *InMemory) Create(_ context.Context, shipment *models.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.shipments[shipment.ID]; exists {
		return sentinel.ErrConflict
	}
	s.shipments[shipment.ID] = &record{shipment: *shipment}
	return nil
}

// Get returns a copy; callers never share state with the registry.
func (s *InMemory) Get(_ context.Context, id domain.ShipmentID) (*models.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.shipments[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	shipment := rec.shipment
	return &shipment, nil
}

func (s *InMemory) SetCustodian(_ context.Context, id domain.ShipmentID, custodian domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.shipments[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.shipment.Custodian = custodian
	return nil
}

func (s *InMemory) SetStatus(_ context.Context, id domain.ShipmentID, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.shipments[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.shipment.Status = status
	return nil
}

// AppendReading adds r to the end of the log and returns its index.
func (s *InMemory) AppendReading(_ context.Context, id domain.ShipmentID, r models.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.shipments[id]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	rec.readings = append(rec.readings, r)
	return len(rec.readings) - 1, nil
}

func (s *InMemory) ReadingCount(_ context.Context, id domain.ShipmentID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.shipments[id]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return len(rec.readings), nil
}

func (s *InMemory) ReadingAt(_ context.Context, id domain.ShipmentID, index int) (models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.shipments[id]
	if !ok {
		return models.Reading{}, sentinel.ErrNotFound
	}
	if index < 0 || index >= len(rec.readings) {
		return models.Reading{}, sentinel.ErrOutOfRange
	}
	return rec.readings[index], nil
}

// Readings returns up to limit entries starting at offset together with the
// log length at the same instant. An offset equal to the log length yields an
// empty page.
func (s *InMemory) Readings(_ context.Context, id domain.ShipmentID, offset, limit int) ([]models.Reading, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.shipments[id]
	if !ok {
		return nil, 0, sentinel.ErrNotFound
	}
	total := len(rec.readings)
	if offset < 0 || offset > total {
		return nil, 0, sentinel.ErrOutOfRange
	}
	end := min(offset+max(limit, 0), total)
	out := make([]models.Reading, end-offset)
	copy(out, rec.readings[offset:end])
	return out, total, nil
}
