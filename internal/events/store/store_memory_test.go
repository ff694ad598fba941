package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"coldchain/internal/events"
	"coldchain/internal/events/chain"
	"coldchain/pkg/requestcontext"
)

type MemoryLogSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *MemoryLogSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestMemoryLogSuite(t *testing.T) {
	suite.Run(t, new(MemoryLogSuite))
}

func (s *MemoryLogSuite) appendN(n int) {
	for range n {
		_, err := s.store.Append(s.ctx, events.Event{Kind: events.KindTemperatureUpdated, ShipmentID: "SHIP001"})
		s.Require().NoError(err)
	}
}

func (s *MemoryLogSuite) TestAppendAssignsSequenceAndChain() {
	s.Run("first event starts at one from genesis", func() {
		e, err := s.store.Append(s.ctx, events.Event{Kind: events.KindShipmentCreated, ShipmentID: "SHIP001"})
		s.Require().NoError(err)
		s.Equal(uint64(1), e.Seq)
		s.Equal(chain.Genesis, e.PrevHash)
		s.NotEmpty(e.Hash)
		s.NotEqual(uuid.Nil, e.ID)
	})

	s.Run("next event links to previous hash", func() {
		first, err := s.store.ListAfter(s.ctx, 0, 1)
		s.Require().NoError(err)
		e, err := s.store.Append(s.ctx, events.Event{Kind: events.KindTemperatureUpdated, ShipmentID: "SHIP001"})
		s.Require().NoError(err)
		s.Equal(uint64(2), e.Seq)
		s.Equal(first[0].Hash, e.PrevHash)
	})
}

func (s *MemoryLogSuite) TestRecordedAtUsesRequestTime() {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e, err := s.store.Append(requestcontext.WithTime(s.ctx, at), events.Event{Kind: events.KindShipmentCreated})
	s.Require().NoError(err)
	s.Equal(at, e.RecordedAt)
}

func (s *MemoryLogSuite) TestListAfter() {
	s.appendN(5)

	s.Run("pages from a cursor", func() {
		page, err := s.store.ListAfter(s.ctx, 1, 2)
		s.Require().NoError(err)
		s.Require().Len(page, 2)
		s.Equal(uint64(2), page[0].Seq)
		s.Equal(uint64(3), page[1].Seq)
	})

	s.Run("clamps to the end", func() {
		page, err := s.store.ListAfter(s.ctx, 4, 100)
		s.Require().NoError(err)
		s.Require().Len(page, 1)
		s.Equal(uint64(5), page[0].Seq)
	})

	s.Run("empty past the end", func() {
		page, err := s.store.ListAfter(s.ctx, 5, 10)
		s.Require().NoError(err)
		s.Empty(page)
	})

	s.Run("whole log verifies", func() {
		all, err := s.store.ListAfter(s.ctx, 0, 100)
		s.Require().NoError(err)
		s.True(chain.Verify(all).OK)
	})
}

func (s *MemoryLogSuite) TestConcurrentAppendsAreGapless() {
	const writers, each = 16, 25
	var wg sync.WaitGroup
	for range writers {
		wg.Go(func() {
			for range each {
				_, err := s.store.Append(s.ctx, events.Event{Kind: events.KindTemperatureUpdated})
				s.NoError(err)
			}
		})
	}
	wg.Wait()

	last, err := s.store.LastSeq(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(writers*each), last)

	all, err := s.store.ListAfter(s.ctx, 0, writers*each)
	s.Require().NoError(err)
	report := chain.Verify(all)
	s.True(report.OK, report.Errors)
}
