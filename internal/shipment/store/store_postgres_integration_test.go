//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"coldchain/internal/shipment/models"
	"coldchain/internal/shipment/store"
	"coldchain/pkg/domain"
	"coldchain/pkg/platform/sentinel"
	"coldchain/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "temperature_readings", "ledger_events", "shipments")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) create(id domain.ShipmentID) {
	shipment, err := models.NewShipment(id, "Vaccine Batch A", 2, 8,
		domain.MustIdentity("0x52908400098527886e0f7030069857d2e4169ee7"), time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), shipment))
}

func (s *PostgresStoreSuite) TestDuplicateCreateIsConflict() {
	ctx := context.Background()
	s.create("SHIP001")

	shipment, err := models.NewShipment("SHIP001", "Other", 0, 1,
		domain.MustIdentity("0x8617e340b3d01fa5f11f306f4090fd50e238070d"), time.Now())
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(ctx, shipment), sentinel.ErrConflict)

	found, err := s.store.Get(ctx, "SHIP001")
	s.Require().NoError(err)
	s.Equal("Vaccine Batch A", found.ProductDetails)
	s.Equal(models.StatusActive, found.Status)
}

func (s *PostgresStoreSuite) TestReadingsStayDenseUnderConcurrency() {
	ctx := context.Background()
	s.create("SHIP001")

	const writers = 20
	var wg sync.WaitGroup
	for i := range writers {
		wg.Go(func() {
			_, err := s.store.AppendReading(ctx, "SHIP001", models.Reading{Timestamp: int64(i), Temperature: 5, Location: "Truck"})
			s.NoError(err)
		})
	}
	wg.Wait()

	count, err := s.store.ReadingCount(ctx, "SHIP001")
	s.Require().NoError(err)
	s.Equal(writers, count)

	page, total, err := s.store.Readings(ctx, "SHIP001", 0, writers)
	s.Require().NoError(err)
	s.Len(page, writers)
	s.Equal(writers, total)

	_, err = s.store.ReadingAt(ctx, "SHIP001", writers)
	s.ErrorIs(err, sentinel.ErrOutOfRange)
	_, err = s.store.ReadingAt(ctx, "NOPE", 0)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestMutators() {
	ctx := context.Background()
	s.create("SHIP001")
	b := domain.MustIdentity("0x8617e340b3d01fa5f11f306f4090fd50e238070d")

	s.Require().NoError(s.store.SetCustodian(ctx, "SHIP001", b))
	s.Require().NoError(s.store.SetStatus(ctx, "SHIP001", models.StatusCompromised))

	found, err := s.store.Get(ctx, "SHIP001")
	s.Require().NoError(err)
	s.Equal(b, found.Custodian)
	s.Equal(models.StatusCompromised, found.Status)

	s.ErrorIs(s.store.SetCustodian(ctx, "NOPE", b), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestHistoryPageIsOneSnapshot() {
	ctx := context.Background()
	s.create("SHIP002")

	const appends = 50
	var wg sync.WaitGroup
	wg.Go(func() {
		for i := range appends {
			_, err := s.store.AppendReading(ctx, "SHIP002", models.Reading{Timestamp: int64(i), Temperature: 5, Location: "Dock"})
			s.NoError(err)
		}
	})

	for range appends {
		page, total, err := s.store.Readings(ctx, "SHIP002", 0, appends)
		s.Require().NoError(err)
		s.Require().Len(page, total)
	}
	wg.Wait()
}
