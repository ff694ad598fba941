package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"coldchain/internal/events"
	eventstore "coldchain/internal/events/store"
	"coldchain/internal/shipment/metrics"
	"coldchain/internal/shipment/models"
	"coldchain/internal/shipment/policy"
	"coldchain/internal/shipment/store"
	"coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/requestcontext"
	"coldchain/pkg/testutil"
)

var (
	manufacturer = domain.MustIdentity("0x52908400098527886e0f7030069857d2e4169ee7")
	oracle       = domain.MustIdentity("0x8617e340b3d01fa5f11f306f4090fd50e238070d")
	custodianB   = domain.MustIdentity("0x2222222222222222222222222222222222222222")
	stranger     = domain.MustIdentity("0x3333333333333333333333333333333333333333")
)

type countingNotifier struct{ n atomic.Int64 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

type LedgerServiceSuite struct {
	suite.Suite
	store    *store.InMemory
	log      *eventstore.InMemory
	notifier *countingNotifier
	metrics  *metrics.Metrics
	service  *Service
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	pol, err := policy.New(manufacturer, oracle)
	s.Require().NoError(err)

	s.store = store.NewInMemory()
	s.log = eventstore.NewInMemory()
	s.notifier = &countingNotifier{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, s.log, pol,
		WithNotifier(s.notifier),
		WithMetrics(s.metrics),
	)
}

func as(caller domain.Identity) context.Context {
	return requestcontext.WithCaller(context.Background(), caller)
}

func (s *LedgerServiceSuite) events() []events.Event {
	all, err := s.log.ListAfter(context.Background(), 0, 1000)
	s.Require().NoError(err)
	return all
}

func (s *LedgerServiceSuite) createSHIP001() {
	_, err := s.service.CreateShipment(as(manufacturer), "SHIP001", "Vaccine Batch A", 2, 8)
	s.Require().NoError(err)
}

func (s *LedgerServiceSuite) ingest(id domain.ShipmentID, ts, temp int64, loc string) (*models.IngestResult, error) {
	return s.service.IngestReading(as(oracle), id, models.Reading{Timestamp: ts, Temperature: temp, Location: loc})
}

// =============================================================================
// createShipment
// =============================================================================

func (s *LedgerServiceSuite) TestCreateShipment() {
	s.Run("manufacturer creates an active shipment it holds", func() {
		details, err := s.service.CreateShipment(as(manufacturer), "SHIP001", "Vaccine Batch A", 2, 8)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, details.Status)
		s.Equal(manufacturer, details.Custodian)

		count, err := s.service.GetTempHistoryCount(context.Background(), "SHIP001")
		s.Require().NoError(err)
		s.Zero(count)

		evts := s.events()
		s.Require().Len(evts, 1)
		s.Equal(events.KindShipmentCreated, evts[0].Kind)
		s.Equal(domain.ShipmentID("SHIP001"), evts[0].ShipmentID)
		s.Equal(int64(1), s.notifier.n.Load())
	})

	s.Run("duplicate id fails and leaves the original unchanged", func() {
		_, err := s.service.CreateShipment(as(manufacturer), "SHIP001", "Other", -10, 30)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateID))

		details, err := s.service.GetShipmentDetails(context.Background(), "SHIP001")
		s.Require().NoError(err)
		s.Equal(int64(2), details.MinTemp)
		s.Equal(int64(8), details.MaxTemp)
		product, err := s.service.GetShipmentProductDetails(context.Background(), "SHIP001")
		s.Require().NoError(err)
		s.Equal("Vaccine Batch A", product)
		s.Len(s.events(), 1, "rejected create records nothing")
	})

	s.Run("inverted bounds are InvalidRange", func() {
		_, err := s.service.CreateShipment(as(manufacturer), "SHIP002", "x", 9, 8)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRange))
		_, err = s.service.GetShipmentDetails(context.Background(), "SHIP002")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("NUL in product details is BadRequest", func() {
		_, err := s.service.CreateShipment(as(manufacturer), "SHIP004", "Vaccine\x00", 2, 8)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		_, err = s.service.GetShipmentDetails(context.Background(), "SHIP004")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-manufacturer is Unauthorized", func() {
		for _, caller := range []domain.Identity{oracle, stranger, ""} {
			_, err := s.service.CreateShipment(as(caller), "SHIP003", "x", 2, 8)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		}
		s.Len(s.events(), 1)
	})

	s.Run("outcomes are counted", func() {
		s.Equal(1.0, promtest.ToFloat64(s.metrics.Operations.WithLabelValues(opCreate, "ok")))
		s.Equal(3.0, promtest.ToFloat64(s.metrics.Operations.WithLabelValues(opCreate, string(dErrors.CodeUnauthorized))))
	})
}

// =============================================================================
// transferCustody
// =============================================================================

func (s *LedgerServiceSuite) TestTransferCustody() {
	s.createSHIP001()

	s.Run("non-custodian is Unauthorized and custodian is unchanged", func() {
		_, err := s.service.TransferCustody(as(stranger), "SHIP001", custodianB.String())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		details, err := s.service.GetShipmentDetails(context.Background(), "SHIP001")
		s.Require().NoError(err)
		s.Equal(manufacturer, details.Custodian)
	})

	s.Run("malformed or zero target is InvalidIdentity", func() {
		for _, target := range []string{"", "bob", "0x0000000000000000000000000000000000000000"} {
			_, err := s.service.TransferCustody(as(manufacturer), "SHIP001", target)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidIdentity), target)
		}
	})

	s.Run("custodian hands over and loses standing", func() {
		details, err := s.service.TransferCustody(as(manufacturer), "SHIP001", "0x2222222222222222222222222222222222222222")
		s.Require().NoError(err)
		s.Equal(custodianB, details.Custodian)

		_, err = s.service.TransferCustody(as(manufacturer), "SHIP001", stranger.String())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		last := s.events()[len(s.events())-1]
		s.Equal(events.KindCustodyTransferred, last.Kind)
		s.Equal(manufacturer, last.From)
		s.Equal(custodianB, last.To)
	})

	s.Run("unknown shipment is NotFound", func() {
		_, err := s.service.TransferCustody(as(custodianB), "NOPE", stranger.String())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("transfer is allowed after compromise", func() {
		_, err := s.ingest("SHIP001", 1, 50, "Sun")
		s.Require().NoError(err)
		_, err = s.service.TransferCustody(as(custodianB), "SHIP001", stranger.String())
		s.NoError(err)
	})
}

// =============================================================================
// ingestReading
// =============================================================================

func (s *LedgerServiceSuite) TestIngestReading() {
	s.createSHIP001()

	s.Run("only the oracle may ingest", func() {
		_, err := s.service.IngestReading(as(manufacturer), "SHIP001", models.Reading{Temperature: 5})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		count, _ := s.service.GetTempHistoryCount(context.Background(), "SHIP001")
		s.Zero(count)
	})

	s.Run("unknown shipment is NotFound", func() {
		_, err := s.ingest("NOPE", 1, 5, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unstorable location is BadRequest and appends nothing", func() {
		before := len(s.events())
		for _, loc := range []string{"Truck\x00", string([]byte{0xff, 0xfe})} {
			_, err := s.ingest("SHIP001", 1, 5, loc)
			s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		}
		count, _ := s.service.GetTempHistoryCount(context.Background(), "SHIP001")
		s.Zero(count)
		s.Len(s.events(), before)
	})

	s.Run("bounds are inclusive", func() {
		for _, temp := range []int64{2, 8} {
			res, err := s.ingest("SHIP001", 1, temp, "Edge")
			s.Require().NoError(err)
			s.False(res.FaultDetected)
			s.Equal(models.StatusActive, res.Status)
		}
	})

	s.Run("below min compromises exactly once", func() {
		res, err := s.ingest("SHIP001", 2, 1, "Mountain Pass (Cold)")
		s.Require().NoError(err)
		s.True(res.FaultDetected)

		res, err = s.ingest("SHIP001", 3, -5, "Mountain Pass (Cold)")
		s.Require().NoError(err)
		s.False(res.FaultDetected)
		s.Equal(models.StatusCompromised, res.Status)

		var faults int
		for _, e := range s.events() {
			if e.Kind == events.KindFaultDetected {
				faults++
			}
		}
		s.Equal(1, faults)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.FaultsDetected))
	})
}

// TestScenarioSHIP001 walks the reference scenario end to end.
func (s *LedgerServiceSuite) TestScenarioSHIP001() {
	t := s.T()
	ctx := context.Background()

	testutil.Given(t, "SHIP001 created by the manufacturer with bounds [2, 8]", func(t *testing.T) {
		s.createSHIP001()
		details, err := s.service.GetShipmentDetails(ctx, "SHIP001")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, details.Status)
	})

	testutil.When(t, "the oracle reports 5 at Truck1", func(t *testing.T) {
		_, err := s.ingest("SHIP001", 100, 5, "Truck1")
		require.NoError(t, err)
	})

	testutil.Then(t, "the shipment stays Active with one reading", func(t *testing.T) {
		details, err := s.service.GetShipmentDetails(ctx, "SHIP001")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, details.Status)
		count, err := s.service.GetTempHistoryCount(ctx, "SHIP001")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	testutil.When(t, "the oracle reports 12 at Truck2", func(t *testing.T) {
		res, err := s.ingest("SHIP001", 200, 12, "Truck2")
		require.NoError(t, err)
		assert.True(t, res.FaultDetected)
	})

	testutil.Then(t, "the shipment is Compromised and FaultDetected was emitted", func(t *testing.T) {
		details, err := s.service.GetShipmentDetails(ctx, "SHIP001")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompromised, details.Status)
		count, err := s.service.GetTempHistoryCount(ctx, "SHIP001")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		evts := s.events()
		last := evts[len(evts)-1]
		assert.Equal(t, events.KindFaultDetected, last.Kind)
		assert.Equal(t, int64(12), last.Temperature)
		assert.Equal(t, "Truck2", last.Location)
	})

	testutil.When(t, "a third in-range reading arrives", func(t *testing.T) {
		res, err := s.ingest("SHIP001", 300, 6, "Truck2")
		require.NoError(t, err)
		assert.False(t, res.FaultDetected)
	})

	testutil.Then(t, "history has three entries and status stays Compromised", func(t *testing.T) {
		count, err := s.service.GetTempHistoryCount(ctx, "SHIP001")
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		details, err := s.service.GetShipmentDetails(ctx, "SHIP001")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompromised, details.Status)

		entry, err := s.service.GetTempHistoryEntry(ctx, "SHIP001", 1)
		require.NoError(t, err)
		assert.Equal(t, models.Reading{Timestamp: 200, Temperature: 12, Location: "Truck2"}, *entry)
	})

	testutil.And(t, "reading past the end is IndexOutOfRange", func(t *testing.T) {
		_, err := s.service.GetTempHistoryEntry(ctx, "SHIP001", 10)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIndexOutOfRange))
	})
}

// =============================================================================
// Reads
// =============================================================================

func (s *LedgerServiceSuite) TestGetTempHistory() {
	s.createSHIP001()
	for i := range 7 {
		_, err := s.ingest("SHIP001", int64(i), int64(i), "Truck")
		s.Require().NoError(err)
	}
	ctx := context.Background()

	s.Run("page from offset", func() {
		page, total, err := s.service.GetTempHistory(ctx, "SHIP001", 5, 10)
		s.Require().NoError(err)
		s.Equal(7, total)
		s.Require().Len(page, 2)
		s.Equal(int64(5), page[0].Temperature)
	})

	s.Run("zero limit uses default page", func() {
		page, _, err := s.service.GetTempHistory(ctx, "SHIP001", 0, 0)
		s.Require().NoError(err)
		s.Len(page, 7)
	})

	s.Run("negative arguments are rejected", func() {
		_, _, err := s.service.GetTempHistory(ctx, "SHIP001", -1, 5)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("offset past the end is IndexOutOfRange", func() {
		_, _, err := s.service.GetTempHistory(ctx, "SHIP001", 8, 5)
		s.True(dErrors.HasCode(err, dErrors.CodeIndexOutOfRange))
	})

	s.Run("unknown shipment is NotFound", func() {
		_, _, err := s.service.GetTempHistory(ctx, "NOPE", 0, 5)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.service.GetShipmentProductDetails(ctx, "NOPE")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.service.GetTempHistoryEntry(ctx, "NOPE", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Concurrency and atomicity
// =============================================================================

func (s *LedgerServiceSuite) TestConcurrentIngestCompromisesOnce() {
	s.createSHIP001()

	const readers = 50
	var wg sync.WaitGroup
	var faults atomic.Int32
	for i := range readers {
		wg.Go(func() {
			res, err := s.ingest("SHIP001", int64(i), 20, "Highway Stop (Hot)")
			s.NoError(err)
			if err == nil && res.FaultDetected {
				faults.Add(1)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(1), faults.Load())
	count, err := s.service.GetTempHistoryCount(context.Background(), "SHIP001")
	s.Require().NoError(err)
	s.Equal(readers, count)
	s.Len(s.events(), readers+1)
}

type failingLog struct{}

func (failingLog) Append(context.Context, events.Event) (events.Event, error) {
	return events.Event{}, errors.New("disk full")
}

func (s *LedgerServiceSuite) TestEventLogFailureSurfacesAsInternal() {
	pol, err := policy.New(manufacturer, oracle)
	s.Require().NoError(err)
	svc := New(store.NewInMemory(), failingLog{}, pol, WithNotifier(s.notifier))

	_, err = svc.CreateShipment(as(manufacturer), "SHIP001", "x", 2, 8)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Zero(s.notifier.n.Load(), "no notification without a commit")
}

func (s *LedgerServiceSuite) TestCancelledContextIsRejectedBeforeMutation() {
	ctx, cancel := context.WithCancel(as(manufacturer))
	cancel()
	_, err := s.service.CreateShipment(ctx, "SHIP001", "x", 2, 8)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Empty(s.events())
}

func TestShardedTxSerializesSameKey(t *testing.T) {
	tx := NewShardedTx(time.Second)
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_ = tx.RunInTx(context.Background(), "SHIP001", func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}
