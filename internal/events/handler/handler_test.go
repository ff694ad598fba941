package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"coldchain/internal/events"
	"coldchain/internal/events/notifier"
	"coldchain/internal/events/store"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/testutil"
)

type EventsHandlerSuite struct {
	suite.Suite
	log      *store.InMemory
	notifier *notifier.Notifier
	router   http.Handler
}

func TestEventsHandlerSuite(t *testing.T) {
	suite.Run(t, new(EventsHandlerSuite))
}

func (s *EventsHandlerSuite) SetupTest() {
	s.log = store.NewInMemory()
	s.notifier = notifier.New(s.log, notifier.WithPollInterval(time.Hour))
	h := New(s.log, s.notifier, slog.New(slog.DiscardHandler), nil)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r

	for _, e := range []events.Event{
		{Kind: events.KindShipmentCreated, ShipmentID: "SHIP001"},
		{Kind: events.KindShipmentCreated, ShipmentID: "SHIP002"},
		{Kind: events.KindTemperatureUpdated, ShipmentID: "SHIP001", Temperature: 5},
		{Kind: events.KindFaultDetected, ShipmentID: "SHIP001", Temperature: 12},
	} {
		s.appendEvent(e)
	}
}

func (s *EventsHandlerSuite) appendEvent(e events.Event) {
	_, err := s.log.Append(context.Background(), e)
	s.Require().NoError(err)
	s.notifier.Notify()
}

func (s *EventsHandlerSuite) TestReplay() {
	s.Run("pages the whole log", func() {
		rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/events?limit=3", nil))
		s.Require().Equal(http.StatusOK, rr.Code)
		page := testutil.UnmarshalResponse[ReplayResponse](s.T(), rr)
		s.Len(page.Events, 3)
		s.Equal(uint64(3), page.Next)

		rr = testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/events?after=3", nil))
		page = testutil.UnmarshalResponse[ReplayResponse](s.T(), rr)
		s.Require().Len(page.Events, 1)
		s.Equal(uint64(4), page.Events[0].Seq)
	})

	s.Run("filters by shipment and kind but still advances", func() {
		rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet,
			"/events?shipment_id=SHIP001&kind=FaultDetected,TemperatureUpdated", nil))
		page := testutil.UnmarshalResponse[ReplayResponse](s.T(), rr)
		s.Require().Len(page.Events, 2)
		s.Equal(events.KindTemperatureUpdated, page.Events[0].Kind)
		s.Equal(uint64(4), page.Next)
	})

	s.Run("empty page keeps the cursor", func() {
		rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/events?after=10", nil))
		page := testutil.UnmarshalResponse[ReplayResponse](s.T(), rr)
		s.Empty(page.Events)
		s.Equal(uint64(10), page.Next)
	})

	s.Run("rejects bad parameters", func() {
		for _, q := range []string{"after=-1", "limit=x", "kind=Teleported"} {
			rr := testutil.DoRequest(s.router, httptest.NewRequest(http.MethodGet, "/events?"+q, nil))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
		}
	})
}

type sseFrame struct {
	id    string
	event string
	data  string
}

func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if f.id != "" {
				return f
			}
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func (s *EventsHandlerSuite) TestStream() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/stream?shipment_id=SHIP001", nil)
	s.Require().NoError(err)
	req.Header.Set("Last-Event-ID", "3")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readFrame(s.T(), reader)
	s.Equal("4", first.id)
	s.Equal("FaultDetected", first.event)

	s.appendEvent(events.Event{Kind: events.KindCustodyTransferred, ShipmentID: "SHIP002"})
	s.appendEvent(events.Event{Kind: events.KindCustodyTransferred, ShipmentID: "SHIP001"})

	live := readFrame(s.T(), reader)
	s.Equal("6", live.id)
	var e events.Event
	s.Require().NoError(json.Unmarshal([]byte(live.data), &e))
	s.Equal(events.KindCustodyTransferred, e.Kind)
}

func TestStreamRejectsBadLastEventID(t *testing.T) {
	log := store.NewInMemory()
	h := New(log, notifier.New(log), slog.New(slog.DiscardHandler), nil)
	r := chi.NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodGet, "/events/stream", nil)
	req.Header.Set("Last-Event-ID", "abc")
	rr := testutil.DoRequest(r, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

type capturingSubscriber struct {
	buffer int
}

func (c *capturingSubscriber) Subscribe(_ context.Context, _ events.Filter, buffer int) (*notifier.Subscription, error) {
	c.buffer = buffer
	return nil, dErrors.New(dErrors.CodeUnavailable, "not accepting subscribers")
}

type deadlineLog struct {
	deadline time.Time
}

func (d *deadlineLog) ListAfter(ctx context.Context, _ uint64, _ int) ([]events.Event, error) {
	d.deadline, _ = ctx.Deadline()
	return nil, nil
}

func TestConfiguredLimitsReachRoutes(t *testing.T) {
	log := &deadlineLog{}
	sub := &capturingSubscriber{}
	h := New(log, sub, slog.New(slog.DiscardHandler), nil,
		WithReplayTimeout(2*time.Second),
		WithStreamBuffer(8),
	)
	r := chi.NewRouter()
	h.Register(r)

	start := time.Now()
	rr := testutil.DoRequest(r, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, log.deadline.IsZero(), "replay runs under a deadline")
	assert.WithinDuration(t, start.Add(2*time.Second), log.deadline, time.Second)

	testutil.DoRequest(r, httptest.NewRequest(http.MethodGet, "/events/stream", nil))
	assert.Equal(t, 8, sub.buffer)
}
