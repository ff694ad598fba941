// Package handler serves the event log over HTTP: paged replay and a live
// Server-Sent Events stream.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"coldchain/internal/events"
	"coldchain/internal/events/notifier"
	"coldchain/internal/platform/metrics"
	"coldchain/internal/platform/middleware"
	"coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/httputil"
)

// Log is the replayable event log.
type Log interface {
	ListAfter(ctx context.Context, after uint64, limit int) ([]events.Event, error)
}

// Subscriber opens live subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, filter events.Filter, buffer int) (*notifier.Subscription, error)
}

const (
	defaultReplayLimit = 100
	maxReplayLimit     = 1000
	defaultReplayTimeout = 30 * time.Second
	heartbeatInterval    = 15 * time.Second
	defaultStreamBuffer  = 64
)

type Handler struct {
	log           Log
	subscriber    Subscriber
	logger        *slog.Logger
	metrics       *metrics.Metrics
	heartbeat     time.Duration
	replayTimeout time.Duration
	streamBuffer  int
}

type Option func(*Handler)

// WithReplayTimeout bounds replay requests. The stream is never bounded.
func WithReplayTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.replayTimeout = d
		}
	}
}

// WithStreamBuffer sets the per-subscriber channel size of each stream.
func WithStreamBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.streamBuffer = n
		}
	}
}

func New(log Log, subscriber Subscriber, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		log:           log,
		subscriber:    subscriber,
		logger:        logger,
		metrics:       metrics,
		heartbeat:     heartbeatInterval,
		replayTimeout: defaultReplayTimeout,
		streamBuffer:  defaultStreamBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ReplayResponse is one page of the log. Next is the cursor to pass as
// "after" for the following page; it advances past filtered-out events too.
type ReplayResponse struct {
	Events []events.Event `json:"events"`
	Next   uint64         `json:"next"`
}

// Register registers the event routes. The stream route has no timeout.
func (h *Handler) Register(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.With(middleware.Timeout(h.replayTimeout)).Get("/", h.handleReplay)
		r.Get("/stream", h.handleStream)
	})
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := parseUint(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if limit == 0 {
		limit = defaultReplayLimit
	}
	limit = min(limit, maxReplayLimit)

	batch, err := h.log.ListAfter(r.Context(), filter.After, int(limit))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list events",
			"after", filter.After,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}

	resp := ReplayResponse{Events: make([]events.Event, 0, len(batch)), Next: filter.After}
	for _, e := range batch {
		if filter.Matches(e) {
			resp.Events = append(resp.Events, e)
		}
		resp.Next = e.Seq
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		seq, err := strconv.ParseUint(last, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Last-Event-ID must be an event sequence number"))
			return
		}
		filter.After = seq
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	sub, err := h.subscriber.Subscribe(ctx, filter, h.streamBuffer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.InfoContext(ctx, "event stream opened",
		"shipment_id", filter.ShipmentID,
		"after", filter.After,
		"request_id", middleware.GetRequestID(ctx),
	)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, e); err != nil {
				h.logger.DebugContext(ctx, "event stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Kind, data)
	return err
}

// parseFilter reads shipment_id, kind (repeatable or comma-separated) and after.
func parseFilter(r *http.Request) (events.Filter, error) {
	q := r.URL.Query()
	var filter events.Filter

	if raw := q.Get("shipment_id"); raw != "" {
		id, err := domain.ParseShipmentID(raw)
		if err != nil {
			return filter, err
		}
		filter.ShipmentID = id
	}
	for _, v := range q["kind"] {
		for k := range strings.SplitSeq(v, ",") {
			kind := events.Kind(strings.TrimSpace(k))
			if kind == "" {
				continue
			}
			if !kind.IsValid() {
				return filter, dErrors.New(dErrors.CodeBadRequest, "unknown event kind: "+string(kind))
			}
			filter.Kinds = append(filter.Kinds, kind)
		}
	}
	after, err := parseUint(q.Get("after"), "after")
	if err != nil {
		return filter, err
	}
	filter.After = after
	return filter, nil
}

func parseUint(raw, name string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}
