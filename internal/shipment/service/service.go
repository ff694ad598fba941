// Package service is the ledger engine: the only entry point that mutates
// shipments. Every mutation validates, mutates the registry and records its
// event inside one LedgerTx, then wakes the notifier after commit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"coldchain/internal/events"
	"coldchain/internal/shipment/metrics"
	"coldchain/internal/shipment/models"
	"coldchain/internal/shipment/policy"
	"coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/sentinel"
	"coldchain/pkg/requestcontext"
)

// Store is the shipment registry.
type Store interface {
	Create(ctx context.Context, shipment *models.Shipment) error
	Get(ctx context.Context, id domain.ShipmentID) (*models.Shipment, error)
	SetCustodian(ctx context.Context, id domain.ShipmentID, custodian domain.Identity) error
	SetStatus(ctx context.Context, id domain.ShipmentID, status models.Status) error
	AppendReading(ctx context.Context, id domain.ShipmentID, r models.Reading) (int, error)
	ReadingCount(ctx context.Context, id domain.ShipmentID) (int, error)
	ReadingAt(ctx context.Context, id domain.ShipmentID, index int) (models.Reading, error)
	Readings(ctx context.Context, id domain.ShipmentID, offset, limit int) ([]models.Reading, int, error)
}

// EventLog records committed mutations.
type EventLog interface {
	Append(ctx context.Context, e events.Event) (events.Event, error)
}

// Notifier is woken after each commit.
type Notifier interface {
	Notify()
}

const (
	opCreate   = "create_shipment"
	opTransfer = "transfer_custody"
	opIngest   = "ingest_reading"
)

const (
	DefaultHistoryPage = 100
	MaxHistoryPage     = 500
)

// Service orchestrates the shipment registry, the authorization policy and the
// event log.
type Service struct {
	store     Store
	eventLog  EventLog
	policy    *policy.Policy
	tx        LedgerTx
	notifiers []Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithTx(tx LedgerTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithNotifier adds a post-commit listener; may be given more than once.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifiers = append(s.notifiers, n)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service. Without WithTx it uses the in-memory ShardedTx.
func New(store Store, eventLog EventLog, pol *policy.Policy, opts ...Option) *Service {
	s := &Service{
		store:    store,
		eventLog: eventLog,
		policy:   pol,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("coldchain/shipment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(DefaultTxTimeout)
	}
	return s
}

// CreateShipment registers a new Active shipment held by the caller, who must
// be the manufacturer.
func (s *Service) CreateShipment(
	ctx context.Context,
	id domain.ShipmentID,
	productDetails string,
	minTemp, maxTemp int64,
) (*models.ShipmentDetails, error) {
	ctx, span := s.startSpan(ctx, opCreate, id)
	start := time.Now()
	caller := requestcontext.Caller(ctx)

	var details *models.ShipmentDetails
	err := s.tx.RunInTx(ctx, id, func(txCtx context.Context) error {
		if err := s.policy.CanCreate(caller); err != nil {
			return err
		}
		shipment, err := models.NewShipment(id, productDetails, minTemp, maxTemp, caller, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.Create(txCtx, shipment); err != nil {
			return translateStoreErr(err, "failed to create shipment")
		}
		if err := s.record(txCtx, events.Event{
			Kind:         events.KindShipmentCreated,
			ShipmentID:   id,
			Actor:        caller,
			To:           caller,
			ReadingIndex: events.NoReading,
		}); err != nil {
			return err
		}
		details = shipment.Details()
		return nil
	})
	s.finish(ctx, span, opCreate, id, start, err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "shipment created",
		"shipment_id", id,
		"custodian", caller,
		"min_temp", minTemp,
		"max_temp", maxTemp,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notifyAll()
	return details, nil
}

// TransferCustody hands the shipment to newCustodian. Only the current
// custodian may transfer, and transfers are allowed in any status.
func (s *Service) TransferCustody(ctx context.Context, id domain.ShipmentID, newCustodian string) (*models.ShipmentDetails, error) {
	ctx, span := s.startSpan(ctx, opTransfer, id)
	start := time.Now()
	caller := requestcontext.Caller(ctx)

	var details *models.ShipmentDetails
	var from domain.Identity
	err := s.tx.RunInTx(ctx, id, func(txCtx context.Context) error {
		shipment, err := s.store.Get(txCtx, id)
		if err != nil {
			return translateStoreErr(err, "failed to load shipment")
		}
		if err := s.policy.CanTransfer(caller, shipment); err != nil {
			return err
		}
		to, err := domain.ParseIdentity(newCustodian)
		if err != nil {
			return err
		}
		if err := s.store.SetCustodian(txCtx, id, to); err != nil {
			return translateStoreErr(err, "failed to update custodian")
		}
		if err := s.record(txCtx, events.Event{
			Kind:         events.KindCustodyTransferred,
			ShipmentID:   id,
			Actor:        caller,
			From:         shipment.Custodian,
			To:           to,
			ReadingIndex: events.NoReading,
		}); err != nil {
			return err
		}
		from = shipment.Custodian
		shipment.Custodian = to
		details = shipment.Details()
		return nil
	})
	s.finish(ctx, span, opTransfer, id, start, err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "custody transferred",
		"shipment_id", id,
		"from", from,
		"to", details.Custodian,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notifyAll()
	return details, nil
}

// IngestReading appends a reading submitted by the trusted oracle. The first
// out-of-range reading on an Active shipment compromises it and emits
// FaultDetected; every other reading emits TemperatureUpdated.
func (s *Service) IngestReading(ctx context.Context, id domain.ShipmentID, reading models.Reading) (*models.IngestResult, error) {
	ctx, span := s.startSpan(ctx, opIngest, id)
	start := time.Now()
	caller := requestcontext.Caller(ctx)

	var result *models.IngestResult
	err := s.tx.RunInTx(ctx, id, func(txCtx context.Context) error {
		shipment, err := s.store.Get(txCtx, id)
		if err != nil {
			return translateStoreErr(err, "failed to load shipment")
		}
		if err := s.policy.CanIngest(caller); err != nil {
			return err
		}
		if err := reading.Validate(); err != nil {
			return err
		}

		fault := shipment.Breaches(reading.Temperature) && shipment.Status.CanTransitionTo(models.StatusCompromised)

		index, err := s.store.AppendReading(txCtx, id, reading)
		if err != nil {
			return translateStoreErr(err, "failed to append reading")
		}
		status := shipment.Status
		kind := events.KindTemperatureUpdated
		if fault {
			if err := s.store.SetStatus(txCtx, id, models.StatusCompromised); err != nil {
				return translateStoreErr(err, "failed to update status")
			}
			status = models.StatusCompromised
			kind = events.KindFaultDetected
		}
		if err := s.record(txCtx, events.Event{
			Kind:             kind,
			ShipmentID:       id,
			Actor:            caller,
			Temperature:      reading.Temperature,
			Location:         reading.Location,
			ReadingIndex:     index,
			ReadingTimestamp: reading.Timestamp,
		}); err != nil {
			return err
		}
		result = &models.IngestResult{Index: index, Status: status, FaultDetected: fault}
		return nil
	})
	s.finish(ctx, span, opIngest, id, start, err)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementReadingsIngested()
	if result.FaultDetected {
		s.metrics.IncrementFaultsDetected()
		s.logger.WarnContext(ctx, "temperature fault detected",
			"shipment_id", id,
			"temperature", reading.Temperature,
			"location", reading.Location,
			"reading_index", result.Index,
		)
	} else {
		s.logger.InfoContext(ctx, "reading ingested",
			"shipment_id", id,
			"temperature", reading.Temperature,
			"reading_index", result.Index,
		)
	}
	s.notifyAll()
	return result, nil
}

// GetShipmentDetails returns the current snapshot.
func (s *Service) GetShipmentDetails(ctx context.Context, id domain.ShipmentID) (*models.ShipmentDetails, error) {
	shipment, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load shipment")
	}
	return shipment.Details(), nil
}

func (s *Service) GetShipmentProductDetails(ctx context.Context, id domain.ShipmentID) (string, error) {
	shipment, err := s.store.Get(ctx, id)
	if err != nil {
		return "", translateStoreErr(err, "failed to load shipment")
	}
	return shipment.ProductDetails, nil
}

func (s *Service) GetTempHistoryCount(ctx context.Context, id domain.ShipmentID) (int, error) {
	count, err := s.store.ReadingCount(ctx, id)
	if err != nil {
		return 0, translateStoreErr(err, "failed to count readings")
	}
	return count, nil
}

// GetTempHistoryEntry returns the reading at index, or IndexOutOfRange when
// index >= count.
func (s *Service) GetTempHistoryEntry(ctx context.Context, id domain.ShipmentID, index int) (*models.Reading, error) {
	reading, err := s.store.ReadingAt(ctx, id, index)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load reading")
	}
	return &reading, nil
}

// GetTempHistory returns up to limit readings starting at offset, plus the
// total count. limit 0 means DefaultHistoryPage; larger limits are capped.
func (s *Service) GetTempHistory(ctx context.Context, id domain.ShipmentID, offset, limit int) ([]models.Reading, int, error) {
	if offset < 0 || limit < 0 {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "offset and limit must not be negative")
	}
	if limit == 0 {
		limit = DefaultHistoryPage
	}
	limit = min(limit, MaxHistoryPage)

	readings, count, err := s.store.Readings(ctx, id, offset, limit)
	if err != nil {
		return nil, 0, translateStoreErr(err, "failed to load readings")
	}
	return readings, count, nil
}

func (s *Service) record(ctx context.Context, e events.Event) error {
	if _, err := s.eventLog.Append(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ledger event")
	}
	return nil
}

func (s *Service) notifyAll() {
	for _, n := range s.notifiers {
		n.Notify()
	}
}

func (s *Service) startSpan(ctx context.Context, op string, id domain.ShipmentID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.String("shipment.id", id.String()),
	))
}

// finish ends the span, records metrics and logs rejections.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, id domain.ShipmentID, start time.Time, err error) {
	defer span.End()

	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	span.SetAttributes(attribute.String("ledger.outcome", outcome))
	s.metrics.ObserveOperation(op, outcome, time.Since(start))

	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeTimeout || code == dErrors.CodeUnavailable {
		s.logger.ErrorContext(ctx, "ledger operation failed",
			"operation", op,
			"shipment_id", id,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	s.logger.WarnContext(ctx, "ledger operation rejected",
		"operation", op,
		"shipment_id", id,
		"code", code,
		"caller", requestcontext.Caller(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
}

// translateStoreErr maps store sentinels onto ledger error codes.
func translateStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "shipment not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeDuplicateID, "shipment id already exists")
	case errors.Is(err, sentinel.ErrOutOfRange):
		return dErrors.New(dErrors.CodeIndexOutOfRange, "index is beyond the temperature history")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
