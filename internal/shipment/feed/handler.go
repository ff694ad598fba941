// Package feed ingests sensor readings from Kafka on behalf of the trusted
// oracle.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"coldchain/internal/platform/kafka/consumer"
	"coldchain/internal/shipment/models"
	"coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/requestcontext"
)

// requestIDHeader lets producers correlate a reading with their own logs.
const requestIDHeader = "request_id"

// Ledger is the subset of the ledger engine the feed needs.
type Ledger interface {
	IngestReading(ctx context.Context, id domain.ShipmentID, reading models.Reading) (*models.IngestResult, error)
}

// Handler turns one sensor message into one IngestReading call made as the
// oracle.
type Handler struct {
	ledger Ledger
	oracle domain.Identity
	logger *slog.Logger
}

func NewHandler(ledger Ledger, oracle domain.Identity, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		oracle: oracle,
		logger: logger,
	}
}

// Handle commits malformed messages and domain rejections, and returns an
// error only for failures a redelivery could fix.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	ctx = requestcontext.WithCaller(ctx, h.oracle)
	if reqID := msg.Headers[requestIDHeader]; reqID != "" {
		ctx = requestcontext.WithRequestID(ctx, reqID)
	}

	var req models.IngestReadingRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		h.logger.WarnContext(ctx, "dropping malformed sensor reading",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if req.ShipmentID == "" && len(msg.Key) > 0 {
		req.ShipmentID = string(msg.Key)
	}
	id, err := domain.ParseShipmentID(req.ShipmentID)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		h.logger.WarnContext(ctx, "dropping invalid sensor reading",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	result, err := h.ledger.IngestReading(ctx, id, req.Reading())
	if err != nil {
		if retryable(err) {
			return err
		}
		h.logger.WarnContext(ctx, "sensor reading rejected by ledger",
			"shipment_id", id,
			"code", dErrors.CodeOf(err),
			"offset", msg.Offset,
		)
		return nil
	}

	h.logger.DebugContext(ctx, "sensor reading ingested",
		"shipment_id", id,
		"reading_index", result.Index,
		"fault_detected", result.FaultDetected,
	)
	return nil
}

func retryable(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeTimeout, dErrors.CodeUnavailable:
		return true
	default:
		return false
	}
}
