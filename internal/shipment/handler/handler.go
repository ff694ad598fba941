package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"coldchain/internal/platform/metrics"
	"coldchain/internal/platform/middleware"
	"coldchain/internal/shipment/models"
	"coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/httputil"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	CreateShipment(ctx context.Context, id domain.ShipmentID, productDetails string, minTemp, maxTemp int64) (*models.ShipmentDetails, error)
	TransferCustody(ctx context.Context, id domain.ShipmentID, newCustodian string) (*models.ShipmentDetails, error)
	IngestReading(ctx context.Context, id domain.ShipmentID, reading models.Reading) (*models.IngestResult, error)
	GetShipmentDetails(ctx context.Context, id domain.ShipmentID) (*models.ShipmentDetails, error)
	GetShipmentProductDetails(ctx context.Context, id domain.ShipmentID) (string, error)
	GetTempHistoryCount(ctx context.Context, id domain.ShipmentID) (int, error)
	GetTempHistoryEntry(ctx context.Context, id domain.ShipmentID, index int) (*models.Reading, error)
	GetTempHistory(ctx context.Context, id domain.ShipmentID, offset, limit int) ([]models.Reading, int, error)
}

const defaultRequestTimeout = 30 * time.Second

// Handler serves the shipment routes.
type Handler struct {
	logger         *slog.Logger
	ledger         Service
	metrics        *metrics.Metrics
	validator      middleware.TokenValidator
	requestTimeout time.Duration
}

type Option func(*Handler)

// WithRequestTimeout bounds every shipment request. Non-positive values keep
// the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

// New creates a shipment Handler.
func New(ledger Service, logger *slog.Logger, metrics *metrics.Metrics, validator middleware.TokenValidator, opts ...Option) *Handler {
	h := &Handler{
		logger:         logger,
		ledger:         ledger,
		metrics:        metrics,
		validator:      validator,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the shipment routes with the chi router. Reads are
// public; writes require a bearer token whose subject becomes the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/shipments", func(r chi.Router) {
		r.Use(middleware.Timeout(h.requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))

		r.Get("/{id}", h.handleGetShipment)
		r.Get("/{id}/product", h.handleGetProduct)
		r.Get("/{id}/readings", h.handleGetHistory)
		r.Get("/{id}/readings/count", h.handleGetHistoryCount)
		r.Get("/{id}/readings/{index}", h.handleGetHistoryEntry)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCaller(h.validator, h.logger))
			r.Post("/", h.handleCreateShipment)
			r.Post("/{id}/custody", h.handleTransferCustody)
			r.Post("/{id}/readings", h.handleIngestReading)
		})
	})
}

func (h *Handler) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CreateShipmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := domain.ParseShipmentID(req.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, err := h.ledger.CreateShipment(ctx, id, req.ProductDetails, *req.MinTemp, *req.MaxTemp)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, details)
}

func (h *Handler) handleTransferCustody(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	var req models.TransferCustodyRequest
	if !h.decode(w, r, &req) {
		return
	}

	details, err := h.ledger.TransferCustody(r.Context(), id, req.NewCustodian)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, details)
}

func (h *Handler) handleIngestReading(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	var req models.IngestReadingRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.ledger.IngestReading(r.Context(), id, req.Reading())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	details, err := h.ledger.GetShipmentDetails(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, details)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	product, err := h.ledger.GetShipmentProductDetails(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ProductDetailsResponse{ID: id.String(), ProductDetails: product})
}

func (h *Handler) handleGetHistoryCount(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	count, err := h.ledger.GetTempHistoryCount(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.HistoryCountResponse{ID: id.String(), Count: count})
}

func (h *Handler) handleGetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "index must be a non-negative integer"))
		return
	}

	reading, err := h.ledger.GetTempHistoryEntry(r.Context(), id, index)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.HistoryEntryResponse{Index: index, Reading: *reading})
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	readings, total, err := h.ledger.GetTempHistory(r.Context(), id, offset, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewHistoryPage(id.String(), offset, total, readings))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func shipmentID(w http.ResponseWriter, r *http.Request) (domain.ShipmentID, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed shipment id"))
		return "", false
	}
	id, err := domain.ParseShipmentID(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}

// queryInt reads an optional non-negative integer; absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be a non-negative integer")
	}
	return n, nil
}
