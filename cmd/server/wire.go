package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coldchain/internal/events"
	"coldchain/internal/events/cursor"
	"coldchain/internal/events/dispatcher"
	eventshandler "coldchain/internal/events/handler"
	eventsmetrics "coldchain/internal/events/metrics"
	"coldchain/internal/events/notifier"
	"coldchain/internal/events/sink"
	eventstore "coldchain/internal/events/store"
	"coldchain/internal/jwttoken"
	"coldchain/internal/platform/config"
	"coldchain/internal/platform/kafka"
	"coldchain/internal/platform/kafka/consumer"
	"coldchain/internal/platform/metrics"
	"coldchain/internal/platform/middleware"
	"coldchain/internal/platform/postgres"
	platformredis "coldchain/internal/platform/redis"
	"coldchain/internal/shipment/feed"
	shipmenthandler "coldchain/internal/shipment/handler"
	shipmentmetrics "coldchain/internal/shipment/metrics"
	"coldchain/internal/shipment/policy"
	"coldchain/internal/shipment/service"
	shipmentstore "coldchain/internal/shipment/store"
	"coldchain/pkg/platform/circuit"
	"coldchain/pkg/platform/httputil"
)

// eventLog is what the engine, the notifier and the dispatcher share.
type eventLog interface {
	Append(ctx context.Context, e events.Event) (events.Event, error)
	ListAfter(ctx context.Context, after uint64, limit int) ([]events.Event, error)
	LastSeq(ctx context.Context) (uint64, error)
}

type healthCheck func(ctx context.Context) error

type app struct {
	router     http.Handler
	dispatcher *dispatcher.Dispatcher
	feed       *consumer.Consumer
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires stores, the ledger engine, the notifier, outbound sinks, the
// sensor feed and the HTTP router from cfg.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.New(reg)
	ledgerMetrics := shipmentmetrics.New(reg)
	eventMetrics := eventsmetrics.New(reg)

	pol, err := policy.New(cfg.Manufacturer(), cfg.Oracle())
	if err != nil {
		return nil, err
	}

	checks := map[string]healthCheck{}
	var (
		shipments service.Store
		evlog     eventLog
		tx        service.LedgerTx
	)
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		shipments = shipmentstore.NewPostgres(db)
		evlog = eventstore.NewPostgres(db)
		tx = shipmentstore.NewPostgresTx(db, cfg.Ledger.TxTimeout)
		checks["postgres"] = db.PingContext
	default:
		shipments = shipmentstore.NewInMemory()
		evlog = eventstore.NewInMemory()
		tx = service.NewShardedTx(cfg.Ledger.TxTimeout)
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		checks["redis"] = redisClient.Health
	}

	notif := notifier.New(evlog,
		notifier.WithPollInterval(cfg.Notifier.PollInterval),
		notifier.WithBatchSize(cfg.Notifier.BatchSize),
		notifier.WithLogger(log),
		notifier.WithMetrics(eventMetrics),
	)

	var sinks []dispatcher.Sink
	if redisClient != nil {
		sinks = append(sinks, sink.NewRedis(redisClient, cfg.Redis.Channel, eventMetrics))
	}
	if cfg.KafkaEnabled() {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		if err := kafka.EnsureTopics(ctx, producer, cfg.Kafka.Partitions, cfg.Kafka.Replication,
			cfg.Kafka.EventsTopic, cfg.Kafka.SensorTopic); err != nil {
			log.Warn("could not ensure kafka topics", "error", err)
		}
		breaker := circuit.New("kafka",
			circuit.WithFailureThreshold(cfg.Kafka.BreakerFailures),
			circuit.WithCooldown(cfg.Kafka.BreakerCooldown),
		)
		sinks = append(sinks, sink.NewKafka(producer, cfg.Kafka.EventsTopic, breaker, log, eventMetrics))
	}

	opts := []service.Option{
		service.WithTx(tx),
		service.WithLogger(log),
		service.WithMetrics(ledgerMetrics),
		service.WithNotifier(notif),
	}
	if len(sinks) > 0 {
		var cur dispatcher.Cursor = cursor.NewInMemory()
		if cfg.Notifier.Cursor == config.CursorRedis {
			cur = cursor.NewRedis(redisClient, cfg.Redis.CursorKey)
		}
		a.dispatcher = dispatcher.New(evlog, cur, sinks,
			dispatcher.WithInterval(cfg.Notifier.PollInterval),
			dispatcher.WithBatchSize(cfg.Notifier.BatchSize),
			dispatcher.WithLogger(log),
			dispatcher.WithMetrics(eventMetrics),
		)
		opts = append(opts, service.WithNotifier(a.dispatcher))
	}
	ledger := service.New(shipments, evlog, pol, opts...)

	if cfg.KafkaEnabled() {
		client, err := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.SensorTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		router := consumer.NewRouter(log, nil)
		router.Register(cfg.Kafka.SensorTopic, feed.NewHandler(ledger, cfg.Oracle(), log))
		a.feed = consumer.New(client, router, log)
	}

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Get("/health", handleHealth(checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	shipmenthandler.New(ledger, log, httpMetrics, tokens,
		shipmenthandler.WithRequestTimeout(cfg.Server.RequestTimeout),
	).Register(r)
	eventshandler.New(evlog, notif, log, httpMetrics,
		eventshandler.WithReplayTimeout(cfg.Server.RequestTimeout),
		eventshandler.WithStreamBuffer(cfg.Notifier.SubscriberBuffer),
	).Register(r)
	a.router = r

	return a, nil
}

func handleHealth(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[name] = fmt.Sprintf("down: %v", err)
				continue
			}
			deps[name] = "up"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "dependencies": deps})
	}
}
