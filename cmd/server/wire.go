package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"transferdesk/internal/platform/config"
	platformmetrics "transferdesk/internal/platform/metrics"
	platformredis "transferdesk/internal/platform/redis"
	"transferdesk/internal/workflow/guard"
	"transferdesk/internal/workflow/handler"
	workflowmetrics "transferdesk/internal/workflow/metrics"
	"transferdesk/internal/workflow/service"
	"transferdesk/internal/workflow/stage"
	memorystore "transferdesk/internal/workflow/store/memory"
	pgstore "transferdesk/internal/workflow/store/postgres"
	redisstore "transferdesk/internal/workflow/store/redis"
	"transferdesk/pkg/platform/audit"
	"transferdesk/pkg/platform/audit/outbox"
	"transferdesk/pkg/platform/audit/publishers/compliance"
	auditmemory "transferdesk/pkg/platform/audit/store/memory"
	auditpg "transferdesk/pkg/platform/audit/store/postgres"
	"transferdesk/pkg/platform/middleware/metadata"
	"transferdesk/pkg/platform/middleware/requestmeta"
	"transferdesk/pkg/platform/tx"
)

// app holds everything main starts and later closes.
type app struct {
	router  http.Handler
	service *service.Service
	relay   *outbox.Relay
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// buildApp compiles the workflow graph, validates the guard registry against
// it and wires the configured backend. Any configuration error fails startup.
func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	def, err := stage.LoadDefinition(cfg.WorkflowDefinition)
	if err != nil {
		return nil, err
	}
	graph, err := stage.Build(def)
	if err != nil {
		return nil, err
	}
	guards, err := guard.NewDefaultRegistry(graph)
	if err != nil {
		return nil, err
	}
	if err := guards.Validate(graph); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{}
	var (
		store     service.Store
		auditSink audit.Store
		opts      = []service.Option{
			service.WithLogger(log),
			service.WithMetrics(workflowmetrics.New(reg)),
		}
	)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := pgstore.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		store = pgstore.New(db)
		opts = append(opts, service.WithTx(tx.NewSQLRunner(db, cfg.TxTimeout)))

		if len(cfg.Audit.KafkaBrokers) == 0 {
			log.InfoContext(ctx, "no kafka brokers configured; audit outbox is archive only")
			auditSink = auditpg.New(db, auditpg.WithArchiveOnly())
		} else {
			outboxStore := auditpg.New(db)
			auditSink = outboxStore
			client, err := kgo.NewClient(
				kgo.SeedBrokers(cfg.Audit.KafkaBrokers...),
				kgo.AllowAutoTopicCreation(),
			)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("create kafka client: %w", err)
			}
			a.closers = append(a.closers, func() error { client.Close(); return nil })
			a.relay = outbox.NewRelay(outboxStore, client, cfg.Audit.Topic,
				outbox.WithBatchSize(cfg.Audit.RelayBatch),
				outbox.WithInterval(cfg.Audit.RelayInterval),
				outbox.WithLogger(log),
			)
		}
	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		store = redisstore.New(client.Client)
		auditSink = auditmemory.NewInMemoryStore()
	case config.BackendMemory:
		store = memorystore.NewInMemoryCaseStore()
		auditSink = auditmemory.NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	opts = append(opts, service.WithAuditPublisher(compliance.New(auditSink,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)))
	a.service = service.New(graph, guards, store, opts...)
	a.router = newRouter(a.service, reg, platformmetrics.NewHTTP(reg), log)
	return a, nil
}

func newRouter(svc handler.Service, reg *prometheus.Registry, httpMetrics *platformmetrics.HTTP, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestmeta.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(httpMetrics.Middleware)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handler.New(svc, log).Register(r)
	return r
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping postgres: %w", err), db.Close())
	}
	return db, nil
}
