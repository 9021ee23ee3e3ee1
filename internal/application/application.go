package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-tracker/internal/config"
	"github.com/psds-microservice/ticket-tracker/internal/database"
	"github.com/psds-microservice/ticket-tracker/internal/handler"
	"github.com/psds-microservice/ticket-tracker/internal/kafka"
	"github.com/psds-microservice/ticket-tracker/internal/lifecycle"
	"github.com/psds-microservice/ticket-tracker/internal/repository/memstore"
	"github.com/psds-microservice/ticket-tracker/internal/repository/mongostore"
	"github.com/psds-microservice/ticket-tracker/internal/repository/pgstore"
	"github.com/psds-microservice/ticket-tracker/internal/router"
	"github.com/psds-microservice/ticket-tracker/internal/searchindex"
	"github.com/psds-microservice/ticket-tracker/internal/service"
	"github.com/psds-microservice/ticket-tracker/internal/suggest"
	"go.uber.org/zap"
)

// Backend is an opened store plus what the process needs to probe and close it.
type Backend struct {
	Store service.Store
	Ready func(context.Context) error
	Close func(context.Context) error
}

// OpenStore connects the backend selected by cfg.StoreDriver. Postgres is
// migrated before use; Mongo gets its indexes.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if err := database.MigrateUp(cfg.DatabaseURL(), log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := database.Open(cfg.DSN(), log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return &Backend{
			Store: pgstore.New(db),
			Ready: sqlDB.PingContext,
			Close: func(context.Context) error { return sqlDB.Close() },
		}, nil
	case config.StoreDriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		store := mongostore.New(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return &Backend{
			Store: store,
			Ready: func(ctx context.Context) error { return client.Ping(ctx, nil) },
			Close: client.Disconnect,
		}, nil
	case config.StoreDriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return &Backend{
			Store: memstore.New(),
			Close: func(context.Context) error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// API is the HTTP application (api mode).
type API struct {
	cfg      *config.Config
	log      *zap.Logger
	httpSrv  *http.Server
	backend  *Backend
	producer *kafka.Producer
}

// NewAPI wires the store, services, handlers and router.
func NewAPI(ctx context.Context, cfg *config.Config, log *zap.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	transitions, err := lifecycle.Parse(cfg.Transitions)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	backend, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	limits := service.Limits{
		TicketAttachmentMaxBytes:  cfg.TicketAttachmentMaxBytes,
		CommentAttachmentMaxBytes: cfg.CommentAttachmentMaxBytes,
	}
	svcCfg := service.Config{
		Transitions: transitions,
		Limits:      limits,
		Logger:      log.Named("service"),
	}
	if cfg.SuggestServiceURL != "" {
		svcCfg.Suggester = suggest.NewClient(cfg.SuggestServiceURL, log)
	}
	tickets := service.NewTicketService(backend.Store, svcCfg)
	reviews := service.NewReviewService(backend.Store, tickets)
	projects := service.NewProjectService(backend.Store, tickets)

	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopicTicket, log)
	var events kafka.TicketEventProducer
	if producer.Enabled() {
		events = producer
	}
	var search searchindex.Indexer
	if cfg.SearchServiceURL != "" {
		search = searchindex.NewClient(cfg.SearchServiceURL, log)
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpLog := log.Named("http")
	h := router.New(router.Options{
		Tickets:   handler.NewTicketHandler(tickets, events, search, limits, httpLog),
		Reviews:   handler.NewReviewHandler(reviews, events, search, limits, httpLog),
		Projects:  handler.NewProjectHandler(projects, httpLog),
		JWTSecret: cfg.AuthJWTSecret,
		Ready:     backend.Ready,
		Log:       httpLog,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &API{
		cfg:      cfg,
		log:      log,
		httpSrv:  srv,
		backend:  backend,
		producer: producer,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("http server listening",
		zap.String("addr", a.httpSrv.Addr),
		zap.String("store", a.cfg.StoreDriver),
		zap.String("swagger", base+"/swagger"),
		zap.String("api", base+"/api/v1/"),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			a.close()
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.close()
	a.log.Info("http server stopped")
	return nil
}

func (a *API) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.producer.Close(); err != nil {
		a.log.Warn("close kafka producer", zap.Error(err))
	}
	if err := a.backend.Close(ctx); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
}
