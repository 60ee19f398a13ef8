package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"irs-settlement/internal/audit"
	"irs-settlement/internal/auth"
	"irs-settlement/internal/eventing"
	"irs-settlement/internal/eventing/eventbus"
	eventingmemory "irs-settlement/internal/eventing/infrastructure/memory"
	eventingrepo "irs-settlement/internal/eventing/infrastructure/postgres"
	"irs-settlement/internal/observability/logging"
	"irs-settlement/internal/observability/metrics"
	"irs-settlement/internal/swap/application"
	"irs-settlement/internal/swap/application/events"
	swapmemory "irs-settlement/internal/swap/infrastructure/memory"
	"irs-settlement/internal/swap/infrastructure/oracle"
	swaprepo "irs-settlement/internal/swap/infrastructure/postgres"
	"irs-settlement/internal/swap/interfaces"
	swaphttp "irs-settlement/internal/swap/interfaces/http"
)

type config struct {
	DatabaseURL      string
	HTTPAddr         string
	Env              string
	TenantID         string
	JWTSecret        string
	StaleTolerance   time.Duration
	OracleTimeout    time.Duration
	OracleHTTPURL    string
	OracleHTTPToken  string
	OracleRetries    int
	EthRPCURL        string
	LedgerTimeout    time.Duration
	AgreementBook    string
	DispatchInterval time.Duration
}

func main() {
	cfg := loadConfig()
	logger, syncLogger := logging.New(cfg.Env)
	defer func() { _ = syncLogger() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

// backend holds the storage-dependent collaborators.
type backend struct {
	db        *sql.DB
	uow       application.UnitOfWork
	outbox    eventing.OutboxStore
	processed eventing.ProcessedStore
	dlq       eventing.DLQStore
	audit     audit.Logger
	fixings   *oracle.FixingsOracle
}

func openBackend(cfg config, logger *zap.Logger) (backend, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, state is kept in memory")
		outbox := eventingmemory.NewOutboxStore()
		return backend{
			uow:       swapmemory.NewStore(swapmemory.WithOutbox(outbox, cfg.TenantID)),
			outbox:    outbox,
			processed: eventingmemory.NewProcessedStore(),
			audit:     audit.NewZapLogger(logger),
		}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return backend{}, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return backend{}, err
	}
	outbox := eventingrepo.NewOutboxStore(db)
	uow, err := swaprepo.NewUnitOfWork(db, outbox, cfg.TenantID)
	if err != nil {
		_ = db.Close()
		return backend{}, err
	}
	return backend{
		db:        db,
		uow:       uow,
		outbox:    outbox,
		processed: eventingrepo.NewProcessedStore(db),
		dlq:       eventingrepo.NewDLQStore(db),
		audit:     audit.NewRepository(db),
		fixings:   oracle.NewFixingsOracle(db),
	}, nil
}

func buildOracle(cfg config, be backend, logger *zap.Logger) (*oracle.Chain, func(), error) {
	var (
		sources []application.Oracle
		closers []func()
	)
	if be.fixings != nil {
		sources = append(sources, be.fixings)
	}
	if cfg.OracleHTTPURL != "" {
		httpOracle, err := oracle.NewHTTPOracle(cfg.OracleHTTPURL,
			oracle.WithRetries(cfg.OracleRetries, 200*time.Millisecond),
			oracle.WithToken(cfg.OracleHTTPToken),
			oracle.WithHTTPLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, httpOracle)
	}
	if cfg.EthRPCURL != "" {
		client, err := ethclient.Dial(cfg.EthRPCURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, client.Close)
		aggregator, err := oracle.NewAggregatorOracle(client)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		sources = append(sources, aggregator)
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return oracle.NewChain(logger.Named("oracle"), sources...), closeAll, nil
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	be, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	if be.db != nil {
		defer be.db.Close()
	}
	metrics.Init(be.db, logger)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry(events.All()...)
	dispatcher := eventing.NewDispatcher(baseBus, be.outbox, registry, be.dlq, logger.Named("outbox"))
	interfaces.NewEventLogger(logger).Register(baseBus, be.processed)

	rates, closeOracles, err := buildOracle(cfg, be, logger)
	if err != nil {
		return err
	}
	defer closeOracles()
	if rates.Len() == 0 {
		logger.Warn("no oracle configured, only manual benchmarks can settle")
	}
	resolver, err := application.NewRateResolver(rates, cfg.StaleTolerance,
		application.WithOracleTimeout(cfg.OracleTimeout),
		application.WithResolverLogger(logger),
	)
	if err != nil {
		return err
	}
	service, err := application.NewSettlementService(be.uow, resolver,
		application.WithLogger(logger),
		application.WithDispatcher(dispatcher),
		application.WithLedgerTimeout(cfg.LedgerTimeout),
	)
	if err != nil {
		return err
	}

	if cfg.AgreementBook != "" {
		if err := loadBook(ctx, cfg.AgreementBook, service, be, logger); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	swaphttp.NewHandler(service,
		swaphttp.WithAudit(be.audit),
		swaphttp.WithOutboxDispatcher(dispatcher),
		swaphttp.WithLogger(logger.Named("http")),
	).Register(mux)

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil), logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logging.Slog(logger).Handler(), slog.LevelError),
	}

	go dispatchLoop(ctx, dispatcher, cfg.DispatchInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("tenant_id", cfg.TenantID))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func loadBook(ctx context.Context, path string, service *application.SettlementService, be backend, logger *zap.Logger) error {
	book, err := application.LoadBook(path)
	if err != nil {
		return err
	}
	terms, err := book.Terms()
	if err != nil {
		return err
	}
	created, err := service.EnsureAgreements(ctx, terms)
	if err != nil {
		return err
	}
	// Opening balances are only seeded into the in-memory ledger; a database
	// ledger keeps its balances across restarts.
	if be.db == nil {
		if err := book.Fund(ctx, be.uow); err != nil {
			return err
		}
	} else if len(book.Funding) > 0 {
		logger.Warn("agreement book funding ignored with a database ledger", zap.Int("entries", len(book.Funding)))
	}
	logger.Info("agreement book loaded", zap.String("path", path), zap.Int("agreements", len(terms)), zap.Int("created", created))
	return nil
}

// dispatchLoop retries outbox records left pending, for example by a crash
// between commit and dispatch.
func dispatchLoop(ctx context.Context, dispatcher *eventing.Dispatcher, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := dispatcher.Dispatch(ctx, eventing.DefaultDispatchLimit)
			if err != nil {
				logger.Warn("outbox dispatch error", zap.Error(err))
				continue
			}
			if result.Claimed > 0 {
				logger.Debug("outbox dispatched", zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
			}
		}
	}
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", os.Getenv("PG_DSN")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		Env:              getenvDefault("APP_ENV", "dev"),
		TenantID:         getenvDefault("TENANT_ID", "default"),
		JWTSecret:        os.Getenv("AUTH_JWT_SECRET"),
		StaleTolerance:   getenvDuration("ORACLE_STALE_TOLERANCE", 24*time.Hour),
		OracleTimeout:    getenvDuration("ORACLE_TIMEOUT", application.DefaultOracleTimeout),
		OracleHTTPURL:    os.Getenv("ORACLE_HTTP_URL"),
		OracleHTTPToken:  os.Getenv("ORACLE_HTTP_TOKEN"),
		OracleRetries:    getenvIntDefault("ORACLE_RETRIES", 2),
		EthRPCURL:        os.Getenv("ETH_RPC_URL"),
		LedgerTimeout:    getenvDuration("LEDGER_TIMEOUT", 5*time.Second),
		AgreementBook:    os.Getenv("AGREEMENT_BOOK"),
		DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.StaleTolerance <= 0 {
		log.Fatal("ORACLE_STALE_TOLERANCE must be positive")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
