package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"kinesis-pay/internal/config"
	"kinesis-pay/internal/gateway"
	"kinesis-pay/internal/metrics"
	"kinesis-pay/internal/models"
	"kinesis-pay/internal/repository"
	"kinesis-pay/internal/repository/inmemory"
	"kinesis-pay/internal/service"
	"kinesis-pay/pkg/database"
	"kinesis-pay/pkg/redis"
)

// LedgerStore is the ledger as the binaries see it.
type LedgerStore interface {
	service.Ledger
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	CountTransactionsSince(ctx context.Context, since time.Time) (int, error)
}

type SessionStore interface {
	service.SessionStore
	GetByPaymentID(ctx context.Context, gatewayPaymentID string) (*models.PaymentSession, error)
}

type AuditStore interface {
	service.AuditStore
	ListByInvoice(ctx context.Context, invoiceID string) ([]*models.AuditEntry, error)
}

// App holds the wired components shared by the server and the operator CLI.
type App struct {
	Config     *config.Config
	Metrics    *metrics.Metrics
	Gateway    *gateway.Client
	Sessions   SessionStore
	Ledger     LedgerStore
	AuditStore AuditStore
	Audit      *service.AuditLogger
	Links      *service.SecureLinks
	Rates      *service.RateCache
	Initiator  *service.Initiator
	Reconciler *service.Reconciler
	Redis      *redis.Client

	db *database.PostgresDB
}

// New wires the application. reg may be nil to skip metric registration.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	pct, _ := cfg.PercentageValue()

	a := &App{
		Config:  cfg,
		Metrics: metrics.New(reg),
		Links:   service.NewSecureLinks(cfg.LinkSecret),
	}

	switch cfg.Store {
	case config.StoreMemory:
		a.Sessions = inmemory.NewSessionStore()
		a.Ledger = inmemory.NewLedger()
		a.AuditStore = inmemory.NewAuditLog()
	default:
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := repository.Migrate(db.DB, "postgres"); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.Sessions = repository.NewSessionRepository(db.DB)
		a.Ledger = repository.NewLedgerRepository(db.DB)
		a.AuditStore = repository.NewAuditRepository(db.DB)
	}

	if cfg.RedisURL != "" {
		a.Redis = redis.NewRedisClient(cfg.RedisURL, "")
		if err := a.Redis.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using memory rate cache only", zap.Error(err))
			a.Redis.Close()
			a.Redis = nil
		}
	}

	a.Audit = service.NewAuditLogger(a.AuditStore, cfg.SecretToken, log)
	a.Gateway = gateway.NewClient(cfg.GatewayConfig(), &http.Client{Timeout: 15 * time.Second}, a.Audit, a.Metrics, log.Named("gateway"))
	a.Rates = service.NewRateCache(a.Gateway, a.Redis, cfg.RateCacheTTL, log)

	pricer := service.NewPricer(cfg.Mode(), cfg.Currency, pct, a.Rates)
	recorder := service.NewRecorder(a.Ledger, a.Links, log)

	a.Initiator = service.NewInitiator(service.InitiatorConfig{
		Configured: cfg.IsConfigured(),
		KMSBaseURL: cfg.KMSBaseURL,
		StatusURL:  cfg.StatusURL(),
	}, pricer, a.Gateway, a.Sessions, a.Links, a.Metrics, log)
	a.Reconciler = service.NewReconciler(a.Gateway, a.Sessions, recorder, a.Audit, a.Metrics, log)

	return a, nil
}

// Ready checks the backing stores.
func (a *App) Ready(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
