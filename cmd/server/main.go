package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/powerchain/backend/docs"
	"github.com/powerchain/backend/internal/audit"
	"github.com/powerchain/backend/internal/config"
	"github.com/powerchain/backend/internal/database"
	"github.com/powerchain/backend/internal/handlers"
	"github.com/powerchain/backend/internal/identity"
	"github.com/powerchain/backend/internal/logger"
	mW "github.com/powerchain/backend/internal/middleware"
	"github.com/powerchain/backend/internal/models"
	"github.com/powerchain/backend/internal/services"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title PowerChain Energy Marketplace API
// @version 1.0
// @description Peer-to-peer renewable energy trading with energy credits, carbon credits and token governance
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load(viper.GetViper(), ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port

	var db *sql.DB
	if cfg.Database.Enabled {
		conn, err := database.InitDB(ctx, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := database.EnsureSchema(ctx, conn); err != nil {
			return err
		}
		db = conn
	}

	redisClient := database.InitRedis(ctx, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLogger := audit.NewAuditLogger(log)
	publishers := services.MultiPublisher{auditLogger}
	if redisClient != nil {
		publishers = append(publishers, services.NewRedisEventPublisher(redisClient, cfg.Events.Channel))
	}

	storeOpts := []services.StoreOption{services.WithLogger(log), services.WithPublisher(publishers)}
	var (
		events  handlers.EventSource
		history []models.Event
	)
	if db != nil {
		journal := database.NewEventJournal(db)
		storeOpts = append(storeOpts, services.WithJournal(journal))
		events = journal

		var err error
		if history, err = journal.Load(ctx); err != nil {
			return err
		}
	}
	store := services.NewLedgerStore(storeOpts...)

	svc, err := buildLedger(ctx, store, cfg, log, history)
	if err != nil {
		return err
	}

	authService := services.NewAuthService(db, redisClient, log, services.AuthConfig{
		SecretKey: cfg.JWT.SecretKey,
		Expiry:    time.Duration(cfg.JWT.ExpiryHours) * time.Hour,
		Argon2: services.Argon2Params{
			Time:       cfg.Argon2.Time,
			Memory:     cfg.Argon2.Memory,
			Threads:    cfg.Argon2.Threads,
			KeyLength:  cfg.Argon2.KeyLength,
			SaltLength: cfg.Argon2.SaltLength,
		},
	})

	api := handlers.API{
		Energy:     handlers.NewEnergyHandler(svc.energy, auditLogger),
		Carbon:     handlers.NewCarbonHandler(svc.carbon, auditLogger),
		Trading:    handlers.NewTradingHandler(svc.trading, auditLogger),
		Governance: handlers.NewGovernanceHandler(svc.governance, auditLogger),
		Settlement: handlers.NewSettlementHandler(svc.trading, services.NewSettlementReportService(services.SettlementConfig{
			Currency:      cfg.Settlement.Currency,
			AgentBIC:      cfg.Settlement.AgentBIC,
			CreditsPerKWh: cfg.Energy.CreditsPerKWh,
		})),
		Events: handlers.NewEventsHandler(events),
	}
	if db != nil {
		api.Auth = handlers.NewAuthHandler(authService)
	}
	if redisClient != nil {
		api.QR = handlers.NewQRHandler(services.NewOfferQRService(redisClient, svc.trading))
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", healthHandler(db, redisClient))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		api.Mount(r, mW.AuthMiddleware(authService))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

type ledger struct {
	energy     *services.EnergyCreditService
	carbon     *services.CarbonCreditService
	trading    *services.TradingService
	governance *services.GovernanceService
}

// buildLedger wires the four ledgers and replays the journal into them.
func buildLedger(ctx context.Context, store *services.LedgerStore, cfg *config.Config, log *zap.Logger, history []models.Event) (*ledger, error) {
	adminAddr, err := identity.Normalize(cfg.Ledger.Admin)
	if err != nil {
		return nil, fmt.Errorf("ledger.admin: %w", err)
	}
	tradingAddr, err := identity.Normalize(cfg.Ledger.TradingIdentity)
	if err != nil {
		return nil, fmt.Errorf("ledger.trading_identity: %w", err)
	}
	rates, err := byEnergyType(cfg.Carbon.Rates)
	if err != nil {
		return nil, fmt.Errorf("carbon.rates: %w", err)
	}
	prices, err := byEnergyType(cfg.Market.DefaultPrices)
	if err != nil {
		return nil, fmt.Errorf("market.default_prices: %w", err)
	}

	l := &ledger{}
	if l.energy, err = services.NewEnergyCreditService(store, services.EnergyCreditConfig{
		Admin:         adminAddr,
		CreditsPerKWh: cfg.Energy.CreditsPerKWh,
		InitialSupply: cfg.Energy.InitialSupply,
	}); err != nil {
		return nil, err
	}
	if l.carbon, err = services.NewCarbonCreditService(store, services.CarbonCreditConfig{
		Admin: adminAddr,
		Rates: rates,
	}); err != nil {
		return nil, err
	}
	if l.trading, err = services.NewTradingService(store, l.energy, l.carbon, services.TradingConfig{
		Identity:       tradingAddr,
		Admin:          adminAddr,
		DefaultPrices:  prices,
		MaxExpiryHours: cfg.Market.MaxExpiryHours,
	}); err != nil {
		return nil, err
	}
	if l.governance, err = services.NewGovernanceService(store, services.GovernanceConfig{
		Admin:         adminAddr,
		InitialSupply: cfg.Governance.InitialSupply,
		VotingPeriod:  cfg.Governance.VotingPeriod,
		Executor:      services.LoggingExecutor{Log: log.Named("executor")},
	}); err != nil {
		return nil, err
	}

	if err := store.Restore(history, l.energy, l.carbon, l.trading, l.governance); err != nil {
		return nil, err
	}

	// Settlements mint carbon credits as the trading identity. This is a
	// no-op when the journal already registered it.
	if err := l.carbon.AddIssuer(ctx, adminAddr, tradingAddr); err != nil {
		return nil, fmt.Errorf("register trading identity: %w", err)
	}
	return l, nil
}

func byEnergyType(in map[string]string) (map[models.EnergyType]decimal.Decimal, error) {
	out := make(map[models.EnergyType]decimal.Decimal, len(in))
	for k, v := range in {
		t, err := models.ParseEnergyType(k)
		if err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[t] = d
	}
	return out, nil
}

func healthHandler(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "database": "disabled", "redis": "disabled"}
		if db != nil {
			status["database"] = "up"
			if err := db.PingContext(r.Context()); err != nil {
				status["database"], status["status"] = "down", "degraded"
			}
		}
		if rdb != nil {
			status["redis"] = "up"
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				status["redis"], status["status"] = "down", "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}
