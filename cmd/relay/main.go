package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"e2ee-relay/internal/auth"
	"e2ee-relay/internal/config"
	"e2ee-relay/internal/db"
	"e2ee-relay/internal/observability/logging"
	"e2ee-relay/internal/observability/metrics"
	"e2ee-relay/internal/observability/middleware"
	"e2ee-relay/internal/pow"
	"e2ee-relay/internal/presence"
	"e2ee-relay/internal/service"
	"e2ee-relay/internal/store"
	transport "e2ee-relay/internal/transport/http"
	"e2ee-relay/internal/transport/ws"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "relay",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})

	slog.SetDefault(logger)
	metrics.MustRegister("relay")

	logger.Info("starting service")

	cfg := config.Load()

	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}

	st := store.New(gdb)
	if err := st.AutoMigrate(context.Background()); err != nil {
		logger.Error("auto migrate", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := pow.New(cfg.PowDifficulty, cfg.PowTTL)
	engine.StartSweeper(ctx, cfg.PowSweepEvery)

	tokens := auth.NewTokenIssuer([]byte(cfg.SigningKey), "relay", cfg.TokenTTL)

	hub := ws.NewHub()
	registry := presence.NewRegistry(st.Contacts(), hub, cfg.OfflineGrace)

	delivery := service.NewDelivery(st, registry)
	signaling := service.NewSignaling(registry)
	contacts := service.NewContacts(st, registry)
	accounts := service.NewAccounts(st, engine, tokens)

	wsHandler := ws.NewHandler(hub, registry, delivery, signaling, st)
	wsHandler.InsecureSkipVerify = cfg.WSInsecureSkipVerify

	router := transport.NewRouter(transport.Deps{
		Store:       st,
		Accounts:    accounts,
		Contacts:    contacts,
		Pow:         engine,
		Tokens:      tokens,
		WS:          wsHandler,
		CORSOrigins: cfg.CORSOrigins,
	})

	startRetentionSweeper(ctx, st, cfg.MessageRetention, cfg.RetentionEvery)

	handler := middleware.WithRequestAndTrace(middleware.WithMetrics(router))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("relay listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// startRetentionSweeper purges undelivered messages past the retention
// horizon so the backlog of dead accounts stays bounded.
func startRetentionSweeper(ctx context.Context, st *store.Store, retention, every time.Duration) {
	sweep := func() {
		cutoff := time.Now().Add(-retention).Unix()
		n, err := st.Messages().PurgeStaleUndelivered(ctx, cutoff)
		if err != nil {
			slog.Error("retention sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("purged stale undelivered messages", "count", n)
		}
	}
	go func() {
		sweep()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
}
