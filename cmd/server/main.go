package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/gamby/crypto-engine/internal/api"
	"github.com/gamby/crypto-engine/internal/balance"
	"github.com/gamby/crypto-engine/internal/balancer"
	"github.com/gamby/crypto-engine/internal/config"
	"github.com/gamby/crypto-engine/internal/engine"
	"github.com/gamby/crypto-engine/internal/market"
	"github.com/gamby/crypto-engine/internal/metrics"
	"github.com/gamby/crypto-engine/internal/portfolio"
	"github.com/gamby/crypto-engine/internal/store"
	"github.com/gamby/crypto-engine/internal/trigger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Store and balance ledger ---
	var st store.Store
	var balances balance.Ledger
	var cleanup []func()

	startingBalance := decimal.NewFromFloat(cfg.StartingBalance)

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			balances = balance.NewRedisLedger(rdb, startingBalance)
			slog.Info("Redis cache and balance ledger enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}
	if balances == nil {
		balances = balance.NewMemoryLedger(startingBalance)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Simulation components ---
	seed := time.Now().UnixNano()
	eng := engine.New(rand.New(rand.NewSource(seed)), cfg.AdvancedMode)
	events := engine.NewScheduler(rand.New(rand.NewSource(seed+1)), 10*time.Minute)
	bal := balancer.New(rand.New(rand.NewSource(seed+2)), cfg.TargetWinRate)

	portfolios := portfolio.NewLedger(st, balances, cfg.FeeRate)
	triggers := trigger.NewLedger(st, portfolios, logger)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Market manager ---
	manager := market.NewManager(cfg, st, eng, events, bal, triggers, wsHub,
		rand.New(rand.NewSource(seed+3)), logger)
	if err := manager.InitializeMarket(ctx); err != nil {
		slog.Error("market initialization failed", "err", err)
		os.Exit(1)
	}
	go manager.Run(ctx)

	// --- HTTP router ---
	svc := api.NewService(st, balances, portfolios, triggers, manager, bal, eng, wsHub)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"crypto-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("crypto-engine listening", "port", cfg.Port, "advanced_mode", cfg.AdvancedMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down crypto-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("crypto-engine stopped")
}
