package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/stockpit/market-engine/internal/auth"
	"github.com/stockpit/market-engine/internal/config"
	"github.com/stockpit/market-engine/internal/ledger"
	"github.com/stockpit/market-engine/internal/market"
	"github.com/stockpit/market-engine/internal/metrics"
	"github.com/stockpit/market-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load("")
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		// Ephemeral secret: tokens stop working across restarts, which is
		// acceptable for an in-memory game server.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			slog.Error("failed to generate jwt secret", "err", err)
			os.Exit(1)
		}
		secret = hex.EncodeToString(buf)
		slog.Warn("JWT_SECRET not set, generated an ephemeral secret")
	}

	// --- Core state ---
	mkt := market.New(cfg.Simulation.Instruments)
	ldg := ledger.New(mkt,
		decimal.NewFromInt(cfg.Trading.StartingCapital),
		cfg.Trading.BuySellEffect,
	)
	authSvc := auth.NewService(secret, cfg.Server.TTL())

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Price simulation ---
	seed := time.Now().UnixNano()
	sim := market.NewSimulator(mkt, cfg.Simulation, mrand.New(mrand.NewSource(seed)), wsHub)
	simCtx, stopSim := context.WithCancel(context.Background())
	defer stopSim()
	go sim.Run(simCtx)

	// --- Trade service ---
	tradeSvc := trade.NewService(mkt, ldg, authSvc, wsHub, cfg.Trading.HistoryLimit)

	// --- HTTP router ---
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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Post("/auth/register", tradeSvc.RegisterUser)
	r.Post("/auth/login", tradeSvc.Login)

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time tick and trade updates.
		r.Get("/ws", wsHub.HandleWS)

		// Public market data.
		r.Get("/stocks", tradeSvc.ListStocks)
		r.Get("/trade/players", tradeSvc.Players)

		// Authenticated market data and trading.
		r.Group(func(r chi.Router) {
			r.Use(authSvc.Middleware)
			r.Get("/stocks/history", tradeSvc.GetHistory)
			r.Get("/stocks/events", tradeSvc.GetEvents)
			r.Post("/trade/buy", tradeSvc.Buy)
			r.Post("/trade/sell", tradeSvc.Sell)
			r.Get("/trade/me", tradeSvc.Me)
			r.Get("/trade/transactions", tradeSvc.Transactions)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening",
			"port", cfg.Server.Port,
			"instruments", len(cfg.Simulation.Instruments),
			"tick_interval", cfg.Simulation.TickInterval,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopSim()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-engine stopped")
}
