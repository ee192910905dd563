package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paypr/backend/internal/audit"
	"github.com/paypr/backend/internal/config"
	"github.com/paypr/backend/internal/database"
	"github.com/paypr/backend/internal/handlers"
	mW "github.com/paypr/backend/internal/middleware"
	"github.com/paypr/backend/internal/payments"
	"github.com/paypr/backend/internal/repository"
	"github.com/paypr/backend/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

func main() {
	config.Init()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.InitDatabase(rootCtx)
	defer db.Close()

	redisClient := database.InitRedis(rootCtx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories
	ledgerRepo := repository.NewLedgerRepo(db)
	articleRepo := repository.NewArticleRepo(db)
	earningsRepo := repository.NewEarningsRepo(db)
	splitRuleRepo := repository.NewSplitRuleRepo(db)
	revocationRepo := repository.NewRevocationRepo(db)
	eventRepo := repository.NewEventRepo(db)
	revocations := repository.NewCachedRevocations(revocationRepo, redisClient, cfg.Tokens.RevocationCacheTTL)
	retryQueue := repository.NewRedisQueue(redisClient, services.EarningsRetryQueueKey)

	// Services
	auditLogger := audit.NewLogger()
	tokenService := services.NewTokenService(cfg.Tokens.SecretKey, cfg.Tokens.TTL, revocations, revocationRepo)
	earningsRecorder := services.NewEarningsRecorder(earningsRepo, retryQueue)
	eventTracker := services.NewEventTracker(eventRepo)
	ledgerService := services.NewLedgerService(
		ledgerRepo,
		articleRepo,
		services.NewSplitResolver(articleRepo),
		earningsRecorder,
		tokenService,
		auditLogger,
		services.LedgerConfig{
			PlatformFeeBps:     cfg.Ledger.PlatformFeeBps,
			DailyCapCents:      cfg.Ledger.DailyCapCents,
			RefundWindow:       cfg.Ledger.RefundWindow,
			TopupDenominations: cfg.Ledger.TopupDenominations,
		},
	)
	paymentsClient := payments.NewClient(payments.Config{
		BaseURL:    cfg.Payments.BaseURL,
		APIKey:     cfg.Payments.APIKey,
		Timeout:    cfg.Payments.Timeout,
		SuccessURL: cfg.Payments.SuccessURL,
		CancelURL:  cfg.Payments.CancelURL,
		Currency:   cfg.Payments.Currency,
	})
	if !paymentsClient.Configured() {
		log.Println("Payment provider not configured, checkout top-ups are disabled")
	}
	reconciliationService := services.NewReconciliationService(ledgerService, paymentsClient)
	splitRuleService := services.NewSplitRuleService(splitRuleRepo, articleRepo, services.SplitPolicy(cfg.Ledger.SplitPolicy))
	articleService := services.NewArticleService(articleRepo, earningsRepo)

	ledgerHandler := handlers.NewLedgerHandler(ledgerService, tokenService, reconciliationService, eventTracker)
	publisherHandler := handlers.NewPublisherHandler(splitRuleService, articleService, earningsRecorder)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		if err := db.PingContext(r.Context()); err != nil {
			status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	))
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, cfg.Server.OpenAPIPath)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			handlers.RegisterRoutes(r, ledgerHandler, publisherHandler)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		runHousekeeping(workerCtx, cfg, earningsRecorder, tokenService)
	}()

	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	cancelWorkers()
	workers.Wait()
	// Purchases already committed must still get their earnings rows.
	earningsRecorder.Wait()
	eventTracker.Wait()

	log.Println("Server stopped")
}

// runHousekeeping replays failed earnings writes and prunes expired
// revocations until ctx is cancelled.
func runHousekeeping(ctx context.Context, cfg *config.Config, earnings *services.EarningsRecorder, tokens *services.TokenService) {
	ticker := time.NewTicker(cfg.Workers.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := earnings.DrainRetryQueue(ctx, cfg.Workers.DrainBatch)
			switch {
			case errors.Is(err, repository.ErrQueueUnavailable):
				// Redis is optional; nothing can have been queued.
			case err != nil:
				log.Printf("[WORKER] earnings retry drain stopped after %d jobs: %v", n, err)
			case n > 0:
				log.Printf("[WORKER] replayed %d queued earnings jobs", n)
			}

			pruned, err := tokens.PruneRevoked(ctx, cfg.Tokens.TTL)
			if err != nil {
				log.Printf("[WORKER] prune revoked tokens: %v", err)
			} else if pruned > 0 {
				log.Printf("[WORKER] pruned %d revoked tokens", pruned)
			}
		}
	}
}
