package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/username/stocktax/src/config"
	"github.com/username/stocktax/src/database"
	"github.com/username/stocktax/src/handlers"
	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/processors"
	"github.com/username/stocktax/src/reports"
	"github.com/username/stocktax/src/security"
	"github.com/username/stocktax/src/services"
)

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				logger.L.Warn("Rate limit exceeded",
					"method", r.Method,
					"path", r.URL.Path,
					"remoteAddr", r.RemoteAddr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Stocktax backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing result cache...")
	resultCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	reportWriter := reports.NewWriter(config.Cfg.ReportDir)

	reportService := services.NewReportService(
		processors.NewAnnualAggregator(),
		processors.NewDividendProcessor(),
		reportWriter,
		emailService,
		resultCache,
	)

	authHandler := handlers.NewAuthHandler(authService)
	uploadHandler := handlers.NewUploadHandler(reportService)
	reportHandler := handlers.NewReportHandler(reportService)

	limiter := rate.NewLimiter(rate.Limit(config.Cfg.ReportRateLimit), config.Cfg.ReportRateBurst)

	logger.L.Info("Configuring routes...")
	router := chi.NewRouter()
	router.Use(rateLimitMiddleware(limiter))

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Stocktax backend is running"})
	})

	router.Route("/api", func(api chi.Router) {
		api.Post("/auth/token", authHandler.HandleToken)

		api.Group(func(protected chi.Router) {
			protected.Use(handlers.AuthMiddleware(authService))

			protected.Post("/upload", uploadHandler.HandleUpload)
			protected.Get("/ledger", reportHandler.HandleGetLedger)
			protected.Get("/anomalies", reportHandler.HandleGetAnomalies)
			protected.Get("/summary/annual", reportHandler.HandleGetAnnualSummary)
			protected.Get("/dividends", reportHandler.HandleGetDividends)
			protected.Get("/holdings", reportHandler.HandleGetHoldings)
			protected.Post("/reports/export", reportHandler.HandleExportReports)
		})
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
