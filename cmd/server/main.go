// HTTP Server
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kinesis-pay/internal/app"
	"kinesis-pay/internal/config"
	"kinesis-pay/internal/handler"
	"kinesis-pay/pkg/logger"
	"kinesis-pay/pkg/middleware"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.New(logger.Options{
		Service:     "kinesis-pay",
		Environment: cfg.Environment,
		Secrets:     []string{cfg.SecretToken, cfg.AccessToken, cfg.LinkSecret},
	})
	defer log.Sync()

	if !cfg.IsConfigured() {
		log.Warn("Kinesis merchant credentials are not set; payments cannot be started")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg, reg, log)
	cancelStart()
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	// Initialize handlers
	paymentHandler := handler.NewPaymentHandler(a.Initiator, a.Reconciler, a.Ledger, cfg.KMSBaseURL, log)

	// Setup router
	router := setupRouter(paymentHandler, a, reg, log)

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("starting server", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func setupRouter(h *handler.PaymentHandler, a *app.App, reg *prometheus.Registry, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	// Health checks
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := a.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// API routes
	v1 := router.Group("/api/v1")
	{
		invoices := v1.Group("/invoices")
		{
			invoices.POST("/:id/kinesis-pay", h.StartPayment)
			invoices.GET("/:id/kinesis-pay", h.GetPayment)
		}

		// Polled by pay pages every 10 seconds
		v1.GET("/kinesis-pay/status", middleware.RateLimiter(), h.PollStatus)
	}

	return router
}
