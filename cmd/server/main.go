package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/seat-reservation-engine/internal/config"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/handlers"
	"github.com/smarttransit/seat-reservation-engine/internal/middleware"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/notification"
	"github.com/smarttransit/seat-reservation-engine/internal/services"
	"github.com/smarttransit/seat-reservation-engine/pkg/jwt"
	"github.com/smarttransit/seat-reservation-engine/pkg/metrics"
	"github.com/smarttransit/seat-reservation-engine/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Amounts are JSON numbers on the wire
	decimal.MarshalJSONWithoutQuotes = true

	logger.Info("Starting SmartTransit Seat Reservation Engine")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(cfg.Metrics.Namespace, registry)

	// Redis backs the rate limiter only; without it requests are not limited
	var redisClient *redis.Client
	if cfg.RateLimit.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, rate limiting will fail open")
		} else {
			logger.Info("Redis connection established")
		}
		cancel()
		defer redisClient.Close()
	}

	// Notification sinks
	sinks := []notification.Sink{}
	var amqpSink *notification.AMQPSink
	if cfg.Notification.HasSink("log") {
		sinks = append(sinks, notification.NewLogSink(logger))
	}
	if cfg.Notification.HasSink("amqp") {
		amqpSink = notification.NewAMQPSink(cfg.Notification.AMQPURL, cfg.Notification.AMQPQueue, logger)
		sinks = append(sinks, amqpSink)
	}
	if cfg.Notification.HasSink("sms") {
		gateway := sms.NewDialogURLGateway(cfg.SMS.ESMSQK, cfg.SMS.Mask, cfg.SMS.BaseURL)
		sinks = append(sinks, notification.NewSMSSink(gateway))
	}
	dispatcher := notification.NewDispatcher(logger, m, cfg.Notification.SendTimeout, sinks...)
	logger.WithField("sinks", cfg.Notification.Sinks).Info("Notification dispatcher ready")

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	reservationRepository := database.NewReservationRepository(db.DB)
	vehicleRepository := database.NewVehicleRepository(db.DB)

	bookingConfig := services.DefaultBookingConfig()
	bookingConfig.Location = cfg.Booking.Location
	bookingConfig.QueryTimeout = cfg.Database.QueryTimeout
	bookingConfig.CancellationNotice = cfg.Booking.CancellationNotice
	bookingService := services.NewBookingService(
		reservationRepository,
		vehicleRepository,
		dispatcher,
		m,
		logger,
		bookingConfig,
	)

	// Start cron jobs
	cronService := services.NewCronService(bookingService, cfg.Cron.CompletionSchedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	adminHandler := handlers.NewAdminHandler(bookingService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	healthDeps := map[string]handlers.HealthChecker{"database": db}
	if redisClient != nil {
		healthDeps["redis"] = redisPinger{redisClient}
	}
	router.GET("/health", handlers.HealthCheck(version, healthDeps))

	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	// Rate limiting applies to writes only
	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if redisClient != nil {
		bucket := middleware.NewRedisTokenBucket(redisClient, cfg.RateLimit)
		limit = middleware.RateLimit(bucket, cfg.RateLimit, m, logger)
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public
		v1.GET("/bookings/availability", bookingHandler.CheckAvailability)

		// Authenticated traveler routes
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			bookings.POST("", limit, bookingHandler.CreateBooking)
			bookings.GET("/my-bookings", bookingHandler.GetMyBookings)
			bookings.GET("/:slug", bookingHandler.GetBooking)
			bookings.PATCH("/:slug/status", limit, bookingHandler.UpdateStatus)
			bookings.PATCH("/:slug/cancel", limit, bookingHandler.CancelBooking)
		}

		// Admin routes
		admin := v1.Group("/admin/bookings")
		admin.Use(middleware.AuthMiddleware(jwtService, logger))
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/vehicles/:vehicle_id/manifest", adminHandler.GetVehicleManifest)
			admin.GET("/statistics", adminHandler.GetStatistics)
			admin.GET("/popular-routes", adminHandler.GetPopularRoutes)
			admin.GET("/all", adminHandler.ListAllBookings)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service
	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// In-flight notifications finish after the last request
	logger.Info("Waiting for pending notifications...")
	dispatcher.Wait()
	if amqpSink != nil {
		if err := amqpSink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close AMQP connection")
		}
	}

	logger.Info("Server exited successfully")
}

// redisPinger adapts a redis client to the health check
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
