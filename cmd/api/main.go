package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamforge/encoding-service/internal/cache"
	"github.com/streamforge/encoding-service/internal/config"
	"github.com/streamforge/encoding-service/internal/database"
	"github.com/streamforge/encoding-service/internal/logging"
	"github.com/streamforge/encoding-service/internal/middleware"
	"github.com/streamforge/encoding-service/internal/publisher"
	"github.com/streamforge/encoding-service/internal/reducer"
	"github.com/streamforge/encoding-service/internal/storage"
	"github.com/streamforge/encoding-service/internal/token"
	"github.com/streamforge/encoding-service/internal/tracing"
	"github.com/streamforge/encoding-service/internal/webhook"
)

// API bundles the dependencies the HTTP handlers need.
type API struct {
	cfg       *config.Config
	repo      *database.Repository
	cache     *cache.Cache
	storage   *storage.Storage
	publisher publisher.Publisher
	log       *logging.Logger
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer closer.Close()
	}

	// Persistence
	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	// Read/token cache
	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	// Object storage (presigned URL issuance)
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Broker publisher
	pub, err := newPublisher(cfg.Broker, redisCache)
	if err != nil {
		log.Fatalf("Failed to initialize publisher: %v", err)
	}
	defer pub.Close()

	// Webhook ingestion pipeline
	verifier := webhook.NewVerifier(cfg.Webhook.ReplayWindow)
	red := reducer.New(repo, log)
	hook := webhook.NewHandler(repo, verifier, red, redisCache, log)

	api := &API{
		cfg:       cfg,
		repo:      repo,
		cache:     redisCache,
		storage:   stor,
		publisher: pub,
		log:       log,
	}

	router := setupRouter(api, hook, log, cfg.Server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}

// newPublisher builds the configured broker backend. The REST backend signs
// assertions with the configured service credential; AMQP needs none.
func newPublisher(cfg config.BrokerConfig, redisCache *cache.Cache) (publisher.Publisher, error) {
	switch cfg.Kind {
	case "amqp":
		return publisher.NewAMQPPublisher(cfg)
	case "rest":
		issuer, err := token.NewIssuer(token.ServiceCredential{
			KeyID:         cfg.KeyID,
			PrivateKeyPEM: []byte(cfg.PrivateKeyPEM),
			Issuer:        cfg.ClientIdentity,
			TokenURL:      cfg.TokenURL,
			Scope:         cfg.Scope,
		})
		if err != nil {
			return nil, err
		}

		var tokens token.TokenSource = issuer
		if cfg.CacheTokens {
			tokens = cache.NewTokenSource(redisCache, issuer, cfg.Scope)
		}

		return publisher.NewRESTPublisher(cfg.URL, cfg.Topic, tokens), nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}

func setupRouter(api *API, hook *webhook.Handler, log *logging.Logger, cfg config.ServerConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router.GET("/health", api.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/uploads", api.createUpload)
		v1.POST("/videos/:id/encode", api.submitEncode)
		v1.GET("/videos/:id", api.getVideo)

		v1.POST("/webhooks/encoding/:jobID", middleware.RateLimit(limiter), hook.Handle)
	}

	return router
}
