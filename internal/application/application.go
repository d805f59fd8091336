package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/peercode/interview-service/internal/ai"
	"github.com/peercode/interview-service/internal/config"
	"github.com/peercode/interview-service/internal/database"
	"github.com/peercode/interview-service/internal/handler"
	"github.com/peercode/interview-service/internal/room"
	"github.com/peercode/interview-service/internal/router"
	"github.com/peercode/interview-service/internal/service"
)

// API is the HTTP + WebSocket application.
type API struct {
	cfg      *config.Config
	srv      *http.Server
	db       *gorm.DB
	registry *room.Registry
	logger   *zap.Logger
}

// NewAPI creates the API application: validates config, runs migrations,
// opens the database and wires the room registry behind the router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	var producer room.Producer
	if cfg.AIAPIKey != "" {
		p, err := ai.NewGeminiProducer(context.Background(), cfg.AIAPIKey, cfg.AIModel, logger)
		if err != nil {
			return nil, fmt.Errorf("ai producer: %w", err)
		}
		producer = p
	} else {
		logger.Warn("AI_API_KEY not set; ai-interview turns will fail with a producer error")
	}

	sessionSvc := service.NewSessionService(db, logger)
	registry := room.NewRegistry(producer, sessionSvc, cfg.TurnBufferDelay, logger)
	registry.SetOnSessionEnd(sessionSvc.SaveReport)

	sessionHandler := handler.NewSessionHandler(sessionSvc, registry, cfg.WSBaseURL)
	sessionWS := handler.NewSessionWSHandler(registry, sessionSvc,
		cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSMaxMessageSize, cfg.WSSendBuffer, logger)
	health := handler.NewHealthHandler()

	r := router.New(sessionHandler, sessionWS, health, cfg.JWTSecret, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, registry: registry, logger: logger}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled; then shuts
// down gracefully.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.srv.Addr)
	log.Printf("  Health:    %s/health", base)
	log.Printf("  Sessions:  %s/sessions", base)
	log.Printf("  WebSocket: ws://%s:%s/ws/session/:session_id", host, a.cfg.HTTPPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		_ = a.logger.Sync()
		return nil
	})
	return g.Wait()
}
