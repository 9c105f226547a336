package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"nocaps-server/internal/api/handlers"
	"nocaps-server/internal/config"
	"nocaps-server/internal/domain"
	"nocaps-server/internal/infrastructure/events"
	"nocaps-server/internal/infrastructure/mysql"
	"nocaps-server/internal/infrastructure/redis"
	"nocaps-server/internal/infrastructure/websocket"
	"nocaps-server/internal/services"
	"nocaps-server/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting nocaps server", "config", cfg.GetConfigString())

	iceServers, err := cfg.ICEServers()
	if err != nil {
		log.Fatal("Invalid ICE server configuration", "error", err)
	}

	// Optional match event sinks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	var sinks []domain.MatchEventPublisher

	var rdb *redisClient.Client
	if cfg.Redis.Address != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		sinks = append(sinks, redis.NewMatchEventPublisher(rdb, cfg.Redis.Channel))
		log.Info("Connected to Redis", "address", cfg.Redis.Address, "channel", cfg.Redis.Channel)
	}

	var db *sql.DB
	if cfg.MySQL.DSN != "" {
		db, err = mysql.Open(ctx, cfg.MySQL)
		if err != nil {
			log.Fatal("Failed to connect to MySQL", "error", err)
		}
		eventRepo := mysql.NewMySQLMatchEventRepository(db)
		if err := eventRepo.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to create match_events table", "error", err)
		}
		sinks = append(sinks, eventRepo)
		log.Info("Connected to MySQL")
	}
	cancel()

	dispatcher := events.NewDispatcher(cfg.Events.BufferSize, log.With("component", "events"), sinks...)
	dispatcher.Start()

	// Core
	registry := services.NewMatchRegistry(services.NewCodeGenerator())
	connManager := websocket.NewConnectionManager(log.With("component", "connections"))
	relay := services.NewSignalingRelay(registry, connManager, dispatcher, cfg.Relay.InboxSize,
		log.With("component", "relay"))
	matchService := services.NewMatchService(registry, connManager, dispatcher, log.With("component", "matches"))

	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(relayCtx)
	}()

	statsReporter := services.NewStatsReporter(matchService, cfg.Stats.Schedule, log.With("component", "stats"))
	if err := statsReporter.Start(); err != nil {
		log.Fatal("Failed to start stats reporter", "error", err)
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
		},
		MaxAge: 86400,
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log.Debug("Request received",
				"method", req.Method,
				"path", req.URL.Path,
				"remote_addr", c.RealIP(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			return next(c)
		}
	})

	matchHandler := handlers.NewMatchHandler(matchService, iceServers, log.With("component", "api"))
	matchHandler.Register(e)

	// The websocket endpoint bypasses echo so the upgrade sees the raw writer.
	wsHandler := websocket.NewWebSocketHandler(relay, cfg.Relay, log.With("component", "websocket"))
	router := mux.NewRouter()
	router.HandleFunc("/ws", wsHandler.HandleConnection)
	router.PathPrefix("/").Handler(e)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Info("Listening", "address", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down nocaps server...")

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	stopRelay()
	select {
	case <-relayDone:
	case <-ctx.Done():
		log.Error("Relay did not stop in time")
	}

	statsReporter.Stop()

	if err := dispatcher.Stop(ctx); err != nil {
		log.Error("Failed to drain match events", "error", err)
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error("Failed to close Redis connection", "error", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}

	log.Info("Nocaps server stopped")
}
