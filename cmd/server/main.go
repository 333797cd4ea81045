package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pixelwall/gateway-server-go/internal/config"
	"github.com/pixelwall/gateway-server-go/internal/database"
	"github.com/pixelwall/gateway-server-go/internal/gateway"
	"github.com/pixelwall/gateway-server-go/internal/handler"
	"github.com/pixelwall/gateway-server-go/internal/httputil"
	"github.com/pixelwall/gateway-server-go/internal/middleware"
	"github.com/pixelwall/gateway-server-go/internal/redis"
	"github.com/pixelwall/gateway-server-go/internal/relay"
	"github.com/pixelwall/gateway-server-go/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	gridStore, cleanup, err := buildStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize grid store")
	}
	defer cleanup()

	instanceID := uuid.NewString()
	gw := gateway.New(instanceID, relay.NewRedisBus(redisClient), gridStore, gateway.Options{
		PresenceTTL:      cfg.PresenceTTL(),
		PresenceInterval: cfg.PresenceInterval(),
		PingInterval:     cfg.PingInterval(),
	})
	gw.Start()
	defer gw.Stop()

	wsHandler := handler.NewWSHandler(gw)
	canvasHandler := handler.NewCanvasHandler(gridStore)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		count, names := gw.LocalSnapshot()
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":             "ok",
			"instanceId":         gw.InstanceID(),
			"connections":        count,
			"users":              names,
			"degraded":           gw.Degraded(),
			"storeWriteFailures": gw.StoreWriteFailures(),
			"timestamp":          time.Now().UnixMilli(),
		})
	})

	r.Get("/ws", wsHandler.ServeHTTP)
	r.Mount("/canvas", canvasHandler.Routes())

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// WriteTimeout stays zero: it would sever long-lived websockets.
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("instanceId", instanceID).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// buildStore constructs the configured grid store backend and returns a
// cleanup function for its resources.
func buildStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}

		pg := store.NewPGStore(db.DB)
		initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer initCancel()
		if err := pg.Init(initCtx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Msg("postgres grid store ready")
		return pg, func() { db.Close() }, nil

	default:
		log.Info().Str("url", cfg.GridStoreURL).Msg("using http grid store")
		return store.NewHTTPStore(cfg.GridStoreURL), func() {}, nil
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
