package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docrelay/config"
	"docrelay/config/database"
	"docrelay/internal/collab"
	"docrelay/internal/document/repository"
	"docrelay/internal/document/service"
	"docrelay/internal/presence"
	"docrelay/pkg/logger"
	"docrelay/router"
	"docrelay/socket"

	"github.com/redis/go-redis/v9"
)

type store interface {
	service.DocumentStore
	Ping(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		logger.Sugar.Errorf("docrelay stopped: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration: .env, optional YAML file, then environment.
	cfg, err := config.Load()
	if err != nil {
		// No validated level yet; fall back to the raw environment.
		logger.Init(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Persistence.
	docs, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. The hub owns connections and rooms; Redis, when configured, links
	// this instance to the others and serializes document creation.
	hub := socket.NewHub()
	hub.SendBuffer = cfg.SendBuffer
	hub.MaxMessageBytes = cfg.MaxMessageBytes

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		bus, err := socket.NewRedisBus(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer bus.Close()
		if err := hub.AttachBus(ctx, bus); err != nil {
			return err
		}
		rdb = bus.Client()
		logger.Sugar.Info("Redis fan-out enabled")
	}

	svc := service.NewDocumentService(docs, newRoomLocker(rdb, cfg.StoreTimeout), cfg.StoreTimeout)
	manager := collab.NewManager(ctx, hub, svc, presence.NewRegistry(cfg.Palette))
	hub.SetHandler(manager)
	go hub.Run(ctx)

	// 4. HTTP surface.
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: router.Setup(router.Deps{
			Hub:       hub,
			Ready:     docs.Ping,
			CORSAllow: cfg.CORSAllow,
			JWTSecret: cfg.JWTSecret,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("docrelay listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Sugar.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Sugar.Warn("Using the in-memory document store; documents are lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	db, err := database.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return repository.NewDocumentRepository(db), func() { db.Close() }, nil
}

// newRoomLocker serializes document creation across instances when Redis is
// available. The lease covers a whole load-or-create: a lookup and an insert,
// each bounded by storeTimeout.
func newRoomLocker(rdb *redis.Client, storeTimeout time.Duration) service.RoomLocker {
	if rdb == nil {
		return service.NewLocalLocker()
	}
	l := service.NewRedisLocker(rdb)
	if lease := 3 * storeTimeout; lease > l.TTL {
		l.TTL = lease
	}
	return l
}
