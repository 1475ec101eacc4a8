package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/pagesync/handlers"
	"github.com/gogotex/pagesync/internal/config"
	"github.com/gogotex/pagesync/internal/database"
	"github.com/gogotex/pagesync/internal/document/handler"
	"github.com/gogotex/pagesync/internal/document/repository"
	"github.com/gogotex/pagesync/internal/document/service"
	"github.com/gogotex/pagesync/internal/events"
	"github.com/gogotex/pagesync/internal/hub"
	"github.com/gogotex/pagesync/internal/identity"
	"github.com/gogotex/pagesync/internal/presence"
	"github.com/gogotex/pagesync/internal/storage"
	"github.com/gogotex/pagesync/internal/versions"
	"github.com/gogotex/pagesync/pkg/logger"
	"github.com/gogotex/pagesync/pkg/metrics"
	"github.com/gogotex/pagesync/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel)
			defer logger.Sync()
			logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	started := time.Now()
	checks := map[string]handlers.Check{}
	logger.Infof("config loaded: mongo=%v redis=%v minio=%v rabbitmq=%v",
		cfg.MongoDB.URI != "", cfg.Redis.Addr() != "", cfg.MinIO.Endpoint != "", cfg.RabbitMQ.URL != "")

	// storage
	var repo repository.Repository = repository.NewMemoryRepo()
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		mrepo, err := repository.NewMongoRepo(ctx, client.Database(cfg.MongoDB.Database).Collection("documents"))
		if err != nil {
			return err
		}
		repo = mrepo
		checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	} else {
		logger.Warnf("MONGODB_URI not set: documents are kept in memory only")
	}
	store := service.NewStore(repo, service.WithCache(cfg.Cache.Size, cfg.Cache.TTL))

	var archive versions.Archive
	if cfg.MinIO.Endpoint != "" {
		a, err := storage.NewMinIOArchive(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("version archive disabled: %v", err)
		} else {
			archive = a
			checks["minio"] = a.Ping
		}
	}
	vm := versions.NewManager(store, archive)
	defer vm.Wait()

	// events
	var sink events.Publisher = events.Nop{}
	if cfg.RabbitMQ.URL != "" {
		conn, err := events.Dial(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			logger.Warnf("event publishing disabled: %v", err)
		} else {
			defer conn.Close()
			p, err := events.NewAMQPPublisher(conn, cfg.RabbitMQ.Exchange)
			if err != nil {
				return err
			}
			sink = p
			checks["rabbitmq"] = func(context.Context) error {
				if conn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			}
		}
	}
	pub := events.NewAsync(sink, cfg.Hub.EventBufferSize)
	defer pub.Close()

	// redis: rate limiting and roster mirror
	var rdb *redis.Client
	var mirror presence.Mirror
	if addr := cfg.Redis.Addr(); addr != "" {
		client, err := database.ConnectRedis(ctx, addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warnf("redis unavailable (%s): %v", addr, err)
		} else {
			rdb = client
			defer rdb.Close()
			mirror = presence.NewRedisMirror(rdb, "presence:", 3*cfg.Hub.RosterSyncInterval)
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}

	reg := hub.NewRegistry(store, vm, pub, mirror, hub.Options{
		InboxSize:          cfg.Hub.InboxSize,
		AutoCreate:         cfg.Hub.AutoCreate,
		RosterSyncInterval: cfg.Hub.RosterSyncInterval,
	})
	defer reg.Shutdown()
	syncCtx, cancelSync := context.WithCancel(ctx)
	defer cancelSync()
	go reg.Run(syncCtx)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(cors(), gin.Logger(), gin.Recovery())

	handlers.RegisterSystemRoutes(r, started, checks)
	handlers.RegisterSwagger(r)

	api := r.Group("/")
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			api.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handler.RegisterDocumentRoutes(api, store, reg, vm)
	hub.RegisterRoutes(r, reg, identity.NewResolver(cfg.Identity), cfg.Hub)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("document service listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown; the
	// deferred reg.Shutdown closes them.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	return nil
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
