package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/schedule-sync/api/swagger"
	"github.com/noah-isme/schedule-sync/internal/handler"
	internalmiddleware "github.com/noah-isme/schedule-sync/internal/middleware"
	"github.com/noah-isme/schedule-sync/internal/repository"
	"github.com/noah-isme/schedule-sync/internal/service"
	"github.com/noah-isme/schedule-sync/pkg/cache"
	"github.com/noah-isme/schedule-sync/pkg/calendar"
	"github.com/noah-isme/schedule-sync/pkg/config"
	"github.com/noah-isme/schedule-sync/pkg/database"
	"github.com/noah-isme/schedule-sync/pkg/export"
	"github.com/noah-isme/schedule-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/schedule-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/schedule-sync/pkg/middleware/requestid"
	"github.com/noah-isme/schedule-sync/pkg/storage"
	"github.com/noah-isme/schedule-sync/pkg/upstream"
)

// @title Schedule Sync API
// @version 1.0.0
// @description Faculty, group and week selection over the university timetable service
// @BasePath /
// @schemes http

const exportCleanupInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc := calendar.LoadLocation(cfg.Timetable.Timezone)
	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	gateway := upstream.New(upstream.Config{
		PrimaryURL:  cfg.Upstream.PrimaryURL,
		FallbackURL: cfg.Upstream.FallbackURL,
		Timeout:     cfg.Upstream.Timeout,
		Observer:    metrics,
		Logger:      logr,
	})
	timetableRepo := repository.NewTimetableRepository(gateway, repository.TimetablePaths{
		Faculties: cfg.Upstream.FacultiesPath,
		Groups:    cfg.Upstream.GroupsPath,
		Schedule:  cfg.Upstream.SchedulePath,
	}, loc, logr)

	var (
		redisClient *redis.Client
		err         error
	)
	if cfg.ListCache.Enabled || cfg.Selection.Store == config.StoreRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis, logr)
		if err != nil {
			return err
		}
		defer redisClient.Close() //nolint:errcheck
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var cacheRepo service.CacheRepository
	if cfg.ListCache.Enabled {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	listCache := service.NewCacheService(cacheRepo, metrics, cfg.ListCache.TTL, logr, cfg.ListCache.Enabled)
	timetable := service.NewTimetableService(timetableRepo, listCache, logr, service.TimetableServiceConfig{
		Location:     loc,
		ScheduleDays: cfg.Timetable.ScheduleDays,
	})

	store, db, err := buildSelectionStore(ctx, cfg, redisClient, logr)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close() //nolint:errcheck
		checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	}

	selection := service.NewSelectionService(timetable, store, service.SelectionConfig{
		Location:         loc,
		DefaultFacultyID: cfg.Timetable.DefaultFacultyID,
		FetchWorkers:     cfg.Selection.FetchWorkers,
		RefreshInterval:  cfg.Selection.RefreshInterval,
		Logger:           logr,
		Metrics:          metrics,
	})
	selection.Start(ctx)
	defer selection.Stop()
	checks["selection"] = func(context.Context) error {
		if !selection.Running() {
			return service.ErrSelectionStopped
		}
		return nil
	}
	if err := selection.LoadInitial(ctx); err != nil {
		logr.Warn("initial selection load failed", zap.Error(err))
	}

	exports, err := buildExportService(cfg, selection, loc, logr)
	if err != nil {
		return err
	}
	if exports.Enabled() {
		go cleanupExports(ctx, exports, logr)
	}

	validate := validator.New()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics", cfg.APIPrefix+"/state/stream"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	handler.RegisterSystemRoutes(r, handler.NewMetricsHandler(metrics, checks))
	api := r.Group(cfg.APIPrefix)
	handler.RegisterSelectionRoutes(api, handler.NewSelectionHandler(selection, validate, loc, logr))
	handler.RegisterExportRoutes(api, handler.NewExportHandler(exports))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Stopping the engine closes subscriber channels so open streams end.
	srv.RegisterOnShutdown(selection.Stop)

	serveErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Selection.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildSelectionStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logr *zap.Logger) (service.SelectionStore, *sqlx.DB, error) {
	switch cfg.Selection.Store {
	case "", config.StoreMemory:
		return repository.NewMemorySelectionStore(), nil, nil
	case config.StoreFile:
		files, err := storage.NewLocalStorage(cfg.Selection.FileDir)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewFileSelectionStore(files), nil, nil
	case config.StoreRedis:
		return repository.NewRedisSelectionStore(redisClient), nil, nil
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database, logr)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewPostgresSelectionStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown selection store %q", cfg.Selection.Store)
	}
}

func buildExportService(cfg *config.Config, selection *service.SelectionService, loc *time.Location, logr *zap.Logger) (*service.ExportService, error) {
	exportCfg := service.ExportConfig{
		Enabled:   cfg.Exports.Enabled,
		APIPrefix: cfg.APIPrefix,
		Location:  loc,
	}
	if !cfg.Exports.Enabled {
		return service.NewExportService(selection, nil, nil, exportCfg, logr), nil
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportCfg.Renderers = map[export.Format]service.DatasetRenderer{
		export.FormatPDF: export.NewPDFExporter(cfg.Exports.PDFFontPath),
	}
	return service.NewExportService(selection, files, signer, exportCfg, logr), nil
}

func cleanupExports(ctx context.Context, exports *service.ExportService, logr *zap.Logger) {
	ticker := time.NewTicker(exportCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(ctx)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logr.Info("expired exports removed", zap.Int("count", removed))
			}
		}
	}
}
