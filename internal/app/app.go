package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/strepsil/internal/cache"
	"github.com/router-for-me/strepsil/internal/config"
	"github.com/router-for-me/strepsil/internal/db"
	"github.com/router-for-me/strepsil/internal/http/api"
	"github.com/router-for-me/strepsil/internal/metrics"
	"github.com/router-for-me/strepsil/internal/modelreference"
	"github.com/router-for-me/strepsil/internal/provider"
	"github.com/router-for-me/strepsil/internal/ratelimit"
	"github.com/router-for-me/strepsil/internal/recorder"
	"github.com/router-for-me/strepsil/internal/security"
	internalsettings "github.com/router-for-me/strepsil/internal/settings"
	"github.com/router-for-me/strepsil/internal/store"
	"github.com/router-for-me/strepsil/internal/watcher"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	providerCacheSize = 64
	providerCacheTTL  = 5 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	config.LoadDotEnv(configPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return db.Migrate(conn.WithContext(ctx))
}

// EnsureConfig writes a SQLite config when neither a config file nor DB_CONNECTION exists.
func EnsureConfig(configPath string, port int) (bool, error) {
	if ConfigExists(configPath) || strings.TrimSpace(os.Getenv(config.EnvDBConnection)) != "" {
		return false, nil
	}
	if errWrite := WriteConfigFile(configPath, InitOptions{Port: port}); errWrite != nil {
		return false, errWrite
	}
	return true, nil
}

// IssueAPIToken signs a bearer token for the /api routes using the configured JWT secret.
func IssueAPIToken(cfg config.AppConfig, subject string, ttl time.Duration) (string, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	config.LoadDotEnv(configPath)
	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	if ttl <= 0 {
		ttl = jwtCfg.Expiry
	}
	return security.IssueToken(jwtCfg.Secret, subject, ttl, time.Now().UTC())
}

// RunServer boots the API server and blocks until ctx is cancelled or the listener fails.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	for _, loaded := range config.LoadDotEnv(configPath) {
		log.Debugf("loaded env file %s", loaded)
	}
	created, errEnsure := EnsureConfig(configPath, defaultPort)
	if errEnsure != nil {
		return errEnsure
	}
	if created {
		log.Infof("config not found, wrote default sqlite config to %s", configPath)
	}

	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if serverCfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	jwtConfig, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(jwtConfig.Secret) == "" {
		log.Warn("jwt secret not configured, /api routes are unauthenticated")
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	dbInfo, errDescribe := db.Describe(dsn)
	if errDescribe != nil {
		log.WithError(errDescribe).Warn("describe database dsn failed")
	}

	s, snapshot, providerCache, err := buildStore(ctx, conn, serverCfg)
	if err != nil {
		return err
	}
	defer providerCache.Close()

	settingsWatcher := watcher.NewSettingsWatcher(conn, s, snapshot, watcher.DefaultPollInterval)
	settingsWatcher.Start(ctx)
	defer settingsWatcher.Stop()

	limiter := ratelimit.NewManager(
		ratelimit.WithRedisDefaults(
			ratelimit.SnapshotProvider(snapshot),
			snapshot,
			serverCfg.Redis.Addr,
			serverCfg.Redis.Password,
			serverCfg.Redis.DB,
		),
		nil,
		nil,
	)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.Errorf("rate limiter close error: %v", errClose)
		}
	}()

	providers := provider.NewRegistry(nil)
	registry := metrics.NewRegistry()
	callMetrics, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	rec := recorder.New(s, providers, callMetrics, serverCfg.ProviderTimeout)

	if serverCfg.ModelReferenceSync.Enabled {
		modelreference.NewSyncer(conn, serverCfg.ModelReferenceSync.URL, serverCfg.ModelReferenceSync.Interval).Start(ctx)
	}

	version := internalsettings.DefaultAppVersion
	if v, ok := snapshot.Value(internalsettings.AppVersionKey); ok && strings.TrimSpace(v) != "" {
		version = v
	}

	if !serverCfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), api.RequestLogger())
	api.RegisterRoutes(engine, api.Deps{
		Store:     s,
		Snapshot:  snapshot,
		Recorder:  rec,
		Providers: providers,
		Limiter:   limiter,
		Gatherer:  registry,
		JWT:       jwtConfig,
		DBInfo:    dbInfo,
		Version:   version,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{serverCfg.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	}).Handler(engine)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", serverCfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("strepsil api listening on %s (config=%s, database=%s)", srv.Addr, configPath, dbInfo.Type)
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe, ok := <-errCh:
		if ok {
			return errServe
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown api server: %w", errShutdown)
	}
	return nil
}

// buildStore wires the secret cipher, provider cache and settings snapshot around conn.
func buildStore(ctx context.Context, conn *gorm.DB, serverCfg config.ServerConfig) (*store.Store, *internalsettings.Snapshot, *cache.ProviderCache, error) {
	cipher, err := security.NewSecretCipher(serverCfg.EncryptionKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init secret cipher: %w", err)
	}
	providerCache, err := cache.NewProviderCache(providerCacheSize, providerCacheTTL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init provider cache: %w", err)
	}
	s := store.New(conn, cipher, providerCache)
	snapshot := internalsettings.NewSnapshot()
	if errRefresh := s.RefreshSnapshot(ctx, snapshot); errRefresh != nil {
		providerCache.Close()
		return nil, nil, nil, fmt.Errorf("load settings: %w", errRefresh)
	}
	return s, snapshot, providerCache, nil
}
