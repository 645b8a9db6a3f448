package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"papertrail-manager/papertrail"
)

// Global Variables and Constants
var (

	// Logger
	log = logrus.New()

	// Environment Variables
	papertrailAPIToken = os.Getenv("PAPERTRAIL_API_TOKEN")
	papertrailBaseURL  = os.Getenv("PAPERTRAIL_BASE_URL")
	logLevel           = strings.ToLower(os.Getenv("LOG_LEVEL"))
	listenAddress      = envOrDefault("LISTEN_ADDRESS", ":8080")
	requestsPerMinute  = os.Getenv("PAPERTRAIL_REQUESTS_PER_MINUTE")
	downloadWorkers    = os.Getenv("DOWNLOAD_WORKERS")
	dbDir              = envOrDefault("DB_DIR", "db")
	configDir          = envOrDefault("CONFIG_DIR", "config")
)

const shutdownTimeout = 10 * time.Second

// App struct to hold dependencies
type App struct {
	Papertrail *papertrail.Papertrail
	Database   *gorm.DB

	// refreshMu serialises inventory refreshes from the background loop and
	// the refresh endpoint.
	refreshMu sync.Mutex
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func initLogger() {
	var level logrus.Level
	switch logLevel {
	case "debug":
		level = logrus.DebugLevel
	case "info":
		level = logrus.InfoLevel
	case "warn":
		level = logrus.WarnLevel
	case "error":
		level = logrus.ErrorLevel
	default:
		level = logrus.InfoLevel
		if logLevel != "" {
			log.Fatalf("Invalid log level: '%s'.", logLevel)
		}
	}
	log.SetLevel(level)
	papertrail.SetLogLevel(level)

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// validateEnvVars reports missing or malformed environment variables.
func validateEnvVars() error {
	if strings.TrimSpace(papertrailAPIToken) == "" {
		return fmt.Errorf("please set the PAPERTRAIL_API_TOKEN environment variable")
	}
	if requestsPerMinute != "" {
		if v, err := strconv.ParseFloat(requestsPerMinute, 64); err != nil || v < 0 {
			return fmt.Errorf("invalid PAPERTRAIL_REQUESTS_PER_MINUTE value: %q", requestsPerMinute)
		}
	}
	if downloadWorkers != "" {
		if v, err := strconv.Atoi(downloadWorkers); err != nil || v < 1 {
			return fmt.Errorf("invalid DOWNLOAD_WORKERS value: %q", downloadWorkers)
		}
	}
	return nil
}

func papertrailConfig() papertrail.Config {
	rpm, _ := strconv.ParseFloat(requestsPerMinute, 64)
	return papertrail.Config{
		APIToken:          papertrailAPIToken,
		BaseURL:           papertrailBaseURL,
		RequestsPerMinute: rpm,
	}
}

func numDownloadWorkers() int {
	if n, err := strconv.Atoi(downloadWorkers); err == nil && n > 0 {
		return n
	}
	return 1
}

// newApp wires the Papertrail inventory to the local database and restores
// the latest stored snapshot, so the API has data before the first refresh.
func newApp() (*App, error) {
	pt, err := papertrail.New(papertrailConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Papertrail client: %w", err)
	}

	database, err := InitializeDB(dbDir)
	if err != nil {
		return nil, err
	}

	app := &App{
		Papertrail: pt,
		Database:   database,
	}
	app.restoreLatestSnapshot()
	return app, nil
}

func (app *App) restoreLatestSnapshot() {
	snapshot, err := GetLatestSnapshot(app.Database)
	if err != nil {
		log.Warnf("Failed to read stored snapshot: %v", err)
		return
	}
	if snapshot == nil {
		log.Debug("No stored snapshot found")
		return
	}
	if err := app.Papertrail.RestoreJSON([]byte(snapshot.Data)); err != nil {
		log.Warnf("Ignoring stored snapshot %d: %v", snapshot.ID, err)
		return
	}
	log.WithFields(logrus.Fields{
		"snapshot_id": snapshot.ID,
		"taken_at":    snapshot.CreatedAt.Format(time.RFC3339),
	}).Info("Restored inventory from stored snapshot")
}

// runServer starts the worker pool, the background refresh and the HTTP API,
// and blocks until ctx is cancelled or the server fails.
func runServer(ctx context.Context, app *App) error {
	loadSettings()

	startWorkerPool(ctx, app, numDownloadWorkers())
	StartBackgroundTasks(ctx, app)

	srv := &http.Server{
		Addr:    listenAddress,
		Handler: setupRouter(app),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Server started on %s", listenAddress)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to run server: %w", err)
	}
}
