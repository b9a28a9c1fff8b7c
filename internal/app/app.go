// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/api"
	"github.com/JakeFAU/places-crawler/internal/config"
	"github.com/JakeFAU/places-crawler/internal/id/uuid"
	"github.com/JakeFAU/places-crawler/internal/logging"
	"github.com/JakeFAU/places-crawler/internal/storage"
	"github.com/JakeFAU/places-crawler/internal/storage/gcs"
	"github.com/JakeFAU/places-crawler/internal/storage/local"
)

const shutdownTimeout = 5 * time.Second

// GCSClientFactory builds the client used for archiving to GCS.
type GCSClientFactory func(ctx context.Context) (*gcsstorage.Client, error)

// DefaultGCSClientFactory uses application default credentials.
func DefaultGCSClientFactory(ctx context.Context) (*gcsstorage.Client, error) {
	return gcsstorage.NewClient(ctx)
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	gcsFactory GCSClientFactory
	logger     *zap.Logger
}

// WithGCSClientFactory overrides how the GCS client is created.
func WithGCSClientFactory(f GCSClientFactory) Option {
	return func(o *options) { o.gcsFactory = f }
}

// WithLogger replaces the logger built from the logging config.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// App holds the shared, long-lived services of one invocation.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	runID     string
	archive   storage.BlobStore
	gcsClient *gcsstorage.Client

	server     *http.Server
	statusAddr string
}

// NewApp creates the services described by cfg. It fails fast when an
// archive backend cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{gcsFactory: DefaultGCSClientFactory}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, runID: runID}

	switch {
	case cfg.Archive.GCSBucket != "":
		client, err := o.gcsFactory(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Archive.GCSBucket, Prefix: cfg.Archive.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		logger.Info("Archiving tables to GCS", zap.String("bucket", cfg.Archive.GCSBucket))
		a.gcsClient = client
		a.archive = store
	case cfg.Archive.LocalDir != "":
		store, err := local.New(local.Config{BaseDir: filepath.Join(cfg.Archive.LocalDir, cfg.Archive.Prefix)})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		logger.Info("Archiving tables locally", zap.String("dir", cfg.Archive.LocalDir))
		a.archive = store
	}

	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// RunID identifies this invocation in logs, archives and the status API.
func (a *App) RunID() string { return a.runID }

// Archive returns the configured archive, or nil when archiving is off.
func (a *App) Archive() storage.BlobStore { return a.archive }

// ServeStatus starts the status server in the background when status.addr
// is configured. It is a no-op otherwise.
func (a *App) ServeStatus(status api.StatusSource) error {
	if a.cfg.Status.Addr == "" || a.server != nil {
		return nil
	}
	ln, err := net.Listen("tcp", a.cfg.Status.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Status.Addr, err)
	}
	a.server = &http.Server{
		Handler:           api.NewServer(status, a.runID, a.logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.statusAddr = ln.Addr().String()
	a.logger.Info("Status server listening", zap.String("addr", a.statusAddr))

	srv := a.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Status server failed", zap.Error(err))
		}
	}()
	return nil
}

// StatusAddr is the bound address of the status server, or "".
func (a *App) StatusAddr() string { return a.statusAddr }

// Close shuts down every service. It is called after the command finishes.
func (a *App) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("Error stopping status server", zap.Error(err))
		}
		cancel()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("Error closing GCS client", zap.Error(err))
		}
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
}
