// Package app resolves what a command runs against: the workspace config, a logger,
// and either the local SQLite store or a remote mission service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"fdc/internal/config"
	"fdc/internal/db"
	"fdc/internal/engine"
	"fdc/internal/logging"
	"fdc/internal/migrate"
	"fdc/internal/repo"
	"fdc/internal/solver"
	fdcsdk "fdc/sdk/go"
)

// Options select the backend. Empty fields fall back to the workspace config.
type Options struct {
	Workspace string
	// RemoteURL overrides config.remote.base_url.
	RemoteURL   string
	APIKey      string
	BearerToken string
	ActorID     string
	LogLevel    string
	Console     io.Writer
}

// Backend is an engine wired to its store, directory and solver. Repo is set only for
// the local store, Remote only for a remote service.
type Backend struct {
	Config *config.Config
	Logger *slog.Logger
	Engine engine.Engine
	Solver *solver.Service
	Repo   *repo.Repo
	Remote *fdcsdk.Client

	conn    *sql.DB
	closers []io.Closer
}

// ErrLocalOnly is returned by RequireRepo for commands that need direct store access.
var ErrLocalOnly = errors.New("command needs the local workspace store; unset the remote base url")

// LoadConfig reads fdc.yml, falling back to the defaults when it does not exist.
func LoadConfig(workspace string) (*config.Config, error) {
	return config.LoadOptional(workspace)
}

// NewLogger builds the process logger from the log section of cfg.
func NewLogger(cfg *config.Config, opts Options) (*slog.Logger, io.Closer, error) {
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logging.Setup(logging.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    opts.Console,
	})
}

// Open resolves the backend for one command. Callers must Close it.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	cfg, err := LoadConfig(opts.Workspace)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := NewLogger(cfg, opts)
	if err != nil {
		return nil, err
	}
	b := &Backend{Config: cfg, Logger: logger, closers: []io.Closer{logCloser}}

	s, err := solver.New(cfg.Solver.CacheSize, nil, solver.WithLogger(logger))
	if err != nil {
		b.Close()
		return nil, err
	}
	metrics, err := engine.NewMetrics(nil)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Solver = s

	var (
		store engine.MissionStore
		dir   engine.Directory
	)
	remoteURL := strings.TrimSpace(opts.RemoteURL)
	if remoteURL == "" {
		remoteURL = cfg.Remote.BaseURL
	}
	if remoteURL != "" {
		c := fdcsdk.New(remoteURL)
		c.BasePath = cfg.Service.BasePath
		c.Timeout = cfg.RemoteTimeout()
		c.APIKey = opts.APIKey
		c.BearerToken = opts.BearerToken
		c.ActorID = opts.ActorID
		b.Remote = c
		store, dir = c, c
		logger.Debug("using remote mission service", "url", remoteURL)
	} else {
		r, err := openLocal(ctx, opts.Workspace)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.conn = r.DB
		b.Repo = &r
		store, dir = r, r
	}

	e := engine.New(store, dir)
	e.Solver = s
	e.Metrics = metrics
	e.Logger = logger.With("component", "engine")
	b.Engine = e
	return b, nil
}

func openLocal(ctx context.Context, workspace string) (repo.Repo, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return repo.Repo{}, fmt.Errorf("open store: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return repo.Repo{}, fmt.Errorf("migrate store: %w", err)
	}
	return repo.New(conn), nil
}

// RequireRepo returns the local store or ErrLocalOnly.
func (b *Backend) RequireRepo() (repo.Repo, error) {
	if b.Repo == nil {
		return repo.Repo{}, ErrLocalOnly
	}
	return *b.Repo, nil
}

// JWTSecret reads the signing secret from the variable named in config.
func (b *Backend) JWTSecret() string { return JWTSecret(b.Config) }

// JWTSecret reads the signing secret from the variable named by auth.jwt_secret_env.
func JWTSecret(cfg *config.Config) string {
	name := cfg.Auth.JWTSecretEnv
	if name == "" {
		name = "FDC_JWT_SECRET"
	}
	return os.Getenv(name)
}

// Close releases the store connection and the log file.
func (b *Backend) Close() error {
	var errs []error
	if b.conn != nil {
		errs = append(errs, b.conn.Close())
	}
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
