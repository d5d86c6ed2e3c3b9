package main

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"feedmap/internal/config"
	"feedmap/internal/export"
	"feedmap/internal/logging"
	"feedmap/internal/source"
	"feedmap/internal/storage"
)

// app carries the per-invocation state shared by all commands.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	client *http.Client

	configPath string
	logLevel   string
	logFormat  string

	cfg     *config.Config
	log     zerolog.Logger
	repo    storage.Repository
	closers []func()
}

func newApp(stdin io.Reader, stdout, stderr io.Writer, client *http.Client) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		client: client,
		log:    zerolog.Nop(),
	}
}

// setup loads the config, builds the logger and starts metrics. It returns
// the context commands should run with.
func (a *app) setup(ctx context.Context) (context.Context, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(a.configPath))
	if err != nil {
		return ctx, &usageError{err: errors.Errorf("load config: %w", err)}
	}
	a.cfg = cfg

	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if a.logLevel != "" {
		opts.Level = a.logLevel
	}
	if a.logFormat != "" {
		opts.Format = a.logFormat
	}
	logger, err := logging.New(a.stderr, opts)
	if err != nil {
		return ctx, &usageError{err: err}
	}
	a.log = logger
	ctx = logger.WithContext(ctx)

	a.setupMetrics(ctx)
	return ctx, nil
}

func (a *app) loader() *source.Loader {
	return source.NewLoader(a.client, source.Options{
		Timeout:   a.cfg.Fetch.Timeout(),
		UserAgent: a.cfg.Fetch.UserAgent,
		MaxBytes:  a.cfg.Fetch.MaxBytes,
		Discover:  a.cfg.Fetch.Discover,
	})
}

func (a *app) target(ctx context.Context) (export.Target, error) {
	return export.Open(ctx, a.cfg.Export)
}

// repository opens the configured store once and makes sure its tables exist.
func (a *app) repository(ctx context.Context) (storage.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	repo, err := storage.New(ctx, storage.Config{Kind: a.cfg.Storage.Kind, DSN: a.cfg.Storage.DSN})
	if err != nil {
		return nil, errors.Errorf("open storage: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	a.repo = repo
	a.onClose(repo.Close)
	return repo, nil
}

func (a *app) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// close runs cleanups in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// inputFor maps a command argument to a source: "-" or nothing is stdin, an
// http(s) URL is fetched, anything else is a file path.
func (a *app) inputFor(arg string) source.Input {
	arg = strings.TrimSpace(arg)
	lower := strings.ToLower(arg)
	switch {
	case arg == "" || arg == "-":
		return source.Input{Stdin: a.stdin}
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		return source.Input{URL: arg}
	default:
		return source.Input{Path: arg}
	}
}
