// Command feedproxy relays feed downloads for browser clients that cannot
// fetch other origins themselves.
//
//	feedproxy -listen :5000
//	curl 'http://localhost:5000/fetch-xml?url=https://shop.example/feed.xml'
//
// Responses carry Access-Control-Allow-Origin: * and the feed is re-encoded
// as UTF-8.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"feedmap/internal/config"
	"feedmap/internal/logging"
	"feedmap/internal/source"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr, http.DefaultClient)
	stop()
	os.Exit(code)
}

// run returns 0 after a clean shutdown, 2 for usage/config errors and 1 when
// the server fails.
func run(ctx context.Context, args []string, stderr io.Writer, client *http.Client) int {
	fs := flag.NewFlagSet("feedproxy", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Configuration file path (default ~/.config/feedmap/config.toml)")
	listen := fs.String("listen", "", "Listen address (overrides [proxy] listen)")
	logLevel := fs.String("log-level", "", "Log level (overrides [log] level)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "feedproxy: unexpected arguments: %v\n", fs.Args())
		return 2
	}

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "feedproxy: load config: %v\n", err)
		return 2
	}
	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if *logLevel != "" {
		opts.Level = *logLevel
	}
	log, err := logging.New(stderr, opts)
	if err != nil {
		fmt.Fprintf(stderr, "feedproxy: %v\n", err)
		return 2
	}
	ctx = log.WithContext(ctx)

	addr := cfg.Proxy.Listen
	if *listen != "" {
		addr = *listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error().Err(err).Str("address", addr).Msg("listen failed")
		return 1
	}

	loader := source.NewLoader(client, source.Options{
		Timeout:   cfg.Fetch.Timeout(),
		UserAgent: cfg.Fetch.UserAgent,
		MaxBytes:  cfg.Fetch.MaxBytes,
		Discover:  cfg.Fetch.Discover,
	})

	log.Info().Str("address", ln.Addr().String()).Msg("feed proxy listening")
	if err := serve(ctx, ln, newHandler(loader)); err != nil {
		log.Error().Err(err).Msg("server failed")
		return 1
	}
	log.Info().Msg("feed proxy stopped")
	return 0
}
