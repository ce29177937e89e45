// Numify backend: polls live pages for phone numbers posted in chat and
// streams discoveries to authenticated clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odvcencio/numify/pkg/api"
	"github.com/odvcencio/numify/pkg/auth"
	"github.com/odvcencio/numify/pkg/config"
	"github.com/odvcencio/numify/pkg/logging"
	"github.com/odvcencio/numify/pkg/scraper"
	"github.com/odvcencio/numify/pkg/session"
	"github.com/odvcencio/numify/pkg/storage"
)

// Version information - set via ldflags during build
var (
	version = "1.0.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		bindAddr    = flag.String("bind", "", "listen address (overrides config)")
		dbPath      = flag.String("db", "", "SQLite database path (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("numify %s (%s)\n", version, commit)
		return
	}

	if err := run(*configPath, *bindAddr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "numify: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, bindAddr, dbPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if bindAddr != "" {
		cfg.Bind = bindAddr
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	events, err := logging.New(cfg.Logging.Dir)
	if err != nil {
		return err
	}
	defer events.Close()
	if cfg.Logging.Level != "" {
		events.SetMinLevel(logging.Level(cfg.Logging.Level))
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := api.NewServer(api.ServerConfig{
		Address:        cfg.Bind,
		Registry:       session.NewRegistry(),
		Verifier:       auth.NewVerifier(cfg.Auth.Secret),
		Provider:       scraper.NewHTTPProvider(cfg.Scraper.RequestTimeout, cfg.Scraper.UserAgent),
		Store:          store,
		Events:         events,
		PollInterval:   cfg.Scraper.PollInterval,
		StreamInterval: cfg.Stream.PollInterval,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		events.Info(logging.CategoryAPI, "shutdown", "", sig.String(), nil)
	}

	// Graceful shutdown bounded by one poll interval plus headroom so
	// workers can observe the stop between iterations.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scraper.PollInterval+10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
