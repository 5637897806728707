// Package app wires the process together: logging router, run
// registry, hub, and HTTP server, with environment overrides for the
// knobs operators actually turn.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"deepspire/server/internal/attest"
	"deepspire/server/internal/dungeon"
	servernet "deepspire/server/internal/net"
	"deepspire/server/internal/sim"
	"deepspire/server/logging"
	loggingSinks "deepspire/server/logging/sinks"
)

const shutdownTimeout = 10 * time.Second

// Config holds the process-level knobs. Zero values fall back to
// defaults in Run.
type Config struct {
	Addr        string
	GracePeriod time.Duration
	LogFormat   string // "console" or "json"
	LogDebug    bool
}

// ConfigFromEnv reads overrides from the environment. Invalid values
// are logged and ignored rather than fatal, so a typo in one variable
// never keeps the server down.
func ConfigFromEnv() Config {
	cfg := Config{
		Addr:        ":8080",
		GracePeriod: sim.DefaultGracePeriod,
		LogFormat:   "console",
	}
	if raw := os.Getenv("DEEPSPIRE_ADDR"); raw != "" {
		cfg.Addr = raw
	}
	if raw := os.Getenv("DEEPSPIRE_GRACE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.GracePeriod = time.Duration(value) * time.Second
		} else {
			log.Printf("invalid DEEPSPIRE_GRACE_SECONDS=%q, using default", raw)
		}
	}
	if raw := os.Getenv("DEEPSPIRE_LOG_FORMAT"); raw != "" {
		switch raw {
		case "console", "json":
			cfg.LogFormat = raw
		default:
			log.Printf("invalid DEEPSPIRE_LOG_FORMAT=%q, using console", raw)
		}
	}
	if raw := os.Getenv("DEEPSPIRE_LOG_DEBUG"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.LogDebug = value
		} else {
			log.Printf("invalid DEEPSPIRE_LOG_DEBUG=%q, ignoring", raw)
		}
	}
	return cfg
}

// Run starts the server and blocks until the context is cancelled or
// the listener fails. In-flight connections get shutdownTimeout to
// finish.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = sim.DefaultGracePeriod
	}

	logConfig := logging.DefaultConfig()
	if cfg.LogDebug {
		logConfig.MinimumSeverity = logging.SeverityDebug
	}
	var sink logging.Sink
	switch cfg.LogFormat {
	case "json":
		sink = loggingSinks.NewJSONLines(os.Stdout)
	default:
		sink = loggingSinks.NewConsole(os.Stdout)
	}
	router := logging.NewRouter(logConfig, logging.SystemClock{}, []logging.NamedSink{
		{Name: cfg.LogFormat, Sink: sink},
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := router.Close(closeCtx); err != nil {
			log.Printf("closing logging router: %v", err)
		}
	}()

	registry := sim.NewRegistry(dungeon.NewGenerator(router), router, cfg.GracePeriod)
	// No attestation backend is wired by default; the safe wrapper
	// reads as an empty pool until an operator plugs one in.
	hub := servernet.NewHub(registry, attest.NewSafeService(nil), router)

	srv := &http.Server{Addr: cfg.Addr, Handler: servernet.Handler(hub)}

	router.Publish(ctx, logging.Event{
		Type:     "server.listening",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  map[string]any{"addr": cfg.Addr},
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
