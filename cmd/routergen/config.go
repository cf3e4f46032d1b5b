// config.go contains configuration loading, logger setup and the ledger and
// metrics helpers shared by commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/routergen/internal/config"
	"github.com/haasonsaas/routergen/internal/ledger"
	"github.com/haasonsaas/routergen/internal/observability"
	"github.com/haasonsaas/routergen/internal/scenario"
)

// defaultConfigName is used when present and no path was given.
const defaultConfigName = "routergen.yaml"

// resolveConfigPath determines the configuration file path based on:
// 1. Explicit --config flag
// 2. ROUTERGEN_CONFIG
// 3. routergen.yaml in the working directory, if it exists
//
// An empty result means built-in defaults.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("ROUTERGEN_CONFIG")); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}
	return ""
}

// loadConfig reads the dotenv file and the configuration.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl := strings.TrimSpace(logLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}

// loadRuntime loads the configuration and builds the logger commands share.
// The caller closes the logger.
func loadRuntime(cmd *cobra.Command) (*config.Config, *observability.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logCfg := cfg.Logging
	logCfg.Output = cmd.ErrOrStderr()
	return cfg, observability.NewLogger(logCfg), nil
}

// loadCatalog returns the configured scenario catalog or the embedded one.
func loadCatalog(cfg *config.Config) (*scenario.Catalog, error) {
	if path := strings.TrimSpace(cfg.Generation.CatalogFile); path != "" {
		return scenario.LoadCatalog(path)
	}
	return scenario.DefaultCatalog()
}

// openLedger opens the run ledger. The second return is nil when the ledger
// is disabled.
func openLedger(ctx context.Context, cfg *config.Config, opts ...ledger.Option) (*ledger.Ledger, error) {
	if !cfg.Ledger.Enabled {
		return nil, nil
	}
	return ledger.Open(ctx, cfg.Ledger, opts...)
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *observability.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
