// Command server runs the unigen gateway.
//
// Configuration is read from a YAML file and UNIGEN_ environment variables:
//
//	UNIGEN_CONFIG     - Config file path (default: ./config.yaml, /etc/unigen/config.yaml)
//	UNIGEN_ENV_FILE   - .env file to load first (default: ./.env when present)
//	UNIGEN_DEBUG      - Debug categories, e.g. "providers,approval" or "all"
//	UNIGEN_LOG_LEVEL  - TRACE, DEBUG, INFO, WARN or ERROR (default: INFO)
//	UNIGEN_LOG_FORMAT - "text" or "json" (default: text)
//
// See pkg/config for the full list of settings.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/unigen/pkg/config"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/gateway"
)

func main() {
	debug.Init(debug.Options{Format: os.Getenv("UNIGEN_LOG_FORMAT")})
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			slog.Warn("closing gateway", "error", err)
		}
	}()

	return gw.Server().Run(ctx)
}
