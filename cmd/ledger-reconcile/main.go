package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/app"
	"github.com/noah-isme/edu-portal-api/internal/service"
	"github.com/noah-isme/edu-portal-api/pkg/config"
	"github.com/noah-isme/edu-portal-api/pkg/logger"
)

func main() {
	limit := flag.Int("limit", 0, "maximum rows to append (0 uses RECONCILE_BATCH_LIMIT)")
	flag.Parse()
	os.Exit(run(*limit))
}

func run(limit int) int {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "ledger-reconcile")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg, logr)
	if err != nil {
		logr.Error("failed to build container", zap.Error(err))
		return 1
	}
	defer container.Close() //nolint:errcheck

	if !container.Ledger.Enabled() {
		logr.Error("ledger is not configured; set SHEETS_SPREADSHEET_ID and credentials")
		return 2
	}

	report, err := container.Reconciler.Run(ctx, service.ReconcileOptions{Limit: limit})
	_ = json.NewEncoder(os.Stdout).Encode(report)
	if err != nil {
		logr.Error("reconciliation failed", zap.Error(err))
		return 1
	}
	return 0
}
