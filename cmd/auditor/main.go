// Package main wires together the audit batch binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/auditkit/webaudit/internal/audit"
	"github.com/auditkit/webaudit/internal/config"
	"github.com/auditkit/webaudit/internal/logging"
	"github.com/auditkit/webaudit/internal/ops"
	"github.com/auditkit/webaudit/internal/orchestrator"
	"github.com/auditkit/webaudit/internal/progress/sinks"
)

type batchReport struct {
	Results    []audit.ChunkResult   `json:"results"`
	Statistics audit.BatchStatistics `json:"statistics"`
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	chunksPath := flag.String("chunks", "", "Path to JSON array of content chunks")
	outPath := flag.String("out", "", "Path for the JSON report (default stdout)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger, *chunksPath, *outPath); err != nil {
		logger.Error("audit batch failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger, chunksPath, outPath string) error {
	tasks, err := loadTasks(chunksPath)
	if err != nil {
		return err
	}

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	orch, err := orchestrator.Open(cfg, logger,
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// First signal requests cooperative cancellation; the batch still
	// drains and reports every chunk.
	go func() {
		<-ctx.Done()
		orch.Cancel()
	}()

	opsServer := ops.NewServer(cfg.Server.Port, func() bool {
		return !orch.Controller().Cancelled()
	}, logger.Named("ops"))
	go func() {
		if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	results, stats, err := orch.RunBatch(context.Background(), tasks, func(completed, total int, success bool) {
		logger.Info("chunk finished",
			zap.Int("completed", completed),
			zap.Int("total", total),
			zap.Bool("success", success),
		)
	})
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}

	if err := writeReport(outPath, batchReport{Results: results, Statistics: stats}); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := opsServer.Stop(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown error", zap.Error(err))
	}
	if err := orch.Close(shutdownCtx); err != nil {
		return fmt.Errorf("close orchestrator: %w", err)
	}
	logger.Info("audit batch complete",
		zap.Int("total", stats.Total),
		zap.Int("successful", stats.Successful),
		zap.Int("failed", stats.Failed),
		zap.Bool("cancelled", stats.Cancelled),
	)
	return nil
}

func loadTasks(path string) ([]audit.ChunkTask, error) {
	if path == "" {
		return nil, errors.New("-chunks is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	var tasks []audit.ChunkTask
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("parse chunks: %w", err)
	}
	return tasks, nil
}

func writeReport(path string, report batchReport) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
