package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"payments_engine/internal/config"
	"payments_engine/internal/csvio"
	"payments_engine/internal/processor"
	"payments_engine/internal/repository/memory"
	"payments_engine/internal/service"
	"payments_engine/pkg/crypto"
	"payments_engine/pkg/metrics"
	"payments_engine/pkg/validator"
)

const (
	appName         = "payments_engine"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: %s <transactions.csv>", os.Args[0])
	}
	inputPath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting engine",
		slog.String("name", appName),
		slog.String("input", inputPath))

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	metricsCollector := metrics.NewCollector(logger)
	accountRepo := memory.NewAccountRepository()
	ledgerRepo := memory.NewLedgerRepository()

	var diagnostics *service.DiagnosticsService
	var observer processor.Observer
	if cfg.Diagnostics {
		diagnostics = service.NewDiagnosticsService(2, logger)
		observer = diagnostics
	}

	txProcessor := processor.NewTransactionProcessor(
		accountRepo, ledgerRepo, metricsCollector, observer, logger, cfg.EventBufferSize)

	var metricsServer interface{ Shutdown(context.Context) error }
	if cfg.MetricsAddr != "" {
		metricsServer = metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processingDone := make(chan error, 1)
	go func() {
		processingDone <- txProcessor.Run(ctx)
	}()

	reader := csvio.NewTransactionReader(input, validator.NewRecordValidator(), logger)
	ingested, err := ingest(ctx, reader, txProcessor)
	txProcessor.Close()

	if runErr := <-processingDone; runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("processing: %w", runErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ingest: %w", err)
	}

	logger.Info("Stream exhausted",
		slog.Int("ingested", ingested),
		slog.Int("skipped", reader.Skipped()))

	if err := export(accountRepo, metricsCollector, cfg, logger); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if diagnostics != nil {
		if err := diagnostics.Shutdown(shutdownCtx); err != nil {
			logger.Error("Diagnostics shutdown failed", slog.String("error", err.Error()))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("Engine shutdown complete")
	return nil
}

// ingest pushes transactions from the reader into the processor in source
// order until the stream ends or ctx is cancelled.
func ingest(ctx context.Context, reader *csvio.TransactionReader, p *processor.TransactionProcessor) (int, error) {
	ingested := 0
	for {
		tx, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return ingested, nil
		}
		if err != nil {
			return ingested, err
		}
		if err := p.Submit(ctx, tx); err != nil {
			return ingested, err
		}
		ingested++
	}
}

// export writes the final snapshot to stdout, publishes per-account gauges
// and, when a signing key is configured, logs an HMAC over the exact bytes
// emitted.
func export(accountRepo *memory.AccountRepository, collector *metrics.Collector, cfg *config.Config, logger *slog.Logger) error {
	accounts, err := accountRepo.Snapshot(context.Background())
	if err != nil {
		return err
	}

	for _, account := range accounts {
		collector.UpdateAccountBalance(
			strconv.FormatUint(uint64(account.ClientID), 10),
			account.Available.InexactFloat64(),
			account.Held.InexactFloat64(),
			account.Total.InexactFloat64(),
			account.Locked)
	}

	var buf bytes.Buffer
	if err := csvio.NewSnapshotWriter(&buf).WriteAccounts(accounts); err != nil {
		return err
	}

	if cfg.ExportSigningKey != "" {
		signer := crypto.NewSigner(cfg.ExportSigningKey, logger)
		logger.Info("Snapshot signed",
			slog.String("signature", signer.Sign(buf.Bytes())),
			slog.Int("accounts", len(accounts)))
	}

	_, err = io.Copy(os.Stdout, &buf)
	return err
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	// Stdout carries the CSV snapshot; logs go to stderr.
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler).With(slog.String("run_id", uuid.NewString()))
	slog.SetDefault(logger)
	return logger
}
