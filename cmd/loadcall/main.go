package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sebas/loadcall/internal/answerer"
	"github.com/sebas/loadcall/internal/banner"
	"github.com/sebas/loadcall/internal/config"
	"github.com/sebas/loadcall/internal/esl"
	"github.com/sebas/loadcall/internal/loadgen"
	"github.com/sebas/loadcall/internal/logger"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	banner.Print([]banner.ConfigLine{
		{Label: "Server", Value: cfg.EventSocketAddr()},
		{Label: "Rate", Value: fmt.Sprintf("%d/s", cfg.Rate)},
		{Label: "Limit", Value: fmt.Sprintf("%d", cfg.Limit)},
		{Label: "Max sessions", Value: fmt.Sprintf("%d", cfg.MaxSessions)},
		{Label: "Duration", Value: cfg.Duration.String()},
		{Label: "Answerer", Value: fmt.Sprintf("%v", cfg.Answerer)},
	})

	runID := uuid.NewString()
	slog.Info("Starting loadcall",
		"run_id", runID,
		"server", cfg.EventSocketAddr(),
		"rate", cfg.Rate,
		"limit", cfg.Limit,
		"max_sessions", cfg.MaxSessions,
		"duration", cfg.Duration.String(),
	)

	if cfg.Answerer {
		ans, err := answerer.NewServer(answerer.Config{
			BindAddr:        cfg.AnswererBind,
			Port:            cfg.AnswererPort,
			Media:           cfg.AnswererMedia,
			MaxCallDuration: 2 * cfg.Duration,
		})
		if err != nil {
			slog.Error("Failed to create answerer", "error", err)
			os.Exit(1)
		}
		defer ans.Close()

		go func() {
			if err := ans.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Answerer stopped", "error", err)
			}
		}()
	}

	if cfg.OriginateString == "" {
		// Answerer-only mode: serve calls until interrupted.
		<-ctx.Done()
		return
	}

	conn, err := esl.Dial(cfg.EventSocketAddr(), cfg.Auth)
	if err != nil {
		slog.Error("Failed to connect", "server", cfg.EventSocketAddr(), "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	orch := loadgen.New(loadgen.Config{
		Rate:            cfg.Rate,
		Limit:           cfg.Limit,
		MaxSessions:     cfg.MaxSessions,
		Duration:        cfg.Duration,
		OriginateString: cfg.OriginateString,
		ReportInterval:  cfg.ReportInterval,
	}, conn)

	if err := orch.Prepare(ctx); err != nil {
		slog.Error("Failed to prepare switch", "error", err)
		os.Exit(1)
	}

	orch.Run(ctx)

	stats := orch.Snapshot()
	if cfg.ReportFormat == "json" {
		if err := stats.WriteJSON(os.Stdout); err != nil {
			slog.Error("Failed to write report", "error", err)
			os.Exit(1)
		}
		return
	}
	stats.WriteReport(os.Stdout)
}
