package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/derby/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "keeper", "keeper | demo | simulate | report")
	once := flag.Bool("once", false, "keeper: run one cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full race cards (default: compact 1-line)")
	races := flag.Int("races", 3, "demo: races to run")
	seed := flag.String("seed", "", "simulate: 32-byte hex seed (default: derived from genesis)")
	scores := flag.String("scores", "10,8,7,5,5,5", "simulate: six comma-separated scores")
	raceID := flag.Uint64("race", 0, "report: race id (default: last race)")
	participant := flag.String("participant", "", "report: address whose claims to show")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("derby starting",
		"config", *configPath,
		"mode", *mode,
		"chain", cfg.Chain.Mode,
		"model", cfg.Race.PayoutModel,
		"generation", cfg.Race.Generation,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "keeper":
		err = runKeeper(ctx, cfg, *once, *table)
	case "demo":
		err = runDemo(ctx, cfg, *races, *table)
	case "simulate":
		err = runSimulate(cfg, *seed, *scores)
	case "report":
		err = runReport(ctx, cfg, *raceID, *participant, *table)
	default:
		slog.Error("unknown mode", "mode", *mode)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("derby exited with error", "mode", *mode, "err", err)
		os.Exit(1)
	}

	slog.Info("derby stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
