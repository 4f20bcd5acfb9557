package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattjoyce/runwatch/internal/api"
	"github.com/mattjoyce/runwatch/internal/config"
	"github.com/mattjoyce/runwatch/internal/dispatch"
	"github.com/mattjoyce/runwatch/internal/kafka"
	"github.com/mattjoyce/runwatch/internal/lock"
	"github.com/mattjoyce/runwatch/internal/log"
	"github.com/mattjoyce/runwatch/internal/metrics"
	"github.com/mattjoyce/runwatch/internal/monitor"
	"github.com/mattjoyce/runwatch/internal/runmanager"
	"github.com/mattjoyce/runwatch/internal/storage"
	"github.com/mattjoyce/runwatch/internal/store"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	os.Exit(run(os.Args[1], os.Args[2:]))
}

func run(cmd string, args []string) int {
	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "schema":
		return runSchemaNoun(args)
	case "config":
		return runConfigNoun(args)
	case "version":
		fmt.Printf("runwatch version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`runwatch - pipeline run manager

Usage:
  runwatch <command> [flags]

Commands:
  start          Consume lifecycle events and reconcile runs (foreground)
  schema init    Create or upgrade the database schema
  config check   Validate configuration
  version        Show version information
  help           Show this help message

All commands that read configuration accept --config PATH. Without it the
config is discovered from $RUNWATCH_CONFIG, ~/.config/runwatch/config.yaml,
/etc/runwatch/config.yaml and ./config.yaml.
`)
}

func printStartHelp() {
	fmt.Println("Usage: runwatch start [--config PATH]")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func runSchemaNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: runwatch schema init [--config PATH]")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: runwatch schema init [--config PATH]")
		return 0
	}
	switch args[0] {
	case "init":
		return runSchemaInit(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown schema action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: runwatch config check [--config PATH]")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: runwatch config check [--config PATH]")
		return 0
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

// loadConfig parses the --config flag from args and loads the discovered
// file. It returns the resolved path alongside the config.
func loadConfig(name string, args []string) (*config.Config, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	path, err := config.Discover(*configPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func runConfigCheck(args []string) int {
	cfg, path, err := loadConfig("check", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		return 1
	}
	hash, err := config.ComputeBlake3Hash(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		return 1
	}

	fmt.Printf("Config:    %s\n", path)
	fmt.Printf("BLAKE3:    %s\n", hash)
	fmt.Printf("Database:  %s\n", cfg.Database.Driver)
	fmt.Printf("Brokers:   %s\n", strings.Join(cfg.Kafka.Brokers, ", "))
	fmt.Printf("Consumes:  %s\n", strings.Join(cfg.KafkaConfig().InputTopics(), ", "))
	fmt.Printf("Produces:  %s, %s\n", cfg.Kafka.Topics.Identified, cfg.Kafka.Topics.DeadLetter)
	if cfg.API.Enabled {
		fmt.Printf("API:       %s\n", cfg.API.Listen)
	}
	fmt.Println("Status: Configuration check PASSED.")
	return 0
}

func runSchemaInit(args []string) int {
	cfg, _, err := loadConfig("init", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	db, dialect, err := storage.Open(context.Background(), cfg.StorageOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Schema init failed: %v\n", err)
		return 1
	}
	defer db.Close()

	fmt.Printf("Schema ready (%s)\n", dialect)
	return 0
}

func runStart(args []string) int {
	cfg, configPath, err := loadConfig("start", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	hash, _ := config.ComputeBlake3Hash(configPath)
	logger.Info("runwatch starting", "version", version, "config", configPath, "config_blake3", hash)

	if storage.Dialect(cfg.Database.Driver) == storage.DialectSQLite {
		dbLock, err := lock.Acquire(cfg.Database.Path)
		if err != nil {
			logger.Error("failed to lock database (another instance may be running)", "path", cfg.Database.Path, "error", err)
			return 1
		}
		defer dbLock.Release()
		logger.Info("acquired database lock", "path", dbLock.Path())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, dialect, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "driver", dialect)

	kcfg := cfg.KafkaConfig()
	session, err := kafka.NewGroupSession(kcfg)
	if err != nil {
		logger.Error("failed to create kafka session", "error", err)
		return 1
	}
	defer session.Close()
	logger.Info("kafka session created", "brokers", kcfg.Brokers, "topics", kcfg.InputTopics())

	m := metrics.New()
	hub := monitor.NewHub(256)
	manager := runmanager.New(store.New(db, dialect))
	disp := dispatch.New(session, db, manager, kcfg.Topics, m, hub)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		err := disp.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err == nil {
			err = errors.New("kafka session closed")
		}
		errCh <- fmt.Errorf("dispatcher: %w", err)
	}()

	if cfg.API.Enabled {
		checks := map[string]api.CheckFunc{
			"database": db.PingContext,
			"kafka":    session.Ping,
		}
		apiServer := api.New(api.Config{Listen: cfg.API.Listen, Token: cfg.API.Token}, hub, m.Handler(), checks, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("runwatch running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("runwatch stopped")
	return 0
}
