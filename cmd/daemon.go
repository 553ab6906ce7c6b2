package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nhle/fieldworker/internal/connectivity"
	syncengine "github.com/nhle/fieldworker/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync loop",
	Long:  "Runs until interrupted: probes connectivity, replays queued edits as\nsoon as the server is reachable, and refreshes the cache on a timer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logFile := cfg.Log.File
		if logFile == "" {
			logFile = filepath.Join(filepath.Dir(cfg.DBPath), "daemon.log")
		}
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		logger := log.New(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		}, "", log.LstdFlags)

		s, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening local cache: %w", err)
		}
		defer s.Close()

		client := newClient(cfg)
		monitor := connectivity.NewProbeMonitor(client.Probe, time.Duration(cfg.Sync.ProbeIntervalSec)*time.Second)
		engine := syncengine.New(s, client, monitor, logger)
		scheduler := syncengine.NewScheduler(
			engine,
			monitor,
			time.Duration(cfg.Sync.IntervalMin)*time.Minute,
			cfg.Sync.MaxCycleAttempts,
			logger,
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("connectivity monitor stopped: %v", err)
			}
		}()

		logger.Printf("daemon started, server %s, interval %dm", cfg.Server.BaseURL, cfg.Sync.IntervalMin)
		fmt.Printf("Syncing against %s every %dm, logging to %s\n", cfg.Server.BaseURL, cfg.Sync.IntervalMin, logFile)

		err = scheduler.Run(ctx)
		if err == context.Canceled {
			err = nil
		}
		logger.Printf("daemon stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
