// Package cmd wires the fieldworker CLI: login, cached task views, offline
// edits, and the background sync daemon.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/fieldworker/internal/api"
	"github.com/nhle/fieldworker/internal/connectivity"
	"github.com/nhle/fieldworker/internal/credential"
	"github.com/nhle/fieldworker/internal/model"
	"github.com/nhle/fieldworker/internal/store"
	syncengine "github.com/nhle/fieldworker/internal/sync"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "fieldworker",
	Short:         "Offline-first field service client",
	Long:          "fieldworker keeps a local copy of your assigned dispatch tasks,\nlets you work on them without connectivity, and syncs your edits\nback to the server when it is reachable again.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the configuration file")
}

func loadConfig() (*model.AppConfig, error) {
	return model.LoadConfig(configPath)
}

func saveConfig(cfg *model.AppConfig) error {
	return model.SaveConfig(cfg, configPath)
}

// newClient builds a dispatch API client with the stored token installed.
// A missing token is not an error here; unauthenticated calls fail with a
// structured auth error later, which is a clearer signal to the user.
func newClient(cfg *model.AppConfig) *api.Client {
	token, err := credential.Get(credential.TokenKey)
	if err != nil {
		token = ""
	}
	return api.NewClient(cfg.Server.BaseURL, token, time.Duration(cfg.Server.TimeoutSec)*time.Second)
}

func openStore(cfg *model.AppConfig) (store.Store, error) {
	return store.NewSQLiteStore(cfg.DBPath)
}

// newEngine assembles a store, client, and engine for a one-shot command.
// Reachability is probed once up front; one-shot commands have no use for a
// polling monitor. The returned cleanup closes the store.
func newEngine(ctx context.Context, cfg *model.AppConfig, logger *log.Logger) (*syncengine.Engine, *api.Client, func(), error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening local cache: %w", err)
	}

	client := newClient(cfg)

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	online := client.Probe(probeCtx) == nil
	cancel()

	monitor := connectivity.NewManual(online)
	engine := syncengine.New(s, client, monitor, logger)

	cleanup := func() {
		if err := s.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "closing local cache:", err)
		}
	}
	return engine, client, cleanup, nil
}

func quietLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}
