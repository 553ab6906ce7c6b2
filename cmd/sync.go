package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/fieldworker/internal/api"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued edits and refresh the local cache now",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		engine, _, cleanup, err := newEngine(cmd.Context(), cfg, quietLogger())
		if err != nil {
			return err
		}
		defer cleanup()

		synced, err := engine.SyncPendingActions(cmd.Context())
		if synced > 0 {
			fmt.Printf("Replayed %d queued change(s).\n", synced)
		}
		if err != nil {
			if api.IsUnauthorized(err) {
				return fmt.Errorf("session expired, run `fieldworker login`: %w", err)
			}
			return err
		}

		tasks, err := engine.RefreshTasks(cmd.Context())
		if err != nil {
			if api.IsUnauthorized(err) {
				return fmt.Errorf("session expired, run `fieldworker login`: %w", err)
			}
			return err
		}
		fmt.Printf("Cache holds %d task(s).\n", len(tasks))

		pending, err := engine.PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		if pending > 0 {
			fmt.Printf("%d change(s) still queued.\n", pending)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
