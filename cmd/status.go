package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, cache, and queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		engine, client, cleanup, err := newEngine(cmd.Context(), cfg, quietLogger())
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Printf("Server:  %s\n", cfg.Server.BaseURL)
		if client.Probe(cmd.Context()) == nil {
			fmt.Println("State:   online")
		} else {
			fmt.Println("State:   offline")
		}

		tasks, err := engine.Tasks(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Cached:  %d task(s)\n", len(tasks))

		pending, err := engine.PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Queued:  %d unsynced change(s)\n", pending)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
