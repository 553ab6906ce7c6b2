package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/fieldworker/internal/stubserver"
)

var stubAddr string

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run an in-memory dispatch server for local development",
	Long:  fmt.Sprintf("Runs a stub dispatch server with seeded tasks.\nLog in with username %q and password %q.", stubserver.DefaultUsername, stubserver.DefaultPassword),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Stub dispatch server listening on %s\n", stubAddr)
		return stubserver.New().Start(stubAddr)
	},
}

func init() {
	stubCmd.Flags().StringVar(&stubAddr, "addr", ":8000", "listen address")
	rootCmd.AddCommand(stubCmd)
}
