package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/fieldworker/internal/credential"
)

var loginServerURL string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the dispatch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if loginServerURL != "" {
			cfg.Server.BaseURL = loginServerURL
		}

		var username, password string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Username").
					Value(&username),
				huh.NewInput().
					Title("Password").
					EchoMode(huh.EchoModePassword).
					Value(&password),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("reading credentials: %w", err)
		}

		client := newClient(cfg)
		token, err := client.Login(cmd.Context(), username, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		if err := credential.Set(credential.TokenKey, token); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}
		if loginServerURL != "" {
			if err := saveConfig(cfg); err != nil {
				return err
			}
		}

		fmt.Printf("Logged in to %s\n", cfg.Server.BaseURL)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the stored session and wipe the local cache",
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

		if err := engine.ClearCache(cmd.Context()); err != nil {
			return fmt.Errorf("wiping local cache: %w", err)
		}
		if err := credential.Delete(credential.TokenKey); err != nil {
			fmt.Println("No stored token to remove.")
		}

		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginServerURL, "server", "", "dispatch server base URL (persisted to the config file)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
