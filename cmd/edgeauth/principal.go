package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var principalCmd = &cobra.Command{
	Use:   "principal",
	Short: "Enable, disable or inspect a principal",
}

var principalDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a principal and revoke its active sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuthorityApp(cmd, func(app *authorityApp) error {
			id := args[0]
			if err := app.store.SetActive(cmd.Context(), id, false); err != nil {
				return fmt.Errorf("disabling %s: %w", id, err)
			}
			n, err := app.engine.RevokeAll(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "disabled %s, revoked %d sessions\n", id, n)
			return err
		})
	},
}

var principalEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Allow a disabled principal to log in again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuthorityApp(cmd, func(app *authorityApp) error {
			id := args[0]
			if err := app.store.SetActive(cmd.Context(), id, true); err != nil {
				return fmt.Errorf("enabling %s: %w", id, err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "enabled %s\n", id)
			return err
		})
	},
}

var principalSessionsCmd = &cobra.Command{
	Use:   "sessions <id>",
	Short: "Print how many sessions of a principal are active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuthorityApp(cmd, func(app *authorityApp) error {
			n, err := app.engine.ActiveSessions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s has %d active sessions\n", args[0], n)
			return err
		})
	},
}

func withAuthorityApp(cmd *cobra.Command, fn func(*authorityApp) error) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	app, err := newAuthorityApp(cmd.Context(), s, false)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func init() {
	principalCmd.AddCommand(principalDisableCmd, principalEnableCmd, principalSessionsCmd)
	rootCmd.AddCommand(principalCmd)
}
