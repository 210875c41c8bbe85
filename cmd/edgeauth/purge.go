package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trackwise/edgeauth/internal/janitor"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired sessions once and print how many were removed",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		app, err := newAuthorityApp(cmd.Context(), s, false)
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := janitor.New(app.engine, 0).RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired sessions\n", n)
		return err
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
