package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply principal store migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), s.DatabaseURL, true)
		if err != nil {
			return err
		}
		defer store.Close()

		log.Info().Str("database", s.DatabaseURL).Msg("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
