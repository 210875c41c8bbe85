package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/trackwise/edgeauth/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(buildinfo.GetBuildInfo("edgeauth"))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
