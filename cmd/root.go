package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute wires the subcommands and runs the CLI.
func Execute() error {
	var root = &cobra.Command{Use: "steward"}

	root.AddCommand(serveCMD(), migrateCMD(), schemaCMD())
	return root.Execute()
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
