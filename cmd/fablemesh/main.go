package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "fablemesh",
		Short: "Agent-driven narrative platform backend",
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", "fablemesh.yaml", "Path to the project config file")
	root.AddCommand(serveCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(backfillCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
