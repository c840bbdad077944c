package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medislot",
		Short: "Doctor appointment slot booking API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(generateSlotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
