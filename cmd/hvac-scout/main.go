package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hvac-scout/internal/cli"
)

var (
	version = "v0.1.0" // Overwritten at build time
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hvac-scout",
		Short: "AI-assisted HVAC diagnostics",
		Long: `hvac-scout diagnoses heating and cooling problems from symptom
descriptions, with deterministic cost estimates and an offline fallback
that works without any provider access.`,
		SilenceUsage: true,
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		cli.NewDiagnoseCmd(),
		cli.NewHistoryCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hvac-scout version %s\n", version)
		},
	}
}
