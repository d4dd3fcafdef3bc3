package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyOutput string

func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [ID]",
		Short: "List or show saved diagnoses",
		Long: `Without arguments, lists the saved diagnostic history (newest last).
With an entry ID, prints that diagnosis in full.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
	cmd.Flags().StringVarP(&historyOutput, "output", "o", "human", "Output format (human, json)")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openLocalStore()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		entry, ok := store.GetDiagnostic(args[0])
		if !ok {
			return fmt.Errorf("no history entry with id %s", args[0])
		}
		if historyOutput == "json" {
			data, err := json.MarshalIndent(entry, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		bold := color.New(color.Bold)
		bold.Printf("%s  %s\n", entry.Timestamp, entry.SystemType)
		fmt.Printf("Symptoms: %s\n", entry.Symptoms)
		printDiagnosis(entry.Result)
		return nil
	}

	entries := store.ListDiagnostics(0)
	if historyOutput == "json" {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	if len(entries) == 0 {
		fmt.Println("No saved diagnoses yet.")
		return nil
	}
	cyan := color.New(color.FgCyan)
	for _, entry := range entries {
		cyan.Printf("%s", entry.ID)
		fmt.Printf("  %s  %-10s  %s\n", entry.Timestamp, entry.SystemType, truncate(entry.Symptoms, 60))
	}
	return nil
}

// truncate shortens s to max runes, byte slicing would mangle multibyte
// symptom text.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
