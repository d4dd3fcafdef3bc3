package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hvac-scout/internal/diagnosis"
	"hvac-scout/internal/llm"
	"hvac-scout/internal/server"
)

var (
	systemType   string
	systemInfo   []string
	offline      bool
	outputFormat string
	model        string
	baseURL      string
)

func NewDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose SYMPTOMS",
		Short: "Diagnose an HVAC problem from its symptoms",
		Long: `Describe the symptoms of a heating or cooling system and get a
structured diagnosis with troubleshooting steps and cost estimates.

Examples:
  # Diagnose a central AC that stopped cooling
  hvac-scout diagnose "system is not cooling at all" -t central-ac

  # Pass system details as key=value pairs
  hvac-scout diagnose "loud grinding noise on startup" -t furnace \
    -i brand=Carrier -i age=12

  # Work without network access
  hvac-scout diagnose "no heat coming from vents" -t furnace --offline

  # Machine-readable output
  hvac-scout diagnose "short cycling every few minutes" -t central-ac -o json`,
		Args: cobra.ExactArgs(1),
		RunE: runDiagnose,
	}

	cmd.Flags().StringVarP(&systemType, "type", "t", "central-ac", "System type (central-ac, furnace, heat-pump)")
	cmd.Flags().StringSliceVarP(&systemInfo, "info", "i", []string{}, "System details as key=value pairs")
	cmd.Flags().BoolVar(&offline, "offline", false, "Resolve locally without calling the AI provider")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "human", "Output format (human, json)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Override the completion model")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Override the completion provider base URL")

	return cmd
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	symptoms := strings.TrimSpace(args[0])
	if symptoms == "" {
		return fmt.Errorf("symptoms must not be empty")
	}
	info, err := parseInfoPairs(systemInfo)
	if err != nil {
		return err
	}

	store, err := openLocalStore()
	if err != nil {
		return err
	}

	var result diagnosis.DiagnosisResult
	if offline {
		result = diagnosis.ResolveOffline(store.ListDiagnostics(0), systemType, symptoms)
	} else {
		result, err = diagnoseLive(cmd.Context(), symptoms, info)
		if err != nil {
			printWarn(fmt.Sprintf("AI diagnosis failed (%v), falling back to offline resolver", err))
			result = diagnosis.ResolveOffline(store.ListDiagnostics(0), systemType, symptoms)
		}
	}

	// Only live results enter the cache that the offline resolver scans.
	if result.Source == "" {
		entry := diagnosis.HistoryEntry{
			ID:         uuid.NewString(),
			Timestamp:  diagnosis.NowRFC3339(),
			SystemType: systemType,
			SystemInfo: info,
			Symptoms:   symptoms,
			Result:     result,
		}
		if err := store.SaveDiagnostic(entry); err != nil {
			printWarn(fmt.Sprintf("could not save history entry: %v", err))
		}
	}

	return renderResult(result, outputFormat)
}

func diagnoseLive(ctx context.Context, symptoms string, info map[string]any) (diagnosis.DiagnosisResult, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return diagnosis.DiagnosisResult{}, fmt.Errorf("OPENAI_API_KEY environment variable not set (use --offline to skip the provider)")
	}

	client := llm.NewClient(llm.Config{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   modelOrDefault(),
	})

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond)
	s.Suffix = " Consulting the diagnostic model..."
	s.Start()

	system, user := diagnosis.BuildPrompt(systemType, info, symptoms)
	callCtx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()
	resp, _, err := client.CreateChatCompletion(callCtx, llm.ChatRequest{
		Messages: []llm.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	s.Stop()
	if err != nil {
		return diagnosis.DiagnosisResult{}, err
	}
	printSuccess("Diagnosis complete")

	result := diagnosis.Normalize(resp.Content())
	cost := diagnosis.EstimateCost(result)
	result.CostEstimates = &cost
	return result, nil
}

func modelOrDefault() string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	if env := os.Getenv("HVAC_SCOUT_MODEL"); env != "" {
		return env
	}
	return "gpt-4o-mini"
}

func parseInfoPairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	info := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --info value %q, expected key=value", pair)
		}
		info[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return info, nil
}

func openLocalStore() (*server.MemoryFileStore, error) {
	path := os.Getenv("HVAC_SCOUT_HISTORY")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			// no usable home dir, run without persistence
			return server.NewMemoryFileStore("")
		}
		path = home + "/.hvac-scout/history.json"
	}
	store, err := server.NewMemoryFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

func renderResult(result diagnosis.DiagnosisResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	case "human", "":
		printDiagnosis(result)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (expected human or json)", format)
	}
}

func printDiagnosis(result diagnosis.DiagnosisResult) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Println()
	cyan.Println("HVAC Diagnosis")
	if result.Source != "" {
		yellow.Printf("(resolved offline: %s)\n", result.Source)
	}
	fmt.Println()

	bold.Print("Primary issue: ")
	fmt.Println(result.PrimaryIssue)

	if len(result.PossibleIssues) > 0 {
		fmt.Println()
		bold.Println("Possible issues:")
		for _, issue := range result.PossibleIssues {
			fmt.Printf("  - %s [%s", issue.Issue, issue.Severity)
			if issue.Likelihood > 0 {
				fmt.Printf(", %d%%", issue.Likelihood)
			}
			fmt.Println("]")
			if issue.Description != "" {
				fmt.Printf("    %s\n", issue.Description)
			}
		}
	}

	if len(result.Troubleshooting) > 0 {
		fmt.Println()
		bold.Println("Troubleshooting steps:")
		for i, step := range result.Troubleshooting {
			fmt.Printf("  %d. %s\n", i+1, step)
		}
	}

	if len(result.RequiredItems) > 0 {
		fmt.Println()
		bold.Println("You may need:")
		for _, item := range result.RequiredItems {
			fmt.Printf("  - %s\n", item)
		}
	}

	fmt.Println()
	bold.Print("Repair complexity: ")
	fmt.Println(result.RepairComplexity)

	if result.CostEstimates != nil {
		estimate := result.CostEstimates
		fmt.Println()
		bold.Println("Estimated cost:")
		fmt.Printf("  Total: $%d-$%d\n", estimate.TotalEstimate.Min, estimate.TotalEstimate.Max)
		fmt.Printf("  Parts: $%d-$%d\n", estimate.PartsCost.Min, estimate.PartsCost.Max)
		fmt.Printf("  Labor: $%d-$%d (%d-%d hours)\n",
			estimate.LaborCost.Min, estimate.LaborCost.Max,
			estimate.LaborCost.Hours.Min, estimate.LaborCost.Hours.Max)
	}

	if result.SafetyWarnings != "" {
		fmt.Println()
		red.Printf("Safety warning: %s\n", result.SafetyWarnings)
	}

	if result.AdditionalNotes != "" {
		fmt.Println()
		fmt.Println(result.AdditionalNotes)
	}
	if result.Note != "" {
		fmt.Println()
		yellow.Println(result.Note)
	}
	fmt.Println()
}

func printSuccess(msg string) {
	green := color.New(color.FgGreen)
	green.Printf("✓ %s\n", msg)
}

func printWarn(msg string) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("! %s\n", msg)
}
