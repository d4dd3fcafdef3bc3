package diagnosis

import "testing"

const validPayload = `{
	"primaryIssue": "Capacitor failure",
	"possibleIssues": [
		{"issue": "Failed run capacitor", "severity": "High", "description": "Compressor hums but does not start", "likelihood": 70},
		{"issue": "Dirty condenser coil", "severity": "Medium", "description": "Reduced heat rejection", "likelihood": 40}
	],
	"troubleshooting": ["Turn off power at the disconnect", "Inspect the capacitor for bulging"],
	"requiredItems": ["Run capacitor", "Multimeter"],
	"repairComplexity": "Moderate",
	"additionalNotes": "Common failure in hot climates",
	"safetyWarnings": "Capacitors hold charge after power off"
}`

func TestNormalizeValidJSON(t *testing.T) {
	result := Normalize(validPayload)
	if result.PrimaryIssue != "Capacitor failure" {
		t.Fatalf("primary issue = %q", result.PrimaryIssue)
	}
	if len(result.PossibleIssues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(result.PossibleIssues))
	}
	if result.PossibleIssues[0].Severity != SeverityHigh {
		t.Fatalf("first issue severity = %q", result.PossibleIssues[0].Severity)
	}
	if result.PossibleIssues[0].Likelihood != 70 {
		t.Fatalf("first issue likelihood = %d", result.PossibleIssues[0].Likelihood)
	}
	if result.RepairComplexity != ComplexityModerate {
		t.Fatalf("complexity = %q", result.RepairComplexity)
	}
	if len(result.Troubleshooting) != 2 {
		t.Fatalf("expected 2 troubleshooting steps, got %d", len(result.Troubleshooting))
	}
}

func TestNormalizeFencedJSON(t *testing.T) {
	fenced := "```json\n" + validPayload + "\n```"
	plain := Normalize(validPayload)
	result := Normalize(fenced)
	if result.PrimaryIssue != plain.PrimaryIssue {
		t.Fatalf("fenced primary issue = %q, want %q", result.PrimaryIssue, plain.PrimaryIssue)
	}
	if len(result.PossibleIssues) != len(plain.PossibleIssues) {
		t.Fatalf("fenced issues = %d, want %d", len(result.PossibleIssues), len(plain.PossibleIssues))
	}
	if result.RepairComplexity != plain.RepairComplexity {
		t.Fatalf("fenced complexity = %q, want %q", result.RepairComplexity, plain.RepairComplexity)
	}
}

func TestNormalizeEmbeddedJSON(t *testing.T) {
	wrapped := "Here is the diagnosis you asked for:\n" + validPayload + "\nLet me know if you need anything else."
	result := Normalize(wrapped)
	if result.PrimaryIssue != "Capacitor failure" {
		t.Fatalf("embedded primary issue = %q", result.PrimaryIssue)
	}
	if len(result.PossibleIssues) != 2 {
		t.Fatalf("embedded issues = %d", len(result.PossibleIssues))
	}
}

func TestNormalizeMarkerText(t *testing.T) {
	raw := "The system seems unwell.\n\nPossible Issues:\nFrozen evaporator coil\nLow refrigerant\n\nTroubleshooting Steps:\nTurn the system off\nLet the coil thaw\n\nGood luck."
	result := Normalize(raw)
	if len(result.PossibleIssues) != 2 {
		t.Fatalf("expected 2 extracted issues, got %d", len(result.PossibleIssues))
	}
	if result.PossibleIssues[0].Issue != "Frozen evaporator coil" {
		t.Fatalf("first extracted issue = %q", result.PossibleIssues[0].Issue)
	}
	if result.PossibleIssues[0].Severity != SeverityUnknown {
		t.Fatalf("extracted severity = %q", result.PossibleIssues[0].Severity)
	}
	if result.PossibleIssues[0].Likelihood != 50 {
		t.Fatalf("extracted likelihood = %d", result.PossibleIssues[0].Likelihood)
	}
	if len(result.Troubleshooting) != 2 || result.Troubleshooting[1] != "Let the coil thaw" {
		t.Fatalf("troubleshooting = %v", result.Troubleshooting)
	}
	if result.PrimaryIssue != defaultPrimaryIssue {
		t.Fatalf("primary issue = %q", result.PrimaryIssue)
	}
}

func TestNormalizeGarbage(t *testing.T) {
	result := Normalize("total nonsense with no structure at all")
	if result.PrimaryIssue != defaultPrimaryIssue {
		t.Fatalf("primary issue = %q", result.PrimaryIssue)
	}
	if result.RepairComplexity != ComplexityUnknown {
		t.Fatalf("complexity = %q", result.RepairComplexity)
	}
	if len(result.PossibleIssues) != 0 || len(result.Troubleshooting) != 0 {
		t.Fatalf("expected empty lists, got %v / %v", result.PossibleIssues, result.Troubleshooting)
	}
	if result.AdditionalNotes != defaultAdditionalNotes {
		t.Fatalf("additional notes = %q", result.AdditionalNotes)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	result := Normalize(`{"primaryIssue": "Something", "possibleIssues": [{"issue": "X", "severity": "Catastrophic"}]}`)
	if result.PossibleIssues[0].Severity != SeverityUnknown {
		t.Fatalf("unrecognized severity should coerce to Unknown, got %q", result.PossibleIssues[0].Severity)
	}
	if result.RepairComplexity != ComplexityUnknown {
		t.Fatalf("missing complexity should default to Unknown, got %q", result.RepairComplexity)
	}
	if result.Troubleshooting == nil || result.RequiredItems == nil {
		t.Fatal("slices should never be nil after normalization")
	}
}
