package diagnosis

import "time"

// Severity ranks how urgent a candidate issue is.
type Severity string

const (
	SeverityLow     Severity = "Low"
	SeverityMedium  Severity = "Medium"
	SeverityHigh    Severity = "High"
	SeverityUnknown Severity = "Unknown"
)

// Complexity classifies the repair effort for a diagnosis as a whole.
type Complexity string

const (
	ComplexityEasy     Complexity = "Easy"
	ComplexityModerate Complexity = "Moderate"
	ComplexityComplex  Complexity = "Complex"
	ComplexityUnknown  Complexity = "Unknown"
)

// Source tags where a result came from. Live results carry no tag;
// every offline-path result must carry one.
type Source string

const (
	SourceCached     Source = "cached"
	SourcePredefined Source = "predefined"
	SourceGeneric    Source = "generic"
)

// Issue is one candidate root cause within a diagnosis. Slice order carries
// ranking: consumers treat index 0 as most salient when severity ties.
type Issue struct {
	Issue       string   `json:"issue"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Likelihood  int      `json:"likelihood,omitempty"`
}

// DiagnosisResult is the canonical output shape. It is immutable after
// creation; later views never re-derive anything from it.
type DiagnosisResult struct {
	PrimaryIssue     string        `json:"primaryIssue,omitempty"`
	PossibleIssues   []Issue       `json:"possibleIssues"`
	Troubleshooting  []string      `json:"troubleshooting"`
	RequiredItems    []string      `json:"requiredItems"`
	RepairComplexity Complexity    `json:"repairComplexity"`
	AdditionalNotes  string        `json:"additionalNotes,omitempty"`
	SafetyWarnings   string        `json:"safetyWarnings,omitempty"`
	Source           Source        `json:"source,omitempty"`
	Note             string        `json:"note,omitempty"`
	CostEstimates    *CostEstimate `json:"costEstimates,omitempty"`
}

// CostRange is a whole-dollar min/max span.
type CostRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// LaborCost is a dollar range plus the estimated hours behind it.
type LaborCost struct {
	Min   int       `json:"min"`
	Max   int       `json:"max"`
	Hours CostRange `json:"hours"`
}

// LineItem is the per-issue slice of a cost estimate.
type LineItem struct {
	Issue          string    `json:"issue"`
	CostRange      CostRange `json:"costRange"`
	Description    string    `json:"description"`
	DIYFeasibility string    `json:"diyFeasibility"`
}

// CostEstimate is derived deterministically from a DiagnosisResult.
// partsCost + laborCost equals totalEstimate at both bounds (40/60 split),
// and len(LineItems) equals len(PossibleIssues).
type CostEstimate struct {
	TotalEstimate          CostRange          `json:"totalEstimate"`
	PartsCost              CostRange          `json:"partsCost"`
	LaborCost              LaborCost          `json:"laborCost"`
	LineItems              []LineItem         `json:"lineItems"`
	RegionalAdjustments    map[string]float64 `json:"regionalAdjustments"`
	WarrantyConsiderations string             `json:"warrantyConsiderations"`
	Disclaimer             string             `json:"disclaimer"`
}

// HistoryEntry is one saved diagnostic in the local history store.
type HistoryEntry struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"`
	SystemType string         `json:"systemType"`
	SystemInfo map[string]any `json:"systemInfo,omitempty"`
	Symptoms   string         `json:"symptoms"`
	Result     DiagnosisResult `json:"result"`
}

// HistoryCap is the maximum number of retained history entries; the oldest
// entry is evicted first once the cap is reached.
const HistoryCap = 50

func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
