package diagnosis

import (
	"encoding/json"
	"log/slog"
	"strings"
)

const (
	defaultPrimaryIssue    = "Could not determine primary issue"
	defaultAdditionalNotes = "The AI response could not be properly formatted. Please try again."

	possibleIssuesMarker  = "Possible Issues:"
	troubleshootingMarker = "Troubleshooting Steps:"
)

// extractor is one stage of the normalization cascade. Stages run in order
// and the first one that succeeds wins.
type extractor struct {
	name string
	fn   func(string) (DiagnosisResult, bool)
}

var extractorChain = []extractor{
	{name: "json", fn: parseStrictJSON},
	{name: "fenced_json", fn: parseFencedJSON},
	{name: "embedded_json", fn: parseEmbeddedJSON},
}

// Normalize converts a raw completion payload into a well-formed
// DiagnosisResult. It never fails: unparseable input degrades through the
// extractor chain down to marker-based text extraction and finally to a
// fixed default shape.
func Normalize(raw string) DiagnosisResult {
	for _, stage := range extractorChain {
		if result, ok := stage.fn(raw); ok {
			slog.Debug("normalized completion payload", "stage", stage.name)
			return sanitize(result)
		}
	}
	slog.Debug("normalized completion payload", "stage", "text_markers")
	return extractFromText(raw)
}

func parseStrictJSON(raw string) (DiagnosisResult, bool) {
	return tryUnmarshal(strings.TrimSpace(raw))
}

// parseFencedJSON strips a leading ```json fence, a trailing ``` fence and
// any stray backticks before retrying the parse.
func parseFencedJSON(raw string) (DiagnosisResult, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	cleaned = strings.ReplaceAll(cleaned, "`", "")
	return tryUnmarshal(strings.TrimSpace(cleaned))
}

// parseEmbeddedJSON greedily takes the region between the first '{' and the
// last '}' and parses that.
func parseEmbeddedJSON(raw string) (DiagnosisResult, bool) {
	cleaned := strings.ReplaceAll(raw, "`", "")
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return DiagnosisResult{}, false
	}
	return tryUnmarshal(cleaned[start : end+1])
}

func tryUnmarshal(payload string) (DiagnosisResult, bool) {
	if payload == "" || !strings.HasPrefix(payload, "{") {
		return DiagnosisResult{}, false
	}
	var result DiagnosisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return DiagnosisResult{}, false
	}
	return result, true
}

// extractFromText is the last resort: pull issue and troubleshooting lines
// out of free text by their section markers and fill everything else with
// documented defaults.
func extractFromText(raw string) DiagnosisResult {
	result := DiagnosisResult{
		PrimaryIssue:     defaultPrimaryIssue,
		PossibleIssues:   []Issue{},
		Troubleshooting:  []string{},
		RequiredItems:    []string{},
		RepairComplexity: ComplexityUnknown,
		AdditionalNotes:  defaultAdditionalNotes,
	}
	for _, line := range sectionLines(raw, possibleIssuesMarker) {
		result.PossibleIssues = append(result.PossibleIssues, Issue{
			Issue:      line,
			Severity:   SeverityUnknown,
			Likelihood: 50,
		})
	}
	result.Troubleshooting = append(result.Troubleshooting, sectionLines(raw, troubleshootingMarker)...)
	return result
}

// sectionLines returns the trimmed non-blank lines between a section marker
// and the next blank line.
func sectionLines(raw, marker string) []string {
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return nil
	}
	section := raw[idx+len(marker):]
	if blank := strings.Index(section, "\n\n"); blank >= 0 {
		section = section[:blank]
	}
	var out []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// sanitize fills defaults on a parsed result so downstream consumers always
// see valid enums and non-nil slices. Unknown extra JSON fields were already
// discarded by the decoder.
func sanitize(result DiagnosisResult) DiagnosisResult {
	if result.PossibleIssues == nil {
		result.PossibleIssues = []Issue{}
	}
	for i := range result.PossibleIssues {
		switch result.PossibleIssues[i].Severity {
		case SeverityLow, SeverityMedium, SeverityHigh, SeverityUnknown:
		default:
			result.PossibleIssues[i].Severity = SeverityUnknown
		}
	}
	if result.Troubleshooting == nil {
		result.Troubleshooting = []string{}
	}
	if result.RequiredItems == nil {
		result.RequiredItems = []string{}
	}
	switch result.RepairComplexity {
	case ComplexityEasy, ComplexityModerate, ComplexityComplex:
	default:
		result.RepairComplexity = ComplexityUnknown
	}
	return result
}
