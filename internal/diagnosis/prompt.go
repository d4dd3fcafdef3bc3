package diagnosis

import (
	"fmt"
	"sort"
	"strings"
)

const systemPrompt = `You are an experienced HVAC diagnostic technician. Given a system type, equipment details, and symptoms, respond with a JSON object only, no prose and no markdown fences, using exactly this shape:
{
  "primaryIssue": "one-line summary",
  "possibleIssues": [{"issue": "...", "severity": "Low|Medium|High", "description": "...", "likelihood": 0-100}],
  "troubleshooting": ["step 1", "step 2"],
  "requiredItems": ["part or tool"],
  "repairComplexity": "Easy|Moderate|Complex",
  "additionalNotes": "...",
  "safetyWarnings": "..."
}
Order possibleIssues from most to least likely. Include safetyWarnings whenever gas, refrigerant, or line voltage could be involved.`

// BuildPrompt renders the system and user messages for a diagnostic
// completion request.
func BuildPrompt(systemType string, systemInfo map[string]any, symptoms string) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "System type: %s\n", systemType)
	if len(systemInfo) > 0 {
		b.WriteString("Equipment details:\n")
		keys := make([]string, 0, len(systemInfo))
		for key := range systemInfo {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", key, systemInfo[key])
		}
	}
	fmt.Fprintf(&b, "Reported symptoms: %s\n", symptoms)
	return systemPrompt, b.String()
}
