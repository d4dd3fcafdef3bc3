package diagnosis

import "strings"

const (
	cachedNote     = "This diagnosis was recalled from a previous saved report with matching symptoms. Verify conditions have not changed before acting on it."
	predefinedNote = "Offline mode: this is a predefined diagnosis for the reported symptom pattern, not an analysis of your specific system."
	genericNote    = "Offline mode: no matching diagnostic data was available, so this is general guidance only."
)

// phraseGroups maps symptom phrases to an issue key. Classification is
// first-match-wins over this exact order; "no heat" appears in two groups
// and must keep resolving to not-heating.
var phraseGroups = []struct {
	key     string
	phrases []string
}{
	{key: "not-cooling", phrases: []string{"not cooling", "no cool", "isn't cooling"}},
	{key: "making-noise", phrases: []string{"noise", "loud", "sound"}},
	{key: "not-heating", phrases: []string{"not heating", "no heat", "isn't heating"}},
	{key: "no-heat", phrases: []string{"no heat", "won't heat"}},
	{key: "short-cycling", phrases: []string{"cycling", "turning on and off"}},
}

// ResolveOffline produces a diagnosis without any network call. Precedence
// is strict and first match wins: saved history, then the predefined issue
// table, then a generic fallback. It cannot fail.
func ResolveOffline(history []HistoryEntry, systemType, symptoms string) DiagnosisResult {
	needle := strings.ToLower(symptoms)
	for _, entry := range history {
		if entry.SystemType != systemType {
			continue
		}
		if strings.Contains(strings.ToLower(entry.Symptoms), needle) {
			result := entry.Result
			result.Source = SourceCached
			result.Note = cachedNote
			return result
		}
	}

	if key := classifySymptoms(symptoms); key != "" {
		if byKey, ok := predefinedIssues[systemType]; ok {
			if result, ok := byKey[key]; ok {
				result.Source = SourcePredefined
				result.Note = predefinedNote
				return result
			}
		}
	}

	return genericResult()
}

func classifySymptoms(symptoms string) string {
	lowered := strings.ToLower(symptoms)
	for _, group := range phraseGroups {
		for _, phrase := range group.phrases {
			if strings.Contains(lowered, phrase) {
				return group.key
			}
		}
	}
	return ""
}

func genericResult() DiagnosisResult {
	return DiagnosisResult{
		PrimaryIssue: "Unable to determine the issue without more information",
		PossibleIssues: []Issue{
			{Issue: "Unknown issue", Severity: SeverityUnknown},
		},
		Troubleshooting: []string{
			"Check that the thermostat is set to the correct mode and temperature",
			"Verify the system has power at the breaker panel",
			"Replace or clean the air filter if it is dirty",
			"Make sure all vents and registers are open and unobstructed",
			"If the problem persists, contact a licensed HVAC technician",
		},
		RequiredItems:    []string{"Flashlight", "Replacement air filter", "Screwdriver set"},
		RepairComplexity: ComplexityUnknown,
		Source:           SourceGeneric,
		Note:             genericNote,
	}
}

// predefinedIssues is the offline lookup table keyed by system type and
// classified issue key. Loaded once at init and never mutated.
var predefinedIssues = map[string]map[string]DiagnosisResult{
	"central-ac": {
		"not-cooling": {
			PrimaryIssue: "Air conditioner running but not cooling",
			PossibleIssues: []Issue{
				{Issue: "Low refrigerant charge", Severity: SeverityHigh, Description: "A leak in the refrigerant lines or coil reduces cooling capacity.", Likelihood: 60},
				{Issue: "Dirty condenser coil", Severity: SeverityMedium, Description: "Debris on the outdoor coil prevents heat rejection.", Likelihood: 45},
				{Issue: "Clogged air filter", Severity: SeverityLow, Description: "Restricted airflow across the evaporator reduces cooling.", Likelihood: 40},
			},
			Troubleshooting: []string{
				"Replace the air filter and allow 30 minutes for temperatures to respond",
				"Clear leaves and debris from around the outdoor condenser unit",
				"Check whether the large refrigerant line at the outdoor unit feels cold",
				"Look for ice on the refrigerant lines or indoor coil; if frozen, switch the system off",
				"Call a technician for a refrigerant pressure check if cooling does not recover",
			},
			RequiredItems:    []string{"Replacement air filter", "Garden hose for coil rinse", "Fin comb"},
			RepairComplexity: ComplexityModerate,
			SafetyWarnings:   "Refrigerant handling requires EPA certification. Do not open sealed refrigerant circuits.",
		},
		"making-noise": {
			PrimaryIssue: "Unusual noise from air conditioning system",
			PossibleIssues: []Issue{
				{Issue: "Worn blower motor bearing", Severity: SeverityMedium, Description: "Grinding or squealing from the air handler under load.", Likelihood: 50},
				{Issue: "Loose panel or mounting hardware", Severity: SeverityLow, Description: "Rattling panels vibrate at fan speed.", Likelihood: 45},
				{Issue: "Failing compressor", Severity: SeverityHigh, Description: "Banging or clanking from the outdoor unit can indicate internal compressor damage.", Likelihood: 25},
			},
			Troubleshooting: []string{
				"Identify whether the noise comes from the indoor air handler or the outdoor unit",
				"Tighten visible panel screws on the cabinet",
				"Check that nothing has fallen into the outdoor fan guard",
				"Switch the system off if you hear metal-on-metal grinding",
				"Schedule service if the noise persists after the checks above",
			},
			RequiredItems:    []string{"Screwdriver set", "Flashlight"},
			RepairComplexity: ComplexityModerate,
		},
		"short-cycling": {
			PrimaryIssue: "System turning on and off rapidly",
			PossibleIssues: []Issue{
				{Issue: "Oversized or iced evaporator coil", Severity: SeverityMedium, Description: "Freeze-ups trip the unit off before a full cycle completes.", Likelihood: 45},
				{Issue: "Thermostat placement or fault", Severity: SeverityLow, Description: "A thermostat near a vent or in sunlight cycles the system early.", Likelihood: 40},
				{Issue: "Failing run capacitor", Severity: SeverityHigh, Description: "A weak capacitor lets the compressor stall and restart.", Likelihood: 35},
			},
			Troubleshooting: []string{
				"Replace the air filter to rule out airflow-driven freeze-ups",
				"Check the thermostat location for drafts or direct sun",
				"Listen for humming followed by a click at the outdoor unit",
				"Leave the system off for an hour to thaw any ice, then retest",
				"Have a technician test the capacitor and pressure switches if cycling continues",
			},
			RequiredItems:    []string{"Replacement air filter"},
			RepairComplexity: ComplexityModerate,
		},
	},
	"furnace": {
		"not-heating": {
			PrimaryIssue: "Furnace running but not producing heat",
			PossibleIssues: []Issue{
				{Issue: "Ignitor failure", Severity: SeverityHigh, Description: "A cracked hot-surface ignitor prevents burner light-off.", Likelihood: 55},
				{Issue: "Dirty flame sensor", Severity: SeverityMedium, Description: "A fouled sensor shuts the gas valve seconds after ignition.", Likelihood: 50},
				{Issue: "Clogged air filter", Severity: SeverityLow, Description: "Overheat limit trips stop the burners on restricted airflow.", Likelihood: 40},
			},
			Troubleshooting: []string{
				"Confirm the thermostat is calling for heat and set above room temperature",
				"Replace the furnace filter",
				"Check that the furnace switch and breaker are on",
				"Watch the burner compartment for ignition attempts through the sight glass",
				"Note any blinking error code on the control board and report it to your technician",
			},
			RequiredItems:    []string{"Replacement furnace filter", "Flashlight"},
			RepairComplexity: ComplexityModerate,
			SafetyWarnings:   "If you smell gas, leave the building immediately and call your gas utility. Do not operate electrical switches.",
		},
		"no-heat": {
			PrimaryIssue: "Furnace will not start",
			PossibleIssues: []Issue{
				{Issue: "No power to furnace", Severity: SeverityMedium, Description: "Tripped breaker or switched-off service switch.", Likelihood: 50},
				{Issue: "Failed control board", Severity: SeverityHigh, Description: "No response to a call for heat with power present.", Likelihood: 30},
				{Issue: "Thermostat fault", Severity: SeverityLow, Description: "Dead batteries or a wiring break stop the call for heat.", Likelihood: 35},
			},
			Troubleshooting: []string{
				"Replace thermostat batteries if applicable",
				"Reset the furnace breaker and check the service switch near the unit",
				"Verify the furnace door panel is fully seated; it holds a safety switch",
				"Check the condensate drain on high-efficiency furnaces for a full trap",
				"Call for service if the furnace stays dead with power confirmed",
			},
			RequiredItems:    []string{"Thermostat batteries", "Flashlight"},
			RepairComplexity: ComplexityModerate,
		},
		"making-noise": {
			PrimaryIssue: "Unusual noise from furnace",
			PossibleIssues: []Issue{
				{Issue: "Delayed gas ignition", Severity: SeverityHigh, Description: "A boom at light-off means gas pooled before ignition.", Likelihood: 35},
				{Issue: "Blower wheel out of balance", Severity: SeverityMedium, Description: "Thumping that tracks fan speed points to the blower.", Likelihood: 45},
				{Issue: "Expanding ductwork", Severity: SeverityLow, Description: "Pops and ticks as metal ducts heat and cool are usually harmless.", Likelihood: 50},
			},
			Troubleshooting: []string{
				"Note when the noise occurs: at ignition, during steady running, or at shutdown",
				"Replace the filter; a starved blower is louder",
				"Shut the furnace down if you hear booms at ignition and call for service",
				"Check accessible duct joints for loose sections",
				"Schedule a tune-up if the noise continues",
			},
			RequiredItems:    []string{"Replacement furnace filter"},
			RepairComplexity: ComplexityModerate,
			SafetyWarnings:   "Booming ignition can crack the heat exchanger. Stop using the furnace until inspected.",
		},
	},
	"heat-pump": {
		"not-cooling": {
			PrimaryIssue: "Heat pump not cooling",
			PossibleIssues: []Issue{
				{Issue: "Stuck reversing valve", Severity: SeverityHigh, Description: "The valve did not shift from heating to cooling mode.", Likelihood: 40},
				{Issue: "Low refrigerant charge", Severity: SeverityHigh, Description: "Leaks reduce capacity in both modes.", Likelihood: 45},
				{Issue: "Dirty outdoor coil", Severity: SeverityMedium, Description: "Blocked coil limits heat rejection in cooling mode.", Likelihood: 40},
			},
			Troubleshooting: []string{
				"Switch the thermostat between heat and cool and listen for the reversing valve whoosh",
				"Rinse the outdoor coil with a garden hose",
				"Replace the air filter",
				"Confirm the outdoor fan spins freely",
				"Book a technician for charge and valve diagnosis if cooling does not return",
			},
			RequiredItems:    []string{"Garden hose for coil rinse", "Replacement air filter"},
			RepairComplexity: ComplexityComplex,
		},
		"not-heating": {
			PrimaryIssue: "Heat pump not heating",
			PossibleIssues: []Issue{
				{Issue: "Outdoor unit iced over", Severity: SeverityMedium, Description: "A failed defrost cycle leaves the coil encased in ice.", Likelihood: 50},
				{Issue: "Auxiliary heat failure", Severity: SeverityMedium, Description: "Backup heat strips are not engaging in cold weather.", Likelihood: 40},
				{Issue: "Low refrigerant charge", Severity: SeverityHigh, Description: "Leaks sharply reduce heating capacity.", Likelihood: 35},
			},
			Troubleshooting: []string{
				"Look for heavy ice on the outdoor coil; light frost is normal",
				"Set the thermostat to emergency heat and check whether warm air returns",
				"Replace the air filter",
				"Keep snow and vegetation clear of the outdoor unit",
				"Call for service if the unit stays iced or emergency heat does not work",
			},
			RequiredItems:    []string{"Replacement air filter", "Soft brush for snow removal"},
			RepairComplexity: ComplexityComplex,
		},
	},
}
