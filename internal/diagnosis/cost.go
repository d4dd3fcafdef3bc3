package diagnosis

import "math"

// Fixed pricing tables. These are data, not derived values; regional
// multipliers are attached verbatim to every estimate.
var (
	complexityRanges = map[Complexity]CostRange{
		ComplexityEasy:     {Min: 100, Max: 300},
		ComplexityModerate: {Min: 250, Max: 800},
		ComplexityComplex:  {Min: 700, Max: 2500},
	}

	severityMultipliers = map[Severity]float64{
		SeverityLow:    0.7,
		SeverityMedium: 1.0,
		SeverityHigh:   1.3,
	}

	regionalAdjustments = map[string]float64{
		"northeast": 1.15,
		"midwest":   0.95,
		"south":     0.9,
		"west":      1.2,
	}
)

const (
	warrantyConsiderations = "Parts may be covered under manufacturer warranty if the system is less than 10 years old. Check your warranty documentation before authorizing repairs."
	costDisclaimer         = "Estimates are based on national averages and may vary by region, contractor, and actual fault found on site. Obtain a written quote before work begins."
)

// EstimateCost derives a cost estimate from a normalized result. Pure and
// deterministic: same result in, same estimate out.
//
// Labor hours are intentionally derived from the parts-cost figure rather
// than the labor figure. That matches the shipped behavior and the numbers
// downstream consumers already expect; do not "fix" it without a product
// decision.
func EstimateCost(result DiagnosisResult) CostEstimate {
	complexity := result.RepairComplexity
	base, ok := complexityRanges[complexity]
	if !ok {
		complexity = ComplexityModerate
		base = complexityRanges[ComplexityModerate]
	}

	parts := CostRange{
		Min: round(float64(base.Min) * 0.4),
		Max: round(float64(base.Max) * 0.4),
	}
	labor := LaborCost{
		Min: round(float64(base.Min) * 0.6),
		Max: round(float64(base.Max) * 0.6),
		Hours: CostRange{
			Min: round(float64(parts.Min) / 50),
			Max: round(float64(parts.Max) / 50),
		},
	}

	diy := "None"
	if complexity == ComplexityEasy {
		diy = "Partial"
	}
	lineItems := make([]LineItem, 0, len(result.PossibleIssues))
	for _, issue := range result.PossibleIssues {
		multiplier, ok := severityMultipliers[issue.Severity]
		if !ok {
			multiplier = 1.0
		}
		lineItems = append(lineItems, LineItem{
			Issue: issue.Issue,
			CostRange: CostRange{
				Min: round(float64(base.Min) * multiplier * 0.5),
				Max: round(float64(base.Max) * multiplier * 0.7),
			},
			Description:    issue.Description,
			DIYFeasibility: diy,
		})
	}

	return CostEstimate{
		TotalEstimate:          base,
		PartsCost:              parts,
		LaborCost:              labor,
		LineItems:              lineItems,
		RegionalAdjustments:    cloneAdjustments(),
		WarrantyConsiderations: warrantyConsiderations,
		Disclaimer:             costDisclaimer,
	}
}

func round(v float64) int {
	return int(math.Round(v))
}

func cloneAdjustments() map[string]float64 {
	out := make(map[string]float64, len(regionalAdjustments))
	for region, multiplier := range regionalAdjustments {
		out[region] = multiplier
	}
	return out
}
