package core

// CalculateRisk scores an operation from its value at risk (USD), a complexity
// count and a price impact fraction (0.05 means 5%), and maps the score onto a
// risk tier. The breakpoints are load-bearing: warning and confidence logic
// downstream depends on the exact tiers.
func CalculateRisk(valueAtRisk float64, complexity int, priceImpact float64) RiskLevel {
	score := 0.0

	switch {
	case valueAtRisk > 10000:
		score += 40
	case valueAtRisk > 1000:
		score += 20
	case valueAtRisk > 100:
		score += 10
	}

	complexityScore := float64(complexity) * 10
	if complexityScore > 30 {
		complexityScore = 30
	}
	score += complexityScore

	impactScore := priceImpact * 100
	if impactScore > 30 {
		impactScore = 30
	}
	score += impactScore

	switch {
	case score >= 70:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskMedium
	default:
		return RiskLow
	}
}
