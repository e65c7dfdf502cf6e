package scrub

import "secure-scrub/internal/domain"

// Choice is the artifact selected for finalization.
type Choice struct {
	Artifact domain.StagedArtifact
	Strategy domain.Strategy
}

// Arbitrate keeps the optimized artifact only when it is strictly smaller
// than the cleaned one. Ties, regressions and fallbacks keep cleaned, so the
// result is never larger than metadata stripping alone.
func Arbitrate(cleaned domain.StagedArtifact, optimized OptimizeResult) Choice {
	if optimized.Fallback {
		return Choice{Artifact: cleaned, Strategy: domain.StrategyFallback}
	}
	if optimized.Artifact.Size > 0 && optimized.Artifact.Size < cleaned.Size {
		return Choice{Artifact: optimized.Artifact, Strategy: domain.StrategyOptimized}
	}
	return Choice{Artifact: cleaned, Strategy: domain.StrategyCleaned}
}
