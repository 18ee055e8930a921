package review

import (
	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/rubric"
)

// Derive computes the overall status from aligned criterion results.
// Criteria must already be in rubric order (see AlignCriteria). Any
// critical failure forces failed; non-critical failures alone downgrade
// to partial. Pure function.
func Derive(r rubric.Rubric, criteria []models.CriterionResult) (status models.ReviewStatus, anyCriticalFailed bool) {
	allPassed := true
	for i, c := range criteria {
		if c.Passed {
			continue
		}
		allPassed = false
		if i < len(r) && r[i].Critical {
			anyCriticalFailed = true
		}
	}

	switch {
	case anyCriticalFailed:
		return models.ReviewStatusFailed, true
	case !allPassed:
		return models.ReviewStatusPartial, false
	default:
		return models.ReviewStatusPassed, false
	}
}

// ComposeSummary joins the model's summary with its suggestions block
// when one is present.
func ComposeSummary(summary, suggestions string) string {
	if suggestions == "" {
		return summary
	}
	return summary + "\n\nSuggestions: " + suggestions
}
