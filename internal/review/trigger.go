package review

import "github.com/get-convex/crev/internal/models"

// MaybeTransition decides whether a completed review should change the
// package's submission status. Returns nil when no transition applies;
// applying the transition is the caller's job.
//
// A failed verdict without a critical failure cannot occur under Derive's
// own invariant, but the trigger checks anyCriticalFailed anyway rather
// than trusting its caller.
func MaybeTransition(pkgID string, status models.ReviewStatus, policy models.ReviewPolicy, anyCriticalFailed bool) *models.StatusTransition {
	switch {
	case status == models.ReviewStatusPassed && policy.AutoApproveOnPass:
		return &models.StatusTransition{
			PackageID: pkgID,
			To:        models.SubmissionStatusApproved,
			Reason:    "automated review passed",
		}
	case status == models.ReviewStatusFailed && policy.AutoRejectOnFail && anyCriticalFailed:
		return &models.StatusTransition{
			PackageID: pkgID,
			To:        models.SubmissionStatusRejected,
			Reason:    "automated review failed a critical criterion",
		}
	default:
		return nil
	}
}
