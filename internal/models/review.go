package models

import "time"

// ReviewStatus is the overall outcome of an automated component review.
type ReviewStatus string

const (
	ReviewStatusNotReviewed ReviewStatus = "not_reviewed"
	ReviewStatusReviewing   ReviewStatus = "reviewing"
	ReviewStatusPassed      ReviewStatus = "passed"
	ReviewStatusFailed      ReviewStatus = "failed"
	ReviewStatusPartial     ReviewStatus = "partial"
	ReviewStatusError       ReviewStatus = "error"
)

// Terminal reports whether the status is a final review outcome.
func (s ReviewStatus) Terminal() bool {
	switch s {
	case ReviewStatusPassed, ReviewStatusFailed, ReviewStatusPartial, ReviewStatusError:
		return true
	}
	return false
}

// CriterionResult records the grader's verdict for a single rubric entry.
type CriterionResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Notes  string `json:"notes"`
}

// ReviewResult is the persisted outcome of one review run for a package.
//
// Invariant: Criteria is empty iff Status is "error". Otherwise Criteria
// matches the rubric in length and order.
type ReviewResult struct {
	PackageID  string
	Status     ReviewStatus
	Summary    string
	Criteria   []CriterionResult
	Error      string
	ReviewedAt time.Time
}

// ReviewPolicy holds the admin flags that drive post-review automation.
type ReviewPolicy struct {
	AutoApproveOnPass bool
	AutoRejectOnFail  bool
}

// StatusTransition is a requested change to a package's submission status,
// emitted by the automation trigger after a review completes.
type StatusTransition struct {
	PackageID string
	To        SubmissionStatus
	Reason    string
}
