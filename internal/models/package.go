package models

import "time"

// SubmissionStatus represents where a package sits in the directory's
// approval workflow.
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// Visibility controls whether a package appears in public listings.
type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityHidden Visibility = "hidden"
)

// Package represents a component submitted to the directory.
type Package struct {
	ID          string
	Name        string
	Version     string
	Description string
	RepoURL     string
	NpmPackage  string
	Author      string
	Visibility  Visibility
	Status      SubmissionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
