package models

import "time"

// Note is an admin comment attached to a package submission.
type Note struct {
	ID        string
	PackageID string
	Author    string
	Body      string
	CreatedAt time.Time
}
