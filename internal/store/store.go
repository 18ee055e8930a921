package store

import (
	"context"
	"errors"

	"github.com/get-convex/crev/internal/models"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// PackageListFilter specifies filters for listing packages.
type PackageListFilter struct {
	Status     models.SubmissionStatus
	Visibility models.Visibility
	Search     string // substring match on name
}

// Store defines the persistence interface for crev.
type Store interface {
	// Packages
	CreatePackage(ctx context.Context, p *models.Package) error
	GetPackage(ctx context.Context, id string) (*models.Package, error)
	GetPackageByName(ctx context.Context, name string) (*models.Package, error)
	ListPackages(ctx context.Context, filter PackageListFilter) ([]*models.Package, error)
	UpdatePackage(ctx context.Context, p *models.Package) error
	DeletePackage(ctx context.Context, id string) error

	// Review results (one record per package, overwritten per run)
	SaveReviewResult(ctx context.Context, result *models.ReviewResult) error
	GetReviewResult(ctx context.Context, packageID string) (*models.ReviewResult, error)

	// Provider settings (at most one active)
	SetActiveProvider(ctx context.Context, cfg *models.ProviderConfig) error
	GetActiveProvider(ctx context.Context) (*models.ProviderConfig, error)

	// Review policy
	SetReviewPolicy(ctx context.Context, policy models.ReviewPolicy) error
	GetReviewPolicy(ctx context.Context) (models.ReviewPolicy, error)

	// Notes
	CreateNote(ctx context.Context, note *models.Note) error
	ListNotes(ctx context.Context, packageID string) ([]*models.Note, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
