package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/get-convex/crev/internal/githost"
	"github.com/get-convex/crev/internal/llm"
	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/rubric"
	"github.com/get-convex/crev/internal/store"
)

// ErrReviewInProgress indicates another run already owns the package's
// review record.
var ErrReviewInProgress = errors.New("review: review already in progress for this package")

// Locator finds and fetches component source files for a repository URL.
type Locator interface {
	Locate(ctx context.Context, repoURL string) (*githost.LocateResult, error)
}

// Config holds the injected pipeline configuration.
type Config struct {
	Rubric          rubric.Rubric
	DocRefs         []string
	MaxOutputTokens int
	RunTimeout      time.Duration

	// NewCompleter builds the model client for the active provider.
	// Overridable in tests; defaults to llm.New.
	NewCompleter func(cfg *models.ProviderConfig) (llm.Completer, error)
}

// DefaultConfig returns the production pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Rubric:          rubric.Default(),
		DocRefs:         rubric.DocRefs(),
		MaxOutputTokens: llm.DefaultMaxTokens,
		RunTimeout:      5 * time.Minute,
	}
}

// Runner orchestrates a full review run: locate source, build prompt,
// call the model, derive the verdict, persist the result, and apply any
// automated status transition.
type Runner struct {
	store   store.Store
	locator Locator
	cfg     Config
	log     *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewRunner creates a runner with the given collaborators.
func NewRunner(s store.Store, loc Locator, cfg Config) *Runner {
	if cfg.Rubric == nil {
		cfg.Rubric = rubric.Default()
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = llm.DefaultMaxTokens
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.NewCompleter == nil {
		cfg.NewCompleter = llm.New
	}
	return &Runner{
		store:    s,
		locator:  loc,
		cfg:      cfg,
		log:      slog.Default().With("component", "review"),
		inFlight: make(map[string]bool),
	}
}

// acquire marks the package as having a run in flight. Guards against two
// concurrent runs clobbering the same review record.
func (r *Runner) acquire(packageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[packageID] {
		return false
	}
	r.inFlight[packageID] = true
	return true
}

func (r *Runner) release(packageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, packageID)
}

// RunAsync submits a review run as a background task correlated by
// package ID. Errors are captured into the result record or logged;
// callers treat this as fire-and-forget.
func (r *Runner) RunAsync(packageID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RunTimeout)
		defer cancel()
		if err := r.Run(ctx, packageID); err != nil {
			r.log.Error("review run failed", "package", packageID, "error", err)
		}
	}()
}

// Run executes one review run to a terminal state. The only errors it
// returns are the ones that prevent a result record from existing at all:
// an unknown package, a concurrent run, or a store write failure.
// Pipeline failures are captured into the persisted result as
// status=error instead.
func (r *Runner) Run(ctx context.Context, packageID string) error {
	if !r.acquire(packageID) {
		return fmt.Errorf("%w: %s", ErrReviewInProgress, packageID)
	}
	defer r.release(packageID)

	pkg, err := r.store.GetPackage(ctx, packageID)
	if err != nil {
		return fmt.Errorf("load package: %w", err)
	}

	// Degraded-input path: without a repository URL there is nothing to
	// fetch or grade. Record a partial verdict with synthetic notes and
	// never touch the locator or the model.
	if pkg.RepoURL == "" {
		result := r.unreviewableResult(pkg.ID,
			"Unable to review: package has no repository URL.",
			"No repository URL provided; unable to check.",
			models.ReviewStatusPartial)
		if err := r.store.SaveReviewResult(ctx, result); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		return nil
	}

	// Flip to reviewing before any network call so a crash mid-pipeline
	// is visible as a stuck "reviewing" record.
	if err := r.store.SaveReviewResult(ctx, &models.ReviewResult{
		PackageID:  pkg.ID,
		Status:     models.ReviewStatusReviewing,
		ReviewedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("mark reviewing: %w", err)
	}

	result, anyCriticalFailed := r.execute(ctx, pkg)

	if err := r.store.SaveReviewResult(ctx, result); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	r.log.Info("review complete", "package", pkg.ID, "status", result.Status)

	if result.Status != models.ReviewStatusError {
		if err := r.applyTransition(ctx, pkg, result.Status, anyCriticalFailed); err != nil {
			return err
		}
	}
	return nil
}

// execute runs the pipeline steps and maps every failure into an error
// result rather than returning it. This is the single broad catch point;
// inner components are free to fail upward.
func (r *Runner) execute(ctx context.Context, pkg *models.Package) (*models.ReviewResult, bool) {
	located, err := r.locator.Locate(ctx, pkg.RepoURL)
	if err != nil {
		return r.errorResult(pkg.ID, fmt.Errorf("locate repository: %w", err)), false
	}

	if !located.Found {
		// Not a component. A normal failing verdict, not a pipeline
		// error: the first criterion carries the finding, the rest are
		// explicitly uncheckable.
		result := r.unreviewableResult(pkg.ID,
			"No convex.config.ts found in repository.",
			"Unable to check: no component definition found.",
			models.ReviewStatusFailed)
		if len(result.Criteria) > 0 {
			result.Criteria[0].Notes = "No convex.config.ts found in repository."
		}
		// Every criterion is marked failed, so a critical failure exists
		// whenever the rubric has any critical criterion.
		var anyCritical bool
		for _, c := range r.cfg.Rubric {
			if c.Critical {
				anyCritical = true
				break
			}
		}
		return result, anyCritical
	}

	provider, err := r.store.GetActiveProvider(ctx)
	if err != nil {
		return r.errorResult(pkg.ID, fmt.Errorf("load provider config: %w", err)), false
	}

	completer, err := r.cfg.NewCompleter(provider)
	if err != nil {
		return r.errorResult(pkg.ID, err), false
	}

	prompt := BuildPrompt(r.cfg.Rubric, pkg, located.Files, r.cfg.DocRefs)

	text, err := completer.Complete(ctx, prompt, r.cfg.MaxOutputTokens)
	if err != nil {
		return r.errorResult(pkg.ID, fmt.Errorf("model completion: %w", err)), false
	}

	parsed, err := ParseVerdict(text)
	if err != nil {
		return r.errorResult(pkg.ID, err), false
	}

	criteria, err := AlignCriteria(r.cfg.Rubric, parsed.Criteria)
	if err != nil {
		return r.errorResult(pkg.ID, err), false
	}

	status, anyCriticalFailed := Derive(r.cfg.Rubric, criteria)

	return &models.ReviewResult{
		PackageID:  pkg.ID,
		Status:     status,
		Summary:    ComposeSummary(parsed.Summary, parsed.Suggestions),
		Criteria:   criteria,
		ReviewedAt: time.Now().UTC(),
	}, anyCriticalFailed
}

// applyTransition consults the stored policy and applies the automated
// approve/reject transition when one is warranted.
func (r *Runner) applyTransition(ctx context.Context, pkg *models.Package, status models.ReviewStatus, anyCriticalFailed bool) error {
	policy, err := r.store.GetReviewPolicy(ctx)
	if err != nil {
		return fmt.Errorf("load review policy: %w", err)
	}

	tr := MaybeTransition(pkg.ID, status, policy, anyCriticalFailed)
	if tr == nil {
		return nil
	}

	pkg.Status = tr.To
	if err := r.store.UpdatePackage(ctx, pkg); err != nil {
		return fmt.Errorf("apply status transition: %w", err)
	}
	r.log.Info("automated status transition", "package", pkg.ID, "to", tr.To, "reason", tr.Reason)
	return nil
}

// errorResult builds the terminal error record: empty criteria and the
// failure message, per the result invariants.
func (r *Runner) errorResult(packageID string, err error) *models.ReviewResult {
	return &models.ReviewResult{
		PackageID:  packageID,
		Status:     models.ReviewStatusError,
		Summary:    "Review aborted before producing criteria results.",
		Criteria:   []models.CriterionResult{},
		Error:      err.Error(),
		ReviewedAt: time.Now().UTC(),
	}
}

// unreviewableResult builds a full-length result where every criterion
// carries the same synthetic note.
func (r *Runner) unreviewableResult(packageID, summary, note string, status models.ReviewStatus) *models.ReviewResult {
	criteria := make([]models.CriterionResult, len(r.cfg.Rubric))
	for i, c := range r.cfg.Rubric {
		criteria[i] = models.CriterionResult{Name: c.Name, Passed: false, Notes: note}
	}
	return &models.ReviewResult{
		PackageID:  packageID,
		Status:     status,
		Summary:    summary,
		Criteria:   criteria,
		ReviewedAt: time.Now().UTC(),
	}
}
