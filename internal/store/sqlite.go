package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/get-convex/crev/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Packages ---

func (s *SQLiteStore) CreatePackage(ctx context.Context, p *models.Package) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	if p.Visibility == "" {
		p.Visibility = models.VisibilityHidden
	}
	if p.Status == "" {
		p.Status = models.SubmissionStatusPending
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO packages
		(id, name, version, description, repo_url, npm_package, author, visibility, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Version, p.Description, p.RepoURL, p.NpmPackage, p.Author,
		string(p.Visibility), string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanPackage(row interface{ Scan(...any) error }) (*models.Package, error) {
	p := &models.Package{}
	var visibility, status string
	err := row.Scan(&p.ID, &p.Name, &p.Version, &p.Description, &p.RepoURL,
		&p.NpmPackage, &p.Author, &visibility, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Visibility = models.Visibility(visibility)
	p.Status = models.SubmissionStatus(status)
	return p, nil
}

const packageColumns = "id, name, version, description, repo_url, npm_package, author, visibility, status, created_at, updated_at"

func (s *SQLiteStore) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+packageColumns+" FROM packages WHERE id = ?", id)
	p, err := s.scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: package %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetPackageByName(ctx context.Context, name string) (*models.Package, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+packageColumns+" FROM packages WHERE name = ?", name)
	p, err := s.scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: package %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get package by name: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListPackages(ctx context.Context, filter PackageListFilter) ([]*models.Package, error) {
	query := "SELECT " + packageColumns + " FROM packages"
	var conds []string
	var args []any

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Visibility != "" {
		conds = append(conds, "visibility = ?")
		args = append(args, string(filter.Visibility))
	}
	if filter.Search != "" {
		conds = append(conds, "name LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var packages []*models.Package
	for rows.Next() {
		p, err := s.scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

func (s *SQLiteStore) UpdatePackage(ctx context.Context, p *models.Package) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE packages SET
		name = ?, version = ?, description = ?, repo_url = ?, npm_package = ?,
		author = ?, visibility = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Version, p.Description, p.RepoURL, p.NpmPackage, p.Author,
		string(p.Visibility), string(p.Status), p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: package %s", ErrNotFound, p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeletePackage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM packages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: package %s", ErrNotFound, id)
	}
	return nil
}

// --- Review results ---

func (s *SQLiteStore) SaveReviewResult(ctx context.Context, result *models.ReviewResult) error {
	if result.ReviewedAt.IsZero() {
		result.ReviewedAt = time.Now().UTC()
	}

	criteria, err := json.Marshal(result.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO review_results
		(package_id, status, summary, criteria, error, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_id) DO UPDATE SET
			status = excluded.status,
			summary = excluded.summary,
			criteria = excluded.criteria,
			error = excluded.error,
			reviewed_at = excluded.reviewed_at`,
		result.PackageID, string(result.Status), result.Summary, string(criteria),
		result.Error, result.ReviewedAt)
	if err != nil {
		return fmt.Errorf("save review result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReviewResult(ctx context.Context, packageID string) (*models.ReviewResult, error) {
	r := &models.ReviewResult{PackageID: packageID}
	var status, criteria string
	err := s.db.QueryRowContext(ctx, `SELECT status, summary, criteria, error, reviewed_at
		FROM review_results WHERE package_id = ?`, packageID).
		Scan(&status, &r.Summary, &criteria, &r.Error, &r.ReviewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: review result for %s", ErrNotFound, packageID)
	}
	if err != nil {
		return nil, fmt.Errorf("get review result: %w", err)
	}

	r.Status = models.ReviewStatus(status)
	if err := json.Unmarshal([]byte(criteria), &r.Criteria); err != nil {
		return nil, fmt.Errorf("unmarshal criteria: %w", err)
	}
	return r, nil
}

// --- Provider settings ---

// SetActiveProvider upserts the provider row and, when cfg.Active, clears
// the active flag on every other provider so at most one stays active.
func (s *SQLiteStore) SetActiveProvider(ctx context.Context, cfg *models.ProviderConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if cfg.Active {
		if _, err := tx.ExecContext(ctx, "UPDATE provider_configs SET active = 0"); err != nil {
			return fmt.Errorf("deactivate providers: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO provider_configs (kind, api_key, model, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			api_key = excluded.api_key,
			model = excluded.model,
			active = excluded.active`,
		string(cfg.Kind), cfg.APIKey, cfg.Model, boolToInt(cfg.Active))
	if err != nil {
		return fmt.Errorf("set provider: %w", err)
	}

	return tx.Commit()
}

// GetActiveProvider returns the single active provider, or (nil, nil)
// when none is configured.
func (s *SQLiteStore) GetActiveProvider(ctx context.Context) (*models.ProviderConfig, error) {
	cfg := &models.ProviderConfig{Active: true}
	var kind string
	var active int
	err := s.db.QueryRowContext(ctx,
		"SELECT kind, api_key, model, active FROM provider_configs WHERE active = 1").
		Scan(&kind, &cfg.APIKey, &cfg.Model, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active provider: %w", err)
	}
	cfg.Kind = models.ProviderKind(kind)
	return cfg, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Review policy ---

const policyKey = "review_policy"

func (s *SQLiteStore) SetReviewPolicy(ctx context.Context, policy models.ReviewPolicy) error {
	value, err := json.Marshal(map[string]bool{
		"auto_approve_on_pass": policy.AutoApproveOnPass,
		"auto_reject_on_fail":  policy.AutoRejectOnFail,
	})
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		policyKey, string(value))
	if err != nil {
		return fmt.Errorf("set review policy: %w", err)
	}
	return nil
}

// GetReviewPolicy returns the stored policy, defaulting to all-off when
// none has been saved.
func (s *SQLiteStore) GetReviewPolicy(ctx context.Context) (models.ReviewPolicy, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", policyKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReviewPolicy{}, nil
	}
	if err != nil {
		return models.ReviewPolicy{}, fmt.Errorf("get review policy: %w", err)
	}

	var raw map[string]bool
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return models.ReviewPolicy{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	return models.ReviewPolicy{
		AutoApproveOnPass: raw["auto_approve_on_pass"],
		AutoRejectOnFail:  raw["auto_reject_on_fail"],
	}, nil
}

// --- Notes ---

func (s *SQLiteStore) CreateNote(ctx context.Context, note *models.Note) error {
	if note.ID == "" {
		note.ID = newULID()
	}
	note.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `INSERT INTO notes (id, package_id, author, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		note.ID, note.PackageID, note.Author, note.Body, note.CreatedAt)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNotes(ctx context.Context, packageID string) ([]*models.Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, package_id, author, body, created_at
		FROM notes WHERE package_id = ? ORDER BY created_at`, packageID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n := &models.Note{}
		if err := rows.Scan(&n.ID, &n.PackageID, &n.Author, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
