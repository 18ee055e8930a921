package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/review"
	"github.com/get-convex/crev/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store  store.Store
	runner *review.Runner
}

// NewServer creates a new API server. The runner may be nil, in which
// case the review endpoints return 503.
func NewServer(s store.Store, runner *review.Runner) *Server {
	return &Server{
		store:  s,
		runner: runner,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/packages", s.listPackages)
	mux.HandleFunc("POST /api/v1/packages", s.createPackage)
	mux.HandleFunc("GET /api/v1/packages/{id}", s.getPackage)
	mux.HandleFunc("PUT /api/v1/packages/{id}", s.updatePackage)
	mux.HandleFunc("DELETE /api/v1/packages/{id}", s.deletePackage)

	mux.HandleFunc("POST /api/v1/packages/{id}/review", s.startReview)
	mux.HandleFunc("GET /api/v1/packages/{id}/review", s.getReviewResult)
	mux.HandleFunc("POST /api/v1/packages/{id}/status", s.setPackageStatus)

	mux.HandleFunc("GET /api/v1/packages/{id}/notes", s.listNotes)
	mux.HandleFunc("POST /api/v1/packages/{id}/notes", s.createNote)

	mux.HandleFunc("GET /api/v1/settings/provider", s.getProvider)
	mux.HandleFunc("PUT /api/v1/settings/provider", s.setProvider)
	mux.HandleFunc("GET /api/v1/settings/policy", s.getPolicy)
	mux.HandleFunc("PUT /api/v1/settings/policy", s.setPolicy)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// patchString applies a string value from a JSON patch map to the target if the key is present and non-empty.
func patchString(patch map[string]any, key string, target *string) {
	if v, ok := patch[key]; ok {
		if str, ok := v.(string); ok && str != "" {
			*target = str
		}
	}
}

// --- Packages ---

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	filter := store.PackageListFilter{
		Status:     models.SubmissionStatus(r.URL.Query().Get("status")),
		Visibility: models.Visibility(r.URL.Query().Get("visibility")),
		Search:     r.URL.Query().Get("search"),
	}
	packages, err := s.store.ListPackages(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, packages)
}

func (s *Server) createPackage(w http.ResponseWriter, r *http.Request) {
	var p models.Package
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if p.Status == "" {
		p.Status = models.SubmissionStatusPending
	}
	if p.Visibility == "" {
		p.Visibility = models.VisibilityPublic
	}
	if err := s.store.CreatePackage(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPackage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pkg, err := s.store.GetPackage(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) updatePackage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetPackage(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Selectively merge only keys present in the patch with non-empty values.
	// Empty strings are treated as "not provided" to avoid wiping existing data.
	patchString(patch, "Name", &existing.Name)
	patchString(patch, "Version", &existing.Version)
	patchString(patch, "Description", &existing.Description)
	patchString(patch, "RepoURL", &existing.RepoURL)
	patchString(patch, "NpmPackage", &existing.NpmPackage)
	patchString(patch, "Author", &existing.Author)

	if v, ok := patch["Visibility"].(string); ok && v != "" {
		existing.Visibility = models.Visibility(v)
	}

	if err := s.store.UpdatePackage(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) deletePackage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeletePackage(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setPackageStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	target := models.SubmissionStatus(req.Status)
	switch target {
	case models.SubmissionStatusPending, models.SubmissionStatusApproved, models.SubmissionStatusRejected:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status: %s", req.Status))
		return
	}

	pkg, err := s.store.GetPackage(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pkg.Status = target
	if err := s.store.UpdatePackage(r.Context(), pkg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// --- Reviews ---

// StartReviewResponse is the JSON response for POST /api/v1/packages/{id}/review.
type StartReviewResponse struct {
	PackageID string `json:"package_id"`
	Status    string `json:"status"`
}

func (s *Server) startReview(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "review runner not configured")
		return
	}

	id := r.PathValue("id")
	if _, err := s.store.GetPackage(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.runner.RunAsync(id)
	writeJSON(w, http.StatusAccepted, StartReviewResponse{
		PackageID: id,
		Status:    string(models.ReviewStatusReviewing),
	})
}

func (s *Server) getReviewResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := s.store.GetReviewResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Notes ---

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	notes, err := s.store.ListNotes(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var note models.Note
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if note.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}
	note.PackageID = id
	if err := s.store.CreateNote(r.Context(), &note); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// --- Settings ---

func (s *Server) getProvider(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetActiveProvider(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "no active model provider")
		return
	}
	// Never echo credentials back.
	cfg.APIKey = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) setProvider(w http.ResponseWriter, r *http.Request) {
	var cfg models.ProviderConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch cfg.Kind {
	case models.ProviderAnthropic, models.ProviderOpenAI, models.ProviderGemini:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown provider: %s", cfg.Kind))
		return
	}
	if err := s.store.SetActiveProvider(r.Context(), &cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cfg.APIKey = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.store.GetReviewPolicy(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (s *Server) setPolicy(w http.ResponseWriter, r *http.Request) {
	var policy models.ReviewPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.store.SetReviewPolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, policy)
}
