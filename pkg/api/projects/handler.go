// Package projects exposes the project document lifecycle over HTTP:
// CRUD, dot-path patching, and the analyze/report endpoints that run
// the engine against a stored document.
package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"lbo_workbench/pkg/core/binder"
	"lbo_workbench/pkg/core/engine"
	"lbo_workbench/pkg/core/report"
	"lbo_workbench/pkg/core/store"
)

// Handler serves the /api/projects routes.
type Handler struct {
	repo        store.ProjectRepository
	defaultCase string
}

// NewHandler creates a handler on top of a project repository.
func NewHandler(repo store.ProjectRepository, defaultCase string) *Handler {
	if defaultCase == "" {
		defaultCase = binder.DefaultCaseID
	}
	return &Handler{repo: repo, defaultCase: defaultCase}
}

// SetRepository allows injecting a custom repository (e.g., for testing).
func (h *Handler) SetRepository(repo store.ProjectRepository) {
	h.repo = repo
}

type createRequest struct {
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
	Currency    string `json:"currency"`
	Unit        string `json:"unit"`
}

type patchUpdate struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

type patchRequest struct {
	Path    string        `json:"path"`
	Value   interface{}   `json:"value"`
	Updates []patchUpdate `json:"updates"`
}

// HandleProjects serves the collection routes: POST creates, GET lists.
func (h *Handler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	if applyCORS(w, r) {
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.createProject(w, r)
	case http.MethodGet:
		h.listProjects(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleProject serves the item routes:
//
//	GET    /api/projects/{id}
//	PATCH  /api/projects/{id}
//	DELETE /api/projects/{id}
//	POST   /api/projects/{id}/analyze?case_id=...
//	POST   /api/projects/{id}/analyze-all
//	GET    /api/projects/{id}/report?case_id=...
func (h *Handler) HandleProject(w http.ResponseWriter, r *http.Request) {
	if applyCORS(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id := parts[0]
	if id == "" {
		http.Error(w, "missing project id", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getProject(w, r, id)
	case action == "" && r.Method == http.MethodPatch:
		h.patchProject(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.deleteProject(w, r, id)
	case action == "analyze" && r.Method == http.MethodPost:
		h.analyzeProject(w, r, id)
	case action == "analyze-all" && r.Method == http.MethodPost:
		h.analyzeAllCases(w, r, id)
	case action == "report" && r.Method == http.MethodGet:
		h.reportProject(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "project name is required", http.StatusBadRequest)
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if req.Unit == "" {
		req.Unit = "millions"
	}

	userID := requestUser(r)
	now := time.Now().UTC()
	p := &store.Project{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
		Data:      NewProjectData(req.Name, userID, req.CompanyName, req.Currency, req.Unit),
	}

	if err := h.repo.Create(r.Context(), p); err != nil {
		fmt.Printf("[PROJECTS] Create failed: %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Printf("[PROJECTS] Created project %s (%s)\n", p.ID, p.Name)
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.ListByUser(r.Context(), requestUser(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []*store.ProjectSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// patchProject applies one or more dot-path updates to the document.
// The engine never sees a half-patched tree: the binder is re-invoked
// only on later analyze calls, against the stored document.
func (h *Handler) patchProject(w http.ResponseWriter, r *http.Request, id string) {
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updates := req.Updates
	if len(updates) == 0 && req.Path != "" {
		updates = []patchUpdate{{Path: req.Path, Value: req.Value}}
	}
	if len(updates) == 0 {
		http.Error(w, "no updates supplied", http.StatusBadRequest)
		return
	}

	p, err := h.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Apply to a copy so a failing update leaves the stored document
	// untouched.
	data, _ := binder.Normalize(p.Data).(binder.Document)
	for _, u := range updates {
		if err := binder.SetPath(data, u.Path, u.Value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	p.Data = data
	touchMeta(p.Data)
	p.UpdatedAt = time.Now().UTC()

	if err := h.repo.Update(r.Context(), p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Printf("[PROJECTS] Patched project %s (%d updates)\n", id, len(updates))
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.repo.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	fmt.Printf("[PROJECTS] Deleted project %s\n", id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) analyzeProject(w http.ResponseWriter, r *http.Request, id string) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		caseID = h.defaultCase
	}

	result, err := h.runCase(r.Context(), id, caseID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) analyzeAllCases(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	fmt.Printf("[ANALYZE] Running all cases for project %s\n", id)
	writeJSON(w, http.StatusOK, engine.AnalyzeAllCases(p.Data))
}

func (h *Handler) reportProject(w http.ResponseWriter, r *http.Request, id string) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		caseID = h.defaultCase
	}

	result, err := h.runCase(r.Context(), id, caseID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	html, err := report.RenderHTML(report.BuildMarkdown(result))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

func (h *Handler) runCase(ctx context.Context, id, caseID string) (*engine.AnalysisResult, error) {
	p, err := h.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[ANALYZE] Project %s case %q\n", id, caseID)
	result := engine.Analyze(p.Data, caseID)
	if !result.Success {
		fmt.Printf("[ANALYZE] Case %q failed: %s\n", caseID, result.Error)
	}
	return result, nil
}

// requestUser resolves the acting user. Authentication is handled
// upstream of this service; the header is trusted as-is.
func requestUser(r *http.Request) string {
	if user := r.Header.Get("X-User-ID"); user != "" {
		return user
	}
	return "local"
}

func touchMeta(doc binder.Document) {
	if meta, ok := doc["meta"].(binder.Document); ok {
		meta["last_modified"] = time.Now().UTC().Format(time.RFC3339)
	}
}

func applyCORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
