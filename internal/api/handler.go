// Package api exposes the saved-objects HTTP surface. Every request gets its
// own policy chain built from the caller identity resolved by the middleware
// stack.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dashvault/internal/accesspolicy"
	"dashvault/internal/objects"
	"dashvault/internal/policy"
	"dashvault/pkg/middleware"
)

type Handler struct {
	log      *zap.SugaredLogger
	pipeline *policy.Pipeline
	gate     *accesspolicy.Gate
}

func NewHandler(log *zap.SugaredLogger, pipeline *policy.Pipeline, gate *accesspolicy.Gate) *Handler {
	return &Handler{log: log, pipeline: pipeline, gate: gate}
}

// Routes mounts the saved-objects API.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/saved_objects", func(r chi.Router) {
		r.Post("/_bulk_create", h.bulkCreate)
		r.Post("/_bulk_update", h.bulkUpdate)
		r.Post("/_bulk_get", h.bulkGet)
		r.Post("/_check_conflicts", h.checkConflicts)
		r.Get("/_find", h.find)
		r.Post("/{type}", h.create)
		r.Post("/{type}/{id}", h.create)
		r.Get("/{type}/{id}", h.get)
		r.Put("/{type}/{id}", h.update)
		r.Delete("/{type}/{id}", h.del)
	})
}

// storeFor assembles the policy chain for this request's caller.
func (h *Handler) storeFor(r *http.Request) objects.Store {
	p := middleware.PrincipalFrom(r.Context())
	return h.pipeline.ForCaller(policy.CallerContext{
		IsPrivilegedAdmin: p.IsPrivilegedAdmin,
		IsResourceAdmin:   p.IsResourceAdmin,
		ActiveWorkspaceID: middleware.WorkspaceFrom(r.Context()),
	})
}

// allowed consults the optional rego gate; it writes the 403 itself when the
// request is denied.
func (h *Handler) allowed(w http.ResponseWriter, r *http.Request, operation string, types ...string) bool {
	p := middleware.PrincipalFrom(r.Context())
	dec := h.gate.Evaluate(r.Context(), accesspolicy.Input{
		Subject:     p.Subject,
		WorkspaceID: middleware.WorkspaceFrom(r.Context()),
		Operation:   operation,
		Types:       types,
	})
	if !dec.Allowed {
		h.log.Infow("request denied by access policy", "subject", p.Subject, "operation", operation, "reasons", dec.Reasons)
		writeError(w, objects.NewForbidden(policy.MessageNoPermission))
		return false
	}
	return true
}

type createRequest struct {
	Attributes map[string]any      `json:"attributes"`
	References []objects.Reference `json:"references,omitempty"`
	Workspaces []string            `json:"workspaces,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	if !h.allowed(w, r, "create", typ) {
		return
	}
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, objects.NewBadRequest("Invalid request body: %v", err))
		return
	}
	obj, err := h.storeFor(r).Create(r.Context(), typ, body.Attributes, objects.CreateOptions{
		ID:         chi.URLParam(r, "id"),
		Overwrite:  r.URL.Query().Get("overwrite") == "true",
		Workspaces: body.Workspaces,
		References: body.References,
	})
	observe(w, "create", err)
	if err != nil {
		return
	}
	writeJSON(w, obj, http.StatusOK)
}

type bulkCreateRequest struct {
	Objects    []objects.BulkCreateItem `json:"objects"`
	Workspaces []string                 `json:"workspaces,omitempty"`
}

func (h *Handler) bulkCreate(w http.ResponseWriter, r *http.Request) {
	var body bulkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, objects.NewBadRequest("Invalid request body: %v", err))
		return
	}
	if !h.allowed(w, r, "bulk_create", itemTypes(body.Objects)...) {
		return
	}
	resp, err := h.storeFor(r).BulkCreate(r.Context(), body.Objects, objects.BulkCreateOptions{
		Overwrite:  r.URL.Query().Get("overwrite") == "true",
		Workspaces: body.Workspaces,
	})
	observe(w, "bulk_create", err)
	if err != nil {
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

type updateRequest struct {
	Attributes map[string]any `json:"attributes"`
	Workspaces []string       `json:"workspaces,omitempty"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	if !h.allowed(w, r, "update", typ) {
		return
	}
	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, objects.NewBadRequest("Invalid request body: %v", err))
		return
	}
	obj, err := h.storeFor(r).Update(r.Context(), typ, chi.URLParam(r, "id"), body.Attributes, objects.UpdateOptions{
		Workspaces: body.Workspaces,
	})
	observe(w, "update", err)
	if err != nil {
		return
	}
	writeJSON(w, obj, http.StatusOK)
}

type bulkUpdateRequest struct {
	Objects []objects.BulkUpdateItem `json:"objects"`
}

func (h *Handler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	var body bulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, objects.NewBadRequest("Invalid request body: %v", err))
		return
	}
	types := make([]string, 0, len(body.Objects))
	for _, o := range body.Objects {
		types = append(types, o.Type)
	}
	if !h.allowed(w, r, "bulk_update", types...) {
		return
	}
	resp, err := h.storeFor(r).BulkUpdate(r.Context(), body.Objects, objects.BulkUpdateOptions{})
	observe(w, "bulk_update", err)
	if err != nil {
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

func (h *Handler) del(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	if !h.allowed(w, r, "delete", typ) {
		return
	}
	err := h.storeFor(r).Delete(r.Context(), typ, chi.URLParam(r, "id"), objects.DeleteOptions{
		Force: r.URL.Query().Get("force") == "true",
	})
	observe(w, "delete", err)
	if err != nil {
		return
	}
	writeJSON(w, map[string]any{"success": true}, http.StatusOK)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	if !h.allowed(w, r, "get", typ) {
		return
	}
	obj, err := h.storeFor(r).Get(r.Context(), typ, chi.URLParam(r, "id"))
	observe(w, "get", err)
	if err != nil {
		return
	}
	writeJSON(w, obj, http.StatusOK)
}

type bulkGetRequest struct {
	Objects []objects.Reference `json:"objects"`
}

func (h *Handler) bulkGet(w http.ResponseWriter, r *http.Request) {
	var body bulkGetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, objects.NewBadRequest("Invalid request body: %v", err))
		return
	}
	if !h.allowed(w, r, "bulk_get", refTypes(body.Objects)...) {
		return
	}
	resp, err := h.storeFor(r).BulkGet(r.Context(), body.Objects)
	observe(w, "bulk_get", err)
	if err != nil {
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := objects.FindOptions{
		Type:   q.Get("type"),
		Search: q.Get("search"),
		Filter: q.Get("filter"),
	}
	if ws := q.Get("workspaces"); ws != "" {
		opts.Workspaces = strings.Split(ws, ",")
	}
	opts.Page, _ = strconv.Atoi(q.Get("page"))
	opts.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if !h.allowed(w, r, "find", opts.Type) {
		return
	}
	resp, err := h.storeFor(r).Find(r.Context(), opts)
	observe(w, "find", err)
	if err != nil {
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

type checkConflictsRequest struct {
	Objects    []objects.Reference `json:"objects"`
	Workspaces []string            `json:"workspaces,omitempty"`
}

func (h *Handler) checkConflicts(w http.ResponseWriter, r *http.Request) {
	var body checkConflictsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, objects.NewBadRequest("Invalid request body: %v", err))
		return
	}
	if !h.allowed(w, r, "check_conflicts", refTypes(body.Objects)...) {
		return
	}
	resp, err := h.storeFor(r).CheckConflicts(r.Context(), body.Objects, objects.CheckConflictsOptions{
		Workspaces: body.Workspaces,
	})
	observe(w, "check_conflicts", err)
	if err != nil {
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

func itemTypes(items []objects.BulkCreateItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Type)
	}
	return out
}

func refTypes(refs []objects.Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Type)
	}
	return out
}

// observe records the metric and, on error, writes the HTTP error response.
func observe(w http.ResponseWriter, operation string, err error) {
	if err == nil {
		requestsTotal.WithLabelValues(operation, "ok").Inc()
		return
	}
	se := objects.AsError(err)
	requestsTotal.WithLabelValues(operation, strconv.Itoa(se.StatusCode)).Inc()
	writeJSON(w, se, se.StatusCode)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	se := objects.AsError(err)
	writeJSON(w, se, se.StatusCode)
}
