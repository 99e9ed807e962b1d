package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"incident-cloud/internal/auth"
	incidents "incident-cloud/internal/incidents/domain"
	rosterapp "incident-cloud/internal/roster/application"
	roster "incident-cloud/internal/roster/domain"
)

// Handler provides roster HTTP endpoints under
// /api/v1/incidents/{id}/responders.
type Handler struct {
	service *rosterapp.Service
	logger  *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *rosterapp.Service, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("roster handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}, nil
}

// ServeHTTP routes responder operations. Members act on themselves;
// only admin-audience roles may act on another member.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/incidents/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "responders" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	incidentID := parts[0]

	switch {
	case len(parts) == 2:
		switch r.Method {
		case http.MethodGet:
			h.handleRoster(w, r, incidentID)
		case http.MethodPost:
			h.handleJoin(w, r, incidentID)
		case http.MethodDelete:
			h.handleLeave(w, r, incidentID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 3 && parts[2] == "arrive":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleArrive(w, r, incidentID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type memberRequest struct {
	PersonnelID string `json:"personnel_id,omitempty"`
}

// resolveMember decides whom the operation targets: the caller by
// default, or a named member when the caller holds roster management.
func resolveMember(r *http.Request, body io.Reader) (string, error) {
	subject := auth.SubjectFromContext(r.Context())
	var req memberRequest
	if body != nil {
		// An empty body targets the caller.
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", errors.New("invalid request body")
		}
	}
	if req.PersonnelID == "" || req.PersonnelID == subject {
		return subject, nil
	}
	if !auth.RoleFromContext(r.Context()).Can(auth.CapabilityManageRoster) {
		return "", errors.New("cannot act on another member")
	}
	return req.PersonnelID, nil
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request, incidentID string) {
	personnelID, err := resolveMember(r, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	result, err := h.service.Join(r.Context(), incidentID, personnelID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request, incidentID string) {
	personnelID, err := resolveMember(r, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if err := h.service.Leave(r.Context(), incidentID, personnelID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleArrive(w http.ResponseWriter, r *http.Request, incidentID string) {
	personnelID, err := resolveMember(r, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if err := h.service.Arrive(r.Context(), incidentID, personnelID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRoster(w http.ResponseWriter, r *http.Request, incidentID string) {
	assignments, err := h.service.Roster(r.Context(), incidentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(assignments)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var validation *incidents.ValidationError
	switch {
	case errors.Is(err, incidents.ErrNotFound) || errors.Is(err, roster.ErrNotAssigned):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, roster.ErrAlreadyAssigned):
		http.Error(w, "already assigned", http.StatusConflict)
	case errors.Is(err, incidents.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("roster request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
