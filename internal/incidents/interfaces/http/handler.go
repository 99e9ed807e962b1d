package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	acks "incident-cloud/internal/acks/domain"
	"incident-cloud/internal/auth"
	incidentapp "incident-cloud/internal/incidents/application"
	incidents "incident-cloud/internal/incidents/domain"
	"incident-cloud/internal/reports"
	roster "incident-cloud/internal/roster/domain"
)

// RosterReader lists the assignments for an incident export.
type RosterReader interface {
	ListByIncident(ctx context.Context, incidentID string) ([]roster.Assignment, error)
}

// AckSummarizer provides the acknowledgment summary for an export.
type AckSummarizer interface {
	Get(ctx context.Context, incidentID string) (*acks.Summary, error)
}

// Handler provides incident HTTP endpoints.
type Handler struct {
	service *incidentapp.Service
	roster  RosterReader
	acks    AckSummarizer
	logger  *zap.Logger
}

// NewHandler constructs a handler. Roster and acks readers may be nil;
// exports then omit the corresponding sections.
func NewHandler(service *incidentapp.Service, roster RosterReader, acks AckSummarizer, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("incidents handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, roster: roster, acks: acks, logger: logger}, nil
}

// ServeHTTP handles /api/v1/incidents/{id} and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/incidents/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, id)
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTransition(w, r, id)
	case len(parts) == 2 && (parts[1] == "export.pdf" || parts[1] == "export.xlsx"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r, id, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	incident, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(incident)
}

type transitionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, id string) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	target, ok := incidents.ValidStatus(req.Status)
	if !ok {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	incident, err := h.service.Transition(r.Context(), id, target, req.Notes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(incident)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	if !auth.RoleFromContext(r.Context()).Can(auth.CapabilityExportReports) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	incident, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var assignments []roster.Assignment
	if h.roster != nil {
		assignments, err = h.roster.ListByIncident(r.Context(), id)
		if err != nil {
			h.internalError(w, "export roster read", err)
			return
		}
	}
	var summary *acks.Summary
	if h.acks != nil {
		summary, err = h.acks.Get(r.Context(), id)
		if err != nil {
			h.internalError(w, "export ack summary", err)
			return
		}
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "export.pdf":
		data, err = reports.BuildIncidentPDF(incident, assignments, summary)
		contentType = "application/pdf"
	case "export.xlsx":
		data, err = reports.BuildIncidentXLSX(incident, assignments, summary)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		h.internalError(w, "export build", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// respondError maps domain failures to status codes. Unrecognized
// errors stay server-side; the caller only sees a generic message.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var invalid *incidents.InvalidTransitionError
	var validation *incidents.ValidationError
	switch {
	case errors.Is(err, incidents.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, incidents.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	case errors.As(err, &invalid):
		http.Error(w, invalid.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	default:
		h.internalError(w, "incident request", err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}
