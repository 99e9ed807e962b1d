package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	ackapp "incident-cloud/internal/acks/application"
	"incident-cloud/internal/auth"
	incidents "incident-cloud/internal/incidents/domain"
)

// Handler provides acknowledgment HTTP endpoints.
type Handler struct {
	service *ackapp.Service
	logger  *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *ackapp.Service, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("acks handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}, nil
}

// ServeHTTP routes acknowledgment operations:
// POST /api/v1/incidents/{id}/acknowledge, GET .../acknowledgments,
// and GET /api/v1/acknowledgments?ids=a,b for the bulk summary.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/acknowledgments" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleBulk(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/incidents/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	incidentID := parts[0]

	switch parts[1] {
	case "acknowledge":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAcknowledge(w, r, incidentID)
	case "acknowledgments":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, incidentID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request, incidentID string) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ack, err := h.service.Acknowledge(r.Context(), incidentID, subject)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ack)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, incidentID string) {
	summary, err := h.service.Get(r.Context(), incidentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}
	ids := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	summaries, err := h.service.GetBulk(r.Context(), ids)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summaries)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var validation *incidents.ValidationError
	switch {
	case errors.Is(err, incidents.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("acknowledgment request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
