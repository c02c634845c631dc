// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/service"
)

// EventService is the event catalogue the handlers read and write.
type EventService interface {
	CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error)
}

// RegistrationService is the registration orchestrator.
type RegistrationService interface {
	Register(ctx context.Context, eventID, studentID uuid.UUID) (*model.Registration, error)
	Cancel(ctx context.Context, eventID, studentID uuid.UUID) error
	ListActive(ctx context.Context, eventID uuid.UUID) ([]model.RegistrationView, error)
	CountActive(ctx context.Context, eventID uuid.UUID) (int, error)
	ListForStudent(ctx context.Context, studentID uuid.UUID) ([]model.StudentRegistration, error)
}

// EventHandler holds all HTTP handlers for the event registration API.
type EventHandler struct {
	events        EventService
	registrations RegistrationService
	logger        *zap.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events EventService, registrations RegistrationService, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{events: events, registrations: registrations, logger: logger}
}

// Routes mounts the API on r.
func (h *EventHandler) Routes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Post("/register", h.Register)
			r.Post("/cancel", h.Cancel)
			r.Get("/registrations", h.ListRegistrations)
			r.Get("/registrations/count", h.CountRegistrations)
		})
	})
	r.Get("/students/{id}/registrations", h.ListStudentRegistrations)
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pathID parses the {id} URL parameter, writing a 400 when it is not a UUID.
func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, what+" id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func studentFromBody(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.StudentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "student_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps the service error taxonomy onto status codes.
func (h *EventHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var pe *repository.PreconditionError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.As(err, &pe):
		writeError(w, http.StatusUnprocessableEntity, pe.Reason)
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "registration changed concurrently")
	case repository.IsLockTimeout(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "event is busy, retry shortly")
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "event")
	if !ok {
		return
	}

	event, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// Register handles POST /events/{id}/register
// Registering an already registered student returns the existing registration.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "event")
	if !ok {
		return
	}
	studentID, ok := studentFromBody(w, r)
	if !ok {
		return
	}

	reg, err := h.registrations.Register(r.Context(), eventID, studentID)
	if err != nil {
		h.writeServiceError(w, r, err, "event or student not found")
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// Cancel handles POST /events/{id}/cancel
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "event")
	if !ok {
		return
	}
	studentID, ok := studentFromBody(w, r)
	if !ok {
		return
	}

	if err := h.registrations.Cancel(r.Context(), eventID, studentID); err != nil {
		h.writeServiceError(w, r, err, "no active registration")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "event")
	if !ok {
		return
	}

	regs, err := h.registrations.ListActive(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	if regs == nil {
		regs = []model.RegistrationView{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// CountRegistrations handles GET /events/{id}/registrations/count
func (h *EventHandler) CountRegistrations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "event")
	if !ok {
		return
	}

	n, err := h.registrations.CountActive(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, model.CountResponse{EventID: id, Count: n})
}

// ListStudentRegistrations handles GET /students/{id}/registrations
func (h *EventHandler) ListStudentRegistrations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "student")
	if !ok {
		return
	}

	regs, err := h.registrations.ListForStudent(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "student not found")
		return
	}

	if regs == nil {
		regs = []model.StudentRegistration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health. It answers 503 while the database is unreachable.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
