package message

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/auth"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

// Handler serves the /api/v1/messages routes.
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHandler wraps svc for HTTP.
func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "message-api").Logger()}
}

// Register mounts the routes on r, which is expected to be the
// /api/v1/messages subrouter behind auth.Middleware. Fixed segments are
// registered before the two-parameter history route.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/conversations/{userId}", h.conversations).Methods(http.MethodGet)
	r.HandleFunc("/unread/{userId}", h.unreadCount).Methods(http.MethodGet)
	r.HandleFunc("", h.send).Methods(http.MethodPost)
	r.HandleFunc("/", h.send).Methods(http.MethodPost)
	r.HandleFunc("/{messageId}/read", h.markRead).Methods(http.MethodPatch)
	r.HandleFunc("/{senderId}/{receiverId}", h.history).Methods(http.MethodGet)
}

func (h *Handler) conversations(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Conversations(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Conversations fetched successfully", result)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := h.svc.History(r.Context(), vars["senderId"], vars["receiverId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Chat history fetched successfully", result)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var in SendInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	result, err := h.svc.Send(r.Context(), auth.UserIDFromContext(r.Context()), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, "Message sent successfully", result)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.MarkRead(r.Context(), mux.Vars(r)["messageId"], auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Message marked as read", result)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.UnreadCount(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Unread count fetched successfully", map[string]int{"unreadCount": count})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		writeJSON(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, "Message not found", nil)
	default:
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Message request failed")
		writeJSON(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}
