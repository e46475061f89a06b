package notification

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authn "github.com/sos-villages/signalement/internal/shared/auth"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// Handler provides HTTP handlers for the notification inbox
type Handler struct {
	inbox *Inbox
}

// NewHandler creates a new inbox handler
func NewHandler(inbox *Inbox) *Handler {
	return &Handler{inbox: inbox}
}

// Routes registers the inbox routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/{notificationID}/read", h.MarkRead)

	return r
}

// List handles GET /notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.inbox.List(r.Context(), authn.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

// MarkRead handles POST /notifications/{notificationID}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid notification ID"))
		return
	}

	n, err := h.inbox.MarkRead(r.Context(), authn.GetIdentity(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
