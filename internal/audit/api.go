package audit

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sos-villages/signalement/internal/auth"
	authn "github.com/sos-villages/signalement/internal/shared/auth"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// Handler serves the audit log to IT administrators
type Handler struct {
	repo Reader
}

// NewHandler creates a new audit handler
func NewHandler(repo Reader) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the audit routes behind the canManageUsers capability
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(authn.RequireCapability(func(c auth.Capabilities) bool { return c.CanManageUsers }))

	r.Get("/", h.ListEntries)
	r.Get("/verify", h.VerifyChain)

	return r
}

// ListEntries pages through the log, newest first
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	entries, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":   entries,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// VerifyChain recomputes the hashes of the most recent entries
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, errors.BadRequest("invalid limit"))
			return
		}
		limit = n
	}

	result, err := h.repo.Verify(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseListFilter(q url.Values) (ListFilter, error) {
	filter := ListFilter{
		Action: q.Get("action"),
		Entity: q.Get("entity"),
	}

	ids := map[string]**types.ID{"actor_id": &filter.ActorID, "entity_id": &filter.EntityID}
	for param, dst := range ids {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		id, err := types.ParseID(raw)
		if err != nil {
			return filter, errors.BadRequest("invalid " + param)
		}
		*dst = &id
	}

	ints := map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset}
	for param, dst := range ints {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.BadRequest("invalid " + param)
		}
		*dst = n
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := http.StatusInternalServerError, map[string]any{"error": "internal server error"}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus
		body = map[string]any{"error": appErr.Message, "code": appErr.Code, "details": appErr.Details}
	}
	writeJSON(w, status, body)
}
