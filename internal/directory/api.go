package directory

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sos-villages/signalement/internal/auth"
	authn "github.com/sos-villages/signalement/internal/shared/auth"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// Handler provides HTTP handlers for the directory module
type Handler struct {
	service *Service
}

// NewHandler creates a new directory handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// LoginRoutes registers the public authentication routes
func (h *Handler) LoginRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	return r
}

// VillageRoutes registers the village routes
func (h *Handler) VillageRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListVillages)
	r.With(authn.RequireCapability(canManageUsers)).Post("/", h.CreateVillage)

	return r
}

// UserRoutes registers the user management routes
func (h *Handler) UserRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(authn.RequireCapability(canManageUsers))

	r.Get("/", h.ListUsers)
	r.Post("/", h.CreateUser)

	return r
}

func canManageUsers(c auth.Capabilities) bool { return c.CanManageUsers }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListVillages handles GET /villages
func (h *Handler) ListVillages(w http.ResponseWriter, r *http.Request) {
	villages, err := h.service.ListVillages(r.Context(), authn.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": villages})
}

type createVillageRequest struct {
	Name string `json:"name"`
}

// CreateVillage handles POST /villages
func (h *Handler) CreateVillage(w http.ResponseWriter, r *http.Request) {
	var req createVillageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	v, err := h.service.CreateVillage(r.Context(), authn.GetIdentity(r.Context()), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListUsersFilter{}

	if role := q.Get("role"); role != "" {
		parsed, err := auth.ParseRole(role)
		if err != nil {
			writeError(w, errors.BadRequest("invalid role"))
			return
		}
		filter.Role = &parsed
	}
	if villageID := q.Get("village_id"); villageID != "" {
		id, err := types.ParseID(villageID)
		if err != nil {
			writeError(w, errors.BadRequest("invalid village_id"))
			return
		}
		filter.VillageID = &id
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}

	users, total, err := h.service.ListUsers(r.Context(), authn.GetIdentity(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users, "total": total})
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req NewUserParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	u, err := h.service.CreateUser(r.Context(), authn.GetIdentity(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
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
