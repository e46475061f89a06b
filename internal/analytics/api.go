package analytics

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sos-villages/signalement/internal/auth"
	authn "github.com/sos-villages/signalement/internal/shared/auth"
	"github.com/sos-villages/signalement/internal/shared/errors"
)

// Handler provides HTTP handlers for national analytics
type Handler struct {
	service *Service
}

// NewHandler creates a new analytics handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the analytics routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(authn.RequireCapability(func(c auth.Capabilities) bool { return c.CanViewNationalAnalytics }))

	r.Get("/summary", h.GetSummary)
	r.Get("/export.xlsx", h.Export)

	return r
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context(), authn.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context(), authn.GetIdentity(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := ExportXLSX(sum)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=signalements-%s.xlsx", sum.GeneratedAt.Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
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
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
