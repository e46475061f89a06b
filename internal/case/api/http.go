package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/access"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/case/service"
	authn "github.com/sos-villages/signalement/internal/shared/auth"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
	"github.com/sos-villages/signalement/internal/storage"
)

// multipartMemory is how much of a multipart body is held in memory before spilling to disk
const multipartMemory = 8 << 20

// Handler provides HTTP handlers for the case module
type Handler struct {
	service        *service.Service
	maxUploadBytes int64
}

// NewHandler creates a new case handler
func NewHandler(svc *service.Service, maxUploadBytes int64) *Handler {
	return &Handler{service: svc, maxUploadBytes: maxUploadBytes}
}

// Routes registers the case routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListCases)
	r.Post("/", h.CreateCase)

	r.Get("/attachments/{fileID}", h.DownloadAttachment)
	r.Get("/documents/{fileID}", h.DownloadDocument)

	r.Route("/{caseID}", func(r chi.Router) {
		r.Get("/", h.GetCase)
		r.Patch("/status", h.UpdateStatus)
		r.Post("/documents", h.UploadDocument)

		// Validations
		r.Post("/validations/director", h.ValidateAsDirector)
		r.Post("/validations/safeguarding", h.ValidateAsSafeguarding)
	})

	return r
}

// --- Request/Response types ---

type CreateCaseRequest struct {
	VillageID    types.ID            `json:"village_id"`
	IsAnonymous  bool                `json:"is_anonymous"`
	IncidentType domain.IncidentType `json:"incident_type"`
	Urgency      domain.Urgency      `json:"urgency"`
	AbuserName   string              `json:"abuser_name,omitempty"`
	ChildName    string              `json:"child_name,omitempty"`
	Description  string              `json:"description,omitempty"`
}

type UpdateStatusRequest struct {
	Status domain.CaseStatus `json:"status"`
}

// --- Handlers ---

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := access.ListRequest{
		AwaitingSafeguarding: q.Get("awaiting_safeguarding") == "true",
	}
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				req.Statuses = append(req.Statuses, domain.CaseStatus(s))
			}
		}
	}
	if l := q.Get("limit"); l != "" {
		req.Limit, _ = strconv.Atoi(l)
	}
	if o := q.Get("offset"); o != "" {
		req.Offset, _ = strconv.Atoi(o)
	}

	cases, err := h.service.ListCasesForRole(r.Context(), authn.GetIdentity(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  cases,
		"total": len(cases),
	})
}

// CreateCase accepts either a JSON body or a multipart form whose files are
// sent under "attachments"
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	var attachments []storage.Upload

	if isMultipart(r) {
		form, err := h.parseMultipart(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		defer form.RemoveAll()

		if err := decodeCaseForm(form, &req); err != nil {
			writeError(w, err)
			return
		}
		uploads, closeAll, err := openAll(form.File["attachments"])
		if err != nil {
			writeError(w, err)
			return
		}
		defer closeAll()
		attachments = uploads
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.CreateCase(r.Context(), authn.GetIdentity(r.Context()), service.CreateCaseInput{
		VillageID:    req.VillageID,
		IsAnonymous:  req.IsAnonymous,
		IncidentType: req.IncidentType,
		Urgency:      req.Urgency,
		AbuserName:   req.AbuserName,
		ChildName:    req.ChildName,
		Description:  req.Description,
		Attachments:  attachments,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetCaseByID(r.Context(), authn.GetIdentity(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.UpdateCaseStatus(r.Context(), authn.GetIdentity(r.Context()), id, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	form, err := h.parseMultipart(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer form.RemoveAll()

	files := form.File["file"]
	if len(files) == 0 {
		writeError(w, errors.BadRequest("file is required"))
		return
	}
	up, closeFile, err := open(files[0])
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	doc, err := h.service.UploadCaseDocument(r.Context(), authn.GetIdentity(r.Context()), id,
		domain.DocType(formValue(form, "doc_type")), up)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) ValidateAsDirector(w http.ResponseWriter, r *http.Request) {
	h.validate(w, r, h.service.ValidateCaseAsDirector)
}

func (h *Handler) ValidateAsSafeguarding(w http.ResponseWriter, r *http.Request) {
	h.validate(w, r, h.service.ValidateCaseAsSafeguarding)
}

type validateFunc func(ctx context.Context, actor auth.Identity, caseID types.ID, signature *storage.Upload) (*domain.Case, error)

// validate reads the "signature" part and hands it to fn. A request without
// a signature reaches fn with nil so the service reports SIGNATURE_REQUIRED.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request, fn validateFunc) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	var signature *storage.Upload
	if isMultipart(r) {
		form, err := h.parseMultipart(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		defer form.RemoveAll()

		if files := form.File["signature"]; len(files) > 0 {
			up, closeFile, err := open(files[0])
			if err != nil {
				writeError(w, err)
				return
			}
			defer closeFile()
			signature = &up
		}
	}

	c, err := fn(r.Context(), authn.GetIdentity(r.Context()), id, signature)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, h.service.OpenAttachment)
}

func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, h.service.OpenDocument)
}

type openFunc func(ctx context.Context, actor auth.Identity, id types.ID) (*service.File, error)

func (h *Handler) download(w http.ResponseWriter, r *http.Request, fn openFunc) {
	id, err := types.ParseID(chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid file ID"))
		return
	}

	file, err := fn(r.Context(), authn.GetIdentity(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Content.Close()

	contentType := file.Meta.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Meta.FileName}))
	if file.Meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Meta.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, file.Content)
}

// --- Helpers ---

func caseID(w http.ResponseWriter, r *http.Request) (types.ID, bool) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid case ID"))
		return "", false
	}
	return id, true
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart caps the body at the upload limit plus form overhead
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 4*h.maxUploadBytes+(1<<20))
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.Input(errors.CodeFileTooLarge, "request body too large")
		}
		return nil, errors.BadRequest("invalid multipart form")
	}
	return r.MultipartForm, nil
}

func decodeCaseForm(form *multipart.Form, req *CreateCaseRequest) error {
	if v := formValue(form, "village_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			return errors.BadRequest("invalid village ID")
		}
		req.VillageID = id
	}
	if v := formValue(form, "is_anonymous"); v != "" {
		anon, err := strconv.ParseBool(v)
		if err != nil {
			return errors.BadRequest("invalid is_anonymous value")
		}
		req.IsAnonymous = anon
	}
	req.IncidentType = domain.IncidentType(formValue(form, "incident_type"))
	req.Urgency = domain.Urgency(formValue(form, "urgency"))
	req.AbuserName = formValue(form, "abuser_name")
	req.ChildName = formValue(form, "child_name")
	req.Description = formValue(form, "description")
	return nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func open(fh *multipart.FileHeader) (storage.Upload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return storage.Upload{}, nil, errors.BadRequest(fmt.Sprintf("cannot read file %q", fh.Filename))
	}
	return storage.Upload{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Body:     f,
	}, func() { f.Close() }, nil
}

func openAll(headers []*multipart.FileHeader) ([]storage.Upload, func(), error) {
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	uploads := make([]storage.Upload, 0, len(headers))
	for _, fh := range headers {
		up, closeFile, err := open(fh)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, closeFile)
		uploads = append(uploads, up)
	}
	return uploads, closeAll, nil
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
