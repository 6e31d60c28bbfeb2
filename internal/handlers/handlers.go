package handlers

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"path"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/config"
	"github.com/lojf/vbs/internal/payments"
	"github.com/lojf/vbs/internal/services"
)

// Deps is everything the HTTP layer needs. Nothing is looked up globally.
type Deps struct {
	Config        *config.Config
	Templates     *template.Template // layouts + partials
	Pages         fs.FS             // contains pages/...
	Registrations *services.RegistrationService
	Payments      *services.PaymentService
	Assignments   *services.AssignmentService
	Volunteers    *services.VolunteerService
	Checkout      payments.Provider
	Auth          *AdminAuth
	Log           *zap.Logger
}

// Handlers serves the site. GET pages are factories returning an
// http.HandlerFunc; POST, JSON and image endpoints are plain methods.
type Handlers struct {
	Deps
	log *zap.Logger
}

func New(d Deps) *Handlers {
	return &Handlers{Deps: d, log: d.Log.Named("http")}
}

// render clones the base templates, adds one page file and executes it.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, page string, data map[string]any) {
	h.renderStatus(w, r, http.StatusOK, page, data)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	view, err := h.Templates.Clone()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := view.ParseFS(h.Pages, "pages/"+page); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["EventName"] = h.Config.EventName
	if _, ok := data["Flash"]; !ok {
		data["Flash"] = MakeFlash(r, "", "")
	}

	var buf bytes.Buffer
	if err := view.ExecuteTemplate(&buf, path.Base(page), data); err != nil {
		h.log.Error("render", zap.String("page", page), zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service errors onto HTTP statuses for JSON callers.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case services.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	case services.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, validationBody(err))
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func validationBody(err error) map[string]any {
	body := map[string]any{"error": err.Error()}
	var aerr *services.AssignmentError
	var verr *services.ValidationError
	switch {
	case errors.As(err, &aerr):
		body["unknown_child_ids"] = nonNil(aerr.UnknownChildIDs)
		body["unknown_group_ids"] = nonNil(aerr.UnknownGroupIDs)
	case errors.As(err, &verr):
		body["fields"] = verr.Fields
	}
	return body
}

func nonNil(ids []uint) []uint {
	if ids == nil {
		return []uint{}
	}
	return ids
}
