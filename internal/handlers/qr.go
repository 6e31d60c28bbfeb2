package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// GET /qr/{code}.png
func (h *Handlers) QR(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		http.NotFound(w, r)
		return
	}
	reg, err := h.Registrations.GetByCode(r.Context(), code)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	// scanning opens the registration in the admin list
	target := h.Config.BaseURL + "/admin/registrations?code=" + url.QueryEscape(reg.Code)

	png, err := qrcode.Encode(target, qrcode.Medium, 256)
	if err != nil {
		h.log.Error("qr encode", zap.String("code", reg.Code), zap.Error(err))
		http.Error(w, "failed to generate qr", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
