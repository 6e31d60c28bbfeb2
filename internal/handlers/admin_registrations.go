package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/models"
	"github.com/lojf/vbs/internal/services"
)

type registrationFilters struct {
	Status string
	Code   string
	Phone  string
}

// GET /admin/registrations?status=&code=&phone=
func (h *Handlers) AdminRegistrations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := registrationFilters{
			Status: strings.TrimSpace(q.Get("status")),
			Code:   strings.TrimSpace(q.Get("code")),
			Phone:  strings.TrimSpace(q.Get("phone")),
		}

		var (
			regs []models.Registration
			err  error
		)
		switch {
		case f.Code != "":
			var reg *models.Registration
			reg, err = h.Registrations.GetByCode(r.Context(), f.Code)
			if err == nil {
				regs = []models.Registration{*reg}
			} else if services.IsNotFound(err) {
				err = nil
			}
		case f.Phone != "":
			regs, err = h.Registrations.FindByPhone(r.Context(), f.Phone)
		default:
			regs, err = h.Registrations.List(r.Context(), f.Status)
		}
		if err != nil {
			h.log.Error("list registrations", zap.Error(err))
			http.Error(w, "could not load registrations", http.StatusInternalServerError)
			return
		}

		var paid, kids int
		for _, reg := range regs {
			if reg.Paid() {
				paid++
				kids += len(reg.Children)
			}
		}
		h.render(w, r, "admin/registrations.tmpl", map[string]any{
			"Title":         "Admin • Registrations",
			"Registrations": regs,
			"Filters":       f,
			"PaidCount":     paid,
			"PaidChildren":  kids,
		})
	}
}

// POST /admin/registrations/{id}/resend
func (h *Handlers) AdminResendConfirmation(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	err := h.Payments.ResendConfirmation(r.Context(), id)
	switch {
	case err == nil:
		http.Redirect(w, r, "/admin/registrations?ok=resent", http.StatusSeeOther)
	case err == services.ErrNotPaid, services.IsNotFound(err):
		h.redirectErr(w, r, "/admin/registrations", err)
	default:
		h.log.Error("resend confirmation", zap.Uint("registration_id", id), zap.Error(err))
		http.Redirect(w, r, "/admin/registrations?error=send_failed", http.StatusSeeOther)
	}
}
