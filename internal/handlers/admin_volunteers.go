package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/services"
)

func volunteerForm(r *http.Request) services.VolunteerInput {
	in := services.VolunteerInput{
		Name:  r.FormValue("name"),
		Email: r.FormValue("email"),
		Phone: r.FormValue("phone"),
		Role:  r.FormValue("role"),
	}
	if v := strings.TrimSpace(r.FormValue("group_id")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			g := uint(n)
			in.GroupID = &g
		}
	}
	return in
}

// GET /admin/volunteers
func (h *Handlers) AdminVolunteers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vols, err := h.Volunteers.List(r.Context())
		if err != nil {
			h.log.Error("list volunteers", zap.Error(err))
			http.Error(w, "could not load volunteers", http.StatusInternalServerError)
			return
		}
		groups, err := h.Assignments.Groups(r.Context())
		if err != nil {
			http.Error(w, "could not load groups", http.StatusInternalServerError)
			return
		}
		h.render(w, r, "admin/volunteers.tmpl", map[string]any{
			"Title":      "Admin • Volunteers",
			"Volunteers": vols,
			"Groups":     groups,
		})
	}
}

// POST /admin/volunteers
func (h *Handlers) AdminCreateVolunteer(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if _, err := h.Volunteers.Create(r.Context(), volunteerForm(r)); err != nil {
		h.redirectErr(w, r, "/admin/volunteers", err)
		return
	}
	http.Redirect(w, r, "/admin/volunteers?ok=vol_saved", http.StatusSeeOther)
}

// POST /admin/volunteers/{id}
func (h *Handlers) AdminUpdateVolunteer(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = r.ParseForm()
	if err := h.Volunteers.Update(r.Context(), id, volunteerForm(r)); err != nil {
		h.redirectErr(w, r, "/admin/volunteers", err)
		return
	}
	http.Redirect(w, r, "/admin/volunteers?ok=vol_saved", http.StatusSeeOther)
}

// POST /admin/volunteers/{id}/delete
func (h *Handlers) AdminDeleteVolunteer(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.Volunteers.Delete(r.Context(), id); err != nil {
		h.redirectErr(w, r, "/admin/volunteers", err)
		return
	}
	http.Redirect(w, r, "/admin/volunteers?ok=vol_deleted", http.StatusSeeOther)
}
