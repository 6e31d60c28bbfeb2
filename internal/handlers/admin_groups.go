package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/services"
)

func urlID(r *http.Request) (uint, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func isJSONBody(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// GET /admin/groups
func (h *Handlers) AdminGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := h.Assignments.Board(r.Context())
		if err != nil {
			h.log.Error("load board", zap.Error(err))
			http.Error(w, "could not load groups", http.StatusInternalServerError)
			return
		}
		h.render(w, r, "admin/groups.tmpl", map[string]any{
			"Title": "Admin • Groups",
			"Board": b,
		})
	}
}

// GET /admin/groups/board.json
func (h *Handlers) AdminBoardJSON(w http.ResponseWriter, r *http.Request) {
	b, err := h.Assignments.Board(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type assignmentsBody struct {
	Assignments map[string]*uint `json:"assignments"`
}

// parseAssignments accepts JSON {"assignments": {"<child id>": <group id|null>}}
// or form fields assign[<child id>]=<group id|"">.
func parseAssignments(r *http.Request) (map[uint]*uint, error) {
	out := map[uint]*uint{}
	if isJSONBody(r) {
		var body assignmentsBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, err
		}
		for k, gid := range body.Assignments {
			cid, err := strconv.ParseUint(k, 10, 64)
			if err != nil {
				return nil, err
			}
			out[uint(cid)] = gid
		}
		return out, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for key, vals := range r.PostForm {
		if !strings.HasPrefix(key, "assign[") || !strings.HasSuffix(key, "]") {
			continue
		}
		cid, err := strconv.ParseUint(key[len("assign["):len(key)-1], 10, 64)
		if err != nil {
			return nil, err
		}
		var gid *uint
		if v := strings.TrimSpace(vals[0]); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, err
			}
			g := uint(n)
			gid = &g
		}
		out[uint(cid)] = gid
	}
	return out, nil
}

// POST /admin/groups/assignments
func (h *Handlers) AdminSaveAssignments(w http.ResponseWriter, r *http.Request) {
	m, err := parseAssignments(r)
	if err != nil {
		if isJSONBody(r) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed assignments"})
			return
		}
		http.Error(w, "malformed assignments", http.StatusBadRequest)
		return
	}

	err = h.Assignments.SaveAssignments(r.Context(), m)
	if isJSONBody(r) {
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "saved": len(m)})
		return
	}
	switch {
	case err == nil:
		http.Redirect(w, r, "/admin/groups?ok=saved", http.StatusSeeOther)
	case services.IsValidation(err):
		b, berr := h.Assignments.Board(r.Context())
		if berr != nil {
			http.Error(w, "could not load groups", http.StatusInternalServerError)
			return
		}
		h.renderStatus(w, r, http.StatusUnprocessableEntity, "admin/groups.tmpl", map[string]any{
			"Title": "Admin • Groups",
			"Board": b,
			"Flash": MakeFlash(r, err.Error(), ""),
		})
	default:
		h.log.Error("save assignments", zap.Error(err))
		http.Error(w, "could not save assignments", http.StatusInternalServerError)
	}
}

// POST /admin/groups/auto
func (h *Handlers) AdminAutoAssign(w http.ResponseWriter, r *http.Request) {
	res, err := h.Assignments.AutoAssign(r.Context())
	if wantsJSON(r) {
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		byGroup, unassigned := res.ByGroup()
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"children":   len(res),
			"groups":     byGroup,
			"unassigned": nonNil(unassigned),
		})
		return
	}
	if err != nil {
		http.Redirect(w, r, "/admin/groups?error=autoassign_error", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/admin/groups?ok=auto_assigned", http.StatusSeeOther)
}

// POST /admin/groups
func (h *Handlers) AdminCreateGroup(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if _, err := h.Assignments.CreateGroup(r.Context(), r.FormValue("name")); err != nil {
		h.redirectErr(w, r, "/admin/groups", err)
		return
	}
	http.Redirect(w, r, "/admin/groups?ok=group_created", http.StatusSeeOther)
}

// POST /admin/groups/{id}
func (h *Handlers) AdminRenameGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = r.ParseForm()
	if err := h.Assignments.RenameGroup(r.Context(), id, r.FormValue("name")); err != nil {
		h.redirectErr(w, r, "/admin/groups", err)
		return
	}
	http.Redirect(w, r, "/admin/groups?ok=group_renamed", http.StatusSeeOther)
}

// POST /admin/groups/{id}/delete
func (h *Handlers) AdminDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.Assignments.DeleteGroup(r.Context(), id); err != nil {
		h.redirectErr(w, r, "/admin/groups", err)
		return
	}
	http.Redirect(w, r, "/admin/groups?ok=group_deleted", http.StatusSeeOther)
}

// POST /admin/groups/reorder
// JSON {"ids": [3, 1, 2]} or form ids=3,1,2.
func (h *Handlers) AdminReorderGroups(w http.ResponseWriter, r *http.Request) {
	var ids []uint
	if isJSONBody(r) {
		var body struct {
			IDs []uint `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed ids"})
			return
		}
		ids = body.IDs
	} else {
		_ = r.ParseForm()
		for _, part := range strings.Split(r.FormValue("ids"), ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			n, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				http.Error(w, "malformed ids", http.StatusBadRequest)
				return
			}
			ids = append(ids, uint(n))
		}
	}

	err := h.Assignments.ReorderGroups(r.Context(), ids)
	if isJSONBody(r) {
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if err != nil {
		h.redirectErr(w, r, "/admin/groups", err)
		return
	}
	http.Redirect(w, r, "/admin/groups?ok=saved", http.StatusSeeOther)
}

// redirectErr sends form posts back to the page with a flash.
func (h *Handlers) redirectErr(w http.ResponseWriter, r *http.Request, to string, err error) {
	key := "invalid"
	switch {
	case services.IsNotFound(err):
		key = "not_found"
	case err == services.ErrNotPaid:
		key = "not_paid"
	case !services.IsValidation(err):
		h.log.Error("admin action failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, to+"?error="+key, http.StatusSeeOther)
}
