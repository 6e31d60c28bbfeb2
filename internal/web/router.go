package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/handlers"
	"github.com/lojf/vbs/internal/logging"
)

//go:embed templates
var templatesFS embed.FS

// Templates returns the shared layouts and the page files under pages/.
func Templates() (*template.Template, fs.FS) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return mustParseTemplates(sub), sub
}

func Router(h *handlers.Handlers, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Requests(log.Named("access")))
	r.Use(middleware.Recoverer)

	// Public pages
	r.Get("/", h.Home())
	r.Get("/healthz", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Registration and checkout
	r.Get("/register", h.RegisterForm())
	r.Post("/register", h.RegisterSubmit)
	r.Get("/register/success", h.RegisterSuccess())
	r.Get("/register/cancel", h.RegisterCancel())
	r.Post("/stripe/webhook", h.StripeWebhook)

	// QR image
	r.Get("/qr/{code}.png", h.QR)

	r.Route("/admin", func(ar chi.Router) {
		ar.Get("/login", h.AdminLoginForm())
		ar.Post("/login", h.AdminLoginSubmit)
		ar.Post("/logout", h.AdminLogout)

		ar.Group(func(ag chi.Router) {
			ag.Use(h.Auth.Require)

			ag.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/admin/groups", http.StatusSeeOther)
			})

			// Groups board
			ag.Get("/groups", h.AdminGroups())
			ag.Get("/groups/board.json", h.AdminBoardJSON)
			ag.Post("/groups", h.AdminCreateGroup)
			ag.Post("/groups/auto", h.AdminAutoAssign)
			ag.Post("/groups/assignments", h.AdminSaveAssignments)
			ag.Post("/groups/reorder", h.AdminReorderGroups)
			ag.Post("/groups/{id}", h.AdminRenameGroup)
			ag.Post("/groups/{id}/delete", h.AdminDeleteGroup)

			// Volunteers
			ag.Get("/volunteers", h.AdminVolunteers())
			ag.Post("/volunteers", h.AdminCreateVolunteer)
			ag.Post("/volunteers/{id}", h.AdminUpdateVolunteer)
			ag.Post("/volunteers/{id}/delete", h.AdminDeleteVolunteer)

			// Registrations
			ag.Get("/registrations", h.AdminRegistrations())
			ag.Post("/registrations/{id}/resend", h.AdminResendConfirmation)
		})
	})

	return r
}

func mustParseTemplates(root fs.FS) *template.Template {
	p := template.New("").Funcs(handlers.TemplateFuncs())
	return template.Must(p.ParseFS(root, "layouts/*.tmpl"))
}
