package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lojf/vbs/internal/config"
)

const (
	adminCookieName = "vbs_admin"
	adminSubject    = "admin"
)

// AdminAuth checks the shared admin password and issues signed session cookies.
type AdminAuth struct {
	hash     []byte
	secret   []byte
	ttl      time.Duration
	secure   bool
	attempts *loginLimiter
}

func NewAdminAuth(cfg *config.Config) (*AdminAuth, error) {
	a := &AdminAuth{
		secret:   []byte(cfg.SessionSecret),
		ttl:      cfg.SessionTTL,
		secure:   strings.HasPrefix(cfg.BaseURL, "https://"),
		attempts: newLoginLimiter(12*time.Second, 5), // 5 tries, then one every 12s
	}
	switch {
	case cfg.AdminPasswordHash != "":
		a.hash = []byte(cfg.AdminPasswordHash)
		if _, err := bcrypt.Cost(a.hash); err != nil {
			return nil, errors.Wrap(err, "ADMIN_PASSWORD_HASH is not a bcrypt hash")
		}
	case cfg.AdminPassword != "":
		h, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrap(err, "hash admin password")
		}
		a.hash = h
	default:
		return nil, errors.New("no admin password configured")
	}
	if len(a.secret) == 0 {
		return nil, errors.New("SESSION_SECRET is empty")
	}
	if a.ttl <= 0 {
		a.ttl = 12 * time.Hour
	}
	return a, nil
}

func (a *AdminAuth) CheckPassword(pw string) bool {
	return bcrypt.CompareHashAndPassword(a.hash, []byte(pw)) == nil
}

func (a *AdminAuth) Issue(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AdminAuth) Verify(raw string) error {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return err
	}
	if !tok.Valid || claims.Subject != adminSubject {
		return errors.New("invalid admin session")
	}
	return nil
}

// Require is middleware: blocks access unless logged in. Pages redirect to
// the login form; JSON callers get 401.
func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(adminCookieName)
		if err == nil && a.Verify(c.Value) == nil {
			next.ServeHTTP(w, r)
			return
		}
		if wantsJSON(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "login required"})
			return
		}
		http.Redirect(w, r, "/admin/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.HasSuffix(r.URL.Path, ".json")
}

// GET /admin/login
func (h *Handlers) AdminLoginForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, "admin/login.tmpl", map[string]any{
			"Title": "Admin • Login",
			"Next":  r.URL.Query().Get("next"),
		})
	}
}

// POST /admin/login
func (h *Handlers) AdminLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	next := safeNext(r.FormValue("next"))
	if !h.Auth.attempts.allow(r, time.Now()) {
		h.log.Warn("admin login throttled", zap.String("ip", clientIP(r)))
		http.Redirect(w, r, "/admin/login?error=too_many_attempts&next="+url.QueryEscape(next), http.StatusSeeOther)
		return
	}
	if !h.Auth.CheckPassword(r.FormValue("password")) {
		h.log.Warn("admin login failed", zap.String("ip", r.RemoteAddr))
		http.Redirect(w, r, "/admin/login?error=bad_password&next="+url.QueryEscape(next), http.StatusSeeOther)
		return
	}
	tok, err := h.Auth.Issue(time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	setAdminCookie(w, tok, h.Auth.ttl, h.Auth.secure)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// POST /admin/logout
func (h *Handlers) AdminLogout(w http.ResponseWriter, r *http.Request) {
	clearAdminCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// safeNext only allows local paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/admin/groups"
	}
	return next
}
