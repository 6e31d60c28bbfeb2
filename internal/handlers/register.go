package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/payments"
	"github.com/lojf/vbs/internal/services"
)

// GET /register
func (h *Handlers) RegisterForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, "register.tmpl", map[string]any{
			"Title":       "Register",
			"Price":       h.Config.PricePerChildCents,
			"MaxChildren": services.MaxChildren,
			"Form":        services.RegistrationInput{Children: []services.ChildInput{{}}},
			"Errors":      map[string]string{},
		})
	}
}

// parseRegistrationForm reads the parallel child_* arrays; row i of every
// array belongs to child i. Rows with no name at all are skipped.
func parseRegistrationForm(r *http.Request) services.RegistrationInput {
	in := services.RegistrationInput{
		GuardianName:     r.FormValue("guardian_name"),
		Email:            r.FormValue("email"),
		Phone:            r.FormValue("phone"),
		EmergencyContact: r.FormValue("emergency_contact"),
		ConsentAccepted:  r.FormValue("consent") != "",
	}
	first := r.Form["child_first_name"]
	at := func(key string, i int) string {
		vs := r.Form[key]
		if i < len(vs) {
			return strings.TrimSpace(vs[i])
		}
		return ""
	}
	for i := range first {
		c := services.ChildInput{
			FirstName:   at("child_first_name", i),
			LastName:    at("child_last_name", i),
			DateOfBirth: at("child_dob", i),
			Gender:      at("child_gender", i),
			Grade:       at("child_grade", i),
			HomeChurch:  at("child_home_church", i) == "yes",
			Notes:       at("child_notes", i),
		}
		if c.FirstName == "" && c.LastName == "" {
			continue
		}
		if a, err := strconv.Atoi(at("child_age", i)); err == nil {
			c.Age = &a
		}
		in.Children = append(in.Children, c)
	}
	return in
}

// POST /register
func (h *Handlers) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := parseRegistrationForm(r)

	reg, err := h.Registrations.CreateDraft(r.Context(), in)
	if err != nil {
		if services.IsValidation(err) {
			var verr *services.ValidationError
			_ = errors.As(err, &verr)
			if len(in.Children) == 0 {
				in.Children = []services.ChildInput{{}}
			}
			h.renderStatus(w, r, http.StatusUnprocessableEntity, "register.tmpl", map[string]any{
				"Title":       "Register",
				"Price":       h.Config.PricePerChildCents,
				"MaxChildren": services.MaxChildren,
				"Form":        in,
				"Errors":      fieldMap(verr),
				"Flash":       MakeFlash(r, errText["invalid"], ""),
			})
			return
		}
		h.log.Error("create draft", zap.Error(err))
		http.Error(w, "could not save registration", http.StatusInternalServerError)
		return
	}

	co, err := h.Checkout.CreateCheckout(r.Context(), payments.CheckoutRequest{
		RegistrationID:  reg.ID,
		Code:            reg.Code,
		Email:           reg.Email,
		Children:        len(reg.Children),
		UnitAmountCents: h.Config.PricePerChildCents,
		Currency:        h.Config.Currency,
		Description:     h.Config.EventName + " registration",
	})
	if err != nil {
		h.log.Error("create checkout", zap.String("code", reg.Code), zap.Error(err))
		http.Redirect(w, r, "/register?error=checkout_failed", http.StatusSeeOther)
		return
	}
	if err := h.Registrations.AttachSession(r.Context(), reg.ID, co.SessionID); err != nil {
		h.log.Error("attach session", zap.String("code", reg.Code), zap.Error(err))
	}
	http.Redirect(w, r, co.URL, http.StatusSeeOther)
}

func fieldMap(verr *services.ValidationError) map[string]string {
	out := map[string]string{}
	if verr == nil {
		return out
	}
	for _, f := range verr.Fields {
		out[f.Field] = f.Error
	}
	return out
}

// GET /register/success?session_id=...
// The redirect back from checkout. Races with the webhook; both go through
// FinalizeAndNotify and only one of them sends the email.
func (h *Handlers) RegisterSuccess() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sid == "" {
			http.Redirect(w, r, "/register?error=unknown_session", http.StatusSeeOther)
			return
		}
		st, err := h.Checkout.VerifyCheckout(r.Context(), sid)
		if err != nil {
			if errors.Is(err, payments.ErrUnknownSession) {
				h.renderStatus(w, r, http.StatusNotFound, "register_success.tmpl", map[string]any{
					"Title": "Payment",
					"Flash": MakeFlash(r, errText["unknown_session"], ""),
				})
				return
			}
			h.log.Error("verify checkout", zap.String("session_id", sid), zap.Error(err))
			http.Error(w, "could not verify payment", http.StatusBadGateway)
			return
		}
		if !st.Paid {
			h.render(w, r, "register_success.tmpl", map[string]any{
				"Title":   "Payment",
				"Pending": true,
				"Flash":   MakeFlash(r, errText["payment_pending"], ""),
			})
			return
		}

		rep, err := h.Payments.FinalizeAndNotify(r.Context(), st.RegistrationID, sid)
		if err != nil {
			h.log.Error("finalize from redirect", zap.String("session_id", sid), zap.Error(err))
			http.Error(w, "could not record payment", http.StatusInternalServerError)
			return
		}
		if rep.Outcome == services.OutcomeNotFound {
			h.renderRegistrationMissing(w, r)
			return
		}
		reg, err := h.Registrations.Get(r.Context(), st.RegistrationID)
		if err != nil {
			if !services.IsNotFound(err) {
				h.log.Error("load registration", zap.Uint("registration_id", st.RegistrationID), zap.Error(err))
				http.Error(w, "could not load registration", http.StatusInternalServerError)
				return
			}
			h.renderRegistrationMissing(w, r)
			return
		}
		h.render(w, r, "register_success.tmpl", map[string]any{
			"Title": "Registration complete",
			"Reg":   reg,
		})
	}
}

// The payment went through but its registration is gone; the payer still
// gets a 200 so the redirect flow acknowledges like the webhook does.
func (h *Handlers) renderRegistrationMissing(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register_success.tmpl", map[string]any{
		"Title":   "Payment received",
		"Missing": true,
		"Flash":   MakeFlash(r, errText["registration_missing"], ""),
	})
}

// GET /register/cancel?code=...
func (h *Handlers) RegisterCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, "register_cancel.tmpl", map[string]any{
			"Title": "Payment canceled",
			"Code":  r.URL.Query().Get("code"),
		})
	}
}
