package handlers

import (
	"net/http"
	"strings"
)

type Flash struct {
	Kind string // "ok" or "error"
	Text string
}

var okText = map[string]string{
	"saved":         "Saved.",
	"group_created": "Group created.",
	"group_renamed": "Group renamed.",
	"group_deleted": "Group deleted. Its children are now unassigned.",
	"auto_assigned": "Children were assigned to groups by grade.",
	"resent":        "Confirmation email sent again.",
	"vol_saved":     "Volunteer saved.",
	"vol_deleted":   "Volunteer deleted.",
}

var errText = map[string]string{
	"bad_password":         "Wrong password.",
	"too_many_attempts":    "Too many login attempts. Wait a minute and try again.",
	"not_found":            "Not found.",
	"not_paid":             "That registration has not been paid.",
	"invalid":              "Please check the highlighted fields.",
	"invalid_group":        "Unknown group.",
	"checkout_failed":      "We could not start the payment. Please try again.",
	"payment_pending":      "Your payment has not completed yet.",
	"unknown_session":      "We could not find that payment session.",
	"registration_missing": "We received your payment but could not find the registration. Please contact the church office.",
	"send_failed":          "The confirmation email could not be sent.",
	"autoassign_error":     "Auto-assign failed; nothing was changed.",
}

// MakeFlash reads ?ok= / ?error= and falls back to the handler-provided
// messages.
func MakeFlash(r *http.Request, errStr, msgStr string) *Flash {
	q := r.URL.Query()
	errRaw := strings.TrimSpace(q.Get("error"))
	okRaw := strings.TrimSpace(q.Get("ok"))

	if errRaw != "" {
		if t, ok := errText[strings.ToLower(errRaw)]; ok {
			return &Flash{Kind: "error", Text: t}
		}
		return &Flash{Kind: "error", Text: errRaw}
	}
	if okRaw != "" {
		if t, ok := okText[strings.ToLower(okRaw)]; ok {
			return &Flash{Kind: "ok", Text: t}
		}
		return &Flash{Kind: "ok", Text: okRaw}
	}

	if errStr != "" {
		return &Flash{Kind: "error", Text: errStr}
	}
	if msgStr != "" {
		return &Flash{Kind: "ok", Text: msgStr}
	}
	return nil
}
