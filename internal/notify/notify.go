// Package notify renders and dispatches registration confirmations.
package notify

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/mail"
	texttemplate "text/template"

	"github.com/pkg/errors"

	"github.com/lojf/vbs/internal/models"
)

// Notifier sends the confirmation for a finalized registration.
type Notifier interface {
	SendConfirmation(ctx context.Context, reg *models.Registration) error
}

type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Event describes the program the confirmation is about.
type Event struct {
	Name    string
	BaseURL string
}

type confirmationData struct {
	Event    Event
	Reg      *models.Registration
	Amount   string
	QRURL    string
	Children []models.Child
}

var textTmpl = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(
	`Hi {{.Reg.GuardianName}},

Thank you for registering for {{.Event.Name}}. Your payment of {{.Amount}} was received.

Registration code: {{.Reg.Code}}
{{range .Children}}
  - {{.FirstName}} {{.LastName}}{{if .Grade}} ({{.Grade}}){{end}}
{{- end}}

Show this QR code at check-in: {{.QRURL}}
`))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(
	`<p>Hi {{.Reg.GuardianName}},</p>
<p>Thank you for registering for <strong>{{.Event.Name}}</strong>. Your payment of {{.Amount}} was received.</p>
<p>Registration code: <code>{{.Reg.Code}}</code></p>
<ul>{{range .Children}}<li>{{.FirstName}} {{.LastName}}{{if .Grade}} ({{.Grade}}){{end}}</li>{{end}}</ul>
<p><img src="{{.QRURL}}" alt="Check-in QR code" width="200" height="200"></p>
`))

// Confirmation builds the confirmation message for a paid registration.
// reg.Children must be loaded.
func Confirmation(reg *models.Registration, ev Event) (*Message, error) {
	if reg == nil {
		return nil, errors.New("notify: nil registration")
	}
	if reg.Email == "" {
		return nil, errors.Errorf("notify: registration %s has no email", reg.Code)
	}
	data := confirmationData{
		Event:    ev,
		Reg:      reg,
		Amount:   FormatCents(reg.AmountCents),
		QRURL:    ev.BaseURL + "/qr/" + reg.Code + ".png",
		Children: reg.Children,
	}

	var txt, html bytes.Buffer
	if err := textTmpl.Execute(&txt, data); err != nil {
		return nil, errors.Wrap(err, "render text confirmation")
	}
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return nil, errors.Wrap(err, "render html confirmation")
	}
	return &Message{
		To:      mail.Address{Name: reg.GuardianName, Address: reg.Email},
		Subject: ev.Name + " registration confirmed (" + reg.Code + ")",
		Text:    txt.String(),
		HTML:    html.String(),
	}, nil
}

// FormatCents renders an amount in dollars, e.g. 2500 -> "$25.00".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}
