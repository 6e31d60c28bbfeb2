package notify

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/models"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendgridNotifier struct {
	key   string
	host  string
	from  *sgmail.Email
	event Event
	log   *zap.Logger
}

var _ Notifier = (*SendgridNotifier)(nil)

func NewSendgridNotifier(key, fromName, fromEmail string, ev Event, log *zap.Logger) *SendgridNotifier {
	return &SendgridNotifier{
		key:   key,
		host:  sendgridHost,
		from:  sgmail.NewEmail(fromName, fromEmail),
		event: ev,
		log:   log.Named("sendgrid"),
	}
}

func (n *SendgridNotifier) SendConfirmation(ctx context.Context, reg *models.Registration) error {
	msg, err := Confirmation(reg, n.event)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

func (n *SendgridNotifier) prepare(msg *Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Address))

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

func (n *SendgridNotifier) send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(n.key, sendgridEndpoint, n.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return errors.Wrap(err, "sendgrid request")
	}
	if res.StatusCode >= http.StatusBadRequest {
		n.log.Warn("sendgrid rejected message",
			zap.Int("status", res.StatusCode),
			zap.String("body", res.Body),
		)
		return errors.Errorf("sendgrid status %d", res.StatusCode)
	}
	n.log.Info("confirmation sent", zap.String("to", msg.To.Address), zap.Int("status", res.StatusCode))
	return nil
}
