package main

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/vbs/internal/config"
	"github.com/lojf/vbs/internal/db"
	"github.com/lojf/vbs/internal/grading"
	"github.com/lojf/vbs/internal/logging"
	"github.com/lojf/vbs/internal/notify"
	"github.com/lojf/vbs/internal/payments"
	"github.com/lojf/vbs/internal/services"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg  *config.Config
	log  *zap.Logger
	conn *gorm.DB

	checkout      payments.Provider
	registrations *services.RegistrationService
	payments      *services.PaymentService
	assignments   *services.AssignmentService
	volunteers    *services.VolunteerService
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Live())
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	scheme := grading.DefaultScheme()
	if cfg.GradesFile != "" {
		if scheme, err = grading.LoadScheme(cfg.GradesFile); err != nil {
			_ = db.Close(conn)
			return nil, errors.Wrap(err, "load grade scheme")
		}
	}

	ev := notify.Event{Name: cfg.EventName, BaseURL: cfg.BaseURL}
	var notifier notify.Notifier
	if cfg.SendgridAPIKey != "" {
		notifier = notify.NewSendgridNotifier(cfg.SendgridAPIKey, cfg.FromName, cfg.FromEmail, ev, log)
	} else {
		notifier = notify.NewConsoleNotifier(ev, log)
	}

	var checkout payments.Provider
	if cfg.StripeSecretKey != "" {
		checkout = payments.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.BaseURL, log)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; using the dev checkout")
		checkout = payments.NewDevProvider(cfg.BaseURL, log)
	}

	return &app{
		cfg:           cfg,
		log:           log,
		conn:          conn,
		checkout:      checkout,
		registrations: services.NewRegistrationService(conn, cfg.PricePerChildCents, log),
		payments:      services.NewPaymentService(conn, notifier, cfg.Live(), log),
		assignments:   services.NewAssignmentService(conn, scheme, log),
		volunteers:    services.NewVolunteerService(conn, log),
	}, nil
}

func (a *app) close() {
	if err := db.Close(a.conn); err != nil {
		a.log.Warn("close db", zap.Error(err))
	}
	_ = a.log.Sync()
}
