package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lojf/vbs/internal/models"
	"github.com/lojf/vbs/internal/notify"
)

type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeAlreadyClaimed
	OutcomeClaimed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClaimed:
		return "claimed"
	case OutcomeAlreadyClaimed:
		return "already_claimed"
	default:
		return "not_found"
	}
}

// Finalization is the result of one FinalizePayment call. Registration is set
// (with children) only for the caller that claimed the confirmation.
type Finalization struct {
	Outcome      Outcome
	Registration *models.Registration
}

func (f Finalization) Claimed() bool { return f.Outcome == OutcomeClaimed }

type PaymentService struct {
	db       *gorm.DB
	notifier notify.Notifier
	live     bool
	log      *zap.Logger
}

// NewPaymentService: confirmations are dispatched only when live is true.
func NewPaymentService(db *gorm.DB, n notify.Notifier, live bool, log *zap.Logger) *PaymentService {
	return &PaymentService{db: db, notifier: n, live: live, log: log.Named("payment")}
}

// FinalizePayment marks a registration paid and hands out the right to send
// its confirmation. Any number of concurrent or repeated calls for the same id
// yield at most one OutcomeClaimed. A missing registration is not an error.
func (s *PaymentService) FinalizePayment(ctx context.Context, registrationID uint, sessionID string) (Finalization, error) {
	var fin Finalization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		fin, err = FinalizePaymentTx(tx, registrationID, sessionID)
		return err
	})
	if err != nil {
		finalizeTotal.WithLabelValues("error").Inc()
		return Finalization{}, errors.Wrapf(err, "finalize registration %d", registrationID)
	}
	finalizeTotal.WithLabelValues(fin.Outcome.String()).Inc()

	fields := []zap.Field{
		zap.Uint("registration_id", registrationID),
		zap.String("session_id", sessionID),
		zap.Stringer("outcome", fin.Outcome),
	}
	if fin.Outcome == OutcomeNotFound {
		s.log.Warn("finalize: registration not found", fields...)
	} else {
		s.log.Info("finalize", fields...)
	}
	return fin, nil
}

// FinalizePaymentTx runs the guard inside an existing TX. The row is read with
// FOR UPDATE where the dialect supports it; on SQLite the single-connection
// pool serializes transactions instead.
func FinalizePaymentTx(tx *gorm.DB, registrationID uint, sessionID string) (Finalization, error) {
	var reg models.Registration
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reg, registrationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Finalization{Outcome: OutcomeNotFound}, nil
		}
		return Finalization{}, errors.Wrap(err, "lock registration")
	}

	// first paid write wins the status and session id
	if reg.Status != models.StatusPaid {
		now := time.Now()
		if err := tx.Model(&models.Registration{}).
			Where("id = ?", reg.ID).
			Updates(map[string]any{
				"status":            models.StatusPaid,
				"stripe_session_id": sessionID,
				"updated_at":        now,
			}).Error; err != nil {
			return Finalization{}, errors.Wrap(err, "mark paid")
		}
		reg.Status, reg.StripeSessionID, reg.UpdatedAt = models.StatusPaid, sessionID, now
	}

	if reg.ConfirmationEmailSent {
		return Finalization{Outcome: OutcomeAlreadyClaimed}, nil
	}
	res := tx.Model(&models.Registration{}).
		Where("id = ? AND confirmation_email_sent = ?", reg.ID, false).
		Update("confirmation_email_sent", true)
	if res.Error != nil {
		return Finalization{}, errors.Wrap(res.Error, "claim confirmation")
	}
	if res.RowsAffected == 0 {
		return Finalization{Outcome: OutcomeAlreadyClaimed}, nil
	}
	reg.ConfirmationEmailSent = true

	if err := tx.Where("registration_id = ?", reg.ID).Order("id asc").Find(&reg.Children).Error; err != nil {
		return Finalization{}, errors.Wrap(err, "load children")
	}
	return Finalization{Outcome: OutcomeClaimed, Registration: &reg}, nil
}

// NotifyReport tells the caller what FinalizeAndNotify did after committing.
type NotifyReport struct {
	Finalization
	Attempted bool  // a confirmation dispatch was tried
	Notified  bool  // and it succeeded
	NotifyErr error // dispatch failure; the payment stays finalized
}

// FinalizeAndNotify finalizes and, for the claiming caller in a live
// deployment, sends the confirmation. A send failure is reported in the
// NotifyReport and never returned as the error.
func (s *PaymentService) FinalizeAndNotify(ctx context.Context, registrationID uint, sessionID string) (NotifyReport, error) {
	fin, err := s.FinalizePayment(ctx, registrationID, sessionID)
	if err != nil {
		return NotifyReport{}, err
	}
	rep := NotifyReport{Finalization: fin}
	if !fin.Claimed() {
		return rep, nil
	}
	if !s.live {
		confirmationTotal.WithLabelValues("skipped").Inc()
		s.log.Info("confirmation skipped outside live mode", zap.String("code", fin.Registration.Code))
		return rep, nil
	}

	rep.Attempted = true
	if err := s.notifier.SendConfirmation(ctx, fin.Registration); err != nil {
		confirmationTotal.WithLabelValues("failed").Inc()
		s.log.Error("confirmation dispatch failed",
			zap.Uint("registration_id", registrationID),
			zap.String("code", fin.Registration.Code),
			zap.Error(err),
		)
		rep.NotifyErr = err
		return rep, nil
	}
	confirmationTotal.WithLabelValues("sent").Inc()
	rep.Notified = true
	return rep, nil
}

// ResendConfirmation sends the confirmation again for a paid registration.
// The claim flag is left alone.
func (s *PaymentService) ResendConfirmation(ctx context.Context, registrationID uint) error {
	var reg models.Registration
	err := s.db.WithContext(ctx).
		Preload("Children", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&reg, registrationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "load registration")
	}
	if !reg.Paid() {
		return ErrNotPaid
	}
	if err := s.notifier.SendConfirmation(ctx, &reg); err != nil {
		confirmationTotal.WithLabelValues("failed").Inc()
		return errors.Wrap(err, "resend confirmation")
	}
	confirmationTotal.WithLabelValues("resent").Inc()
	s.log.Info("confirmation resent", zap.String("code", reg.Code))
	return nil
}
