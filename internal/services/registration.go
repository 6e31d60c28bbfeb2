package services

import (
	"context"
	"encoding/hex"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/vbs/internal/models"
)

const MaxChildren = 10

type ChildInput struct {
	FirstName   string `form:"first_name" validate:"required,max=80"`
	LastName    string `form:"last_name" validate:"required,max=80"`
	Age         *int   `form:"age" validate:"omitempty,min=1,max=18"`
	DateOfBirth string `form:"dob" validate:"omitempty,datetime=2006-01-02"`
	Gender      string `form:"gender" validate:"max=20"`
	Grade       string `form:"grade" validate:"required,max=40"`
	HomeChurch  bool   `form:"home_church"`
	Notes       string `form:"notes" validate:"max=500"`
}

type RegistrationInput struct {
	GuardianName     string       `form:"guardian_name" validate:"required,max=120"`
	Email            string       `form:"email" validate:"required,email"`
	Phone            string       `form:"phone" validate:"required"`
	EmergencyContact string       `form:"emergency_contact" validate:"max=200"`
	ConsentAccepted  bool         `form:"consent" validate:"required"`
	Children         []ChildInput `form:"children" validate:"min=1,max=10,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	return v
}

// fieldErrors turns validator output into FieldErrors keyed by form name,
// e.g. "children[1].grade".
func fieldErrors(err error) []FieldError {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil
	}
	out := make([]FieldError, 0, len(ves))
	for _, fe := range ves {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		out = append(out, FieldError{Field: ns, Error: fe.Tag()})
	}
	return out
}

type RegistrationService struct {
	db                 *gorm.DB
	pricePerChildCents int64
	log                *zap.Logger
}

func NewRegistrationService(db *gorm.DB, pricePerChildCents int64, log *zap.Logger) *RegistrationService {
	return &RegistrationService{db: db, pricePerChildCents: pricePerChildCents, log: log.Named("registration")}
}

func (s *RegistrationService) PricePerChildCents() int64 { return s.pricePerChildCents }

// GenerateCode returns a VBS-XXXXXXXX code (uppercase hex).
func GenerateCode() string {
	u := uuid.New()
	return "VBS-" + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// CreateDraft validates the form and stores a draft registration with its
// children. Payment happens afterwards through checkout.
func (s *RegistrationService) CreateDraft(ctx context.Context, in RegistrationInput) (*models.Registration, error) {
	in.GuardianName = strings.TrimSpace(in.GuardianName)
	in.Email = strings.TrimSpace(in.Email)
	for i := range in.Children {
		c := &in.Children[i]
		c.FirstName = strings.TrimSpace(c.FirstName)
		c.LastName = strings.TrimSpace(c.LastName)
		c.Grade = strings.TrimSpace(c.Grade)
		c.DateOfBirth = strings.TrimSpace(c.DateOfBirth)
	}
	if err := validate.Struct(in); err != nil {
		return nil, NewValidationError(errors.New("invalid registration"), fieldErrors(err)...)
	}

	phone := NormPhone(in.Phone)
	if phone == "" {
		return nil, NewValidationError(errors.New("invalid registration"), FieldError{Field: "phone", Error: "phone"})
	}
	email, ok := NormEmail(in.Email)
	if !ok {
		return nil, NewValidationError(errors.New("invalid registration"), FieldError{Field: "email", Error: "email"})
	}

	now := time.Now()
	reg := models.Registration{
		GuardianName:      in.GuardianName,
		Email:             email,
		Phone:             phone,
		EmergencyContact:  strings.TrimSpace(in.EmergencyContact),
		ConsentAccepted:   true,
		ConsentAcceptedAt: &now,
		Status:            models.StatusDraft,
		AmountCents:       int64(len(in.Children)) * s.pricePerChildCents,
	}
	for _, c := range in.Children {
		reg.Children = append(reg.Children, models.Child{
			FirstName:   c.FirstName,
			LastName:    c.LastName,
			Age:         c.Age,
			DateOfBirth: c.DateOfBirth,
			Gender:      normGender(c.Gender),
			Grade:       c.Grade,
			HomeChurch:  c.HomeChurch,
			Notes:       strings.TrimSpace(c.Notes),
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := uniqueCodeTx(tx)
		if err != nil {
			return err
		}
		reg.Code = code
		return tx.Create(&reg).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "create draft registration")
	}
	s.log.Info("draft registration created",
		zap.Uint("registration_id", reg.ID),
		zap.String("code", reg.Code),
		zap.Int("children", len(reg.Children)),
	)
	return &reg, nil
}

func uniqueCodeTx(tx *gorm.DB) (string, error) {
	for i := 0; i < 5; i++ {
		code := GenerateCode()
		var n int64
		if err := tx.Model(&models.Registration{}).Where("code = ?", code).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique registration code")
}

func normGender(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "boy":
		return "M"
	case "f", "female", "girl":
		return "F"
	}
	return ""
}

// AttachSession records the checkout session created for a draft. Paid
// registrations keep the session id they were finalized with.
func (s *RegistrationService) AttachSession(ctx context.Context, id uint, sessionID string) error {
	res := s.db.WithContext(ctx).Model(&models.Registration{}).
		Where("id = ? AND status = ?", id, models.StatusDraft).
		Update("stripe_session_id", sessionID)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "attach session to %d", id)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Registration{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return errors.Wrap(err, "lookup registration")
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func withChildren(db *gorm.DB) *gorm.DB {
	return db.Preload("Children", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") })
}

func (s *RegistrationService) Get(ctx context.Context, id uint) (*models.Registration, error) {
	var reg models.Registration
	if err := withChildren(s.db.WithContext(ctx)).First(&reg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get registration")
	}
	return &reg, nil
}

func (s *RegistrationService) GetByCode(ctx context.Context, code string) (*models.Registration, error) {
	var reg models.Registration
	err := withChildren(s.db.WithContext(ctx)).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get registration by code")
	}
	return &reg, nil
}

// List returns registrations newest first; status "" means all.
func (s *RegistrationService) List(ctx context.Context, status string) ([]models.Registration, error) {
	q := withChildren(s.db.WithContext(ctx)).Order("created_at desc, id desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var regs []models.Registration
	if err := q.Find(&regs).Error; err != nil {
		return nil, errors.Wrap(err, "list registrations")
	}
	return regs, nil
}

// FindByPhone tries the stored format variants first, then a digits-only
// compare so "(555) 123-4567" finds "+15551234567".
func (s *RegistrationService) FindByPhone(ctx context.Context, phone string) ([]models.Registration, error) {
	db := withChildren(s.db.WithContext(ctx)).Order("created_at desc, id desc")

	var regs []models.Registration
	if cands := altPhones(phone); len(cands) > 0 {
		if err := db.Where("phone IN ?", cands).Find(&regs).Error; err != nil {
			return nil, errors.Wrap(err, "find by phone")
		}
		if len(regs) > 0 {
			return regs, nil
		}
	}

	digits := digitsOnly(phone)
	if digits == "" {
		return nil, nil
	}
	q := `REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(phone,'+',''),' ',''),'-',''),'(',''),')','')`
	if err := db.Where(q+" IN ?", []string{digits, "1" + digits}).Find(&regs).Error; err != nil {
		return nil, errors.Wrap(err, "find by phone digits")
	}
	return regs, nil
}
