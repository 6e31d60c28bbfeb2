package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/vbs/internal/models"
)

type VolunteerInput struct {
	Name    string `form:"name" validate:"required,max=120"`
	Email   string `form:"email" validate:"omitempty,email"`
	Phone   string `form:"phone"`
	Role    string `form:"role" validate:"max=40"`
	GroupID *uint  `form:"group_id"`
}

type VolunteerService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewVolunteerService(db *gorm.DB, log *zap.Logger) *VolunteerService {
	return &VolunteerService{db: db, log: log.Named("volunteer")}
}

func (s *VolunteerService) List(ctx context.Context) ([]models.Volunteer, error) {
	var vs []models.Volunteer
	if err := s.db.WithContext(ctx).Order("name asc, id asc").Find(&vs).Error; err != nil {
		return nil, errors.Wrap(err, "list volunteers")
	}
	return vs, nil
}

// cleanVolunteerTx validates and normalizes input inside tx so the group
// check and the write see the same state.
func cleanVolunteerTx(tx *gorm.DB, in VolunteerInput) (models.Volunteer, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return models.Volunteer{}, NewValidationError(errors.New("invalid volunteer"), fieldErrors(err)...)
	}
	v := models.Volunteer{
		Name:    in.Name,
		Role:    strings.TrimSpace(in.Role),
		GroupID: in.GroupID,
	}
	if in.Email != "" {
		v.Email, _ = NormEmail(in.Email)
	}
	if in.Phone != "" {
		if v.Phone = NormPhone(in.Phone); v.Phone == "" {
			return models.Volunteer{}, NewValidationError(errors.New("invalid volunteer"), FieldError{Field: "phone", Error: "phone"})
		}
	}
	if in.GroupID != nil {
		var n int64
		if err := tx.Model(&models.Group{}).Where("id = ?", *in.GroupID).Count(&n).Error; err != nil {
			return models.Volunteer{}, errors.Wrap(err, "check group")
		}
		if n == 0 {
			return models.Volunteer{}, &AssignmentError{UnknownGroupIDs: []uint{*in.GroupID}}
		}
	}
	return v, nil
}

func (s *VolunteerService) Create(ctx context.Context, in VolunteerInput) (*models.Volunteer, error) {
	var v models.Volunteer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if v, err = cleanVolunteerTx(tx, in); err != nil {
			return err
		}
		return tx.Create(&v).Error
	})
	if err != nil {
		if IsValidation(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create volunteer")
	}
	return &v, nil
}

// Update replaces every editable field, group included (nil unassigns).
func (s *VolunteerService) Update(ctx context.Context, id uint, in VolunteerInput) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.Volunteer
		if err := tx.First(&cur, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		v, err := cleanVolunteerTx(tx, in)
		if err != nil {
			return err
		}
		return tx.Model(&cur).Select("name", "email", "phone", "role", "group_id").Updates(&v).Error
	})
	if err != nil && !IsValidation(err) && !IsNotFound(err) {
		return errors.Wrapf(err, "update volunteer %d", id)
	}
	return err
}

func (s *VolunteerService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Volunteer{}, id)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete volunteer %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
