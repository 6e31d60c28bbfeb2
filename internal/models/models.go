package models

import "time"

const (
	StatusDraft = "draft"
	StatusPaid  = "paid"
)

// Registration is the guardian's record for one checkout.
// Status: "draft" until payment is finalized, then "paid".
type Registration struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Code             string `gorm:"uniqueIndex;not null"` // e.g., VBS-1A2B3C4D
	GuardianName     string `gorm:"not null"`
	Email            string `gorm:"index"`
	Phone            string
	EmergencyContact string

	ConsentAccepted   bool
	ConsentAcceptedAt *time.Time

	Status                string `gorm:"not null;default:draft"` // draft | paid
	StripeSessionID       string
	ConfirmationEmailSent bool  `gorm:"not null;default:false"`
	AmountCents           int64 `gorm:"not null;default:0"`

	Children []Child
}

func (r Registration) Paid() bool { return r.Status == StatusPaid }

type Child struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	RegistrationID uint `gorm:"index;not null"`

	FirstName   string
	LastName    string
	Age         *int   // nil when the parent left it blank
	DateOfBirth string // as entered, normally 2006-01-02
	Gender      string
	Grade       string // free text; canonicalized by the grading scheme
	HomeChurch  bool
	Notes       string

	GroupID *uint `gorm:"index"` // nil = unassigned
}

func (c Child) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type Group struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name      string `gorm:"not null"`
	SortOrder int    `gorm:"not null;default:0"`
}

type Volunteer struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name  string `gorm:"not null"`
	Email string
	Phone string
	Role  string // leader | helper | ...

	GroupID *uint `gorm:"index"`
}
