package domain

import (
	"time"

	"github.com/lib/pq"
)

// Step is a saga position. Steps only move forward.
type Step string

const (
	StepContact     Step = "contact_provisioning"
	StepDNS         Step = "dns_zone_creation"
	StepRegistrar   Step = "registrar_registration"
	StepPersistence Step = "persistence"
	StepCompleted   Step = "completed"
	StepFailed      Step = "failed"
)

var stepOrder = map[Step]int{
	StepContact:     0,
	StepDNS:         1,
	StepRegistrar:   2,
	StepPersistence: 3,
	StepCompleted:   4,
	StepFailed:      4,
}

// Before reports whether s comes strictly before other.
func (s Step) Before(other Step) bool {
	return stepOrder[s] < stepOrder[other]
}

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// State is the persisted progress of one registration. It is written after
// every step, so a crashed run resumes from the last recorded step and
// never repeats a step that already produced an external id.
type State struct {
	OrderID               string         `gorm:"primaryKey"`
	Status                Status         `gorm:"not null"`
	CurrentStep           Step           `gorm:"not null"`
	ContactHandle         *string
	DNSZoneID             *string        `gorm:"column:dns_zone_id"`
	Nameservers           pq.StringArray `gorm:"type:text[]"`
	DNSDegraded           bool           `gorm:"column:dns_degraded;not null;default:false"`
	RegistrarDomainID     *string
	DuplicateRegistration bool `gorm:"not null;default:false"`
	ContactAttempts       int  `gorm:"not null;default:0"`
	DNSAttempts           int  `gorm:"column:dns_attempts;not null;default:0"`
	RegistrarAttempts     int  `gorm:"not null;default:0"`
	PersistAttempts       int  `gorm:"not null;default:0"`
	LastError             *string
	ManualReview          bool `gorm:"not null;default:false"`
	Compensated           bool `gorm:"not null;default:false"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}

func (State) TableName() string { return "saga_states" }

func (s *State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// NeedsCompensation is a failed run whose refund has not committed yet.
func (s *State) NeedsCompensation() bool {
	return s.Status == StatusFailed && !s.Compensated && !s.ManualReview
}

// ContactIdentity is what the registrar needs to create a contact handle.
type ContactIdentity struct {
	FirstName   string
	LastName    string
	Email       string
	Street      string
	HouseNumber string
	City        string
	State       string
	Zipcode     string
	Country     string
	PhoneCode   string
	PhoneArea   string
	PhoneNumber string
	// Private asks the registrar to hide the contact in WHOIS.
	Private bool
}

type Registration struct {
	DomainName    string
	ContactHandle string
	Nameservers   []string
	Years         int
	PrivateWhois  bool
}

type Zone struct {
	ID          string
	Nameservers []string
}

// ListFilter selects saga states for the recovery sweep and operator views.
type ListFilter struct {
	Statuses     []Status
	ManualReview *bool
	Compensated  *bool
	// UpdatedBefore selects runs without a recent heartbeat.
	UpdatedBefore *time.Time
	Limit         int
}

// PrivacyContact is the registrant identity used for every registration.
// Only the email belongs to the customer.
func PrivacyContact(email string) ContactIdentity {
	return ContactIdentity{
		FirstName:   "Domain",
		LastName:    "Privacy",
		Email:       email,
		Street:      "Privacy Street",
		HouseNumber: "1",
		City:        "Las Vegas",
		State:       "NV",
		Zipcode:     "89101",
		Country:     "US",
		PhoneCode:   "+1",
		PhoneArea:   "702",
		PhoneNumber: "5551234",
		Private:     true,
	}
}
