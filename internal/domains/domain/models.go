package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

type Status string

const (
	StatusActive Status = "active"
)

// RegisteredDomain is a domain bought at the registrar. One row per domain
// name; the persistence step writes it together with the order completion.
type RegisteredDomain struct {
	ID                snowflake.ID   `gorm:"primaryKey"`
	DomainName        string         `gorm:"not null;uniqueIndex"`
	OwnerID           string         `gorm:"not null;index"`
	OrderID           string         `gorm:"not null;index"`
	RegistrarDomainID string         `gorm:"not null"`
	DNSZoneID         *string        `gorm:"column:dns_zone_id"`
	Nameservers       pq.StringArray `gorm:"type:text[]"`
	DNSDegraded       bool           `gorm:"column:dns_degraded;not null;default:false"`
	Status            Status         `gorm:"not null"`
	RegisteredAt      time.Time      `gorm:"not null"`
	ExpiresAt         time.Time      `gorm:"not null"`
	CreatedAt         time.Time      `gorm:"not null"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

func (RegisteredDomain) TableName() string { return "registered_domains" }
