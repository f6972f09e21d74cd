package models

import (
	"time"
)

type EventStatus string

const (
	EventStatusActive   EventStatus = "ACTIVE"
	EventStatusArchived EventStatus = "ARCHIVED"
)

type TicketType string

const (
	TicketTypeOnline TicketType = "ONLINE"
	TicketTypeOnsite TicketType = "ONSITE"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Timestamps
}

// Event is an admin-managed occasion people register for. Money is in minor units.
type Event struct {
	ID                    uint        `gorm:"primaryKey" json:"id"`
	Slug                  string      `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Title                 string      `gorm:"size:255;not null" json:"title"`
	Description           string      `gorm:"type:text" json:"description"`
	StartDate             time.Time   `gorm:"not null" json:"startDate"`
	EndDate               time.Time   `gorm:"not null" json:"endDate"`
	RegistrationOpenDate  time.Time   `gorm:"not null" json:"registrationOpenDate"`
	RegistrationCloseDate time.Time   `gorm:"not null" json:"registrationCloseDate"`
	Location              string      `gorm:"size:255" json:"location"`
	ImageURL              string      `gorm:"size:1024" json:"imageUrl,omitempty"`
	Status                EventStatus `gorm:"size:16;not null;default:ACTIVE;index" json:"status"`
	MaxCapacity           int         `gorm:"not null;default:0" json:"maxCapacity"`
	AdminFee              int64       `gorm:"not null;default:0" json:"adminFee"`

	Tickets    []Ticket         `gorm:"foreignKey:EventID" json:"tickets,omitempty"`
	Categories []Category       `gorm:"many2many:event_categories" json:"categories,omitempty"`
	Statistics *EventStatistics `gorm:"foreignKey:EventID" json:"statistics,omitempty"`

	Timestamps
}

// IsRegistrationOpen reports whether at falls inside the inclusive registration window.
func (e *Event) IsRegistrationOpen(at time.Time) bool {
	return !at.Before(e.RegistrationOpenDate) && !at.After(e.RegistrationCloseDate)
}

// EventCategory is the join row behind Event.Categories.
type EventCategory struct {
	EventID    uint `gorm:"primaryKey"`
	CategoryID uint `gorm:"primaryKey"`
}

type Ticket struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	EventID        uint       `gorm:"not null;index" json:"eventId"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	Description    string     `gorm:"type:text" json:"description"`
	Price          int64      `gorm:"not null;default:0" json:"price"`
	AvailableFrom  time.Time  `json:"availableFrom"`
	AvailableUntil time.Time  `json:"availableUntil"`
	MaxCapacity    int        `gorm:"not null;default:0" json:"maxCapacity"`
	Type           TicketType `gorm:"size:16;not null;default:ONLINE" json:"type"`
	Timestamps
}

// EventStatistics is a counter cache maintained additively by payment confirmation.
type EventStatistics struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	EventID            uint      `gorm:"not null;uniqueIndex" json:"eventId"`
	TotalRevenue       int64     `gorm:"not null;default:0" json:"totalRevenue"`
	TotalRegistrations int64     `gorm:"not null;default:0" json:"totalRegistrations"`
	LastUpdated        time.Time `json:"lastUpdated"`
}
