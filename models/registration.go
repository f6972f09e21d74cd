package models

import (
	"time"

	"gorm.io/datatypes"
)

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "PENDING"
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentOnline  PaymentMethod = "ONLINE"
	PaymentOffline PaymentMethod = "OFFLINE"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

type AgeCategory string

const (
	AgeTK  AgeCategory = "TK"
	AgeSD  AgeCategory = "SD"
	AgeSMP AgeCategory = "SMP"
	AgeSMA AgeCategory = "SMA"
)

type BeltLevel string

const (
	BeltDasar BeltLevel = "DASAR"
	BeltMC1   BeltLevel = "MC_I"
	BeltMC2   BeltLevel = "MC_II"
	BeltMC3   BeltLevel = "MC_III"
	BeltMC4   BeltLevel = "MC_IV"
)

// Registration is one checkout for an Event. TotalAmount is fixed at creation.
type Registration struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	EventID            uint               `gorm:"not null;index" json:"eventId"`
	UserID             string             `gorm:"size:64;not null;index" json:"userId"`
	RegistrationNumber string             `gorm:"size:64;uniqueIndex;not null" json:"registrationNumber"`
	Status             RegistrationStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	PaymentStatus      PaymentStatus      `gorm:"size:16;not null;default:PENDING;index" json:"paymentStatus"`
	PaymentMethod      PaymentMethod      `gorm:"size:16;not null" json:"paymentMethod"`
	TotalAmount        int64              `gorm:"not null" json:"totalAmount"`
	AdminFee           int64              `gorm:"not null;default:0" json:"adminFee"`
	PaymentID          *string            `gorm:"size:128;index" json:"paymentId,omitempty"`
	PaymentURL         string             `gorm:"size:1024" json:"paymentUrl,omitempty"`

	Event     *Event     `gorm:"foreignKey:EventID" json:"event,omitempty"`
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Attendees []Attendee `gorm:"foreignKey:RegistrationID" json:"attendees,omitempty"`

	Timestamps
}

type Attendee struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	RegistrationID uint        `gorm:"not null;index" json:"registrationId"`
	TicketID       uint        `gorm:"not null;index" json:"ticketId"`
	FullName       string      `gorm:"size:255;not null" json:"fullName"`
	Gender         Gender      `gorm:"size:16;not null" json:"gender"`
	AgeCategory    AgeCategory `gorm:"size:8;not null;index" json:"ageCategory"`
	BeltLevel      BeltLevel   `gorm:"size:8;not null;index" json:"beltLevel"`
	PhoneNumber    string      `gorm:"size:32" json:"phoneNumber"`
	BiodataURL     string      `gorm:"size:1024" json:"biodataUrl,omitempty"`
	ConsentURL     string      `gorm:"size:1024" json:"consentUrl,omitempty"`

	Ticket *Ticket `gorm:"foreignKey:TicketID" json:"ticket,omitempty"`

	Timestamps
}

// PaymentGatewayEvent records each gateway notification that changed state.
// (provider, external_id, outcome) is unique, which makes redelivery a no-op.
type PaymentGatewayEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Provider       string         `gorm:"size:32;not null;uniqueIndex:idx_gateway_event_dedupe" json:"provider"`
	ExternalID     string         `gorm:"size:128;not null;uniqueIndex:idx_gateway_event_dedupe" json:"externalId"`
	Outcome        string         `gorm:"size:16;not null;uniqueIndex:idx_gateway_event_dedupe" json:"outcome"`
	RawStatus      string         `gorm:"size:64" json:"rawStatus"`
	RegistrationID uint           `gorm:"index" json:"registrationId"`
	Payload        datatypes.JSON `json:"payload,omitempty"`
	ReceivedAt     time.Time      `gorm:"not null" json:"receivedAt"`
}
