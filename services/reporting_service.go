// services/reporting_service.go
package services

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"

	"event-registration-system/models"

	"gorm.io/gorm"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// RegistrationFilter narrows an event's registration listing. Attendee filters
// keep registrations with at least one matching attendee and only those attendees.
type RegistrationFilter struct {
	AgeCategory   models.AgeCategory
	BeltLevel     models.BeltLevel
	Status        models.RegistrationStatus
	PaymentStatus models.PaymentStatus
	Page          int
	Limit         int
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type RegistrationPage struct {
	Registrations []models.Registration `json:"registrations"`
	Pagination    Pagination            `json:"pagination"`
}

type ReportingService struct {
	DB *gorm.DB
}

func NewReportingService(db *gorm.DB) *ReportingService {
	return &ReportingService{DB: db}
}

// NormalizePage clamps page and limit to sane values.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// TotalPages is ceil(total/limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

func (s *ReportingService) ListEventRegistrations(ctx context.Context, eventID uint, f RegistrationFilter) (*RegistrationPage, error) {
	db := s.DB.WithContext(ctx)
	if err := ensureEvent(db, eventID); err != nil {
		return nil, err
	}

	page, limit := NormalizePage(f.Page, f.Limit)

	base := func() *gorm.DB {
		q := db.Model(&models.Registration{}).Where("registrations.event_id = ?", eventID)
		if f.Status != "" {
			q = q.Where("registrations.status = ?", f.Status)
		}
		if f.PaymentStatus != "" {
			q = q.Where("registrations.payment_status = ?", f.PaymentStatus)
		}
		if f.AgeCategory != "" || f.BeltLevel != "" {
			q = q.Where("registrations.id IN (?)", attendeeFilter(db.Model(&models.Attendee{}).Select("registration_id"), f))
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}

	regs := make([]models.Registration, 0, limit)
	err := base().
		Preload("User").
		Preload("Attendees", func(q *gorm.DB) *gorm.DB {
			return attendeeFilter(q, f).Order("attendees.id")
		}).
		Preload("Attendees.Ticket").
		Order("registrations.created_at DESC").
		Order("registrations.id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&regs).Error
	if err != nil {
		return nil, err
	}

	return &RegistrationPage{
		Registrations: regs,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: TotalPages(total, limit),
		},
	}, nil
}

func attendeeFilter(q *gorm.DB, f RegistrationFilter) *gorm.DB {
	if f.AgeCategory != "" {
		q = q.Where("attendees.age_category = ?", f.AgeCategory)
	}
	if f.BeltLevel != "" {
		q = q.Where("attendees.belt_level = ?", f.BeltLevel)
	}
	return q
}

var csvHeader = []string{
	"Registration Number",
	"User Name",
	"User Email",
	"Full Name",
	"Gender",
	"Age Category",
	"Belt Level",
	"Phone Number",
	"Ticket Type",
	"Registration Status",
	"Payment Status",
	"Registration Date",
}

// ExportRegistrationsCSV writes one header row and one row per attendee of the event.
// It returns the number of data rows written.
func (s *ReportingService) ExportRegistrationsCSV(ctx context.Context, eventID uint, w io.Writer) (int, error) {
	db := s.DB.WithContext(ctx)
	if err := ensureEvent(db, eventID); err != nil {
		return 0, err
	}

	var regs []models.Registration
	if err := db.Where("event_id = ?", eventID).
		Preload("User").
		Preload("Attendees", func(q *gorm.DB) *gorm.DB { return q.Order("attendees.id") }).
		Preload("Attendees.Ticket").
		Order("created_at").
		Order("id").
		Find(&regs).Error; err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}

	rows := 0
	for _, r := range regs {
		var userName, userEmail string
		if r.User != nil {
			userName, userEmail = r.User.Name, r.User.Email
		}
		for _, a := range r.Attendees {
			ticketName := ""
			if a.Ticket != nil {
				ticketName = a.Ticket.Name
			}
			record := []string{
				r.RegistrationNumber,
				userName,
				userEmail,
				a.FullName,
				string(a.Gender),
				string(a.AgeCategory),
				string(a.BeltLevel),
				a.PhoneNumber,
				ticketName,
				string(r.Status),
				string(r.PaymentStatus),
				r.CreatedAt.UTC().Format(time.DateOnly),
			}
			if err := cw.Write(record); err != nil {
				return rows, err
			}
			rows++
		}
	}
	cw.Flush()
	return rows, cw.Error()
}

// ExportFilename is the attachment name used for an event's CSV export.
func ExportFilename(eventID uint) string {
	return "event-" + strconv.FormatUint(uint64(eventID), 10) + "-registrations.csv"
}

func ensureEvent(db *gorm.DB, eventID uint) error {
	var event models.Event
	if err := db.Select("id").First(&event, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEventNotFound
		}
		return err
	}
	return nil
}
