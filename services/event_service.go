// services/event_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"event-registration-system/metrics"
	"event-registration-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type TicketInput struct {
	ID             uint              `json:"id,omitempty"`
	Name           string            `json:"name" validate:"required,max=255"`
	Description    string            `json:"description"`
	Price          int64             `json:"price" validate:"min=0"`
	AvailableFrom  time.Time         `json:"availableFrom" validate:"required"`
	AvailableUntil time.Time         `json:"availableUntil" validate:"required"`
	MaxCapacity    int               `json:"maxCapacity" validate:"min=0"`
	Type           models.TicketType `json:"type" validate:"required,oneof=ONLINE ONSITE"`
}

type EventInput struct {
	Title                 string        `json:"title" validate:"required,max=255"`
	Description           string        `json:"description"`
	StartDate             time.Time     `json:"startDate" validate:"required"`
	EndDate               time.Time     `json:"endDate" validate:"required"`
	RegistrationOpenDate  time.Time     `json:"registrationOpenDate" validate:"required"`
	RegistrationCloseDate time.Time     `json:"registrationCloseDate" validate:"required"`
	Location              string        `json:"location" validate:"max=255"`
	ImageURL              string        `json:"imageUrl" validate:"omitempty,url"`
	MaxCapacity           int           `json:"maxCapacity" validate:"min=0"`
	AdminFee              int64         `json:"adminFee" validate:"min=0"`
	CategoryIDs           []uint        `json:"categoryIds"`
	Tickets               []TicketInput `json:"tickets" validate:"dive"`
}

func (in EventInput) check() error {
	if in.EndDate.Before(in.StartDate) {
		return withMessage(ErrValidation, "endDate must not be before startDate")
	}
	if in.RegistrationCloseDate.Before(in.RegistrationOpenDate) {
		return withMessage(ErrValidation, "registrationCloseDate must not be before registrationOpenDate")
	}
	for _, t := range in.Tickets {
		if t.AvailableUntil.Before(t.AvailableFrom) {
			return withMessage(ErrValidation, "Ticket %q availableUntil must not be before availableFrom", t.Name)
		}
	}
	return nil
}

// EventFilter drives the public listing. Status OPEN and CLOSED refer to the
// registration window; ACTIVE and ARCHIVED to the event status.
type EventFilter struct {
	Search      string
	CategoryIDs []uint
	Status      string
}

// EventView is an event plus values computed at read time.
type EventView struct {
	models.Event
	CurrentRegistrations int64 `json:"currentRegistrations"`
	IsRegistrationOpen   bool  `json:"isRegistrationOpen"`
}

type EventService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// NewEventSlug derives a URL slug from the title with a random suffix.
func NewEventSlug(title string) string {
	base := slug.Make(title)
	if base == "" {
		base = "event"
	}
	return base + "-" + uuid.NewString()[:8]
}

func (s *EventService) Create(ctx context.Context, in EventInput) (*models.Event, error) {
	if err := in.check(); err != nil {
		return nil, err
	}

	event := models.Event{
		Slug:   NewEventSlug(in.Title),
		Status: models.EventStatusActive,
	}
	applyEventInput(&event, in)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cats, err := loadCategories(tx, in.CategoryIDs)
		if err != nil {
			return err
		}
		event.Categories = cats

		for _, t := range in.Tickets {
			event.Tickets = append(event.Tickets, ticketFromInput(t))
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("event_id", event.ID).Str("slug", event.Slug).Msg("📅 event created")
	return &event, nil
}

// Update rewrites the event, replaces its categories and reconciles tickets:
// inputs with an id update that ticket, inputs without one are created, and
// tickets missing from the input are removed unless attendees hold them.
func (s *EventService) Update(ctx context.Context, id uint, in EventInput) (*models.Event, error) {
	if err := in.check(); err != nil {
		return nil, err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.Preload("Tickets").First(&event, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		applyEventInput(&event, in)
		if err := tx.Model(&event).Select(
			"title", "description", "start_date", "end_date", "registration_open_date",
			"registration_close_date", "location", "image_url", "max_capacity", "admin_fee",
		).Updates(&event).Error; err != nil {
			return err
		}

		cats, err := loadCategories(tx, in.CategoryIDs)
		if err != nil {
			return err
		}
		if err := tx.Model(&event).Association("Categories").Replace(cats); err != nil {
			return fmt.Errorf("replace categories: %w", err)
		}

		existing := make(map[uint]models.Ticket, len(event.Tickets))
		for _, t := range event.Tickets {
			existing[t.ID] = t
		}
		keep := make(map[uint]bool)
		for _, tin := range in.Tickets {
			t := ticketFromInput(tin)
			t.EventID = event.ID
			if tin.ID != 0 {
				if _, ok := existing[tin.ID]; !ok {
					return withMessage(ErrTicketNotFound, "Ticket with ID %d not found", tin.ID)
				}
				keep[tin.ID] = true
				if err := tx.Model(&models.Ticket{ID: tin.ID}).Select(
					"name", "description", "price", "available_from", "available_until", "max_capacity", "type",
				).Updates(&t).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Create(&t).Error; err != nil {
				return err
			}
		}

		for tid, t := range existing {
			if keep[tid] {
				continue
			}
			var held int64
			if err := tx.Model(&models.Attendee{}).Where("ticket_id = ?", tid).Count(&held).Error; err != nil {
				return err
			}
			if held > 0 {
				return withMessage(ErrTicketInUse, "Ticket %q has %d attendees and cannot be removed", t.Name, held)
			}
			if err := tx.Delete(&models.Ticket{}, tid).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	v, err := s.Get(ctx, strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return nil, err
	}
	return &v.Event, nil
}

func (s *EventService) List(ctx context.Context, f EventFilter) ([]EventView, error) {
	now := s.Now()
	q := s.DB.WithContext(ctx).Model(&models.Event{})

	if term := strings.TrimSpace(f.Search); term != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	if len(f.CategoryIDs) > 0 {
		q = q.Where("id IN (?)", s.DB.Model(&models.EventCategory{}).Select("event_id").Where("category_id IN ?", f.CategoryIDs))
	}
	switch strings.ToUpper(f.Status) {
	case "":
	case "OPEN":
		q = q.Where("registration_open_date <= ? AND registration_close_date >= ?", now, now)
	case "CLOSED":
		q = q.Where("registration_close_date < ?", now)
	case string(models.EventStatusActive), string(models.EventStatusArchived):
		q = q.Where("status = ?", strings.ToUpper(f.Status))
	default:
		return nil, withMessage(ErrValidation, "Invalid status filter %q", f.Status)
	}

	var events []models.Event
	if err := q.Preload("Categories").Preload("Tickets").Preload("Statistics").
		Order("created_at DESC").Order("id DESC").
		Find(&events).Error; err != nil {
		return nil, err
	}

	views := make([]EventView, len(events))
	for i := range events {
		views[i] = s.view(events[i], now)
	}
	return views, nil
}

// Get resolves an event by numeric id or by slug.
func (s *EventService) Get(ctx context.Context, idOrSlug string) (*EventView, error) {
	q := s.DB.WithContext(ctx).Preload("Categories").Preload("Tickets").Preload("Statistics")

	var event models.Event
	var err error
	if id, convErr := strconv.ParseUint(idOrSlug, 10, 64); convErr == nil {
		err = q.First(&event, uint(id)).Error
	} else {
		err = q.Where("slug = ?", idOrSlug).First(&event).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	v := s.view(event, s.Now())
	return &v, nil
}

func (s *EventService) Archive(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	db := s.DB.WithContext(ctx)
	if err := db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	event.Status = models.EventStatusArchived
	if err := db.Model(&event).Update("status", models.EventStatusArchived).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// ArchiveFinished archives active events whose end date has passed.
func (s *EventService) ArchiveFinished(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Event{}).
		Where("status = ? AND end_date < ?", models.EventStatusActive, s.Now()).
		Update("status", models.EventStatusArchived)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		metrics.EventsArchived.Add(float64(res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Delete removes the event and everything hanging off it in one transaction.
func (s *EventService) Delete(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.Select("id").First(&event, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		regIDs := tx.Model(&models.Registration{}).Select("id").Where("event_id = ?", id)
		steps := []struct {
			model interface{}
			query string
			arg   interface{}
		}{
			{&models.Attendee{}, "registration_id IN (?)", regIDs},
			{&models.PaymentGatewayEvent{}, "registration_id IN (?)", regIDs},
			{&models.Registration{}, "event_id = ?", id},
			{&models.EventCategory{}, "event_id = ?", id},
			{&models.Ticket{}, "event_id = ?", id},
			{&models.EventStatistics{}, "event_id = ?", id},
		}
		for _, st := range steps {
			if err := tx.Where(st.query, st.arg).Delete(st.model).Error; err != nil {
				return fmt.Errorf("delete %T: %w", st.model, err)
			}
		}
		if err := tx.Delete(&models.Event{}, id).Error; err != nil {
			return err
		}
		log.Info().Uint("event_id", id).Msg("🗑️ event deleted with its registrations")
		return nil
	})
}

// Statistics returns the event's counters, zero-valued when nothing was paid yet.
func (s *EventService) Statistics(ctx context.Context, id uint) (*models.EventStatistics, error) {
	db := s.DB.WithContext(ctx)
	if err := ensureEvent(db, id); err != nil {
		return nil, err
	}
	var stats models.EventStatistics
	err := db.Where("event_id = ?", id).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.EventStatistics{EventID: id}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *EventService) view(e models.Event, now time.Time) EventView {
	v := EventView{Event: e, IsRegistrationOpen: e.IsRegistrationOpen(now)}
	if e.Statistics != nil {
		v.CurrentRegistrations = e.Statistics.TotalRegistrations
	}
	return v
}

func applyEventInput(e *models.Event, in EventInput) {
	e.Title = strings.TrimSpace(in.Title)
	e.Description = in.Description
	e.StartDate = in.StartDate.UTC()
	e.EndDate = in.EndDate.UTC()
	e.RegistrationOpenDate = in.RegistrationOpenDate.UTC()
	e.RegistrationCloseDate = in.RegistrationCloseDate.UTC()
	e.Location = in.Location
	e.ImageURL = in.ImageURL
	e.MaxCapacity = in.MaxCapacity
	e.AdminFee = in.AdminFee
}

func ticketFromInput(t TicketInput) models.Ticket {
	return models.Ticket{
		Name:           strings.TrimSpace(t.Name),
		Description:    t.Description,
		Price:          t.Price,
		AvailableFrom:  t.AvailableFrom.UTC(),
		AvailableUntil: t.AvailableUntil.UTC(),
		MaxCapacity:    t.MaxCapacity,
		Type:           t.Type,
	}
}

func loadCategories(tx *gorm.DB, ids []uint) ([]models.Category, error) {
	if len(ids) == 0 {
		return []models.Category{}, nil
	}
	var cats []models.Category
	if err := tx.Where("id IN ?", ids).Find(&cats).Error; err != nil {
		return nil, err
	}
	found := make(map[uint]bool, len(cats))
	for _, c := range cats {
		found[c.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, withMessage(ErrCategoryNotFound, "Category with ID %d not found", id)
		}
	}
	return cats, nil
}
