// Package seeds loads catalog fixtures from YAML.
package seeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"event-registration-system/models"
	"event-registration-system/services"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type File struct {
	Categories []Category `yaml:"categories"`
	Events     []Event    `yaml:"events"`
}

type Category struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Event struct {
	Title                 string    `yaml:"title"`
	Description           string    `yaml:"description"`
	Location              string    `yaml:"location"`
	ImageURL              string    `yaml:"imageUrl"`
	StartDate             time.Time `yaml:"startDate"`
	EndDate               time.Time `yaml:"endDate"`
	RegistrationOpenDate  time.Time `yaml:"registrationOpenDate"`
	RegistrationCloseDate time.Time `yaml:"registrationCloseDate"`
	MaxCapacity           int       `yaml:"maxCapacity"`
	AdminFee              int64     `yaml:"adminFee"`
	Categories            []string  `yaml:"categories"`
	Tickets               []Ticket  `yaml:"tickets"`
}

type Ticket struct {
	Name           string    `yaml:"name"`
	Description    string    `yaml:"description"`
	Price          int64     `yaml:"price"`
	Type           string    `yaml:"type"`
	MaxCapacity    int       `yaml:"maxCapacity"`
	AvailableFrom  time.Time `yaml:"availableFrom"`
	AvailableUntil time.Time `yaml:"availableUntil"`
}

// Result counts what a run actually inserted.
type Result struct {
	Categories int
	Events     int
}

func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Apply inserts categories by name and events by title, skipping any that
// already exist, so it can be re-run safely.
func Apply(ctx context.Context, db *gorm.DB, f *File) (Result, error) {
	var res Result
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]models.Category)
		for _, c := range f.Categories {
			var cat models.Category
			err := tx.Where("name = ?", c.Name).First(&cat).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				cat = models.Category{Name: c.Name, Description: c.Description}
				if err := tx.Create(&cat).Error; err != nil {
					return fmt.Errorf("category %q: %w", c.Name, err)
				}
				res.Categories++
			case err != nil:
				return err
			}
			byName[c.Name] = cat
		}

		for _, e := range f.Events {
			var existing int64
			if err := tx.Model(&models.Event{}).Where("title = ?", e.Title).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				log.Debug().Str("title", e.Title).Msg("[SEED] event exists, skipping")
				continue
			}

			ev := models.Event{
				Slug:                  services.NewEventSlug(e.Title),
				Title:                 e.Title,
				Description:           e.Description,
				Location:              e.Location,
				ImageURL:              e.ImageURL,
				StartDate:             e.StartDate.UTC(),
				EndDate:               e.EndDate.UTC(),
				RegistrationOpenDate:  e.RegistrationOpenDate.UTC(),
				RegistrationCloseDate: e.RegistrationCloseDate.UTC(),
				MaxCapacity:           e.MaxCapacity,
				AdminFee:              e.AdminFee,
				Status:                models.EventStatusActive,
			}
			for _, name := range e.Categories {
				cat, ok := byName[name]
				if !ok {
					return fmt.Errorf("event %q references unknown category %q", e.Title, name)
				}
				ev.Categories = append(ev.Categories, cat)
			}
			for _, t := range e.Tickets {
				ev.Tickets = append(ev.Tickets, models.Ticket{
					Name:           t.Name,
					Description:    t.Description,
					Price:          t.Price,
					Type:           models.TicketType(t.Type),
					MaxCapacity:    t.MaxCapacity,
					AvailableFrom:  t.AvailableFrom.UTC(),
					AvailableUntil: t.AvailableUntil.UTC(),
				})
			}
			if err := tx.Create(&ev).Error; err != nil {
				return fmt.Errorf("event %q: %w", e.Title, err)
			}
			res.Events++
		}
		return nil
	})
	return res, err
}
