// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"event-registration-system/database"
	"event-registration-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// EventFixture describes a single-ticket event with an open registration window.
type EventFixture struct {
	Event  models.Event
	Ticket models.Ticket
	User   models.User
}

// SeedEvent inserts a user, an event whose registration window contains now, and one ticket.
func SeedEvent(t *testing.T, db *gorm.DB, price int64, capacity int, adminFee int64) EventFixture {
	t.Helper()
	now := time.Now().UTC()

	user := models.User{ID: "user-" + uuid.NewString()[:8], Name: "Budi Santoso", Email: "budi@example.com"}
	require.NoError(t, db.Create(&user).Error)

	event := models.Event{
		Slug:                  "kejuaraan-" + uuid.NewString()[:8],
		Title:                 "Kejuaraan Karate Pelajar",
		StartDate:             now.Add(14 * 24 * time.Hour),
		EndDate:               now.Add(15 * 24 * time.Hour),
		RegistrationOpenDate:  now.Add(-24 * time.Hour),
		RegistrationCloseDate: now.Add(7 * 24 * time.Hour),
		Location:              "GOR Bandung",
		Status:                models.EventStatusActive,
		MaxCapacity:           100,
		AdminFee:              adminFee,
	}
	require.NoError(t, db.Create(&event).Error)

	ticket := models.Ticket{
		EventID:        event.ID,
		Name:           "Kata Perorangan",
		Price:          price,
		AvailableFrom:  event.RegistrationOpenDate,
		AvailableUntil: event.RegistrationCloseDate,
		MaxCapacity:    capacity,
		Type:           models.TicketTypeOnsite,
	}
	require.NoError(t, db.Create(&ticket).Error)

	return EventFixture{Event: event, Ticket: ticket, User: user}
}

// Count returns the number of rows in the model's table.
func Count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
