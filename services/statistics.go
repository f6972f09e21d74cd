package services

import (
	"context"
	"time"

	"event-registration-system/broker"
	"event-registration-system/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// addToStatistics inserts the event's counter row or adds to it in one statement.
func addToStatistics(tx *gorm.DB, eventID uint, amount int64, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_revenue":       gorm.Expr("event_statistics.total_revenue + ?", amount),
			"total_registrations": gorm.Expr("event_statistics.total_registrations + ?", 1),
			"last_updated":        now,
		}),
	}).Create(&models.EventStatistics{
		EventID:            eventID,
		TotalRevenue:       amount,
		TotalRegistrations: 1,
		LastUpdated:        now,
	}).Error
}

// subtractFromStatistics reverses addToStatistics for a registration leaving PAID.
func subtractFromStatistics(tx *gorm.DB, eventID uint, amount int64, now time.Time) error {
	return tx.Model(&models.EventStatistics{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"total_revenue":       gorm.Expr("total_revenue - ?", amount),
			"total_registrations": gorm.Expr("total_registrations - ?", 1),
			"last_updated":        now,
		}).Error
}

// publishRegistration sends a lifecycle message. Delivery is best effort and
// never fails the operation that triggered it.
func publishRegistration(ctx context.Context, pub broker.Publisher, msgType string, reg *models.Registration, now time.Time) {
	if pub == nil {
		return
	}
	msg := broker.RegistrationMessage{
		Type:               msgType,
		RegistrationID:     reg.ID,
		RegistrationNumber: reg.RegistrationNumber,
		EventID:            reg.EventID,
		UserID:             reg.UserID,
		Status:             string(reg.Status),
		PaymentStatus:      string(reg.PaymentStatus),
		TotalAmount:        reg.TotalAmount,
		OccurredAt:         now,
	}
	if err := pub.Publish(ctx, msg); err != nil {
		log.Warn().Err(err).Str("type", msgType).Uint("registration_id", reg.ID).Msg("failed to publish registration message")
	}
}
