// services/payment_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"event-registration-system/broker"
	"event-registration-system/metrics"
	"event-registration-system/models"
	"event-registration-system/payments"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	msgPaymentConfirmed = "Payment confirmed successfully"
	msgPaymentFailed    = "Payment failed"
	msgAlreadyProcessed = "Payment already processed"
)

// CallbackResult is what the gateway gets back after a notification.
type CallbackResult struct {
	Outcome        payments.Outcome `json:"-"`
	Applied        bool             `json:"-"`
	RegistrationID uint             `json:"-"`
	Message        string           `json:"message"`
}

// PaymentService applies gateway outcomes to registrations.
type PaymentService struct {
	DB        *gorm.DB
	Gateway   payments.Gateway
	Publisher broker.Publisher
	Now       func() time.Time
}

func NewPaymentService(db *gorm.DB, gateway payments.Gateway, publisher broker.Publisher) *PaymentService {
	if publisher == nil {
		publisher = broker.Noop{}
	}
	return &PaymentService{
		DB:        db,
		Gateway:   gateway,
		Publisher: publisher,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleNotification verifies and applies an asynchronous gateway callback.
// Invalid signatures and unknown transactions change nothing. Unrecognised
// statuses are acknowledged without any write.
func (s *PaymentService) HandleNotification(ctx context.Context, n payments.Notification) (*CallbackResult, error) {
	provider := s.Gateway.Name()

	if !s.Gateway.VerifyNotification(n) {
		metrics.PaymentCallbacks.WithLabelValues(provider, "invalid_signature").Inc()
		log.Warn().Str("provider", provider).Str("transaction_id", n.TransactionID).Msg("[CALLBACK] 🚫 invalid signature")
		return nil, ErrInvalidSignature
	}

	outcome := s.Gateway.Classify(n)
	if outcome == payments.OutcomeUnknown {
		metrics.PaymentCallbacks.WithLabelValues(provider, "unhandled").Inc()
		log.Info().Str("provider", provider).Str("transaction_id", n.TransactionID).Str("status", n.Status).
			Msg("[CALLBACK] unhandled status")
		return &CallbackResult{Outcome: outcome, Message: "Unhandled status: " + n.Status}, nil
	}

	res, err := s.apply(ctx, n.TransactionID, outcome, n.Status, n.Payload)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrRegistrationMissing) {
			result = "not_found"
		}
		metrics.PaymentCallbacks.WithLabelValues(provider, result).Inc()
		return nil, err
	}

	result := string(outcome)
	if !res.Applied {
		result = "duplicate"
	}
	metrics.PaymentCallbacks.WithLabelValues(provider, result).Inc()
	return res, nil
}

// apply moves the registration holding externalID to the outcome's state.
// The gateway event insert is the deduplication point: a second delivery of the
// same outcome finds the row already present and changes nothing.
func (s *PaymentService) apply(ctx context.Context, externalID string, outcome payments.Outcome, rawStatus string, payload []byte) (*CallbackResult, error) {
	db := s.DB.WithContext(ctx)

	var reg models.Registration
	if err := db.Where("payment_id = ?", externalID).First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("transaction_id", externalID).Msg("[CALLBACK] registration not found")
			return nil, ErrRegistrationMissing
		}
		return nil, err
	}

	now := s.Now()
	res := &CallbackResult{Outcome: outcome, RegistrationID: reg.ID}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reg, reg.ID).Error; err != nil {
			return err
		}

		evt := models.PaymentGatewayEvent{
			Provider:       s.Gateway.Name(),
			ExternalID:     externalID,
			Outcome:        string(outcome),
			RawStatus:      rawStatus,
			RegistrationID: reg.ID,
			ReceivedAt:     now,
		}
		if len(payload) > 0 && json.Valid(payload) {
			evt.Payload = datatypes.JSON(payload)
		}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&evt)
		if ins.Error != nil {
			return fmt.Errorf("record gateway event: %w", ins.Error)
		}
		if ins.RowsAffected == 0 {
			res.Message = msgAlreadyProcessed
			return nil
		}

		switch outcome {
		case payments.OutcomeSuccess:
			if reg.PaymentStatus == models.PaymentPaid {
				res.Message = msgAlreadyProcessed
				return nil
			}
			reg.PaymentStatus = models.PaymentPaid
			reg.Status = models.RegistrationConfirmed
			if err := tx.Model(&reg).Updates(map[string]interface{}{
				"payment_status": reg.PaymentStatus,
				"status":         reg.Status,
			}).Error; err != nil {
				return err
			}
			if err := addToStatistics(tx, reg.EventID, reg.TotalAmount, now); err != nil {
				return fmt.Errorf("update event statistics: %w", err)
			}
			res.Applied = true
			res.Message = msgPaymentConfirmed

		case payments.OutcomeFailure:
			if reg.PaymentStatus == models.PaymentPaid {
				res.Message = msgAlreadyProcessed
				return nil
			}
			reg.PaymentStatus = models.PaymentFailed
			reg.Status = models.RegistrationCancelled
			if err := tx.Model(&reg).Updates(map[string]interface{}{
				"payment_status": reg.PaymentStatus,
				"status":         reg.Status,
			}).Error; err != nil {
				return err
			}
			res.Applied = true
			res.Message = msgPaymentFailed
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("transaction_id", externalID).Msg("[CALLBACK] ❌ failed to apply outcome")
		return nil, err
	}

	if res.Applied {
		msgType := broker.RegistrationConfirmed
		if outcome == payments.OutcomeFailure {
			msgType = broker.RegistrationCancelled
		}
		publishRegistration(ctx, s.Publisher, msgType, &reg, now)
		log.Info().Uint("registration_id", reg.ID).Str("outcome", string(outcome)).Msg("[CALLBACK] ✅ " + res.Message)
	}
	return res, nil
}

// ReconcilePending asks the gateway about online registrations that have been
// waiting longer than olderThan and applies any final outcome. Gateways that
// cannot be polled are skipped. It returns how many registrations changed.
func (s *PaymentService) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	checker, ok := s.Gateway.(payments.StatusChecker)
	if !ok {
		return 0, nil
	}

	cutoff := s.Now().Add(-olderThan)
	var pending []models.Registration
	if err := s.DB.WithContext(ctx).
		Where("payment_method = ? AND payment_status = ? AND status = ? AND payment_id IS NOT NULL AND created_at <= ?",
			models.PaymentOnline, models.PaymentPending, models.RegistrationPending, cutoff).
		Order("created_at").
		Limit(100).
		Find(&pending).Error; err != nil {
		return 0, err
	}

	changed := 0
	for _, reg := range pending {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		outcome, raw, err := checker.TransactionStatus(ctx, *reg.PaymentID)
		if err != nil {
			log.Warn().Err(err).Uint("registration_id", reg.ID).Msg("[RECONCILE] status check failed")
			continue
		}
		if outcome == payments.OutcomeUnknown {
			continue
		}

		payload, _ := json.Marshal(map[string]string{"source": "poll", "status": raw})
		res, err := s.apply(ctx, *reg.PaymentID, outcome, raw, payload)
		if err != nil {
			log.Warn().Err(err).Uint("registration_id", reg.ID).Msg("[RECONCILE] apply failed")
			continue
		}
		if res.Applied {
			changed++
		}
	}
	return changed, nil
}
