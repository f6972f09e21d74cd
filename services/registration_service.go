// services/registration_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"event-registration-system/broker"
	"event-registration-system/metrics"
	"event-registration-system/models"
	"event-registration-system/payments"
	"event-registration-system/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TicketSelection struct {
	TicketID uint `json:"ticketId" validate:"required"`
	Quantity int  `json:"quantity" validate:"required,min=1,max=100"`
}

type AttendeeInput struct {
	FullName    string             `json:"fullName" validate:"required,max=255"`
	Gender      models.Gender      `json:"gender" validate:"required,oneof=MALE FEMALE"`
	AgeCategory models.AgeCategory `json:"ageCategory" validate:"required,oneof=TK SD SMP SMA"`
	BeltLevel   models.BeltLevel   `json:"beltLevel" validate:"required,oneof=DASAR MC_I MC_II MC_III MC_IV"`
	PhoneNumber string             `json:"phoneNumber" validate:"required,max=32"`
	BiodataURL  string             `json:"biodataUrl" validate:"omitempty,url"`
	ConsentURL  string             `json:"consentUrl" validate:"omitempty,url"`
	// TicketID is only honoured when attendees are added to an existing registration.
	TicketID uint `json:"ticketId,omitempty"`
}

type CreateRegistrationInput struct {
	EventID          uint
	UserID           string
	TicketSelections []TicketSelection
	Attendees        []AttendeeInput
	PaymentMethod    models.PaymentMethod
}

type RegistrationResult struct {
	RegistrationID       uint   `json:"registrationId"`
	RegistrationNumber   string `json:"registrationNumber"`
	PaymentURL           string `json:"paymentUrl,omitempty"`
	TotalAmount          int64  `json:"totalAmount"`
	TotalAmountFormatted string `json:"totalAmountFormatted"`
}

type RegistrationService struct {
	DB        *gorm.DB
	Gateway   payments.Gateway
	Publisher broker.Publisher
	AppURL    string
	Now       func() time.Time
}

func NewRegistrationService(db *gorm.DB, gateway payments.Gateway, publisher broker.Publisher, appURL string) *RegistrationService {
	if publisher == nil {
		publisher = broker.Noop{}
	}
	return &RegistrationService{
		DB:        db,
		Gateway:   gateway,
		Publisher: publisher,
		AppURL:    strings.TrimRight(appURL, "/"),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewRegistrationNumber returns REG-<unix millis>-<8 upper-case hex chars>.
func NewRegistrationNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("REG-%d-%s", now.UnixMilli(), suffix)
}

// CreateRegistration validates availability, persists the registration with its
// attendees and, for paid online checkouts, opens a gateway transaction. Every
// step runs in one database transaction; any failure leaves nothing behind.
func (s *RegistrationService) CreateRegistration(ctx context.Context, in CreateRegistrationInput) (*RegistrationResult, error) {
	if len(in.TicketSelections) == 0 {
		return nil, withMessage(ErrValidation, "At least one ticket must be selected")
	}
	if len(in.Attendees) == 0 {
		return nil, withMessage(ErrValidation, "At least one attendee is required")
	}
	if in.PaymentMethod != models.PaymentOnline && in.PaymentMethod != models.PaymentOffline {
		return nil, withMessage(ErrValidation, "Invalid payment method")
	}

	now := s.Now()
	var reg models.Registration

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.First(&event, in.EventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		if !event.IsRegistrationOpen(now) {
			return ErrRegistrationClosed
		}

		tickets, err := lockTickets(tx, event.ID, selectionIDs(in.TicketSelections))
		if err != nil {
			return err
		}

		requested := make(map[uint]int)
		for _, sel := range in.TicketSelections {
			requested[sel.TicketID] += sel.Quantity
		}
		for id, qty := range requested {
			if err := checkCapacity(tx, tickets[id], qty); err != nil {
				return err
			}
		}

		var total int64
		for _, sel := range in.TicketSelections {
			total += tickets[sel.TicketID].Price * int64(sel.Quantity)
		}
		total += event.AdminFee

		reg = models.Registration{
			EventID:            event.ID,
			UserID:             in.UserID,
			RegistrationNumber: NewRegistrationNumber(now),
			Status:             models.RegistrationPending,
			PaymentStatus:      models.PaymentPending,
			PaymentMethod:      in.PaymentMethod,
			TotalAmount:        total,
			AdminFee:           event.AdminFee,
		}
		if err := tx.Create(&reg).Error; err != nil {
			return fmt.Errorf("create registration: %w", err)
		}

		attendees := make([]models.Attendee, len(in.Attendees))
		for i, a := range in.Attendees {
			sel := in.TicketSelections[i%len(in.TicketSelections)]
			attendees[i] = newAttendee(reg.ID, sel.TicketID, a)
		}
		if err := tx.Create(&attendees).Error; err != nil {
			return fmt.Errorf("create attendees: %w", err)
		}
		reg.Attendees = attendees

		if in.PaymentMethod == models.PaymentOnline && total > 0 {
			return s.openTransaction(ctx, tx, &reg, &event, reg.RegistrationNumber, in.Attendees[0].PhoneNumber)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Uint("event_id", in.EventID).Str("user_id", in.UserID).Msg("[REGISTRATION] ❌ registration rejected")
		return nil, err
	}

	metrics.RegistrationsCreated.WithLabelValues(string(reg.PaymentMethod)).Inc()
	publishRegistration(ctx, s.Publisher, broker.RegistrationCreated, &reg, now)
	log.Info().
		Uint("registration_id", reg.ID).
		Str("number", reg.RegistrationNumber).
		Int64("total", reg.TotalAmount).
		Str("method", string(reg.PaymentMethod)).
		Msg("[REGISTRATION] ✅ registration created")

	return toResult(&reg), nil
}

// retryOrderID gives every checkout retry its own gateway order id, since
// providers such as Midtrans reject an order id they have already seen.
func retryOrderID(registrationNumber string) string {
	return registrationNumber + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// openTransaction creates the gateway transaction for reg and stores its id and URL.
// It must run inside the caller's transaction so a gateway failure rolls back the registration.
func (s *RegistrationService) openTransaction(ctx context.Context, tx *gorm.DB, reg *models.Registration, event *models.Event, orderID, phone string) error {
	if s.Gateway == nil {
		return withMessage(ErrGateway, "Online payment is not configured")
	}

	var user models.User
	if err := tx.First(&user, "id = ?", reg.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	txn, err := s.Gateway.CreateTransaction(ctx, payments.TransactionRequest{
		OrderID:     orderID,
		Description: "Event Registration: " + event.Title,
		Note:        "Registration for " + event.Title,
		Amount:      reg.TotalAmount,
		PayerName:   user.Name,
		PayerEmail:  user.Email,
		PayerPhone:  phone,
		ReturnURL:   fmt.Sprintf("%s/registration/%d/status", s.AppURL, reg.ID),
		NotifyURL:   fmt.Sprintf("%s/api/payments/%s-callback", s.AppURL, s.Gateway.Name()),
	})
	if err != nil {
		return wrapf(ErrGateway, err, "Failed to create %s transaction", s.Gateway.Name())
	}

	reg.PaymentID = &txn.ID
	reg.PaymentURL = txn.PaymentURL
	return tx.Model(reg).Updates(map[string]interface{}{
		"payment_id":  txn.ID,
		"payment_url": txn.PaymentURL,
	}).Error
}

// ProcessRegistrationPayment retries checkout for an unpaid registration, or
// switches it to another payment method.
func (s *RegistrationService) ProcessRegistrationPayment(ctx context.Context, id uint, userID string, method models.PaymentMethod) (*RegistrationResult, error) {
	if method != models.PaymentOnline && method != models.PaymentOffline {
		return nil, withMessage(ErrValidation, "Invalid payment method")
	}

	var reg models.Registration
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRegistrationMissing
			}
			return err
		}
		if reg.UserID != userID {
			return ErrForbidden
		}
		if reg.PaymentStatus == models.PaymentPaid {
			return ErrAlreadyPaid
		}
		if reg.Status != models.RegistrationPending {
			return withMessage(ErrInvalidTransition, "Registration is %s", strings.ToLower(string(reg.Status)))
		}

		// A stale gateway transaction must not confirm the registration later.
		reg.PaymentMethod = method
		reg.PaymentID = nil
		reg.PaymentURL = ""
		if err := tx.Model(&reg).Updates(map[string]interface{}{
			"payment_method": method,
			"payment_id":     nil,
			"payment_url":    "",
		}).Error; err != nil {
			return err
		}

		if method == models.PaymentOnline && reg.TotalAmount > 0 {
			var event models.Event
			if err := tx.First(&event, reg.EventID).Error; err != nil {
				return err
			}
			var first models.Attendee
			if err := tx.Where("registration_id = ?", reg.ID).Order("id").First(&first).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return s.openTransaction(ctx, tx, &reg, &event, retryOrderID(reg.RegistrationNumber), first.PhoneNumber)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("registration_id", reg.ID).Str("method", string(method)).Msg("[REGISTRATION] payment processed")
	return toResult(&reg), nil
}

// GetRegistration loads a registration with its event, user and attendees.
func (s *RegistrationService) GetRegistration(ctx context.Context, id uint) (*models.Registration, error) {
	var reg models.Registration
	err := s.DB.WithContext(ctx).
		Preload("Event").
		Preload("User").
		Preload("Attendees", func(db *gorm.DB) *gorm.DB { return db.Order("attendees.id") }).
		Preload("Attendees.Ticket").
		First(&reg, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistrationMissing
		}
		return nil, err
	}
	return &reg, nil
}

// GetRegistrationForUser is GetRegistration restricted to the owner.
func (s *RegistrationService) GetRegistrationForUser(ctx context.Context, id uint, userID string) (*models.Registration, error) {
	reg, err := s.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.UserID != userID {
		return nil, ErrForbidden
	}
	return reg, nil
}

// ListUserRegistrations returns the caller's registrations, newest first.
func (s *RegistrationService) ListUserRegistrations(ctx context.Context, userID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Event").
		Preload("Event.Categories").
		Preload("Attendees").
		Preload("Attendees.Ticket").
		Order("created_at DESC").
		Order("id DESC").
		Find(&regs).Error
	return regs, err
}

// AddAttendees appends attendees to a pending registration. Each attendee names
// its ticket explicitly. The registration total is left untouched.
func (s *RegistrationService) AddAttendees(ctx context.Context, id uint, userID string, in []AttendeeInput) (*models.Registration, error) {
	if len(in) == 0 {
		return nil, withMessage(ErrValidation, "At least one attendee is required")
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg models.Registration
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRegistrationMissing
			}
			return err
		}
		if reg.UserID != userID {
			return ErrForbidden
		}
		if reg.Status != models.RegistrationPending {
			return withMessage(ErrInvalidTransition, "Attendees can only be added to pending registrations")
		}

		requested := make(map[uint]int)
		ids := make([]uint, 0, len(in))
		for i, a := range in {
			if a.TicketID == 0 {
				return withMessage(ErrValidation, "Attendee %d has no ticket", i+1)
			}
			if requested[a.TicketID] == 0 {
				ids = append(ids, a.TicketID)
			}
			requested[a.TicketID]++
		}

		tickets, err := lockTickets(tx, reg.EventID, ids)
		if err != nil {
			return err
		}
		for tid, qty := range requested {
			if err := checkCapacity(tx, tickets[tid], qty); err != nil {
				return err
			}
		}

		attendees := make([]models.Attendee, len(in))
		for i, a := range in {
			attendees[i] = newAttendee(reg.ID, a.TicketID, a)
		}
		return tx.Create(&attendees).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetRegistration(ctx, id)
}

// UpdateStatus is the admin override used for offline payments. Entering or
// leaving PAID keeps EventStatistics in step.
func (s *RegistrationService) UpdateStatus(ctx context.Context, id uint, status models.RegistrationStatus, paymentStatus models.PaymentStatus) (*models.Registration, error) {
	if !validRegistrationStatus(status) || !validPaymentStatus(paymentStatus) {
		return nil, withMessage(ErrValidation, "Invalid status")
	}

	now := s.Now()
	var reg models.Registration
	var msgType string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRegistrationMissing
			}
			return err
		}

		wasPaid := reg.PaymentStatus == models.PaymentPaid
		isPaid := paymentStatus == models.PaymentPaid
		switch {
		case !wasPaid && isPaid:
			if err := addToStatistics(tx, reg.EventID, reg.TotalAmount, now); err != nil {
				return err
			}
			msgType = broker.RegistrationConfirmed
		case wasPaid && !isPaid:
			if err := subtractFromStatistics(tx, reg.EventID, reg.TotalAmount, now); err != nil {
				return err
			}
		}
		if status == models.RegistrationCancelled && reg.Status != models.RegistrationCancelled {
			msgType = broker.RegistrationCancelled
		}

		reg.Status = status
		reg.PaymentStatus = paymentStatus
		return tx.Model(&reg).Updates(map[string]interface{}{
			"status":         status,
			"payment_status": paymentStatus,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if msgType != "" {
		publishRegistration(ctx, s.Publisher, msgType, &reg, now)
	}
	log.Info().Uint("registration_id", reg.ID).Str("status", string(status)).Str("payment_status", string(paymentStatus)).
		Msg("[REGISTRATION] status updated by admin")
	return &reg, nil
}

// Refund returns a paid registration's money. Online payments are refunded
// through the gateway before any local state changes.
func (s *RegistrationService) Refund(ctx context.Context, id uint) (*models.Registration, error) {
	now := s.Now()
	var reg models.Registration
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRegistrationMissing
			}
			return err
		}
		if reg.PaymentStatus != models.PaymentPaid {
			return withMessage(ErrInvalidTransition, "Only paid registrations can be refunded")
		}

		if reg.PaymentMethod == models.PaymentOnline && reg.PaymentID != nil {
			refunder, ok := s.Gateway.(payments.Refunder)
			if !ok {
				return withMessage(ErrGateway, "Payment gateway does not support refunds")
			}
			if err := refunder.Refund(ctx, *reg.PaymentID, reg.TotalAmount); err != nil {
				return wrap(ErrGateway, err)
			}
		}

		if err := subtractFromStatistics(tx, reg.EventID, reg.TotalAmount, now); err != nil {
			return err
		}
		reg.Status = models.RegistrationCancelled
		reg.PaymentStatus = models.PaymentRefunded
		return tx.Model(&reg).Updates(map[string]interface{}{
			"status":         reg.Status,
			"payment_status": reg.PaymentStatus,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	publishRegistration(ctx, s.Publisher, broker.RegistrationRefunded, &reg, now)
	log.Info().Uint("registration_id", reg.ID).Int64("amount", reg.TotalAmount).Msg("[REGISTRATION] 💸 refunded")
	return &reg, nil
}

// lockTickets loads the event's tickets with the given ids, locking the rows so
// capacity checks for the same ticket are serialised. A missing id, or one that
// belongs to another event, is TicketNotFound.
func lockTickets(tx *gorm.DB, eventID uint, ids []uint) (map[uint]models.Ticket, error) {
	var tickets []models.Ticket
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_id = ? AND id IN ?", eventID, ids).
		Order("id").
		Find(&tickets).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]models.Ticket, len(tickets))
	for _, t := range tickets {
		byID[t.ID] = t
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, withMessage(ErrTicketNotFound, "Ticket with ID %d not found", id)
		}
	}
	return byID, nil
}

// checkCapacity counts every attendee row holding the ticket, whatever its
// registration's status.
func checkCapacity(tx *gorm.DB, ticket models.Ticket, requested int) error {
	var taken int64
	if err := tx.Model(&models.Attendee{}).
		Where("ticket_id = ?", ticket.ID).
		Count(&taken).Error; err != nil {
		return err
	}
	if taken+int64(requested) > int64(ticket.MaxCapacity) {
		return withMessage(ErrCapacityExceeded, "Not enough capacity for ticket %s", ticket.Name)
	}
	return nil
}

func selectionIDs(sels []TicketSelection) []uint {
	seen := make(map[uint]bool, len(sels))
	ids := make([]uint, 0, len(sels))
	for _, s := range sels {
		if !seen[s.TicketID] {
			seen[s.TicketID] = true
			ids = append(ids, s.TicketID)
		}
	}
	return ids
}

func newAttendee(registrationID, ticketID uint, a AttendeeInput) models.Attendee {
	return models.Attendee{
		RegistrationID: registrationID,
		TicketID:       ticketID,
		FullName:       utils.NormalizeName(a.FullName),
		Gender:         a.Gender,
		AgeCategory:    a.AgeCategory,
		BeltLevel:      a.BeltLevel,
		PhoneNumber:    strings.TrimSpace(a.PhoneNumber),
		BiodataURL:     a.BiodataURL,
		ConsentURL:     a.ConsentURL,
	}
}

func toResult(reg *models.Registration) *RegistrationResult {
	return &RegistrationResult{
		RegistrationID:       reg.ID,
		RegistrationNumber:   reg.RegistrationNumber,
		PaymentURL:           reg.PaymentURL,
		TotalAmount:          reg.TotalAmount,
		TotalAmountFormatted: utils.FormatRupiah(reg.TotalAmount),
	}
}

func validRegistrationStatus(s models.RegistrationStatus) bool {
	switch s {
	case models.RegistrationPending, models.RegistrationConfirmed, models.RegistrationCancelled:
		return true
	}
	return false
}

func validPaymentStatus(s models.PaymentStatus) bool {
	switch s {
	case models.PaymentPending, models.PaymentPaid, models.PaymentFailed, models.PaymentRefunded:
		return true
	}
	return false
}
