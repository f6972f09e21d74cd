package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"event-registration-system/broker"
	"event-registration-system/broker/brokertest"
	"event-registration-system/models"
	"event-registration-system/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRegistrationService(t *testing.T) (*RegistrationService, *fakeGateway, *brokertest.Recorder, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	gw := newFakeGateway()
	rec := &brokertest.Recorder{}
	return NewRegistrationService(db, gw, rec, "https://events.example.com/"), gw, rec, db
}

func attendee(name string) AttendeeInput {
	return AttendeeInput{
		FullName:    name,
		Gender:      models.GenderMale,
		AgeCategory: models.AgeSD,
		BeltLevel:   models.BeltDasar,
		PhoneNumber: "081234567890",
	}
}

func TestCreateRegistrationOnlineTotalsAndOpensOneTransaction(t *testing.T) {
	svc, gw, rec, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 1, 15000)

	res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("rizky pratama")},
		PaymentMethod:    models.PaymentOnline,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 115000, res.TotalAmount)
	assert.True(t, strings.HasPrefix(res.TotalAmountFormatted, "Rp"))
	assert.Equal(t, "https://pay.example.com/TRX-1", res.PaymentURL)
	assert.Regexp(t, `^REG-\d+-[0-9A-F]{8}$`, res.RegistrationNumber)
	assert.Equal(t, 1, gw.createCalls())

	req := gw.created[0]
	assert.EqualValues(t, 115000, req.Amount)
	assert.Equal(t, res.RegistrationNumber, req.OrderID)
	assert.Equal(t, "Budi Santoso", req.PayerName)
	assert.Equal(t, "https://events.example.com/api/payments/fake-callback", req.NotifyURL)
	assert.Contains(t, req.ReturnURL, "/registration/")

	var reg models.Registration
	require.NoError(t, db.Preload("Attendees").First(&reg, res.RegistrationID).Error)
	require.NotNil(t, reg.PaymentID)
	assert.Equal(t, "TRX-1", *reg.PaymentID)
	assert.Equal(t, models.RegistrationPending, reg.Status)
	assert.Equal(t, models.PaymentPending, reg.PaymentStatus)
	assert.EqualValues(t, 15000, reg.AdminFee)
	require.Len(t, reg.Attendees, 1)
	assert.Equal(t, "Rizky Pratama", reg.Attendees[0].FullName)

	assert.Equal(t, []string{broker.RegistrationCreated}, rec.Types())
}

func TestCreateRegistrationTotalAcrossSelections(t *testing.T) {
	svc, _, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 50000, 10, 5000)

	kumite := models.Ticket{
		EventID: fx.Event.ID, Name: "Kumite", Price: 75000, MaxCapacity: 10, Type: models.TicketTypeOnsite,
		AvailableFrom: fx.Ticket.AvailableFrom, AvailableUntil: fx.Ticket.AvailableUntil,
	}
	require.NoError(t, db.Create(&kumite).Error)

	res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID: fx.Event.ID,
		UserID:  fx.User.ID,
		TicketSelections: []TicketSelection{
			{TicketID: fx.Ticket.ID, Quantity: 2},
			{TicketID: kumite.ID, Quantity: 1},
		},
		Attendees:     []AttendeeInput{attendee("A"), attendee("B"), attendee("C")},
		PaymentMethod: models.PaymentOffline,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2*50000+75000+5000, res.TotalAmount)

	var attendees []models.Attendee
	require.NoError(t, db.Where("registration_id = ?", res.RegistrationID).Order("id").Find(&attendees).Error)
	require.Len(t, attendees, 3)
	assert.Equal(t, fx.Ticket.ID, attendees[0].TicketID)
	assert.Equal(t, kumite.ID, attendees[1].TicketID)
	assert.Equal(t, fx.Ticket.ID, attendees[2].TicketID)
}

func TestCreateRegistrationSkipsGateway(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		svc, gw, _, db := newRegistrationService(t)
		fx := testutil.SeedEvent(t, db, 100000, 5, 15000)

		res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
			EventID:          fx.Event.ID,
			UserID:           fx.User.ID,
			TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
			Attendees:        []AttendeeInput{attendee("A")},
			PaymentMethod:    models.PaymentOffline,
		})
		require.NoError(t, err)
		assert.Empty(t, res.PaymentURL)
		assert.Zero(t, gw.createCalls())

		var reg models.Registration
		require.NoError(t, db.First(&reg, res.RegistrationID).Error)
		assert.Nil(t, reg.PaymentID)
	})

	t.Run("free online", func(t *testing.T) {
		svc, gw, _, db := newRegistrationService(t)
		fx := testutil.SeedEvent(t, db, 0, 5, 0)

		res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
			EventID:          fx.Event.ID,
			UserID:           fx.User.ID,
			TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
			Attendees:        []AttendeeInput{attendee("A")},
			PaymentMethod:    models.PaymentOnline,
		})
		require.NoError(t, err)
		assert.Zero(t, res.TotalAmount)
		assert.Empty(t, res.PaymentURL)
		assert.Zero(t, gw.createCalls())
	})
}

func TestCreateRegistrationBeforeWindowInsertsNothing(t *testing.T) {
	svc, gw, rec, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 5, 15000)
	require.NoError(t, db.Model(&fx.Event).Updates(map[string]interface{}{
		"registration_open_date": time.Now().UTC().Add(24 * time.Hour),
	}).Error)

	_, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A")},
		PaymentMethod:    models.PaymentOnline,
	})
	require.ErrorIs(t, err, ErrRegistrationClosed)
	assert.Contains(t, err.Error(), "not open")
	assert.Equal(t, KindDomain, KindOf(err))

	assert.Zero(t, testutil.Count(t, db, &models.Registration{}))
	assert.Zero(t, testutil.Count(t, db, &models.Attendee{}))
	assert.Zero(t, gw.createCalls())
	assert.Empty(t, rec.Messages)
}

func TestCreateRegistrationRejections(t *testing.T) {
	svc, _, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 1, 15000)
	other := testutil.SeedEvent(t, db, 100000, 1, 0)

	cases := []struct {
		name string
		in   CreateRegistrationInput
		want error
	}{
		{"unknown event", CreateRegistrationInput{EventID: 9999}, ErrEventNotFound},
		{"unknown ticket", CreateRegistrationInput{TicketSelections: []TicketSelection{{TicketID: 9999, Quantity: 1}}}, ErrTicketNotFound},
		{"ticket of other event", CreateRegistrationInput{TicketSelections: []TicketSelection{{TicketID: other.Ticket.ID, Quantity: 1}}}, ErrTicketNotFound},
		{"over capacity", CreateRegistrationInput{TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 2}}}, ErrCapacityExceeded},
		{"no selections", CreateRegistrationInput{TicketSelections: []TicketSelection{}}, ErrValidation},
		{"bad method", CreateRegistrationInput{PaymentMethod: "CASH"}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			if in.EventID == 0 {
				in.EventID = fx.Event.ID
			}
			in.UserID = fx.User.ID
			if in.TicketSelections == nil {
				in.TicketSelections = []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}}
			}
			in.Attendees = []AttendeeInput{attendee("A")}
			if in.PaymentMethod == "" {
				in.PaymentMethod = models.PaymentOffline
			}

			_, err := svc.CreateRegistration(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, testutil.Count(t, db, &models.Registration{}))
}

func TestCreateRegistrationGatewayFailureRollsBack(t *testing.T) {
	svc, gw, rec, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 5, 15000)
	gw.createErr = errGatewayDown

	_, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A")},
		PaymentMethod:    models.PaymentOnline,
	})
	require.ErrorIs(t, err, ErrGateway)
	assert.ErrorIs(t, err, errGatewayDown)
	assert.Equal(t, "Failed to create fake transaction: gateway down", err.Error())

	assert.Zero(t, testutil.Count(t, db, &models.Registration{}))
	assert.Zero(t, testutil.Count(t, db, &models.Attendee{}))
	assert.Empty(t, rec.Messages)
}

func TestConcurrentRegistrationsForLastSlot(t *testing.T) {
	svc, _, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 1, 15000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateRegistration(context.Background(), CreateRegistrationInput{
				EventID:          fx.Event.ID,
				UserID:           fx.User.ID,
				TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
				Attendees:        []AttendeeInput{attendee("A")},
				PaymentMethod:    models.PaymentOffline,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 1, testutil.Count(t, db, &models.Attendee{}))
}

func TestCancelledRegistrationsStillHoldCapacity(t *testing.T) {
	svc, _, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 1, 0)

	in := CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A")},
		PaymentMethod:    models.PaymentOffline,
	}
	first, err := svc.CreateRegistration(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), first.RegistrationID, models.RegistrationCancelled, models.PaymentFailed)
	require.NoError(t, err)

	_, err = svc.CreateRegistration(context.Background(), in)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	var held int64
	require.NoError(t, db.Model(&models.Attendee{}).Where("ticket_id = ?", fx.Ticket.ID).Count(&held).Error)
	assert.LessOrEqual(t, held, int64(fx.Ticket.MaxCapacity))
}

func TestProcessRegistrationPayment(t *testing.T) {
	svc, gw, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 5, 15000)

	res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A")},
		PaymentMethod:    models.PaymentOffline,
	})
	require.NoError(t, err)

	_, err = svc.ProcessRegistrationPayment(context.Background(), res.RegistrationID, "someone-else", models.PaymentOnline)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ProcessRegistrationPayment(context.Background(), 9999, fx.User.ID, models.PaymentOnline)
	assert.ErrorIs(t, err, ErrRegistrationMissing)

	out, err := svc.ProcessRegistrationPayment(context.Background(), res.RegistrationID, fx.User.ID, models.PaymentOnline)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/TRX-1", out.PaymentURL)
	assert.Equal(t, 1, gw.createCalls())
	assert.Equal(t, "081234567890", gw.created[0].PayerPhone)

	var reg models.Registration
	require.NoError(t, db.First(&reg, res.RegistrationID).Error)
	assert.Equal(t, models.PaymentOnline, reg.PaymentMethod)
	require.NotNil(t, reg.PaymentID)
	assert.Equal(t, "TRX-1", *reg.PaymentID)

	out, err = svc.ProcessRegistrationPayment(context.Background(), res.RegistrationID, fx.User.ID, models.PaymentOffline)
	require.NoError(t, err)
	assert.Empty(t, out.PaymentURL)
	require.NoError(t, db.First(&reg, res.RegistrationID).Error)
	assert.Equal(t, models.PaymentOffline, reg.PaymentMethod)
	assert.Nil(t, reg.PaymentID)
	assert.Empty(t, reg.PaymentURL)

	_, err = NewPaymentService(db, gw, nil).HandleNotification(context.Background(), note("TRX-1", "berhasil", gw.validSig))
	assert.ErrorIs(t, err, ErrRegistrationMissing)
	require.NoError(t, db.First(&reg, res.RegistrationID).Error)
	assert.Equal(t, models.PaymentPending, reg.PaymentStatus)

	require.NoError(t, db.Model(&reg).Update("payment_status", models.PaymentPaid).Error)
	_, err = svc.ProcessRegistrationPayment(context.Background(), res.RegistrationID, fx.User.ID, models.PaymentOnline)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, 1, gw.createCalls())
}

func TestCheckoutRetriesUseDistinctOrderIDs(t *testing.T) {
	svc, gw, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 5, 15000)

	res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A")},
		PaymentMethod:    models.PaymentOnline,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.ProcessRegistrationPayment(context.Background(), res.RegistrationID, fx.User.ID, models.PaymentOnline)
		require.NoError(t, err)
	}
	require.Equal(t, 3, gw.createCalls())

	seen := map[string]bool{}
	for _, req := range gw.created {
		assert.True(t, strings.HasPrefix(req.OrderID, res.RegistrationNumber), req.OrderID)
		assert.LessOrEqual(t, len(req.OrderID), 50)
		assert.False(t, seen[req.OrderID], "order id %s sent twice", req.OrderID)
		seen[req.OrderID] = true
	}
	assert.Equal(t, res.RegistrationNumber, gw.created[0].OrderID)

	var reg models.Registration
	require.NoError(t, db.First(&reg, res.RegistrationID).Error)
	require.NotNil(t, reg.PaymentID)
	assert.Equal(t, "TRX-3", *reg.PaymentID)
}

func TestGetRegistrationForUser(t *testing.T) {
	svc, _, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 5, 0)

	res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A"), attendee("B")},
		PaymentMethod:    models.PaymentOffline,
	})
	require.NoError(t, err)

	reg, err := svc.GetRegistrationForUser(context.Background(), res.RegistrationID, fx.User.ID)
	require.NoError(t, err)
	assert.Len(t, reg.Attendees, 2)
	require.NotNil(t, reg.Event)
	assert.Equal(t, fx.Event.Title, reg.Event.Title)
	require.NotNil(t, reg.Attendees[0].Ticket)
	assert.Equal(t, "Kata Perorangan", reg.Attendees[0].Ticket.Name)

	_, err = svc.GetRegistrationForUser(context.Background(), res.RegistrationID, "intruder")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindForbidden, KindOf(err))

	list, err := svc.ListUserRegistrations(context.Background(), fx.User.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAddAttendees(t *testing.T) {
	svc, _, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 2, 15000)

	res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A")},
		PaymentMethod:    models.PaymentOffline,
	})
	require.NoError(t, err)

	_, err = svc.AddAttendees(context.Background(), res.RegistrationID, fx.User.ID, []AttendeeInput{attendee("B")})
	assert.ErrorIs(t, err, ErrValidation)

	b := attendee("B")
	b.TicketID = fx.Ticket.ID
	reg, err := svc.AddAttendees(context.Background(), res.RegistrationID, fx.User.ID, []AttendeeInput{b})
	require.NoError(t, err)
	assert.Len(t, reg.Attendees, 2)
	assert.EqualValues(t, 115000, reg.TotalAmount)

	_, err = svc.AddAttendees(context.Background(), res.RegistrationID, fx.User.ID, []AttendeeInput{b})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = svc.AddAttendees(context.Background(), res.RegistrationID, "intruder", []AttendeeInput{b})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateStatusAndRefundKeepStatisticsInStep(t *testing.T) {
	svc, gw, rec, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 5, 15000)

	res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A")},
		PaymentMethod:    models.PaymentOffline,
	})
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), res.RegistrationID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(context.Background(), res.RegistrationID, "DONE", models.PaymentPaid)
	assert.ErrorIs(t, err, ErrValidation)

	reg, err := svc.UpdateStatus(context.Background(), res.RegistrationID, models.RegistrationConfirmed, models.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, reg.PaymentStatus)

	var stats models.EventStatistics
	require.NoError(t, db.Where("event_id = ?", fx.Event.ID).First(&stats).Error)
	assert.EqualValues(t, 115000, stats.TotalRevenue)
	assert.EqualValues(t, 1, stats.TotalRegistrations)

	reg, err = svc.Refund(context.Background(), res.RegistrationID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, reg.PaymentStatus)
	assert.Equal(t, models.RegistrationCancelled, reg.Status)
	assert.Empty(t, gw.refunds)

	require.NoError(t, db.Where("event_id = ?", fx.Event.ID).First(&stats).Error)
	assert.Zero(t, stats.TotalRevenue)
	assert.Zero(t, stats.TotalRegistrations)

	assert.Equal(t, []string{broker.RegistrationCreated, broker.RegistrationConfirmed, broker.RegistrationRefunded}, rec.Types())
}

func TestRefundOnlineGoesThroughGateway(t *testing.T) {
	svc, gw, _, db := newRegistrationService(t)
	fx := testutil.SeedEvent(t, db, 100000, 5, 15000)

	res, err := svc.CreateRegistration(context.Background(), CreateRegistrationInput{
		EventID:          fx.Event.ID,
		UserID:           fx.User.ID,
		TicketSelections: []TicketSelection{{TicketID: fx.Ticket.ID, Quantity: 1}},
		Attendees:        []AttendeeInput{attendee("A")},
		PaymentMethod:    models.PaymentOnline,
	})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), res.RegistrationID, models.RegistrationConfirmed, models.PaymentPaid)
	require.NoError(t, err)

	gw.refundErr = errGatewayDown
	_, err = svc.Refund(context.Background(), res.RegistrationID)
	require.ErrorIs(t, err, ErrGateway)

	var reg models.Registration
	require.NoError(t, db.First(&reg, res.RegistrationID).Error)
	assert.Equal(t, models.PaymentPaid, reg.PaymentStatus)

	gw.refundErr = nil
	_, err = svc.Refund(context.Background(), res.RegistrationID)
	require.NoError(t, err)
	assert.Equal(t, []string{"TRX-1"}, gw.refunds)
}
