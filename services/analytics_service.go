// services/analytics_service.go
package services

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"event-registration-system/models"

	"gorm.io/gorm"
)

type ReportKind string

const (
	ReportRevenue       ReportKind = "revenue"
	ReportRegistrations ReportKind = "registrations"
	ReportEvents        ReportKind = "events"
	ReportAttendees     ReportKind = "attendees"
)

// Period is a resolved reporting window. End is exclusive.
type Period struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ResolvePeriod turns week/month/quarter/year/custom into a concrete window.
// Custom windows take YYYY-MM-DD dates and include the whole end day.
func ResolvePeriod(name, startDate, endDate string, now time.Time) (Period, error) {
	now = now.UTC()
	if name == "" {
		name = "month"
	}
	p := Period{Name: name, End: now}

	switch name {
	case "week":
		p.Start = now.AddDate(0, 0, -7)
	case "month":
		p.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "quarter":
		q := (int(now.Month()) - 1) / 3 * 3
		p.Start = time.Date(now.Year(), time.Month(q+1), 1, 0, 0, 0, 0, time.UTC)
	case "year":
		p.Start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case "custom":
		start, err1 := time.Parse(time.DateOnly, startDate)
		end, err2 := time.Parse(time.DateOnly, endDate)
		if err1 != nil || err2 != nil {
			return Period{}, withMessage(ErrValidation, "Custom period needs startDate and endDate as YYYY-MM-DD")
		}
		if end.Before(start) {
			return Period{}, withMessage(ErrValidation, "endDate must not be before startDate")
		}
		p.Start, p.End = start, end.AddDate(0, 0, 1)
	default:
		return Period{}, withMessage(ErrValidation, "Invalid period %q", name)
	}
	return p, nil
}

type DashboardKPIs struct {
	TotalEvents        int64 `json:"totalEvents"`
	TotalRegistrations int64 `json:"totalRegistrations"`
	TotalRevenue       int64 `json:"totalRevenue"`
	TotalAttendees     int64 `json:"totalAttendees"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type DailyAmount struct {
	Date   string `json:"date"`
	Amount int64  `json:"amount"`
}

type MonthlyRevenue struct {
	Month   string `json:"month"`
	Revenue int64  `json:"revenue"`
}

type EventRegistrations struct {
	EventID       uint   `json:"eventId"`
	EventName     string `json:"eventName"`
	Registrations int64  `json:"registrations"`
}

type Dashboard struct {
	Period Period        `json:"period"`
	KPIs   DashboardKPIs `json:"kpis"`
	Trends struct {
		Registrations []DailyCount  `json:"registrations"`
		Revenue       []DailyAmount `json:"revenue"`
	} `json:"trends"`
	Charts struct {
		RevenueByMonth       []MonthlyRevenue     `json:"revenueByMonth"`
		RegistrationsByEvent []EventRegistrations `json:"registrationsByEvent"`
	} `json:"charts"`
}

type ReportSummary struct {
	Total  int64  `json:"total"`
	Period string `json:"period"`
}

// Report is a flat listing for one kind, ready for JSON or CSV output.
type Report struct {
	Type    ReportKind    `json:"type"`
	Data    interface{}   `json:"data"`
	Summary ReportSummary `json:"summary"`

	header  []string
	records [][]string
}

// WriteCSV writes the report rows with a header line.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.header); err != nil {
		return err
	}
	if err := cw.WriteAll(r.records); err != nil {
		return err
	}
	return cw.Error()
}

// AnalyticsService runs read-only aggregate queries for the admin dashboard.
type AnalyticsService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

type amountRow struct {
	CreatedAt   time.Time
	TotalAmount int64
}

func (s *AnalyticsService) Dashboard(ctx context.Context, p Period) (*Dashboard, error) {
	db := s.DB.WithContext(ctx)
	now := s.Now()
	d := &Dashboard{Period: p}

	if err := db.Model(&models.Event{}).
		Where("status = ? AND created_at >= ? AND created_at < ?", models.EventStatusActive, p.Start, p.End).
		Count(&d.KPIs.TotalEvents).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Registration{}).
		Where("created_at >= ? AND created_at < ?", p.Start, p.End).
		Count(&d.KPIs.TotalRegistrations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Registration{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("payment_status = ? AND created_at >= ? AND created_at < ?", models.PaymentPaid, p.Start, p.End).
		Scan(&d.KPIs.TotalRevenue).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Attendee{}).
		Where("created_at >= ? AND created_at < ?", p.Start, p.End).
		Count(&d.KPIs.TotalAttendees).Error; err != nil {
		return nil, err
	}

	since30 := now.AddDate(0, 0, -30)

	var confirmed []amountRow
	if err := db.Model(&models.Registration{}).
		Select("created_at, total_amount").
		Where("status = ? AND created_at >= ?", models.RegistrationConfirmed, since30).
		Scan(&confirmed).Error; err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, r := range confirmed {
		counts[r.CreatedAt.UTC().Format(time.DateOnly)]++
	}
	for _, day := range sortedKeys(counts) {
		d.Trends.Registrations = append(d.Trends.Registrations, DailyCount{Date: day, Count: counts[day]})
	}

	var paid []amountRow
	if err := db.Model(&models.Registration{}).
		Select("created_at, total_amount").
		Where("payment_status = ? AND created_at >= ?", models.PaymentPaid, now.AddDate(-1, 0, 0)).
		Scan(&paid).Error; err != nil {
		return nil, err
	}
	daily := map[string]int64{}
	monthly := map[string]int64{}
	for _, r := range paid {
		at := r.CreatedAt.UTC()
		if !at.Before(since30) {
			daily[at.Format(time.DateOnly)] += r.TotalAmount
		}
		monthly[at.Format("2006-01")] += r.TotalAmount
	}
	for _, day := range sortedKeys(daily) {
		d.Trends.Revenue = append(d.Trends.Revenue, DailyAmount{Date: day, Amount: daily[day]})
	}
	for _, m := range sortedKeys(monthly) {
		d.Charts.RevenueByMonth = append(d.Charts.RevenueByMonth, MonthlyRevenue{Month: m, Revenue: monthly[m]})
	}

	if err := db.Model(&models.Registration{}).
		Select("events.id AS event_id, events.title AS event_name, COUNT(registrations.id) AS registrations").
		Joins("JOIN events ON events.id = registrations.event_id").
		Where("registrations.created_at >= ? AND registrations.created_at < ?", p.Start, p.End).
		Group("events.id, events.title").
		Order("COUNT(registrations.id) DESC").
		Order("events.id").
		Limit(10).
		Scan(&d.Charts.RegistrationsByEvent).Error; err != nil {
		return nil, err
	}

	return d, nil
}

func (s *AnalyticsService) Report(ctx context.Context, kind ReportKind, p Period) (*Report, error) {
	db := s.DB.WithContext(ctx)
	switch kind {
	case ReportRevenue:
		return s.revenueReport(db, p)
	case ReportRegistrations:
		return s.registrationsReport(db, p)
	case ReportEvents:
		return s.eventsReport(db, p)
	case ReportAttendees:
		return s.attendeesReport(db, p)
	}
	return nil, withMessage(ErrValidation, "Invalid report type: %s", kind)
}

type RevenueRow struct {
	Date               string `json:"date"`
	Amount             int64  `json:"amount"`
	EventName          string `json:"eventName"`
	RegistrationNumber string `json:"registrationNumber"`
}

func (s *AnalyticsService) revenueReport(db *gorm.DB, p Period) (*Report, error) {
	var rows []struct {
		CreatedAt          time.Time
		TotalAmount        int64
		Title              string
		RegistrationNumber string
	}
	if err := db.Model(&models.Registration{}).
		Select("registrations.created_at, registrations.total_amount, events.title, registrations.registration_number").
		Joins("JOIN events ON events.id = registrations.event_id").
		Where("registrations.payment_status = ? AND registrations.created_at >= ? AND registrations.created_at < ?",
			models.PaymentPaid, p.Start, p.End).
		Order("registrations.created_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	data := make([]RevenueRow, len(rows))
	rep := &Report{Type: ReportRevenue, Summary: ReportSummary{Period: p.Name},
		header: []string{"Date", "Amount", "Event", "Registration Number"}}
	for i, r := range rows {
		data[i] = RevenueRow{Date: r.CreatedAt.UTC().Format(time.DateOnly), Amount: r.TotalAmount, EventName: r.Title, RegistrationNumber: r.RegistrationNumber}
		rep.Summary.Total += r.TotalAmount
		rep.records = append(rep.records, []string{data[i].Date, strconv.FormatInt(r.TotalAmount, 10), r.Title, r.RegistrationNumber})
	}
	rep.Data = data
	return rep, nil
}

type RegistrationRow struct {
	ID                 uint      `json:"id"`
	RegistrationNumber string    `json:"registrationNumber"`
	EventName          string    `json:"eventName"`
	UserName           string    `json:"userName"`
	UserEmail          string    `json:"userEmail"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"paymentStatus"`
	TotalAmount        int64     `json:"totalAmount"`
	CreatedAt          time.Time `json:"createdAt"`
}

func (s *AnalyticsService) registrationsReport(db *gorm.DB, p Period) (*Report, error) {
	var rows []RegistrationRow
	if err := db.Model(&models.Registration{}).
		Select(`registrations.id, registrations.registration_number, events.title AS event_name,
			users.name AS user_name, users.email AS user_email, registrations.status,
			registrations.payment_status, registrations.total_amount, registrations.created_at`).
		Joins("JOIN events ON events.id = registrations.event_id").
		Joins("JOIN users ON users.id = registrations.user_id").
		Where("registrations.created_at >= ? AND registrations.created_at < ?", p.Start, p.End).
		Order("registrations.created_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	rep := &Report{Type: ReportRegistrations, Data: rows, Summary: ReportSummary{Total: int64(len(rows)), Period: p.Name},
		header: []string{"ID", "Registration Number", "Event", "User Name", "User Email", "Status", "Payment Status", "Total Amount", "Created At"}}
	for _, r := range rows {
		rep.records = append(rep.records, []string{
			strconv.FormatUint(uint64(r.ID), 10), r.RegistrationNumber, r.EventName, r.UserName, r.UserEmail,
			r.Status, r.PaymentStatus, strconv.FormatInt(r.TotalAmount, 10), r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rep, nil
}

func (s *AnalyticsService) eventsReport(db *gorm.DB, p Period) (*Report, error) {
	var events []models.Event
	if err := db.Where("created_at >= ? AND created_at < ?", p.Start, p.End).
		Order("created_at DESC").
		Find(&events).Error; err != nil {
		return nil, err
	}

	rep := &Report{Type: ReportEvents, Data: events, Summary: ReportSummary{Total: int64(len(events)), Period: p.Name},
		header: []string{"ID", "Title", "Start Date", "End Date", "Location", "Max Capacity", "Status", "Created At"}}
	for _, e := range events {
		rep.records = append(rep.records, []string{
			strconv.FormatUint(uint64(e.ID), 10), e.Title, e.StartDate.UTC().Format(time.RFC3339), e.EndDate.UTC().Format(time.RFC3339),
			e.Location, strconv.Itoa(e.MaxCapacity), string(e.Status), e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rep, nil
}

type AttendeeRow struct {
	ID                 uint      `json:"id"`
	FullName           string    `json:"fullName"`
	Gender             string    `json:"gender"`
	AgeCategory        string    `json:"ageCategory"`
	BeltLevel          string    `json:"beltLevel"`
	PhoneNumber        string    `json:"phoneNumber"`
	EventName          string    `json:"eventName"`
	RegistrationNumber string    `json:"registrationNumber"`
	CreatedAt          time.Time `json:"createdAt"`
}

func (s *AnalyticsService) attendeesReport(db *gorm.DB, p Period) (*Report, error) {
	var rows []AttendeeRow
	if err := db.Model(&models.Attendee{}).
		Select(`attendees.id, attendees.full_name, attendees.gender, attendees.age_category, attendees.belt_level,
			attendees.phone_number, events.title AS event_name, registrations.registration_number, attendees.created_at`).
		Joins("JOIN registrations ON registrations.id = attendees.registration_id").
		Joins("JOIN events ON events.id = registrations.event_id").
		Where("attendees.created_at >= ? AND attendees.created_at < ?", p.Start, p.End).
		Order("attendees.created_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	rep := &Report{Type: ReportAttendees, Data: rows, Summary: ReportSummary{Total: int64(len(rows)), Period: p.Name},
		header: []string{"ID", "Full Name", "Gender", "Age Category", "Belt Level", "Phone Number", "Event", "Registration Number", "Created At"}}
	for _, r := range rows {
		rep.records = append(rep.records, []string{
			strconv.FormatUint(uint64(r.ID), 10), r.FullName, r.Gender, r.AgeCategory, r.BeltLevel, r.PhoneNumber,
			r.EventName, r.RegistrationNumber, r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rep, nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
