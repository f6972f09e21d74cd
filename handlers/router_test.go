package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"event-registration-system/broker/brokertest"
	"event-registration-system/middleware"
	"event-registration-system/models"
	"event-registration-system/payments"
	"event-registration-system/services"
	"event-registration-system/storage"
	"event-registration-system/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "handler-test-secret"

type testServer struct {
	app     *fiber.App
	db      *gorm.DB
	gateway *payments.IpaymuGateway
	fx      testutil.EventFixture
}

func newTestServer(t *testing.T, uploader ...storage.Uploader) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	gw, err := payments.NewIpaymuGateway("https://sandbox.ipaymu.com", "test-api-key", "VA0001")
	require.NoError(t, err)
	pub := &brokertest.Recorder{}

	app := NewApp(Dependencies{
		JWTSecret:         testSecret,
		RegisterRateLimit: 100,
		Events:            services.NewEventService(db),
		Categories:        services.NewCategoryService(db),
		Registrations:     services.NewRegistrationService(db, gw, pub, "https://events.example.com"),
		Payments:          services.NewPaymentService(db, gw, pub),
		Reporting:         services.NewReportingService(db),
		Analytics:         services.NewAnalyticsService(db),
		Users:             services.NewUserService(db),
		Uploader:          firstUploader(uploader),
	})

	return &testServer{
		app:     app,
		db:      db,
		gateway: gw,
		fx:      testutil.SeedEvent(t, db, 100000, 10, 15000),
	}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Name:  "Dewi Lestari",
		Email: "dewi@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, bearer, contentType string, body io.Reader) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (s *testServer) postJSON(t *testing.T, path, bearer string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return s.do(t, http.MethodPost, path, bearer, fiber.MIMEApplicationJSON, strings.NewReader(string(b)))
}

func (s *testServer) pendingOnline(t *testing.T, trxID string) models.Registration {
	t.Helper()
	reg := models.Registration{
		EventID:            s.fx.Event.ID,
		UserID:             s.fx.User.ID,
		RegistrationNumber: "REG-" + trxID,
		Status:             models.RegistrationPending,
		PaymentStatus:      models.PaymentPending,
		PaymentMethod:      models.PaymentOnline,
		TotalAmount:        115000,
		AdminFee:           15000,
		PaymentID:          &trxID,
	}
	require.NoError(t, s.db.Create(&reg).Error)
	return reg
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := newTestServer(t)
	path := "/api/admin/analytics"

	resp, body := s.do(t, http.MethodGet, path, "", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	resp, body = s.do(t, http.MethodGet, path, token(t, "user-1", "user"), "", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])

	resp, _ = s.do(t, http.MethodGet, path, token(t, "admin-1", middleware.RoleAdmin), "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestPublicEventRoutes(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/api/events?status=OPEN", "", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/api/events/"+s.fx.Event.Slug, "", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, s.fx.Event.Title, body["title"])
	assert.Equal(t, true, body["isRegistrationOpen"])

	resp, body = s.do(t, http.MethodGet, "/api/events/does-not-exist", "", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "EVENT_NOT_FOUND", body["code"])
}

func TestRegisterValidationDetails(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.postJSON(t, "/api/events/1/register", token(t, "user-1", ""), map[string]interface{}{
		"ticketSelections": []map[string]interface{}{{"ticketId": s.fx.Ticket.ID, "quantity": 1}},
		"attendeesData":    []map[string]interface{}{},
		"paymentMethod":    "CASH",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", body["code"])

	details, ok := body["details"].([]interface{})
	require.True(t, ok)
	fields := map[string]bool{}
	for _, d := range details {
		fields[d.(map[string]interface{})["field"].(string)] = true
	}
	assert.True(t, fields["registerRequest.Attendees"])
	assert.True(t, fields["registerRequest.PaymentMethod"])
}

func TestRegisterOffline(t *testing.T) {
	s := newTestServer(t)
	path := "/api/events/" + jsonID(s.fx.Event.ID) + "/register"

	resp, body := s.postJSON(t, path, token(t, "user-42", ""), map[string]interface{}{
		"ticketSelections": []map[string]interface{}{{"ticketId": s.fx.Ticket.ID, "quantity": 1}},
		"attendeesData": []map[string]interface{}{{
			"fullName": "putri ayu", "gender": "FEMALE", "ageCategory": "SMP",
			"beltLevel": "MC_II", "phoneNumber": "081298765432",
		}},
		"paymentMethod": "OFFLINE",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 115000, body["totalAmount"])
	assert.NotEmpty(t, body["registrationNumber"])
	assert.Nil(t, body["paymentUrl"])

	var user models.User
	require.NoError(t, s.db.First(&user, "id = ?", "user-42").Error)
	assert.Equal(t, "Dewi Lestari", user.Name)

	resp, body = s.do(t, http.MethodGet, "/api/registrations/"+jsonID(uint(body["registrationId"].(float64))), token(t, "someone-else", ""), "", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, services.ErrForbidden.Code, body["code"])
}

func TestRegisterGatewayFailureCarriesCause(t *testing.T) {
	s := newTestServer(t)
	ipaymu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "merchant suspended", http.StatusInternalServerError)
	}))
	defer ipaymu.Close()
	s.gateway.BaseURL = ipaymu.URL

	resp, body := s.postJSON(t, "/api/events/"+jsonID(s.fx.Event.ID)+"/register", token(t, "user-9", ""), map[string]interface{}{
		"ticketSelections": []map[string]interface{}{{"ticketId": s.fx.Ticket.ID, "quantity": 1}},
		"attendeesData": []map[string]interface{}{{
			"fullName": "Andi", "gender": "MALE", "ageCategory": "SD",
			"beltLevel": "DASAR", "phoneNumber": "081200000000",
		}},
		"paymentMethod": "ONLINE",
	})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "GATEWAY_ERROR", body["code"])
	msg, _ := body["error"].(string)
	assert.True(t, strings.HasPrefix(msg, "Failed to create ipaymu transaction: "), msg)
	assert.Contains(t, msg, "merchant suspended")

	var n int64
	require.NoError(t, s.db.Model(&models.Registration{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestIpaymuCallback(t *testing.T) {
	s := newTestServer(t)
	reg := s.pendingOnline(t, "IPM-1001")
	path := "/api/payments/ipaymu-callback"

	resp, body := s.postJSON(t, path, "", map[string]string{"id": "IPM-1001", "status": "berhasil", "sign": "forged"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_SIGNATURE", body["code"])

	resp, body = s.postJSON(t, path, "", map[string]string{"id": "IPM-404", "status": "berhasil", "sign": s.gateway.Signature()})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "REGISTRATION_NOT_FOUND", body["code"])

	form := url.Values{"trx_id": {"IPM-1001"}, "status": {"berhasil"}, "sign": {s.gateway.Signature()}}
	resp, body = s.do(t, http.MethodPost, path, "", fiber.MIMEApplicationForm, strings.NewReader(form.Encode()))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Payment confirmed successfully", body["message"])

	resp, body = s.postJSON(t, path, "", map[string]string{"id": "IPM-1001", "status": "berhasil", "sign": s.gateway.Signature()})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Payment already processed", body["message"])

	var got models.Registration
	require.NoError(t, s.db.First(&got, reg.ID).Error)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, models.RegistrationConfirmed, got.Status)

	var stats models.EventStatistics
	require.NoError(t, s.db.Where("event_id = ?", s.fx.Event.ID).First(&stats).Error)
	assert.EqualValues(t, 1, stats.TotalRegistrations)
	assert.EqualValues(t, 115000, stats.TotalRevenue)

	resp, _ = s.postJSON(t, "/api/payments/midtrans-callback", "", map[string]string{"order_id": "x"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, "admin-1", middleware.RoleAdmin)

	resp, _ := s.do(t, http.MethodGet, "/api/admin/events/"+jsonID(s.fx.Event.ID)+"/registrations/export", admin, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), "text/csv"))
	assert.Equal(t,
		`attachment; filename="`+services.ExportFilename(s.fx.Event.ID)+`"`,
		resp.Header.Get(fiber.HeaderContentDisposition))

	resp, body := s.do(t, http.MethodGet, "/api/admin/events/9999/registrations/export", admin, "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "EVENT_NOT_FOUND", body["code"])

	resp, body = s.do(t, http.MethodGet, "/api/admin/events/abc/registrations", admin, "", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", body["code"])
}

func jsonID(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func firstUploader(u []storage.Uploader) storage.Uploader {
	if len(u) == 0 {
		return nil
	}
	return u[0]
}

type memUploader struct{ keys []string }

func (m *memUploader) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func uploadBody(t *testing.T, kind, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("kind", kind))

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="doc"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadRoute(t *testing.T) {
	up := &memUploader{}
	s := newTestServer(t, up)
	user := token(t, "user-7", "")

	body, ct := uploadBody(t, "biodata", "application/pdf", []byte("%PDF-1.4"))
	resp, out := s.do(t, http.MethodPost, "/api/uploads", user, ct, body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Len(t, up.keys, 1)
	assert.True(t, strings.HasPrefix(up.keys[0], "attendees/biodata/"))
	assert.Equal(t, "https://cdn.example.com/"+up.keys[0], out["url"])

	body, ct = uploadBody(t, "biodata", "text/plain", []byte("hello"))
	resp, _ = s.do(t, http.MethodPost, "/api/uploads", user, ct, body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body, ct = uploadBody(t, "consent", "image/png", bytes.Repeat([]byte{1}, storage.MaxUploadSize+1))
	resp, _ = s.do(t, http.MethodPost, "/api/uploads", user, ct, body)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	body, ct = uploadBody(t, "biodata", "application/pdf", []byte("%PDF-1.4"))
	resp, _ = s.do(t, http.MethodPost, "/api/uploads", "", ct, body)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, up.keys, 1)
}

func TestUploadRouteNotMountedWithoutStorage(t *testing.T) {
	s := newTestServer(t)
	body, ct := uploadBody(t, "biodata", "application/pdf", []byte("%PDF-1.4"))
	resp, _ := s.do(t, http.MethodPost, "/api/uploads", token(t, "user-7", ""), ct, body)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
