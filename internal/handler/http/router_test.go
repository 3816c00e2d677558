package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/handler/http/response"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/device"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/events"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/timeintegrity"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/workday"
	"github.com/cmlabs-hris/presence-backend-go/internal/repository/memory"
	attendanceService "github.com/cmlabs-hris/presence-backend-go/internal/service/attendance"
	reportService "github.com/cmlabs-hris/presence-backend-go/internal/service/report"
	sessionService "github.com/cmlabs-hris/presence-backend-go/internal/service/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handlerTestSecret = "test-secret-key-for-jwt"

var (
	nairobi = time.FixedZone("EAT", 3*60*60)

	hq = office.Office{
		ID:           "office-nbo",
		Name:         "Nairobi HQ",
		Latitude:     -1.2921,
		Longitude:    36.8219,
		RadiusMeters: 200,
		Active:       true,
	}

	employee = jwt.Identity{EmployeeID: "emp-1", Role: jwt.RoleEmployee, Name: "Amina Odhiambo", PFNumber: "PF-001"}
	admin    = jwt.Identity{EmployeeID: "adm-1", Role: jwt.RoleAdmin, Name: "Ops Desk"}

	phoneA = device.Attributes{Manufacturer: "Samsung", Model: "Galaxy A52", HardwareID: "hw-a", InstallationID: "inst-a"}
	phoneB = device.Attributes{Manufacturer: "Tecno", Model: "Spark 10", HardwareID: "hw-b", InstallationID: "inst-b"}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type clockSource struct{ clock *testClock }

func (s clockSource) Now(context.Context) (time.Time, error) { return s.clock.Now(), nil }

type testServer struct {
	router    *chi.Mux
	jwt       *jwt.JWTService
	hub       *sse.Hub
	clock     *testClock
	conflicts session.ConflictRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := &testClock{t: time.Date(2024, 3, 4, 8, 10, 0, 0, nairobi)}
	sessions := memory.NewSessionRepository()
	conflicts := memory.NewConflictRepository()
	offices := memory.NewOfficeRepository(hq)
	hub := sse.NewHub(16)
	publisher := events.NewHubPublisher(hub)

	store := sessionService.NewSessionStore(sessions, conflicts, publisher, workday.MustParse("08:00"), nairobi, clock.Now)
	checker := timeintegrity.NewChecker(timeintegrity.DefaultPolicy(), clockSource{clock: clock}, time.Second)
	attendanceSvc := attendanceService.NewAttendanceService(store, sessions, offices, checker, publisher,
		workday.MustParse("17:00"), nairobi, clock.Now)
	reportSvc := reportService.NewReportService(sessions, reportService.Policy{
		WorkStart:     workday.MustParse("08:00"),
		WorkEnd:       workday.MustParse("17:00"),
		StandardHours: 8,
	}, nairobi, clock.Now)

	jwtService := jwt.NewJWTService(handlerTestSecret, time.Hour)
	router := NewRouter(jwtService, Handlers{
		Attendance: NewAttendanceHandler(attendanceSvc),
		Session:    NewSessionHandler(store, 24*time.Hour),
		Report:     NewReportHandler(reportSvc),
		Office:     NewOfficeHandler(offices),
		Events:     NewEventsHandler(hub, jwtService),
	}, RouterOptions{AppName: "presence-test", Env: "test"})

	return &testServer{router: router, jwt: jwtService, hub: hub, clock: clock, conflicts: conflicts}
}

func (s *testServer) token(t *testing.T, identity jwt.Identity) string {
	t.Helper()
	token, _, err := s.jwt.GenerateAccessToken(identity)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path string, identity *jwt.Identity, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, *identity))
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp response.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (s *testServer) clockInBody(phone device.Attributes) attendance.ClockInRequest {
	return attendance.ClockInRequest{
		Device:           phone,
		Latitude:         hq.Latitude,
		Longitude:        hq.Longitude,
		AutoTimeEnabled:  true,
		DeviceTimeMillis: s.clock.Now().UnixMilli(),
	}
}

// decodeData re-decodes the envelope data into v.
func decodeData(t *testing.T, resp response.Response, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/offices", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
}

func TestRouter_RejectsRevokedToken(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, employee)
	s.jwt.RevokeToken(token)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/offices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RejectsSSETokenAsBearer(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.jwt.GenerateSSEToken(employee)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/offices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_ListOffices(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/offices", &employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var offices []office.OfficeResponse
	decodeData(t, resp, &offices)
	require.Len(t, offices, 1)
	assert.Equal(t, "Nairobi HQ", offices[0].Name)
}

func TestRouter_ClockInConflictAndClockOut(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneA))
	require.Equal(t, http.StatusCreated, rec.Code)
	var in attendance.ClockInResponse
	decodeData(t, resp, &in)
	assert.True(t, in.Session.IsLate)
	assert.Equal(t, 10, in.Session.LateMinutes)

	// Same device again is idempotent.
	rec, resp = s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneA))
	require.Equal(t, http.StatusOK, rec.Code)
	var again attendance.ClockInResponse
	decodeData(t, resp, &again)
	assert.Equal(t, in.Session.ID, again.Session.ID)
	assert.False(t, again.Created)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneB))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DEVICE_CONFLICT", resp.Error.Code)
	assert.Equal(t, in.Session.ID, resp.Error.Details["session_id"])
	assert.Equal(t, "Samsung Galaxy A52", resp.Error.Details["device"])

	rec, resp = s.do(t, http.MethodPost, "/api/v1/sessions/validate", &employee, attendance.ValidateDeviceRequest{Device: &phoneB})
	require.Equal(t, http.StatusOK, rec.Code)
	var validation session.ValidateSessionResponse
	decodeData(t, resp, &validation)
	assert.Equal(t, session.OutcomeConflict, validation.Outcome)

	heartbeatPath := "/api/v1/sessions/" + in.Session.ID + "/heartbeat"
	rec, _ = s.do(t, http.MethodPost, heartbeatPath, &employee, session.HeartbeatBody{DeviceID: in.DeviceID})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Only the device holding the session may keep it alive.
	rec, resp = s.do(t, http.MethodPost, heartbeatPath, &employee, session.HeartbeatBody{DeviceID: device.Fingerprint(phoneB)})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DEVICE_CONFLICT", resp.Error.Code)

	rec, resp = s.do(t, http.MethodPost, heartbeatPath, &employee, session.HeartbeatBody{})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, resp.Error.Details, "device_id")

	s.clock.Set(time.Date(2024, 3, 4, 15, 0, 0, 0, nairobi))
	clockOut := attendance.ClockOutRequest{
		SessionID:        in.Session.ID,
		DeviceID:         in.DeviceID,
		Latitude:         hq.Latitude,
		Longitude:        hq.Longitude,
		AutoTimeEnabled:  true,
		DeviceTimeMillis: s.clock.Now().UnixMilli(),
	}
	rec, resp = s.do(t, http.MethodPost, "/api/v1/attendance/clock-out", &employee, clockOut)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, resp.Error.Details, "reason")

	s.clock.Set(time.Date(2024, 3, 4, 17, 0, 0, 0, nairobi))
	clockOut.AutoTimeEnabled = false
	clockOut.DeviceTimeMillis = s.clock.Now().UnixMilli()
	rec, resp = s.do(t, http.MethodPost, "/api/v1/attendance/clock-out", &employee, clockOut)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CLOCK_UNTRUSTED", resp.Error.Code)

	clockOut.AutoTimeEnabled = true
	rec, resp = s.do(t, http.MethodPost, "/api/v1/attendance/clock-out", &employee, clockOut)
	require.Equal(t, http.StatusOK, rec.Code)
	var out attendance.ClockOutResponse
	decodeData(t, resp, &out)
	assert.InDelta(t, 8.8333, out.TotalHours, 0.001)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/attendance/clock-out", &employee, clockOut)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouter_ClockInRejections(t *testing.T) {
	s := newTestServer(t)

	outside := s.clockInBody(phoneA)
	outside.Latitude = -1.30
	rec, resp := s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, outside)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "OUTSIDE_GEOFENCE", resp.Error.Code)
	assert.Contains(t, resp.Error.Details["reason"], "Nairobi HQ")

	skewed := s.clockInBody(phoneA)
	skewed.AutoTimeEnabled = false
	rec, resp = s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, skewed)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CLOCK_UNTRUSTED", resp.Error.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, attendance.ClockInRequest{})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance/clock-in", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+s.token(t, employee))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_HeartbeatOnOthersSession(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneA))
	require.Equal(t, http.StatusCreated, rec.Code)
	var in attendance.ClockInResponse
	decodeData(t, resp, &in)

	other := jwt.Identity{EmployeeID: "emp-2", Role: jwt.RoleEmployee}
	rec, _ = s.do(t, http.MethodPost, "/api/v1/sessions/"+in.Session.ID+"/heartbeat", &other, session.HeartbeatBody{DeviceID: in.DeviceID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/sessions/missing/heartbeat", &employee, session.HeartbeatBody{DeviceID: in.DeviceID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AdminRoutes(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/api/v1/admin/conflicts", &employee, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneA))
	require.Equal(t, http.StatusCreated, rec.Code)
	var in attendance.ClockInResponse
	decodeData(t, resp, &in)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneB))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/admin/conflicts?employee_id=emp-1", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conflicts []session.ConflictResponse
	decodeData(t, resp, &conflicts)
	require.Len(t, conflicts, 1)
	assert.Equal(t, in.Session.ID, conflicts[0].OriginalSessionID)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.TotalItems)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/admin/conflicts?date=04-03-2024", &admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	terminatePath := "/api/v1/admin/sessions/" + in.Session.ID + "/terminate"
	rec, _ = s.do(t, http.MethodPost, terminatePath, &admin, session.ForceTerminateBody{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.do(t, http.MethodPost, terminatePath, &admin, session.ForceTerminateBody{Reason: "lost phone"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, terminatePath, &admin, session.ForceTerminateBody{Reason: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Device B may now clock in.
	rec, _ = s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneB))
	assert.Equal(t, http.StatusCreated, rec.Code)

	s.clock.Set(s.clock.Now().Add(25 * time.Hour))
	rec, resp = s.do(t, http.MethodPost, "/api/v1/admin/sessions/cleanup", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleanup session.CleanupResponse
	decodeData(t, resp, &cleanup)
	assert.Equal(t, 1, cleanup.Expired)
}

func TestRouter_WeeklyReports(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneA))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/reports/weekly?week=2024-03-06", &employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine struct {
		EmployeeID  string `json:"employee_id"`
		WeekStart   string `json:"week_start"`
		DaysPresent int    `json:"days_present"`
	}
	decodeData(t, resp, &mine)
	assert.Equal(t, "emp-1", mine.EmployeeID)
	assert.Equal(t, "2024-03-04", mine.WeekStart)
	assert.Equal(t, 1, mine.DaysPresent)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/reports/weekly?week=yesterday", &employee, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/admin/reports/weekly?week=2024-03-04", &employee, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/admin/reports/weekly?week=2024-03-04", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var team struct {
		Employees []struct {
			EmployeeID string `json:"employee_id"`
		} `json:"employees"`
	}
	decodeData(t, resp, &team)
	require.Len(t, team.Employees, 1)
	assert.Equal(t, "emp-1", team.Employees[0].EmployeeID)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/admin/reports/weekly/emp-1?week=2024-03-04", &admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_EventStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	rec, resp := s.do(t, http.MethodPost, "/api/v1/events/token", &employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok SSETokenResponse
	decodeData(t, resp, &tok)
	require.NotEmpty(t, tok.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?token="+tok.Token, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	reader := bufio.NewReader(res.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool { return s.hub.SubscriberCount("emp-1") == 1 }, time.Second, 10*time.Millisecond)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/attendance/clock-in", &employee, s.clockInBody(phoneA))
	require.Equal(t, http.StatusCreated, rec.Code)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: session_created") {
			break
		}
	}
	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, data, `"employee_id":"emp-1"`)
}

func TestRouter_EventStreamRejectsAccessToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?token="+s.token(t, employee), nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
