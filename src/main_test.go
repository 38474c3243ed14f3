package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"olympia/src/common"
	"olympia/src/db"
	"olympia/src/models"
	"olympia/src/types"
	"olympia/src/utils"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

const secret = "main-test-secret"

type TestSuite struct {
	suite.Suite
	DB     *gorm.DB
	Router *gin.Engine

	OrganizerToken string
	VolunteerToken string
	AttendeeToken  string
	Event          models.Event
	Ticket         models.Ticket
}

func generateJWT(user *models.User) (string, error) {
	claims := types.Claims{
		Username: user.Email,
		Role:     user.Role,
		UID:      user.UID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(int(user.ID)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *TestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.T().Setenv("JWT_SECRET", secret)
	s.T().Setenv("MAINTENANCE_MODE", "")
	registerValidators()

	dir := s.T().TempDir()
	d, err := db.OpenLocal(filepath.Join(dir, "server.db"))
	if err != nil {
		log.Fatalf("Error opening test database: %s\n", err.Error())
	}
	db.NewDB(d)
	s.DB = d

	err = d.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Ticket{},
		&models.TicketPurchase{},
		&models.Media{},
		&models.AuditLog{},
		&models.ReconciliationIssue{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	media, err := common.NewLocalMediaStore(filepath.Join(dir, "media"))
	if err != nil {
		log.Fatalf("Error creating media store: %s\n", err.Error())
	}
	svc = newServices(d, nil, media)

	users := []*models.User{
		{Name: "Org", Email: "org@example.com", Role: string(types.ROLE_ORGANIZER)},
		{Name: "Vol", Email: "vol@example.com", Role: string(types.ROLE_VOLUNTEER)},
		{Name: "Att", Email: "att@example.com", Role: string(types.ROLE_ATTENDEE)},
	}
	tokens := []*string{&s.OrganizerToken, &s.VolunteerToken, &s.AttendeeToken}
	for i, u := range users {
		if err := d.Create(u).Error; err != nil {
			log.Fatalf("Could not create user due to error: %s\n", err.Error())
		}
		token, err := generateJWT(u)
		if err != nil {
			log.Fatalf("Error generating JWT token: %s\n", err.Error())
		}
		*tokens[i] = token
	}

	s.Event = models.Event{Title: "Olympia Invitational", Status: types.EVENT_PUBLISHED, OrganizerID: users[0].ID}
	if err := d.Create(&s.Event).Error; err != nil {
		log.Fatalf("Could not create event: %s\n", err.Error())
	}
	s.Ticket = models.Ticket{EventID: s.Event.ID, Name: "Bleachers", Quantity: 50, Price: 250, Currency: "PHP"}
	if err := d.Create(&s.Ticket).Error; err != nil {
		log.Fatalf("Could not create ticket: %s\n", err.Error())
	}

	router := setupRouter()
	router = maintenanceModeMiddleware(router)
	registerRoutes(router)
	s.Router = router
}

func (s *TestSuite) TearDownSuite() {
	inner, err := s.DB.DB()
	if err != nil {
		log.Printf("Error accessing inner db instance: %s\n", err.Error())
		return
	}
	inner.Close()
}

func (s *TestSuite) request(method, target, token string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		rd = strings.NewReader(string(b))
	}
	req, _ := http.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func (s *TestSuite) completedPurchase() models.TicketPurchase {
	p := models.TicketPurchase{
		TicketID:    s.Ticket.ID,
		EventID:     s.Event.ID,
		PurchaserID: 3,
		Quantity:    1,
		UnitPrice:   s.Ticket.Price,
		TotalAmount: s.Ticket.Price,
		Status:      types.PURCHASE_COMPLETED,
	}
	s.Require().NoError(s.DB.Create(&p).Error)
	return p
}

func (s *TestSuite) TestPingRoute() {
	w := s.request(http.MethodGet, "/", "", nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
}

func (s *TestSuite) TestMaintenanceMode() {
	s.T().Setenv("MAINTENANCE_MODE", "true")

	w := s.request(http.MethodGet, "/api/v1", "", nil)
	assert.Equal(s.T(), http.StatusServiceUnavailable, w.Code)
}

func (s *TestSuite) TestCheckInFirstWriteWins() {
	p := s.completedPurchase()
	body := map[string]any{
		"redemptionCode": p.RedemptionCode,
		"photoData":      utils.EncodePhotoData([]byte{0xff, 0xd8, 0xff, 0xe0}),
	}

	w := s.request(http.MethodPost, "/api/v1/check-in", s.VolunteerToken, body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	first := gjson.Parse(w.Body.String())
	assert.True(s.T(), first.Get("success").Bool())
	assert.Equal(s.T(), "checked_in", first.Get("status").String())
	assert.False(s.T(), first.Get("wasOfflineSync").Bool())
	assert.True(s.T(), first.Get("ticketPurchase.is_checked_in").Bool())
	assert.NotEmpty(s.T(), first.Get("ticketPurchase.check_in_photo").String())
	checkedInAt, err := time.Parse(time.RFC3339Nano, first.Get("ticketPurchase.check_in_time").String())
	s.Require().NoError(err)

	w = s.request(http.MethodPost, "/api/v1/check-in", s.VolunteerToken, body)
	s.Require().Equal(http.StatusConflict, w.Code, w.Body.String())
	second := gjson.Parse(w.Body.String())
	assert.Equal(s.T(), "Ticket already checked in", second.Get("error").String())
	existing, err := time.Parse(time.RFC3339Nano, second.Get("existingCheckIn.timestamp").String())
	s.Require().NoError(err)
	assert.WithinDuration(s.T(), checkedInAt, existing, time.Millisecond)
	assert.Equal(s.T(), first.Get("ticketPurchase.check_in_photo").String(), second.Get("existingCheckIn.photo").String())

	var audits int64
	s.DB.Model(&models.AuditLog{}).Where("entity_id = ?", strconv.Itoa(int(p.ID))).Count(&audits)
	assert.Equal(s.T(), int64(2), audits)
}

func (s *TestSuite) TestCheckInOfflineReplay() {
	p := s.completedPurchase()
	captured := time.Now().Add(-10 * time.Minute).UTC().Format(time.RFC3339Nano)
	w := s.request(http.MethodPost, "/api/v1/check-in", s.VolunteerToken, map[string]any{
		"ticketId":         p.RedemptionCode,
		"offlineTimestamp": captured,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	assert.True(s.T(), gjson.Get(w.Body.String(), "wasOfflineSync").Bool())

	var stored models.TicketPurchase
	s.Require().NoError(s.DB.First(&stored, p.ID).Error)
	s.Require().NotNil(stored.ClientCapturedAt)
	s.Require().NotNil(stored.CheckInTime)
	assert.True(s.T(), stored.CheckInTime.After(*stored.ClientCapturedAt))
}

func (s *TestSuite) TestCheckInRejections() {
	pending := models.TicketPurchase{
		TicketID: s.Ticket.ID, EventID: s.Event.ID, PurchaserID: 3, Quantity: 1, Status: types.PURCHASE_PENDING,
	}
	s.Require().NoError(s.DB.Create(&pending).Error)

	cases := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"missing code", map[string]any{}, http.StatusBadRequest},
		{"malformed code", map[string]any{"redemptionCode": "nope"}, http.StatusBadRequest},
		{"bad photo", map[string]any{"redemptionCode": pending.RedemptionCode, "photoData": "data:image/jpeg;base64,***"}, http.StatusBadRequest},
		{"bad timestamp", map[string]any{"redemptionCode": pending.RedemptionCode, "offlineTimestamp": "yesterday"}, http.StatusBadRequest},
		{"unknown code", map[string]any{"redemptionCode": "TIX-ZZZZZZZZ"}, http.StatusNotFound},
		{"pending purchase", map[string]any{"redemptionCode": pending.RedemptionCode}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			w := s.request(http.MethodPost, "/api/v1/check-in", s.VolunteerToken, tc.body)
			assert.Equal(s.T(), tc.status, w.Code, w.Body.String())
			assert.NotEmpty(s.T(), gjson.Get(w.Body.String(), "error").String())
		})
	}

	w := s.request(http.MethodPost, "/api/v1/check-in", s.VolunteerToken, map[string]any{})
	assert.Equal(s.T(), "Ticket ID is required", gjson.Get(w.Body.String(), "error").String())

	var stored models.TicketPurchase
	s.Require().NoError(s.DB.First(&stored, pending.ID).Error)
	assert.False(s.T(), stored.IsCheckedIn)
}

func (s *TestSuite) TestCheckInAuthorization() {
	p := s.completedPurchase()
	body := map[string]any{"redemptionCode": p.RedemptionCode}

	w := s.request(http.MethodPost, "/api/v1/check-in", "", body)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)

	w = s.request(http.MethodPost, "/api/v1/check-in", s.AttendeeToken, body)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	var stored models.TicketPurchase
	s.Require().NoError(s.DB.First(&stored, p.ID).Error)
	assert.False(s.T(), stored.IsCheckedIn)
}

func (s *TestSuite) TestEventsAndTickets() {
	w := s.request(http.MethodPost, "/api/v1/events", s.OrganizerToken, map[string]any{
		"title":     "Night Run",
		"location":  "Bonifacio",
		"starts_at": "2026-12-01 18:00:00 +08:00",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	eventID := gjson.Get(w.Body.String(), "id").Uint()

	w = s.request(http.MethodPost, "/api/v1/events", s.VolunteerToken, map[string]any{"title": "x", "starts_at": "2026-12-01 18:00:00 +08:00"})
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.request(http.MethodPost, "/api/v1/tickets", s.OrganizerToken, map[string]any{
		"name": "Runner", "event": eventID, "price": 0, "quantity": 2,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	ticketID := gjson.Get(w.Body.String(), "id").Uint()
	assert.Equal(s.T(), int64(2), gjson.Get(w.Body.String(), "data.remaining_quantity").Int())

	w = s.request(http.MethodPost, "/api/v1/tickets", s.OrganizerToken, map[string]any{
		"name": "Ghost", "event": 9999, "quantity": 1,
	})
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	// draft events refuse purchases
	target := "/api/v1/tickets/" + strconv.Itoa(int(ticketID)) + "/purchases"
	w = s.request(http.MethodPost, target, s.AttendeeToken, map[string]any{"quantity": 1})
	assert.Equal(s.T(), http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = s.request(http.MethodPatch, "/api/v1/events/"+strconv.Itoa(int(eventID))+"/publish", s.OrganizerToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	w = s.request(http.MethodPatch, "/api/v1/events/"+strconv.Itoa(int(eventID))+"/publish", s.OrganizerToken, nil)
	assert.Equal(s.T(), http.StatusConflict, w.Code)

	w = s.request(http.MethodPost, target, s.AttendeeToken, map[string]any{"quantity": 1})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(s.T(), string(types.PURCHASE_COMPLETED), gjson.Get(w.Body.String(), "data.status").String())
	code := gjson.Get(w.Body.String(), "data.redemption_code").String()
	assert.True(s.T(), utils.IsRedemptionCode(code))

	w = s.request(http.MethodPost, target, s.AttendeeToken, map[string]any{"quantity": 5})
	assert.Equal(s.T(), http.StatusUnprocessableEntity, w.Code)

	w = s.request(http.MethodGet, "/api/v1/tickets/"+strconv.Itoa(int(ticketID)), s.AttendeeToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	assert.Equal(s.T(), int64(1), gjson.Get(w.Body.String(), "data.remaining_quantity").Int())

	w = s.request(http.MethodPost, "/api/v1/tickets/verify", s.VolunteerToken, map[string]any{"redemptionCode": code})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	assert.True(s.T(), gjson.Get(w.Body.String(), "valid").Bool())

	w = s.request(http.MethodGet, "/api/v1/events/"+strconv.Itoa(int(eventID)), s.AttendeeToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	assert.Equal(s.T(), "published", gjson.Get(w.Body.String(), "data.status").String())
	assert.Equal(s.T(), int64(1), gjson.Get(w.Body.String(), "data.tickets.#").Int())
}

func (s *TestSuite) TestPurchaseLifecycle() {
	target := "/api/v1/tickets/" + strconv.Itoa(int(s.Ticket.ID)) + "/purchases"
	w := s.request(http.MethodPost, target, s.AttendeeToken, map[string]any{"quantity": 2})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(s.T(), string(types.PURCHASE_PENDING), gjson.Get(w.Body.String(), "data.status").String())
	purchaseID := strconv.Itoa(int(gjson.Get(w.Body.String(), "data.id").Int()))

	var tk models.Ticket
	s.Require().NoError(s.DB.First(&tk, s.Ticket.ID).Error)
	before := tk.RemainingQuantity

	w = s.request(http.MethodPost, "/api/v1/purchases/"+purchaseID+"/complete", s.AttendeeToken, nil)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.request(http.MethodPost, "/api/v1/purchases/"+purchaseID+"/complete", s.OrganizerToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	assert.Equal(s.T(), string(types.PURCHASE_COMPLETED), gjson.Get(w.Body.String(), "data.status").String())

	s.Require().NoError(s.DB.First(&tk, s.Ticket.ID).Error)
	assert.Equal(s.T(), before-2, tk.RemainingQuantity)

	w = s.request(http.MethodPost, "/api/v1/purchases/"+purchaseID+"/cancel", s.OrganizerToken, nil)
	assert.Equal(s.T(), http.StatusConflict, w.Code)

	w = s.request(http.MethodPost, "/api/v1/purchases/9999/complete", s.OrganizerToken, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	var audits int64
	s.DB.Model(&models.AuditLog{}).Where("entity_type = ? AND entity_id = ?", "ticket-purchases", purchaseID).Count(&audits)
	assert.Equal(s.T(), int64(2), audits)
}

func (s *TestSuite) TestCheckInSnapshot() {
	p := s.completedPurchase()
	w := s.request(http.MethodPost, "/api/v1/check-in", s.VolunteerToken, map[string]any{"redemptionCode": p.RedemptionCode})
	s.Require().Equal(http.StatusOK, w.Code)

	target := "/api/v1/events/" + strconv.Itoa(int(s.Event.ID)) + "/check-in-snapshot"
	w = s.request(http.MethodGet, target, s.VolunteerToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	res := gjson.Parse(w.Body.String())
	assert.Equal(s.T(), "Olympia Invitational", res.Get("event.title").String())
	entry := res.Get(`tickets.#(redemptionCode=="` + p.RedemptionCode + `")`)
	s.Require().True(entry.Exists())
	assert.True(s.T(), entry.Get("isCheckedIn").Bool())
	assert.Equal(s.T(), "Bleachers", entry.Get("ticketName").String())

	w = s.request(http.MethodGet, "/api/v1/events/9999/check-in-snapshot", s.VolunteerToken, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	w = s.request(http.MethodGet, target, s.AttendeeToken, nil)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)
}

func (s *TestSuite) TestReconciliationIssues() {
	p := s.completedPurchase()
	issue := models.ReconciliationIssue{
		Kind:       types.ISSUE_OVERSOLD,
		Status:     types.ISSUE_OPEN,
		PurchaseID: p.ID,
		TicketID:   p.TicketID,
		Quantity:   1,
	}
	s.Require().NoError(s.DB.Create(&issue).Error)
	id := strconv.Itoa(int(issue.ID))

	w := s.request(http.MethodGet, "/api/v1/reconciliation/issues?status=open", s.OrganizerToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	assert.True(s.T(), gjson.Get(w.Body.String(), `data.#(id==`+id+`)`).Exists())

	w = s.request(http.MethodGet, "/api/v1/reconciliation/issues?status=bogus", s.OrganizerToken, nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.request(http.MethodGet, "/api/v1/reconciliation/issues", s.VolunteerToken, nil)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	// oversold issues are never retried automatically
	w = s.request(http.MethodPost, "/api/v1/reconciliation/issues/"+id+"/retry", s.OrganizerToken, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	w = s.request(http.MethodPost, "/api/v1/reconciliation/issues/"+id+"/resolve", s.OrganizerToken, map[string]any{"note": "comped a seat"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	assert.Equal(s.T(), string(types.ISSUE_RESOLVED), gjson.Get(w.Body.String(), "data.status").String())

	w = s.request(http.MethodPost, "/api/v1/reconciliation/issues/"+id+"/resolve", s.OrganizerToken, map[string]any{})
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
