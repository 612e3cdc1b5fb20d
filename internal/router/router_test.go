package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authhandler "github.com/jwalitptl/mis-api/internal/handler/auth"
	consultationhandler "github.com/jwalitptl/mis-api/internal/handler/consultation"
	"github.com/jwalitptl/mis-api/internal/handler/docs"
	"github.com/jwalitptl/mis-api/internal/handler/health"
	"github.com/jwalitptl/mis-api/internal/middleware"
	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
	"github.com/jwalitptl/mis-api/internal/repository/memory"
	"github.com/jwalitptl/mis-api/internal/router"
	authservice "github.com/jwalitptl/mis-api/internal/service/auth"
	consultationservice "github.com/jwalitptl/mis-api/internal/service/consultation"
	"github.com/jwalitptl/mis-api/pkg/auth"
	"github.com/jwalitptl/mis-api/pkg/messaging"
	"github.com/jwalitptl/mis-api/pkg/metrics"
	"github.com/jwalitptl/mis-api/pkg/security"
)

const eventsChannel = "consultations.events"

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	store  *repository.Store
	broker *messaging.MemoryBroker
}

type response struct {
	Code int
	Raw  []byte
	Data map[string]interface{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	broker := messaging.NewMemoryBroker()
	t.Cleanup(func() { _ = broker.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "mis")

	authSvc := authservice.NewService(
		store.Users,
		auth.NewJWTService("test-secret", time.Hour, 24*time.Hour),
		security.NewBcryptHasher(4),
		authservice.NewMemoryBlacklist(),
		m,
	)
	consultationSvc := consultationservice.NewService(store, messaging.NewPublisher(broker, eventsChannel), m)

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		authhandler.NewHandler(authSvc),
		consultationhandler.NewHandler(consultationSvc),
		health.NewHandler(store.Pinger),
		docs.NewHandler("test"),
		router.RouterConfig{
			Mode:       gin.TestMode,
			Registerer: reg,
			Gatherer:   reg,
			Timeout:    5 * time.Second,
		},
	)
	r.Setup()

	return &testServer{t: t, engine: r.Engine(), store: store, broker: broker}
}

func (s *testServer) makeRequest(method, path string, body interface{}, token string) response {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	resp := response{Code: w.Code, Raw: w.Body.Bytes()}
	_ = json.Unmarshal(resp.Raw, &resp.Data)
	return resp
}

func (s *testServer) register(username string, role model.Role) {
	s.t.Helper()
	resp := s.makeRequest(http.MethodPost, "/api/auth/register/", map[string]interface{}{
		"username":   username,
		"password":   "strongpassword",
		"role":       role,
		"first_name": username,
		"last_name":  "Test",
	}, "")
	require.Equal(s.t, http.StatusCreated, resp.Code, string(resp.Raw))
}

func (s *testServer) login(username string) string {
	s.t.Helper()
	resp := s.makeRequest(http.MethodPost, "/api/auth/login/", map[string]interface{}{
		"username": username,
		"password": "strongpassword",
	}, "")
	require.Equal(s.t, http.StatusOK, resp.Code, string(resp.Raw))
	token, _ := resp.Data["access"].(string)
	require.NotEmpty(s.t, token)
	return token
}

func (s *testServer) doctorID(username string) int64 {
	s.t.Helper()
	ctx := context.Background()
	u, err := s.store.Users.GetByUsername(ctx, username)
	require.NoError(s.t, err)
	d, err := s.store.Doctors.GetByUserID(ctx, u.ID)
	require.NoError(s.t, err)
	return d.ID
}

func (s *testServer) patientID(username string) int64 {
	s.t.Helper()
	ctx := context.Background()
	u, err := s.store.Users.GetByUsername(ctx, username)
	require.NoError(s.t, err)
	p, err := s.store.Patients.GetByUserID(ctx, u.ID)
	require.NoError(s.t, err)
	return p.ID
}

func consultationBody(doctorID, patientID int64, start time.Time, length time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"doctor_id":  doctorID,
		"patient_id": patientID,
		"start_time": start.UTC().Format(time.RFC3339),
		"end_time":   start.Add(length).UTC().Format(time.RFC3339),
		"notes":      "Первичная консультация",
	}
}

func (s *testServer) createConsultation(token string, doctorID, patientID int64) int64 {
	s.t.Helper()
	resp := s.makeRequest(http.MethodPost, "/api/consultations/",
		consultationBody(doctorID, patientID, time.Now().Add(24*time.Hour), 30*time.Minute), token)
	require.Equal(s.t, http.StatusCreated, resp.Code, string(resp.Raw))
	return int64(resp.Data["id"].(float64))
}

func (s *testServer) list(token string, query string) []map[string]interface{} {
	s.t.Helper()
	resp := s.makeRequest(http.MethodGet, "/api/consultations/"+query, nil, token)
	require.Equal(s.t, http.StatusOK, resp.Code, string(resp.Raw))
	var items []map[string]interface{}
	require.NoError(s.t, json.Unmarshal(resp.Raw, &items))
	return items
}

func TestConsultationFlow(t *testing.T) {
	s := newTestServer(t)
	s.register("anna", model.RolePatient)
	s.register("alex", model.RoleDoctor)
	token := s.login("anna")

	events, err := s.broker.Subscribe(context.Background(), eventsChannel)
	require.NoError(t, err)

	resp := s.makeRequest(http.MethodPost, "/api/consultations/",
		consultationBody(s.doctorID("alex"), s.patientID("anna"), time.Now().Add(24*time.Hour), 30*time.Minute), token)
	require.Equal(t, http.StatusCreated, resp.Code, string(resp.Raw))
	assert.Equal(t, "pending", resp.Data["status"])
	assert.Nil(t, resp.Data["clinic"])

	doctor := resp.Data["doctor"].(map[string]interface{})
	assert.Equal(t, "Test alex", doctor["full_name"])
	user := doctor["user"].(map[string]interface{})
	assert.Equal(t, "alex", user["username"])
	assert.NotContains(t, resp.Data, "doctor_id")

	items := s.list(token, "")
	assert.Len(t, items, 1)

	select {
	case raw := <-events:
		var evt model.ConsultationEvent
		require.NoError(t, json.Unmarshal(raw, &evt))
		assert.Equal(t, model.EventConsultationCreated, evt.Type)
		assert.Equal(t, model.ConsultationStatusPending, evt.Status)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)

	resp := s.makeRequest(http.MethodPost, "/api/auth/register/", map[string]interface{}{
		"username": "anna",
		"password": "strongpassword",
		"role":     "patient",
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "User created successfully", resp.Data["detail"])
	assert.NotContains(t, resp.Data, "access")

	t.Run("duplicate username", func(t *testing.T) {
		resp := s.makeRequest(http.MethodPost, "/api/auth/register/", map[string]interface{}{
			"username": "anna",
			"password": "strongpassword",
			"role":     "doctor",
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Data, "username")

		u, err := s.store.Users.GetByUsername(context.Background(), "anna")
		require.NoError(t, err)
		assert.Equal(t, model.RolePatient, u.Role)
		_, err = s.store.Doctors.GetByUserID(context.Background(), u.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("field validation", func(t *testing.T) {
		resp := s.makeRequest(http.MethodPost, "/api/auth/register/", map[string]interface{}{
			"username": "boris",
			"password": "short",
			"role":     "nurse",
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Data, "password")
		assert.Contains(t, resp.Data, "role")
	})
}

func TestLoginAndRefresh(t *testing.T) {
	s := newTestServer(t)
	s.register("anna", model.RolePatient)

	resp := s.makeRequest(http.MethodPost, "/api/auth/login/", map[string]interface{}{
		"username": "anna",
		"password": "wrongpassword",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "No active account found with the given credentials", resp.Data["detail"])

	resp = s.makeRequest(http.MethodPost, "/api/auth/login/", map[string]interface{}{
		"username": "anna",
		"password": "strongpassword",
	}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	refresh := resp.Data["refresh"].(string)

	resp = s.makeRequest(http.MethodPost, "/api/auth/refresh/", map[string]interface{}{"refresh": refresh}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Data["access"])
	assert.NotEqual(t, refresh, resp.Data["refresh"])

	resp = s.makeRequest(http.MethodPost, "/api/auth/refresh/", map[string]interface{}{"refresh": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)

	resp := s.makeRequest(http.MethodGet, "/api/consultations/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "Authentication credentials were not provided.", resp.Data["detail"])

	resp = s.makeRequest(http.MethodGet, "/api/consultations/", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestDoctorCannotCreate(t *testing.T) {
	s := newTestServer(t)
	s.register("anna", model.RolePatient)
	s.register("alex", model.RoleDoctor)

	resp := s.makeRequest(http.MethodPost, "/api/consultations/",
		consultationBody(s.doctorID("alex"), s.patientID("anna"), time.Now().Add(time.Hour), 30*time.Minute), s.login("alex"))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "You do not have permission to perform this action.", resp.Data["detail"])
}

func TestListScope(t *testing.T) {
	s := newTestServer(t)
	s.register("root", model.RoleAdmin)
	s.register("anna", model.RolePatient)
	s.register("olga", model.RolePatient)
	s.register("alex", model.RoleDoctor)
	s.register("boris", model.RoleDoctor)

	admin := s.login("root")
	s.createConsultation(admin, s.doctorID("alex"), s.patientID("anna"))
	s.createConsultation(admin, s.doctorID("boris"), s.patientID("olga"))
	s.createConsultation(admin, s.doctorID("alex"), s.patientID("olga"))

	assert.Len(t, s.list(admin, ""), 3)
	assert.Len(t, s.list(s.login("anna"), ""), 1)
	assert.Len(t, s.list(s.login("olga"), ""), 2)
	assert.Len(t, s.list(s.login("alex"), ""), 2)
	assert.Len(t, s.list(s.login("boris"), ""), 1)

	for _, item := range s.list(s.login("boris"), "") {
		patient := item["patient"].(map[string]interface{})
		assert.Equal(t, float64(s.patientID("olga")), patient["id"])
	}

	t.Run("filters", func(t *testing.T) {
		assert.Len(t, s.list(admin, fmt.Sprintf("?doctor__id=%d", s.doctorID("alex"))), 2)
		assert.Len(t, s.list(admin, "?status=pending"), 3)
		assert.Len(t, s.list(admin, "?status=paid"), 0)
		assert.Len(t, s.list(admin, "?search=boris"), 1)

		resp := s.makeRequest(http.MethodGet, "/api/consultations/?status=unknown", nil, admin)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Data, "status")

		resp = s.makeRequest(http.MethodGet, "/api/consultations/?clinic__id=abc", nil, admin)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Data, "clinic__id")
	})

	t.Run("retrieve outside scope", func(t *testing.T) {
		items := s.list(s.login("olga"), "")
		id := int64(items[0]["id"].(float64))

		resp := s.makeRequest(http.MethodGet, fmt.Sprintf("/api/consultations/%d/", id), nil, s.login("anna"))
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, "Not found.", resp.Data["detail"])

		resp = s.makeRequest(http.MethodGet, "/api/consultations/abc/", nil, admin)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestChangeStatus(t *testing.T) {
	s := newTestServer(t)
	s.register("root", model.RoleAdmin)
	s.register("anna", model.RolePatient)
	s.register("alex", model.RoleDoctor)
	s.register("boris", model.RoleDoctor)

	id := s.createConsultation(s.login("anna"), s.doctorID("alex"), s.patientID("anna"))
	path := fmt.Sprintf("/api/consultations/%d/change_status/", id)

	t.Run("owning doctor", func(t *testing.T) {
		resp := s.makeRequest(http.MethodPost, path, map[string]string{"status": "confirmed"}, s.login("alex"))
		require.Equal(t, http.StatusOK, resp.Code, string(resp.Raw))
		assert.Equal(t, "confirmed", resp.Data["status"])
	})

	t.Run("unrelated doctor", func(t *testing.T) {
		resp := s.makeRequest(http.MethodPost, path, map[string]string{"status": "paid"}, s.login("boris"))
		assert.Equal(t, http.StatusForbidden, resp.Code)
		assert.Equal(t, "Permission denied", resp.Data["detail"])

		got, err := s.store.Consultations.Get(context.Background(), id, model.Unrestricted())
		require.NoError(t, err)
		assert.Equal(t, model.ConsultationStatusConfirmed, got.Status)
	})

	t.Run("invalid status for every role", func(t *testing.T) {
		for _, user := range []string{"root", "anna", "alex", "boris"} {
			resp := s.makeRequest(http.MethodPost, path, map[string]string{"status": "cancelled"}, s.login(user))
			assert.Equal(t, http.StatusBadRequest, resp.Code, user)
			assert.Equal(t, "Invalid status value", resp.Data["detail"], user)
		}
	})

	t.Run("missing status", func(t *testing.T) {
		resp := s.makeRequest(http.MethodPost, path, map[string]string{}, s.login("alex"))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "Status is required", resp.Data["detail"])
	})

	t.Run("admin", func(t *testing.T) {
		resp := s.makeRequest(http.MethodPost, path, map[string]string{"status": "pending"}, s.login("root"))
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("unknown consultation", func(t *testing.T) {
		resp := s.makeRequest(http.MethodPost, "/api/consultations/9999/change_status/", map[string]string{"status": "paid"}, s.login("root"))
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.register("anna", model.RolePatient)
	s.register("alex", model.RoleDoctor)
	s.register("boris", model.RoleDoctor)

	anna := s.login("anna")
	id := s.createConsultation(anna, s.doctorID("alex"), s.patientID("anna"))
	path := fmt.Sprintf("/api/consultations/%d/", id)

	resp := s.makeRequest(http.MethodPatch, path, map[string]string{"notes": "updated"}, anna)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = s.makeRequest(http.MethodPatch, path, map[string]string{"notes": "updated"}, s.login("boris"))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = s.makeRequest(http.MethodPatch, path, map[string]string{"notes": "updated"}, s.login("alex"))
	require.Equal(t, http.StatusOK, resp.Code, string(resp.Raw))
	assert.Equal(t, "updated", resp.Data["notes"])

	body := consultationBody(s.doctorID("alex"), s.patientID("anna"), time.Now().Add(48*time.Hour), time.Hour)
	body["status"] = "started"
	resp = s.makeRequest(http.MethodPut, path, body, s.login("alex"))
	require.Equal(t, http.StatusOK, resp.Code, string(resp.Raw))
	assert.Equal(t, "started", resp.Data["status"])

	resp = s.makeRequest(http.MethodDelete, path, nil, s.login("alex"))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = s.makeRequest(http.MethodDelete, path, nil, anna)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, s.list(anna, ""))
}

func TestPutKeepsOmittedOptionalFields(t *testing.T) {
	s := newTestServer(t)
	s.register("anna", model.RolePatient)
	s.register("alex", model.RoleDoctor)

	clinic := &model.Clinic{Name: "Medsi"}
	require.NoError(t, s.store.Clinics.Create(context.Background(), clinic))

	anna := s.login("anna")
	body := consultationBody(s.doctorID("alex"), s.patientID("anna"), time.Now().Add(24*time.Hour), 30*time.Minute)
	body["clinic"] = clinic.ID
	resp := s.makeRequest(http.MethodPost, "/api/consultations/", body, anna)
	require.Equal(t, http.StatusCreated, resp.Code, string(resp.Raw))
	path := fmt.Sprintf("/api/consultations/%d/", int64(resp.Data["id"].(float64)))

	put := consultationBody(s.doctorID("alex"), s.patientID("anna"), time.Now().Add(48*time.Hour), time.Hour)
	delete(put, "notes")
	resp = s.makeRequest(http.MethodPut, path, put, s.login("alex"))
	require.Equal(t, http.StatusOK, resp.Code, string(resp.Raw))
	assert.Equal(t, float64(clinic.ID), resp.Data["clinic"])
	assert.Equal(t, "Первичная консультация", resp.Data["notes"])

	put["clinic"] = nil
	resp = s.makeRequest(http.MethodPut, path, put, s.login("alex"))
	require.Equal(t, http.StatusOK, resp.Code, string(resp.Raw))
	assert.Nil(t, resp.Data["clinic"])
}

func TestPatchRejectsNullReferences(t *testing.T) {
	s := newTestServer(t)
	s.register("anna", model.RolePatient)
	s.register("alex", model.RoleDoctor)

	anna := s.login("anna")
	id := s.createConsultation(anna, s.doctorID("alex"), s.patientID("anna"))
	path := fmt.Sprintf("/api/consultations/%d/", id)

	resp := s.makeRequest(http.MethodPatch, path, map[string]interface{}{"doctor_id": nil}, s.login("alex"))
	require.Equal(t, http.StatusBadRequest, resp.Code, string(resp.Raw))
	assert.Equal(t, []interface{}{"This field may not be null."}, resp.Data["doctor_id"])
}

func TestTimeWindow(t *testing.T) {
	s := newTestServer(t)
	s.register("anna", model.RolePatient)
	s.register("alex", model.RoleDoctor)
	anna := s.login("anna")

	start := time.Now().Add(24 * time.Hour)
	resp := s.makeRequest(http.MethodPost, "/api/consultations/",
		consultationBody(s.doctorID("alex"), s.patientID("anna"), start, 0), anna)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, []interface{}{"end_time must be after start_time"}, resp.Data["non_field_errors"])
	assert.Empty(t, s.list(anna, ""))

	id := s.createConsultation(anna, s.doctorID("alex"), s.patientID("anna"))
	resp = s.makeRequest(http.MethodPatch, fmt.Sprintf("/api/consultations/%d/", id), map[string]string{
		"end_time": start.Add(-time.Hour).UTC().Format(time.RFC3339),
	}, s.login("alex"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Data, "non_field_errors")
}

func TestUnknownReferences(t *testing.T) {
	s := newTestServer(t)
	s.register("anna", model.RolePatient)

	body := consultationBody(404, s.patientID("anna"), time.Now().Add(time.Hour), time.Hour)
	body["clinic"] = 77
	resp := s.makeRequest(http.MethodPost, "/api/consultations/", body, s.login("anna"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, []interface{}{`Invalid pk "404" - object does not exist.`}, resp.Data["doctor_id"])
	assert.Contains(t, resp.Data, "clinic")
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health/live", "/health/ready", "/api/schema/", "/api/docs/"} {
		resp := s.makeRequest(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}

	resp := s.makeRequest(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, string(resp.Raw), "mis_http_requests_total")
}
