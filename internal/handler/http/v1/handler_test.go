package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/shenikar/resqlink/internal/config"
	"github.com/shenikar/resqlink/internal/models"
	"github.com/shenikar/resqlink/internal/ratelimit"
	"github.com/shenikar/resqlink/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var adminHeaders = map[string]string{"X-API-Key": "test-api-key"}

func testConfig() *config.Config {
	return &config.Config{
		APIKeys:      []string{"test-api-key"},
		CORSOrigins:  []string{"http://localhost:5173"},
		StoreTimeout: time.Second,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

// newTestHandler создает новый экземпляр Handler с мокированным сервисом
func newTestHandler(t *testing.T) (*Handler, *mocks.MockIncidentService, *gin.Engine) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockIncidentService(ctrl)

	handler := NewHandler(mockService, testLogger(), testConfig())

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := NewRouter(handler, RouterDeps{})

	return handler, mockService, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func storedIncident(title string, lat, lng float64) *models.Incident {
	now := time.Now().UTC()
	return &models.Incident{
		ID:        uuid.New(),
		Title:     title,
		Category:  models.CategoryFire,
		Severity:  models.SeverityCritical,
		Location:  models.NewGeoPoint(lat, lng, "Station Road"),
		Status:    models.StatusPending,
		Reporter:  models.Reporter{Name: models.DefaultReporterName},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateIncident_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()
	reqBody := CreateIncidentRequest{
		Title:    "Fire at Market",
		Severity: "Critical",
		Location: "Station Road",
		Lat:      NewCoordinate(19.24),
		Lng:      NewCoordinate(73.13),
	}

	mockService.EXPECT().
		CreateIncident(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			// Координаты должны прийти в порядке [lng, lat]
			assert.Equal(t, [2]float64{73.13, 19.24}, inc.Location.Coordinates)
			assert.Equal(t, "Station Road", inc.Location.Address)
			inc.ID = incidentID // Симулируем, что хранилище присвоило ID
			inc.Status = models.StatusPending
			return nil
		}).Times(1)

	w := makeRequest(router, "POST", "/api/reports", jsonBody(t, reqBody))

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp CreateIncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, incidentID, resp.IncidentID)
	require.NotNil(t, resp.Data)
	assert.Equal(t, incidentID, resp.Data.ID)
	assert.Equal(t, 19.24, resp.Data.Lat)
	assert.Equal(t, 73.13, resp.Data.Lng)
	assert.Equal(t, [2]float64{73.13, 19.24}, resp.Data.Location.Coordinates)
}

func TestCreateIncident_StringCoordinates(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().
		CreateIncident(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			assert.Equal(t, [2]float64{73.135, 19.2438}, inc.Location.Coordinates)
			inc.ID = uuid.New()
			return nil
		}).Times(1)

	body := `{"title":"Flooded underpass","lat":" 19.2438 ","lng":"73.135","reporterName":"Asha"}`
	w := makeRequest(router, "POST", "/api/reports", bytes.NewBufferString(body))

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateIncident_CoordinateErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "missing lat", body: `{"title":"Fire at Market","lng":73.13}`, wantField: "lat"},
		{name: "empty lng string", body: `{"title":"Fire at Market","lat":19.24,"lng":""}`, wantField: "lng"},
		{name: "non numeric lat", body: `{"title":"Fire at Market","lat":"north","lng":73.13}`, wantField: "lat"},
		{name: "null lng", body: `{"title":"Fire at Market","lat":19.24,"lng":null}`, wantField: "lng"},
		{name: "missing title", body: `{"lat":19.24,"lng":73.13}`, wantField: "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mockService, router := newTestHandler(t)
			mockService.EXPECT().CreateIncident(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

			w := makeRequest(router, "POST", "/api/reports", bytes.NewBufferString(tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantField, decodeError(t, w).Field)
		})
	}
}

func TestCreateIncident_ReporterContactIsFreeText(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().
		CreateIncident(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			assert.Equal(t, "call me", inc.Reporter.Email)
			assert.Equal(t, "near the bus stop", inc.Reporter.Phone)
			inc.ID = uuid.New()
			return nil
		}).Times(1)

	body := `{"title":"Fire at Market","lat":19.24,"lng":73.13,"reporterEmail":"call me","reporterPhone":"near the bus stop"}`
	w := makeRequest(router, "POST", "/api/reports", bytes.NewBufferString(body))

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateIncident_InvalidJSON(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().CreateIncident(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/reports", bytes.NewBufferString(`{"title": "test"`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestCreateIncident_ServiceValidationError(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().
		CreateIncident(gomock.Any(), gomock.Any()).
		Return(apperr.Validation("lat", "invalid latitude: must be between -90 and 90")).
		Times(1)

	w := makeRequest(router, "POST", "/api/reports", bytes.NewBufferString(`{"title":"Fire at Market","lat":95,"lng":73.13}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "lat", resp.Field)
	assert.Contains(t, resp.Error, "latitude")
}

func TestCreateIncident_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "store unavailable",
			err:        fmt.Errorf("service: could not create incident: %w", apperr.Unavailable("store did not respond in time", context.DeadlineExceeded)),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `"retryable":true`,
		},
		{
			name:       "unexpected error",
			err:        errors.New("failed to create incident in service"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mockService, router := newTestHandler(t)
			mockService.EXPECT().CreateIncident(gomock.Any(), gomock.Any()).Return(tt.err).Times(1)

			w := makeRequest(router, "POST", "/api/reports", bytes.NewBufferString(`{"title":"Fire at Market","lat":1,"lng":2}`))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestGetIncident_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	expected := storedIncident("Retrieved Incident", 30.0, 40.0)

	mockService.EXPECT().GetIncident(gomock.Any(), expected.ID).Return(expected, nil).Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/reports/%s", expected.ID.String()), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, expected.ID, resp.ID)
	assert.Equal(t, expected.Title, resp.Title)
	assert.Equal(t, 30.0, resp.Lat)
	assert.Equal(t, 40.0, resp.Lng)
	assert.Equal(t, "Point", resp.Location.Type)
}

func TestGetIncident_InvalidID(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().GetIncident(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "GET", "/api/reports/invalid-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid incident ID")
}

func TestGetIncident_NotFound(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()
	serviceError := fmt.Errorf("service: could not get incident: %w", apperr.NotFound("incident not found"))

	mockService.EXPECT().GetIncident(gomock.Any(), incidentID).Return(nil, serviceError).Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/reports/%s", incidentID.String()), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "incident not found")
}

func TestListIncidents_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidents := []*models.Incident{
		storedIncident("Incident 1", 1, 1),
		storedIncident("Incident 2", 2, 2),
	}
	wantFilter := models.IncidentFilter{
		Status:   models.StatusPending,
		Severity: models.SeverityHigh,
		Search:   "market",
		Page:     2,
		Limit:    5,
	}

	mockService.EXPECT().
		ListIncidents(gomock.Any(), wantFilter).
		Return(&models.IncidentPage{Incidents: incidents, Total: 12, Page: 2, Limit: 5}, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/reports?status=pending&severity=High&search=%20market%20&page=2&limit=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp IncidentListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Incidents, 2)
	assert.Equal(t, PaginationResponse{Page: 2, Limit: 5, Total: 12, Pages: 3}, resp.Pagination)
}

func TestListIncidents_Defaults(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().
		ListIncidents(gomock.Any(), models.IncidentFilter{Page: 1, Limit: 20}).
		Return(&models.IncidentPage{Incidents: []*models.Incident{}, Page: 1, Limit: 20}, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/reports?status=all", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"incidents":[]`)
}

func TestListIncidents_ClampsPagination(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().
		ListIncidents(gomock.Any(), models.IncidentFilter{Page: 1, Limit: 100}).
		Return(&models.IncidentPage{Page: 1, Limit: 100}, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/reports?page=-3&limit=1000", nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListIncidents_InvalidParams(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantField string
	}{
		{name: "unknown status", query: "status=open", wantField: "status"},
		{name: "unknown severity", query: "severity=Extreme", wantField: "severity"},
		{name: "unknown category", query: "category=Alien", wantField: "category"},
		{name: "page not a number", query: "page=two", wantField: "page"},
		{name: "limit not a number", query: "limit=1.5", wantField: "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mockService, router := newTestHandler(t)
			mockService.EXPECT().ListIncidents(gomock.Any(), gomock.Any()).Times(0)

			w := makeRequest(router, "GET", "/api/reports?"+tt.query, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantField, decodeError(t, w).Field)
		})
	}
}

func TestListIncidents_StoreFailure(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().ListIncidents(gomock.Any(), gomock.Any()).Return(nil, errors.New("database error")).Times(1)

	w := makeRequest(router, "GET", "/api/reports", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUpdateStatus_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	updated := storedIncident("Fire at Market", 19.24, 73.13)
	updated.Status = models.StatusResolved
	updated.AdminNotes = "Fire extinguished"

	mockService.EXPECT().
		UpdateStatus(gomock.Any(), updated.ID, models.StatusResolved, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ models.Status, notes *string) (*models.Incident, error) {
			require.NotNil(t, notes)
			assert.Equal(t, "Fire extinguished", *notes)
			return updated, nil
		}).Times(1)

	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/reports/%s/status", updated.ID),
		jsonBody(t, UpdateStatusRequest{Status: "resolved", Notes: &updated.AdminNotes}))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "resolved", resp.Status)
	assert.Equal(t, "Fire extinguished", resp.AdminNotes)
}

func TestUpdateStatus_WithoutNotes(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	updated := storedIncident("Fire at Market", 19.24, 73.13)

	mockService.EXPECT().
		UpdateStatus(gomock.Any(), updated.ID, models.StatusPending, gomock.Nil()).
		Return(updated, nil).Times(1)

	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/reports/%s/status", updated.ID), bytes.NewBufferString(`{"status":"pending"}`))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/reports/%s/status", uuid.New()), bytes.NewBufferString(`{"status":"done"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "status", resp.Field)
	assert.Equal(t, []string{"pending", "in-progress", "resolved", "closed"}, resp.Allowed)
}

func TestUpdateStatus_MissingStatus(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/reports/%s/status", uuid.New()), bytes.NewBufferString(`{"notes":"x"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "status", decodeError(t, w).Field)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	id := uuid.New()
	mockService.EXPECT().
		UpdateStatus(gomock.Any(), id, models.StatusClosed, gomock.Any()).
		Return(nil, apperr.NotFound("incident not found")).Times(1)

	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/reports/%s/status", id), bytes.NewBufferString(`{"status":"closed"}`))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkUpdateStatus(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	body := fmt.Sprintf(`{"ids":["%s","%s"],"status":"closed"}`, a, b)

	t.Run("requires api key", func(t *testing.T) {
		_, mockService, router := newTestHandler(t)
		mockService.EXPECT().BulkUpdateStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		w := makeRequest(router, "PATCH", "/api/reports/bulk-status", bytes.NewBufferString(body))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "API key required")
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		_, mockService, router := newTestHandler(t)
		mockService.EXPECT().BulkUpdateStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		w := makeRequest(router, "PATCH", "/api/reports/bulk-status", bytes.NewBufferString(body),
			map[string]string{"Authorization": "Bearer wrong-key"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid API key")
	})

	t.Run("updates with bearer token", func(t *testing.T) {
		_, mockService, router := newTestHandler(t)
		mockService.EXPECT().
			BulkUpdateStatus(gomock.Any(), []uuid.UUID{a, b}, models.StatusClosed).
			Return(int64(2), nil).Times(1)

		w := makeRequest(router, "PATCH", "/api/reports/bulk-status", bytes.NewBufferString(body),
			map[string]string{"Authorization": "Bearer test-api-key"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"updated":2}`, w.Body.String())
	})

	t.Run("bad id", func(t *testing.T) {
		_, mockService, router := newTestHandler(t)
		mockService.EXPECT().BulkUpdateStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		w := makeRequest(router, "PATCH", "/api/reports/bulk-status",
			bytes.NewBufferString(`{"ids":["nope"],"status":"closed"}`), adminHeaders)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid incident ID")
	})

	t.Run("empty ids", func(t *testing.T) {
		_, mockService, router := newTestHandler(t)
		mockService.EXPECT().BulkUpdateStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		w := makeRequest(router, "PATCH", "/api/reports/bulk-status",
			bytes.NewBufferString(`{"ids":[],"status":"closed"}`), adminHeaders)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ids", decodeError(t, w).Field)
	})
}

func TestDeleteIncident(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, mockService, router := newTestHandler(t)
		id := uuid.New()
		mockService.EXPECT().DeleteIncident(gomock.Any(), id).Return(nil).Times(1)

		w := makeRequest(router, "DELETE", fmt.Sprintf("/api/reports/%s", id), nil, adminHeaders)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Incident deleted successfully")
	})

	t.Run("unauthorized", func(t *testing.T) {
		_, mockService, router := newTestHandler(t)
		mockService.EXPECT().DeleteIncident(gomock.Any(), gomock.Any()).Times(0)

		w := makeRequest(router, "DELETE", fmt.Sprintf("/api/reports/%s", uuid.New()), nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		_, mockService, router := newTestHandler(t)
		id := uuid.New()
		mockService.EXPECT().DeleteIncident(gomock.Any(), id).Return(apperr.NotFound("incident not found")).Times(1)

		w := makeRequest(router, "DELETE", fmt.Sprintf("/api/reports/%s", id), nil, adminHeaders)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestLiveMap_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incident := storedIncident("Fire at Market", 19.24, 73.13)

	mockService.EXPECT().
		LiveIncidents(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q models.ProximityQuery) ([]*models.NearbyIncident, error) {
			assert.Equal(t, 19.24, q.Lat)
			assert.Equal(t, 73.13, q.Lng)
			assert.Equal(t, 1000.0, q.RadiusMeters)
			return []*models.NearbyIncident{{Incident: incident, DistanceMeters: 12.5}}, nil
		}).Times(1)

	w := makeRequest(router, "GET", "/api/map/live?lat=19.24&lng=73.13&radius=1000", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp LiveMapResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 1000.0, resp.Radius)
	assert.Equal(t, PointResponse{Lat: 19.24, Lng: 73.13}, resp.Center)
	require.Len(t, resp.Incidents, 1)
	assert.Equal(t, 12.5, resp.Incidents[0].Distance)
	assert.Equal(t, 19.24, resp.Incidents[0].Lat)
	assert.Equal(t, 73.13, resp.Incidents[0].Lng)
}

func TestLiveMap_DefaultRadius(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().
		LiveIncidents(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q models.ProximityQuery) ([]*models.NearbyIncident, error) {
			assert.Equal(t, float64(models.DefaultRadiusMeters), q.RadiusMeters)
			return []*models.NearbyIncident{}, nil
		}).Times(1)

	w := makeRequest(router, "GET", "/api/map/live?lat=19.24&lng=73.13", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"radius":50000`)
}

func TestLiveMap_InvalidParams(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantField string
	}{
		{name: "missing lat", query: "lng=73.13", wantField: "lat"},
		{name: "missing lng", query: "lat=19.24", wantField: "lng"},
		{name: "lat out of range", query: "lat=95&lng=73.13", wantField: "lat"},
		{name: "lng not a number", query: "lat=19&lng=east", wantField: "lng"},
		{name: "negative radius", query: "lat=19&lng=73&radius=-5", wantField: "radius"},
		{name: "zero radius", query: "lat=19&lng=73&radius=0", wantField: "radius"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mockService, router := newTestHandler(t)
			mockService.EXPECT().LiveIncidents(gomock.Any(), gomock.Any()).Times(0)

			w := makeRequest(router, "GET", "/api/map/live?"+tt.query, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantField, decodeError(t, w).Field)
		})
	}
}

func TestBoundsMap(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	want := models.Bounds{South: 18, West: 72, North: 20, East: 74}

	mockService.EXPECT().
		IncidentsInBounds(gomock.Any(), want).
		Return([]*models.Incident{storedIncident("Fire at Market", 19.24, 73.13)}, nil).Times(1)

	w := makeRequest(router, "GET", "/api/map/bounds?south=18&west=72&north=20&east=74", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp BoundsMapResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, BoundsResponse{South: 18, West: 72, North: 20, East: 74}, resp.Bounds)
}

func TestBoundsMap_Invalid(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().IncidentsInBounds(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/map/bounds?south=30&west=72&north=20&east=74", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "south", decodeError(t, w).Field)
}

func TestGetStats(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	stats := models.NewStats()
	stats.Add(storedIncident("Fire at Market", 1, 1))

	mockService.EXPECT().GetStats(gomock.Any()).Return(stats, nil).Times(1)

	w := makeRequest(router, "GET", "/api/dashboard/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Stats.Total)
	assert.Equal(t, int64(1), resp.Stats.Active)
	assert.Equal(t, int64(1), resp.Stats.ByCategory["Fire"])
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		healthy   bool
		wantStore string
	}{
		{name: "store connected", healthy: true, wantStore: "connected"},
		{name: "store disconnected", healthy: false, wantStore: "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mockService, router := newTestHandler(t)
			mockService.EXPECT().StoreHealthy(gomock.Any()).Return(tt.healthy).Times(1)

			w := makeRequest(router, "GET", "/api/health", nil)

			assert.Equal(t, http.StatusOK, w.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "OK", resp.Status)
			assert.Equal(t, tt.wantStore, resp.Store)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestIndexAndNotFound(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "GET /api/map/live")

	w = makeRequest(router, "GET", "/api/incidents", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"/api/incidents"`)
	assert.Contains(t, w.Body.String(), "availableEndpoints")
}

func TestRateLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockIncidentService(ctrl)
	mockService.EXPECT().StoreHealthy(gomock.Any()).Return(true).Times(2)

	gin.SetMode(gin.TestMode)
	router := NewRouter(NewHandler(mockService, testLogger(), testConfig()), RouterDeps{
		Limiter: ratelimit.NewClientLimiter(2, time.Hour),
	})

	for i := 0; i < 2; i++ {
		w := makeRequest(router, "GET", "/api/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := makeRequest(router, "GET", "/api/health", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))

	// маршруты вне /api не ограничиваются
	w = makeRequest(router, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS_Preflight(t *testing.T) {
	_, _, router := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/reports", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
