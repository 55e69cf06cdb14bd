package v1

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/shenikar/resqlink/internal/config"
	"github.com/shenikar/resqlink/internal/models"
	"github.com/shenikar/resqlink/internal/service"
	"github.com/sirupsen/logrus"
)

// Version попадает в /api/health и индекс сервиса, переопределяется через -ldflags
var Version = "1.0.0"

type Handler struct {
	incidentService service.IncidentService
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
	startedAt       time.Time
}

func NewHandler(incidentService service.IncidentService, logger *logrus.Logger, cfg *config.Config) *Handler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Handler{
		incidentService: incidentService,
		logger:          logger,
		validate:        validate,
		cfg:             cfg,
		startedAt:       time.Now(),
	}
}

// @Summary Report a new incident
// @Description Validate and store a citizen report. lat and lng accept numbers or numeric strings. The stored status is always pending.
// @Tags Reports
// @Accept json
// @Produce json
// @Param incident body CreateIncidentRequest true "Incident report"
// @Success 201 {object} CreateIncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid request body or validation error"
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /reports [post]
func (h *Handler) createIncident(c *gin.Context) {
	var input CreateIncidentRequest
	log := h.logger.WithField("method", "createIncident")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		respondError(c, log, validationError(err))
		return
	}

	lat, err := input.Lat.Float("lat")
	if err != nil {
		respondError(c, log, err)
		return
	}
	lng, err := input.Lng.Float("lng")
	if err != nil {
		respondError(c, log, err)
		return
	}

	model := DTOToIncidentModel(input, lat, lng)
	if err := h.incidentService.CreateIncident(c.Request.Context(), model); err != nil {
		respondError(c, log, err)
		return
	}

	c.JSON(http.StatusCreated, CreateIncidentResponse{
		Success:    true,
		Message:    "Incident reported successfully",
		IncidentID: model.ID,
		Data:       ModelToIncidentResponse(model),
	})
}

// @Summary Get the incident feed
// @Description Paginated list of incidents, newest first. Filters are combined with AND. page and limit below 1 are clamped to 1, limit above 100 to 100.
// @Tags Reports
// @Produce json
// @Param status query string false "pending, in-progress, resolved, closed or all"
// @Param severity query string false "Low, Medium, High, Critical"
// @Param category query string false "Incident category"
// @Param search query string false "Case-insensitive substring of title or address"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} IncidentListResponse
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /reports [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")

	page, err := intQuery(c, "page", models.DefaultPage)
	if err != nil {
		respondError(c, log, err)
		return
	}
	limit, err := intQuery(c, "limit", models.DefaultPageLimit)
	if err != nil {
		respondError(c, log, err)
		return
	}

	filter, err := models.NewIncidentFilter(
		c.Query("status"),
		c.Query("severity"),
		c.Query("category"),
		c.Query("search"),
		page,
		limit,
	)
	if err != nil {
		respondError(c, log, err)
		return
	}

	result, err := h.incidentService.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, IncidentListResponse{
		Success:   true,
		Incidents: ModelsToIncidentResponses(result.Incidents),
		Pagination: PaginationResponse{
			Page:  result.Page,
			Limit: result.Limit,
			Total: result.Total,
			Pages: result.Pages(),
		},
	})
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID
// @Tags Reports
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid incident ID"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Router /reports/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	log := h.logger.WithField("method", "getIncident")
	id, err := parseID(c.Param("id"))
	if err != nil {
		respondError(c, log, err)
		return
	}
	log = log.WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Change incident status
// @Description Set any of the four statuses from any other. notes, when present, replace the admin notes.
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param status body UpdateStatusRequest true "Target status and optional notes"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid incident ID or status"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Router /reports/{id}/status [patch]
func (h *Handler) updateStatus(c *gin.Context) {
	log := h.logger.WithField("method", "updateStatus")
	id, err := parseID(c.Param("id"))
	if err != nil {
		respondError(c, log, err)
		return
	}
	log = log.WithField("id", id)

	var input UpdateStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		respondError(c, log, validationError(err))
		return
	}

	status, err := models.ParseStatus(input.Status)
	if err != nil {
		respondError(c, log, err)
		return
	}

	updated, err := h.incidentService.UpdateStatus(c.Request.Context(), id, status, input.Notes)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(updated))
}

// @Summary Change status of several incidents
// @Description Administrative bulk status change. Unknown IDs are skipped. Requires API key.
// @Tags Admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body BulkStatusRequest true "Incident IDs and target status"
// @Success 200 {object} BulkStatusResponse
// @Failure 400 {object} ErrorResponse "Invalid IDs or status"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Router /reports/bulk-status [patch]
func (h *Handler) bulkUpdateStatus(c *gin.Context) {
	log := h.logger.WithField("method", "bulkUpdateStatus")

	var input BulkStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		respondError(c, log, validationError(err))
		return
	}

	ids := make([]uuid.UUID, 0, len(input.IDs))
	for _, raw := range input.IDs {
		id, err := parseID(raw)
		if err != nil {
			respondError(c, log, err)
			return
		}
		ids = append(ids, id)
	}
	status, err := models.ParseStatus(input.Status)
	if err != nil {
		respondError(c, log, err)
		return
	}

	updated, err := h.incidentService.BulkUpdateStatus(c.Request.Context(), ids, status)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, BulkStatusResponse{Success: true, Updated: updated})
}

// @Summary Delete an incident
// @Description Permanently remove an incident. Requires API key.
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse "Invalid incident ID"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /reports/{id} [delete]
func (h *Handler) deleteIncident(c *gin.Context) {
	log := h.logger.WithField("method", "deleteIncident")
	id, err := parseID(c.Param("id"))
	if err != nil {
		respondError(c, log, err)
		return
	}
	log = log.WithField("id", id)

	if err := h.incidentService.DeleteIncident(c.Request.Context(), id); err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Incident deleted successfully"})
}

// @Summary Live map incidents
// @Description Pending and in-progress incidents within radius meters of the point, nearest first, at most 100.
// @Tags Map
// @Produce json
// @Param lat query number true "Center latitude"
// @Param lng query number true "Center longitude"
// @Param radius query number false "Radius in meters" default(50000)
// @Success 200 {object} LiveMapResponse
// @Failure 400 {object} ErrorResponse "Missing or invalid coordinates"
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Router /map/live [get]
func (h *Handler) liveMap(c *gin.Context) {
	log := h.logger.WithField("method", "liveMap")

	lat, err := floatQuery(c, "lat", true, 0)
	if err != nil {
		respondError(c, log, err)
		return
	}
	lng, err := floatQuery(c, "lng", true, 0)
	if err != nil {
		respondError(c, log, err)
		return
	}
	radius, err := floatQuery(c, "radius", false, models.DefaultRadiusMeters)
	if err != nil {
		respondError(c, log, err)
		return
	}

	query, err := models.NewProximityQuery(lat, lng, radius)
	if err != nil {
		respondError(c, log, err)
		return
	}

	incidents, err := h.incidentService.LiveIncidents(c.Request.Context(), query)
	if err != nil {
		respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, LiveMapResponse{
		Success:   true,
		Count:     len(incidents),
		Radius:    query.RadiusMeters,
		Center:    PointResponse{Lat: query.Lat, Lng: query.Lng},
		Incidents: NearbyToResponses(incidents),
	})
}

// @Summary Incidents in the visible map area
// @Description Pending and in-progress incidents inside the bounding box, newest first, at most 100. west greater than east means the box crosses the antimeridian.
// @Tags Map
// @Produce json
// @Param south query number true "South latitude"
// @Param west query number true "West longitude"
// @Param north query number true "North latitude"
// @Param east query number true "East longitude"
// @Success 200 {object} BoundsMapResponse
// @Failure 400 {object} ErrorResponse "Missing or invalid bounds"
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Router /map/bounds [get]
func (h *Handler) boundsMap(c *gin.Context) {
	log := h.logger.WithField("method", "boundsMap")

	var corners [4]float64
	for i, name := range []string{"south", "west", "north", "east"} {
		v, err := floatQuery(c, name, true, 0)
		if err != nil {
			respondError(c, log, err)
			return
		}
		corners[i] = v
	}
	bounds, err := models.NewBounds(corners[0], corners[1], corners[2], corners[3])
	if err != nil {
		respondError(c, log, err)
		return
	}

	incidents, err := h.incidentService.IncidentsInBounds(c.Request.Context(), bounds)
	if err != nil {
		respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, BoundsMapResponse{
		Success:   true,
		Count:     len(incidents),
		Bounds:    BoundsResponse{South: bounds.South, West: bounds.West, North: bounds.North, East: bounds.East},
		Incidents: ModelsToIncidentResponses(incidents),
	})
}

// @Summary Dashboard statistics
// @Description Incident counters by status, severity and category
// @Tags Dashboard
// @Produce json
// @Success 200 {object} StatsResponse
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /dashboard/stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	stats, err := h.incidentService.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, StatsToResponse(stats))
}

// @Summary Get application health status
// @Description Liveness check. Always 200, store reports whether the store answered a ping.
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	store := "connected"
	if !h.incidentService.StoreHealthy(c.Request.Context()) {
		store = "disconnected"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startedAt).Seconds(),
		Store:     store,
		Version:   Version,
	})
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperr.BadIdentifier(raw)
	}
	return id, nil
}

// intQuery читает целочисленный параметр, пустое значение заменяется на def
func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(name, name+" must be an integer")
	}
	return v, nil
}

// floatQuery читает числовой параметр, required определяет реакцию на отсутствие
func floatQuery(c *gin.Context, name string, required bool, def float64) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		if required {
			return 0, apperr.Validation(name, name+" is required")
		}
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation(name, name+" must be a number")
	}
	return v, nil
}
