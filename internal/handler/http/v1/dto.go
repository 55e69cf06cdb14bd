package v1

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/resqlink/internal/apperr"
)

// Coordinate принимает координату как число или как строку с числом.
// Ошибки разбора не прерывают декодирование тела, их сообщает Float с именем поля.
type Coordinate struct {
	value   float64
	present bool
	invalid bool
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Coordinate{}
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*c = Coordinate{present: true, invalid: true}
			return nil
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*c = Coordinate{}
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	*c = Coordinate{value: v, present: true, invalid: err != nil}
	return nil
}

// NewCoordinate нужен тестам и клиентам на Go
func NewCoordinate(v float64) Coordinate {
	return Coordinate{value: v, present: true}
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	if !c.present || c.invalid {
		return []byte("null"), nil
	}
	return json.Marshal(c.value)
}

// Float возвращает значение или ошибку валидации, названную по полю запроса
func (c Coordinate) Float(field string) (float64, error) {
	if !c.present {
		return 0, apperr.Validation(field, field+" is required")
	}
	if c.invalid {
		return 0, apperr.Validation(field, field+" must be a number")
	}
	return c.value, nil
}

// CreateIncidentRequest DTO для создания инцидента
// @Description DTO для создания инцидента. lat и lng принимаются числом или строкой.
type CreateIncidentRequest struct {
	Title         string     `json:"title" validate:"required"`
	Category      string     `json:"category,omitempty"`
	Description   string     `json:"description,omitempty"`
	Severity      string     `json:"severity,omitempty"`
	Location      string     `json:"location,omitempty"`
	Lat           Coordinate `json:"lat" swaggertype:"number"`
	Lng           Coordinate `json:"lng" swaggertype:"number"`
	ReporterName  string     `json:"reporterName,omitempty"`
	ReporterPhone string     `json:"reporterPhone,omitempty"`
	ReporterEmail string     `json:"reporterEmail,omitempty"`
}

// UpdateStatusRequest DTO для смены статуса
// @Description DTO для смены статуса
type UpdateStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty"`
}

// BulkStatusRequest DTO для массовой смены статуса
// @Description DTO для массовой смены статуса
type BulkStatusRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=500"`
	Status string   `json:"status" validate:"required"`
}

// LocationResponse - GeoJSON точка с адресом
type LocationResponse struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

type ReporterResponse struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// IncidentResponse DTO для ответа с информацией об инциденте.
// lat и lng дублируют location.coordinates, чтобы клиенту не нужно было знать порядок координат.
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID          uuid.UUID        `json:"id"`
	Title       string           `json:"title"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Severity    string           `json:"severity"`
	Location    LocationResponse `json:"location"`
	Lat         float64          `json:"lat"`
	Lng         float64          `json:"lng"`
	Status      string           `json:"status"`
	Reporter    ReporterResponse `json:"reporter"`
	AdminNotes  string           `json:"adminNotes,omitempty"`
	Verified    bool             `json:"verified"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// NearbyIncidentResponse - инцидент живой карты с расстоянием до центра в метрах
type NearbyIncidentResponse struct {
	IncidentResponse
	Distance float64 `json:"distance"`
}

type CreateIncidentResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	IncidentID uuid.UUID         `json:"incidentId"`
	Data       *IncidentResponse `json:"data"`
}

type PaginationResponse struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type IncidentListResponse struct {
	Success    bool                `json:"success"`
	Incidents  []*IncidentResponse `json:"incidents"`
	Pagination PaginationResponse  `json:"pagination"`
}

type PointResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type LiveMapResponse struct {
	Success   bool                      `json:"success"`
	Count     int                       `json:"count"`
	Radius    float64                   `json:"radius"`
	Center    PointResponse             `json:"center"`
	Incidents []*NearbyIncidentResponse `json:"incidents"`
}

type BoundsResponse struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

type BoundsMapResponse struct {
	Success   bool                `json:"success"`
	Count     int                 `json:"count"`
	Bounds    BoundsResponse      `json:"bounds"`
	Incidents []*IncidentResponse `json:"incidents"`
}

type BulkStatusResponse struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type StatsResponse struct {
	Success bool        `json:"success"`
	Stats   StatsFields `json:"stats"`
}

type StatsFields struct {
	Total      int64            `json:"total"`
	Active     int64            `json:"active"`
	ByStatus   map[string]int64 `json:"byStatus"`
	BySeverity map[string]int64 `json:"bySeverity"`
	ByCategory map[string]int64 `json:"byCategory"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Store     string    `json:"store"`
	Version   string    `json:"version"`
}

// ErrorResponse - тело любого ответа с ошибкой
type ErrorResponse struct {
	Error     string   `json:"error"`
	Field     string   `json:"field,omitempty"`
	Allowed   []string `json:"allowed,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}
