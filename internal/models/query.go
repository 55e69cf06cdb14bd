package models

import (
	"fmt"
	"math"
	"strings"

	"github.com/shenikar/resqlink/internal/apperr"
)

const (
	DefaultPage          = 1
	DefaultPageLimit     = 20
	MaxPageLimit         = 100
	DefaultRadiusMeters  = 50000
	MaxProximityResults  = 100
	MaxBoundsResults     = 100
	statusFilterAllValue = "all"
)

// IncidentFilter - параметры ленты происшествий. Пустые поля не фильтруют.
type IncidentFilter struct {
	Status   Status
	Severity Severity
	Category Category
	Search   string
	Page     int
	Limit    int
}

// NewIncidentFilter разбирает сырые значения фильтров. "all" для статуса означает отсутствие фильтра.
func NewIncidentFilter(status, severity, category, search string, page, limit int) (IncidentFilter, error) {
	f := IncidentFilter{
		Search: strings.TrimSpace(search),
		Page:   page,
		Limit:  limit,
	}
	if status != "" && status != statusFilterAllValue {
		f.Status = Status(status)
		if !f.Status.Valid() {
			return f, apperr.ValidationAllowed("status", fmt.Sprintf("invalid status %q", status), enumStrings(Statuses))
		}
	}
	if severity != "" {
		f.Severity = Severity(severity)
		if !f.Severity.Valid() {
			return f, apperr.ValidationAllowed("severity", fmt.Sprintf("invalid severity %q", severity), enumStrings(Severities))
		}
	}
	if category != "" {
		f.Category = Category(category)
		if !f.Category.Valid() {
			return f, apperr.ValidationAllowed("category", fmt.Sprintf("invalid category %q", category), enumStrings(Categories))
		}
	}
	f.Normalize()
	return f, nil
}

// Normalize приводит пагинацию к допустимым границам: page >= 1, 1 <= limit <= 100.
// Значения по умолчанию подставляет вызывающий код, здесь только отсечение.
func (f *IncidentFilter) Normalize() {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = 1
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
}

func (f IncidentFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches применяет фильтр к записи в памяти, поиск без учета регистра по заголовку и адресу
func (f IncidentFilter) Matches(i *Incident) bool {
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	if f.Severity != "" && i.Severity != f.Severity {
		return false
	}
	if f.Category != "" && i.Category != f.Category {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(i.Title), needle) &&
			!strings.Contains(strings.ToLower(i.Location.Address), needle) {
			return false
		}
	}
	return true
}

// IncidentPage - страница ленты
type IncidentPage struct {
	Incidents []*Incident
	Total     int64
	Page      int
	Limit     int
}

func (p *IncidentPage) Pages() int64 {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + int64(p.Limit) - 1) / int64(p.Limit)
}

// ProximityQuery - запрос живой карты
type ProximityQuery struct {
	Lat          float64
	Lng          float64
	RadiusMeters float64
	Statuses     []Status
	Limit        int
}

// NewProximityQuery проверяет центр и радиус, статусы всегда ограничены активными.
// Радиус по умолчанию подставляет вызывающий, ноль считается ошибкой.
func NewProximityQuery(lat, lng, radius float64) (ProximityQuery, error) {
	if !ValidLatitude(lat) {
		return ProximityQuery{}, apperr.Validation("lat", "invalid latitude: must be between -90 and 90")
	}
	if !ValidLongitude(lng) {
		return ProximityQuery{}, apperr.Validation("lng", "invalid longitude: must be between -180 and 180")
	}
	if radius <= 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return ProximityQuery{}, apperr.Validation("radius", "radius must be a positive number of meters")
	}
	return ProximityQuery{
		Lat:          lat,
		Lng:          lng,
		RadiusMeters: radius,
		Statuses:     ActiveStatuses,
		Limit:        MaxProximityResults,
	}, nil
}

// NewBounds проверяет углы прямоугольника карты
func NewBounds(south, west, north, east float64) (Bounds, error) {
	if !ValidLatitude(south) {
		return Bounds{}, apperr.Validation("south", "invalid latitude: must be between -90 and 90")
	}
	if !ValidLatitude(north) {
		return Bounds{}, apperr.Validation("north", "invalid latitude: must be between -90 and 90")
	}
	if !ValidLongitude(west) {
		return Bounds{}, apperr.Validation("west", "invalid longitude: must be between -180 and 180")
	}
	if !ValidLongitude(east) {
		return Bounds{}, apperr.Validation("east", "invalid longitude: must be between -180 and 180")
	}
	if south > north {
		return Bounds{}, apperr.Validation("south", "south must not be greater than north")
	}
	return Bounds{South: south, West: west, North: north, East: east}, nil
}

// Stats - сводка для панели управления
type Stats struct {
	Total      int64            `json:"total"`
	Active     int64            `json:"active"`
	ByStatus   map[string]int64 `json:"byStatus"`
	BySeverity map[string]int64 `json:"bySeverity"`
	ByCategory map[string]int64 `json:"byCategory"`
}

func NewStats() *Stats {
	return &Stats{
		ByStatus:   map[string]int64{},
		BySeverity: map[string]int64{},
		ByCategory: map[string]int64{},
	}
}

// Add учитывает запись в сводке
func (s *Stats) Add(i *Incident) {
	s.Total++
	if i.Status.Active() {
		s.Active++
	}
	s.ByStatus[string(i.Status)]++
	s.BySeverity[string(i.Severity)]++
	s.ByCategory[string(i.Category)]++
}
