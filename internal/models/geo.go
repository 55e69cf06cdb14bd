package models

import (
	"math"
	"strconv"
)

const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0

	earthRadiusMeters = 6371008.8
)

// GeoPoint - точка в формате GeoJSON. Coordinates всегда хранит [долгота, широта].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

// NewGeoPoint - единственное место, где определяется порядок координат
func NewGeoPoint(lat, lng float64, address string) GeoPoint {
	return GeoPoint{
		Type:        GeoJSONPointType,
		Coordinates: [2]float64{lng, lat},
		Address:     address,
	}
}

func (p GeoPoint) Lng() float64 { return p.Coordinates[0] }
func (p GeoPoint) Lat() float64 { return p.Coordinates[1] }

// ValidLatitude / ValidLongitude отбрасывают NaN и значения вне диапазона
func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= MinLatitude && lat <= MaxLatitude
}

func ValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= MinLongitude && lng <= MaxLongitude
}

// CoordinateLabel - текстовое представление координат, используется когда адрес неизвестен
func CoordinateLabel(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lng, 'f', -1, 64)
}

// DistanceMeters считает расстояние по большому кругу (формула гаверсинусов)
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Bounds - прямоугольная область карты
type Bounds struct {
	South float64
	West  float64
	North float64
	East  float64
}

// Contains проверяет попадание точки в область, учитывая переход через антимеридиан
func (b Bounds) Contains(lat, lng float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.West <= b.East {
		return lng >= b.West && lng <= b.East
	}
	return lng >= b.West || lng <= b.East
}
