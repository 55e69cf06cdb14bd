package models

import (
	"time"

	"github.com/google/uuid"
)

// Category - тип происшествия
type Category string

const (
	CategoryMedical       Category = "Medical"
	CategoryFire          Category = "Fire"
	CategoryFlood         Category = "Flood"
	CategoryTraffic       Category = "Traffic"
	CategoryCrime         Category = "Crime"
	CategorySecurity      Category = "Security"
	CategoryTechnical     Category = "Technical"
	CategoryEnvironmental Category = "Environmental"
	CategoryHazard        Category = "Hazard"
	CategoryOther         Category = "Other"
)

var Categories = []Category{
	CategoryMedical, CategoryFire, CategoryFlood, CategoryTraffic, CategoryCrime,
	CategorySecurity, CategoryTechnical, CategoryEnvironmental, CategoryHazard, CategoryOther,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Severity - критичность происшествия
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Valid() bool {
	for _, v := range Severities {
		if s == v {
			return true
		}
	}
	return false
}

// Status - этап жизненного цикла происшествия
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusResolved, StatusClosed}

// ActiveStatuses - статусы, которые показываются на живой карте
var ActiveStatuses = []Status{StatusPending, StatusInProgress}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Active сообщает, отображается ли происшествие на живой карте
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

const (
	DefaultReporterName = "Anonymous"
	GeoJSONPointType    = "Point"
)

// Reporter - контакты заявителя, все поля необязательные
type Reporter struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type Incident struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title" validate:"required,min=5,max=200"`
	Category    Category  `json:"category"`
	Description string    `json:"description" validate:"max=1000"`
	Severity    Severity  `json:"severity"`
	Location    GeoPoint  `json:"location"`
	Status      Status    `json:"status"`
	Reporter    Reporter  `json:"reporter"`
	AdminNotes  string    `json:"adminNotes"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NearbyIncident - результат запроса по радиусу с расстоянием до центра
type NearbyIncident struct {
	*Incident
	DistanceMeters float64 `json:"distance"`
}
