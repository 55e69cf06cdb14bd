package v1

import (
	"strings"

	"github.com/shenikar/resqlink/internal/models"
)

// DTOToIncidentModel преобразует запрос на создание в доменную модель.
// Координаты к этому моменту уже разобраны, порядок [lng, lat] задает models.NewGeoPoint.
func DTOToIncidentModel(dto CreateIncidentRequest, lat, lng float64) *models.Incident {
	return &models.Incident{
		Title:       dto.Title,
		Category:    models.Category(strings.TrimSpace(dto.Category)),
		Description: dto.Description,
		Severity:    models.Severity(strings.TrimSpace(dto.Severity)),
		Location:    models.NewGeoPoint(lat, lng, strings.TrimSpace(dto.Location)),
		Reporter: models.Reporter{
			Name:  strings.TrimSpace(dto.ReporterName),
			Phone: strings.TrimSpace(dto.ReporterPhone),
			Email: strings.TrimSpace(dto.ReporterEmail),
		},
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:          model.ID,
		Title:       model.Title,
		Category:    string(model.Category),
		Description: model.Description,
		Severity:    string(model.Severity),
		Location: LocationResponse{
			Type:        model.Location.Type,
			Coordinates: model.Location.Coordinates,
			Address:     model.Location.Address,
		},
		Lat:    model.Location.Lat(),
		Lng:    model.Location.Lng(),
		Status: string(model.Status),
		Reporter: ReporterResponse{
			Name:  model.Reporter.Name,
			Phone: model.Reporter.Phone,
			Email: model.Reporter.Email,
		},
		AdminNotes: model.AdminNotes,
		Verified:   model.Verified,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(items []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(items))
	for i, model := range items {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

func NearbyToResponses(items []*models.NearbyIncident) []*NearbyIncidentResponse {
	responses := make([]*NearbyIncidentResponse, len(items))
	for i, item := range items {
		responses[i] = &NearbyIncidentResponse{
			IncidentResponse: *ModelToIncidentResponse(item.Incident),
			Distance:         item.DistanceMeters,
		}
	}
	return responses
}

func StatsToResponse(stats *models.Stats) StatsResponse {
	return StatsResponse{
		Success: true,
		Stats: StatsFields{
			Total:      stats.Total,
			Active:     stats.Active,
			ByStatus:   stats.ByStatus,
			BySeverity: stats.BySeverity,
			ByCategory: stats.ByCategory,
		},
	}
}
