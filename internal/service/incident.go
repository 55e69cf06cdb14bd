package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/shenikar/resqlink/internal/config"
	"github.com/shenikar/resqlink/internal/models"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=incident.go -destination=mocks/mock_incident.go -package=mocks

// IncidentRepository определяет контракт хранилища инцидентов
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, int64, error)
	FindNear(ctx context.Context, query models.ProximityQuery) ([]*models.NearbyIncident, error)
	FindInBounds(ctx context.Context, bounds models.Bounds, statuses []models.Status, limit int) ([]*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes *string) (*models.Incident, error)
	BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status models.Status) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (*models.Stats, error)
	Ping(ctx context.Context) error
}

// IncidentCache - кеш карточек инцидентов. Get возвращает nil, nil при промахе.
// Set сохраняет запись, только если в кеше нет версии с тем же или более поздним UpdatedAt.
// Invalidate запрещает кеширование записи до истечения TTL.
type IncidentCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	Set(ctx context.Context, incident *models.Incident) error
	Invalidate(ctx context.Context, ids ...uuid.UUID) error
}

// Geocoder превращает координаты в читаемый адрес
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// IncidentService определяет контракт для бизнес-логики управления инцидентами
type IncidentService interface {
	CreateIncident(ctx context.Context, incident *models.Incident) error
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) (*models.IncidentPage, error)
	LiveIncidents(ctx context.Context, query models.ProximityQuery) ([]*models.NearbyIncident, error)
	IncidentsInBounds(ctx context.Context, bounds models.Bounds) ([]*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes *string) (*models.Incident, error)
	BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status models.Status) (int64, error)
	DeleteIncident(ctx context.Context, id uuid.UUID) error
	GetStats(ctx context.Context) (*models.Stats, error)
	StoreHealthy(ctx context.Context) bool
}

type incidentService struct {
	repo     IncidentRepository
	cache    IncidentCache
	geocoder Geocoder
	logger   *logrus.Logger
	cfg      *config.Config
}

// NewIncidentService собирает сервис. cache и geocoder могут быть nil.
func NewIncidentService(repo IncidentRepository, cache IncidentCache, geocoder Geocoder, logger *logrus.Logger, cfg *config.Config) IncidentService {
	return &incidentService{
		repo:     repo,
		cache:    cache,
		geocoder: geocoder,
		logger:   logger,
		cfg:      cfg,
	}
}

// storeCtx ограничивает время любого обращения к хранилищу
func (s *incidentService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// CreateIncident проверяет и сохраняет новое происшествие
func (s *incidentService) CreateIncident(ctx context.Context, incident *models.Incident) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CreateIncident",
		"title":   incident.Title,
	})
	log.Info("Attempting to create a new incident")

	incident.ApplyDefaults()
	incident.Status = models.StatusPending
	incident.Verified = false
	if err := incident.Validate(); err != nil {
		log.WithError(err).Warn("Incident rejected by validation")
		return err
	}

	if incident.Location.Address == "" {
		incident.Location.Address = s.resolveAddress(ctx, incident.Location.Lat(), incident.Location.Lng())
	}

	// Запись не отменяется, если клиент перестал ждать ответа
	storeCtx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.repo.Create(storeCtx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return fmt.Errorf("service: could not create incident: %w", storeError(err))
	}

	log.WithFields(logrus.Fields{
		"incident_id": incident.ID,
		"coordinates": incident.Location.Coordinates,
	}).Info("Incident created successfully")
	return nil
}

// resolveAddress подставляет адрес от геокодера или текст координат, если геокодер недоступен
func (s *incidentService) resolveAddress(ctx context.Context, lat, lng float64) string {
	fallback := models.CoordinateLabel(lat, lng)
	if s.geocoder == nil {
		return fallback
	}

	timeout := s.cfg.GeocoderTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	geoCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	address, err := s.geocoder.ReverseGeocode(geoCtx, lat, lng)
	if err != nil || address == "" {
		s.logger.WithFields(logrus.Fields{
			"service": "incident",
			"method":  "resolveAddress",
		}).WithError(apperr.External("reverse geocoding failed", err)).Warn("Falling back to raw coordinates")
		return fallback
	}
	return address
}

// GetIncident получает инцидент по ID, сначала из кеша
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Debug("Fetching incident by ID")

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			log.WithError(err).Warn("Failed to read incident from cache")
		}
		if cached != nil {
			return cached, nil
		}
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	incident, err := s.repo.GetByID(storeCtx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from repository")
		return nil, fmt.Errorf("service: could not get incident: %w", storeError(err))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, incident); err != nil {
			log.WithError(err).Warn("Failed to put incident into cache")
		}
	}
	return incident, nil
}

// ListIncidents возвращает страницу ленты, новые записи первыми
func (s *incidentService) ListIncidents(ctx context.Context, filter models.IncidentFilter) (*models.IncidentPage, error) {
	filter.Normalize()

	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "ListIncidents",
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
	log.Debug("Listing incidents")

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	incidents, total, err := s.repo.List(storeCtx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", storeError(err))
	}

	log.WithField("count", len(incidents)).Debug("Incidents listed successfully")
	return &models.IncidentPage{
		Incidents: incidents,
		Total:     total,
		Page:      filter.Page,
		Limit:     filter.Limit,
	}, nil
}

// LiveIncidents находит активные происшествия в радиусе, ближайшие первыми
func (s *incidentService) LiveIncidents(ctx context.Context, query models.ProximityQuery) ([]*models.NearbyIncident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "LiveIncidents",
		"lat":     query.Lat,
		"lng":     query.Lng,
		"radius":  query.RadiusMeters,
	})

	// Живая карта никогда не показывает закрытые и решенные происшествия
	query.Statuses = models.ActiveStatuses
	if query.Limit <= 0 || query.Limit > models.MaxProximityResults {
		query.Limit = models.MaxProximityResults
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	incidents, err := s.repo.FindNear(storeCtx, query)
	if err != nil {
		log.WithError(err).Error("Failed to find incidents near point")
		return nil, fmt.Errorf("service: could not find live incidents: %w", storeError(err))
	}

	log.WithField("count", len(incidents)).Debug("Live incidents fetched")
	return incidents, nil
}

// IncidentsInBounds возвращает активные происшествия в видимой области карты
func (s *incidentService) IncidentsInBounds(ctx context.Context, bounds models.Bounds) ([]*models.Incident, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	incidents, err := s.repo.FindInBounds(storeCtx, bounds, models.ActiveStatuses, models.MaxBoundsResults)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service": "incident",
			"method":  "IncidentsInBounds",
		}).WithError(err).Error("Failed to find incidents in bounds")
		return nil, fmt.Errorf("service: could not find incidents in bounds: %w", storeError(err))
	}
	return incidents, nil
}

// UpdateStatus переводит инцидент в новый статус. Допускается переход из любого статуса в любой.
func (s *incidentService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes *string) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateStatus",
		"incident_id": id,
		"status":      status,
	})
	log.Info("Attempting to update incident status")

	if !status.Valid() {
		return nil, apperr.ValidationAllowed("status", fmt.Sprintf("invalid status %q", status), models.StatusNames())
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	updated, err := s.repo.UpdateStatus(storeCtx, id, status, notes)
	if err != nil {
		log.WithError(err).Warn("Failed to update incident status in repository")
		return nil, fmt.Errorf("service: could not update status: %w", storeError(err))
	}
	s.refresh(ctx, log, updated)

	log.Info("Incident status updated successfully")
	return updated, nil
}

// BulkUpdateStatus меняет статус группы инцидентов, возвращает число измененных записей
func (s *incidentService) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status models.Status) (int64, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "BulkUpdateStatus",
		"count":   len(ids),
		"status":  status,
	})

	if len(ids) == 0 {
		return 0, apperr.Validation("ids", "ids must contain at least one incident ID")
	}
	if !status.Valid() {
		return 0, apperr.ValidationAllowed("status", fmt.Sprintf("invalid status %q", status), models.StatusNames())
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	updated, err := s.repo.BulkUpdateStatus(storeCtx, ids, status)
	if err != nil {
		log.WithError(err).Error("Failed to bulk update incident status")
		return 0, fmt.Errorf("service: could not bulk update status: %w", storeError(err))
	}
	s.invalidate(ctx, log, ids...)

	log.WithField("updated", updated).Info("Bulk status update completed")
	return updated, nil
}

// DeleteIncident удаляет инцидент (административная операция)
func (s *incidentService) DeleteIncident(ctx context.Context, id uuid.UUID) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "DeleteIncident",
		"incident_id": id,
	})
	log.Info("Attempting to delete incident")

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.Delete(storeCtx, id); err != nil {
		log.WithError(err).Warn("Failed to delete incident in repository")
		return fmt.Errorf("service: could not delete incident: %w", storeError(err))
	}
	s.invalidate(ctx, log, id)

	log.Info("Incident deleted successfully")
	return nil
}

// GetStats возвращает сводку для панели управления
func (s *incidentService) GetStats(ctx context.Context) (*models.Stats, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	stats, err := s.repo.Stats(storeCtx)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service": "incident",
			"method":  "GetStats",
		}).WithError(err).Error("Failed to get stats from repository")
		return nil, fmt.Errorf("service: could not get stats: %w", storeError(err))
	}
	return stats, nil
}

// StoreHealthy проверяет доступность хранилища
func (s *incidentService) StoreHealthy(ctx context.Context) bool {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.repo.Ping(storeCtx) == nil
}

// refresh кладет в кеш свежую версию записи, при ошибке записи кеш сбрасывается
func (s *incidentService) refresh(ctx context.Context, log *logrus.Entry, incident *models.Incident) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to refresh incident cache")
		s.invalidate(ctx, log, incident.ID)
	}
}

func (s *incidentService) invalidate(ctx context.Context, log *logrus.Entry, ids ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
}

// storeError помечает истекшие таймауты как временную недоступность хранилища
func storeError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Unavailable("store did not respond in time", err)
	}
	return err
}
