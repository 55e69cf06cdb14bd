package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/shenikar/resqlink/internal/models"
	"github.com/shenikar/resqlink/internal/service"
)

type memoryEntry struct {
	seq      uint64
	incident models.Incident
}

// MemoryIncidentRepository - хранилище в памяти процесса, данные теряются при перезапуске.
// Наружу всегда отдаются копии, чтобы вызывающий код не мог изменить хранимую запись.
type MemoryIncidentRepository struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[uuid.UUID]*memoryEntry
	now     func() time.Time
}

func NewMemoryIncidentRepository() *MemoryIncidentRepository {
	return &MemoryIncidentRepository{
		entries: make(map[uuid.UUID]*memoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ service.IncidentRepository = (*MemoryIncidentRepository)(nil)

func (r *MemoryIncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	if err := ctx.Err(); err != nil {
		return storeErr("create incident", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	incident.ID = uuid.New()
	incident.CreatedAt = now
	incident.UpdatedAt = now
	r.seq++
	r.entries[incident.ID] = &memoryEntry{seq: r.seq, incident: *incident}
	return nil
}

func (r *MemoryIncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("get incident by id", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("incident with id %s not found", id))
	}
	incident := e.incident
	return &incident, nil
}

// newestFirst возвращает записи по убыванию createdAt, при равенстве - по порядку вставки
func (r *MemoryIncidentRepository) newestFirst(keep func(*models.Incident) bool) []*memoryEntry {
	matched := make([]*memoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(&e.incident) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.incident.CreatedAt.Equal(b.incident.CreatedAt) {
			return a.incident.CreatedAt.After(b.incident.CreatedAt)
		}
		return a.seq > b.seq
	})
	return matched
}

func (r *MemoryIncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, storeErr("list incidents", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.newestFirst(filter.Matches)
	total := int64(len(matched))

	incidents := make([]*models.Incident, 0)
	start := filter.Offset()
	if start >= len(matched) {
		return incidents, total, nil
	}
	end := min(start+filter.Limit, len(matched))
	for _, e := range matched[start:end] {
		incident := e.incident
		incidents = append(incidents, &incident)
	}
	return incidents, total, nil
}

func (r *MemoryIncidentRepository) FindNear(ctx context.Context, q models.ProximityQuery) ([]*models.NearbyIncident, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("find incidents near point", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	nearby := make([]*models.NearbyIncident, 0)
	for _, e := range r.entries {
		if !slices.Contains(q.Statuses, e.incident.Status) {
			continue
		}
		distance := models.DistanceMeters(q.Lat, q.Lng, e.incident.Location.Lat(), e.incident.Location.Lng())
		if distance > q.RadiusMeters {
			continue
		}
		incident := e.incident
		nearby = append(nearby, &models.NearbyIncident{Incident: &incident, DistanceMeters: distance})
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].DistanceMeters < nearby[j].DistanceMeters
	})
	if q.Limit > 0 && len(nearby) > q.Limit {
		nearby = nearby[:q.Limit]
	}
	return nearby, nil
}

func (r *MemoryIncidentRepository) FindInBounds(ctx context.Context, b models.Bounds, statuses []models.Status, limit int) ([]*models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("find incidents in bounds", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.newestFirst(func(i *models.Incident) bool {
		return slices.Contains(statuses, i.Status) && b.Contains(i.Location.Lat(), i.Location.Lng())
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	incidents := make([]*models.Incident, 0, len(matched))
	for _, e := range matched {
		incident := e.incident
		incidents = append(incidents, &incident)
	}
	return incidents, nil
}

func (r *MemoryIncidentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes *string) (*models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("update incident status", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("incident with id %s not found for update", id))
	}
	e.incident.Status = status
	if notes != nil {
		e.incident.AdminNotes = *notes
	}
	e.incident.UpdatedAt = r.now()
	incident := e.incident
	return &incident, nil
}

func (r *MemoryIncidentRepository) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status models.Status) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeErr("bulk update incident status", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var updated int64
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := r.entries[id]; ok {
			e.incident.Status = status
			e.incident.UpdatedAt = now
			updated++
		}
	}
	return updated, nil
}

func (r *MemoryIncidentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return storeErr("delete incident", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return apperr.NotFound(fmt.Sprintf("incident with id %s not found for delete", id))
	}
	delete(r.entries, id)
	return nil
}

func (r *MemoryIncidentRepository) Stats(ctx context.Context) (*models.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("get incident stats", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := models.NewStats()
	for _, e := range r.entries {
		stats.Add(&e.incident)
	}
	return stats, nil
}

func (r *MemoryIncidentRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}
