package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/shenikar/resqlink/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryIncident(title string, lat, lng float64, status models.Status) *models.Incident {
	incident := &models.Incident{
		Title:    title,
		Location: models.NewGeoPoint(lat, lng, "Station Road"),
		Status:   status,
	}
	incident.ApplyDefaults()
	incident.Status = status
	return incident
}

// newClockedRepository возвращает хранилище с управляемыми часами, каждая запись на секунду новее предыдущей
func newClockedRepository() *MemoryIncidentRepository {
	repo := NewMemoryIncidentRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return repo
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	repo := newClockedRepository()
	ctx := context.Background()
	incident := newMemoryIncident("Fire at Market", 19.24, 73.13, models.StatusPending)

	require.NoError(t, repo.Create(ctx, incident))
	assert.NotEqual(t, uuid.Nil, incident.ID)
	assert.False(t, incident.CreatedAt.IsZero())
	assert.Equal(t, incident.CreatedAt, incident.UpdatedAt)

	got, err := repo.GetByID(ctx, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, incident, got)

	// изменение возвращенной копии не затрагивает хранилище
	got.Title = "changed"
	again, err := repo.GetByID(ctx, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fire at Market", again.Title)
}

func TestMemoryRepository_GetByID_NotFound(t *testing.T) {
	repo := NewMemoryIncidentRepository()

	_, err := repo.GetByID(context.Background(), uuid.New())

	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestMemoryRepository_List(t *testing.T) {
	repo := newClockedRepository()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newMemoryIncident(fmt.Sprintf("Flooded road %d", i), 19, 73, models.StatusPending)))
	}
	fire := newMemoryIncident("Fire at Market", 19, 73, models.StatusResolved)
	fire.Severity = models.SeverityCritical
	require.NoError(t, repo.Create(ctx, fire))

	t.Run("newest first with pagination", func(t *testing.T) {
		items, total, err := repo.List(ctx, models.IncidentFilter{Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		require.Len(t, items, 2)
		assert.Equal(t, "Flooded road 3", items[0].Title)
		assert.Equal(t, "Flooded road 2", items[1].Title)
	})

	t.Run("filters are combined", func(t *testing.T) {
		items, total, err := repo.List(ctx, models.IncidentFilter{
			Status:   models.StatusResolved,
			Severity: models.SeverityCritical,
			Page:     1,
			Limit:    20,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, fire.ID, items[0].ID)
	})

	t.Run("search is case insensitive", func(t *testing.T) {
		_, total, err := repo.List(ctx, models.IncidentFilter{Search: "FLOODED", Page: 1, Limit: 20})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
	})

	t.Run("page past the end is empty", func(t *testing.T) {
		items, total, err := repo.List(ctx, models.IncidentFilter{Page: 10, Limit: 20})
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestMemoryRepository_FindNear(t *testing.T) {
	repo := newClockedRepository()
	ctx := context.Background()

	near := newMemoryIncident("Near incident", 19.2401, 73.1301, models.StatusPending)
	nearest := newMemoryIncident("Nearest incident", 19.24, 73.13, models.StatusInProgress)
	resolved := newMemoryIncident("Resolved nearby", 19.24, 73.13, models.StatusResolved)
	far := newMemoryIncident("Far away incident", 28.61, 77.20, models.StatusPending)
	for _, inc := range []*models.Incident{near, nearest, resolved, far} {
		require.NoError(t, repo.Create(ctx, inc))
	}

	q, err := models.NewProximityQuery(19.24, 73.13, 5000)
	require.NoError(t, err)

	found, err := repo.FindNear(ctx, q)

	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, nearest.ID, found[0].ID)
	assert.Equal(t, near.ID, found[1].ID)
	assert.InDelta(t, 0, found[0].DistanceMeters, 0.001)
	assert.Greater(t, found[1].DistanceMeters, 0.0)
}

func TestMemoryRepository_FindNear_RespectsLimit(t *testing.T) {
	repo := newClockedRepository()
	ctx := context.Background()
	for i := 0; i < models.MaxProximityResults+5; i++ {
		require.NoError(t, repo.Create(ctx, newMemoryIncident("Crowded incident", 19.24, 73.13, models.StatusPending)))
	}
	q, err := models.NewProximityQuery(19.24, 73.13, models.DefaultRadiusMeters)
	require.NoError(t, err)

	found, err := repo.FindNear(ctx, q)

	require.NoError(t, err)
	assert.Len(t, found, models.MaxProximityResults)
}

func TestMemoryRepository_FindInBounds(t *testing.T) {
	repo := newClockedRepository()
	ctx := context.Background()
	inside := newMemoryIncident("Inside the box", 10, 10, models.StatusPending)
	outside := newMemoryIncident("Outside the box", 30, 30, models.StatusPending)
	closed := newMemoryIncident("Closed in box", 11, 11, models.StatusClosed)
	fiji := newMemoryIncident("Across meridian", -17, 179.5, models.StatusPending)
	for _, inc := range []*models.Incident{inside, outside, closed, fiji} {
		require.NoError(t, repo.Create(ctx, inc))
	}

	found, err := repo.FindInBounds(ctx, models.Bounds{South: 0, West: 0, North: 20, East: 20}, models.ActiveStatuses, 100)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, inside.ID, found[0].ID)

	found, err = repo.FindInBounds(ctx, models.Bounds{South: -20, West: 170, North: -10, East: -170}, models.ActiveStatuses, 100)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, fiji.ID, found[0].ID)
}

func TestMemoryRepository_UpdateStatus(t *testing.T) {
	repo := newClockedRepository()
	ctx := context.Background()
	incident := newMemoryIncident("Fire at Market", 19.24, 73.13, models.StatusPending)
	require.NoError(t, repo.Create(ctx, incident))

	notes := "Crew dispatched"
	updated, err := repo.UpdateStatus(ctx, incident.ID, models.StatusInProgress, &notes)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, "Crew dispatched", updated.AdminNotes)
	assert.True(t, updated.UpdatedAt.After(incident.UpdatedAt))

	// без заметок прежние заметки сохраняются
	updated, err = repo.UpdateStatus(ctx, incident.ID, models.StatusClosed, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, updated.Status)
	assert.Equal(t, "Crew dispatched", updated.AdminNotes)

	_, err = repo.UpdateStatus(ctx, uuid.New(), models.StatusClosed, nil)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestMemoryRepository_BulkUpdateStatus(t *testing.T) {
	repo := newClockedRepository()
	ctx := context.Background()
	a := newMemoryIncident("First incident", 1, 1, models.StatusPending)
	b := newMemoryIncident("Second incident", 2, 2, models.StatusPending)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	updated, err := repo.BulkUpdateStatus(ctx, []uuid.UUID{a.ID, b.ID, a.ID, uuid.New()}, models.StatusResolved)

	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
}

func TestMemoryRepository_DeleteAndStats(t *testing.T) {
	repo := newClockedRepository()
	ctx := context.Background()
	a := newMemoryIncident("First incident", 1, 1, models.StatusPending)
	b := newMemoryIncident("Second incident", 2, 2, models.StatusResolved)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.Delete(ctx, a.ID))
	assert.True(t, apperr.Is(repo.Delete(ctx, a.ID), apperr.CodeNotFound))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(1), stats.ByStatus[string(models.StatusResolved)])
	assert.Equal(t, int64(1), stats.BySeverity[string(models.SeverityMedium)])
}

func TestMemoryRepository_CanceledContext(t *testing.T) {
	repo := NewMemoryIncidentRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Create(ctx, newMemoryIncident("Fire at Market", 1, 1, models.StatusPending))

	assert.True(t, apperr.Is(err, apperr.CodeUnavailable))
	assert.Error(t, repo.Ping(ctx))
}
