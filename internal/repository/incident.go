package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/shenikar/resqlink/internal/models"
	"github.com/shenikar/resqlink/internal/service"
)

const incidentColumns = `
	id,
	title,
	category,
	description,
	severity,
	ST_Y(location::geometry) AS latitude,
	ST_X(location::geometry) AS longitude,
	address,
	status,
	reporter_name,
	reporter_phone,
	reporter_email,
	admin_notes,
	verified,
	created_at,
	updated_at`

type IncidentRepository struct {
	db *pgxpool.Pool
}

func NewIncidentRepository(db *pgxpool.Pool) service.IncidentRepository {
	return &IncidentRepository{db: db}
}

// Create создает новую запись об инциденте в бд
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (
			title, category, description, severity, location, address,
			status, reporter_name, reporter_phone, reporter_email, verified
		)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		incident.Title,
		string(incident.Category),
		incident.Description,
		string(incident.Severity),
		incident.Location.Lng(),
		incident.Location.Lat(),
		incident.Location.Address,
		string(incident.Status),
		incident.Reporter.Name,
		incident.Reporter.Phone,
		incident.Reporter.Email,
		incident.Verified,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return storeErr("create incident", err)
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1;`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("incident with id %s not found", id))
		}
		return nil, storeErr("get incident by id", err)
	}
	return incident, nil
}

// List возвращает страницу инцидентов и общее число записей под фильтром
func (r *IncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, int64, error) {
	where, args := buildFilter(filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM incidents`+where, args...).Scan(&total); err != nil {
		return nil, 0, storeErr("count incidents", err)
	}

	limitPos := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM incidents%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d;`,
		incidentColumns, where, limitPos, limitPos+1)
	args = append(args, filter.Limit, filter.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, storeErr("list incidents", err)
	}
	incidents, err := collectIncidents(rows)
	if err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

// buildFilter собирает WHERE из непустых полей фильтра, условия объединяются через AND
func buildFilter(filter models.IncidentFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR address ILIKE $%d)", len(args), len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// FindNear находит инциденты в радиусе от точки, ближайшие первыми
func (r *IncidentRepository) FindNear(ctx context.Context, q models.ProximityQuery) ([]*models.NearbyIncident, error) {
	query := `
		SELECT ` + incidentColumns + `,
			ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance
		FROM incidents
		WHERE
			status = ANY($3)
			AND ST_DWithin(
				location,
				ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
				$4
			)
		ORDER BY distance ASC
		LIMIT $5;
	`
	rows, err := r.db.Query(ctx, query, q.Lng, q.Lat, statusStrings(q.Statuses), q.RadiusMeters, q.Limit)
	if err != nil {
		return nil, storeErr("find incidents near point", err)
	}
	defer rows.Close()

	incidents := make([]*models.NearbyIncident, 0)
	for rows.Next() {
		var distance float64
		incident, err := scanIncident(rows, &distance)
		if err != nil {
			return nil, storeErr("scan incident row in FindNear", err)
		}
		incidents = append(incidents, &models.NearbyIncident{Incident: incident, DistanceMeters: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate FindNear rows", err)
	}
	return incidents, nil
}

// FindInBounds находит инциденты внутри прямоугольника карты, новые первыми
func (r *IncidentRepository) FindInBounds(ctx context.Context, b models.Bounds, statuses []models.Status, limit int) ([]*models.Incident, error) {
	envelope := `ST_Intersects(location::geometry, ST_MakeEnvelope($2, $3, $4, $5, 4326))`
	args := []any{statusStrings(statuses), b.West, b.South, b.East, b.North, limit}
	if b.West > b.East {
		// прямоугольник пересекает антимеридиан
		envelope = `(ST_Intersects(location::geometry, ST_MakeEnvelope($2, $3, 180, $5, 4326))
			OR ST_Intersects(location::geometry, ST_MakeEnvelope(-180, $3, $4, $5, 4326)))`
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE status = ANY($1) AND ` + envelope + `
		ORDER BY created_at DESC, id DESC
		LIMIT $6;`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("find incidents in bounds", err)
	}
	return collectIncidents(rows)
}

// UpdateStatus атомарно меняет статус и заметки, возвращает обновленную запись
func (r *IncidentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes *string) (*models.Incident, error) {
	query := `
		UPDATE incidents SET
			status = $1,
			admin_notes = COALESCE($2, admin_notes),
			updated_at = NOW()
		WHERE id = $3
		RETURNING ` + incidentColumns + `;`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, string(status), notes, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("incident with id %s not found for update", id))
		}
		return nil, storeErr("update incident status", err)
	}
	return incident, nil
}

// BulkUpdateStatus меняет статус у всех найденных инцидентов из списка
func (r *IncidentRepository) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status models.Status) (int64, error) {
	query := `
		UPDATE incidents SET
			status = $1,
			updated_at = NOW()
		WHERE id = ANY($2::uuid[]);
	`
	cmdTag, err := r.db.Exec(ctx, query, string(status), uuidStrings(ids))
	if err != nil {
		return 0, storeErr("bulk update incident status", err)
	}
	return cmdTag.RowsAffected(), nil
}

// Delete удаляет инцидент
func (r *IncidentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM incidents WHERE id = $1;`, id)
	if err != nil {
		return storeErr("delete incident", err)
	}

	// Если RowsAffected() == 0, значит инцидента с таким id не существует
	if cmdTag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("incident with id %s not found for delete", id))
	}
	return nil
}

// Stats считает распределение инцидентов одним запросом
func (r *IncidentRepository) Stats(ctx context.Context) (*models.Stats, error) {
	query := `
		SELECT status, severity, category, COUNT(*)
		FROM incidents
		GROUP BY status, severity, category;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, storeErr("get incident stats", err)
	}
	defer rows.Close()

	stats := models.NewStats()
	for rows.Next() {
		var status, severity, category string
		var count int64
		if err := rows.Scan(&status, &severity, &category, &count); err != nil {
			return nil, storeErr("scan incident stats row", err)
		}
		stats.Total += count
		if models.Status(status).Active() {
			stats.Active += count
		}
		stats.ByStatus[status] += count
		stats.BySeverity[severity] += count
		stats.ByCategory[category] += count
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate incident stats rows", err)
	}
	return stats, nil
}

func (r *IncidentRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// scanIncident читает строку в порядке incidentColumns, extra дописываются в конец
func scanIncident(row pgx.Row, extra ...any) (*models.Incident, error) {
	var (
		incident                   models.Incident
		category, severity, status string
		lat, lng                   float64
		address                    string
	)
	dest := []any{
		&incident.ID,
		&incident.Title,
		&category,
		&incident.Description,
		&severity,
		&lat,
		&lng,
		&address,
		&status,
		&incident.Reporter.Name,
		&incident.Reporter.Phone,
		&incident.Reporter.Email,
		&incident.AdminNotes,
		&incident.Verified,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	incident.Category = models.Category(category)
	incident.Severity = models.Severity(severity)
	incident.Status = models.Status(status)
	incident.Location = models.NewGeoPoint(lat, lng, address)
	return &incident, nil
}

func collectIncidents(rows pgx.Rows) ([]*models.Incident, error) {
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, storeErr("scan incident row", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate incident rows", err)
	}
	return incidents, nil
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
