package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/shenikar/resqlink/internal/models"
	"github.com/shenikar/resqlink/internal/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const incidentsCollection = "incidents"

type geoJSONPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type reporterDocument struct {
	Name  string `bson:"name"`
	Phone string `bson:"phone,omitempty"`
	Email string `bson:"email,omitempty"`
}

// incidentDocument - представление инцидента в MongoDB.
// Адрес лежит рядом с location, чтобы location оставался чистым GeoJSON для 2dsphere.
type incidentDocument struct {
	ID          string           `bson:"_id"`
	Title       string           `bson:"title"`
	Category    string           `bson:"category"`
	Description string           `bson:"description"`
	Severity    string           `bson:"severity"`
	Location    geoJSONPoint     `bson:"location"`
	Address     string           `bson:"address"`
	Status      string           `bson:"status"`
	Reporter    reporterDocument `bson:"reporter"`
	AdminNotes  string           `bson:"adminNotes"`
	Verified    bool             `bson:"verified"`
	CreatedAt   time.Time        `bson:"createdAt"`
	UpdatedAt   time.Time        `bson:"updatedAt"`
	Distance    float64          `bson:"distance,omitempty"`
}

func toDocument(i *models.Incident) incidentDocument {
	return incidentDocument{
		ID:          i.ID.String(),
		Title:       i.Title,
		Category:    string(i.Category),
		Description: i.Description,
		Severity:    string(i.Severity),
		Location: geoJSONPoint{
			Type:        models.GeoJSONPointType,
			Coordinates: []float64{i.Location.Lng(), i.Location.Lat()},
		},
		Address: i.Location.Address,
		Status:  string(i.Status),
		Reporter: reporterDocument{
			Name:  i.Reporter.Name,
			Phone: i.Reporter.Phone,
			Email: i.Reporter.Email,
		},
		AdminNotes: i.AdminNotes,
		Verified:   i.Verified,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
	}
}

func (d incidentDocument) toModel() (*models.Incident, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("stored incident has malformed id %q: %w", d.ID, err)
	}
	if len(d.Location.Coordinates) != 2 {
		return nil, fmt.Errorf("stored incident %s has malformed coordinates", d.ID)
	}
	return &models.Incident{
		ID:          id,
		Title:       d.Title,
		Category:    models.Category(d.Category),
		Description: d.Description,
		Severity:    models.Severity(d.Severity),
		Location:    models.NewGeoPoint(d.Location.Coordinates[1], d.Location.Coordinates[0], d.Address),
		Status:      models.Status(d.Status),
		Reporter: models.Reporter{
			Name:  d.Reporter.Name,
			Phone: d.Reporter.Phone,
			Email: d.Reporter.Email,
		},
		AdminNotes: d.AdminNotes,
		Verified:   d.Verified,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

// MongoIncidentRepository хранит инциденты в коллекции MongoDB с индексом 2dsphere
type MongoIncidentRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoIncidentRepository(client *mongo.Client, database string) *MongoIncidentRepository {
	return &MongoIncidentRepository{
		client:     client,
		collection: client.Database(database).Collection(incidentsCollection),
	}
}

var _ service.IncidentRepository = (*MongoIncidentRepository)(nil)

// EnsureIndexes создает геоиндекс и индексы для ленты
func (r *MongoIncidentRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "severity", Value: 1}, {Key: "category", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return storeErr("create incident indexes", err)
	}
	return nil
}

func (r *MongoIncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	// BSON хранит время с точностью до миллисекунд
	now := time.Now().UTC().Truncate(time.Millisecond)
	incident.ID = uuid.New()
	incident.CreatedAt = now
	incident.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, toDocument(incident)); err != nil {
		return storeErr("create incident", err)
	}
	return nil
}

func (r *MongoIncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	var doc incidentDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound(fmt.Sprintf("incident with id %s not found", id))
		}
		return nil, storeErr("get incident by id", err)
	}
	return doc.toModel()
}

// mongoFilter собирает фильтр ленты, поиск - регистронезависимая подстрока в заголовке или адресе
func mongoFilter(filter models.IncidentFilter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.Severity != "" {
		query["severity"] = string(filter.Severity)
	}
	if filter.Category != "" {
		query["category"] = string(filter.Category)
	}
	if filter.Search != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(filter.Search), "$options": "i"}
		query["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"address": pattern},
		}
	}
	return query
}

func (r *MongoIncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, int64, error) {
	query := mongoFilter(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, storeErr("count incidents", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.Limit))
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, storeErr("list incidents", err)
	}
	incidents, err := decodeIncidents(ctx, cursor)
	if err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

func (r *MongoIncidentRepository) FindNear(ctx context.Context, q models.ProximityQuery) ([]*models.NearbyIncident, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.D{
			{Key: "near", Value: bson.D{
				{Key: "type", Value: models.GeoJSONPointType},
				{Key: "coordinates", Value: bson.A{q.Lng, q.Lat}},
			}},
			{Key: "distanceField", Value: "distance"},
			{Key: "maxDistance", Value: q.RadiusMeters},
			{Key: "query", Value: bson.M{"status": bson.M{"$in": statusStrings(q.Statuses)}}},
			{Key: "spherical", Value: true},
		}}},
		{{Key: "$limit", Value: q.Limit}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr("find incidents near point", err)
	}
	defer cursor.Close(ctx)

	incidents := make([]*models.NearbyIncident, 0)
	for cursor.Next(ctx) {
		var doc incidentDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, storeErr("decode incident in FindNear", err)
		}
		incident, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, &models.NearbyIncident{Incident: incident, DistanceMeters: doc.Distance})
	}
	if err := cursor.Err(); err != nil {
		return nil, storeErr("iterate FindNear cursor", err)
	}
	return incidents, nil
}

// boundsFilter сравнивает координаты напрямую, как Bounds.Contains.
// Многоугольник $geoWithin на сфере строится по дугам большого круга и не совпадает с прямоугольником карты.
func boundsFilter(b models.Bounds, statuses []models.Status) bson.M {
	query := bson.M{
		"status":                 bson.M{"$in": statusStrings(statuses)},
		"location.coordinates.1": bson.M{"$gte": b.South, "$lte": b.North},
	}
	if b.West <= b.East {
		query["location.coordinates.0"] = bson.M{"$gte": b.West, "$lte": b.East}
	} else {
		// прямоугольник пересекает антимеридиан
		query["$or"] = bson.A{
			bson.M{"location.coordinates.0": bson.M{"$gte": b.West}},
			bson.M{"location.coordinates.0": bson.M{"$lte": b.East}},
		}
	}
	return query
}

func (r *MongoIncidentRepository) FindInBounds(ctx context.Context, b models.Bounds, statuses []models.Status, limit int) ([]*models.Incident, error) {
	query := boundsFilter(b, statuses)

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, storeErr("find incidents in bounds", err)
	}
	return decodeIncidents(ctx, cursor)
}

func (r *MongoIncidentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status, notes *string) (*models.Incident, error) {
	set := bson.M{
		"status":    string(status),
		"updatedAt": time.Now().UTC().Truncate(time.Millisecond),
	}
	if notes != nil {
		set["adminNotes"] = *notes
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc incidentDocument
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound(fmt.Sprintf("incident with id %s not found for update", id))
		}
		return nil, storeErr("update incident status", err)
	}
	return doc.toModel()
}

func (r *MongoIncidentRepository) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status models.Status) (int64, error) {
	update := bson.M{"$set": bson.M{
		"status":    string(status),
		"updatedAt": time.Now().UTC().Truncate(time.Millisecond),
	}}
	res, err := r.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": uuidStrings(ids)}}, update)
	if err != nil {
		return 0, storeErr("bulk update incident status", err)
	}
	return res.MatchedCount, nil
}

func (r *MongoIncidentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return storeErr("delete incident", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound(fmt.Sprintf("incident with id %s not found for delete", id))
	}
	return nil
}

type statsBucket struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

type statsFacets struct {
	ByStatus   []statsBucket `bson:"byStatus"`
	BySeverity []statsBucket `bson:"bySeverity"`
	ByCategory []statsBucket `bson:"byCategory"`
}

func groupBy(field string) bson.A {
	return bson.A{bson.M{"$group": bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}}
}

// Stats считает распределения одним проходом через $facet
func (r *MongoIncidentRepository) Stats(ctx context.Context) (*models.Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$facet", Value: bson.M{
			"byStatus":   groupBy("status"),
			"bySeverity": groupBy("severity"),
			"byCategory": groupBy("category"),
		}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr("get incident stats", err)
	}
	defer cursor.Close(ctx)

	stats := models.NewStats()
	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, storeErr("read incident stats", err)
		}
		return stats, nil
	}
	var facets statsFacets
	if err := cursor.Decode(&facets); err != nil {
		return nil, storeErr("decode incident stats", err)
	}
	for _, b := range facets.ByStatus {
		stats.ByStatus[b.Key] = b.Count
		stats.Total += b.Count
		if models.Status(b.Key).Active() {
			stats.Active += b.Count
		}
	}
	for _, b := range facets.BySeverity {
		stats.BySeverity[b.Key] = b.Count
	}
	for _, b := range facets.ByCategory {
		stats.ByCategory[b.Key] = b.Count
	}
	return stats, nil
}

func (r *MongoIncidentRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func decodeIncidents(ctx context.Context, cursor *mongo.Cursor) ([]*models.Incident, error) {
	defer cursor.Close(ctx)

	incidents := make([]*models.Incident, 0)
	for cursor.Next(ctx) {
		var doc incidentDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, storeErr("decode incident", err)
		}
		incident, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	if err := cursor.Err(); err != nil {
		return nil, storeErr("iterate incident cursor", err)
	}
	return incidents, nil
}
