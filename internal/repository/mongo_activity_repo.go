package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"medprep/internal/models"
)

// MongoActivityLayout names the collection holding one kind of activity and the
// field that references the owner
type MongoActivityLayout struct {
	Collection string
	OwnerField string
}

// DefaultMongoActivityLayouts returns the collections the activity-producing services write
func DefaultMongoActivityLayouts() map[models.ActivityKind]MongoActivityLayout {
	return map[models.ActivityKind]MongoActivityLayout{
		models.ActivityTest:       {Collection: "testdatas", OwnerField: "userId"},
		models.ActivitySimulation: {Collection: "simulationhistories", OwnerField: "userId"},
		models.ActivityChallenge:  {Collection: "challengesessions", OwnerField: "userId"},
		models.ActivityDaily:      {Collection: "dailychallenges", OwnerField: "user"},
	}
}

// MongoActivitySource reads activity documents keyed by an owner field and createdAt
type MongoActivitySource struct {
	kind       models.ActivityKind
	ownerField string
	collection *mongo.Collection
}

// NewMongoActivitySources creates one source per known kind on database.
// Kinds missing from layouts use DefaultMongoActivityLayouts.
func NewMongoActivitySources(database *mongo.Database, layouts map[models.ActivityKind]MongoActivityLayout) []*MongoActivitySource {
	defaults := DefaultMongoActivityLayouts()
	sources := make([]*MongoActivitySource, 0, len(models.ActivityKinds))
	for _, kind := range models.ActivityKinds {
		layout, ok := layouts[kind]
		if !ok {
			layout = defaults[kind]
		}
		sources = append(sources, &MongoActivitySource{
			kind:       kind,
			ownerField: layout.OwnerField,
			collection: database.Collection(layout.Collection),
		})
	}
	return sources
}

// InitializeIndexes creates the owner+createdAt index every query here relies on
func (s *MongoActivitySource) InitializeIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys: bson.D{
			{Key: s.ownerField, Value: 1},
			{Key: "createdAt", Value: 1},
		},
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create %s activity index: %w", s.kind, err)
	}
	return nil
}

// Kind returns the activity kind this source reads
func (s *MongoActivitySource) Kind() models.ActivityKind {
	return s.kind
}

// ownerMatch matches the owner stored either as a string or, when the id is valid hex,
// as an ObjectID reference
func ownerMatch(ownerID string) any {
	oid, err := bson.ObjectIDFromHex(ownerID)
	if err != nil {
		return ownerID
	}
	return bson.M{"$in": bson.A{ownerID, oid}}
}

func (s *MongoActivitySource) windowFilter(ownerID string, from, to time.Time) bson.M {
	return bson.M{
		s.ownerField: ownerMatch(ownerID),
		"createdAt":  bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}
}

// Exists reports whether the owner has at least one document created in [from, to)
func (s *MongoActivitySource) Exists(ctx context.Context, ownerID string, from, to time.Time) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, s.windowFilter(ownerID, from, to), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check %s activity: %w", s.kind, err)
	}
	return count > 0, nil
}

// CountByDay groups the owner's documents created in [from, to) by UTC day
func (s *MongoActivitySource) CountByDay(ctx context.Context, ownerID string, from, to time.Time) ([]models.DayCount, error) {
	pipeline := []bson.M{
		{"$match": s.windowFilter(ownerID, from, to)},
		{"$group": bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format":   "%Y-%m-%d",
				"date":     "$createdAt",
				"timezone": "UTC",
			}},
			"count": bson.M{"$sum": 1},
		}},
		{"$sort": bson.M{"_id": 1}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s activity: %w", s.kind, err)
	}
	defer cursor.Close(ctx)

	var counts []models.DayCount
	for cursor.Next(ctx) {
		var row struct {
			Day   string `bson:"_id"`
			Count int    `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode %s activity: %w", s.kind, err)
		}
		counts = append(counts, models.DayCount{Day: row.Day, Count: row.Count})
	}
	return counts, cursor.Err()
}

// List returns the owner's documents created in [from, to), oldest first
func (s *MongoActivitySource) List(ctx context.Context, ownerID string, from, to time.Time) ([]models.ActivityRecord, error) {
	findOpts := options.Find().
		SetProjection(bson.M{"_id": 1, "createdAt": 1}).
		SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := s.collection.Find(ctx, s.windowFilter(ownerID, from, to), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s activity: %w", s.kind, err)
	}
	defer cursor.Close(ctx)

	records := []models.ActivityRecord{}
	for cursor.Next(ctx) {
		var doc struct {
			ID        bson.ObjectID `bson:"_id"`
			CreatedAt time.Time     `bson:"createdAt"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s activity: %w", s.kind, err)
		}
		records = append(records, models.ActivityRecord{ID: doc.ID.Hex(), CreatedAt: doc.CreatedAt.UTC()})
	}
	return records, cursor.Err()
}
