package mongo

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goGuard/events"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventStore implements events.Store.
type EventStore struct {
	coll *mongo.Collection
}

// NewEventStore returns a store backed by db's security_events collection.
func NewEventStore(db *mongo.Database) *EventStore {
	return &EventStore{coll: db.Collection(CollectionEvents)}
}

// Save implements events.Store.
func (s *EventStore) Save(ctx context.Context, ev events.Event) error {
	if _, err := s.coll.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("goGuard: save security event: %w", err)
	}
	return nil
}

func queryFilter(q events.Query) bson.D {
	f := bson.D{}
	if q.TenantID != "" {
		f = append(f, bson.E{Key: "tenantId", Value: q.TenantID})
	}
	if q.UserID != "" {
		f = append(f, bson.E{Key: "userId", Value: q.UserID})
	}
	if len(q.Types) > 0 {
		types := make(bson.A, 0, len(q.Types))
		for _, t := range q.Types {
			types = append(types, string(t))
		}
		f = append(f, bson.E{Key: "type", Value: bson.D{{Key: "$in", Value: types}}})
	}
	if !q.Since.IsZero() {
		f = append(f, bson.E{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: q.Since}}})
	}
	return f
}

// Query implements events.Store, newest first.
func (s *EventStore) Query(ctx context.Context, q events.Query) ([]events.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.coll.Find(ctx, queryFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("goGuard: query security events: %w", err)
	}
	var out []events.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("goGuard: decode security events: %w", err)
	}
	return out, nil
}
