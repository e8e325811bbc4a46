package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/session"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionRepository implements session.Repository.
type SessionRepository struct {
	coll *mongo.Collection
}

// NewSessionRepository returns a repository backed by db's sessions collection.
func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{coll: db.Collection(CollectionSessions)}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
}

// Insert implements session.Repository.
func (r *SessionRepository) Insert(ctx context.Context, s *session.Session) error {
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return session.ErrAlreadyExists
		}
		return unavailable(err)
	}
	return nil
}

func (r *SessionRepository) findOne(ctx context.Context, filter bson.D) (*session.Session, error) {
	var s session.Session
	err := r.coll.FindOne(ctx, filter).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &s, nil
}

// FindByID implements session.Repository.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// FindByToken implements session.Repository.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*session.Session, error) {
	return r.findOne(ctx, bson.D{{Key: "sessionToken", Value: token}})
}

// Update implements session.Repository with a version compare-and-swap.
func (r *SessionRepository) Update(ctx context.Context, id string, fn session.UpdateFunc) (*session.Session, error) {
	for i := 0; i < session.MaxUpdateRetries; i++ {
		cur, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.Version = cur.Version + 1

		filter := bson.D{{Key: "_id", Value: id}, {Key: "version", Value: cur.Version}}
		res, err := r.coll.ReplaceOne(ctx, filter, next)
		if err != nil {
			return nil, unavailable(err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
	}
	return nil, session.ErrConcurrentUpdate
}

func userFilter(tenantID, userID string, activeOnly bool) bson.D {
	f := bson.D{{Key: "tenantId", Value: tenantID}, {Key: "userId", Value: userID}}
	if activeOnly {
		f = append(f, bson.E{Key: "isActive", Value: true})
	}
	return f
}

// ListByUser implements session.Repository, oldest first.
func (r *SessionRepository) ListByUser(ctx context.Context, tenantID, userID string, activeOnly bool) ([]*session.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, userFilter(tenantID, userID, activeOnly), opts)
	if err != nil {
		return nil, unavailable(err)
	}
	var out []*session.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// CountActiveByUser implements session.Repository.
func (r *SessionRepository) CountActiveByUser(ctx context.Context, tenantID, userID string) (int64, error) {
	return r.count(ctx, userFilter(tenantID, userID, true))
}

// CountByUser implements session.Repository.
func (r *SessionRepository) CountByUser(ctx context.Context, tenantID, userID string) (int64, error) {
	return r.count(ctx, userFilter(tenantID, userID, false))
}

// CountActiveByIP implements session.Repository.
func (r *SessionRepository) CountActiveByIP(ctx context.Context, ip string) (int64, error) {
	return r.count(ctx, bson.D{{Key: "ipAddress", Value: ip}, {Key: "isActive", Value: true}})
}

func (r *SessionRepository) count(ctx context.Context, filter bson.D) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func expireFilter(now time.Time) bson.D {
	return bson.D{
		{Key: "isActive", Value: true},
		{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: now}}},
	}
}

func expireUpdate(now time.Time) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "isActive", Value: false},
			{Key: "terminatedBy", Value: "system"},
			{Key: "terminatedAt", Value: now},
			{Key: "terminationReason", Value: session.ReasonExpired},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
}

// ExpireActive implements session.Repository with a single UpdateMany.
func (r *SessionRepository) ExpireActive(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx, expireFilter(now), expireUpdate(now))
	if err != nil {
		return 0, unavailable(err)
	}
	return res.ModifiedCount, nil
}
