package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/mfa"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MFAStore implements mfa.Store on a single collection.
type MFAStore struct {
	coll *mongo.Collection
}

// NewMFAStore returns a store backed by db's mfa_records collection.
func NewMFAStore(db *mongo.Database) *MFAStore {
	return &MFAStore{coll: db.Collection(CollectionMFA)}
}

func identityFilter(userID, tenantID string) bson.D {
	return bson.D{{Key: "tenantId", Value: tenantID}, {Key: "userId", Value: userID}}
}

func versionedIdentityFilter(userID, tenantID string, version int64) bson.D {
	return append(identityFilter(userID, tenantID), bson.E{Key: "version", Value: version})
}

// Create implements mfa.Store.
func (s *MFAStore) Create(ctx context.Context, rec *mfa.Record) error {
	doc := rec.Clone()
	doc.Version = 1
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return mfa.ErrAlreadyExists
		}
		return fmt.Errorf("%w: %v", mfa.ErrStoreUnavailable, err)
	}
	rec.Version = 1
	return nil
}

// Get implements mfa.Store.
func (s *MFAStore) Get(ctx context.Context, userID, tenantID string) (*mfa.Record, error) {
	var rec mfa.Record
	err := s.coll.FindOne(ctx, identityFilter(userID, tenantID)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, mfa.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mfa.ErrStoreUnavailable, err)
	}
	return &rec, nil
}

// Update implements mfa.Store with a version compare-and-swap.
func (s *MFAStore) Update(ctx context.Context, userID, tenantID string, fn mfa.UpdateFunc) (*mfa.Record, error) {
	for i := 0; i < mfa.MaxUpdateRetries; i++ {
		cur, err := s.Get(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.Version = cur.Version + 1

		res, err := s.coll.ReplaceOne(ctx, versionedIdentityFilter(userID, tenantID, cur.Version), next)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", mfa.ErrStoreUnavailable, err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
	}
	return nil, mfa.ErrConcurrentUpdate
}
