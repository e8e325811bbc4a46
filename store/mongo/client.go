package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultDatabase    = "goguard"
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
	retryBackoff       = 500 * time.Millisecond
)

// Collection names.
const (
	CollectionMFA      = "mfa_records"
	CollectionSessions = "sessions"
	CollectionEvents   = "security_events"
)

// Config describes a MongoDB connection.
type Config struct {
	URI         string   `yaml:"uri"`
	Address     []string `yaml:"address"`
	Database    string   `yaml:"database"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	AuthSource  string   `yaml:"authSource"`
	MaxPoolSize int      `yaml:"maxPoolSize"`
	MaxRetry    int      `yaml:"maxRetry"`
}

func (c *Config) setDefaults() error {
	if c.URI == "" && len(c.Address) == 0 {
		return errors.New("goGuard: mongo uri or address is required")
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.AuthSource == "" {
		c.AuthSource = "admin"
	}
	return nil
}

func clientOptions(cfg *Config) *options.ClientOptions {
	var opts *options.ClientOptions
	if cfg.URI != "" {
		opts = options.Client().ApplyURI(cfg.URI)
	} else {
		opts = options.Client().SetHosts(cfg.Address)
	}
	opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}
	return opts
}

// Connect dials MongoDB and pings it, retrying transient failures up to
// cfg.MaxRetry times.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, nil, err
	}
	opts := clientOptions(&cfg)

	var lastErr error
	for i := 0; i < cfg.MaxRetry; i++ {
		cli, err := mongo.Connect(ctx, opts)
		if err == nil {
			if err = cli.Ping(ctx, nil); err == nil {
				return cli, cli.Database(cfg.Database), nil
			}
			_ = cli.Disconnect(context.Background())
		}
		lastErr = err
		if !shouldRetry(ctx, err) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
	return nil, nil, fmt.Errorf("goGuard: mongo connect: %w", lastErr)
}

// shouldRetry reports whether err may succeed on another attempt.
// Authentication failures (codes 13 and 18) are permanent.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != 13 && cmdErr.Code != 18
	}
	return true
}

func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CollectionMFA: {{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_identity"),
		}},
		CollectionSessions: {
			{
				Keys:    bson.D{{Key: "sessionToken", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_token"),
			},
			{
				Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "userId", Value: 1}, {Key: "isActive", Value: 1}},
				Options: options.Index().SetName("ix_user_active"),
			},
			{
				Keys:    bson.D{{Key: "ipAddress", Value: 1}, {Key: "isActive", Value: 1}},
				Options: options.Index().SetName("ix_ip_active"),
			},
			{
				Keys:    bson.D{{Key: "isActive", Value: 1}, {Key: "expiresAt", Value: 1}},
				Options: options.Index().SetName("ix_active_expiry"),
			},
		},
		CollectionEvents: {
			{
				Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("ix_user_time"),
			},
			{
				Keys:    bson.D{{Key: "type", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("ix_type_time"),
			},
		},
	}
}

// EnsureIndexes creates the indexes the stores rely on. Existing indexes
// with the same name are left alone.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, indexes := range indexModels() {
		coll := db.Collection(name)
		existing, err := coll.Indexes().ListSpecifications(ctx)
		if err != nil {
			return fmt.Errorf("goGuard: list indexes for %s: %w", name, err)
		}
		have := make(map[string]struct{}, len(existing))
		for _, spec := range existing {
			have[spec.Name] = struct{}{}
		}
		for _, idx := range indexes {
			if idx.Options != nil && idx.Options.Name != nil {
				if _, ok := have[*idx.Options.Name]; ok {
					continue
				}
			}
			if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
				return fmt.Errorf("goGuard: create index on %s: %w", name, err)
			}
		}
	}
	return nil
}
