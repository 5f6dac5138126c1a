package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codnect.io/chrono"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cacheCollection = "stats_cache"

// StatsCache keeps computed statistics responses per (kind, import) pair, so
// that repeated reads skip the aggregation. Entries are dropped when their
// import is patched, and swept once they outlive the TTL.
type StatsCache struct {
	coll *mongo.Collection
	ttl  time.Duration
}

type cacheDoc struct {
	ID        string      `bson:"_id"`
	ImportID  int64       `bson:"import_id"`
	Payload   interface{} `bson:"payload"`
	CreatedAt time.Time   `bson:"created_at"`
}

func NewStatsCache(client *mongo.Client, dbName string, ttl time.Duration) *StatsCache {
	return &StatsCache{
		coll: client.Database(dbName).Collection(cacheCollection),
		ttl:  ttl,
	}
}

// Get loads a cached payload into out. A stale entry counts as a miss.
func (c *StatsCache) Get(ctx context.Context, kind string, importID int64, out interface{}) (bool, error) {
	var doc cacheDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": cacheKey(kind, importID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("cache lookup: %w", err)
	}

	if c.ttl > 0 && time.Since(doc.CreatedAt) > c.ttl {
		return false, nil
	}

	if err := decodePayload(doc.Payload, out); err != nil {
		return false, fmt.Errorf("cache decode: %w", err)
	}
	return true, nil
}

func (c *StatsCache) Put(ctx context.Context, kind string, importID int64, payload interface{}) error {
	doc := cacheDoc{
		ID:        cacheKey(kind, importID),
		ImportID:  importID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Invalidate drops every cached statistic of the import.
func (c *StatsCache) Invalidate(ctx context.Context, importID int64) error {
	_, err := c.coll.DeleteMany(ctx, bson.M{"import_id": importID})
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// StartJanitor schedules a periodic sweep of expired entries and returns a
// shutdown function.
func (c *StatsCache) StartJanitor(interval time.Duration) func() {
	scheduler := chrono.NewDefaultTaskScheduler()

	log.Info().Msgf("Scheduling cache sweep every %v", interval)

	_, err := scheduler.ScheduleAtFixedRate(func(ctx context.Context) {
		cutoff := time.Now().UTC().Add(-c.ttl)
		res, err := c.coll.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
		if err != nil {
			log.Error().Err(err).Msg("Cache sweep failed")
			return
		}
		if res.DeletedCount > 0 {
			log.Debug().Int64("removed", res.DeletedCount).Msg("Cache swept")
		}
	}, interval)
	if err != nil {
		log.Error().Err(err).Msg("Cache sweep scheduling failed")
	}

	return func() {
		<-scheduler.Shutdown()
	}
}

func cacheKey(kind string, importID int64) string {
	return fmt.Sprintf("%s:%d", kind, importID)
}

// decodePayload rebuilds a typed response from the loosely-typed document the
// driver hands back. BSON integer widths differ from the original types, hence
// the weakly-typed decode.
func decodePayload(payload interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(normalizeBson(payload))
}

func normalizeBson(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = normalizeBson(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = normalizeBson(val)
		}
		return m
	case primitive.A:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = normalizeBson(val)
		}
		return s
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = normalizeBson(val)
		}
		return s
	default:
		return v
	}
}
