// Package lock provides a MongoDB-backed advisory lock, used to serialise
// concurrent writes and statistics computation per import.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrTimeout is returned when a lock stays contended for the whole wait window.
var ErrTimeout = errors.New("lock acquisition timed out")

const (
	locksCollection = "locks"
	pollInterval    = 100 * time.Millisecond
)

type Options struct {
	// Expiry bounds how long a holder may keep the lock; an expired lock is
	// free for the taking, so a crashed holder cannot block an import forever.
	Expiry time.Duration
	// Wait bounds how long Acquire polls before giving up with ErrTimeout.
	Wait time.Duration
}

type Locker struct {
	coll  *mongo.Collection
	owner string
	opts  Options
}

type lockDoc struct {
	ID        string    `bson:"_id"`
	Locked    bool      `bson:"locked"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func New(client *mongo.Client, dbName string, opts Options) *Locker {
	return &Locker{
		coll:  client.Database(dbName).Collection(locksCollection),
		owner: uuid.NewString(),
		opts:  opts,
	}
}

// Acquire claims the named lock, polling until it frees up or the wait window
// closes. A lock is free when unlocked, expired, or already held by this owner.
func (l *Locker) Acquire(ctx context.Context, key string) error {
	deadline := time.Now().Add(l.opts.Wait)

	for {
		acquired, err := l.tryAcquire(ctx, key)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		if time.Now().After(deadline) {
			log.Warn().Str("key", key).Msg("Lock still contended, giving up")
			return ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release frees the lock if this locker still owns it.
func (l *Locker) Release(ctx context.Context, key string) error {
	_, err := l.coll.UpdateOne(ctx,
		bson.M{"_id": key, "owner": l.owner},
		bson.M{"$set": bson.M{"locked": false}})
	if err != nil {
		return fmt.Errorf("release lock %q: %w", key, err)
	}
	return nil
}

func (l *Locker) tryAcquire(ctx context.Context, key string) (bool, error) {
	now := time.Now().UTC()

	doc := lockDoc{
		ID:        key,
		Locked:    true,
		Owner:     l.owner,
		ExpiresAt: now.Add(l.opts.Expiry),
	}

	filter := bson.M{
		"_id": key,
		"$or": []bson.M{
			{"locked": false},
			{"owner": l.owner},
			{"expires_at": bson.M{"$lt": now}},
		},
	}

	res, err := l.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		// An upsert racing against a held lock collides on _id.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %q: %w", key, err)
	}

	return res.ModifiedCount > 0 || res.UpsertedCount > 0 || res.MatchedCount > 0, nil
}
