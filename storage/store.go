package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/zhumanklv/yandex-academy-task/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrImportNotFound  = errors.New("import not found")
	ErrCitizenNotFound = errors.New("citizen not found")
	ErrUnknownRelative = errors.New("relative not found in import")
)

const (
	citizensCollection = "citizens"
	countersCollection = "counters"

	importIDCounter = "import_id"
)

// citizenDoc is the persisted shape: a citizen plus the import it belongs to.
type citizenDoc struct {
	ImportID      int64 `bson:"import_id"`
	model.Citizen `bson:",inline"`
}

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

type Store struct {
	client   *mongo.Client
	citizens *mongo.Collection
	counters *mongo.Collection

	// Multi-document transactions need a replica set; against a standalone
	// server the operations run without one.
	transactional bool
}

func NewStore(client *mongo.Client, dbName string, transactional bool) *Store {
	db := client.Database(dbName)
	return &Store{
		client:        client,
		citizens:      db.Collection(citizensCollection),
		counters:      db.Collection(countersCollection),
		transactional: transactional,
	}
}

// EnsureIndexes creates the unique (import_id, citizen_id) index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.citizens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "import_id", Value: 1}, {Key: "citizen_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// CreateImport allocates the next import id and persists all citizens under it.
func (s *Store) CreateImport(ctx context.Context, citizens []model.Citizen) (int64, error) {
	result, err := s.runTxn(ctx, func(ctx context.Context) (interface{}, error) {
		importID, err := s.nextImportID(ctx)
		if err != nil {
			return nil, err
		}

		docs := make([]interface{}, 0, len(citizens))
		for _, c := range citizens {
			docs = append(docs, citizenDoc{ImportID: importID, Citizen: c})
		}

		if len(docs) > 0 {
			if _, err := s.citizens.InsertMany(ctx, docs); err != nil {
				return nil, fmt.Errorf("insert citizens: %w", err)
			}
		}

		return importID, nil
	})
	if err != nil {
		return 0, err
	}

	importID := result.(int64)
	log.Debug().Int64("import_id", importID).Int("citizens", len(citizens)).Msg("Import stored")
	return importID, nil
}

// Citizens returns every citizen of an import, ordered by citizen_id.
func (s *Store) Citizens(ctx context.Context, importID int64) ([]model.Citizen, error) {
	cursor, err := s.citizens.Find(ctx,
		bson.M{"import_id": importID},
		options.Find().SetSort(bson.D{{Key: "citizen_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find citizens: %w", err)
	}

	var docs []citizenDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode citizens: %w", err)
	}

	if len(docs) == 0 {
		return nil, ErrImportNotFound
	}

	citizens := make([]model.Citizen, 0, len(docs))
	for _, doc := range docs {
		citizens = append(citizens, doc.Citizen)
	}
	return citizens, nil
}

// PatchCitizen applies a partial update, keeping relative links mutual: ids
// added to the citizen's relatives gain a reciprocal link, removed ones lose
// theirs. The whole update is a single transaction.
func (s *Store) PatchCitizen(ctx context.Context, importID, citizenID int64, patch model.CitizenPatch) (model.Citizen, error) {
	result, err := s.runTxn(ctx, func(ctx context.Context) (interface{}, error) {
		var doc citizenDoc
		err := s.citizens.FindOne(ctx, bson.M{"import_id": importID, "citizen_id": citizenID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCitizenNotFound
		} else if err != nil {
			return nil, fmt.Errorf("find citizen: %w", err)
		}

		if patch.Relatives != nil {
			if err := s.reconcileRelatives(ctx, importID, citizenID, doc.Relatives, *patch.Relatives); err != nil {
				return nil, err
			}
		}

		updated := doc.Citizen
		patch.Apply(&updated)

		_, err = s.citizens.ReplaceOne(ctx,
			bson.M{"import_id": importID, "citizen_id": citizenID},
			citizenDoc{ImportID: importID, Citizen: updated})
		if err != nil {
			return nil, fmt.Errorf("replace citizen: %w", err)
		}

		return updated, nil
	})
	if err != nil {
		return model.Citizen{}, err
	}

	return result.(model.Citizen), nil
}

func (s *Store) reconcileRelatives(ctx context.Context, importID, citizenID int64, prev, next []int64) error {
	added, removed := model.RelativesDiff(prev, next)

	for _, relID := range added {
		if relID == citizenID {
			continue // self-link lives on the citizen's own document
		}

		res, err := s.citizens.UpdateOne(ctx,
			bson.M{"import_id": importID, "citizen_id": relID},
			bson.M{"$addToSet": bson.M{"relatives": citizenID}})
		if err != nil {
			return fmt.Errorf("link relative %d: %w", relID, err)
		}
		if res.MatchedCount == 0 {
			return ErrUnknownRelative
		}
	}

	for _, relID := range removed {
		if relID == citizenID {
			continue
		}

		if _, err := s.citizens.UpdateOne(ctx,
			bson.M{"import_id": importID, "citizen_id": relID},
			bson.M{"$pull": bson.M{"relatives": citizenID}}); err != nil {
			return fmt.Errorf("unlink relative %d: %w", relID, err)
		}
	}

	return nil
}

func (s *Store) nextImportID(ctx context.Context) (int64, error) {
	var counter counterDoc
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": importIDCounter},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next import id: %w", err)
	}
	return counter.Seq, nil
}

func (s *Store) runTxn(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if !s.transactional {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	return sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return fn(sc)
	})
}
