package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/healsmart/pkg/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each logical collection to a Mongo collection. Documents
// are stored as {_id, data, updatedAt} so user fields never clash with
// Mongo's own.
type MongoStore struct {
	db           *mongo.Database
	logger       *logging.Logger
	pollInterval time.Duration
	newID        func() string
}

var _ Backend = (*MongoStore)(nil)

// ConnectMongo dials the server and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("docstore: ping mongo: %w", err)
	}
	return client.Database(database), nil
}

func NewMongoStore(db *mongo.Database, pollInterval time.Duration, logger *logging.Logger) *MongoStore {
	if db == nil {
		panic("docstore: mongo database cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MongoStore{
		db:           db,
		logger:       logger,
		pollInterval: pollInterval,
		newID:        uuid.NewString,
	}
}

func (s *MongoStore) Name() string { return "mongo" }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Client().Disconnect(ctx)
}

func (s *MongoStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := s.newID()
	if err := validateCollection(collection); err != nil {
		return "", err
	}
	doc, err := normalize(data)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, mongoDocument(id, doc)); err != nil {
		return "", storeErr("create", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	doc, err := normalize(data)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, mongoDocument(id, doc), opts); err != nil {
		return storeErr("set", collection, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return Document{}, err
	}
	raw, err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, storeErr("get", collection, err)
	}
	doc, err := documentFromRaw(raw)
	if err != nil {
		return Document{}, storeErr("get", collection, err)
	}
	return doc, nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return storeErr("delete", collection, err)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.Query(ctx, Query{Collection: collection})
}

func (s *MongoStore) Query(ctx context.Context, q Query) ([]Document, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	cursor, err := s.db.Collection(q.Collection).Find(ctx, bson.D{}, findOptions(q))
	if err != nil {
		return nil, storeErr("query", q.Collection, err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		doc, err := documentFromRaw(cursor.Current)
		if err != nil {
			return nil, storeErr("query", q.Collection, err)
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, storeErr("query", q.Collection, err)
	}
	return docs, nil
}

func (s *MongoStore) BatchDelete(ctx context.Context, collection string, ids []string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Collection(collection).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return storeErr("batch_delete", collection, err)
	}
	return nil
}

func (s *MongoStore) Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	cfg := watchConfig{backend: s.Name(), feed: s.feed, pollInterval: s.pollInterval, logger: s.logger}
	return startSubscription(ctx, cfg, q, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, q)
	}, h)
}

// feed opens a change stream. Standalone servers reject change streams, in
// which case the subscription falls back to polling.
func (s *MongoStore) feed(ctx context.Context, collection string) (<-chan struct{}, error) {
	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, fmt.Errorf("docstore: mongo change stream: %w", err)
	}

	out, notify := signalChan()
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			notify()
		}
		if err := stream.Err(); err != nil && !isContextErr(err) {
			s.logger.Warn("docstore: mongo change stream ended", "collection", collection, "error", err)
		}
	}()
	return out, nil
}

func mongoDocument(id string, data map[string]any) bson.M {
	return bson.M{
		"_id":       id,
		"data":      data,
		"updatedAt": time.Now().UTC(),
	}
}

// findOptions sorts on the user field, then _id for deterministic ties.
func findOptions(q Query) *options.FindOptions {
	opts := options.Find().SetSort(sortSpec(q))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

func sortSpec(q Query) bson.D {
	if q.OrderBy == "" {
		return bson.D{{Key: "_id", Value: 1}}
	}
	dir := 1
	if q.Direction == Descending {
		dir = -1
	}
	return bson.D{
		{Key: "data." + q.OrderBy, Value: dir},
		{Key: "_id", Value: 1},
	}
}

// documentFromRaw converts a stored BSON document back into JSON-shaped data
// through relaxed extended JSON, so numbers come back as float64.
func documentFromRaw(raw bson.Raw) (Document, error) {
	idVal, err := raw.LookupErr("_id")
	if err != nil {
		return Document{}, fmt.Errorf("docstore: mongo document without _id: %w", err)
	}
	id, ok := idVal.StringValueOK()
	if !ok {
		return Document{}, fmt.Errorf("docstore: mongo _id is %s, want string", idVal.Type)
	}

	doc := Document{ID: id, Data: map[string]any{}}
	dataVal, err := raw.LookupErr("data")
	if err != nil {
		return doc, nil
	}
	inner, ok := dataVal.DocumentOK()
	if !ok {
		return Document{}, fmt.Errorf("docstore: mongo data field is %s, want document", dataVal.Type)
	}
	ext, err := bson.MarshalExtJSON(inner, false, false)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: mongo to json: %w", err)
	}
	if err := json.Unmarshal(ext, &doc.Data); err != nil {
		return Document{}, fmt.Errorf("docstore: mongo json decode: %w", err)
	}
	return doc, nil
}
