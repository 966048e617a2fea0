package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/wolfman30/healsmart/pkg/logging"
)

const dynamoBatchSize = 25

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// dynamoItem is the single-table layout: partition key is the collection,
// sort key the document id.
type dynamoItem struct {
	Collection string         `dynamodbav:"pk"`
	ID         string         `dynamodbav:"sk"`
	Data       map[string]any `dynamodbav:"data"`
	UpdatedAt  string         `dynamodbav:"updatedAt"`
}

// DynamoStore keeps every collection in one DynamoDB table. DynamoDB has no
// push channel reachable from here, so subscriptions poll.
type DynamoStore struct {
	client       dynamoAPI
	tableName    string
	logger       *logging.Logger
	pollInterval time.Duration
	newID        func() string
	now          func() time.Time
}

var _ Backend = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, tableName string, pollInterval time.Duration, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("docstore: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("docstore: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:       client,
		tableName:    tableName,
		logger:       logger,
		pollInterval: pollInterval,
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

func (s *DynamoStore) Name() string { return "dynamodb" }

func (s *DynamoStore) Close() error { return nil }

func (s *DynamoStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := s.newID()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DynamoStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
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
	item, err := attributevalue.MarshalMap(dynamoItem{
		Collection: collection,
		ID:         id,
		Data:       doc,
		UpdatedAt:  s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return invalidf("marshal document: %v", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return storeErr("set", collection, err)
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return Document{}, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            dynamoKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Document{}, storeErr("get", collection, err)
	}
	if len(out.Item) == 0 {
		return Document{}, ErrNotFound
	}
	doc, err := documentFromItem(out.Item)
	if err != nil {
		return Document{}, storeErr("get", collection, err)
	}
	return doc, nil
}

func (s *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(collection, id),
	})
	return storeErr("delete", collection, err)
}

func (s *DynamoStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.Query(ctx, Query{Collection: collection})
}

// Query reads the whole partition (already ordered by id) and sorts it
// client-side.
func (s *DynamoStore) Query(ctx context.Context, q Query) ([]Document, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}

	var docs []Document
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: q.Collection},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, storeErr("query", q.Collection, err)
		}
		for _, item := range out.Items {
			doc, err := documentFromItem(item)
			if err != nil {
				return nil, storeErr("query", q.Collection, err)
			}
			docs = append(docs, doc)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return sortDocuments(docs, q), nil
}

// BatchDelete removes ids in chunks of 25. Items DynamoDB leaves unprocessed
// are reported as a StoreError rather than retried.
func (s *DynamoStore) BatchDelete(ctx context.Context, collection string, ids []string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	for start := 0; start < len(ids); start += dynamoBatchSize {
		end := min(start+dynamoBatchSize, len(ids))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, id := range ids[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: dynamoKey(collection, id)},
			})
		}
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: requests},
		})
		if err != nil {
			return storeErr("batch_delete", collection, err)
		}
		if n := len(out.UnprocessedItems[s.tableName]); n > 0 {
			return storeErr("batch_delete", collection, fmt.Errorf("%d items unprocessed", n))
		}
	}
	return nil
}

func (s *DynamoStore) Subscribe(ctx context.Context, q Query, h Handler) (Subscription, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}
	cfg := watchConfig{backend: s.Name(), pollInterval: s.pollInterval, logger: s.logger}
	return startSubscription(ctx, cfg, q, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, q)
	}, h)
}

func dynamoKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: collection},
		"sk": &types.AttributeValueMemberS{Value: id},
	}
}

func documentFromItem(item map[string]types.AttributeValue) (Document, error) {
	var rec dynamoItem
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return Document{}, fmt.Errorf("docstore: unmarshal item: %w", err)
	}
	if rec.ID == "" {
		return Document{}, errors.New("docstore: item without sort key")
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	return Document{ID: rec.ID, Data: rec.Data}, nil
}
