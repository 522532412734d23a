package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/notabl/backend/internal/adapter"
)

const (
	kindNote   = "note"
	kindFolder = "folder"
)

// DynamoAPI is the subset of *dynamodb.Client methods used by the adapter.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DefaultTableName returns the FileStore table name from the environment.
func DefaultTableName() string {
	name := os.Getenv("FILE_STORE_TABLE")
	if name == "" {
		name = "FileStore"
	}
	return name
}

// Item is the single-table row shared by notes and folders.
type Item struct {
	PK         string    `dynamodbav:"pk"`
	UserID     string    `dynamodbav:"user_id"`
	Kind       string    `dynamodbav:"kind"`
	ID         string    `dynamodbav:"id"`
	Name       string    `dynamodbav:"name"`
	Content    string    `dynamodbav:"content"`
	Summary    string    `dynamodbav:"summary"`
	FolderID   string    `dynamodbav:"folder_id"`
	ParentID   string    `dynamodbav:"parent_id"`
	SourceType string    `dynamodbav:"source_type"`
	SourceURL  string    `dynamodbav:"source_url"`
	Starred    bool      `dynamodbav:"starred"`
	ETag       string    `dynamodbav:"etag"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
	UpdatedAt  time.Time `dynamodbav:"updated_at"`
	TTL        int64     `dynamodbav:"ttl,omitempty"`
}

func itemKey(userID, id string) string {
	return userID + "#" + id
}

// itemStore is the persistence used by MemoryAdapter.
// put with a non-empty expectETag must fail with adapter.ErrPreconditionFailed
// when the stored item has a different etag.
type itemStore interface {
	get(ctx context.Context, pk string) (*Item, error)
	put(ctx context.Context, item Item, expectETag string) error
	remove(ctx context.Context, pk string) error
	scan(ctx context.Context, userID string) ([]Item, error)
}

// mapStore keeps items in process memory (tests, local runs).
type mapStore struct {
	items map[string]Item
	mu    sync.RWMutex
}

func newMapStore() *mapStore {
	return &mapStore{items: make(map[string]Item)}
}

func (s *mapStore) get(_ context.Context, pk string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[pk]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	return &item, nil
}

func (s *mapStore) put(_ context.Context, item Item, expectETag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expectETag != "" {
		existing, ok := s.items[item.PK]
		if !ok {
			return adapter.ErrNotFound
		}
		if existing.ETag != expectETag {
			return adapter.ErrPreconditionFailed
		}
	}
	s.items[item.PK] = item
	return nil
}

func (s *mapStore) remove(_ context.Context, pk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[pk]; !ok {
		return adapter.ErrNotFound
	}
	delete(s.items, pk)
	return nil
}

func (s *mapStore) scan(_ context.Context, userID string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []Item
	for _, item := range s.items {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	return items, nil
}

// dynamoStore keeps items in a DynamoDB table keyed by pk.
type dynamoStore struct {
	client    DynamoAPI
	tableName string
}

func (s *dynamoStore) get(ctx context.Context, pk string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, adapter.ErrNotFound
	}

	var item Item
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return &item, nil
}

func (s *dynamoStore) put(ctx context.Context, item Item, expectETag string) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}
	if expectETag != "" {
		input.ConditionExpression = aws.String("attribute_exists(pk) AND etag = :etag")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":etag": &types.AttributeValueMemberS{Value: expectETag},
		}
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return adapter.ErrPreconditionFailed
		}
		return fmt.Errorf("failed to put item to DynamoDB: %w", err)
	}
	return nil
}

func (s *dynamoStore) remove(ctx context.Context, pk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return adapter.ErrNotFound
		}
		return fmt.Errorf("failed to delete item from DynamoDB: %w", err)
	}
	return nil
}

// scan reads every item of the user. Inefficient for large tables, acceptable for per-user note volumes.
func (s *dynamoStore) scan(ctx context.Context, userID string) ([]Item, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})

	var items []Item
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan DynamoDB: %w", err)
		}
		var pageItems []Item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items: %w", err)
		}
		items = append(items, pageItems...)
	}
	return items, nil
}
