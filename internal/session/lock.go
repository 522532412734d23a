package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/notabl/backend/internal/model"
)

const DefaultTTL = 5 * time.Minute

const (
	acquireCondition = "attribute_not_exists(user_id) OR expires_at < :now OR job_id = :job_id"
	ownerCondition   = "job_id = :job_id"
)

// DynamoAPI is the subset of *dynamodb.Client methods used by LockManager.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// LockManager handles processing locks using DynamoDB TTL.
type LockManager struct {
	client      DynamoAPI
	tableName   string
	ttlDuration time.Duration
	now         func() time.Time
}

// NewLockManager creates a new LockManager.
func NewLockManager(client DynamoAPI, tableName string) *LockManager {
	return &LockManager{
		client:      client,
		tableName:   tableName,
		ttlDuration: DefaultTTL,
		now:         time.Now,
	}
}

func isConditionFailed(err error) bool {
	var condFailed *types.ConditionalCheckFailedException
	return errors.As(err, &condFailed)
}

func userKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: userID},
	}
}

// AcquireLock attempts to acquire the user's lock for jobID.
// It succeeds if:
// 1. No lock exists for the user.
// 2. The existing lock has expired (TTL < now).
// 3. The existing lock belongs to the same job (refresh).
func (m *LockManager) AcquireLock(ctx context.Context, userID, jobID string) (*model.ProcessingLock, error) {
	now := m.now().Unix()
	lock := model.ProcessingLock{
		UserID:    userID,
		JobID:     jobID,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	}

	item, err := attributevalue.MarshalMap(lock)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(m.tableName),
		Item:                item,
		ConditionExpression: aws.String(acquireCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			":job_id": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return &lock, nil
}

// Heartbeat extends the lock TTL if the job owns the lock.
func (m *LockManager) Heartbeat(ctx context.Context, userID, jobID string) (*model.ProcessingLock, error) {
	expiresAt := m.now().Unix() + int64(m.ttlDuration.Seconds())

	out, err := m.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(m.tableName),
		Key:                 userKey(userID),
		UpdateExpression:    aws.String("SET expires_at = :expires_at"),
		ConditionExpression: aws.String(ownerCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expires_at": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt)},
			":job_id":     &types.AttributeValueMemberS{Value: jobID},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotOwner
		}
		return nil, fmt.Errorf("failed to send heartbeat: %w", err)
	}

	var lock model.ProcessingLock
	if err := attributevalue.UnmarshalMap(out.Attributes, &lock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}
	return &lock, nil
}

// ReleaseLock removes the lock if the job owns it.
func (m *LockManager) ReleaseLock(ctx context.Context, userID, jobID string) error {
	_, err := m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(m.tableName),
		Key:                 userKey(userID),
		ConditionExpression: aws.String(ownerCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":job_id": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotOwner
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// GetLockStatus retrieves the current lock status.
func (m *LockManager) GetLockStatus(ctx context.Context, userID string) (*model.ProcessingLock, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(m.tableName),
		Key:       userKey(userID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lock status: %w", err)
	}
	if out.Item == nil {
		return nil, nil // No lock
	}

	var lock model.ProcessingLock
	if err := attributevalue.UnmarshalMap(out.Item, &lock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}

	// DynamoDB deletes expired items lazily.
	if lock.ExpiresAt < m.now().Unix() {
		return nil, nil
	}
	return &lock, nil
}
