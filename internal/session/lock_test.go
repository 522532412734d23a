package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	_ Locker = (*MemoryLocker)(nil)
	_ Locker = (*LockManager)(nil)
)

func lockers(now func() time.Time) map[string]Locker {
	mem := NewMemoryLocker()
	mem.now = now
	dyn := NewLockManager(newFakeLockTable(), "ProcessingLocks")
	dyn.now = now
	return map[string]Locker{"memory": mem, "dynamodb": dyn}
}

func TestLocker_AcquireAndRelease(t *testing.T) {
	for name, l := range lockers(time.Now) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			lock, err := l.AcquireLock(ctx, "user1", "job1")
			if err != nil {
				t.Fatalf("AcquireLock failed: %v", err)
			}
			if lock.UserID != "user1" || lock.JobID != "job1" {
				t.Errorf("Lock mismatch: got %+v", lock)
			}

			status, _ := l.GetLockStatus(ctx, "user1")
			if status == nil || status.JobID != "job1" {
				t.Errorf("Expected live lock for job1, got %+v", status)
			}

			if err := l.ReleaseLock(ctx, "user1", "job1"); err != nil {
				t.Fatalf("ReleaseLock failed: %v", err)
			}
			status, _ = l.GetLockStatus(ctx, "user1")
			if status != nil {
				t.Error("Expected nil lock status after release")
			}
		})
	}
}

func TestLocker_SecondJobIsRejected(t *testing.T) {
	for name, l := range lockers(time.Now) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := l.AcquireLock(ctx, "user1", "job1"); err != nil {
				t.Fatalf("First acquire failed: %v", err)
			}
			if _, err := l.AcquireLock(ctx, "user1", "job1"); err != nil {
				t.Errorf("Same job should be able to re-acquire: %v", err)
			}
			if _, err := l.AcquireLock(ctx, "user1", "job2"); !errors.Is(err, ErrLocked) {
				t.Errorf("Expected ErrLocked, got %v", err)
			}
			if _, err := l.AcquireLock(ctx, "user2", "job2"); err != nil {
				t.Errorf("Other users must not be blocked: %v", err)
			}
		})
	}
}

func TestLocker_ExpiredLockCanBeTaken(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	for name, l := range lockers(clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			current = time.Now()

			if _, err := l.AcquireLock(ctx, "user1", "job1"); err != nil {
				t.Fatalf("First acquire failed: %v", err)
			}

			current = current.Add(DefaultTTL + time.Second)

			if status, _ := l.GetLockStatus(ctx, "user1"); status != nil {
				t.Errorf("Expected expired lock to be reported as free, got %+v", status)
			}
			if _, err := l.AcquireLock(ctx, "user1", "job2"); err != nil {
				t.Errorf("Expected expired lock to be taken over: %v", err)
			}
		})
	}
}

func TestLocker_HeartbeatAndReleaseRequireOwnership(t *testing.T) {
	for name, l := range lockers(time.Now) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := l.Heartbeat(ctx, "user1", "job1"); !errors.Is(err, ErrNotOwner) {
				t.Errorf("Expected ErrNotOwner for missing lock, got %v", err)
			}

			l.AcquireLock(ctx, "user1", "job1")

			lock, err := l.Heartbeat(ctx, "user1", "job1")
			if err != nil {
				t.Fatalf("Heartbeat failed: %v", err)
			}
			if lock.JobID != "job1" {
				t.Errorf("Unexpected lock after heartbeat: %+v", lock)
			}

			if _, err := l.Heartbeat(ctx, "user1", "job2"); !errors.Is(err, ErrNotOwner) {
				t.Errorf("Expected ErrNotOwner, got %v", err)
			}
			if err := l.ReleaseLock(ctx, "user1", "job2"); !errors.Is(err, ErrNotOwner) {
				t.Errorf("Expected ErrNotOwner, got %v", err)
			}
		})
	}
}

// fakeLockTable evaluates the condition expressions issued by LockManager.
type fakeLockTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeLockTable() *fakeLockTable {
	return &fakeLockTable{items: make(map[string]map[string]types.AttributeValue)}
}

func attrS(av map[string]types.AttributeValue, name string) string {
	if v, ok := av[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrN(av map[string]types.AttributeValue, name string) int64 {
	if v, ok := av[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func (f *fakeLockTable) owns(existing, values map[string]types.AttributeValue) bool {
	return existing != nil && attrS(existing, "job_id") == attrS(values, ":job_id")
}

func (f *fakeLockTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[attrS(in.Key, "user_id")]}, nil
}

func (f *fakeLockTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attrS(in.Item, "user_id")
	existing := f.items[key]
	if *in.ConditionExpression == acquireCondition && existing != nil {
		expired := attrN(existing, "expires_at") < attrN(in.ExpressionAttributeValues, ":now")
		if !expired && !f.owns(existing, in.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeLockTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attrS(in.Key, "user_id")
	existing := f.items[key]
	if !f.owns(existing, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	existing["expires_at"] = in.ExpressionAttributeValues[":expires_at"]
	return &dynamodb.UpdateItemOutput{Attributes: existing}, nil
}

func (f *fakeLockTable) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attrS(in.Key, "user_id")
	if !f.owns(f.items[key], in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}
