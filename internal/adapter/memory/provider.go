package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/model"
)

// sweepInterval spaces out scans for expired demo adapters.
const sweepInterval = time.Minute

// Provider implements adapter.StorageProvider backed by DynamoDB (or Memory if nil).
// Demo users' adapters are dropped demoTTL after creation; in DynamoDB mode their
// items expire through the table TTL as well.
type Provider struct {
	client    DynamoAPI
	tableName string
	stores    map[string]*MemoryAdapter
	expires   map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithClock overrides the clock used for demo expiry and item timestamps.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProvider creates a Provider. Pass a nil client to keep everything in process memory.
func NewProvider(client DynamoAPI, tableName string, opts ...ProviderOption) *Provider {
	if tableName == "" {
		tableName = DefaultTableName()
	}
	p := &Provider{
		client:    client,
		tableName: tableName,
		stores:    make(map[string]*MemoryAdapter),
		expires:   make(map[string]time.Time),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.StorageAdapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.sweepLocked(now)

	if m, ok := p.stores[userID]; ok {
		return m, nil
	}

	m := NewMemoryAdapter(p.client, p.tableName, userID)
	m.now = p.now
	if _, err := m.EnsureReservedFolder(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure reserved folder: %w", err)
	}
	p.stores[userID] = m
	if model.IsDemoUser(userID) {
		p.expires[userID] = now.Add(demoTTL)
	}
	return m, nil
}

// sweepLocked drops expired demo adapters, at most once per sweepInterval.
func (p *Provider) sweepLocked(now time.Time) {
	if now.Sub(p.lastSweep) < sweepInterval {
		return
	}
	p.lastSweep = now
	for userID, expiresAt := range p.expires {
		if now.Before(expiresAt) {
			continue
		}
		delete(p.stores, userID)
		delete(p.expires, userID)
	}
}

