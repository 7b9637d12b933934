package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
)

// MemoryPendingStore is an in-process PendingStore for tests and dry runs.
type MemoryPendingStore struct {
	docs     map[string]model.PendingDocument
	resolved map[string]string
	claimed  map[string]struct{}
	mu       sync.Mutex
}

// NewMemoryPendingStore creates an empty store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{
		docs:     make(map[string]model.PendingDocument),
		resolved: make(map[string]string),
		claimed:  make(map[string]struct{}),
	}
}

// ClaimDocument implements PendingStore.
func (m *MemoryPendingStore) ClaimDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claimed[documentID]; ok {
		return fmt.Errorf("%w: %s", common.ErrAlreadyProcessed, documentID)
	}
	m.claimed[documentID] = struct{}{}
	return nil
}

// ReleaseDocument implements PendingStore.
func (m *MemoryPendingStore) ReleaseDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, documentID)
	return nil
}

// SavePending implements PendingStore.
func (m *MemoryPendingStore) SavePending(_ context.Context, doc model.PendingDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.resolved[doc.DocumentID]; done {
		return fmt.Errorf("%w: %s", common.ErrAlreadyResolved, doc.DocumentID)
	}
	m.docs[doc.DocumentID] = doc
	return nil
}

// GetPending implements PendingStore.
func (m *MemoryPendingStore) GetPending(_ context.Context, documentID string) (*model.PendingDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, common.ErrNotFound
	}
	if _, done := m.resolved[documentID]; done {
		return nil, fmt.Errorf("%w: %s", common.ErrAlreadyResolved, documentID)
	}
	return &doc, nil
}

// ListPending implements PendingStore, oldest first.
func (m *MemoryPendingStore) ListPending(_ context.Context) ([]model.PendingDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PendingDocument, 0, len(m.docs))
	for id, doc := range m.docs {
		if _, done := m.resolved[id]; !done {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out, nil
}

// MarkResolved implements PendingStore.
func (m *MemoryPendingStore) MarkResolved(_ context.Context, documentID, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[documentID]; !ok {
		return common.ErrNotFound
	}
	if _, done := m.resolved[documentID]; done {
		return fmt.Errorf("%w: %s", common.ErrAlreadyResolved, documentID)
	}
	m.resolved[documentID] = transactionID
	return nil
}

// MemoryLedger records appended transactions.
type MemoryLedger struct {
	err error
	txs []model.Transaction
	mu  sync.Mutex
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// FailWith makes every later Append return err.
func (l *MemoryLedger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Append implements LedgerWriter.
func (l *MemoryLedger) Append(_ context.Context, tx model.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.txs = append(l.txs, tx)
	return nil
}

// Transactions returns a copy of everything appended.
func (l *MemoryLedger) Transactions() []model.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Transaction(nil), l.txs...)
}
