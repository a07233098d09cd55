// Package remote holds the shared-document stores a device can sync against.
package remote

import (
	"context"
	"sync"

	"github.com/aristath/hedgebook/internal/domain"
)

// MemoryStore is an in-process shared document. Subscribers are notified
// synchronously on the writer's goroutine. It backs single-process setups
// and tests, and can be told to fail.
type MemoryStore struct {
	mu      sync.Mutex
	doc     *domain.Document
	subs    map[int]func(domain.Document)
	nextSub int
	saves   []domain.Document
	loadErr error
	saveErr error

	// BeforeSave, when set, runs inside Save before the document is stored.
	BeforeSave func(doc domain.Document)
	// AfterSave, when set, runs inside Save once subscribers were notified.
	AfterSave func(doc domain.Document)
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[int]func(domain.Document))}
}

// Load returns the stored document, or nil when nothing was written yet.
func (m *MemoryStore) Load(ctx context.Context) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.doc == nil {
		return nil, nil
	}
	doc := m.doc.Clone()
	return &doc, nil
}

// Save stores doc and notifies every subscriber.
func (m *MemoryStore) Save(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook := m.BeforeSave; hook != nil {
		hook(doc.Clone())
	}

	m.mu.Lock()
	if m.saveErr != nil {
		err := m.saveErr
		m.mu.Unlock()
		return err
	}
	m.saves = append(m.saves, doc.Clone())
	m.mu.Unlock()

	m.Publish(doc)
	if hook := m.AfterSave; hook != nil {
		hook(doc.Clone())
	}
	return nil
}

// Publish replaces the stored document as another device would, and pushes
// it to subscribers. It bypasses the injected save error.
func (m *MemoryStore) Publish(doc domain.Document) {
	m.mu.Lock()
	stored := doc.Clone()
	m.doc = &stored
	fns := make([]func(domain.Document), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(doc.Clone())
	}
}

// Subscribe registers fn until cancel is called or ctx ends.
func (m *MemoryStore) Subscribe(ctx context.Context, fn func(domain.Document)) (func(), error) {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				cancel()
			case <-stop:
			}
		}()
	}
	return cancel, nil
}

// SetLoadError makes subsequent loads fail with err. Nil clears it.
func (m *MemoryStore) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// SetSaveError makes subsequent saves fail with err. Nil clears it.
func (m *MemoryStore) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves returns every document written through Save, oldest first.
func (m *MemoryStore) Saves() []domain.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Document, len(m.saves))
	for i, d := range m.saves {
		out[i] = d.Clone()
	}
	return out
}

// Subscribers reports how many subscriptions are live.
func (m *MemoryStore) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
