package storage

import (
	"context"
	"sync"

	"github.com/scrypster/agentmemory/pkg/types"
)

// Scope is a unit of work over an EventStore. It keeps an identity map of the
// events it has loaded and hands back its cached copy whenever a query
// returns a row it already holds, the way an ORM session does.
//
// A Scope therefore goes stale as soon as anyone else writes. Readers that
// need current data call Expire first; the mutation methods expire the scope
// after their transaction commits.
type Scope struct {
	store EventStore

	mu       sync.Mutex
	identity map[string]*types.MemoryEvent
}

// NewScope creates an empty scope over store.
func NewScope(store EventStore) *Scope {
	return &Scope{
		store:    store,
		identity: make(map[string]*types.MemoryEvent),
	}
}

// Store returns the underlying store.
func (s *Scope) Store() EventStore {
	return s.store
}

// Expire drops every cached event so the next read goes to the store.
func (s *Scope) Expire() {
	s.mu.Lock()
	s.identity = make(map[string]*types.MemoryEvent)
	s.mu.Unlock()
}

// Len returns the number of events held in the identity map.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identity)
}

// Get returns the cached copy of an event, loading it on first access.
func (s *Scope) Get(ctx context.Context, id string) (*types.MemoryEvent, error) {
	s.mu.Lock()
	if evt, ok := s.identity[id]; ok {
		s.mu.Unlock()
		return evt.Clone(), nil
	}
	s.mu.Unlock()

	evt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.track(evt), nil
}

// Query runs q against the store. Rows already in the identity map are
// replaced by the cached copy.
func (s *Scope) Query(ctx context.Context, q EventQuery) ([]*types.MemoryEvent, error) {
	rows, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*types.MemoryEvent, 0, len(rows))
	for _, evt := range rows {
		out = append(out, s.track(evt))
	}
	return out, nil
}

// Insert writes a new event and expires the scope.
func (s *Scope) Insert(ctx context.Context, evt *types.MemoryEvent) error {
	if err := s.store.Insert(ctx, evt); err != nil {
		return err
	}
	s.Expire()
	return nil
}

// Resolve resolves an event in its own transaction and expires the scope.
func (s *Scope) Resolve(ctx context.Context, id string, annotation types.Annotation) (bool, error) {
	ok, err := s.store.Resolve(ctx, id, annotation)
	if err != nil {
		return false, err
	}
	s.Expire()
	return ok, nil
}

// Annotate appends an annotation in its own transaction and expires the scope.
func (s *Scope) Annotate(ctx context.Context, id string, annotation types.Annotation) error {
	if err := s.store.Annotate(ctx, id, annotation); err != nil {
		return err
	}
	s.Expire()
	return nil
}

// track registers evt in the identity map unless an entry already exists,
// and returns a copy of whichever instance the map holds.
func (s *Scope) track(evt *types.MemoryEvent) *types.MemoryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.identity[evt.ID]; ok {
		return cached.Clone()
	}
	s.identity[evt.ID] = evt.Clone()
	return evt
}

type scopeKey struct{}

// WithScope returns a context carrying scope.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope carried by ctx, if any.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok && scope != nil
}
