package blackboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Read when the namespace holds no document.
// The Redis-backed Client returns redis.Nil instead; use IsNotFound to
// check either.
var ErrNotFound = errors.New("blackboard: namespace is empty")

// Board is the shared state store one run communicates through.
//
// Semantics: Write fully replaces the namespace's document (no merge) and
// succeeds unconditionally - shape validation is the caller's
// responsibility. Read returns ErrNotFound (or redis.Nil) for an absent
// namespace; it never fails just because nothing was written. Reset is
// idempotent.
//
// A Board instance is exclusively owned by one in-flight run. Concurrent
// runs must each construct their own.
type Board interface {
	// Write replaces the namespace's current document.
	Write(ctx context.Context, ns Namespace, doc Document) error

	// Read returns the namespace's current document, or a not-found error
	// checkable via IsNotFound.
	Read(ctx context.Context, ns Namespace) (Document, error)

	// Reset clears one namespace back to absent.
	Reset(ctx context.Context, ns Namespace) error

	// ResetAll clears every namespace.
	ResetAll(ctx context.Context) error

	// Snapshot returns a copy of every populated namespace.
	Snapshot(ctx context.Context) (map[Namespace]Document, error)
}

// Memory is an in-process Board with no external I/O. The zero value is not
// usable; construct with NewMemory.
//
// All operations copy document bytes on the way in and out, so callers can
// never alias the board's internal state.
type Memory struct {
	mu   sync.Mutex
	docs map[Namespace]Document
}

// NewMemory creates an empty in-process board for a single run.
func NewMemory() *Memory {
	return &Memory{docs: make(map[Namespace]Document)}
}

// Write replaces the namespace's document.
func (m *Memory) Write(_ context.Context, ns Namespace, doc Document) error {
	if err := ns.Validate(); err != nil {
		return fmt.Errorf("invalid write: %w", err)
	}

	stored := make(Document, len(doc))
	copy(stored, doc)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[ns] = stored
	return nil
}

// Read returns the namespace's current document or ErrNotFound.
func (m *Memory) Read(_ context.Context, ns Namespace) (Document, error) {
	if err := ns.Validate(); err != nil {
		return nil, fmt.Errorf("invalid read: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[ns]
	if !ok {
		return nil, ErrNotFound
	}

	out := make(Document, len(doc))
	copy(out, doc)
	return out, nil
}

// Reset clears one namespace. Resetting an already-empty namespace is a no-op.
func (m *Memory) Reset(_ context.Context, ns Namespace) error {
	if err := ns.Validate(); err != nil {
		return fmt.Errorf("invalid reset: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, ns)
	return nil
}

// ResetAll clears every namespace.
func (m *Memory) ResetAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[Namespace]Document)
	return nil
}

// Snapshot returns a copy of every populated namespace.
func (m *Memory) Snapshot(_ context.Context) (map[Namespace]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(map[Namespace]Document, len(m.docs))
	for ns, doc := range m.docs {
		out := make(Document, len(doc))
		copy(out, doc)
		snap[ns] = out
	}
	return snap, nil
}
