// Package identity owns the correspondence between client-generated temp
// ids and server-assigned canonical ids.
//
// An entity created offline gets a temp id so the UI and the queue can
// reference it immediately. Once the server acknowledges the create, the
// canonical id is remembered here and every cached or still-queued
// reference to the temp id is rewritten, in exactly one place, before any
// dependent mutation is sent.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/divvyhq/divvy/internal/storage"
)

// tempPrefix marks client-generated placeholder ids.
const tempPrefix = "tmp-"

// IsTemp reports whether id is a client-generated placeholder.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// Rewriter is implemented by components that cache entity references
// (the domain state manager and the mutation queue). RewriteID must replace
// every occurrence of old with new before returning.
type Rewriter interface {
	RewriteID(ctx context.Context, old, new string) error
}

// Map tracks temp-id to canonical-id mappings and drives reference
// rewriting across registered components. Mappings persist to the local
// store so a restart mid-drain does not lose them.
type Map struct {
	store storage.LocalStore

	mu        sync.RWMutex
	forward   map[string]string // temp id -> canonical id
	rewriters []Rewriter

	counter atomic.Uint64
}

// Load restores the persisted mapping, if any.
func Load(ctx context.Context, store storage.LocalStore) (*Map, error) {
	m := &Map{store: store, forward: make(map[string]string)}
	data, err := store.Get(ctx, storage.CollectionIdentityMap)
	if errors.Is(err, storage.ErrNotFound) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity map: %w", err)
	}
	if err := json.Unmarshal(data, &m.forward); err != nil {
		return nil, fmt.Errorf("failed to decode identity map: %w", err)
	}
	return m, nil
}

// Register adds a component whose cached references must be rewritten when
// a mapping is learned. Registration order is rewrite order.
func (m *Map) Register(r Rewriter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewriters = append(m.rewriters, r)
}

// TempID returns a fresh placeholder id: a monotonic per-session counter
// plus a random suffix. Temp ids are never reused.
func (m *Map) TempID() string {
	n := m.counter.Add(1)
	return fmt.Sprintf("%s%d-%s", tempPrefix, n, uuid.NewString()[:8])
}

// Remember records that tempID now resolves to canonicalID and persists the
// mapping.
func (m *Map) Remember(ctx context.Context, tempID, canonicalID string) error {
	if !IsTemp(tempID) {
		return fmt.Errorf("refusing to map non-temp id %q", tempID)
	}

	m.mu.Lock()
	m.forward[tempID] = canonicalID
	snapshot, err := json.Marshal(m.forward)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode identity map: %w", err)
	}

	if err := m.store.Put(ctx, storage.CollectionIdentityMap, snapshot); err != nil {
		return fmt.Errorf("failed to persist identity map: %w", err)
	}
	return nil
}

// Resolve returns the canonical id for id, or id itself when no mapping
// exists.
func (m *Map) Resolve(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if canonical, ok := m.forward[id]; ok {
		return canonical
	}
	return id
}

// RewriteReferences replaces every cached and queued occurrence of tempID
// with canonicalID. The sync worker must not send any subsequent entry
// until this returns.
func (m *Map) RewriteReferences(ctx context.Context, tempID, canonicalID string) error {
	m.mu.RLock()
	rewriters := make([]Rewriter, len(m.rewriters))
	copy(rewriters, m.rewriters)
	m.mu.RUnlock()

	for _, r := range rewriters {
		if err := r.RewriteID(ctx, tempID, canonicalID); err != nil {
			return fmt.Errorf("failed to rewrite %q -> %q: %w", tempID, canonicalID, err)
		}
	}
	return nil
}

// ResolveJSON replaces every temp-id string inside a JSON document with its
// canonical id, when one is known. The sync worker runs queued payloads
// through this immediately before sending, so an entry enqueued against a
// temp id picks up mappings learned after it was appended.
func (m *Map) ResolveJSON(doc json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("failed to decode payload for resolve: %w", err)
	}
	resolved, changed := m.resolveValue(v)
	if !changed {
		return doc, nil
	}
	out, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode payload: %w", err)
	}
	return out, nil
}

func (m *Map) resolveValue(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		if IsTemp(t) {
			if canonical := m.Resolve(t); canonical != t {
				return canonical, true
			}
		}
		return t, false
	case map[string]any:
		changed := false
		for k, val := range t {
			nv, c := m.resolveValue(val)
			if c {
				t[k] = nv
				changed = true
			}
		}
		return t, changed
	case []any:
		changed := false
		for i, val := range t {
			nv, c := m.resolveValue(val)
			if c {
				t[i] = nv
				changed = true
			}
		}
		return t, changed
	default:
		return v, false
	}
}

// RewriteJSON replaces every string occurrence of old with new inside a
// JSON document, preserving structure. Rewriters use it so id references in
// nested payloads (splits, related expense lists) are covered uniformly.
func RewriteJSON(doc json.RawMessage, old, new string) (json.RawMessage, bool, error) {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, false, fmt.Errorf("failed to decode payload for rewrite: %w", err)
	}
	rewritten, changed := rewriteValue(v, old, new)
	if !changed {
		return doc, false, nil
	}
	out, err := json.Marshal(rewritten)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-encode payload: %w", err)
	}
	return out, true, nil
}

func rewriteValue(v any, old, new string) (any, bool) {
	switch t := v.(type) {
	case string:
		if t == old {
			return new, true
		}
		return t, false
	case map[string]any:
		changed := false
		for k, val := range t {
			nv, c := rewriteValue(val, old, new)
			if c {
				t[k] = nv
				changed = true
			}
		}
		return t, changed
	case []any:
		changed := false
		for i, val := range t {
			nv, c := rewriteValue(val, old, new)
			if c {
				t[i] = nv
				changed = true
			}
		}
		return t, changed
	default:
		return v, false
	}
}
