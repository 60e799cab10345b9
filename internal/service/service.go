// Package service implements the user-action layer of the sync core.
//
// Every mutation is validated before anything else happens: invalid input
// is rejected immediately and never enqueued. A valid mutation first tries
// the remote backend directly when connectivity is available; if the device
// is offline or the call fails with a network error, the mutation is
// applied optimistically to domain state under a temp id and appended to
// the mutation queue for the sync worker to drain later.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/divvyhq/divvy/internal/identity"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/queue"
	"github.com/divvyhq/divvy/internal/remote"
	"github.com/divvyhq/divvy/internal/state"
)

// ErrNotFound indicates the referenced entity is not in the local cache.
var ErrNotFound = errors.New("not found")

// ErrOffline indicates an operation that requires connectivity was called
// while the device is offline.
var ErrOffline = errors.New("device is offline")

// Connectivity is the slice of the connectivity observer the services need.
type Connectivity interface {
	Online() bool
}

// Waker nudges the sync worker after an enqueue. May be nil in tests.
type Waker interface {
	Wake()
}

// Service exposes the mutations and queries the UI layer drives.
type Service struct {
	domain   *state.Manager
	queue    *queue.Queue
	ids      *identity.Map
	api      remote.API
	conn     Connectivity
	waker    Waker
	validate *validator.Validate
}

// New creates the service layer. waker may be nil.
func New(domain *state.Manager, q *queue.Queue, ids *identity.Map, api remote.API, conn Connectivity, waker Waker) *Service {
	return &Service{
		domain:   domain,
		queue:    q,
		ids:      ids,
		api:      api,
		conn:     conn,
		waker:    waker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) wakeWorker() {
	if s.waker != nil {
		s.waker.Wake()
	}
}

// validationErr wraps a reason in the shared error taxonomy.
func validationErr(format string, args ...any) error {
	return &remote.ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// checkStruct runs tag validation and converts the failure into the shared
// taxonomy so callers see one error kind for all rejected input.
func (s *Service) checkStruct(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return &remote.ValidationError{Reason: err.Error()}
	}
	return nil
}

// tryCreateOnline attempts a direct create. handled is false when the
// caller should fall back to the offline path (offline, or a retryable
// network failure).
func (s *Service) tryCreateOnline(ctx context.Context, entityType models.EntityType, payload json.RawMessage) (json.RawMessage, bool, error) {
	if !s.conn.Online() {
		return nil, false, nil
	}
	raw, err := s.api.Create(ctx, entityType, uuid.NewString(), payload)
	if err != nil {
		if remote.IsNetwork(err) {
			return nil, false, nil
		}
		return nil, true, err
	}
	return raw, true, nil
}

// tryUpdateOnline attempts a direct update; same contract as
// tryCreateOnline. Entities the server has never seen (unresolved temp
// ids) always take the offline path, where the queue merges the update
// into the pending create.
func (s *Service) tryUpdateOnline(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (json.RawMessage, bool, error) {
	if !s.conn.Online() || identity.IsTemp(id) {
		return nil, false, nil
	}
	raw, err := s.api.Update(ctx, entityType, id, uuid.NewString(), payload)
	if err != nil {
		if remote.IsNetwork(err) {
			return nil, false, nil
		}
		return nil, true, err
	}
	return raw, true, nil
}

// tryDeleteOnline attempts a direct delete; same contract as
// tryCreateOnline.
func (s *Service) tryDeleteOnline(ctx context.Context, entityType models.EntityType, id string) (bool, error) {
	if !s.conn.Online() || identity.IsTemp(id) {
		return false, nil
	}
	if err := s.api.Delete(ctx, entityType, id, uuid.NewString()); err != nil {
		if remote.IsNetwork(err) {
			return false, nil
		}
		// Already gone remotely counts as done.
		if conflict := remote.AsConflict(err); conflict != nil && conflict.Gone {
			return true, nil
		}
		return true, err
	}
	return true, nil
}

// enqueue appends a mutation and wakes the worker.
func (s *Service) enqueue(ctx context.Context, entityType models.EntityType, op models.Operation, entityID string, payload json.RawMessage) error {
	if _, err := s.queue.Enqueue(ctx, entityType, op, entityID, payload); err != nil {
		return fmt.Errorf("failed to enqueue %s %s: %w", op, entityType, err)
	}
	s.wakeWorker()
	return nil
}

// Queue inspection for the UI's "pending changes" affordance.

// PendingMutations returns the queue contents in order.
func (s *Service) PendingMutations() []models.QueueEntry { return s.queue.All() }

// DeadMutations returns entries that were parked after repeated failure.
func (s *Service) DeadMutations() []models.QueueEntry { return s.queue.Dead() }
