// Package syncer drains the offline mutation queue against the remote
// backend whenever connectivity is available.
//
// A single background goroutine applies entries one at a time, oldest
// first. Ordering is load-bearing: a create must be acknowledged and its
// temp id remapped before any dependent update or delete for the same
// entity may be sent, so the worker never skips ahead past a retryable
// failure and never parallelizes the drain.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/divvyhq/divvy/internal/identity"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/queue"
	"github.com/divvyhq/divvy/internal/remote"
	"github.com/divvyhq/divvy/internal/state"
)

// State is the worker's lifecycle state.
type State int32

// Worker states.
const (
	StateIdle State = iota
	StateDraining
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for the drain loop.
type Config struct {
	// MaxAttempts caps retries per entry; once reached, a retryable
	// failure is treated as non-retryable and the entry is parked.
	MaxAttempts int

	// BaseBackoff is the delay after the first retryable failure.
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration

	// Jitter spreads backoff delays by ±Jitter (0..1).
	Jitter float64

	// WakeInterval is an optional periodic wake-up; 0 disables it.
	WakeInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		BaseBackoff:  2 * time.Second,
		MaxBackoff:   5 * time.Minute,
		Jitter:       0.1,
		WakeInterval: time.Minute,
	}
}

// Observer is the slice of connectivity the worker needs.
type Observer interface {
	Online() bool
	BecameOnline() <-chan struct{}
}

// Worker owns the drain loop.
type Worker struct {
	queue   *queue.Queue
	ids     *identity.Map
	domain  *state.Manager
	api     remote.API
	session *remote.Session
	conn    Observer
	cfg     Config
	metrics *Metrics

	st   atomic.Int32
	wake chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Worker. metrics may be nil.
func New(q *queue.Queue, ids *identity.Map, domain *state.Manager, api remote.API, session *remote.Session, conn Observer, cfg Config, metrics *Metrics) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return &Worker{
		queue:   q,
		ids:     ids,
		domain:  domain,
		api:     api,
		session: session,
		conn:    conn,
		cfg:     cfg,
		metrics: metrics,
		wake:    make(chan struct{}, 1),
	}
}

// State returns the worker's current state.
func (w *Worker) State() State { return State(w.st.Load()) }

func (w *Worker) setState(s State) { w.st.Store(int32(s)) }

// Wake nudges the worker to check the queue, e.g. right after an enqueue.
// Never blocks.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start launches the drain loop. Returns an error if already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop cancels the worker at the next entry boundary and waits for the
// loop to exit. An in-flight entry is never abandoned halfway.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()
	<-doneCh
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer w.setState(StateStopped)
	w.setState(StateIdle)

	var tick <-chan time.Time
	if w.cfg.WakeInterval > 0 {
		ticker := time.NewTicker(w.cfg.WakeInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// Drain once at startup in case entries persisted from a previous run.
	w.maybeDrain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.conn.BecameOnline():
			w.maybeDrain(ctx)
		case <-w.wake:
			w.maybeDrain(ctx)
		case <-tick:
			w.maybeDrain(ctx)
		}
		if w.State() == StateStopped {
			return
		}
	}
}

func (w *Worker) maybeDrain(ctx context.Context) {
	if !w.conn.Online() || w.queue.Len() == 0 {
		return
	}
	if err := w.session.Valid(); err != nil {
		if errors.Is(err, remote.ErrSessionExpired) {
			slog.Warn("Session expired, stopping sync", "error", err)
			w.setState(StateStopped)
		}
		return
	}

	start := time.Now()
	w.drain(ctx)
	if w.metrics != nil {
		w.metrics.drainDuration.Observe(time.Since(start).Seconds())
	}
}

// drain applies queued entries in order until the queue is empty, the
// worker is cancelled, or connectivity drops away.
func (w *Worker) drain(ctx context.Context) {
	w.setState(StateDraining)

	for {
		// Cancellation is observed between entries only, never mid-entry.
		select {
		case <-ctx.Done():
			w.setState(StateStopped)
			return
		case <-w.stopCh:
			w.setState(StateStopped)
			return
		default:
		}

		// Claiming the head excludes it from enqueue-time collapse: a
		// mutation racing this send queues normally behind it.
		entry := w.queue.TakeNext()
		if entry == nil {
			w.setState(StateIdle)
			return
		}

		err := w.apply(ctx, entry)
		if err == nil {
			if w.metrics != nil {
				w.metrics.syncedTotal.Inc()
			}
			continue
		}

		if !w.handleFailure(ctx, entry, err) {
			return
		}
	}
}

// handleFailure classifies a per-entry error. It returns false when the
// drain pass should end (backoff scheduled or worker stopped).
func (w *Worker) handleFailure(ctx context.Context, entry *models.QueueEntry, cause error) bool {
	switch {
	case remote.IsNetwork(cause):
		if w.metrics != nil {
			w.metrics.failedTotal.WithLabelValues("network").Inc()
		}
		attempts := entry.Attempts + 1
		if err := w.queue.MarkFailed(ctx, entry.OpID, cause); err != nil {
			slog.Error("Failed to record attempt", "op_id", entry.OpID, "error", err)
		}
		if attempts >= w.cfg.MaxAttempts {
			// Retry budget exhausted: treat as non-retryable.
			w.park(ctx, entry, fmt.Errorf("gave up after %d attempts: %w", attempts, cause))
			return true
		}
		delay := backoffDelay(attempts, w.cfg.BaseBackoff, w.cfg.MaxBackoff, w.cfg.Jitter)
		slog.Warn("Sync attempt failed, backing off",
			"op_id", entry.OpID,
			"entity_type", entry.EntityType,
			"attempt", attempts,
			"delay", delay,
			"error", cause,
		)
		return w.backoff(ctx, delay)

	case remote.IsConflict(cause):
		if w.metrics != nil {
			w.metrics.failedTotal.WithLabelValues("conflict").Inc()
		}
		w.resolveConflict(ctx, entry, remote.AsConflict(cause))
		return true

	case remote.IsValidation(cause):
		if w.metrics != nil {
			w.metrics.failedTotal.WithLabelValues("validation").Inc()
		}
		w.park(ctx, entry, cause)
		return true

	default:
		// Unknown failures are not retried; retrying blind would stall the
		// queue behind an entry we cannot reason about.
		if w.metrics != nil {
			w.metrics.failedTotal.WithLabelValues("unknown").Inc()
		}
		w.park(ctx, entry, cause)
		return true
	}
}

// backoff waits out the delay. Returns false when the worker was cancelled
// while waiting; the same head entry is retried on the next pass either
// way, so ordering is never violated by skipping ahead.
func (w *Worker) backoff(ctx context.Context, delay time.Duration) bool {
	w.setState(StateBackoff)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		w.setState(StateStopped)
		return false
	case <-w.stopCh:
		w.setState(StateStopped)
		return false
	case <-timer.C:
		w.setState(StateDraining)
		return true
	}
}

// park moves a poisoned entry to the dead-letter list and surfaces the
// failure to the user exactly once.
func (w *Worker) park(ctx context.Context, entry *models.QueueEntry, cause error) {
	slog.Error("Parking queue entry",
		"op_id", entry.OpID,
		"entity_type", entry.EntityType,
		"entity_id", entry.EntityID,
		"error", cause,
	)
	if err := w.queue.Park(ctx, entry.OpID, cause); err != nil {
		slog.Error("Failed to park entry", "op_id", entry.OpID, "error", err)
	}
	if w.metrics != nil {
		w.metrics.parkedTotal.Inc()
	}
	w.domain.NotifySyncError(entry.EntityType, entry.EntityID, cause.Error())
}

// resolveConflict discards the local mutation and restores the server's
// copy: the server is always authoritative. The user is notified once, not
// once per retry.
func (w *Worker) resolveConflict(ctx context.Context, entry *models.QueueEntry, conflict *remote.ConflictError) {
	entityID := w.ids.Resolve(entry.EntityID)
	slog.Warn("Conflict, discarding local mutation",
		"op_id", entry.OpID,
		"entity_type", entry.EntityType,
		"entity_id", entityID,
		"gone", conflict.Gone,
	)

	if err := w.queue.Remove(ctx, entry.OpID); err != nil {
		slog.Error("Failed to remove conflicted entry", "op_id", entry.OpID, "error", err)
	}

	if conflict.Gone {
		if err := w.domain.Remove(ctx, entry.EntityType, entityID); err != nil {
			slog.Error("Failed to purge remotely deleted entity", "entity_id", entityID, "error", err)
		}
	} else {
		raw, err := w.api.Get(ctx, entry.EntityType, entityID)
		switch {
		case err == nil:
			if _, aerr := w.domain.ApplyRemote(ctx, entry.EntityType, raw); aerr != nil {
				slog.Error("Failed to apply refreshed entity", "entity_id", entityID, "error", aerr)
			}
		case remote.IsConflict(err):
			// Deleted between the mutation attempt and the refresh.
			if derr := w.domain.Remove(ctx, entry.EntityType, entityID); derr != nil {
				slog.Error("Failed to purge remotely deleted entity", "entity_id", entityID, "error", derr)
			}
		default:
			slog.Error("Failed to refresh conflicted entity", "entity_id", entityID, "error", err)
		}
	}

	w.domain.NotifySyncError(entry.EntityType, entityID, conflict.Error())
}

// apply sends one entry to the remote backend and, on success, installs
// the canonical result locally and removes the entry.
func (w *Worker) apply(ctx context.Context, entry *models.QueueEntry) error {
	// Resolve any temp ids the payload references before sending: mappings
	// may have been learned after this entry was enqueued.
	entityID := w.ids.Resolve(entry.EntityID)
	payload := entry.Payload
	if len(payload) > 0 {
		resolved, err := w.ids.ResolveJSON(payload)
		if err != nil {
			return fmt.Errorf("failed to resolve payload ids: %w", err)
		}
		payload = resolved
	}

	switch entry.Op {
	case models.OpCreate:
		raw, err := w.api.Create(ctx, entry.EntityType, entry.OpID, payload)
		if err != nil {
			return err
		}
		canonicalID, err := w.domain.ApplyRemote(ctx, entry.EntityType, raw)
		if err != nil {
			return fmt.Errorf("failed to install canonical entity: %w", err)
		}
		if identity.IsTemp(entry.EntityID) && canonicalID != entry.EntityID {
			if err := w.domain.Remove(ctx, entry.EntityType, entry.EntityID); err != nil {
				return fmt.Errorf("failed to drop optimistic entity: %w", err)
			}
			if err := w.ids.Remember(ctx, entry.EntityID, canonicalID); err != nil {
				return fmt.Errorf("failed to record id mapping: %w", err)
			}
			// Every cached entity and still-queued payload must reference
			// the canonical id before the next entry is sent.
			if err := w.ids.RewriteReferences(ctx, entry.EntityID, canonicalID); err != nil {
				return err
			}
		}

	case models.OpUpdate:
		raw, err := w.api.Update(ctx, entry.EntityType, entityID, entry.OpID, payload)
		if err != nil {
			return err
		}
		if _, err := w.domain.ApplyRemote(ctx, entry.EntityType, raw); err != nil {
			return fmt.Errorf("failed to install canonical entity: %w", err)
		}

	case models.OpDelete:
		if err := w.api.Delete(ctx, entry.EntityType, entityID, entry.OpID); err != nil {
			// Deleting something already gone remotely is success enough.
			if conflict := remote.AsConflict(err); conflict == nil || !conflict.Gone {
				return err
			}
		}
		if err := w.domain.Remove(ctx, entry.EntityType, entityID); err != nil {
			return fmt.Errorf("failed to purge deleted entity: %w", err)
		}

	default:
		return fmt.Errorf("unknown operation %q", entry.Op)
	}

	if err := w.queue.Remove(ctx, entry.OpID); err != nil {
		return fmt.Errorf("failed to remove completed entry: %w", err)
	}
	return nil
}
