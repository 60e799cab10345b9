package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/divvyhq/divvy/internal/identity"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/queue"
	"github.com/divvyhq/divvy/internal/remote"
	"github.com/divvyhq/divvy/internal/state"
	"github.com/divvyhq/divvy/internal/storage"
)

type fakeObserver struct {
	online bool
	edges  chan struct{}
}

func (f *fakeObserver) Online() bool                  { return f.online }
func (f *fakeObserver) BecameOnline() <-chan struct{} { return f.edges }

type apiCall struct {
	Op     string
	Entity models.EntityType
	ID     string
	Body   json.RawMessage
}

// fakeAPI scripts per-operation behavior and records every call in order.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall

	createFn func(entity models.EntityType, opID string, payload json.RawMessage) (json.RawMessage, error)
	updateFn func(entity models.EntityType, id string, payload json.RawMessage) (json.RawMessage, error)
	deleteFn func(entity models.EntityType, id string) error
	getFn    func(entity models.EntityType, id string) (json.RawMessage, error)
	pullFn   func(entity models.EntityType) (json.RawMessage, error)
}

func (f *fakeAPI) record(c apiCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]apiCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAPI) Create(_ context.Context, entity models.EntityType, opID string, payload json.RawMessage) (json.RawMessage, error) {
	f.record(apiCall{Op: "create", Entity: entity, Body: payload})
	if f.createFn != nil {
		return f.createFn(entity, opID, payload)
	}
	return payload, nil
}

func (f *fakeAPI) Update(_ context.Context, entity models.EntityType, id, opID string, payload json.RawMessage) (json.RawMessage, error) {
	f.record(apiCall{Op: "update", Entity: entity, ID: id, Body: payload})
	if f.updateFn != nil {
		return f.updateFn(entity, id, payload)
	}
	return payload, nil
}

func (f *fakeAPI) Delete(_ context.Context, entity models.EntityType, id, opID string) error {
	f.record(apiCall{Op: "delete", Entity: entity, ID: id})
	if f.deleteFn != nil {
		return f.deleteFn(entity, id)
	}
	return nil
}

func (f *fakeAPI) Get(_ context.Context, entity models.EntityType, id string) (json.RawMessage, error) {
	f.record(apiCall{Op: "get", Entity: entity, ID: id})
	if f.getFn != nil {
		return f.getFn(entity, id)
	}
	return nil, &remote.ConflictError{EntityType: entity, EntityID: id, Gone: true}
}

func (f *fakeAPI) Pull(_ context.Context, entity models.EntityType) (json.RawMessage, error) {
	f.record(apiCall{Op: "pull", Entity: entity})
	if f.pullFn != nil {
		return f.pullFn(entity)
	}
	return json.RawMessage("[]"), nil
}

type fixture struct {
	store   storage.LocalStore
	queue   *queue.Queue
	ids     *identity.Map
	domain  *state.Manager
	api     *fakeAPI
	session *remote.Session
	conn    *fakeObserver
	worker  *Worker
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	q, err := queue.Load(ctx, store)
	require.NoError(t, err)
	domain, err := state.Open(ctx, store)
	require.NoError(t, err)
	t.Cleanup(domain.Close)
	ids, err := identity.Load(ctx, store)
	require.NoError(t, err)
	ids.Register(domain)
	ids.Register(q)

	session := testSession(t, store, time.Now().Add(time.Hour))
	api := &fakeAPI{}
	conn := &fakeObserver{online: true, edges: make(chan struct{}, 1)}

	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Millisecond
	}
	worker := New(q, ids, domain, api, session, conn, cfg, nil)

	return &fixture{store: store, queue: q, ids: ids, domain: domain, api: api, session: session, conn: conn, worker: worker}
}

func testSession(t *testing.T, store storage.LocalStore, expiry time.Time) *remote.Session {
	t.Helper()
	ctx := context.Background()
	session, err := remote.LoadSession(ctx, store)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "alice",
		"exp":     expiry.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	require.NoError(t, session.SetToken(ctx, signed))
	return session
}

func TestDrainEmptiesQueueInOrder(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, models.EntityGroup, models.OpCreate, "g1", []byte(`{"id":"g1","name":"flat"}`))
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, models.EntityExpense, models.OpDelete, "e1", nil)
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	require.Zero(t, f.queue.Len())
	require.Equal(t, StateIdle, f.worker.State())

	calls := f.api.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "create", calls[0].Op)
	require.Equal(t, "delete", calls[1].Op)

	group, ok := f.domain.Group("g1")
	require.True(t, ok)
	require.Equal(t, "flat", group.Name)
}

func TestCreateRemapsTempIDBeforeDependents(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// The server assigns canonical ids on create.
	f.api.createFn = func(entity models.EntityType, _ string, payload json.RawMessage) (json.RawMessage, error) {
		if entity == models.EntityGroup {
			var g models.Group
			if err := json.Unmarshal(payload, &g); err != nil {
				return nil, err
			}
			g.ID = "g42"
			return json.Marshal(g)
		}
		var e models.Expense
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		e.ID = "e7"
		return json.Marshal(e)
	}

	// Offline: a group and an expense inside it, both under temp ids.
	tempGroup := f.ids.TempID()
	require.NoError(t, f.domain.UpsertGroup(ctx, models.Group{ID: tempGroup, Name: "ski trip"}))
	_, err := f.queue.Enqueue(ctx, models.EntityGroup, models.OpCreate, tempGroup,
		[]byte(fmt.Sprintf(`{"id":%q,"name":"ski trip"}`, tempGroup)))
	require.NoError(t, err)

	tempExpense := f.ids.TempID()
	require.NoError(t, f.domain.UpsertExpense(ctx, models.Expense{ID: tempExpense, GroupID: tempGroup, PayerID: "alice"}))
	_, err = f.queue.Enqueue(ctx, models.EntityExpense, models.OpCreate, tempExpense,
		[]byte(fmt.Sprintf(`{"id":%q,"group_id":%q,"payer_id":"alice"}`, tempExpense, tempGroup)))
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)
	require.Zero(t, f.queue.Len())

	// The expense create must have gone out with the canonical group id.
	calls := f.api.Calls()
	require.Len(t, calls, 2)
	var sent models.Expense
	require.NoError(t, json.Unmarshal(calls[1].Body, &sent))
	require.Equal(t, "g42", sent.GroupID)

	// Optimistic temp entities are replaced by canonical ones.
	_, ok := f.domain.Group(tempGroup)
	require.False(t, ok)
	_, ok = f.domain.Group("g42")
	require.True(t, ok)
	_, ok = f.domain.Expense("e7")
	require.True(t, ok)
	require.Equal(t, "g42", f.ids.Resolve(tempGroup))
}

func TestUpdateDuringInflightCreateIsNotLost(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	tempID := f.ids.TempID()
	require.NoError(t, f.domain.UpsertExpense(ctx, models.Expense{
		ID: tempID, GroupID: "g1", PayerID: "alice", Description: "old",
	}))

	// The user edits the expense while its create is on the wire. The edit
	// must not merge into the in-flight entry; it queues behind it.
	f.api.createFn = func(_ models.EntityType, _ string, payload json.RawMessage) (json.RawMessage, error) {
		_, err := f.queue.Enqueue(ctx, models.EntityExpense, models.OpUpdate, tempID,
			[]byte(fmt.Sprintf(`{"id":%q,"group_id":"g1","payer_id":"alice","description":"new"}`, tempID)))
		require.NoError(t, err)

		var e models.Expense
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		e.ID = "e99"
		return json.Marshal(e)
	}

	_, err := f.queue.Enqueue(ctx, models.EntityExpense, models.OpCreate, tempID,
		[]byte(fmt.Sprintf(`{"id":%q,"group_id":"g1","payer_id":"alice","description":"old"}`, tempID)))
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	require.Zero(t, f.queue.Len())
	calls := f.api.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "create", calls[0].Op)
	require.Equal(t, "update", calls[1].Op)
	require.Equal(t, "e99", calls[1].ID, "the queued edit goes out under the canonical id")

	expense, ok := f.domain.Expense("e99")
	require.True(t, ok)
	require.Equal(t, "new", expense.Description)
}

func TestDeleteDuringInflightCreateReachesServer(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	tempID := f.ids.TempID()
	require.NoError(t, f.domain.UpsertExpense(ctx, models.Expense{
		ID: tempID, GroupID: "g1", PayerID: "alice",
	}))

	// The user deletes the expense while its create is on the wire. The
	// create may already have landed, so the delete must reach the server
	// too; collapsing both away would resurrect the entity remotely.
	f.api.createFn = func(_ models.EntityType, _ string, payload json.RawMessage) (json.RawMessage, error) {
		_, err := f.queue.Enqueue(ctx, models.EntityExpense, models.OpDelete, tempID, nil)
		require.NoError(t, err)

		var e models.Expense
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		e.ID = "e99"
		return json.Marshal(e)
	}

	_, err := f.queue.Enqueue(ctx, models.EntityExpense, models.OpCreate, tempID,
		[]byte(fmt.Sprintf(`{"id":%q,"group_id":"g1","payer_id":"alice"}`, tempID)))
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	require.Zero(t, f.queue.Len())
	calls := f.api.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "create", calls[0].Op)
	require.Equal(t, "delete", calls[1].Op)
	require.Equal(t, "e99", calls[1].ID)

	_, ok := f.domain.Expense("e99")
	require.False(t, ok)
	_, ok = f.domain.Expense(tempID)
	require.False(t, ok)
}

func TestNetworkErrorRetriesSameEntry(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 5})
	ctx := context.Background()

	failures := 0
	f.api.createFn = func(_ models.EntityType, _ string, payload json.RawMessage) (json.RawMessage, error) {
		if failures < 2 {
			failures++
			return nil, &remote.NetworkError{Op: "create group", Err: errors.New("connection refused")}
		}
		return payload, nil
	}

	_, err := f.queue.Enqueue(ctx, models.EntityGroup, models.OpCreate, "g1", []byte(`{"id":"g1"}`))
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, models.EntityGroup, models.OpDelete, "g0", nil)
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	require.Zero(t, f.queue.Len())
	require.Empty(t, f.queue.Dead())

	// The head entry is retried in place; the delete never jumps the line.
	calls := f.api.Calls()
	require.Len(t, calls, 4)
	require.Equal(t, "create", calls[0].Op)
	require.Equal(t, "create", calls[1].Op)
	require.Equal(t, "create", calls[2].Op)
	require.Equal(t, "delete", calls[3].Op)
}

func TestRetryBudgetExhaustedParksEntry(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 2})
	ctx := context.Background()

	f.api.createFn = func(models.EntityType, string, json.RawMessage) (json.RawMessage, error) {
		return nil, &remote.NetworkError{Op: "create group", Err: errors.New("timeout")}
	}

	events := f.domain.Subscribe()
	_, err := f.queue.Enqueue(ctx, models.EntityGroup, models.OpCreate, "g1", []byte(`{"id":"g1"}`))
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, models.EntityExpense, models.OpDelete, "e1", nil)
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	// The poisoned create is parked and the queue keeps moving.
	require.Zero(t, f.queue.Len())
	dead := f.queue.Dead()
	require.Len(t, dead, 1)
	require.Equal(t, models.OpCreate, dead[0].Op)

	require.Equal(t, 1, countSyncErrors(events), "the user hears about the failure exactly once")
}

func TestConflictDiscardsLocalAndRefreshes(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	require.NoError(t, f.domain.UpsertGroup(ctx, models.Group{ID: "g1", Name: "local edit"}))
	f.api.updateFn = func(entity models.EntityType, id string, _ json.RawMessage) (json.RawMessage, error) {
		return nil, &remote.ConflictError{EntityType: entity, EntityID: id, Reason: "version mismatch"}
	}
	f.api.getFn = func(models.EntityType, string) (json.RawMessage, error) {
		return []byte(`{"id":"g1","name":"server copy"}`), nil
	}

	events := f.domain.Subscribe()
	_, err := f.queue.Enqueue(ctx, models.EntityGroup, models.OpUpdate, "g1", []byte(`{"id":"g1","name":"local edit"}`))
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	require.Zero(t, f.queue.Len(), "the conflicted mutation is discarded, not retried")
	group, ok := f.domain.Group("g1")
	require.True(t, ok)
	require.Equal(t, "server copy", group.Name, "the server's copy wins")
	require.Equal(t, 1, countSyncErrors(events))
}

func TestConflictGonePurgesEntity(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	require.NoError(t, f.domain.UpsertExpense(ctx, models.Expense{ID: "e1", GroupID: "g1", PayerID: "alice"}))
	f.api.updateFn = func(entity models.EntityType, id string, _ json.RawMessage) (json.RawMessage, error) {
		return nil, &remote.ConflictError{EntityType: entity, EntityID: id, Gone: true}
	}

	_, err := f.queue.Enqueue(ctx, models.EntityExpense, models.OpUpdate, "e1", []byte(`{"id":"e1"}`))
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	require.Zero(t, f.queue.Len())
	_, ok := f.domain.Expense("e1")
	require.False(t, ok, "an entity deleted remotely is purged locally")
}

func TestValidationErrorParksWithoutRetry(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.api.createFn = func(models.EntityType, string, json.RawMessage) (json.RawMessage, error) {
		return nil, &remote.ValidationError{Reason: "amount must be positive"}
	}

	_, err := f.queue.Enqueue(ctx, models.EntityExpense, models.OpCreate, "tmp-1-aaaa", []byte(`{"id":"tmp-1-aaaa"}`))
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	require.Len(t, f.api.Calls(), 1, "validation failures are never retried")
	require.Len(t, f.queue.Dead(), 1)
}

func TestDeleteOfRemotelyGoneEntitySucceeds(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	require.NoError(t, f.domain.UpsertExpense(ctx, models.Expense{ID: "e1", GroupID: "g1", PayerID: "alice"}))
	f.api.deleteFn = func(entity models.EntityType, id string) error {
		return &remote.ConflictError{EntityType: entity, EntityID: id, Gone: true}
	}

	_, err := f.queue.Enqueue(ctx, models.EntityExpense, models.OpDelete, "e1", nil)
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)

	require.Zero(t, f.queue.Len())
	require.Empty(t, f.queue.Dead())
	_, ok := f.domain.Expense("e1")
	require.False(t, ok)
}

func TestOfflineWorkerDoesNotDrain(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.conn.online = false

	_, err := f.queue.Enqueue(ctx, models.EntityGroup, models.OpCreate, "g1", []byte(`{"id":"g1"}`))
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)
	require.Empty(t, f.api.Calls())
	require.Equal(t, 1, f.queue.Len())
}

func TestExpiredSessionStopsWorker(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	testSession(t, f.store, time.Now().Add(-time.Hour))

	// The worker shares the fixture session; rebuild it with the expired
	// token from the store.
	expired, err := remote.LoadSession(ctx, f.store)
	require.NoError(t, err)
	f.worker.session = expired

	_, err = f.queue.Enqueue(ctx, models.EntityGroup, models.OpCreate, "g1", []byte(`{"id":"g1"}`))
	require.NoError(t, err)

	f.worker.maybeDrain(ctx)
	require.Empty(t, f.api.Calls())
	require.Equal(t, StateStopped, f.worker.State())
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, Config{WakeInterval: time.Hour})
	ctx := context.Background()

	require.NoError(t, f.worker.Start(ctx))
	require.Error(t, f.worker.Start(ctx), "double start is rejected")

	_, err := f.queue.Enqueue(ctx, models.EntityGroup, models.OpCreate, "g1", []byte(`{"id":"g1"}`))
	require.NoError(t, err)
	f.worker.Wake()

	require.Eventually(t, func() bool { return f.queue.Len() == 0 }, time.Second, 5*time.Millisecond)

	f.worker.Stop()
	require.Equal(t, StateStopped, f.worker.State())
	f.worker.Stop() // idempotent
}

func countSyncErrors(events <-chan state.Event) int {
	count := 0
	for {
		select {
		case ev := <-events:
			if ev.Kind == state.EventSyncError {
				count++
			}
		default:
			return count
		}
	}
}
