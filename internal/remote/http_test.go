package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/storage"
)

func testToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "alice",
		"email":   "alice@example.com",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	session, err := LoadSession(context.Background(), storage.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, session.SetToken(context.Background(), testToken(t)))
	return NewClient(srv.URL, session, time.Second)
}

func TestCreateSendsIdempotencyKeyAndBearer(t *testing.T) {
	var gotKey, gotAuth, gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"e42"}`))
	}))

	raw, err := client.Create(context.Background(), models.EntityExpense, "op-123", []byte(`{"amount":"10"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"e42"}`, string(raw))
	require.Equal(t, "op-123", gotKey, "the operation id is the idempotency key")
	require.Contains(t, gotAuth, "Bearer ")
	require.Equal(t, "/v1/expenses", gotPath)
}

func TestClassifyStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "5xx is retryable",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				require.True(t, IsNetwork(err))
			},
		},
		{
			name:   "429 is retryable",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				require.True(t, IsNetwork(err))
			},
		},
		{
			name:   "422 is a validation rejection",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"amount must be positive"}`,
			check: func(t *testing.T, err error) {
				require.True(t, IsValidation(err))
				require.Contains(t, err.Error(), "amount must be positive")
			},
		},
		{
			name:   "409 is a conflict",
			status: http.StatusConflict,
			body:   `{"message":"version mismatch","entity_type":"expense","entity_id":"e1"}`,
			check: func(t *testing.T, err error) {
				conflict := AsConflict(err)
				require.NotNil(t, conflict)
				require.False(t, conflict.Gone)
				require.Equal(t, "e1", conflict.EntityID)
			},
		},
		{
			name:   "404 means gone",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				conflict := AsConflict(err)
				require.NotNil(t, conflict)
				require.True(t, conflict.Gone)
			},
		},
		{
			name:   "401 is not retryable",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				require.True(t, IsValidation(err))
				require.False(t, IsNetwork(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			_, err := client.Update(context.Background(), models.EntityExpense, "e1", "op-1", []byte(`{}`))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	session, err := LoadSession(context.Background(), storage.NewMemoryStore())
	require.NoError(t, err)
	client := NewClient("http://127.0.0.1:1", session, 100*time.Millisecond)

	_, err = client.Get(context.Background(), models.EntityGroup, "g1")
	require.True(t, IsNetwork(err))
}

func TestSessionLifecycle(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	session, err := LoadSession(ctx, store)
	require.NoError(t, err)
	require.Error(t, session.Valid(), "empty session is not valid")

	require.NoError(t, session.SetToken(ctx, testToken(t)))
	require.NoError(t, session.Valid())
	require.Equal(t, "alice", session.UserID())

	// The token survives a reload.
	reloaded, err := LoadSession(ctx, store)
	require.NoError(t, err)
	require.NoError(t, reloaded.Valid())
	require.Equal(t, "alice", reloaded.UserID())

	require.NoError(t, session.Clear(ctx))
	require.Error(t, session.Valid())
	require.Empty(t, session.Token())
}

func TestExpiredTokenReportsExpired(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	session, err := LoadSession(ctx, store)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	require.NoError(t, session.SetToken(ctx, signed))
	require.ErrorIs(t, session.Valid(), ErrSessionExpired)
}

func TestGarbagePersistedTokenIsDiscarded(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, storage.CollectionSession, []byte("not-a-jwt")))

	session, err := LoadSession(ctx, store)
	require.NoError(t, err)
	require.Empty(t, session.Token())
	require.Error(t, session.Valid())
}
