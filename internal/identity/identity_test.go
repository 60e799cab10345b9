package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/divvyhq/divvy/internal/storage"
)

func TestTempIDsAreUniqueAndRecognizable(t *testing.T) {
	store := storage.NewMemoryStore()
	m, err := Load(context.Background(), store)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for range 100 {
		id := m.TempID()
		require.True(t, IsTemp(id))
		require.False(t, seen[id], "temp id %s reused", id)
		seen[id] = true
	}
	require.False(t, IsTemp("e42"))
	require.False(t, IsTemp("8d3f2c1a-temp"))
}

func TestRememberAndResolve(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	m, err := Load(ctx, store)
	require.NoError(t, err)

	tempID := m.TempID()
	require.NoError(t, m.Remember(ctx, tempID, "e42"))
	require.Equal(t, "e42", m.Resolve(tempID))
	require.Equal(t, "other", m.Resolve("other"), "unmapped ids resolve to themselves")

	require.Error(t, m.Remember(ctx, "e42", "e43"), "canonical ids must not be remapped")
}

func TestMappingSurvivesReload(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	m, err := Load(ctx, store)
	require.NoError(t, err)
	tempID := m.TempID()
	require.NoError(t, m.Remember(ctx, tempID, "g7"))

	reloaded, err := Load(ctx, store)
	require.NoError(t, err)
	require.Equal(t, "g7", reloaded.Resolve(tempID))
}

type recordingRewriter struct {
	calls [][2]string
}

func (r *recordingRewriter) RewriteID(_ context.Context, old, new string) error {
	r.calls = append(r.calls, [2]string{old, new})
	return nil
}

func TestRewriteReferencesDrivesRegisteredRewriters(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	m, err := Load(ctx, store)
	require.NoError(t, err)

	first := &recordingRewriter{}
	second := &recordingRewriter{}
	m.Register(first)
	m.Register(second)

	require.NoError(t, m.RewriteReferences(ctx, "tmp-1-aaaa", "e42"))
	require.Equal(t, [][2]string{{"tmp-1-aaaa", "e42"}}, first.calls)
	require.Equal(t, [][2]string{{"tmp-1-aaaa", "e42"}}, second.calls)
}

func TestResolveJSONReplacesKnownTempIDs(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	m, err := Load(ctx, store)
	require.NoError(t, err)
	require.NoError(t, m.Remember(ctx, "tmp-1-aaaa", "g7"))

	doc := []byte(`{"group_id":"tmp-1-aaaa","ids":["tmp-1-aaaa","tmp-2-bbbb"],"note":"keep"}`)
	out, err := m.ResolveJSON(doc)
	require.NoError(t, err)
	require.JSONEq(t, `{"group_id":"g7","ids":["g7","tmp-2-bbbb"],"note":"keep"}`, string(out))
}

func TestRewriteJSON(t *testing.T) {
	doc := []byte(`{"id":"tmp-1-aaaa","nested":{"expense_id":"tmp-1-aaaa"},"n":3}`)
	out, changed, err := RewriteJSON(doc, "tmp-1-aaaa", "e42")
	require.NoError(t, err)
	require.True(t, changed)
	require.JSONEq(t, `{"id":"e42","nested":{"expense_id":"e42"},"n":3}`, string(out))

	same, changed, err := RewriteJSON([]byte(`{"id":"e1"}`), "tmp-9-x", "e9")
	require.NoError(t, err)
	require.False(t, changed)
	require.JSONEq(t, `{"id":"e1"}`, string(same))
}
