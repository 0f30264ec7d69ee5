package profile

import (
	"testing"

	"github.com/cuemby/beacon/pkg/classifier"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ classifier.Cache = (*Cache)(nil)

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCacheWritesThrough(t *testing.T) {
	store := newStore(t)

	c, err := NewCache(store)
	require.NoError(t, err)

	c.SetAll(map[string]any{"Name": "Ada", "Score": 3.0})
	v, ok := c.Get("Name")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)

	c.SetAll(map[string]any{"Score": nil})
	_, ok = c.Get("Score")
	assert.False(t, ok)

	reloaded, err := NewCache(store)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Name": "Ada"}, reloaded.Snapshot())
}

func TestCacheWithDiff(t *testing.T) {
	c, err := NewCache(nil)
	require.NoError(t, err)

	patch := types.NewPayload().Set("Visits", map[string]any{"$incr": 2})
	changes, err := classifier.ComputeAttributeChanges(patch, c)
	require.NoError(t, err)
	require.Contains(t, changes, "Visits")

	v, _ := c.Get("Visits")
	assert.EqualValues(t, 2, v)

	changes, err = classifier.ComputeAttributeChanges(patch, c)
	require.NoError(t, err)
	v, _ = c.Get("Visits")
	assert.EqualValues(t, 4, v)
	assert.EqualValues(t, 2, changes["Visits"].OldValue)
}

func TestHistoryRecord(t *testing.T) {
	h := NewHistory(newStore(t))

	entry, err := h.Record("Purchased", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count)
	assert.Equal(t, int64(100), entry.FirstTime)
	assert.Equal(t, int64(100), entry.LastTime)

	entry, err = h.Record("Purchased", 250)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Count)
	assert.Equal(t, int64(100), entry.FirstTime)
	assert.Equal(t, int64(250), entry.LastTime)

	_, err = h.Record("Searched", 300)
	require.NoError(t, err)

	all, err := h.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = h.Get("Unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
