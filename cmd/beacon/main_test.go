package main

import (
	"context"
	"strings"
	"testing"

	"github.com/cuemby/beacon/pkg/config"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/cuemby/beacon/pkg/worker"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"42", int64(42)},
		{"12.5", 12.5},
		{"USD", "USD"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseScalar(tt.in))
		})
	}
}

func TestParseGroups(t *testing.T) {
	groups, err := parseGroups(nil)
	require.NoError(t, err)
	assert.Equal(t, types.AllGroups, groups)

	groups, err = parseGroups([]string{"variables"})
	require.NoError(t, err)
	assert.Equal(t, []types.EventGroup{types.GroupVariables}, groups)

	_, err = parseGroups([]string{"bogus"})
	assert.Error(t, err)
}

func openTestCollector(t *testing.T) *collector {
	t.Helper()
	c := config.Default()
	c.DataDir = t.TempDir()
	c.CreatedPostAppLaunch = true

	col, err := openCollector(c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = col.Close() })
	return col
}

func TestDispatchRejectsUnknownKind(t *testing.T) {
	c := openTestCollector(t)

	_, err := dispatch(c, []byte(`{"kind":"teleport"}`))
	assert.Error(t, err)

	_, err = dispatch(c, []byte(`not json`))
	assert.Error(t, err)
}

func TestReadLinesRecordsEvents(t *testing.T) {
	c := openTestCollector(t)

	input := strings.Join([]string{
		`{"kind":"screen","name":"Home"}`,
		`{"kind":"event","name":"Purchase","props":{"Amount":12}}`,
		``,
		`{"kind":"profile","props":{"Name":"Ada"}}`,
		`garbage`,
		`{"kind":"vars","props":{"color":"red"}}`,
	}, "\n")
	require.NoError(t, readLines(context.Background(), c, strings.NewReader(input)))

	n, err := c.store.Count(types.GroupRegular)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.store.Count(types.GroupVariables)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	name, ok := c.profile.Get("Name")
	require.True(t, ok)
	assert.Equal(t, "Ada", name)
}

func TestTrackWithDefaultConfigPersistsEvent(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg = saved })
	cfg = config.Default()
	cfg.DataDir = t.TempDir()
	require.False(t, cfg.CreatedPostAppLaunch)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	require.NoError(t, withCollector(cmd, func(c *collector) *worker.Handle {
		return c.coord.RecordEvent("Purchase", nil)
	}))
	assert.False(t, cfg.CreatedPostAppLaunch, "global config must not be modified")

	store, err := storage.NewBoltStore(cfg.DataDir)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Count(types.GroupRegular)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCloseRecordsSessionEnd(t *testing.T) {
	c := config.Default()
	c.DataDir = t.TempDir()

	col, err := openCollector(oneShot(c))
	require.NoError(t, err)
	_, err = await(context.Background(), col.coord.RecordScreen("Home"))
	require.NoError(t, err)
	require.NoError(t, col.Close())

	store, err := storage.NewBoltStore(c.DataDir)
	require.NoError(t, err)
	defer store.Close()

	end, err := store.GetMeta("sexe")
	require.NoError(t, err)
	id, err := store.GetMeta("lastSessionId")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, string(end), string(id))
}
