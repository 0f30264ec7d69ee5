package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/beacon/pkg/events"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu       sync.Mutex
	batches  [][]map[string]any
	status   atomic.Int32
	mute     atomic.Value
	spiky    string
	hellos   atomic.Int32
	accounts []string
}

func newCollector(t *testing.T) (*collector, *httptest.Server) {
	t.Helper()
	c := &collector{}
	c.status.Store(http.StatusOK)
	c.mute.Store("")

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m := c.mute.Load().(string); m != "" {
			w.Header().Set(HeaderMute, m)
		}
		switch r.URL.Path {
		case "/hello":
			c.hellos.Add(1)
			u, _ := url.Parse(srv.URL)
			w.Header().Set(HeaderDomain, u.Host)
			if c.spiky != "" {
				w.Header().Set(HeaderSpikyDomain, c.spiky)
			}
			w.WriteHeader(http.StatusOK)
		case "/a1":
			var batch []map[string]any
			if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			code := int(c.status.Load())
			if code == http.StatusOK {
				c.mu.Lock()
				c.batches = append(c.batches, batch)
				c.accounts = append(c.accounts, r.Header.Get(HeaderAccountID))
				c.mu.Unlock()
			}
			w.WriteHeader(code)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *collector) received() [][]map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]map[string]any(nil), c.batches...)
}

type muteFlag struct{ muted atomic.Bool }

func (m *muteFlag) SetMuted(v bool) { m.muted.Store(v) }

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func queue(t *testing.T, store storage.EventStore, group types.EventGroup, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := types.NewEvent(types.KindRaised, "Tapped", types.NewPayload().Set("i", i))
		require.NoError(t, ev.Enrich(types.Enrichment{SessionID: 1, Type: "event", EpochSeconds: int64(100 + i)}))
		require.NoError(t, store.Append(ev, group))
	}
}

func TestNewSyncerRequiresEndpoint(t *testing.T) {
	_, err := NewSyncer(Config{}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoDomain)

	_, err = NewSyncer(Config{Endpoint: "/relative"}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoDomain)
}

func TestHandshake(t *testing.T) {
	c, srv := newCollector(t)
	c.spiky = "spiky.example.com"

	s, err := NewSyncer(Config{Endpoint: srv.URL, AccountID: "acc"}, newStore(t), nil, nil)
	require.NoError(t, err)

	assert.True(t, s.NeedsHandshake(types.GroupRegular))
	require.NoError(t, s.Handshake(context.Background(), types.GroupRegular))
	assert.False(t, s.NeedsHandshake(types.GroupRegular))
	assert.False(t, s.NeedsHandshake(types.GroupPushViewed))
	assert.Equal(t, "spiky.example.com", s.domainFor(types.GroupPushViewed))
	assert.Equal(t, int32(1), c.hellos.Load())
}

func TestFlushFromStoreInBatches(t *testing.T) {
	c, srv := newCollector(t)
	store := newStore(t)
	queue(t, store, types.GroupRegular, 5)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	results := broker.Subscribe(events.EventFlushSucceeded)

	s, err := NewSyncer(Config{Endpoint: srv.URL, AccountID: "acc", DeviceID: "__gdev", BatchSize: 2}, store, broker, nil)
	require.NoError(t, err)
	require.NoError(t, s.Handshake(context.Background(), types.GroupRegular))

	result := s.FlushFromStore(context.Background(), types.GroupRegular)
	require.NoError(t, result.Err)
	assert.Equal(t, 5, result.Sent)

	batches := c.received()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3, "meta header plus two events")
	assert.Equal(t, "meta", batches[0][0]["type"])
	assert.Equal(t, "__gdev", batches[0][0]["g"])
	assert.Equal(t, "Tapped", batches[0][1]["evtName"])
	assert.Equal(t, "acc", c.accounts[0])

	n, err := store.Count(types.GroupRegular)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	select {
	case ev := <-results:
		assert.Equal(t, 5, ev.Result.Sent)
	case <-time.After(time.Second):
		t.Fatal("no flush result published")
	}
}

func TestFlushFailureBacksOff(t *testing.T) {
	c, srv := newCollector(t)
	store := newStore(t)
	queue(t, store, types.GroupRegular, 2)

	s, err := NewSyncer(Config{
		Endpoint:  srv.URL,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  300 * time.Millisecond,
	}, store, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Handshake(context.Background(), types.GroupRegular))
	assert.Equal(t, 100*time.Millisecond, s.RecommendedDelay())

	c.status.Store(http.StatusServiceUnavailable)
	result := s.FlushFromStore(context.Background(), types.GroupRegular)
	require.Error(t, result.Err)
	assert.Equal(t, 200*time.Millisecond, result.RetryDelay)

	result = s.FlushFromStore(context.Background(), types.GroupRegular)
	assert.Equal(t, 300*time.Millisecond, result.RetryDelay, "capped at max delay")
	assert.Equal(t, 2, s.Failures())

	n, _ := store.Count(types.GroupRegular)
	assert.Equal(t, 2, n, "failed batches stay queued")

	c.status.Store(http.StatusOK)
	result = s.FlushFromStore(context.Background(), types.GroupRegular)
	require.NoError(t, result.Err)
	assert.Equal(t, 0, s.Failures())
	assert.Equal(t, 100*time.Millisecond, s.RecommendedDelay())
}

func TestFlushWithoutHandshake(t *testing.T) {
	_, srv := newCollector(t)
	s, err := NewSyncer(Config{Endpoint: srv.URL}, newStore(t), nil, nil)
	require.NoError(t, err)

	result := s.FlushFromStore(context.Background(), types.GroupRegular)
	assert.ErrorIs(t, result.Err, ErrHandshakeRequired)
}

func TestHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewSyncer(Config{Endpoint: srv.URL}, newStore(t), nil, nil)
	require.NoError(t, err)

	assert.Error(t, s.Handshake(context.Background(), types.GroupRegular))
	assert.True(t, s.NeedsHandshake(types.GroupRegular))
	assert.Equal(t, 1, s.Failures())
}

func TestMuteHeader(t *testing.T) {
	c, srv := newCollector(t)
	c.mute.Store("true")

	flag := &muteFlag{}
	s, err := NewSyncer(Config{Endpoint: srv.URL}, newStore(t), nil, flag)
	require.NoError(t, err)

	require.NoError(t, s.Handshake(context.Background(), types.GroupRegular))
	assert.True(t, flag.muted.Load())

	c.mute.Store("false")
	require.NoError(t, s.Handshake(context.Background(), types.GroupRegular))
	assert.False(t, flag.muted.Load())
}

func TestUploadURL(t *testing.T) {
	s, err := NewSyncer(Config{Endpoint: "https://collector.example.com", AccountID: "acc"}, nil, nil, nil)
	require.NoError(t, err)

	u, err := url.Parse(s.uploadURL("eu1.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "eu1.example.com", u.Host)
	assert.Equal(t, "/a1", u.Path)
	assert.Equal(t, "acc", u.Query().Get("z"))
}
