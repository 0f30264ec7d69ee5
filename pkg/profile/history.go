package profile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
)

// History keeps count, first and last time for every raised event name
type History struct {
	mu    sync.Mutex
	store storage.HistoryStore
}

// NewHistory creates a history backed by store
func NewHistory(store storage.HistoryStore) *History {
	return &History{store: store}
}

// Record bumps the bookkeeping for name at epoch seconds
func (h *History) Record(name string, epoch int64) (*types.EventHistory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, err := h.store.GetEventHistory(name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		entry = &types.EventHistory{Name: name, FirstTime: epoch}
	case err != nil:
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}

	entry.Count++
	if entry.FirstTime == 0 || epoch < entry.FirstTime {
		entry.FirstTime = epoch
	}
	if epoch > entry.LastTime {
		entry.LastTime = epoch
	}

	if err := h.store.PutEventHistory(entry); err != nil {
		return nil, fmt.Errorf("failed to write event history: %w", err)
	}
	return entry, nil
}

// Get returns the bookkeeping for name
func (h *History) Get(name string) (*types.EventHistory, error) {
	return h.store.GetEventHistory(name)
}

// List returns every recorded event name
func (h *History) List() ([]*types.EventHistory, error) {
	return h.store.ListEventHistory()
}
