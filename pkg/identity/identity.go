package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultKeys are the profile fields that identify a user
var DefaultKeys = []string{"Identity", "Email"}

// Resolver picks identity fields out of profile patches and remembers which
// device each identity was last seen on
type Resolver struct {
	keys   []string
	store  storage.IdentityStore
	logger zerolog.Logger
}

// NewResolver creates a resolver. An empty keys list falls back to DefaultKeys.
func NewResolver(store storage.IdentityStore, keys []string) *Resolver {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	return &Resolver{
		keys:   keys,
		store:  store,
		logger: log.WithComponent("identity"),
	}
}

// IdentityKeys returns the configured identity fields
func (r *Resolver) IdentityKeys() []string {
	return append([]string(nil), r.keys...)
}

// IsIdentity reports whether field is an identity field. Matching ignores case.
func (r *Resolver) IsIdentity(field string) bool {
	for _, k := range r.keys {
		if strings.EqualFold(k, field) {
			return true
		}
	}
	return false
}

// Associate caches identity to device associations for every identity field in
// patch and returns the fields it found, in patch order.
func (r *Resolver) Associate(patch *types.Payload, deviceID string) []string {
	var found []string
	patch.Range(func(field string, value any) bool {
		if !r.IsIdentity(field) {
			return true
		}
		s, ok := value.(string)
		if !ok || s == "" {
			return true
		}
		found = append(found, field)
		if r.store == nil {
			return true
		}
		if err := r.store.PutIdentity(field, s, deviceID); err != nil {
			r.logger.Warn().Err(err).Str("field", field).Msg("Failed to cache identity")
		}
		return true
	})
	return found
}

// DeviceFor returns the device last associated with an identity value
func (r *Resolver) DeviceFor(field, value string) (string, bool, error) {
	if r.store == nil {
		return "", false, nil
	}
	id, err := r.store.GetIdentity(field, value)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up identity: %w", err)
	}
	return id, true, nil
}
