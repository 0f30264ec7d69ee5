package identity

import (
	"testing"

	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverAssociate(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	r := NewResolver(store, nil)
	assert.Equal(t, DefaultKeys, r.IdentityKeys())

	patch := types.NewPayload().
		Set("Name", "Ada").
		Set("email", "ada@example.com").
		Set("Identity", "u-1").
		Set("Phone", 12345)

	found := r.Associate(patch, "__gdevice")
	assert.Equal(t, []string{"email", "Identity"}, found)

	id, ok, err := r.DeviceFor("Identity", "u-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "__gdevice", id)

	_, ok, err = r.DeviceFor("Identity", "u-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverCustomKeys(t *testing.T) {
	r := NewResolver(nil, []string{"Phone"})

	tests := []struct {
		field    string
		expected bool
	}{
		{"Phone", true},
		{"phone", true},
		{"Identity", false},
		{"Email", false},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.IsIdentity(tt.field))
		})
	}

	found := r.Associate(types.NewPayload().Set("Phone", "555"), "d")
	assert.Equal(t, []string{"Phone"}, found)
}
