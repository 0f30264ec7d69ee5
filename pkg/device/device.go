package device

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/cuemby/beacon/pkg/storage"
	"github.com/google/uuid"
)

// idPrefix marks ids generated locally rather than assigned by the collector
const idPrefix = "__g"

const metaDeviceID = "deviceId"

// Info describes the host the collector runs on
type Info interface {
	DeviceID() string
	Carrier() string
	CountryCode() string
	Timezone() string
	PackageName() string
	NetworkType() string
	MemoryMB() uint64
}

// Facts are the static device attributes supplied by the host application
type Facts struct {
	Carrier     string
	CountryCode string
	Timezone    string
	PackageName string
	NetworkType string
}

// Static is an Info whose facts never change for the lifetime of the process
type Static struct {
	id    string
	facts Facts
}

// NewID generates a local device id
func NewID() string {
	return idPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsGenerated reports whether id was produced by NewID
func IsGenerated(id string) bool {
	return strings.HasPrefix(id, idPrefix)
}

// Load returns the device id stored in meta, generating and saving one on first use
func Load(meta storage.MetaStore, facts Facts) (*Static, error) {
	data, err := meta.GetMeta(metaDeviceID)
	switch {
	case err == nil:
		return &Static{id: string(data), facts: facts}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to read device id: %w", err)
	}

	id := NewID()
	if err := meta.PutMeta(metaDeviceID, []byte(id)); err != nil {
		return nil, fmt.Errorf("failed to save device id: %w", err)
	}
	return &Static{id: id, facts: facts}, nil
}

// NewStatic creates an Info with a fixed id
func NewStatic(id string, facts Facts) *Static {
	if id == "" {
		id = NewID()
	}
	return &Static{id: id, facts: facts}
}

func (s *Static) DeviceID() string    { return s.id }
func (s *Static) Carrier() string     { return s.facts.Carrier }
func (s *Static) CountryCode() string { return s.facts.CountryCode }
func (s *Static) Timezone() string    { return s.facts.Timezone }
func (s *Static) PackageName() string { return s.facts.PackageName }

// NetworkType defaults to "unknown" when the host did not say
func (s *Static) NetworkType() string {
	if s.facts.NetworkType == "" {
		return "unknown"
	}
	return s.facts.NetworkType
}

// MemoryMB reports memory obtained from the OS by the Go runtime
func (s *Static) MemoryMB() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys / (1024 * 1024)
}
