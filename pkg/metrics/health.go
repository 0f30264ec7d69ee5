package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Overall and readiness states reported by the health endpoints.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// Components of the collector that report their state.
const (
	ComponentStore   = "store"
	ComponentNetwork = "network"
	ComponentQueue   = "queue"
)

// HealthStatus is the JSON body served by /health and /ready.
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

// componentState is the last report of one component.
type componentState struct {
	healthy bool
	message string
	updated time.Time
}

// registry holds component reports for the process. The queue can keep
// accepting events without the network, so only store and queue gate
// readiness.
type registry struct {
	mu       sync.RWMutex
	states   map[string]componentState
	critical []string
	started  time.Time
	version  string
}

func newRegistry() *registry {
	return &registry{
		states:   make(map[string]componentState),
		critical: []string{ComponentStore, ComponentQueue},
		started:  time.Now(),
	}
}

var components = newRegistry()

func (r *registry) set(name string, healthy bool, message string) {
	r.mu.Lock()
	r.states[name] = componentState{healthy: healthy, message: message, updated: time.Now()}
	r.mu.Unlock()
}

func (r *registry) isCritical(name string) bool {
	for _, c := range r.critical {
		if c == name {
			return true
		}
	}
	return false
}

// status stamps the shared fields; callers hold the read lock.
func (r *registry) status(state string, byName map[string]string, message string) HealthStatus {
	return HealthStatus{
		Status:     state,
		Timestamp:  time.Now(),
		Components: byName,
		Message:    message,
		Version:    r.version,
		Uptime:     time.Since(r.started).String(),
		StartTime:  r.started,
	}
}

func (r *registry) health() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	overall := StatusHealthy
	byName := make(map[string]string, len(r.states))
	for name, s := range r.states {
		if s.healthy {
			byName[name] = StatusHealthy
			continue
		}
		byName[name] = StatusUnhealthy + ": " + s.message
		switch {
		case r.isCritical(name):
			overall = StatusUnhealthy
		case overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return r.status(overall, byName, "")
}

func (r *registry) readiness() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, message := StatusReady, ""
	byName := make(map[string]string, len(r.critical))
	for _, name := range r.critical {
		s, ok := r.states[name]
		switch {
		case !ok:
			state, message = StatusNotReady, "waiting for "+name+" to start"
			byName[name] = "not registered"
		case !s.healthy:
			state, message = StatusNotReady, "waiting for "+name
			byName[name] = "not ready: " + s.message
		default:
			byName[name] = StatusReady
		}
	}
	return r.status(state, byName, message)
}

// SetVersion sets the version reported by the health endpoints.
func SetVersion(version string) {
	components.mu.Lock()
	components.version = version
	components.mu.Unlock()
}

// RegisterComponent records the current state of a component.
func RegisterComponent(name string, healthy bool, message string) {
	components.set(name, healthy, message)
}

// UpdateComponent is RegisterComponent for components already known.
func UpdateComponent(name string, healthy bool, message string) {
	components.set(name, healthy, message)
}

// GetHealth reports the collector as unhealthy when the store or queue
// fails, and degraded when only the network does.
func GetHealth() HealthStatus { return components.health() }

// GetReadiness reports whether the store and queue are up.
func GetReadiness() HealthStatus { return components.readiness() }

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler serves GetHealth. Only unhealthy maps to 503.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := GetHealth()
		code := http.StatusOK
		if h.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h)
	}
}

// ReadyHandler serves GetReadiness.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := GetReadiness()
		code := http.StatusOK
		if h.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h)
	}
}

// LivenessHandler answers 200 while the process runs.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components.mu.RLock()
		uptime := time.Since(components.started).String()
		components.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive", "uptime": uptime})
	}
}
