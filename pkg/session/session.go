package session

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/rs/zerolog"
)

// DefaultTimeout ends a session after this much inactivity
const DefaultTimeout = 20 * time.Minute

// Meta keys
const (
	metaLastSessionID  = "lastSessionId"
	metaLastSessionEnd = "sexe"
)

// Context tracks the current session. It is safe for concurrent use.
type Context struct {
	mu sync.RWMutex

	store   storage.MetaStore
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	sessionID         int64
	firstSession      bool
	lastSessionLength time.Duration
	lastActivity      time.Time
	screenName        string
	activityCount     int
	appLaunchRecorded bool
	persistedEnd      int64
}

// Option configures a Context
type Option func(*Context)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// WithTimeout overrides the inactivity timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Context) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// New creates a session context. store may be nil, in which case nothing is
// remembered across processes and every first session is a first session.
func New(store storage.MetaStore, opts ...Option) *Context {
	c := &Context{
		store:   store,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  log.WithComponent("session"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentSessionID returns the active session id, or 0 when none exists
func (c *Context) CurrentSessionID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// LazyCreateSession starts a session when none is active or the current one
// has been idle longer than the timeout. It reports whether a session was created.
func (c *Context) LazyCreateSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.sessionID != 0 && now.Sub(c.lastActivity) <= c.timeout {
		c.lastActivity = now
		c.persistEnd()
		return false
	}
	if c.sessionID != 0 {
		c.logger.Debug().Int64("session_id", c.sessionID).Msg("Session expired")
		c.persistEnd()
	}
	c.create(now)
	return true
}

func (c *Context) create(now time.Time) {
	id := now.Unix()

	prevID, hasPrev := c.readMeta(metaLastSessionID)
	prevEnd, hasEnd := c.readMeta(metaLastSessionEnd)
	if hasPrev && id <= prevID {
		id = prevID + 1
	}

	c.sessionID = id
	c.firstSession = !hasPrev
	c.lastSessionLength = 0
	if hasPrev && hasEnd && prevEnd > prevID {
		c.lastSessionLength = time.Duration(prevEnd-prevID) * time.Second
	}
	c.lastActivity = now
	c.screenName = ""
	c.activityCount = 0
	c.appLaunchRecorded = false

	c.writeMeta(metaLastSessionID, id)
	c.logger.Debug().
		Int64("session_id", id).
		Bool("first_session", c.firstSession).
		Dur("last_session_length", c.lastSessionLength).
		Msg("Session created")
}

// DestroySession ends the current session and records its end for the next
// process. The next LazyCreateSession starts a new one.
func (c *Context) DestroySession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == 0 {
		return
	}
	c.persistEnd()
	c.logger.Debug().Int64("session_id", c.sessionID).Msg("Session ended")
	c.sessionID = 0
	c.appLaunchRecorded = false
}

// persistEnd stores the last activity as the session end. Every activity
// writes it so a process that exits without DestroySession still leaves it.
func (c *Context) persistEnd() {
	end := c.lastActivity.Unix()
	if end == c.persistedEnd {
		return
	}
	c.writeMeta(metaLastSessionEnd, end)
	c.persistedEnd = end
}

// Snapshot is the session state stamped onto one event
type Snapshot struct {
	ID                int64
	PageCount         int
	ScreenName        string
	FirstSession      bool
	LastSessionLength time.Duration
}

// Snapshot reads the session state in one critical section, so the page
// count always belongs to the returned session id.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		ID:                c.sessionID,
		PageCount:         c.activityCount,
		ScreenName:        c.screenName,
		FirstSession:      c.firstSession,
		LastSessionLength: c.lastSessionLength,
	}
}

// IsFirstSession reports whether this is the first session ever seen on this device
func (c *Context) IsFirstSession() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firstSession
}

// LastSessionLength returns how long the previous session lasted
func (c *Context) LastSessionLength() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSessionLength
}

// ScreenName returns the current screen, if any
func (c *Context) ScreenName() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.screenName, c.screenName != ""
}

// SetScreenName records a screen change and bumps the activity counter
func (c *Context) SetScreenName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenName = name
	c.activityCount++
}

// ActivityCount returns the number of screens seen in this session
func (c *Context) ActivityCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activityCount
}

// AppLaunchRecorded reports whether the launch event was persisted in this session
func (c *Context) AppLaunchRecorded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appLaunchRecorded
}

// SetAppLaunchRecorded marks the launch event as persisted
func (c *Context) SetAppLaunchRecorded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appLaunchRecorded = true
}

func (c *Context) readMeta(key string) (int64, bool) {
	if c.store == nil {
		return 0, false
	}
	data, err := c.store.GetMeta(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to read session meta")
		}
		return 0, false
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *Context) writeMeta(key string, value int64) {
	if c.store == nil {
		return
	}
	if err := c.store.PutMeta(key, []byte(strconv.FormatInt(value, 10))); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to write session meta")
	}
}
