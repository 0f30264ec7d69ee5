package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/beacon/pkg/classifier"
	"github.com/cuemby/beacon/pkg/device"
	"github.com/cuemby/beacon/pkg/events"
	"github.com/cuemby/beacon/pkg/identity"
	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/profile"
	"github.com/cuemby/beacon/pkg/scheduler"
	"github.com/cuemby/beacon/pkg/session"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/cuemby/beacon/pkg/validation"
	"github.com/cuemby/beacon/pkg/worker"
	"github.com/rs/zerolog"
)

// DefaultDeferDelay is how long an event waits for the launch event before it is resubmitted
const DefaultDeferDelay = 2 * time.Second

// ErrNoConnectivity is the flush error when the collector cannot be reached
var ErrNoConnectivity = errors.New("no connectivity")

// Syncer uploads queued events
type Syncer interface {
	NeedsHandshake(group types.EventGroup) bool
	Handshake(ctx context.Context, group types.EventGroup) error
	FlushFromStore(ctx context.Context, group types.EventGroup) types.FlushResult
	RecommendedDelay() time.Duration
}

// Connectivity reports whether the collector is reachable
type Connectivity interface {
	Connected(ctx context.Context) bool
}

// Config holds coordinator settings
type Config struct {
	DeferDelay           time.Duration
	CreatedPostAppLaunch bool
	Workers              int

	// FlushDelay is the debounce window used when no syncer is configured
	FlushDelay time.Duration
}

// Deps are the collaborators of the coordinator. Syncer and Connectivity may
// be nil: without a syncer events are queued but never uploaded.
type Deps struct {
	Store        storage.EventStore
	Session      *session.Context
	Profile      *profile.Cache
	History      *profile.History
	Identity     *identity.Resolver
	Device       device.Info
	Validator    *validation.Validator
	Errors       *validation.Stack
	Broker       *events.Broker
	Syncer       Syncer
	Connectivity Connectivity
	State        *State
}

// Coordinator drives every event from classification to a scheduled flush.
//
// Classification, enrichment and persistence run on the worker pool so
// QueueEvent never blocks. Stamping runs under the event lock, which makes
// session id, page count and epoch linearizable across callers; the lock is
// released before the store is touched.
type Coordinator struct {
	cfg Config

	store        storage.EventStore
	session      *session.Context
	profile      *profile.Cache
	history      *profile.History
	identity     *identity.Resolver
	device       device.Info
	validator    *validation.Validator
	errors       *validation.Stack
	broker       *events.Broker
	ownsBroker   bool
	syncer       Syncer
	connectivity Connectivity
	state        *State

	pool      *worker.Pool
	scheduler *scheduler.Scheduler

	eventLock sync.Mutex

	initMu        sync.Mutex
	initialPushed int64
	stopped       atomic.Bool
	results       events.Subscriber
	resultsDone   chan struct{}
	now           func() time.Time
	logger        zerolog.Logger
}

// New creates a coordinator. Store and Session are required.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session context is required")
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = DefaultDeferDelay
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = time.Second
	}

	c := &Coordinator{
		cfg:          cfg,
		store:        deps.Store,
		session:      deps.Session,
		profile:      deps.Profile,
		history:      deps.History,
		identity:     deps.Identity,
		device:       deps.Device,
		validator:    deps.Validator,
		errors:       deps.Errors,
		broker:       deps.Broker,
		syncer:       deps.Syncer,
		connectivity: deps.Connectivity,
		state:        deps.State,
		pool:         worker.NewPool(cfg.Workers),
		now:          time.Now,
		logger:       log.WithComponent("queue"),
	}

	if c.profile == nil {
		cache, err := profile.NewCache(nil)
		if err != nil {
			return nil, err
		}
		c.profile = cache
	}
	if c.identity == nil {
		c.identity = identity.NewResolver(nil, nil)
	}
	if c.device == nil {
		c.device = device.NewStatic("", device.Facts{})
	}
	if c.validator == nil {
		c.validator = validation.NewValidator(nil)
	}
	if c.errors == nil {
		c.errors = validation.NewStack()
	}
	if c.state == nil {
		c.state = &State{}
	}
	if c.broker == nil {
		c.broker = events.NewBroker()
		c.ownsBroker = true
	}

	c.scheduler = scheduler.NewScheduler(c, func(group types.EventGroup) {
		c.FlushAsync(group)
	})
	return c, nil
}

// Start launches the worker pool, the flush scheduler and the failure listener
func (c *Coordinator) Start() {
	if c.ownsBroker {
		c.broker.Start()
	}
	c.pool.Start()
	c.scheduler.Start()

	c.results = c.broker.Subscribe(events.EventFlushFailed)
	c.resultsDone = make(chan struct{})
	go c.watchResults()

	metrics.UpdateComponent(metrics.ComponentQueue, true, "")
	c.logger.Info().Int("workers", c.cfg.Workers).Msg("Queue coordinator started")
}

// Stop drops pending flushes, drains queued work and stops listening for results
func (c *Coordinator) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	c.scheduler.Stop()
	err := c.pool.Stop()

	if c.results != nil {
		c.broker.Unsubscribe(c.results)
		<-c.resultsDone
	}
	if c.ownsBroker {
		c.broker.Stop()
	}
	metrics.UpdateComponent(metrics.ComponentQueue, false, "stopped")
	c.logger.Info().Msg("Queue coordinator stopped")
	return err
}

// State returns the runtime switches
func (c *Coordinator) State() *State {
	return c.state
}

// Broker returns the notification broker
func (c *Coordinator) Broker() *events.Broker {
	return c.broker
}

// RecommendedDelay is the regular flush window. It defers to the syncer when there is one.
func (c *Coordinator) RecommendedDelay() time.Duration {
	if c.syncer != nil {
		return c.syncer.RecommendedDelay()
	}
	return c.cfg.FlushDelay
}

// SetOffline switches the offline mode. Going back online schedules a flush.
func (c *Coordinator) SetOffline(offline bool) {
	if !c.state.SetOffline(offline) {
		return
	}
	c.logger.Info().Bool("offline", offline).Msg("Offline mode changed")
	if !offline {
		c.scheduler.ScheduleRegular()
	}
}

// QueueEvent classifies event on the worker pool and returns immediately
func (c *Coordinator) QueueEvent(event *types.Event) *worker.Handle {
	return c.pool.Submit(func(ctx context.Context) (types.Outcome, error) {
		return c.classify(ctx, event)
	})
}

func (c *Coordinator) classify(ctx context.Context, event *types.Event) (types.Outcome, error) {
	if classifier.ShouldDrop(event, c.state.Muted(), c.state.OptedOut(), c.state.SystemEventsEnabled()) {
		c.logger.Debug().
			Str("kind", string(event.Kind)).
			Str("name", event.Name).
			Bool("muted", c.state.Muted()).
			Bool("opted_out", c.state.OptedOut()).
			Msg("Event dropped")
		c.notify(events.EventDropped, "", event)
		return c.outcome(types.Outcome{State: types.OutcomeDropped}), nil
	}

	if classifier.ShouldDefer(event, c.session, c.cfg.CreatedPostAppLaunch) {
		c.logger.Debug().
			Str("name", event.Name).
			Dur("delay", c.cfg.DeferDelay).
			Msg("Event deferred until the launch event is recorded")
		time.AfterFunc(c.cfg.DeferDelay, func() { c.resubmit(event) })
		c.notify(events.EventDeferred, "", event)
		return c.outcome(types.Outcome{State: types.OutcomeDeferred}), nil
	}

	if event.Kind != types.KindFetch {
		c.ensureSession(ctx)
	}
	return c.ProcessEvent(event)
}

// resubmit re-enters the pipeline with a deferred event. There is no retry
// cap: the event keeps deferring until the launch event is recorded.
func (c *Coordinator) resubmit(event *types.Event) {
	if c.stopped.Load() {
		c.logger.Warn().Str("name", event.Name).Msg("Deferred event discarded after stop")
		return
	}
	c.pool.Submit(func(ctx context.Context) (types.Outcome, error) {
		c.ensureSession(ctx)
		return c.classify(ctx, event)
	})
}

// ensureSession creates a session when needed and pushes the per-session
// initial events exactly once per session id
func (c *Coordinator) ensureSession(ctx context.Context) {
	c.session.LazyCreateSession()
	id := c.session.CurrentSessionID()

	c.initMu.Lock()
	first := c.initialPushed != id
	c.initialPushed = id
	c.initMu.Unlock()

	if first {
		c.pushInitialEvents(ctx)
	}
}

// pushInitialEvents runs inline on the current worker, ahead of the event
// that opened the session
func (c *Coordinator) pushInitialEvents(ctx context.Context) {
	patch := c.deviceFacts()
	if patch.Len() == 0 {
		return
	}
	if _, err := c.classify(ctx, types.NewEvent(types.KindProfile, "", patch)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to push initial profile")
	}
}

// ProcessEvent stamps event, persists it and schedules a flush. It runs on
// the caller's goroutine; QueueEvent is the asynchronous entry point.
func (c *Coordinator) ProcessEvent(event *types.Event) (types.Outcome, error) {
	c.eventLock.Lock()
	en := c.stamp(event)
	var changes map[string]types.AttributeChange
	if event.Kind == types.KindProfile {
		changes = c.diffProfile(event)
	}
	err := event.Enrich(en)
	c.eventLock.Unlock()

	if err != nil {
		return c.fail(event, fmt.Errorf("failed to enrich event: %w", err))
	}

	group := types.GroupRegular
	if event.Kind == types.KindDefineVars {
		group = types.GroupVariables
	}

	if err := c.store.Append(event, group); err != nil {
		return c.fail(event, fmt.Errorf("failed to persist event: %w", err))
	}
	metrics.EventsPersisted.WithLabelValues(string(group)).Inc()

	if event.Kind == types.KindRaised && c.history != nil {
		if _, err := c.history.Record(event.Name, en.EpochSeconds); err != nil {
			c.logger.Warn().Err(err).Str("name", event.Name).Msg("Failed to record event history")
		}
	}
	if event.Name == types.EventAppLaunched {
		c.session.SetAppLaunchRecorded()
	}

	logger := log.WithGroup(c.logger, string(group))
	logger.Debug().
		Str("kind", string(event.Kind)).
		Str("name", event.Name).
		Int64("session_id", en.SessionID).
		Int("page_count", en.PageCount).
		Msg("Event persisted")
	c.notify(events.EventPersisted, group, event)

	if group == types.GroupVariables {
		c.scheduler.ScheduleVariables()
	} else {
		c.scheduler.ScheduleRegular()
	}

	return c.outcome(types.Outcome{State: types.OutcomePersisted, Group: group, Changes: changes}), nil
}

// stamp builds the enrichment of a regular event. Caller holds the event lock.
func (c *Coordinator) stamp(event *types.Event) types.Enrichment {
	snap := c.session.Snapshot()
	en := types.Enrichment{
		SessionID:                snap.ID,
		PageCount:                snap.PageCount,
		ScreenName:               snap.ScreenName,
		Type:                     event.Kind.WireType(),
		EpochSeconds:             c.now().Unix(),
		FirstSession:             snap.FirstSession,
		LastSessionLengthSeconds: int64(snap.LastSessionLength / time.Second),
	}

	if event.Kind == types.KindPing {
		extras := types.NewPayload().
			Set("mem", c.device.MemoryMB()).
			Set("nt", c.device.NetworkType())
		if c.state.takeGeofence() {
			extras.Set("gf", true).Set("gfSDKVersion", 1)
		}
		en.Extras = extras
	}
	if event.Name == types.EventAppLaunched {
		en.PackageName = c.device.PackageName()
	}
	if verr, ok := c.errors.Pop(); ok {
		en.Error = &verr
	}
	return en
}

// diffProfile applies a profile patch to the local cache. Caller holds the event lock.
func (c *Coordinator) diffProfile(event *types.Event) map[string]types.AttributeChange {
	changes, err := classifier.ComputeAttributeChanges(event.Payload, c.profile)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Some profile fields could not be applied")
	}
	metrics.ProfileChanges.Add(float64(len(changes)))
	return changes
}

// ProcessPushViewedEvent stamps and persists a notification-viewed event on
// the push-viewed lane, which flushes without delay
func (c *Coordinator) ProcessPushViewedEvent(event *types.Event) *worker.Handle {
	return c.pool.Submit(func(ctx context.Context) (types.Outcome, error) {
		if classifier.ShouldDrop(event, c.state.Muted(), c.state.OptedOut(), c.state.SystemEventsEnabled()) {
			c.notify(events.EventDropped, types.GroupPushViewed, event)
			return c.outcome(types.Outcome{State: types.OutcomeDropped}), nil
		}

		c.eventLock.Lock()
		en := types.Enrichment{
			SessionID:    c.session.CurrentSessionID(),
			Type:         types.KindRaised.WireType(),
			EpochSeconds: c.now().Unix(),
			Lightweight:  true,
		}
		if verr, ok := c.errors.Pop(); ok {
			en.Error = &verr
		}
		err := event.Enrich(en)
		c.eventLock.Unlock()
		if err != nil {
			return c.fail(event, fmt.Errorf("failed to enrich event: %w", err))
		}

		if err := c.store.Append(event, types.GroupPushViewed); err != nil {
			return c.fail(event, fmt.Errorf("failed to persist event: %w", err))
		}
		metrics.EventsPersisted.WithLabelValues(string(types.GroupPushViewed)).Inc()
		c.notify(events.EventPersisted, types.GroupPushViewed, event)

		c.scheduler.SchedulePushViewed()
		return c.outcome(types.Outcome{State: types.OutcomePersisted, Group: types.GroupPushViewed}), nil
	})
}

// FlushSync uploads group now. Offline, disabled and muted clients skip the
// flush without touching the store.
func (c *Coordinator) FlushSync(ctx context.Context, group types.EventGroup) types.FlushResult {
	logger := log.WithGroup(c.logger, string(group))

	if c.state.Offline() || c.state.Disabled() || c.state.Muted() {
		logger.Debug().
			Bool("offline", c.state.Offline()).
			Bool("disabled", c.state.Disabled()).
			Bool("muted", c.state.Muted()).
			Msg("Flush skipped")
		return types.FlushResult{Group: group}
	}
	if c.syncer == nil {
		logger.Debug().Msg("Flush skipped, no collector configured")
		return types.FlushResult{Group: group}
	}

	if c.connectivity != nil && !c.connectivity.Connected(ctx) {
		result := types.FlushResult{Group: group, Err: ErrNoConnectivity, RetryDelay: c.syncer.RecommendedDelay()}
		logger.Warn().Dur("retry_in", result.RetryDelay).Msg("Collector unreachable")
		metrics.FlushTotal.WithLabelValues(string(group), "offline").Inc()
		c.broker.Publish(events.FlushEvent(result))
		return result
	}

	if c.syncer.NeedsHandshake(group) {
		if err := c.syncer.Handshake(ctx, group); err != nil {
			return types.FlushResult{Group: group, Err: err, RetryDelay: c.syncer.RecommendedDelay()}
		}
	}
	return c.syncer.FlushFromStore(ctx, group)
}

// FlushAsync runs FlushSync on the worker pool
func (c *Coordinator) FlushAsync(group types.EventGroup) *worker.Handle {
	return c.pool.Submit(func(ctx context.Context) (types.Outcome, error) {
		result := c.FlushSync(ctx, group)
		if result.Err != nil {
			return types.Outcome{State: types.OutcomeFailed, Group: group, Sent: result.Sent}, result.Err
		}
		state := types.OutcomeSent
		if result.Sent == 0 {
			state = types.OutcomeSkipped
		}
		return types.Outcome{State: state, Group: group, Sent: result.Sent}, nil
	})
}

// watchResults reschedules a flush whenever an upload fails, using the
// delay chosen by the syncer
func (c *Coordinator) watchResults() {
	defer close(c.resultsDone)
	for ev := range c.results {
		if ev.Result == nil || ev.Result.Succeeded() {
			continue
		}
		c.logger.Debug().
			Str("group", string(ev.Result.Group)).
			Dur("retry_in", ev.Result.RetryDelay).
			Msg("Rescheduling failed flush")
		c.scheduler.ScheduleRetry(ev.Result.Group, ev.Result.RetryDelay)
	}
}

// PushBasicProfile queues a profile event built from patch plus the device
// facts, and caches the identities it carries
func (c *Coordinator) PushBasicProfile(patch *types.Payload) *worker.Handle {
	out := c.deviceFacts()
	patch.Range(func(key string, value any) bool {
		out.Set(key, value)
		return true
	})
	return c.queueProfile(out)
}

func (c *Coordinator) queueProfile(patch *types.Payload) *worker.Handle {
	if ids := c.identity.Associate(patch, c.device.DeviceID()); len(ids) > 0 {
		c.logger.Debug().Strs("identity_fields", ids).Msg("Identities cached")
	}
	return c.QueueEvent(types.NewEvent(types.KindProfile, "", patch))
}

// deviceFacts returns the non-empty carrier, country and timezone facts
func (c *Coordinator) deviceFacts() *types.Payload {
	p := types.NewPayload()
	if v := c.device.Carrier(); v != "" {
		p.Set("Carrier", v)
	}
	if v := c.device.CountryCode(); v != "" {
		p.Set("cc", v)
	}
	if v := c.device.Timezone(); v != "" {
		p.Set("tz", v)
	}
	return p
}

// fail logs a lost event. It is not retried.
func (c *Coordinator) fail(event *types.Event, err error) (types.Outcome, error) {
	c.logger.Error().
		Err(err).
		Str("kind", string(event.Kind)).
		Str("name", event.Name).
		Msg("Event lost")
	c.notify(events.EventFailed, "", event)
	return c.outcome(types.Outcome{State: types.OutcomeFailed}), err
}

func (c *Coordinator) outcome(o types.Outcome) types.Outcome {
	metrics.EventsTotal.WithLabelValues(string(o.State)).Inc()
	return o
}

func (c *Coordinator) notify(typ events.EventType, group types.EventGroup, event *types.Event) {
	msg := string(event.Kind)
	if event.Name != "" {
		msg += " " + event.Name
	}
	c.broker.Publish(&events.Event{Type: typ, Group: group, Message: msg})
}
