package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/beacon/pkg/config"
	"github.com/cuemby/beacon/pkg/device"
	"github.com/cuemby/beacon/pkg/events"
	"github.com/cuemby/beacon/pkg/health"
	"github.com/cuemby/beacon/pkg/identity"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/network"
	"github.com/cuemby/beacon/pkg/profile"
	"github.com/cuemby/beacon/pkg/queue"
	"github.com/cuemby/beacon/pkg/session"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/cuemby/beacon/pkg/validation"
	"github.com/cuemby/beacon/pkg/worker"
)

// collector is one fully wired pipeline over the local store
type collector struct {
	store   *storage.BoltStore
	device  *device.Static
	session *session.Context
	profile *profile.Cache
	history *profile.History
	broker  *events.Broker
	coord   *queue.Coordinator
	syncer  *network.Syncer
	metrics *metrics.Collector
}

func openCollector(cfg *config.Config) (*collector, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	metrics.RegisterComponent(metrics.ComponentStore, true, "")

	c := &collector{store: store}
	if err := c.wire(cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *collector) wire(cfg *config.Config) error {
	var err error
	c.device, err = device.Load(c.store, device.Facts{
		Carrier:     cfg.Device.Carrier,
		CountryCode: cfg.Device.CountryCode,
		Timezone:    cfg.Device.Timezone,
		PackageName: cfg.Device.PackageName,
		NetworkType: cfg.Device.NetworkType,
	})
	if err != nil {
		return err
	}

	c.session = session.New(c.store, session.WithTimeout(cfg.SessionTimeout))
	if c.profile, err = profile.NewCache(c.store); err != nil {
		return err
	}
	c.history = profile.NewHistory(c.store)

	c.broker = events.NewBroker()
	c.broker.Start()

	state := &queue.State{}
	state.SetOptedOut(cfg.OptOut)
	state.SetSystemEventsEnabled(cfg.SystemEventsEnabled)
	state.SetOffline(cfg.Offline)

	deps := queue.Deps{
		Store:     c.store,
		Session:   c.session,
		Profile:   c.profile,
		History:   c.history,
		Identity:  identity.NewResolver(c.store, cfg.IdentityKeys),
		Device:    c.device,
		Validator: validation.NewValidator(cfg.DiscardedEvents),
		Broker:    c.broker,
		State:     state,
	}

	if cfg.Endpoint != "" {
		c.syncer, err = network.NewSyncer(network.Config{
			Endpoint:  cfg.Endpoint,
			AccountID: cfg.AccountID,
			Token:     cfg.Token,
			DeviceID:  c.device.DeviceID(),
			BatchSize: cfg.Flush.BatchSize,
			BaseDelay: cfg.Flush.Delay,
			MaxDelay:  cfg.Flush.MaxDelay,
		}, c.store, c.broker, state)
		if err != nil {
			return err
		}
		deps.Syncer = c.syncer
		metrics.RegisterComponent(metrics.ComponentNetwork, true, "")

		if cfg.ConnectivityTCP {
			checker, err := health.NewTCPCheckerForURL(cfg.Endpoint)
			if err != nil {
				return err
			}
			hc := health.DefaultConfig()
			hc.Timeout = cfg.ConnectTimeout
			deps.Connectivity = health.NewMonitor(checker.WithTimeout(cfg.ConnectTimeout), hc)
		}
	}

	c.coord, err = queue.New(queue.Config{
		DeferDelay:           cfg.DeferDelay,
		CreatedPostAppLaunch: cfg.CreatedPostAppLaunch,
		Workers:              cfg.Workers,
		FlushDelay:           cfg.Flush.Delay,
	}, deps)
	if err != nil {
		return err
	}
	c.coord.Start()

	c.metrics = metrics.NewCollector(c.store, 15*time.Second)
	c.metrics.Start()
	return nil
}

// Close stops the pipeline and ends the session. Events not yet uploaded stay in the store.
func (c *collector) Close() error {
	var errs []error
	if c.metrics != nil {
		c.metrics.Stop()
	}
	if c.coord != nil {
		errs = append(errs, c.coord.Stop())
	}
	if c.session != nil {
		c.session.DestroySession()
	}
	if c.broker != nil {
		c.broker.Stop()
	}
	errs = append(errs, c.store.Close())
	return errors.Join(errs...)
}

// flushAll uploads every group now and returns the first failure
func (c *collector) flushAll(ctx context.Context) (int, error) {
	if c.syncer == nil {
		return 0, fmt.Errorf("no endpoint configured")
	}
	sent := 0
	for _, group := range types.AllGroups {
		result := c.coord.FlushSync(ctx, group)
		sent += result.Sent
		if result.Err != nil {
			return sent, fmt.Errorf("failed to flush %s: %w", group, result.Err)
		}
	}
	return sent, nil
}

// await waits for a queued operation to resolve
func await(ctx context.Context, h *worker.Handle) (types.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return h.Wait(ctx)
}
