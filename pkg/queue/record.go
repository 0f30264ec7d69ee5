package queue

import (
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/cuemby/beacon/pkg/worker"
)

// RecordEvent queues a raised event. Invalid names resolve to a dropped
// outcome; every validation problem is attached to the next enriched event.
func (c *Coordinator) RecordEvent(name string, props *types.Payload) *worker.Handle {
	cleaned, errs := c.validator.CleanEventName(name)
	c.pushErrors(errs)
	if cleaned == "" {
		c.logger.Debug().Str("name", name).Msg("Event name rejected")
		return worker.Resolved(c.outcome(types.Outcome{State: types.OutcomeDropped}), nil)
	}

	data, errs := c.validator.CleanProperties(props)
	c.pushErrors(errs)
	return c.QueueEvent(types.NewEvent(types.KindRaised, cleaned, data))
}

// RecordAppLaunched queues the launch event once per session
func (c *Coordinator) RecordAppLaunched() *worker.Handle {
	c.session.LazyCreateSession()
	if c.session.AppLaunchRecorded() {
		return worker.Resolved(types.Outcome{State: types.OutcomeDropped}, nil)
	}
	return c.QueueEvent(types.NewEvent(types.KindRaised, types.EventAppLaunched, nil))
}

// RecordScreen makes name the current screen and queues a page event
func (c *Coordinator) RecordScreen(name string) *worker.Handle {
	if name == "" {
		return worker.Resolved(types.Outcome{State: types.OutcomeDropped}, nil)
	}
	c.session.LazyCreateSession()
	c.session.SetScreenName(name)
	return c.QueueEvent(types.NewEvent(types.KindPage, "", nil))
}

// RecordPing queues a ping carrying device metadata
func (c *Coordinator) RecordPing() *worker.Handle {
	return c.QueueEvent(types.NewEvent(types.KindPing, "", nil))
}

// PushProfile cleans patch, caches its identities and queues a profile event
func (c *Coordinator) PushProfile(patch *types.Payload) *worker.Handle {
	cleaned, errs := c.validator.CleanProperties(patch)
	c.pushErrors(errs)
	if cleaned.Len() == 0 {
		return worker.Resolved(types.Outcome{State: types.OutcomeDropped}, nil)
	}
	return c.queueProfile(cleaned)
}

// PushNotificationViewed records a viewed notification on the push-viewed lane
func (c *Coordinator) PushNotificationViewed(props *types.Payload) *worker.Handle {
	data, errs := c.validator.CleanProperties(props)
	c.pushErrors(errs)
	return c.ProcessPushViewedEvent(types.NewEvent(types.KindRaised, types.EventNotificationViewed, data))
}

// FetchVariables asks the collector for the latest variable values
func (c *Coordinator) FetchVariables() *worker.Handle {
	payload := types.NewPayload().Set("t", 4)
	return c.QueueEvent(types.NewEvent(types.KindFetch, types.EventFetch, payload))
}

// DefineVariables queues variable definitions on the variables group, which flushes at once
func (c *Coordinator) DefineVariables(vars *types.Payload) *worker.Handle {
	payload := types.NewPayload().
		Set("type", "varsPayload").
		Set("vars", vars)
	return c.QueueEvent(types.NewEvent(types.KindDefineVars, "", payload))
}

func (c *Coordinator) pushErrors(errs []types.ValidationError) {
	for _, err := range errs {
		c.errors.Push(err)
		metrics.ValidationErrors.Inc()
		c.logger.Debug().Int("code", err.Code).Str("description", err.Description).Msg("Validation error")
	}
}
