package services

import (
	"time"

	"github.com/soaringjerry/whenwhy/internal/models"
)

const (
	JITPollInterval         = 5 * time.Second
	JITInactivityThreshold  = 60 * time.Second
	AlwaysOnRefreshInterval = 20 * time.Second
	AlwaysOnStartDelay      = 2 * time.Second
	AlwaysOnSubmitDelay     = 1 * time.Second
)

// AssistancePolicy decides when a task fetches and how it shows suggestions.
// The set of implementations is closed: just-in-time, always-on and
// unassisted (transfer tasks).
type AssistancePolicy interface {
	Timing() models.Timing
	// Modal suggestions block the task until answered or closed.
	Modal() bool
	// OnDemand reports whether the participant may ask for help.
	OnDemand() bool

	start(c *TaskController, now time.Time)
	tick(c *TaskController, now time.Time) func()
	ideaAccepted(c *TaskController, now time.Time)
}

// PolicyFor selects the policy once per task.
func PolicyFor(kind TaskKind, timing models.Timing) AssistancePolicy {
	if kind == TaskTransfer {
		return unassistedPolicy{}
	}
	if timing == models.TimingAlwaysOn {
		return alwaysOnPolicy{}
	}
	return justInTimePolicy{}
}

// advanceDeadline reports whether next is due at now and moves it past now
// on the given period.
func advanceDeadline(next *time.Time, now time.Time, period time.Duration) bool {
	if now.Before(*next) {
		return false
	}
	for !now.Before(*next) {
		*next = next.Add(period)
	}
	return true
}

type justInTimePolicy struct{}

func (justInTimePolicy) Timing() models.Timing { return models.TimingJIT }
func (justInTimePolicy) Modal() bool { return true }
func (justInTimePolicy) OnDemand() bool { return true }

func (justInTimePolicy) start(c *TaskController, now time.Time) {
	c.nextPoll = now.Add(JITPollInterval)
}

func (justInTimePolicy) tick(c *TaskController, now time.Time) func() {
	if !advanceDeadline(&c.nextPoll, now, JITPollInterval) {
		return nil
	}
	if len(c.ideas) == 0 || c.panelOpen || c.loading || c.pending != nil {
		return nil
	}
	if now.Sub(c.lastActivity) < JITInactivityThreshold {
		return nil
	}
	c.recordLocked(now, models.ActionHelpRequest, map[string]any{"isAutoTrigger": true})
	return c.beginFetchLocked(true)
}

func (justInTimePolicy) ideaAccepted(*TaskController, time.Time) {}

type alwaysOnPolicy struct{}

func (alwaysOnPolicy) Timing() models.Timing { return models.TimingAlwaysOn }
func (alwaysOnPolicy) Modal() bool { return false }
func (alwaysOnPolicy) OnDemand() bool { return false }

func (alwaysOnPolicy) start(c *TaskController, now time.Time) {
	c.delayedRefresh = now.Add(AlwaysOnStartDelay)
	c.nextRefresh = now.Add(AlwaysOnRefreshInterval)
}

func (alwaysOnPolicy) tick(c *TaskController, now time.Time) func() {
	periodic := advanceDeadline(&c.nextRefresh, now, AlwaysOnRefreshInterval)
	delayed := !c.delayedRefresh.IsZero() && !now.Before(c.delayedRefresh)
	if c.loading {
		// A delayed refresh waits for the running fetch, a periodic one is skipped.
		return nil
	}
	if !periodic && !delayed {
		return nil
	}
	c.delayedRefresh = time.Time{}
	return c.beginFetchLocked(false)
}

func (alwaysOnPolicy) ideaAccepted(c *TaskController, now time.Time) {
	c.delayedRefresh = now.Add(AlwaysOnSubmitDelay)
}

type unassistedPolicy struct{}

func (unassistedPolicy) Timing() models.Timing { return "" }
func (unassistedPolicy) Modal() bool { return false }
func (unassistedPolicy) OnDemand() bool { return false }
func (unassistedPolicy) start(*TaskController, time.Time) {}
func (unassistedPolicy) tick(*TaskController, time.Time) func() { return nil }
func (unassistedPolicy) ideaAccepted(*TaskController, time.Time) {}
