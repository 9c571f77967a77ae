package daemon

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docspipe/internal/config"
	"git.home.luguber.info/inful/docspipe/internal/event"
)

type captureEnqueuer struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *captureEnqueuer) Enqueue(ev event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func TestSchedulerRejectsInvalidInterval(t *testing.T) {
	s, err := NewScheduler(&captureEnqueuer{})
	require.NoError(t, err)

	err = s.ScheduleRuns(&config.ScheduleTrigger{Every: "often"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule interval")
}

func TestSchedulerAcceptsValidInterval(t *testing.T) {
	s, err := NewScheduler(&captureEnqueuer{})
	require.NoError(t, err)
	require.NoError(t, s.ScheduleRuns(&config.ScheduleTrigger{Every: "24h"}))
}

func TestSchedulerFiresScheduleEvents(t *testing.T) {
	enq := &captureEnqueuer{}
	s, err := NewScheduler(enq)
	require.NoError(t, err)

	s.fireScheduledRun()
	s.fireScheduledRun()

	enq.mu.Lock()
	defer enq.mu.Unlock()
	require.Len(t, enq.events, 2)
	assert.Equal(t, event.Schedule, enq.events[0].Type)
}
