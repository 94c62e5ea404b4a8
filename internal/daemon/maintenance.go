package daemon

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/tagrelay/pkg/commandqueue"
)

// SessionCounter reports on open tagging sessions
type SessionCounter interface {
	Len() int
	OldestAge() time.Duration
}

// SessionGauge receives the open session count
type SessionGauge interface {
	SessionsActive(n int)
}

// Maintenance runs periodic housekeeping on a cron schedule. It refreshes the
// sessions gauge, drops idle queue lanes and logs busy lanes. Sessions are
// never expired here.
type Maintenance struct {
	cron     *cron.Cron
	schedule string
	laneIdle time.Duration
	sessions SessionCounter
	gauge    SessionGauge
	queue    *commandqueue.CommandQueue
	logger   zerolog.Logger
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewMaintenance creates a maintenance job. The schedule accepts standard
// five-field expressions and descriptors such as "@every 1m".
func NewMaintenance(schedule string, laneIdle time.Duration, sessions SessionCounter, gauge SessionGauge, queue *commandqueue.CommandQueue, logger zerolog.Logger) (*Maintenance, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session counter is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}

	m := &Maintenance{
		cron:     cron.New(cron.WithParser(scheduleParser)),
		schedule: schedule,
		laneIdle: laneIdle,
		sessions: sessions,
		gauge:    gauge,
		queue:    queue,
		logger:   logger.With().Str("component", "maintenance").Logger(),
	}

	if _, err := m.cron.AddFunc(schedule, m.Run); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	return m, nil
}

// Start begins running the job in the background
func (m *Maintenance) Start() {
	m.cron.Start()
	m.logger.Info().Str("schedule", m.schedule).Msg("Maintenance scheduled")
}

// Stop stops the scheduler and waits for a running job to finish
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info().Msg("Maintenance stopped")
}

// Run performs one maintenance pass
func (m *Maintenance) Run() {
	sessions := m.sessions.Len()
	if m.gauge != nil {
		m.gauge.SessionsActive(sessions)
	}

	pruned := 0
	if m.laneIdle > 0 {
		pruned = m.queue.Prune(m.laneIdle)
	}

	stats := m.queue.GetStats()
	for lane, laneStats := range stats {
		if laneStats["queued"] > 0 || laneStats["running"] > 0 {
			m.logger.Debug().
				Str("lane", lane).
				Int("queued", laneStats["queued"]).
				Int("running", laneStats["running"]).
				Msg("Queue stats")
		}
	}

	m.logger.Debug().
		Int("sessions", sessions).
		Dur("oldest_session", m.sessions.OldestAge()).
		Int("lanes", m.queue.LaneCount()).
		Int("pruned_lanes", pruned).
		Msg("Maintenance pass complete")
}
