package scanner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor probes the API on a schedule and reports reachability to sink.
type Monitor struct {
	api      Pinger
	sink     func(online bool)
	interval time.Duration
	timeout  time.Duration

	mu    sync.Mutex
	sched gocron.Scheduler
	job   *uuid.UUID
	ctx   context.Context
}

func NewMonitor(api Pinger, interval time.Duration, sink func(online bool)) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		api:      api,
		sink:     sink,
		interval: interval,
		timeout:  5 * time.Second,
		ctx:      context.Background(),
	}
}

// Probe pings once and forwards the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.api.Ping(pctx)
	online := err == nil
	if err != nil {
		log.Printf("[Monitor] API unreachable: %s\n", err.Error())
	}
	if m.sink != nil {
		m.sink(online)
	}
	return online
}

// Start probes immediately and then on every interval of sched.
func (m *Monitor) Start(ctx context.Context, sched gocron.Scheduler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	j, err := sched.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			m.mu.Lock()
			ctx := m.ctx
			m.mu.Unlock()
			m.Probe(ctx)
		}),
		gocron.WithName("connectivity-probe"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}
	id := j.ID()
	m.sched = sched
	m.job = &id
	return nil
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sched == nil || m.job == nil {
		return
	}
	if err := m.sched.RemoveJob(*m.job); err != nil {
		log.Printf("[Monitor] could not remove probe: %s\n", err.Error())
	}
	m.job = nil
}
