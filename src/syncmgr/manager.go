package syncmgr

import (
	"context"
	"log"
	"olympia/src/client"
	"olympia/src/models"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSyncing   Status = "syncing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Stats struct {
	Total        int       `json:"total"`
	Successful   int       `json:"successful"`
	Failed       int       `json:"failed"`
	Rejected     int       `json:"rejected"`
	LastSyncTime time.Time `json:"lastSyncTime"`
}

// Listener receives the outcome of every drain.
type Listener func(status Status, stats Stats)

// Store is the local queue the manager drains.
type Store interface {
	ListPending(ctx context.Context) ([]models.OfflineRedemptionAttempt, error)
	Remove(ctx context.Context, localID uint) error
	Count(ctx context.Context) (int64, error)
}

type Redeemer interface {
	Redeem(ctx context.Context, a client.Attempt) (*client.Result, error)
}

type Options struct {
	Interval    time.Duration
	RetryDelay  time.Duration
	// MaxRetries defaults to 3 when zero. A negative value disables retries.
	MaxRetries  int
	Concurrency int
	// Scheduler is used instead of a private one when set. The caller then
	// owns its lifecycle.
	Scheduler gocron.Scheduler
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 30 * time.Second
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = 3
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
}

// Manager replays queued redemption attempts against the API. Only one
// drain runs at a time; triggers that arrive meanwhile are dropped.
type Manager struct {
	queue Store
	api   Redeemer
	opts  Options
	now   func() time.Time

	syncing atomic.Bool

	mu        sync.Mutex
	status    Status
	stats     Stats
	online    bool
	retries   int
	retryJob  *uuid.UUID
	periodic  *uuid.UUID
	listeners map[int]Listener
	nextID    int
	sched     gocron.Scheduler
	ownSched  bool
	stopped   bool
	runCtx    context.Context
}

func NewManager(queue Store, api Redeemer, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		queue:     queue,
		api:       api,
		opts:      opts,
		now:       time.Now,
		status:    StatusIdle,
		listeners: map[int]Listener{},
		runCtx:    context.Background(),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// PendingCount is the number of attempts still waiting for the server.
func (m *Manager) PendingCount(ctx context.Context) (int64, error) {
	return m.queue.Count(ctx)
}

// Start schedules the periodic drain. The manager starts offline.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCtx = ctx
	m.stopped = false
	if m.sched == nil {
		if m.opts.Scheduler != nil {
			m.sched = m.opts.Scheduler
		} else {
			s, err := gocron.NewScheduler()
			if err != nil {
				return err
			}
			m.sched = s
			m.ownSched = true
		}
	}
	j, err := m.sched.NewJob(
		gocron.DurationJob(m.opts.Interval),
		gocron.NewTask(m.scheduledSync),
		gocron.WithName("offline-sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	id := j.ID()
	m.periodic = &id
	if m.ownSched {
		m.sched.Start()
	}
	log.Printf("[Sync] started, interval %s\n", m.opts.Interval)
	return nil
}

// Stop cancels timers and detaches listeners. Partially drained state is
// left as is. A drain still in flight finishes without scheduling a retry.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.listeners = map[int]Listener{}
	m.stopped = true
	sched, own := m.sched, m.ownSched
	if sched == nil {
		m.mu.Unlock()
		return nil
	}
	m.removeRetryLocked()
	if m.periodic != nil {
		if err := sched.RemoveJob(*m.periodic); err != nil {
			log.Printf("[Sync] could not remove periodic job: %s\n", err.Error())
		}
		m.periodic = nil
	}
	if own {
		m.sched = nil
		m.ownSched = false
	}
	m.mu.Unlock()

	if own {
		return sched.Shutdown()
	}
	return nil
}

// SetOnline records connectivity. Going online triggers a drain.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	ctx := m.runCtx
	m.mu.Unlock()
	if online && !was {
		log.Println("[Sync] connectivity restored")
		go m.Sync(ctx)
	}
}

// Sync is the manual trigger. It resets the retry count and drains the
// queue, returning false when a drain was already running.
func (m *Manager) Sync(ctx context.Context) bool {
	return m.run(ctx, true)
}

func (m *Manager) scheduledSync() {
	m.mu.Lock()
	online, ctx := m.online && !m.stopped, m.runCtx
	m.mu.Unlock()
	if !online {
		return
	}
	m.run(ctx, false)
}

func (m *Manager) retrySync() {
	m.mu.Lock()
	m.retryJob = nil
	online, ctx := m.online && !m.stopped, m.runCtx
	m.mu.Unlock()
	if !online {
		return
	}
	m.run(ctx, false)
}

func (m *Manager) run(ctx context.Context, external bool) bool {
	if !m.syncing.CompareAndSwap(false, true) {
		return false
	}
	defer m.syncing.Store(false)

	m.mu.Lock()
	if external {
		m.retries = 0
		m.removeRetryLocked()
	}
	m.status = StatusSyncing
	m.mu.Unlock()

	stats := m.drain(ctx)

	m.mu.Lock()
	status := StatusCompleted
	if stats.Failed > 0 {
		status = StatusFailed
		if m.retries < m.opts.MaxRetries && !m.stopped {
			m.retries++
			m.scheduleRetryLocked()
		} else {
			log.Printf("[Sync] giving up after %d retries, %d attempts pending\n", m.retries, stats.Failed)
		}
	} else {
		m.retries = 0
	}
	m.status = status
	m.stats = stats
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	drainsTotal.WithLabelValues(string(status)).Inc()
	for _, fn := range listeners {
		fn(status, stats)
	}

	if status == StatusCompleted {
		m.mu.Lock()
		m.status = StatusIdle
		m.mu.Unlock()
	}
	return true
}

// drain replays one snapshot of the queue. Attempts for different codes
// run concurrently; attempts sharing a code run in insertion order.
func (m *Manager) drain(ctx context.Context) Stats {
	var stats Stats
	pending, err := m.queue.ListPending(ctx)
	if err != nil {
		log.Printf("[Sync] could not read local queue: %s\n", err.Error())
		stats.Failed = 1
		stats.LastSyncTime = m.now()
		return stats
	}
	stats.Total = len(pending)

	var order []string
	groups := map[string][]models.OfflineRedemptionAttempt{}
	for _, a := range pending {
		if _, ok := groups[a.RedemptionCode]; !ok {
			order = append(order, a.RedemptionCode)
		}
		groups[a.RedemptionCode] = append(groups[a.RedemptionCode], a)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(m.opts.Concurrency)
	for _, code := range order {
		attempts := groups[code]
		g.Go(func() error {
			successful, failed, rejected := m.replay(ctx, attempts)
			mu.Lock()
			stats.Successful += successful
			stats.Failed += failed
			stats.Rejected += rejected
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	stats.LastSyncTime = m.now()
	log.Printf("[Sync] drained %d attempts: %d successful, %d failed, %d rejected\n", stats.Total, stats.Successful, stats.Failed, stats.Rejected)
	return stats
}

// replay sends the attempts of one code in order. A transient failure
// leaves it and every later attempt of the code queued.
func (m *Manager) replay(ctx context.Context, attempts []models.OfflineRedemptionAttempt) (successful int, failed int, rejected int) {
	for i, a := range attempts {
		captured := a.CapturedAtClientTime
		res, err := m.api.Redeem(ctx, client.Attempt{
			Code:       a.RedemptionCode,
			Photo:      a.EvidencePhoto,
			CapturedAt: &captured,
			OperatorID: a.OperatorUserID,
			EventID:    a.EventID,
		})
		if err != nil || res == nil || !res.Outcome.Resolved() {
			if err != nil {
				log.Printf("[Sync] attempt %d (%s) will be retried: %s\n", a.LocalID, a.RedemptionCode, err.Error())
			}
			attemptsTotal.WithLabelValues(client.Transient.String()).Add(float64(len(attempts) - i))
			return successful, failed + len(attempts) - i, rejected
		}
		attemptsTotal.WithLabelValues(res.Outcome.String()).Inc()
		if err := m.queue.Remove(ctx, a.LocalID); err != nil {
			log.Printf("[Sync] could not remove attempt %d: %s\n", a.LocalID, err.Error())
			failed++
			continue
		}
		switch res.Outcome {
		case client.Rejected:
			log.Printf("[Sync] attempt %d (%s) rejected with status %d: %s\n", a.LocalID, a.RedemptionCode, res.StatusCode, res.Message)
			rejected++
		default:
			successful++
		}
	}
	return successful, failed, rejected
}

func (m *Manager) scheduleRetryLocked() {
	if m.sched == nil || m.stopped {
		return
	}
	m.removeRetryLocked()
	j, err := m.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(m.now().Add(m.opts.RetryDelay))),
		gocron.NewTask(m.retrySync),
		gocron.WithName("offline-sync-retry"),
	)
	if err != nil {
		log.Printf("[Sync] could not schedule retry: %s\n", err.Error())
		return
	}
	id := j.ID()
	m.retryJob = &id
	log.Printf("[Sync] retry %d of %d in %s\n", m.retries, m.opts.MaxRetries, m.opts.RetryDelay)
}

func (m *Manager) removeRetryLocked() {
	if m.retryJob == nil || m.sched == nil {
		return
	}
	if err := m.sched.RemoveJob(*m.retryJob); err != nil {
		log.Printf("[Sync] could not remove retry job: %s\n", err.Error())
	}
	m.retryJob = nil
}
