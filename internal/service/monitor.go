package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/infrastructure/metrics"
	"github.com/bnema/mediadesk/internal/port"
)

// maxPollFailures stops a watch after this many consecutive backend errors.
const maxPollFailures = 5

type watch struct {
	seq      RequestSequence
	cancel   context.CancelFunc
	mu       sync.RWMutex
	last     *domain.Job
	failures int
}

func (w *watch) snapshot() *domain.Job {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last == nil {
		return nil
	}
	j := *w.last
	return &j
}

// update stores job and reports whether anything the UI shows changed.
// w.mu must be held.
func (w *watch) update(job *domain.Job) bool {
	prev := w.last
	w.last = job
	return prev == nil ||
		prev.Status != job.Status ||
		prev.Progress != job.Progress ||
		prev.Stage != job.Stage ||
		prev.Error != job.Error ||
		len(prev.Outputs) != len(job.Outputs)
}

// JobMonitor polls the backend for jobs that have open watchers and fans
// their updates out through the event bus until they reach a terminal state.
type JobMonitor struct {
	backend  port.JobBackend
	events   EventPublisher
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	watches map[string]*watch
	wg      sync.WaitGroup
}

func NewJobMonitor(backend port.JobBackend, events EventPublisher, interval time.Duration) *JobMonitor {
	return &JobMonitor{
		backend:  backend,
		events:   events,
		interval: interval,
		log:      logger.WithComponent("monitor"),
		ctx:      context.Background(),
		watches:  make(map[string]*watch),
	}
}

// Start binds the monitor to ctx. Watches end when ctx is cancelled.
func (m *JobMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.log.Info().Dur("interval", m.interval).Msg("job monitor started")
}

// Wait blocks until every poller has returned.
func (m *JobMonitor) Wait() {
	m.wg.Wait()
}

// Watch starts polling jobID unless it is already being watched.
func (m *JobMonitor) Watch(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watches[jobID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	w := &watch{cancel: cancel}
	m.watches[jobID] = w

	metrics.ActiveMonitors.Inc()
	m.wg.Add(1)
	go m.run(ctx, jobID, w)
}

// Unwatch stops polling jobID.
func (m *JobMonitor) Unwatch(jobID string) {
	m.mu.Lock()
	w, ok := m.watches[jobID]
	m.mu.Unlock()
	if ok {
		w.cancel()
	}
}

func (m *JobMonitor) Watching(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[jobID]
	return ok
}

// Last returns the most recent state seen for jobID, or nil.
func (m *JobMonitor) Last(jobID string) *domain.Job {
	m.mu.Lock()
	w, ok := m.watches[jobID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return w.snapshot()
}

// Refresh fetches jobID immediately. When the job is being watched the
// result goes through the same sequence as the poller, so an older poll
// response landing afterwards cannot overwrite it.
func (m *JobMonitor) Refresh(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	w, ok := m.watches[jobID]
	m.mu.Unlock()

	if !ok {
		return m.backend.GetJob(ctx, jobID)
	}

	seq := w.seq.Next()
	job, err := m.backend.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	m.commit(jobID, seq, w, job)
	return job, nil
}

func (m *JobMonitor) run(ctx context.Context, jobID string, w *watch) {
	defer func() {
		w.cancel()
		m.mu.Lock()
		if m.watches[jobID] == w {
			delete(m.watches, jobID)
		}
		m.mu.Unlock()
		// Announced only after the watch is gone, so a subscriber that
		// reacts by calling Watch starts a fresh poller.
		if w.failures >= maxPollFailures {
			m.events.Publish(jobID, Event{Type: EventStalled, Message: "Lost contact with the job backend. Reconnecting..."})
		}
		metrics.ActiveMonitors.Dec()
		m.wg.Done()
	}()

	log := m.log.With().Str("job_id", jobID).Logger()
	log.Debug().Msg("watch started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if m.poll(ctx, jobID, w, log) {
			log.Debug().Msg("watch finished")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll performs one status fetch and reports whether watching should stop.
func (m *JobMonitor) poll(ctx context.Context, jobID string, w *watch, log zerolog.Logger) bool {
	seq := w.seq.Next()
	job, err := m.backend.GetJob(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		metrics.PollsTotal.WithLabelValues("error").Inc()

		if errors.Is(err, domain.ErrNotFound) {
			m.events.Publish(jobID, Event{Type: EventError, Seq: seq, Message: "Job not found on the backend."})
			return true
		}

		w.failures++
		log.Warn().Err(err).Int("failures", w.failures).Msg("job poll failed")
		if w.failures >= maxPollFailures {
			log.Error().Err(err).Msg("job backend unreachable, watch stopped")
			return true
		}
		m.events.Publish(jobID, Event{Type: EventError, Seq: seq, Message: "Could not reach the job backend, retrying."})
		return false
	}
	w.failures = 0

	if !m.commit(jobID, seq, w, job) {
		metrics.PollsTotal.WithLabelValues("stale").Inc()
		return false
	}
	metrics.PollsTotal.WithLabelValues("applied").Inc()
	return job.Status.IsTerminal()
}

// commit applies job as the response to seq and publishes it when it changed
// what the UI shows. The sequence check, the store and the publish share one
// critical section, so last and the event order always follow the newest
// applied response. It reports false for a stale response.
func (m *JobMonitor) commit(jobID string, seq uint64, w *watch, job *domain.Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.seq.Apply(seq) {
		return false
	}
	if !w.update(job) {
		return true
	}
	typ := EventStatus
	if job.Status.IsTerminal() {
		typ = EventDone
	}
	m.events.Publish(jobID, Event{Type: typ, Seq: seq, Job: *job, Message: job.Error})
	return true
}
