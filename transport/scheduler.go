package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	proto "github.com/ystepanoff/ookctl/protocol"
)

// Scheduler multiplexes repeated transmissions from independent jobs onto
// one radio. Jobs are keyed by id; at most one job per id is pending.
//
// A worker goroutine ticks at a fixed interval while jobs are pending. Each
// tick dispatches a snapshot of the pending jobs in insertion order and
// consumes one attempt per job. A tick that finds nothing pending puts the
// radio to sleep and ends the worker; the next BeginTransmitting starts a
// new one.
type Scheduler struct {
	radio    RadioDriver
	codecs   proto.Codecs
	interval time.Duration
	attempts int
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// radioMu serializes driver access. It is taken before mu.
	radioMu sync.Mutex

	mu      sync.Mutex
	jobs    map[string]*Job
	order   []*Job
	running bool
	closed  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick period (default 100ms).
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMetrics records dispatches and job outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithCodecs replaces the device families the scheduler can dispatch to.
func WithCodecs(c proto.Codecs) Option {
	return func(s *Scheduler) {
		if len(c) > 0 {
			s.codecs = c
		}
	}
}

// WithDefaultAttempts sets the attempts used when BeginTransmitting gets <= 0 (default 40).
func WithDefaultAttempts(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// NewScheduler takes ownership of radio.
func NewScheduler(radio RadioDriver, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		radio:    radio,
		codecs:   proto.DefaultCodecs(),
		interval: proto.TickIntervalMilli * time.Millisecond,
		attempts: proto.DefaultAttempts,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginTransmitting queues code for attempts dispatches under id. A pending
// job with the same id finishes as OutcomeSuperseded before the new job is
// queued. state is only used by device kinds that carry an on/off marker.
// A code wider than the device kind's code width is rejected with
// ErrInvalidCode.
func (s *Scheduler) BeginTransmitting(id string, kind proto.Kind, code uint32, state *bool, attempts int) (*Job, error) {
	codec, err := s.codecs.Lookup(kind)
	if err != nil {
		return nil, err
	}
	if err := proto.CheckWidth(codec, code); err != nil {
		return nil, err
	}
	if attempts <= 0 {
		attempts = s.attempts
	}
	job := newJob(id, codec, code, state, attempts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, proto.ErrSchedulerClosed
	}

	if old := s.removeLocked(id); old != nil {
		s.finishLocked(old, OutcomeSuperseded)
	}
	s.jobs[id] = job
	s.order = append(s.order, job)
	s.metrics.pending(len(s.order))

	if !s.running {
		s.running = true
		s.wg.Add(1)
		go s.run()
	}
	return job, nil
}

// StopTransmitting finishes the job under id as OutcomeStopped. It reports
// false, and does nothing else, when no job is pending under id.
func (s *Scheduler) StopTransmitting(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.removeLocked(id)
	if job == nil {
		return false
	}
	s.finishLocked(job, OutcomeStopped)
	s.metrics.pending(len(s.order))
	return true
}

// Job returns the pending job under id.
func (s *Scheduler) Job(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Pending lists pending job ids in insertion order.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.order))
	for i, j := range s.order {
		ids[i] = j.id
	}
	return ids
}

// Running reports whether the worker is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close stops the worker, finishes every pending job as OutcomeStopped and
// puts the radio to sleep.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.radioMu.Lock()
	defer s.radioMu.Unlock()
	s.mu.Lock()
	for _, job := range s.order {
		delete(s.jobs, job.id)
		s.finishLocked(job, OutcomeStopped)
	}
	s.order = nil
	s.running = false
	s.metrics.pending(0)
	s.mu.Unlock()

	if err := s.radio.SetMode(context.Background(), proto.ModeSleep); err != nil {
		return fmt.Errorf("failed to put radio to sleep: %w", err)
	}
	return nil
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-ticker.C:
		}
		if !s.tick() {
			return
		}
	}
}

// tick dispatches every job pending at its start. It returns false once the
// pending set was found empty and the radio was put to sleep.
func (s *Scheduler) tick() bool {
	s.radioMu.Lock()
	s.mu.Lock()
	if len(s.order) == 0 {
		s.running = false
		s.mu.Unlock()
		if err := s.radio.SetMode(s.ctx, proto.ModeSleep); err != nil {
			log.Printf("[Scheduler] Failed to put radio to sleep: %v\n", err)
		}
		s.radioMu.Unlock()
		return false
	}
	snapshot := append([]*Job(nil), s.order...)
	s.mu.Unlock()
	s.radioMu.Unlock()

	s.metrics.tick()
	for _, job := range snapshot {
		if s.ctx.Err() != nil {
			return false
		}
		if !s.dispatch(job) {
			continue
		}

		s.mu.Lock()
		if s.jobs[job.id] == job && job.consume() == 0 {
			s.removeLocked(job.id)
			s.finishLocked(job, OutcomeCompleted)
			s.metrics.pending(len(s.order))
		}
		s.mu.Unlock()
	}
	return true
}

// dispatch sends one attempt of job. It reports false when the job was
// stopped or superseded before it got the radio. Failures are logged; the
// attempt still counts.
func (s *Scheduler) dispatch(job *Job) bool {
	s.radioMu.Lock()
	defer s.radioMu.Unlock()

	// Checked under radioMu: a job stopped after the snapshot stays off the air.
	if !s.isPending(job) {
		return false
	}
	kind := job.kind.String()
	if err := proto.ValidateCode(job.code); err != nil {
		log.Printf("[Scheduler] Skipping %s job %q: %v\n", kind, job.id, err)
		s.metrics.skip(kind)
		return true
	}
	frame := job.codec.Encode(job.code, job.state)

	if err := s.radio.SetConfig(s.ctx, job.codec.RadioConfig()); err != nil {
		s.failed(job, err)
		return true
	}
	if err := s.radio.SetPacketFraming(s.ctx, job.codec.TransmitFraming()); err != nil {
		s.failed(job, err)
		return true
	}
	for i := 0; i < job.codec.Sends(); i++ {
		if err := s.radio.Transmit(s.ctx, frame.Preamble, frame.Payload); err != nil {
			s.failed(job, err)
			return true
		}
		s.metrics.transmitted(kind)
	}
	return true
}

func (s *Scheduler) failed(job *Job, err error) {
	log.Printf("[Scheduler] Transmit failed for %s job %q code=%#x: %v\n", job.kind, job.id, job.code, err)
	s.metrics.transmitFailed(job.kind.String())
}

func (s *Scheduler) isPending(job *Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[job.id] == job
}

func (s *Scheduler) removeLocked(id string) *Job {
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	delete(s.jobs, id)
	for i, j := range s.order {
		if j == job {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return job
}

func (s *Scheduler) finishLocked(job *Job, o Outcome) {
	if job.finish(o) {
		s.metrics.finished(o)
	}
}
