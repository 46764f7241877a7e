package transport

import (
	"context"
	"sync"

	proto "github.com/ystepanoff/ookctl/protocol"
)

// Outcome is how a job left the scheduler.
type Outcome int

const (
	OutcomePending    Outcome = iota
	OutcomeCompleted          // all attempts dispatched
	OutcomeStopped            // StopTransmitting or Close
	OutcomeSuperseded         // replaced by a job with the same id
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeStopped:
		return "stopped"
	case OutcomeSuperseded:
		return "superseded"
	}
	return "unknown"
}

// Job is one repeated transmission of a code. Done is closed exactly once,
// after Outcome is set.
type Job struct {
	id    string
	kind  proto.Kind
	codec proto.Codec
	code  uint32
	state *bool

	mu        sync.Mutex
	remaining int
	outcome   Outcome
	done      chan struct{}
}

func newJob(id string, codec proto.Codec, code uint32, state *bool, attempts int) *Job {
	if state != nil {
		s := *state
		state = &s
	}
	return &Job{
		id:        id,
		kind:      codec.Kind(),
		codec:     codec,
		code:      code,
		state:     state,
		remaining: attempts,
		done:      make(chan struct{}),
	}
}

func (j *Job) ID() string            { return j.id }
func (j *Job) Kind() proto.Kind      { return j.kind }
func (j *Job) Code() uint32          { return j.code }
func (j *Job) Done() <-chan struct{} { return j.done }

// State is the on/off marker the job was created with, nil when none.
func (j *Job) State() *bool {
	if j.state == nil {
		return nil
	}
	s := *j.state
	return &s
}

func (j *Job) Outcome() Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcome
}

// Remaining is the number of attempts not yet dispatched.
func (j *Job) Remaining() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.remaining
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-j.done:
		return j.Outcome(), nil
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

func (j *Job) consume() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.remaining > 0 {
		j.remaining--
	}
	return j.remaining
}

// finish records o and closes Done. Later calls are ignored.
func (j *Job) finish(o Outcome) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.outcome != OutcomePending {
		return false
	}
	j.outcome = o
	close(j.done)
	return true
}
