package runner

import (
	"errors"
	"sync"
)

// ErrFinished is returned by Token.Stop once the run has written a terminal
// state.
var ErrFinished = errors.New("run already finished")

// Token is a job's cancel token. Its lock also serialises the runner's store
// writes with the stopping marker written by Stop, so a stop can never land
// on top of a terminal state.
type Token struct {
	mu       sync.Mutex
	ch       chan struct{}
	closed   bool
	finished bool
}

func NewToken() *Token {
	return &Token{ch: make(chan struct{})}
}

// Done is closed when a stop is requested.
func (t *Token) Done() <-chan struct{} {
	return t.ch
}

func (t *Token) Stopped() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Stop signals the token and runs mark while no runner write can happen.
// mark may be nil.
func (t *Token) Stop(mark func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return ErrFinished
	}
	if !t.closed {
		close(t.ch)
		t.closed = true
	}
	if mark != nil {
		return mark()
	}
	return nil
}

// guard runs a runner write under the token lock. terminal marks the run
// finished once the write succeeds.
func (t *Token) guard(write func() (terminal bool, err error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	terminal, err := write()
	if err == nil && terminal {
		t.finished = true
	}
	return err
}
