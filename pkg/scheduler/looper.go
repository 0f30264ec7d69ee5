package scheduler

import (
	"sync"
	"time"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/rs/zerolog"
)

// Looper runs posted callbacks one at a time on a single goroutine.
//
// Every post carries a token. Posting with a token that already has a
// pending callback replaces it: the earlier callback never runs. There is no
// other way to cancel.
type Looper struct {
	mu      sync.Mutex
	pending map[string]*post
	seq     uint64
	stopped bool

	readyCh chan func()
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  zerolog.Logger
}

type post struct {
	seq   uint64
	timer *time.Timer
}

// NewLooper creates a looper. Call Start before posting.
func NewLooper() *Looper {
	return &Looper{
		pending: make(map[string]*post),
		readyCh: make(chan func(), 64),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  log.WithComponent("looper"),
	}
}

// Start begins the looper's run loop
func (l *Looper) Start() {
	go l.run()
}

// Stop drops every pending callback and stops the run loop
func (l *Looper) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	for token, p := range l.pending {
		p.timer.Stop()
		delete(l.pending, token)
	}
	l.mu.Unlock()

	close(l.stopCh)
	<-l.doneCh
}

// Post runs fn as soon as possible, replacing any pending callback for token
func (l *Looper) Post(token string, fn func()) {
	l.PostDelayed(token, 0, fn)
}

// PostDelayed runs fn after delay, replacing any pending callback for token
func (l *Looper) PostDelayed(token string, delay time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	if prev, ok := l.pending[token]; ok {
		prev.timer.Stop()
	}

	l.seq++
	p := &post{seq: l.seq}
	p.timer = time.AfterFunc(delay, func() { l.fire(token, p.seq, fn) })
	l.pending[token] = p
}

// Pending reports whether a callback is waiting for token
func (l *Looper) Pending(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[token]
	return ok
}

func (l *Looper) fire(token string, seq uint64, fn func()) {
	l.mu.Lock()
	current, ok := l.pending[token]
	if !ok || current.seq != seq {
		// replaced after the timer had already fired
		l.mu.Unlock()
		return
	}
	delete(l.pending, token)
	l.mu.Unlock()

	select {
	case l.readyCh <- fn:
	case <-l.stopCh:
	}
}

func (l *Looper) run() {
	defer close(l.doneCh)
	for {
		select {
		case fn := <-l.readyCh:
			l.invoke(fn)
		case <-l.stopCh:
			return
		}
	}
}

func (l *Looper) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Recovered from looper callback panic")
		}
	}()
	fn()
}
