// Package session keeps one continuous recognition stream alive for as long
// as listening is desired, transparently recovering from the recognizer's
// habit of stopping itself after silence or provider-imposed limits.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxd/internal/recognizer"
)

type Status string

const (
	Idle      Status = "idle"
	Starting  Status = "starting"
	Listening Status = "listening"
	Stopping  Status = "stopping"
	Error     Status = "error"
)

const (
	DefaultRestartDelay = 300 * time.Millisecond
	DefaultMaxRetries   = 5
)

// TranscriptFunc receives transcript fragments verbatim; the session does no
// text interpretation.
type TranscriptFunc func(text string, isFinal bool)

type Option func(*Session)

// WithRestartDelay sets the fixed pause before recreating a recognizer that
// terminated while listening was still desired.
func WithRestartDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.restartDelay = d
		}
	}
}

// WithMaxRetries bounds consecutive failed attempts (terminations with no
// intervening Listening) before the session gives up with status Error.
func WithMaxRetries(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithStatusFunc registers a callback for status transitions.
func WithStatusFunc(fn func(Status)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// WithFailureFunc registers a callback invoked once when the session enters
// Error, carrying the terminal cause.
func WithFailureFunc(fn func(error)) Option {
	return func(s *Session) { s.onFailure = fn }
}

// Session owns the recognizer exclusively; nothing else may start or stop
// it. desiredActive records the caller's intent and survives transient
// recognizer terminations, which is what lets callbacks distinguish a stale
// in-flight event from a currently-desired stream.
type Session struct {
	factory      recognizer.Factory
	onTranscript TranscriptFunc
	restartDelay time.Duration
	maxRetries   int
	onStatus     func(Status)
	onFailure    func(error)

	mu            sync.Mutex
	status        Status
	desiredActive bool
	retryCount    int
	gen           uint64 // bumped per Start; the owning run loop's identity
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func New(factory recognizer.Factory, onTranscript TranscriptFunc, opts ...Option) *Session {
	s := &Session{
		factory:      factory,
		onTranscript: onTranscript,
		restartDelay: DefaultRestartDelay,
		maxRetries:   DefaultMaxRetries,
		status:       Idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start records the intent to listen and spins up the recognizer loop. No-op
// when already starting or listening.
func (s *Session) Start() {
	s.mu.Lock()
	s.desiredActive = true
	switch s.status {
	case Starting, Listening:
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.retryCount = 0
	s.setStatusLocked(Starting)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, gen)
}

// Stop records the intent to stop and winds the recognizer down. Idempotent;
// events already in flight are consumed without visible effect.
func (s *Session) Stop() {
	s.mu.Lock()
	s.desiredActive = false
	s.retryCount = 0
	cancel := s.cancel
	s.cancel = nil
	switch s.status {
	case Starting, Listening:
		s.setStatusLocked(Stopping)
	case Error:
		s.setStatusLocked(Idle)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close stops the session and waits for the recognizer loop to exit. The
// underlying recognizer is released before Close returns.
func (s *Session) Close() {
	s.Stop()
	s.wg.Wait()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Listening reports whether the caller currently wants the stream running.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desiredActive
}

func (s *Session) run(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	for {
		var fatal error

		rec, err := s.factory()
		attemptID := ""
		if err == nil {
			attemptID = uuid.NewString()[:8]
			log.Printf("session: starting recognizer attempt %s", attemptID)
			err = rec.Start(ctx)
		}

		if err != nil {
			if recognizer.IsFatalError(err) {
				s.fail(gen, err)
				return
			}
			log.Printf("session: recognizer start failed: %v", err)
		} else {
			for ev := range rec.Events() {
				switch ev.Kind {
				case recognizer.EventStarted:
					s.markListening(gen)
				case recognizer.EventTranscript:
					// Checked per event, not per attempt: a stop requested
					// mid-stream must drop the rest of the stream.
					if s.deliverable(gen) {
						s.onTranscript(ev.Text, ev.IsFinal)
					}
				case recognizer.EventError:
					log.Printf("session: recognizer error (attempt %s): %v", attemptID, ev.Err)
					if recognizer.IsFatalError(ev.Err) {
						fatal = ev.Err
					}
				case recognizer.EventEnded:
					log.Printf("session: recognizer attempt %s ended", attemptID)
				}
			}
			_ = rec.Stop()
		}

		if fatal != nil {
			s.fail(gen, fatal)
			return
		}

		// Every termination is classified: intended stop, or needs restart.
		if !s.wantsRestart(gen) {
			s.finish(gen)
			return
		}

		if s.registerFailure(gen) {
			s.fail(gen, fmt.Errorf("recognizer terminated %d consecutive times without recovering", s.maxRetries+1))
			return
		}

		s.setStatus(gen, Starting)
		select {
		case <-ctx.Done():
			s.finish(gen)
			return
		case <-time.After(s.restartDelay):
		}
	}
}

// markListening handles the recognizer's started signal: Starting to
// Listening, and the consecutive-failure counter resets.
func (s *Session) markListening(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || !s.desiredActive {
		return
	}
	s.retryCount = 0
	s.setStatusLocked(Listening)
}

func (s *Session) deliverable(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.desiredActive
}

func (s *Session) wantsRestart(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.desiredActive
}

// registerFailure counts one failed attempt and reports whether the retry
// bound is exhausted.
func (s *Session) registerFailure(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.retryCount++
	return s.retryCount > s.maxRetries
}

func (s *Session) setStatus(gen uint64, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.setStatusLocked(st)
	}
}

// finish is the intended-stop exit: Stopping (or whatever we were) to Idle.
func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.setStatusLocked(Idle)
	}
}

// fail is the exhausted-retry or fatal exit; surfaced to the owner so the UI
// can show a persistent voice-unavailable indicator instead of retrying
// forever.
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.desiredActive = false
	s.setStatusLocked(Error)
	s.mu.Unlock()

	log.Printf("session: giving up: %v", err)
	if s.onFailure != nil {
		go s.onFailure(err)
	}
}

func (s *Session) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	if s.onStatus != nil {
		go s.onStatus(st)
	}
}
