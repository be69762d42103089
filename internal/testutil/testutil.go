// Package testutil provides shared fakes and helpers for engine tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"voxd/internal/recognizer"
)

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// RecordSink is a dictation sink that remembers everything delivered to it.
type RecordSink struct {
	mu         sync.Mutex
	deliveries []SinkDelivery
}

type SinkDelivery struct {
	Text    string
	IsFinal bool
}

func (s *RecordSink) Sink(text string, isFinal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, SinkDelivery{Text: text, IsFinal: isFinal})
}

func (s *RecordSink) Deliveries() []SinkDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SinkDelivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

// Last returns the most recent delivery, or false when nothing arrived yet.
func (s *RecordSink) Last() (SinkDelivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) == 0 {
		return SinkDelivery{}, false
	}
	return s.deliveries[len(s.deliveries)-1], true
}

// FakeRecognizer is an interactive recognizer for tests: the test drives it
// by emitting transcripts and terminations by hand.
type FakeRecognizer struct {
	StartErr error

	mu      sync.Mutex
	events  chan recognizer.Event
	started bool
	closed  bool
	cancel  context.CancelFunc
}

func NewFakeRecognizer() *FakeRecognizer {
	return &FakeRecognizer{events: make(chan recognizer.Event, 64)}
}

func (r *FakeRecognizer) Start(ctx context.Context) error {
	if r.StartErr != nil {
		return r.StartErr
	}

	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.started = true
	r.cancel = cancel
	r.mu.Unlock()

	r.send(recognizer.Event{Kind: recognizer.EventStarted})

	go func() {
		<-runCtx.Done()
		r.End()
	}()
	return nil
}

// Started reports whether Start has been called.
func (r *FakeRecognizer) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Emit delivers a transcript fragment; dropped once the attempt ended.
func (r *FakeRecognizer) Emit(text string, isFinal bool) {
	r.send(recognizer.Event{Kind: recognizer.EventTranscript, Text: text, IsFinal: isFinal})
}

// Fail delivers an error event.
func (r *FakeRecognizer) Fail(err error) {
	r.send(recognizer.Event{Kind: recognizer.EventError, Err: err})
}

// End terminates the attempt the way a silent recognizer does: one Ended
// event, then the channel closes. Safe to call more than once.
func (r *FakeRecognizer) End() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.events <- recognizer.Event{Kind: recognizer.EventEnded}
	close(r.events)
}

func (r *FakeRecognizer) Events() <-chan recognizer.Event {
	return r.events
}

func (r *FakeRecognizer) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.End()
	return nil
}

func (r *FakeRecognizer) send(ev recognizer.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.events <- ev
}

// Attempt scripts the behavior of one recognizer attempt produced by a
// ScriptedFactory.
type Attempt struct {
	StartErr    error
	OmitStarted bool // terminate without ever reaching Listening
	Transcripts []recognizer.Event
	WaitForStop bool // keep listening until the session stops the attempt
}

// ScriptedFactory replays a fixed sequence of attempts, then keeps producing
// stable listening attempts. It counts how many recognizers were created,
// which is how tests assert that a session stopped retrying.
type ScriptedFactory struct {
	mu       sync.Mutex
	attempts []Attempt
	created  int
}

func NewScriptedFactory(attempts ...Attempt) *ScriptedFactory {
	return &ScriptedFactory{attempts: attempts}
}

func (f *ScriptedFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *ScriptedFactory) Factory() recognizer.Factory {
	return func() (recognizer.Recognizer, error) {
		f.mu.Lock()
		var attempt Attempt
		if len(f.attempts) > 0 {
			attempt = f.attempts[0]
			f.attempts = f.attempts[1:]
		} else {
			attempt = Attempt{WaitForStop: true}
		}
		f.created++
		f.mu.Unlock()
		return &scriptedRecognizer{attempt: attempt, events: make(chan recognizer.Event, 64)}, nil
	}
}

type scriptedRecognizer struct {
	attempt Attempt
	events  chan recognizer.Event

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func (r *scriptedRecognizer) Start(ctx context.Context) error {
	if r.attempt.StartErr != nil {
		return r.attempt.StartErr
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		if !r.attempt.OmitStarted {
			r.events <- recognizer.Event{Kind: recognizer.EventStarted}
		}
		for _, ev := range r.attempt.Transcripts {
			r.events <- ev
		}
		if r.attempt.WaitForStop {
			<-runCtx.Done()
		}
		r.end()
	}()
	return nil
}

func (r *scriptedRecognizer) Events() <-chan recognizer.Event {
	return r.events
}

func (r *scriptedRecognizer) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (r *scriptedRecognizer) end() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.events <- recognizer.Event{Kind: recognizer.EventEnded}
	close(r.events)
}
