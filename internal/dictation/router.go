package dictation

import (
	"log"
	"strings"
	"sync"

	"voxd/internal/command"
)

// Sink receives live transcribed text destined for the field that currently
// owns dictation. isFinal distinguishes committed text from interim display
// updates.
type Sink func(text string, isFinal bool)

// Router is the single arbiter of who owns recognized speech. With no sink
// bound, finalized text is evaluated against the command registry; with a
// sink bound, text is forwarded as dictation, and only commands flagged for
// dictation are still matched against the trailing fragment.
type Router struct {
	registry *command.Registry
	acc      *Accumulator

	mu   sync.Mutex
	sink Sink
	gen  uint64 // bumped on every bind/unbind; stale deliveries check it
}

func NewRouter(registry *command.Registry) *Router {
	return &Router{
		registry: registry,
		acc:      NewAccumulator(),
	}
}

// BindSink installs sink as the sole dictation target, seeding the
// accumulator with text already present in the field. A previous sink is
// replaced without being invoked again.
func (r *Router) BindSink(sink Sink, seed string) {
	r.acc.Seed(seed)
	r.mu.Lock()
	r.gen++
	r.sink = sink
	r.mu.Unlock()
}

// UnbindSink clears the binding and resets the accumulator. Idempotent.
func (r *Router) UnbindSink() {
	r.mu.Lock()
	bound := r.sink != nil
	r.sink = nil
	r.gen++
	r.mu.Unlock()
	if bound {
		r.acc.Reset()
	}
}

// Bound reports whether a dictation sink is currently installed.
func (r *Router) Bound() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink != nil
}

// Accumulator exposes the running transcript buffer, used by editing commands
// such as line breaks and scratch.
func (r *Router) Accumulator() *Accumulator {
	return r.acc
}

// OnTranscript routes one transcript fragment from the recognition session.
func (r *Router) OnTranscript(text string, isFinal bool) {
	r.mu.Lock()
	sink := r.sink
	gen := r.gen
	r.mu.Unlock()

	if sink == nil {
		r.onCommandMode(text, isFinal)
		return
	}

	if !isFinal {
		r.acc.SetInterim(text)
		r.deliver(sink, gen, r.acc.Display(), false)
		return
	}

	m, ok := r.registry.MatchDictation(text)
	if !ok {
		r.acc.AppendFinal(text)
		r.deliver(sink, gen, r.acc.Base(), true)
		return
	}

	// A trailing spoken command must not be dictated literally.
	remainder := stripPhrase(text, m.Phrase)
	r.acc.AppendFinal(remainder)

	if !m.EndsDictation {
		if m.Action != nil {
			m.Action()
		}
		r.deliver(sink, gen, r.acc.Base(), true)
		return
	}

	base := r.acc.Base()
	r.mu.Lock()
	current := r.gen == gen && r.sink != nil
	if current {
		r.sink = nil
		r.gen++
	}
	r.mu.Unlock()

	if current {
		r.acc.Reset()
		sink(base, true)
	}
	if m.Action != nil {
		m.Action()
	}
}

func (r *Router) onCommandMode(text string, isFinal bool) {
	if !isFinal {
		return
	}
	m, ok := r.registry.Match(text)
	if !ok {
		return
	}
	log.Printf("router: matched command %q on phrase %q", m.ID, m.Phrase)
	if m.Action != nil {
		m.Action()
	}
}

// deliver invokes sink only if the binding it was captured from is still the
// active one, so an event in flight during an unbind or rebind produces no
// visible side effect.
func (r *Router) deliver(sink Sink, gen uint64, text string, isFinal bool) {
	r.mu.Lock()
	current := r.gen == gen && r.sink != nil
	r.mu.Unlock()
	if current {
		sink(text, isFinal)
	}
}

// stripPhrase removes a matched trigger phrase (plus the trailing punctuation
// ignored during matching) from the end of a raw fragment.
func stripPhrase(text, phrase string) string {
	end := len(text)
	for end > 0 && strings.ContainsRune(" \t.!?", rune(text[end-1])) {
		end--
	}

	if end >= len(phrase) && strings.EqualFold(text[end-len(phrase):end], phrase) {
		return strings.TrimSpace(text[:end-len(phrase)])
	}

	// Case folding changed byte lengths; fall back to a lowercase search.
	lower := strings.ToLower(text[:end])
	if i := strings.LastIndex(lower, phrase); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSpace(text[:end])
}
