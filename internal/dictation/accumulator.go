package dictation

import (
	"strings"
	"sync"
)

// lineBreak is stored as its own fragment so it can be scratched like any
// other final fragment.
const lineBreak = "\n"

// Accumulator merges interim and final speech fragments into the running text
// of one dictation binding. Final text is append-only for the life of the
// binding; the seed preserves whatever the target field already contained.
type Accumulator struct {
	mu      sync.Mutex
	seed    string
	finals  []string
	interim string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Seed starts a fresh accumulation on top of text already present in the
// bound field. Any previous fragments are discarded.
func (a *Accumulator) Seed(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seed = strings.TrimSpace(text)
	a.finals = a.finals[:0]
	a.interim = ""
}

// SetInterim replaces the transient not-yet-final text.
func (a *Accumulator) SetInterim(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interim = strings.TrimSpace(text)
}

// AppendFinal commits a finalized fragment and clears the interim text it
// supersedes.
func (a *Accumulator) AppendFinal(text string) {
	text = strings.TrimSpace(text)
	a.mu.Lock()
	defer a.mu.Unlock()
	if text != "" {
		a.finals = append(a.finals, text)
	}
	a.interim = ""
}

// AppendBreak commits a line break as a final fragment.
func (a *Accumulator) AppendBreak() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finals = append(a.finals, lineBreak)
	a.interim = ""
}

// ScratchLast drops the most recent final fragment. The seed is never
// scratched. No-op when nothing was dictated yet.
func (a *Accumulator) ScratchLast() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.finals); n > 0 {
		a.finals = a.finals[:n-1]
	}
	a.interim = ""
}

// Base returns the finalized text accumulated so far, seed included.
func (a *Accumulator) Base() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseLocked()
}

// Display returns what the bound field should currently show: the finalized
// text plus the pending interim fragment.
func (a *Accumulator) Display() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return joinFragment(a.baseLocked(), a.interim)
}

// Reset clears all state; called when the binding is torn down.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seed = ""
	a.finals = a.finals[:0]
	a.interim = ""
}

func (a *Accumulator) baseLocked() string {
	var b strings.Builder
	b.WriteString(a.seed)
	for _, f := range a.finals {
		if f == lineBreak {
			b.WriteString(lineBreak)
			continue
		}
		appendTo(&b, f)
	}
	return b.String()
}

func appendTo(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	if s := b.String(); s != "" && !strings.HasSuffix(s, lineBreak) {
		b.WriteString(" ")
	}
	b.WriteString(text)
}

func joinFragment(base, fragment string) string {
	if fragment == "" {
		return base
	}
	if base == "" {
		return fragment
	}
	if strings.HasSuffix(base, lineBreak) {
		return base + fragment
	}
	return base + " " + fragment
}
