package command

import (
	"sort"
	"strings"
	"sync"
)

// Action is a side-effecting command callback. The engine observes no return
// value.
type Action func()

// Command describes a voice command: an id, the trigger phrases that match it
// and the action to run on a match.
type Command struct {
	ID      string
	Phrases []string
	Action  Action

	// DuringDictation marks the command as matchable while a dictation sink
	// is bound. Only these commands are considered by the router in
	// dictation mode, so ordinary dictated prose never trips a command.
	DuringDictation bool

	// EndsDictation makes a dictation-mode match terminate the binding after
	// the matched phrase is stripped (send-type commands).
	EndsDictation bool
}

// Match is the result of a successful lookup.
type Match struct {
	ID            string
	Phrase        string // normalized phrase that matched
	Action        Action
	EndsDictation bool
}

type entry struct {
	owner   string
	seq     uint64
	cmd     Command
	phrases []string // normalized once at registration
}

// Registry maps trigger phrases to actions. Registration is ownership-scoped
// so a UI surface can bulk-remove its commands on teardown, and re-registering
// an id replaces the previous entry so an action never dispatches twice.
type Registry struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register inserts or replaces the entry for cmd.ID and returns an unregister
// handle. The handle removes exactly this registration; it is a no-op if the
// entry was already replaced or removed, and safe to call more than once.
func (r *Registry) Register(owner string, cmd Command) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e := &entry{
		owner:   owner,
		seq:     r.seq,
		cmd:     cmd,
		phrases: normalizePhrases(cmd.Phrases),
	}
	r.entries[cmd.ID] = e

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.entries[cmd.ID]; ok && cur == e {
			delete(r.entries, cmd.ID)
		}
	}
}

// UnregisterAll removes every entry registered under owner.
func (r *Registry) UnregisterAll(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.owner == owner {
			delete(r.entries, id)
		}
	}
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Match looks up the command whose phrase is a suffix of the normalized text.
// Longer phrases are checked before shorter ones so "send it" beats "it";
// registration order breaks length ties.
func (r *Registry) Match(text string) (Match, bool) {
	return r.match(text, false)
}

// MatchDictation is Match restricted to commands flagged DuringDictation.
func (r *Registry) MatchDictation(text string) (Match, bool) {
	return r.match(text, true)
}

type candidate struct {
	phrase string
	e      *entry
}

func (r *Registry) match(text string, dictationOnly bool) (Match, bool) {
	normalized := Normalize(text)
	if normalized == "" {
		return Match{}, false
	}

	r.mu.Lock()
	var candidates []candidate
	for _, e := range r.entries {
		if dictationOnly && !e.cmd.DuringDictation {
			continue
		}
		for _, p := range e.phrases {
			candidates = append(candidates, candidate{phrase: p, e: e})
		}
	}
	r.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].phrase) != len(candidates[j].phrase) {
			return len(candidates[i].phrase) > len(candidates[j].phrase)
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})

	for _, c := range candidates {
		if strings.HasSuffix(normalized, c.phrase) {
			return Match{
				ID:            c.e.cmd.ID,
				Phrase:        c.phrase,
				Action:        c.e.cmd.Action,
				EndsDictation: c.e.cmd.EndsDictation,
			}, true
		}
	}
	return Match{}, false
}

// Normalize lowercases, trims surrounding whitespace and strips trailing
// sentence punctuation so "Send it!" matches the phrase "send it".
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, ".!?")
	return strings.TrimSpace(s)
}

func normalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}
