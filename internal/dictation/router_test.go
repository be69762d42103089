package dictation

import (
	"testing"

	"voxd/internal/command"
)

type sinkCall struct {
	text  string
	final bool
}

type recordSink struct {
	calls []sinkCall
}

func (s *recordSink) Sink(text string, isFinal bool) {
	s.calls = append(s.calls, sinkCall{text: text, final: isFinal})
}

func (s *recordSink) lastFinal(t *testing.T) string {
	t.Helper()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].final {
			return s.calls[i].text
		}
	}
	t.Fatal("no final sink delivery recorded")
	return ""
}

func TestRouter_CommandModeMatchesFinalOnly(t *testing.T) {
	reg := command.NewRegistry()
	fired := 0
	reg.Register("test", command.Command{
		ID:      "go-chat",
		Phrases: []string{"go to chat"},
		Action:  func() { fired++ },
	})
	r := NewRouter(reg)

	r.OnTranscript("go to chat", false) // interim, ignored
	if fired != 0 {
		t.Fatal("interim transcript must not dispatch commands")
	}

	r.OnTranscript("please go to chat", true)
	if fired != 1 {
		t.Errorf("action fired %d times, want exactly 1", fired)
	}
}

func TestRouter_CommandModeUnmatchedFinalIsDropped(t *testing.T) {
	reg := command.NewRegistry()
	r := NewRouter(reg)

	// No sink, no matching command: nothing to observe, nothing to panic on.
	r.OnTranscript("just some speech", true)

	if got := r.Accumulator().Base(); got != "" {
		t.Errorf("accumulator updated in command mode: %q", got)
	}
}

func TestRouter_DictationAppendsToSeed(t *testing.T) {
	reg := command.NewRegistry()
	r := NewRouter(reg)
	sink := &recordSink{}

	r.BindSink(sink.Sink, "Hello")
	r.OnTranscript("world", true)

	if got := sink.lastFinal(t); got != "Hello world" {
		t.Errorf("final delivery = %q, want %q", got, "Hello world")
	}
}

func TestRouter_DictationInterimDisplay(t *testing.T) {
	reg := command.NewRegistry()
	r := NewRouter(reg)
	sink := &recordSink{}

	r.BindSink(sink.Sink, "")
	r.OnTranscript("hello wo", false)

	if len(sink.calls) != 1 || sink.calls[0].final {
		t.Fatalf("expected one interim delivery, got %+v", sink.calls)
	}
	if sink.calls[0].text != "hello wo" {
		t.Errorf("interim delivery = %q, want %q", sink.calls[0].text, "hello wo")
	}
}

func TestRouter_SendCommandStripsPhraseAndUnbinds(t *testing.T) {
	reg := command.NewRegistry()
	sent := 0
	reg.Register("test", command.Command{
		ID:              "send",
		Phrases:         []string{"send it"},
		Action:          func() { sent++ },
		DuringDictation: true,
		EndsDictation:   true,
	})
	r := NewRouter(reg)
	sink := &recordSink{}

	r.BindSink(sink.Sink, "")
	r.OnTranscript("hello wo", false)
	r.OnTranscript("hello world send it", true)

	if got := sink.lastFinal(t); got != "hello world" {
		t.Errorf("final delivery = %q, want %q (phrase stripped)", got, "hello world")
	}
	if sent != 1 {
		t.Errorf("send action fired %d times, want 1", sent)
	}
	if r.Bound() {
		t.Error("sink should be unbound after a send-type command")
	}

	// Further transcripts go back to command mode, not the old sink.
	before := len(sink.calls)
	r.OnTranscript("more talking", true)
	if len(sink.calls) != before {
		t.Error("unbound sink received a delivery")
	}
}

func TestRouter_SendCommandAloneDeliversBase(t *testing.T) {
	reg := command.NewRegistry()
	reg.Register("test", command.Command{
		ID:              "send",
		Phrases:         []string{"send it"},
		Action:          func() {},
		DuringDictation: true,
		EndsDictation:   true,
	})
	r := NewRouter(reg)
	sink := &recordSink{}

	r.BindSink(sink.Sink, "")
	r.OnTranscript("hello world", true)
	r.OnTranscript("send it", true)

	if got := sink.lastFinal(t); got != "hello world" {
		t.Errorf("final delivery = %q, want %q", got, "hello world")
	}
}

func TestRouter_NavigationCommandIgnoredWhileDictating(t *testing.T) {
	reg := command.NewRegistry()
	fired := 0
	reg.Register("test", command.Command{
		ID:      "go-chat",
		Phrases: []string{"go to chat"},
		Action:  func() { fired++ },
	})
	r := NewRouter(reg)
	sink := &recordSink{}

	r.BindSink(sink.Sink, "")
	r.OnTranscript("i will go to chat", true)

	if fired != 0 {
		t.Error("command without DuringDictation fired during dictation")
	}
	if got := sink.lastFinal(t); got != "i will go to chat" {
		t.Errorf("final delivery = %q, want the literal dictation", got)
	}
}

func TestRouter_EditingCommandKeepsBinding(t *testing.T) {
	reg := command.NewRegistry()
	var r *Router
	reg.Register("test", command.Command{
		ID:              "new-line",
		Phrases:         []string{"new line"},
		Action:          func() { r.Accumulator().AppendBreak() },
		DuringDictation: true,
	})
	r = NewRouter(reg)
	sink := &recordSink{}

	r.BindSink(sink.Sink, "")
	r.OnTranscript("first line new line", true)
	r.OnTranscript("second line", true)

	if !r.Bound() {
		t.Fatal("editing command must not unbind the sink")
	}
	if got := sink.lastFinal(t); got != "first line\nsecond line" {
		t.Errorf("final delivery = %q, want %q", got, "first line\nsecond line")
	}
}

func TestRouter_SingleSinkInvariant(t *testing.T) {
	reg := command.NewRegistry()
	r := NewRouter(reg)
	a := &recordSink{}
	b := &recordSink{}

	r.BindSink(a.Sink, "")
	r.OnTranscript("for a", true)
	r.BindSink(b.Sink, "")
	r.OnTranscript("for b", true)

	if len(a.calls) != 1 {
		t.Fatalf("sink A received %d calls, want 1 (only before rebind)", len(a.calls))
	}
	if got := b.lastFinal(t); got != "for b" {
		t.Errorf("sink B final = %q, want %q", got, "for b")
	}
	// Rebinding reseeded the accumulator: A's text must not leak into B.
	for _, c := range b.calls {
		if c.text == "for a for b" {
			t.Error("previous binding's text leaked into the new sink")
		}
	}
}

func TestRouter_UnbindIsIdempotent(t *testing.T) {
	reg := command.NewRegistry()
	r := NewRouter(reg)
	sink := &recordSink{}

	r.BindSink(sink.Sink, "seed")
	r.UnbindSink()
	r.UnbindSink()

	if r.Bound() {
		t.Error("router still bound after UnbindSink")
	}
	r.OnTranscript("late event", true)
	if len(sink.calls) != 0 {
		t.Error("unbound sink received a delivery")
	}
}

func TestStripPhrase(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		want   string
	}{
		{"hello world send it", "send it", "hello world"},
		{"hello world Send It!", "send it", "hello world"},
		{"send it", "send it", ""},
		{"send it.", "send it", ""},
		{"hello world", "send it", "hello world"},
	}

	for _, tt := range tests {
		if got := stripPhrase(tt.text, tt.phrase); got != tt.want {
			t.Errorf("stripPhrase(%q, %q) = %q, want %q", tt.text, tt.phrase, got, tt.want)
		}
	}
}
