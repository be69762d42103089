package command

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Send It", "send it"},
		{"send it.", "send it"},
		{"SEND IT!?", "send it"},
		{"  go to chat  ", "go to chat"},
		{"go to chat...", "go to chat"},
		{"", ""},
		{"?!.", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistry_SuffixMatch(t *testing.T) {
	r := NewRegistry()
	fired := 0
	r.Register("test", Command{
		ID:      "go-chat",
		Phrases: []string{"go to chat"},
		Action:  func() { fired++ },
	})

	tests := []struct {
		text string
		want bool
	}{
		{"please go to chat", true},
		{"go to chat", true},
		{"Go To Chat!", true},
		{"go to chat please", false}, // mid-sentence, not a suffix
		{"chat", false},
		{"", false},
	}

	for _, tt := range tests {
		m, ok := r.Match(tt.text)
		if ok != tt.want {
			t.Errorf("Match(%q) matched = %v, want %v", tt.text, ok, tt.want)
			continue
		}
		if ok && m.ID != "go-chat" {
			t.Errorf("Match(%q) id = %q, want go-chat", tt.text, m.ID)
		}
	}

	m, _ := r.Match("please go to chat")
	m.Action()
	if fired != 1 {
		t.Errorf("action fired %d times, want 1", fired)
	}
}

func TestRegistry_LongestPhraseWins(t *testing.T) {
	r := NewRegistry()
	var got string
	r.Register("test", Command{
		ID:      "it",
		Phrases: []string{"it"},
		Action:  func() { got = "it" },
	})
	r.Register("test", Command{
		ID:      "send",
		Phrases: []string{"send it"},
		Action:  func() { got = "send" },
	})

	m, ok := r.Match("please send it")
	if !ok {
		t.Fatal("expected a match")
	}
	m.Action()
	if got != "send" {
		t.Errorf("matched %q, want the longer phrase's command", got)
	}
	if m.Phrase != "send it" {
		t.Errorf("matched phrase = %q, want %q", m.Phrase, "send it")
	}
}

func TestRegistry_RegistrationOrderBreaksTies(t *testing.T) {
	r := NewRegistry()
	var got string
	r.Register("test", Command{ID: "a", Phrases: []string{"stop now"}, Action: func() { got = "a" }})
	r.Register("test", Command{ID: "b", Phrases: []string{"stop now"}, Action: func() { got = "b" }})

	m, ok := r.Match("stop now")
	if !ok {
		t.Fatal("expected a match")
	}
	m.Action()
	if got != "a" {
		t.Errorf("matched %q, want first registered command", got)
	}
}

func TestRegistry_ReplaceSameID(t *testing.T) {
	r := NewRegistry()
	var got string
	r.Register("test", Command{ID: "send", Phrases: []string{"send it"}, Action: func() { got = "old" }})
	r.Register("test", Command{ID: "send", Phrases: []string{"send it"}, Action: func() { got = "new" }})

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after re-registering same id", r.Len())
	}

	m, ok := r.Match("send it")
	if !ok {
		t.Fatal("expected a match")
	}
	m.Action()
	if got != "new" {
		t.Errorf("matched %q, want replacement action", got)
	}
}

func TestRegistry_UnregisterHandle(t *testing.T) {
	r := NewRegistry()
	unregister := r.Register("test", Command{ID: "send", Phrases: []string{"send it"}, Action: func() {}})

	unregister()
	if _, ok := r.Match("send it"); ok {
		t.Error("command should not match after unregister")
	}

	// Idempotent.
	unregister()
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_UnregisterHandleDoesNotRemoveReplacement(t *testing.T) {
	r := NewRegistry()
	unregisterOld := r.Register("test", Command{ID: "send", Phrases: []string{"send it"}, Action: func() {}})
	r.Register("test", Command{ID: "send", Phrases: []string{"send it"}, Action: func() {}})

	// The stale handle must not remove the replacement entry.
	unregisterOld()
	if _, ok := r.Match("send it"); !ok {
		t.Error("replacement entry should survive the stale unregister handle")
	}
}

func TestRegistry_UnregisterAll(t *testing.T) {
	r := NewRegistry()
	r.Register("page-a", Command{ID: "a1", Phrases: []string{"alpha"}, Action: func() {}})
	r.Register("page-a", Command{ID: "a2", Phrases: []string{"beta"}, Action: func() {}})
	r.Register("page-b", Command{ID: "b1", Phrases: []string{"gamma"}, Action: func() {}})

	r.UnregisterAll("page-a")

	if _, ok := r.Match("alpha"); ok {
		t.Error("page-a command should be gone")
	}
	if _, ok := r.Match("beta"); ok {
		t.Error("page-a command should be gone")
	}
	if _, ok := r.Match("gamma"); !ok {
		t.Error("page-b command should survive")
	}
}

func TestRegistry_MatchDictationFiltersCommands(t *testing.T) {
	r := NewRegistry()
	r.Register("test", Command{ID: "nav", Phrases: []string{"go to chat"}, Action: func() {}})
	r.Register("test", Command{
		ID:              "send",
		Phrases:         []string{"send it"},
		Action:          func() {},
		DuringDictation: true,
		EndsDictation:   true,
	})

	if _, ok := r.MatchDictation("go to chat"); ok {
		t.Error("navigation command must not match in dictation mode")
	}

	m, ok := r.MatchDictation("hello world send it")
	if !ok {
		t.Fatal("send command should match in dictation mode")
	}
	if !m.EndsDictation {
		t.Error("EndsDictation flag should carry through to the match")
	}

	// Both remain matchable in command mode.
	if _, ok := r.Match("go to chat"); !ok {
		t.Error("navigation command should match in command mode")
	}
}

func TestRegistry_MultiplePhrasesLongestFirst(t *testing.T) {
	r := NewRegistry()
	r.Register("test", Command{ID: "send", Phrases: []string{"it", "send it", "send the message"}, Action: func() {}})

	m, ok := r.Match("now send it")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Phrase != "send it" {
		t.Errorf("matched phrase = %q, want the longest applicable phrase %q", m.Phrase, "send it")
	}
}
