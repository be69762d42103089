package tui

import (
	"reflect"
	"testing"

	"voxd/internal/config"
)

func TestSplitPhrases(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"send it, ship it", []string{"send it", "ship it"}},
		{" send it ", []string{"send it"}},
		{"send it,,  ,ship it", []string{"send it", "ship it"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := splitPhrases(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitPhrases(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHasUserChanges(t *testing.T) {
	cfg := config.Default()
	if hasUserChanges(cfg) {
		t.Error("default config should have no user changes")
	}
	cfg.Providers["deepgram"] = config.ProviderConfig{APIKey: "key"}
	if !hasUserChanges(cfg) {
		t.Error("config with a key should count as changed")
	}
}

func TestDefaultModelFor(t *testing.T) {
	if got := defaultModelFor("whisper"); got != "whisper-1" {
		t.Errorf("defaultModelFor(whisper) = %q", got)
	}
	if got := defaultModelFor("deepgram"); got != "nova-2" {
		t.Errorf("defaultModelFor(deepgram) = %q", got)
	}
}
