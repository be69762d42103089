package audio

import (
	"encoding/binary"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"zero channels", func(c *Config) { c.Channels = 0 }, true},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, true},
		{"zero channel buffer", func(c *Config) { c.ChannelBufferSize = 0 }, true},
		{"empty format", func(c *Config) { c.Format = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordArgs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "mic0"
	c := NewCapture(cfg)

	args := c.recordArgs()
	want := []string{"--format", "s16le", "--rate", "16000", "--channels", "1", "-", "--target", "mic0"}
	if len(args) != len(want) {
		t.Fatalf("recordArgs() = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("recordArgs()[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestWAVHeader(t *testing.T) {
	pcm := make([]byte, 320)
	wav := WAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("WAV length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}
