package config

import (
	"fmt"
	"os"
	"time"

	"voxd/internal/audio"
	"voxd/internal/recognizer"
)

type Config struct {
	Recognition   RecognitionConfig         `toml:"recognition"`
	Audio         AudioConfig               `toml:"audio"`
	Session       SessionConfig             `toml:"session"`
	Commands      CommandsConfig            `toml:"commands"`
	Send          SendConfig                `toml:"send"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

type RecognitionConfig struct {
	Provider      string        `toml:"provider"` // "deepgram" or "whisper"
	Model         string        `toml:"model"`
	Language      string        `toml:"language"`
	FlushInterval time.Duration `toml:"flush_interval"`
}

type AudioConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
}

type SessionConfig struct {
	RestartDelay time.Duration `toml:"restart_delay"`
	MaxRetries   int           `toml:"max_retries"`
}

type CommandsConfig struct {
	SendPhrases    []string `toml:"send_phrases"`
	StopPhrases    []string `toml:"stop_phrases"`
	NewLinePhrases []string `toml:"new_line_phrases"`
	ScratchPhrases []string `toml:"scratch_phrases"`
}

type SendConfig struct {
	DebounceWindow time.Duration `toml:"debounce_window"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

// envKeys maps a provider to the environment variable consulted when the
// config file carries no key for it.
var envKeys = map[string]string{
	"deepgram": "DEEPGRAM_API_KEY",
	"whisper":  "OPENAI_API_KEY",
}

func Default() *Config {
	return &Config{
		Recognition: RecognitionConfig{
			Provider:      "deepgram",
			Model:         "nova-2",
			Language:      "en",
			FlushInterval: 6 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16le",
			BufferSize:        4096,
			Device:            "",
			ChannelBufferSize: 20,
		},
		Session: SessionConfig{
			RestartDelay: 300 * time.Millisecond,
			MaxRetries:   5,
		},
		Commands: CommandsConfig{
			SendPhrases:    []string{"send it", "send message"},
			StopPhrases:    []string{"stop listening"},
			NewLinePhrases: []string{"new line"},
			ScratchPhrases: []string{"scratch that"},
		},
		Send: SendConfig{
			DebounceWindow: 2 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Providers: make(map[string]ProviderConfig),
	}
}

// APIKey resolves the key for a provider, falling back to its environment
// variable when the config file has none.
func (c *Config) APIKey(provider string) string {
	if p, ok := c.Providers[provider]; ok && p.APIKey != "" {
		return p.APIKey
	}
	if env, ok := envKeys[provider]; ok {
		return os.Getenv(env)
	}
	return ""
}

func (c *Config) ToAudioConfig() audio.Config {
	return audio.Config{
		SampleRate:        c.Audio.SampleRate,
		Channels:          c.Audio.Channels,
		Format:            c.Audio.Format,
		BufferSize:        c.Audio.BufferSize,
		Device:            c.Audio.Device,
		ChannelBufferSize: c.Audio.ChannelBufferSize,
	}
}

func (c *Config) ToRecognizerSettings() recognizer.Settings {
	return recognizer.Settings{
		Provider:      c.Recognition.Provider,
		APIKey:        c.APIKey(c.Recognition.Provider),
		Model:         c.Recognition.Model,
		Language:      c.Recognition.Language,
		SampleRate:    c.Audio.SampleRate,
		Channels:      c.Audio.Channels,
		FlushInterval: c.Recognition.FlushInterval,
	}
}

func (c *Config) Validate() error {
	switch c.Recognition.Provider {
	case "deepgram", "whisper":
	case "":
		return fmt.Errorf("invalid recognition.provider: empty")
	default:
		return fmt.Errorf("invalid recognition.provider: %s (must be deepgram or whisper)", c.Recognition.Provider)
	}
	if c.APIKey(c.Recognition.Provider) == "" {
		return fmt.Errorf("%s API key required: not found in config (providers.%s.api_key) or environment variable (%s)",
			c.Recognition.Provider, c.Recognition.Provider, envKeys[c.Recognition.Provider])
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio.sample_rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("invalid audio.channels: %d", c.Audio.Channels)
	}
	if c.Audio.Format == "" {
		return fmt.Errorf("invalid audio.format: empty")
	}
	if c.Audio.BufferSize <= 0 {
		return fmt.Errorf("invalid audio.buffer_size: %d", c.Audio.BufferSize)
	}
	if c.Audio.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid audio.channel_buffer_size: %d", c.Audio.ChannelBufferSize)
	}

	if c.Session.RestartDelay <= 0 {
		return fmt.Errorf("invalid session.restart_delay: %v", c.Session.RestartDelay)
	}
	if c.Session.MaxRetries < 0 {
		return fmt.Errorf("invalid session.max_retries: %d", c.Session.MaxRetries)
	}

	if len(c.Commands.SendPhrases) == 0 {
		return fmt.Errorf("invalid commands.send_phrases: empty")
	}
	if len(c.Commands.StopPhrases) == 0 {
		return fmt.Errorf("invalid commands.stop_phrases: empty")
	}

	if c.Send.DebounceWindow <= 0 {
		return fmt.Errorf("invalid send.debounce_window: %v", c.Send.DebounceWindow)
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true, "": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	return nil
}
