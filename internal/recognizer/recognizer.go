// Package recognizer defines the continuous-recognition boundary: one
// Recognizer is one physical recognition attempt against a speech provider.
// Adapters do not restart themselves; classifying a termination and
// recreating the recognizer is the session's job.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voxd/internal/audio"
)

type EventKind string

const (
	// EventStarted is emitted once the adapter is connected and consuming
	// audio.
	EventStarted EventKind = "started"
	// EventTranscript carries interim or final transcript text.
	EventTranscript EventKind = "transcript"
	// EventError reports a non-terminal adapter error.
	EventError EventKind = "error"
	// EventEnded is the last event before the channel closes.
	EventEnded EventKind = "ended"
)

type Event struct {
	Kind    EventKind
	Text    string
	IsFinal bool
	Err     error
}

// Recognizer is one continuous recognition attempt. Implementations emit
// EventStarted at most once, any number of transcript and error events, then
// exactly one EventEnded, and close the channel.
type Recognizer interface {
	Start(ctx context.Context) error
	Events() <-chan Event
	Stop() error
}

// Factory builds a fresh Recognizer per attempt; the session calls it on
// every (re)start.
type Factory func() (Recognizer, error)

// FatalError marks a failure that retrying cannot fix, such as a denied
// microphone or a rejected API key. The session stops restarting when an
// attempt ends with one.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	if e == nil || e.Err == nil {
		return "fatal recognition error"
	}
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewFatalError(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

func IsFatalError(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// Settings selects and configures a provider adapter.
type Settings struct {
	Provider   string
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Channels   int

	// Endpoint overrides the provider's default transcription URL.
	Endpoint string

	// FlushInterval is the batch window for non-streaming providers.
	FlushInterval time.Duration
}

// NewFactory returns a Factory for the configured provider. Each recognizer
// gets its own audio source from sources.
func NewFactory(settings Settings, sources audio.SourceFactory) (Factory, error) {
	switch settings.Provider {
	case "deepgram":
		if settings.APIKey == "" {
			return nil, fmt.Errorf("deepgram API key required")
		}
		return func() (Recognizer, error) {
			return NewDeepgram(settings, sources()), nil
		}, nil

	case "whisper":
		if settings.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return func() (Recognizer, error) {
			return NewWhisper(settings, sources()), nil
		}, nil

	default:
		return nil, fmt.Errorf("unsupported recognition provider: %s", settings.Provider)
	}
}
