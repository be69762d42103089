package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"voxd/internal/audio"
)

const defaultFlushInterval = 6 * time.Second

// minFlushBytes skips windows that contain too little audio to be worth a
// request (roughly a quarter second at 16kHz mono s16).
const minFlushBytes = 8000

// Whisper approximates continuous recognition over a batch transcription
// API: it buffers PCM and transcribes one window per flush interval, emitting
// each window's text as a final fragment. Hosts without a streaming provider
// still get a working recognizer this way; there are no interim results.
type Whisper struct {
	settings Settings
	source   audio.Source
	client   *openai.Client

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	events chan Event
	wg     sync.WaitGroup
}

func NewWhisper(settings Settings, source audio.Source) *Whisper {
	if settings.Model == "" {
		settings.Model = openai.Whisper1
	}
	if settings.FlushInterval <= 0 {
		settings.FlushInterval = defaultFlushInterval
	}
	return &Whisper{
		settings: settings,
		source:   source,
		client:   openai.NewClient(settings.APIKey),
		events:   make(chan Event, 64),
	}
}

func (w *Whisper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("recognizer already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	frames, errCh, err := w.source.Start(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("start audio source: %w", err)
	}

	w.cancel = cancel
	w.started = true

	w.wg.Add(1)
	go w.run(runCtx, frames, errCh)

	go func() {
		w.wg.Wait()
		w.events <- Event{Kind: EventEnded}
		close(w.events)
	}()

	w.events <- Event{Kind: EventStarted}
	log.Printf("whisper: started, model=%s flush=%v", w.settings.Model, w.settings.FlushInterval)
	return nil
}

func (w *Whisper) run(ctx context.Context, frames <-chan audio.Frame, errCh <-chan error) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.settings.FlushInterval)
	defer ticker.Stop()

	var pcm []byte
	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background(), pcm)
			return

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				w.events <- Event{Kind: EventError, Err: fmt.Errorf("audio capture: %w", err)}
			}

		case frame, ok := <-frames:
			if !ok {
				w.flush(ctx, pcm)
				return
			}
			pcm = append(pcm, frame.Data...)

		case <-ticker.C:
			w.flush(ctx, pcm)
			pcm = pcm[:0]
		}
	}
}

// flush transcribes one buffered window and emits its text as final.
func (w *Whisper) flush(ctx context.Context, pcm []byte) {
	if len(pcm) < minFlushBytes {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := w.client.CreateTranscription(reqCtx, openai.AudioRequest{
		Model:    w.settings.Model,
		Language: w.settings.Language,
		FilePath: "window.wav",
		Reader:   bytes.NewReader(audio.WAV(pcm, w.settings.SampleRate, w.settings.Channels)),
	})
	if err != nil {
		w.events <- Event{Kind: EventError, Err: fmt.Errorf("transcription request: %w", err)}
		return
	}

	if text := strings.TrimSpace(resp.Text); text != "" {
		w.events <- Event{Kind: EventTranscript, Text: text, IsFinal: true}
	}
}

func (w *Whisper) Events() <-chan Event {
	return w.events
}

func (w *Whisper) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	cancel := w.cancel
	w.mu.Unlock()

	_ = w.source.Stop()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	return nil
}
