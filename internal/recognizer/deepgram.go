package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"voxd/internal/audio"
)

const deepgramEndpoint = "wss://api.deepgram.com/v1/listen"

// Deepgram streams microphone audio to Deepgram's realtime transcription
// websocket and emits interim and final transcript events.
type Deepgram struct {
	settings Settings
	source   audio.Source

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	cancel  context.CancelFunc

	events chan Event
	wg     sync.WaitGroup
}

// deepgramCloseStream signals end of audio to the server.
type deepgramCloseStream struct {
	Type string `json:"type"`
}

// Deepgram websocket response types (incoming).
type deepgramResponse struct {
	Type        string           `json:"type"`
	Channel     *deepgramChannel `json:"channel,omitempty"`
	Error       *deepgramError   `json:"error,omitempty"`
	IsFinal     bool             `json:"is_final,omitempty"`
	SpeechFinal bool             `json:"speech_final,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramError struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

func NewDeepgram(settings Settings, source audio.Source) *Deepgram {
	return &Deepgram{
		settings: settings,
		source:   source,
		events:   make(chan Event, 64),
	}
}

func (d *Deepgram) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("recognizer already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	wsURL := d.buildURL()
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.settings.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(runCtx, wsURL, headers)
	if err != nil {
		cancel()
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return NewFatalError(fmt.Errorf("deepgram rejected credentials: %w", err))
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	d.conn = conn

	frames, errCh, err := d.source.Start(runCtx)
	if err != nil {
		conn.Close()
		cancel()
		return fmt.Errorf("start audio source: %w", err)
	}

	d.started = true
	d.wg.Add(2)
	go d.pumpAudio(runCtx, frames, errCh)
	go d.readLoop(runCtx)

	// readLoop may be blocked on ReadMessage; closing the connection is the
	// only way cancellation reaches it.
	go func() {
		<-runCtx.Done()
		d.closeConn()
	}()

	// EventEnded is emitted exactly once, after both workers exit.
	go func() {
		d.wg.Wait()
		d.events <- Event{Kind: EventEnded}
		close(d.events)
	}()

	d.events <- Event{Kind: EventStarted}
	log.Printf("deepgram: connected, model=%s language=%s", d.settings.Model, d.settings.Language)
	return nil
}

func (d *Deepgram) buildURL() string {
	endpoint := d.settings.Endpoint
	if endpoint == "" {
		endpoint = deepgramEndpoint
	}
	u, _ := url.Parse(endpoint)
	q := u.Query()
	if d.settings.Model != "" {
		q.Set("model", d.settings.Model)
	}
	if d.settings.Language != "" {
		q.Set("language", d.settings.Language)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.settings.SampleRate))
	q.Set("channels", strconv.Itoa(d.settings.Channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *Deepgram) pumpAudio(ctx context.Context, frames <-chan audio.Frame, errCh <-chan error) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				d.events <- Event{Kind: EventError, Err: fmt.Errorf("audio capture: %w", err)}
			}
		case frame, ok := <-frames:
			if !ok {
				// Microphone gone; ask the server to flush what it has.
				d.mu.Lock()
				conn := d.conn
				d.mu.Unlock()
				if conn != nil {
					_ = conn.WriteJSON(deepgramCloseStream{Type: "CloseStream"})
				}
				return
			}
			d.mu.Lock()
			conn := d.conn
			d.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
				d.events <- Event{Kind: EventError, Err: fmt.Errorf("websocket write: %w", err)}
				return
			}
		}
	}
}

func (d *Deepgram) readLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		conn := d.conn
		d.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				// Intended stop.
			default:
				log.Printf("deepgram: read error: %v", err)
				d.events <- Event{Kind: EventError, Err: fmt.Errorf("websocket read: %w", err)}
			}
			return
		}

		for _, ev := range parseDeepgramMessage(message) {
			d.events <- ev
		}
	}
}

// parseDeepgramMessage maps one server message to zero or more events.
func parseDeepgramMessage(message []byte) []Event {
	var msg deepgramResponse
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("deepgram: parse error: %v", err)
		return nil
	}

	switch msg.Type {
	case "Results":
		if msg.Channel == nil || len(msg.Channel.Alternatives) == 0 {
			return nil
		}
		text := msg.Channel.Alternatives[0].Transcript
		if text == "" {
			return nil
		}
		return []Event{{Kind: EventTranscript, Text: text, IsFinal: msg.IsFinal}}

	case "Metadata", "SpeechStarted", "UtteranceEnd":
		return nil

	case "Error":
		detail := "unknown error"
		if msg.Error != nil {
			detail = msg.Error.Message
		}
		return []Event{{Kind: EventError, Err: fmt.Errorf("deepgram: %s", detail)}}

	default:
		log.Printf("deepgram: unknown message type: %s", msg.Type)
		return nil
	}
}

func (d *Deepgram) Events() <-chan Event {
	return d.events
}

// closeConn tears down the websocket exactly once. Safe to call from the
// cancellation watcher and Stop concurrently.
func (d *Deepgram) closeConn() {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}

// Stop ends the attempt. The events channel still delivers EventEnded and
// then closes.
func (d *Deepgram) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = d.source.Stop()
	d.closeConn()
	d.wg.Wait()
	return nil
}
