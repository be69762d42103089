// Package controller exposes the voice engine as one facade. UI surfaces and
// the daemon talk to a Controller; they never touch the session, router,
// registry or debounce guard directly.
package controller

import (
	"log"
	"time"

	"voxd/internal/command"
	"voxd/internal/debounce"
	"voxd/internal/dictation"
	"voxd/internal/recognizer"
	"voxd/internal/session"
)

// SendFunc submits whatever message is currently composed. The engine only
// gates it; composing and delivering the message belongs to the host.
type SendFunc func()

type Option func(*Controller)

// WithSendFunc supplies the submit collaborator guarded by TrySend.
func WithSendFunc(fn SendFunc) Option {
	return func(c *Controller) { c.send = fn }
}

// WithDebounceWindow overrides the send debounce window.
func WithDebounceWindow(d time.Duration) Option {
	return func(c *Controller) { c.window = d }
}

// WithClock injects the clock used by the send guard.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.clock = now }
}

// WithSessionOptions forwards options to the underlying recognition session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Controller) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// Controller composes the recognition session, the command registry, the
// dictation router and the send guard. One instance per process; every
// surface shares it.
type Controller struct {
	registry *command.Registry
	router   *dictation.Router
	sess     *session.Session
	guard    *debounce.Guard
	send     SendFunc

	window      time.Duration
	clock       func() time.Time
	sessionOpts []session.Option
}

// New builds the guard after applying options, so window and clock combine
// regardless of option order.
func New(factory recognizer.Factory, opts ...Option) *Controller {
	c := &Controller{
		registry: command.NewRegistry(),
		window:   debounce.DefaultWindow,
	}
	c.router = dictation.NewRouter(c.registry)
	for _, opt := range opts {
		opt(c)
	}
	if c.clock != nil {
		c.guard = debounce.NewWithClock(c.window, c.clock)
	} else {
		c.guard = debounce.New(c.window)
	}
	c.sess = session.New(factory, c.router.OnTranscript, c.sessionOpts...)
	return c
}

// StartListening begins (or resumes) continuous recognition.
func (c *Controller) StartListening() {
	c.sess.Start()
}

// StopListening stops recognition and releases any bound dictation sink, so
// a later restart begins in command mode.
func (c *Controller) StopListening() {
	c.sess.Stop()
	c.router.UnbindSink()
}

// ToggleListening flips on intent, not on momentary status: a session mid
// restart still counts as listening.
func (c *Controller) ToggleListening() bool {
	if c.sess.Listening() {
		c.StopListening()
		return false
	}
	c.StartListening()
	return true
}

// RequestDictation routes recognized speech to sink, seeding the transcript
// with the field's current text, and makes sure recognition is running.
func (c *Controller) RequestDictation(sink dictation.Sink, seed string) {
	c.router.BindSink(sink, seed)
	if !c.sess.Listening() {
		c.sess.Start()
	}
}

// EndDictation releases the sink. Recognition keeps running so spoken
// commands still work.
func (c *Controller) EndDictation() {
	c.router.UnbindSink()
}

// Dictating reports whether a sink currently owns recognized speech.
func (c *Controller) Dictating() bool {
	return c.router.Bound()
}

// AppendLineBreak inserts a line break into the current dictation text.
func (c *Controller) AppendLineBreak() {
	c.router.Accumulator().AppendBreak()
}

// ScratchLast removes the most recently dictated fragment.
func (c *Controller) ScratchLast() {
	c.router.Accumulator().ScratchLast()
}

// RegisterCommand adds a voice command and returns its unregister handle.
func (c *Controller) RegisterCommand(owner string, cmd command.Command) func() {
	return c.registry.Register(owner, cmd)
}

// UnregisterAll removes every command a surface registered.
func (c *Controller) UnregisterAll(owner string) {
	c.registry.UnregisterAll(owner)
}

// TrySend fires the submit collaborator unless a prior send was accepted
// within the debounce window. Reports whether the send was accepted.
func (c *Controller) TrySend() bool {
	if c.send == nil {
		return false
	}
	if !c.guard.TryFire() {
		log.Printf("controller: send suppressed by debounce")
		return false
	}
	c.send()
	return true
}

func (c *Controller) Status() session.Status {
	return c.sess.Status()
}

func (c *Controller) Listening() bool {
	return c.sess.Listening()
}

// Close tears the engine down and releases the recognizer.
func (c *Controller) Close() {
	c.sess.Close()
	c.router.UnbindSink()
}
