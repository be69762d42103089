// Package daemon hosts the voice engine behind the control socket: it wires
// the live configuration, the controller, the built-in voice commands and
// the clipboard dictation sink together.
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"voxd/internal/audio"
	"voxd/internal/bus"
	"voxd/internal/clipboard"
	"voxd/internal/command"
	"voxd/internal/config"
	"voxd/internal/controller"
	"voxd/internal/dictation"
	"voxd/internal/notify"
	"voxd/internal/recognizer"
	"voxd/internal/session"
)

const commandOwner = "daemon"

type Daemon struct {
	manager *config.Manager
	ctrl    *controller.Controller

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex // guards notifier and lastText
	notifier notify.Notifier
	lastText string

	// readClipboard supplies the dictation seed. Overridable in tests.
	readClipboard func(ctx context.Context) (string, error)
}

func (d *Daemon) notify() notify.Notifier {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notifier
}

func (d *Daemon) setNotifier(n notify.Notifier) {
	d.mu.Lock()
	d.notifier = n
	d.mu.Unlock()
}

func New() (*Daemon, error) {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{ctx: ctx, cancel: cancel}
	d.readClipboard = func(ctx context.Context) (string, error) {
		return clipboard.Get(ctx, clipboard.DefaultTimeout)
	}

	manager, err := config.NewManager(configPath, d.onConfigReload)
	if err != nil {
		cancel()
		return nil, err
	}
	d.manager = manager

	cfg := manager.GetConfig()
	d.setNotifier(notifierFor(cfg))

	d.ctrl = controller.New(
		d.recognizerFactory,
		controller.WithSendFunc(d.sendToClipboard),
		controller.WithDebounceWindow(cfg.Send.DebounceWindow),
		controller.WithSessionOptions(
			session.WithRestartDelay(cfg.Session.RestartDelay),
			session.WithMaxRetries(cfg.Session.MaxRetries),
			session.WithFailureFunc(d.onSessionFailure),
		),
	)

	d.registerBuiltins(cfg)
	return d, nil
}

func notifierFor(cfg *config.Config) notify.Notifier {
	if !cfg.Notifications.Enabled {
		return notify.Nop{}
	}
	return notify.New(cfg.Notifications.Type)
}

// recognizerFactory reads the live config on every attempt, so a restarted
// recognizer picks up provider or key changes without a daemon restart.
func (d *Daemon) recognizerFactory() (recognizer.Recognizer, error) {
	cfg := d.manager.GetConfig()
	factory, err := recognizer.NewFactory(cfg.ToRecognizerSettings(), func() audio.Source {
		return audio.NewCapture(cfg.ToAudioConfig())
	})
	if err != nil {
		return nil, recognizer.NewFatalError(err)
	}
	return factory()
}

func (d *Daemon) onConfigReload(cfg *config.Config) {
	d.setNotifier(notifierFor(cfg))
	d.registerBuiltins(cfg)
}

func (d *Daemon) onSessionFailure(err error) {
	d.notify().VoiceUnavailable(err.Error())
}

// registerBuiltins installs the spoken commands driven by config phrases.
// Re-registering replaces the previous set, so a reload just runs it again.
func (d *Daemon) registerBuiltins(cfg *config.Config) {
	d.ctrl.UnregisterAll(commandOwner)

	d.ctrl.RegisterCommand(commandOwner, command.Command{
		ID:              "send-message",
		Phrases:         cfg.Commands.SendPhrases,
		Action:          func() { d.ctrl.TrySend() },
		DuringDictation: true,
		EndsDictation:   true,
	})
	d.ctrl.RegisterCommand(commandOwner, command.Command{
		ID:      "stop-listening",
		Phrases: cfg.Commands.StopPhrases,
		Action: func() {
			d.ctrl.StopListening()
			d.notify().ListeningChanged(false)
		},
		DuringDictation: true,
		EndsDictation:   true,
	})
	d.ctrl.RegisterCommand(commandOwner, command.Command{
		ID:              "new-line",
		Phrases:         cfg.Commands.NewLinePhrases,
		Action:          d.ctrl.AppendLineBreak,
		DuringDictation: true,
	})
	d.ctrl.RegisterCommand(commandOwner, command.Command{
		ID:              "scratch-that",
		Phrases:         cfg.Commands.ScratchPhrases,
		Action:          d.ctrl.ScratchLast,
		DuringDictation: true,
	})
}

// dictationSink mirrors finals to the clipboard and remembers the latest
// text for the send path.
func (d *Daemon) dictationSink() dictation.Sink {
	clip := clipboard.Sink(clipboard.DefaultTimeout)
	return func(text string, isFinal bool) {
		if isFinal {
			d.mu.Lock()
			d.lastText = text
			d.mu.Unlock()
		}
		clip(text, isFinal)
	}
}

func (d *Daemon) sendToClipboard() {
	d.mu.Lock()
	text := d.lastText
	d.mu.Unlock()
	if text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, clipboard.DefaultTimeout)
	defer cancel()
	if err := clipboard.Set(ctx, text, clipboard.DefaultTimeout); err != nil {
		log.Printf("daemon: send failed: %v", err)
		return
	}
	log.Printf("daemon: sent %d chars to clipboard", len(text))
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.manager.StartWatching(d.ctx); err != nil {
		log.Printf("daemon: config watch unavailable: %v", err)
	}
	defer d.manager.Stop()
	defer d.ctrl.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Printf("daemon: received signal %v, shutting down", sig)
		d.cancel()
	}()

	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("daemon: started, listening on control socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("daemon: shutdown requested")
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("daemon: client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}

	switch line[0] {
	case bus.CmdToggle:
		on := d.ctrl.ToggleListening()
		d.notify().ListeningChanged(on)
		if on {
			fmt.Fprint(c, "OK listening\n")
		} else {
			fmt.Fprint(c, "OK stopped\n")
		}

	case bus.CmdDictate:
		seed, err := d.readClipboard(d.ctx)
		if err != nil {
			log.Printf("daemon: clipboard read failed, starting empty: %v", err)
		}
		d.ctrl.RequestDictation(d.dictationSink(), seed)
		d.notify().DictationChanged(true)
		fmt.Fprint(c, "OK dictating\n")

	case bus.CmdEndDictation:
		d.ctrl.EndDictation()
		d.notify().DictationChanged(false)
		fmt.Fprint(c, "OK dictation ended\n")

	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS status=%s dictating=%t\n", d.ctrl.Status(), d.ctrl.Dictating())

	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)

	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()

	default:
		log.Printf("daemon: unknown command: %c", line[0])
		fmt.Fprintf(c, "ERR unknown=%q\n", line[0])
	}
}
