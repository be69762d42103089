package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// Frame is one chunk of raw PCM read from the microphone.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Source supplies a stream of PCM frames to a recognizer adapter. The
// adapter owns the source for the lifetime of one recognition attempt.
type Source interface {
	Start(ctx context.Context) (<-chan Frame, <-chan error, error)
	Stop() error
}

// SourceFactory builds a fresh Source per recognition attempt.
type SourceFactory func() Source

type Config struct {
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16le",
		BufferSize:        4096,
		ChannelBufferSize: 20,
	}
}

// Capture reads microphone audio by spawning pw-record and streaming its
// stdout. It implements Source.
type Capture struct {
	config Config

	mu      sync.Mutex // guards cmd, cancel and running
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	running bool

	wg sync.WaitGroup
}

func NewCapture(config Config) *Capture {
	return &Capture{config: config}
}

func (c *Capture) Start(ctx context.Context) (<-chan Frame, <-chan error, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("capture already running")
	}
	c.mu.Unlock()

	if err := c.config.validate(); err != nil {
		return nil, nil, err
	}
	if err := CheckPipeWireAvailable(ctx); err != nil {
		return nil, nil, fmt.Errorf("PipeWire not available: %w", err)
	}

	captureCtx, cancel := context.WithCancel(ctx)
	frameCh := make(chan Frame, c.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	c.mu.Lock()
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.captureLoop(captureCtx, frameCh, errCh)

	return frameCh, errCh, nil
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Capture) captureLoop(ctx context.Context, frameCh chan<- Frame, errCh chan<- error) {
	defer func() {
		close(frameCh)
		close(errCh)

		c.mu.Lock()
		if c.cmd != nil {
			_ = c.cmd.Wait() // reap the child
			c.cmd = nil
		}
		c.running = false
		c.mu.Unlock()

		c.wg.Done()
	}()

	cmd := exec.CommandContext(ctx, "pw-record", c.recordArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		emitErr(errCh, fmt.Errorf("create stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		emitErr(errCh, fmt.Errorf("create stderr pipe: %w", err))
		return
	}

	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()

	if err := cmd.Start(); err != nil {
		emitErr(errCh, fmt.Errorf("start pw-record: %w", err))
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Printf("audio: pw-record: %s", scanner.Text())
		}
	}()

	buffer := make([]byte, c.config.BufferSize)
	dropped := 0
	lastDropLog := time.Now()

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buffer[:n])

			select {
			case frameCh <- Frame{Data: data, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			default:
				dropped++
				if time.Since(lastDropLog) > time.Second {
					log.Printf("audio: dropped %d frames due to backpressure", dropped)
					lastDropLog = time.Now()
					dropped = 0
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return
			}
			emitErr(errCh, fmt.Errorf("read audio: %w", readErr))
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Capture) recordArgs() []string {
	args := []string{
		"--format", c.config.Format,
		"--rate", strconv.Itoa(c.config.SampleRate),
		"--channels", strconv.Itoa(c.config.Channels),
		"-", // stream to stdout
	}
	if c.config.Device != "" {
		args = append(args, "--target", c.config.Device)
	}
	return args
}

func emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
	log.Printf("audio: %v", err)
}

func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(checkCtx, "pw-cli", "info").Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (cfg Config) validate() error {
	if cfg.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", cfg.SampleRate)
	}
	if cfg.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", cfg.Channels)
	}
	if cfg.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", cfg.BufferSize)
	}
	if cfg.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", cfg.ChannelBufferSize)
	}
	if cfg.Format == "" {
		return fmt.Errorf("invalid Format: empty")
	}
	return nil
}
