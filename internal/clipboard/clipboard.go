// Package clipboard delivers dictated text to the Wayland clipboard through
// wl-clipboard, which makes any focused input field a usable dictation
// target without compositor-specific typing tools.
package clipboard

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"voxd/internal/dictation"
)

const DefaultTimeout = 3 * time.Second

func Get(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "wl-paste", "--no-newline")
	output, err := cmd.Output()
	if err != nil {
		// empty clipboard exits non-zero; treat as empty
		return "", nil
	}

	return string(output), nil
}

func Set(ctx context.Context, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "wl-copy")
	cmd.Stdin = strings.NewReader(text)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("wl-copy failed: %w", err)
	}

	return nil
}

func CheckAvailable() error {
	if _, err := exec.LookPath("wl-copy"); err != nil {
		return fmt.Errorf("wl-copy not found: %w (install wl-clipboard)", err)
	}

	if _, err := exec.LookPath("wl-paste"); err != nil {
		return fmt.Errorf("wl-paste not found: %w (install wl-clipboard)", err)
	}

	return nil
}

// Sink returns a dictation sink that mirrors every delivery to the
// clipboard, so the accumulated text is always one paste away.
func Sink(timeout time.Duration) dictation.Sink {
	return func(text string, isFinal bool) {
		if !isFinal {
			return
		}
		if err := Set(context.Background(), text, timeout); err != nil {
			log.Printf("clipboard: failed to copy dictation: %v", err)
		}
	}
}
