package notify

import (
	"fmt"
	"log"
	"os/exec"
)

type Notifier interface {
	ListeningChanged(on bool)
	DictationChanged(on bool)
	VoiceUnavailable(msg string)
}

// New picks a notifier by config value. Unknown kinds fall back to logging.
func New(kind string) Notifier {
	switch kind {
	case "desktop":
		return Desktop{}
	case "none":
		return Nop{}
	default:
		return Log{}
	}
}

type Desktop struct{}

func (Desktop) ListeningChanged(on bool) {
	state := "Stopped"
	if on {
		state = "Started"
	}
	send(fmt.Sprintf("Voxd: %s Listening", state))
}

func (Desktop) DictationChanged(on bool) {
	state := "Ended"
	if on {
		state = "Started"
	}
	send(fmt.Sprintf("Voxd: Dictation %s", state))
}

func (Desktop) VoiceUnavailable(msg string) {
	cmd := exec.Command("notify-send", "-a", "Voxd", "-u", "critical",
		"Voxd: Voice Unavailable", msg)
	if err := cmd.Run(); err != nil {
		log.Printf("notify: failed to send error notification: %v", err)
	}
}

func send(msg string) {
	cmd := exec.Command("notify-send", "-a", "Voxd", msg)
	if err := cmd.Run(); err != nil {
		log.Printf("notify: failed to send notification: %v", err)
	}
}

// Log writes notifications to the daemon log instead of the desktop.
type Log struct{}

func (Log) ListeningChanged(on bool) {
	if on {
		log.Printf("notify: listening started")
	} else {
		log.Printf("notify: listening stopped")
	}
}

func (Log) DictationChanged(on bool) {
	if on {
		log.Printf("notify: dictation started")
	} else {
		log.Printf("notify: dictation ended")
	}
}

func (Log) VoiceUnavailable(msg string) {
	log.Printf("notify: voice unavailable: %s", msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) ListeningChanged(on bool)    {}
func (Nop) DictationChanged(on bool)    {}
func (Nop) VoiceUnavailable(msg string) {}
