// Package tui implements the voxd configure wizard.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"voxd/internal/config"
)

// ConfigureResult holds the outcome of a configure session.
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

var providerDisplayNames = map[string]string{
	"deepgram": "Deepgram (streaming)",
	"whisper":  "OpenAI Whisper (batch)",
}

type configSection string

const (
	sectionRecognition   configSection = "recognition"
	sectionAPIKey        configSection = "api_key"
	sectionCommands      configSection = "commands"
	sectionNotifications configSection = "notifications"
	sectionSaveExit      configSection = "save_exit"
	sectionDiscardExit   configSection = "discard_exit"
)

// Run starts the configuration wizard. A fresh install walks straight
// through the required screens; an existing config gets the edit menu.
func Run(cfg *config.Config) (*ConfigureResult, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if hasUserChanges(cfg) {
		return runEditExisting(cfg)
	}
	return runFreshInstall(cfg)
}

func hasUserChanges(cfg *config.Config) bool {
	for _, p := range cfg.Providers {
		if p.APIKey != "" {
			return true
		}
	}
	return false
}

func runFreshInstall(cfg *config.Config) (*ConfigureResult, error) {
	clearScreen()
	fmt.Println(Logo())
	fmt.Println(StyleMuted.Render("First-time setup: pick a provider and paste its API key."))
	fmt.Println()

	if err := editRecognition(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}
	if err := editAPIKey(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}
	if err := editNotifications(cfg); err != nil {
		return &ConfigureResult{Cancelled: true}, nil
	}

	confirmed, err := showSummary(cfg)
	if err != nil || !confirmed {
		return &ConfigureResult{Cancelled: true}, nil
	}
	return &ConfigureResult{Config: cfg}, nil
}

func runEditExisting(cfg *config.Config) (*ConfigureResult, error) {
	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case sectionSaveExit:
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}

		case sectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case sectionRecognition:
			if err := editRecognition(cfg); err != nil {
				continue
			}

		case sectionAPIKey:
			if err := editAPIKey(cfg); err != nil {
				continue
			}

		case sectionCommands:
			if err := editCommands(cfg); err != nil {
				continue
			}

		case sectionNotifications:
			if err := editNotifications(cfg); err != nil {
				continue
			}
		}
	}
}

func selectSection(cfg *config.Config) (configSection, error) {
	provider := providerDisplayNames[cfg.Recognition.Provider]
	keyState := "not set"
	if cfg.APIKey(cfg.Recognition.Provider) != "" {
		keyState = "configured"
	}

	options := []huh.Option[configSection]{
		huh.NewOption(fmt.Sprintf("Recognition (%s)", provider), sectionRecognition),
		huh.NewOption(fmt.Sprintf("API Key (%s)", keyState), sectionAPIKey),
		huh.NewOption("Voice Commands", sectionCommands),
		huh.NewOption(fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type), sectionNotifications),
		huh.NewOption("Save & Exit", sectionSaveExit),
		huh.NewOption("Discard & Exit", sectionDiscardExit),
	}

	var selected configSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[configSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func editRecognition(cfg *config.Config) error {
	provider := cfg.Recognition.Provider
	model := cfg.Recognition.Model
	language := cfg.Recognition.Language

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Recognition Provider").
				Options(
					huh.NewOption(providerDisplayNames["deepgram"], "deepgram"),
					huh.NewOption(providerDisplayNames["whisper"], "whisper"),
				).
				Value(&provider),
			huh.NewInput().
				Title("Model").
				Description("deepgram: nova-2 • whisper: whisper-1").
				Value(&model),
			huh.NewInput().
				Title("Language").
				Description("ISO-639-1 code, empty for auto-detect").
				Value(&language),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	if cfg.Recognition.Provider != provider && model == cfg.Recognition.Model {
		// provider switch invalidates the old model name
		model = defaultModelFor(provider)
	}
	cfg.Recognition.Provider = provider
	cfg.Recognition.Model = model
	cfg.Recognition.Language = language
	return nil
}

func defaultModelFor(provider string) string {
	if provider == "whisper" {
		return "whisper-1"
	}
	return "nova-2"
}

func editAPIKey(cfg *config.Config) error {
	provider := cfg.Recognition.Provider
	key := cfg.Providers[provider].APIKey

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("%s API Key", providerDisplayNames[provider])).
				Description("stored in config.toml; leave empty to use the environment variable").
				EchoMode(huh.EchoModePassword).
				Value(&key),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Providers[provider] = config.ProviderConfig{APIKey: key}
	return nil
}

func editCommands(cfg *config.Config) error {
	send := strings.Join(cfg.Commands.SendPhrases, ", ")
	stop := strings.Join(cfg.Commands.StopPhrases, ", ")
	newLine := strings.Join(cfg.Commands.NewLinePhrases, ", ")
	scratch := strings.Join(cfg.Commands.ScratchPhrases, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Send phrases").Description("comma separated").Value(&send),
			huh.NewInput().Title("Stop listening phrases").Value(&stop),
			huh.NewInput().Title("New line phrases").Value(&newLine),
			huh.NewInput().Title("Scratch phrases").Value(&scratch),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Commands.SendPhrases = splitPhrases(send)
	cfg.Commands.StopPhrases = splitPhrases(stop)
	cfg.Commands.NewLinePhrases = splitPhrases(newLine)
	cfg.Commands.ScratchPhrases = splitPhrases(scratch)
	return nil
}

func splitPhrases(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	kind := cfg.Notifications.Type

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Value(&enabled),
			huh.NewSelect[string]().
				Title("Notification type").
				Options(
					huh.NewOption("Desktop (notify-send)", "desktop"),
					huh.NewOption("Log only", "log"),
					huh.NewOption("None", "none"),
				).
				Value(&kind),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = kind
	return nil
}

func showSummary(cfg *config.Config) (bool, error) {
	keyState := StyleError.Render("missing")
	if cfg.APIKey(cfg.Recognition.Provider) != "" {
		keyState = StyleSuccess.Render("configured")
	}

	summary := strings.Join([]string{
		fmt.Sprintf("Provider:       %s", providerDisplayNames[cfg.Recognition.Provider]),
		fmt.Sprintf("Model:          %s", cfg.Recognition.Model),
		fmt.Sprintf("API key:        %s", keyState),
		fmt.Sprintf("Send phrases:   %s", strings.Join(cfg.Commands.SendPhrases, ", ")),
		fmt.Sprintf("Notifications:  %s", cfg.Notifications.Type),
	}, "\n")

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Description(summary).
				Affirmative("Save").
				Negative("Back").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}
