package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"voxd/internal/bus"
	"voxd/internal/config"
	"voxd/internal/daemon"
	"voxd/internal/tui"
)

func main() {
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "voxd",
	Short: "Voice control and dictation daemon for Wayland",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		dictateCmd(),
		endCmd(),
		statusCmd(),
		versionCmd(),
		stopCmd(),
		configureCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New()
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle listening on/off",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdToggle)
			if err != nil {
				return fmt.Errorf("failed to toggle listening: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func dictateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dictate",
		Short: "Start dictating into the clipboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdDictate)
			if err != nil {
				return fmt.Errorf("failed to start dictation: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func endCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End dictation, keep listening for commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdEndDictation)
			if err != nil {
				return fmt.Errorf("failed to end dictation: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current listening status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdStatus)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdVersion)
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQuit)
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration wizard for voxd.
This will guide you through setting up:
- Recognition provider and API key (Deepgram, OpenAI Whisper)
- Spoken command phrases
- Notification preferences`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = config.Default()
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	if err := config.Save(result.Config, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println()
	fmt.Println("Next Steps:")
	fmt.Println("1. Start the daemon: voxd serve")
	fmt.Println("2. Toggle listening: voxd toggle")
	fmt.Println("3. Dictate into the clipboard: voxd dictate")

	return nil
}
