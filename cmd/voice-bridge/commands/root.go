package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Global configuration (loaded at init time)
	globalConfig *Config

	// configLoadErr stores the error from loadConfig for deferred
	// reporting, so commands that never touch the config still run.
	configLoadErr error
)

var rootCmd = &cobra.Command{
	Use:   "voice-bridge",
	Short: "Talk to a local conversational agent from your browser",
	Long: `voice-bridge - pair a browser with a local conversational agent.

The bridge runs an embedded relay, registers the local agent on it, and
prints a short pairing code. Opening the relay URL in a browser and
entering the code starts a full-duplex voice/text conversation with the
agent; each user turn is executed against the agent CLI and the reply is
spoken back.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/voice-bridge/config.yaml
  Linux:   ~/.config/voice-bridge/config.yaml
  Windows: %AppData%/voice-bridge/config.yaml

Examples:
  # Run the embedded relay on port 3000 and wait for a browser to pair
  voice-bridge start --agent-name "Claw"

  # Host the relay alone (agents connect from elsewhere)
  voice-bridge serve --port 8080 --pwa ./pwa

  # Pair with an agent from a terminal instead of a browser
  voice-bridge chat 042817

  # Show what was said in a recorded session
  voice-bridge history <session-id>`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: OS config dir)")
}

func initConfig() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// GetConfig returns the global configuration.
func GetConfig() (*Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
