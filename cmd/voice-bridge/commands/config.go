package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

const (
	// appDir is the directory name under os.UserConfigDir().
	appDir = "voice-bridge"

	// configFile is the configuration filename inside appDir.
	configFile = "config.yaml"

	// transcriptsDir is the default transcript store location inside appDir.
	transcriptsDir = "transcripts"
)

// Config holds file-backed defaults for the CLI. Flags override any value
// set here.
type Config struct {
	// Port is the embedded relay port.
	Port int `yaml:"port,omitempty"`

	// AgentName is the display name shown to paired clients.
	AgentName string `yaml:"agent_name,omitempty"`

	// AgentCommand is the agent CLI binary run for each turn.
	AgentCommand string `yaml:"agent_command,omitempty"`

	// Agent optionally selects a named agent.
	Agent string `yaml:"agent,omitempty"`

	// RelayURL is the relay used by the chat command.
	RelayURL string `yaml:"relay_url,omitempty"`

	// PWADir is the directory of client app static files to serve.
	PWADir string `yaml:"pwa_dir,omitempty"`

	// TranscriptDir overrides where transcripts are stored.
	TranscriptDir string `yaml:"transcript_dir,omitempty"`
}

// loadConfig reads the config file at path, or the default location when
// path is empty. A missing file yields an empty config, not an error.
func loadConfig(path string) (*Config, error) {
	if path == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine config directory: %w", err)
		}
		path = filepath.Join(base, appDir, configFile)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// defaultTranscriptDir returns the transcript location for a config,
// falling back to the OS config directory.
func defaultTranscriptDir(cfg *Config) (string, error) {
	if cfg != nil && cfg.TranscriptDir != "" {
		return cfg.TranscriptDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, transcriptsDir), nil
}

// stringOr prefers a flag value the user changed, then the config value,
// then the flag default.
func stringOr(changed bool, flagVal, cfgVal string) string {
	if changed || cfgVal == "" {
		return flagVal
	}
	return cfgVal
}

// intOr is stringOr for integers.
func intOr(changed bool, flagVal, cfgVal int) int {
	if changed || cfgVal == 0 {
		return flagVal
	}
	return cfgVal
}
