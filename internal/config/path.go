package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	configDirName  = "parley"
	configFileName = "config.yaml"
)

// ResolvePath picks the config file. An explicit --config path wins, then
// $XDG_CONFIG_HOME/parley/config.yaml, then ~/.config/parley/config.yaml.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate config directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, configDirName, configFileName), nil
}
