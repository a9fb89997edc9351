package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment
// variables first.
//
// Environment variables:
//   - ORGANIZER_CONFIG_PATH: config file location (default: ~/.config/organizer.toml)
//   - ORGANIZER_HOME: base directory for organizer data (default: ~/.local/share/organizer)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"output_dir":  filepath.Join(baseDir, "runs"),
	}, nil
}

// getConfigPath returns the config file path, checking ORGANIZER_CONFIG_PATH
// env var first, then falling back to ~/.config/organizer.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("ORGANIZER_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "organizer.toml"), nil
}

// getBaseDir returns the base directory for organizer data, checking
// ORGANIZER_HOME env var first, then falling back to the XDG default
// ~/.local/share/organizer.
func getBaseDir() (string, error) {
	if path := os.Getenv("ORGANIZER_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "organizer"), nil
}
