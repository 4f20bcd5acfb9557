package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "RUNWATCH_CONFIG"

// Discover returns the config file to load. An explicit path wins; otherwise
// $RUNWATCH_CONFIG, ~/.config/runwatch/config.yaml, /etc/runwatch/config.yaml
// and ./config.yaml are tried in that order.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, candidate := range candidates() {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/runwatch/config.yaml, /etc/runwatch/config.yaml, ./config.yaml)", EnvConfigPath)
}

func candidates() []string {
	var paths []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = append(paths, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "runwatch", "config.yaml"))
	}
	return append(paths, "/etc/runwatch/config.yaml", "./config.yaml")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
