package config

import (
	"errors"
	"fmt"
)

// ErrMissingAdminPassword is returned when Startup.txt has no admin.password.
var ErrMissingAdminPassword = errors.New("admin.password is not set in startup config")

// StartupManager reads the instance's Startup.txt. The file is read again on
// every call so edits take effect on the next server start.
type StartupManager struct {
	path string
}

// NewStartupManager creates a manager for the Startup.txt at path. Nothing
// is read until Reload is called.
func NewStartupManager(path string) *StartupManager {
	return &StartupManager{path: path}
}

// Reload reads the file from disk.
func (sm *StartupManager) Reload() (StartupConfig, error) {
	return LoadStartup(sm.path)
}

// RequireAdminPassword reloads the file and returns the RCON password.
func (sm *StartupManager) RequireAdminPassword() (string, error) {
	cfg, err := sm.Reload()
	if err != nil {
		return "", err
	}
	pwd, ok := cfg.AdminPassword()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingAdminPassword, sm.path)
	}
	return pwd, nil
}
