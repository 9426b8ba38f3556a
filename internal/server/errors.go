package server

import (
	"errors"
	"fmt"

	"github.com/TheGojiOG/vuserver/internal/config"
)

var (
	ErrAlreadyRunning         = errors.New("server is already running")
	ErrNotRunning             = errors.New("server is not running")
	ErrControlLinkUnavailable = errors.New("control link is not available")
	ErrMissingAdminPassword   = config.ErrMissingAdminPassword
	ErrShutdown               = errors.New("supervisor has been shut down")
)

// LaunchError is returned when the server binary is missing or cannot be
// spawned. No lifetime is created in that case.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
