package rcon

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotOpen is returned when a request is sent without an open connection.
	ErrNotOpen = errors.New("rcon connection is not open")
	// ErrClosed is returned to requests still waiting when the connection drops.
	ErrClosed = errors.New("rcon connection closed")
)

// RequestError is returned when the server answers a request with a
// status other than OK.
type RequestError struct {
	Status string
	Words  []string
}

func (e *RequestError) Error() string {
	if len(e.Words) > 1 {
		return fmt.Sprintf("%s: %s", e.Status, strings.Join(e.Words[1:], " "))
	}
	return e.Status
}
