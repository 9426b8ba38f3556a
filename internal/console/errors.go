package console

import "errors"

var (
	ErrEmptyCommand   = errors.New("command is empty")
	ErrCommandTooLong = errors.New("command is too long")
	ErrInvalidCommand = errors.New("command contains invalid characters")
)
