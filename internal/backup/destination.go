package backup

import (
	"fmt"
	"io"
	"strings"

	"github.com/TheGojiOG/vuserver/internal/config"
)

// Destination represents a backup storage destination
type Destination interface {
	// Upload uploads a file from the source reader to the destination
	Upload(filename string, reader io.Reader, sizeBytes int64) error

	// Download downloads a file from the destination to the writer
	Download(filename string, writer io.Writer) error

	// Delete removes a file from the destination
	Delete(filename string) error

	// List returns all backup files at the destination
	List() ([]BackupFile, error)

	// GetType returns the destination type identifier
	GetType() string

	// Location describes where files end up, for backup records
	Location() string
}

// BackupFile represents a file in a backup destination
type BackupFile struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt int64  `json:"created_at"` // Unix timestamp
}

// NewDestination creates a new backup destination based on config
func NewDestination(cfg config.BackupDestinationConfig) (Destination, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "local":
		if cfg.Path == "" {
			return nil, fmt.Errorf("local destination requires a path")
		}
		return NewLocalDestination(cfg.Path), nil
	case "sftp":
		return NewSFTPDestination(cfg)
	case "s3":
		return NewS3Destination(cfg)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", cfg.Type)
	}
}

// closeDestination releases connections held by destinations that keep one open.
func closeDestination(dest Destination) {
	if closer, ok := dest.(io.Closer); ok {
		closer.Close()
	}
}
