package backup

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheGojiOG/vuserver/internal/logging"
)

// Backup record statuses
const (
	StatusCreating  = "creating"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDeleted   = "deleted"
)

var (
	ErrBackupNotFound   = errors.New("backup not found")
	ErrBackupInProgress = errors.New("a backup is already in progress")
)

// EventRecorder receives backup outcomes for the activity log.
type EventRecorder interface {
	RecordEvent(eventType, message string, details map[string]interface{})
}

// Options configures what the Manager archives.
type Options struct {
	ServerID    string
	InstanceDir string   // base directory the entries are relative to
	Entries     []string // defaults to {"Admin"}
	Exclude     []string
	WorkDir     string // staging directory for archives
	Compression CompressionConfig
	Retention   int // completed backups to keep, 0 keeps all
}

// Manager orchestrates backup operations for one server instance
type Manager struct {
	db       *sql.DB
	opts     Options
	dest     Destination
	archive  *ArchiveHandler
	recorder EventRecorder
	running  sync.Mutex
}

// BackupRecord represents a backup record in the database
type BackupRecord struct {
	ID              string                 `json:"id"`
	ServerID        string                 `json:"server_id"`
	Filename        string                 `json:"filename"`
	SizeBytes       int64                  `json:"size_bytes"`
	CreatedAt       time.Time              `json:"created_at"`
	DestinationType string                 `json:"destination_type"`
	DestinationPath string                 `json:"destination_path"`
	Status          string                 `json:"status"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy       string                 `json:"created_by,omitempty"`
}

// NewManager creates a backup manager that uploads archives to dest
func NewManager(db *sql.DB, dest Destination, opts Options) *Manager {
	if len(opts.Entries) == 0 {
		opts.Entries = []string{"Admin"}
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	opts.Compression = normalizeCompression(opts.Compression)

	return &Manager{
		db:      db,
		opts:    opts,
		dest:    dest,
		archive: NewArchiveHandler(opts.WorkDir),
	}
}

// SetEventRecorder routes backup outcomes to the activity log.
func (m *Manager) SetEventRecorder(recorder EventRecorder) {
	m.recorder = recorder
}

// Close releases the destination connection, if any.
func (m *Manager) Close() {
	closeDestination(m.dest)
}

// CreateBackup archives the instance, uploads it and applies retention.
// Only one backup runs at a time.
func (m *Manager) CreateBackup(createdBy string) (*BackupRecord, error) {
	if !m.running.TryLock() {
		return nil, ErrBackupInProgress
	}
	defer m.running.Unlock()

	backupID := "backup-" + uuid.New().String()[:8]
	log.Printf("[BackupMgr] Creating backup %s for server %s", backupID, m.opts.ServerID)

	record := &BackupRecord{
		ID:              backupID,
		ServerID:        m.opts.ServerID,
		Status:          StatusCreating,
		CreatedAt:       time.Now().UTC(),
		DestinationType: m.dest.GetType(),
		DestinationPath: m.dest.Location(),
		CreatedBy:       createdBy,
	}

	if err := m.saveBackupRecord(record); err != nil {
		return nil, fmt.Errorf("failed to save backup record: %w", err)
	}

	archiveInfo, err := m.archive.CreateArchive(backupID, m.opts.InstanceDir, m.opts.Entries, m.opts.Exclude, m.opts.Compression)
	if err != nil {
		m.fail(record, err)
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if err := m.archive.DeleteArchive(archiveInfo.Path); err != nil {
			log.Printf("[BackupMgr] Warning: Failed to cleanup staged archive: %v", err)
		}
	}()

	record.Filename = archiveInfo.Filename
	record.SizeBytes = archiveInfo.SizeBytes
	record.Metadata = map[string]interface{}{
		"directories": archiveInfo.Directories,
		"exclude":     m.opts.Exclude,
		"file_count":  archiveInfo.FileCount,
		"compression": archiveInfo.Compression,
	}

	if err := m.upload(archiveInfo); err != nil {
		m.fail(record, err)
		return nil, fmt.Errorf("failed to transfer backup: %w", err)
	}

	record.Status = StatusCompleted
	if err := m.saveBackupRecord(record); err != nil {
		log.Printf("[BackupMgr] Warning: Failed to update backup status: %v", err)
	}

	log.Printf("[BackupMgr] Backup %s created successfully: %s (%d bytes)",
		backupID, archiveInfo.Filename, archiveInfo.SizeBytes)

	m.record(true, fmt.Sprintf("Backup %s created", archiveInfo.Filename), map[string]interface{}{
		"backup_id":   backupID,
		"size_bytes":  archiveInfo.SizeBytes,
		"destination": record.DestinationType,
		"created_by":  createdBy,
	})

	if m.opts.Retention > 0 {
		if err := NewRetentionManager(m).EnforceRetention(m.opts.Retention); err != nil {
			log.Printf("[BackupMgr] Retention enforcement failed: %v", err)
		}
	}

	return record, nil
}

func (m *Manager) upload(info *ArchiveInfo) error {
	log.Printf("[BackupMgr] Transferring backup to %s destination", m.dest.GetType())

	file, err := os.Open(info.Path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	if err := m.dest.Upload(info.Filename, file, info.SizeBytes); err != nil {
		return fmt.Errorf("failed to upload to destination: %w", err)
	}

	log.Printf("[BackupMgr] Transfer complete")
	return nil
}

func (m *Manager) fail(record *BackupRecord, err error) {
	record.Status = StatusFailed
	record.ErrorMessage = err.Error()
	if saveErr := m.saveBackupRecord(record); saveErr != nil {
		log.Printf("[BackupMgr] Warning: Failed to record failure: %v", saveErr)
	}
	m.record(false, fmt.Sprintf("Backup %s failed", record.ID), map[string]interface{}{
		"backup_id": record.ID,
		"error":     err.Error(),
	})
}

func (m *Manager) record(success bool, message string, details map[string]interface{}) {
	if m.recorder != nil {
		if !success {
			m.recorder.RecordEvent(logging.ActivityError, message, details)
			return
		}
		m.recorder.RecordEvent(logging.ActivityBackupCreate, message, details)
	}
}

// RestoreBackup downloads a completed backup and extracts it into targetDir.
// The caller makes sure the server is not running.
func (m *Manager) RestoreBackup(backupID, targetDir string) error {
	log.Printf("[BackupMgr] Restoring backup %s to %s", backupID, targetDir)

	record, err := m.GetBackup(backupID)
	if err != nil {
		return err
	}

	if record.Status != StatusCompleted {
		return fmt.Errorf("backup is not in completed state: %s", record.Status)
	}

	if err := os.MkdirAll(m.opts.WorkDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	tmp, err := os.CreateTemp(m.opts.WorkDir, "restore-*")
	if err != nil {
		return fmt.Errorf("failed to create restore file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := m.dest.Download(record.Filename, tmp); err != nil {
		return fmt.Errorf("failed to download backup: %w", err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind restore file: %w", err)
	}

	if err := m.archive.ExtractArchive(tmp, record.Filename, targetDir); err != nil {
		return fmt.Errorf("failed to extract archive: %w", err)
	}

	log.Printf("[BackupMgr] Backup %s restored successfully to %s", backupID, targetDir)
	return nil
}

// DeleteBackup deletes a backup
func (m *Manager) DeleteBackup(backupID string) error {
	log.Printf("[BackupMgr] Deleting backup %s", backupID)

	record, err := m.GetBackup(backupID)
	if err != nil {
		return err
	}

	if record.Filename != "" {
		if err := m.dest.Delete(record.Filename); err != nil {
			log.Printf("[BackupMgr] Warning: Failed to delete from destination: %v", err)
		}
	}

	record.Status = StatusDeleted
	if err := m.saveBackupRecord(record); err != nil {
		return fmt.Errorf("failed to update backup record: %w", err)
	}

	log.Printf("[BackupMgr] Backup %s deleted successfully", backupID)
	return nil
}

// ListBackups returns all non-deleted backups, newest first
func (m *Manager) ListBackups() ([]*BackupRecord, error) {
	rows, err := m.db.Query(`
		SELECT id, server_id, filename, size_bytes, created_at,
		       destination_type, destination_path, status, error_message,
		       metadata, created_by
		FROM backups
		WHERE server_id = ? AND status != ?
		ORDER BY created_at DESC
	`, m.opts.ServerID, StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	backups := []*BackupRecord{}
	for rows.Next() {
		record, err := scanBackupRecord(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, record)
	}

	return backups, rows.Err()
}

// GetBackup retrieves a specific backup
func (m *Manager) GetBackup(backupID string) (*BackupRecord, error) {
	row := m.db.QueryRow(`
		SELECT id, server_id, filename, size_bytes, created_at,
		       destination_type, destination_path, status, error_message,
		       metadata, created_by
		FROM backups
		WHERE id = ? AND server_id = ?
	`, backupID, m.opts.ServerID)

	record, err := scanBackupRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, backupID)
	}
	return record, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBackupRecord(row rowScanner) (*BackupRecord, error) {
	record := &BackupRecord{}
	var metadataJSON, errorMsg, createdBy sql.NullString

	err := row.Scan(
		&record.ID,
		&record.ServerID,
		&record.Filename,
		&record.SizeBytes,
		&record.CreatedAt,
		&record.DestinationType,
		&record.DestinationPath,
		&record.Status,
		&errorMsg,
		&metadataJSON,
		&createdBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan backup record: %w", err)
	}

	record.ErrorMessage = errorMsg.String
	record.CreatedBy = createdBy.String

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			log.Printf("[BackupMgr] Warning: Failed to parse metadata: %v", err)
		}
	}

	return record, nil
}

// saveBackupRecord saves or updates a backup record
func (m *Manager) saveBackupRecord(record *BackupRecord) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = m.db.Exec(`
		INSERT OR REPLACE INTO backups
		(id, server_id, filename, size_bytes, created_at, destination_type,
		 destination_path, status, error_message, metadata, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.ServerID,
		record.Filename,
		record.SizeBytes,
		record.CreatedAt.UTC(),
		record.DestinationType,
		record.DestinationPath,
		record.Status,
		record.ErrorMessage,
		string(metadataJSON),
		record.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup record: %w", err)
	}

	return nil
}
