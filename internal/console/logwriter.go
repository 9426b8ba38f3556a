package console

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogWriter handles writing console output to log files
type LogWriter struct {
	serverID     string
	logPath      string
	out          *lumberjack.Logger
	db           *sql.DB
	mu           sync.Mutex
	currentLogID int64
}

// LogWriterConfig contains configuration for log writer
type LogWriterConfig struct {
	ServerID   string
	LogDir     string
	MaxSizeMB  int // Max size before rotation
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	DB         *sql.DB
}

// NewLogWriter creates a new log writer
func NewLogWriter(config *LogWriterConfig) (*LogWriter, error) {
	// Ensure log directory exists
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(config.LogDir, fmt.Sprintf("console-%s.log", config.ServerID))

	lw := &LogWriter{
		serverID: config.ServerID,
		logPath:  logPath,
		out: &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		},
		db: config.DB,
	}

	// Record in database
	if err := lw.recordLogFile(); err != nil {
		log.Printf("[LogWriter] Failed to record log file: %v", err)
	}

	log.Printf("[LogWriter] Created log writer for server %s: %s", config.ServerID, logPath)
	return lw, nil
}

// Path returns the active log file path.
func (lw *LogWriter) Path() string {
	return lw.logPath
}

// WriteLine writes a line to the log file
func (lw *LogWriter) WriteLine(line string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(lw.out, "[%s] %s\n", timestamp, line); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

// Rotate closes the active file, moves it aside and starts a new one.
func (lw *LogWriter) Rotate() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.out.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate log: %w", err)
	}

	// Mark old log as inactive
	if lw.db != nil && lw.currentLogID > 0 {
		_, err := lw.db.Exec(`
			UPDATE console_logs
			SET is_active = 0, rotated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, lw.currentLogID)
		if err != nil {
			log.Printf("[LogWriter] Failed to mark old log as inactive: %v", err)
		}
	}

	return lw.recordLogFile()
}

// Close closes the log file
func (lw *LogWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.db != nil && lw.currentLogID > 0 {
		info, err := os.Stat(lw.logPath)
		if err == nil {
			if _, err := lw.db.Exec(`UPDATE console_logs SET size_bytes = ? WHERE id = ?`, info.Size(), lw.currentLogID); err != nil {
				log.Printf("[LogWriter] Failed to update log size: %v", err)
			}
		}
	}

	return lw.out.Close()
}

// recordLogFile records log file metadata in database
func (lw *LogWriter) recordLogFile() error {
	if lw.db == nil {
		return nil
	}

	result, err := lw.db.Exec(`
		INSERT INTO console_logs (server_id, log_path, is_active)
		VALUES (?, ?, 1)
	`, lw.serverID, lw.logPath)

	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err == nil {
		lw.currentLogID = id
	}

	return nil
}

// rotatedLogPattern matches the backup names lumberjack gives rotated files.
var rotatedLogPattern = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.\d{3}\.log(\.gz)?$`)

// CleanupOldLogs deletes rotated console logs older than the retention
// period and marks their records as deleted.
func CleanupOldLogs(db *sql.DB, logDir string, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "console-") || !rotatedLogPattern.MatchString(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		// Delete physical file
		if err := os.Remove(filepath.Join(logDir, name)); err != nil {
			log.Printf("[LogWriter] Failed to delete log file %s: %v", name, err)
			continue
		}
		deleted++
	}

	if db != nil {
		_, err := db.Exec(`
			UPDATE console_logs
			SET deleted_at = CURRENT_TIMESTAMP
			WHERE rotated_at IS NOT NULL AND rotated_at < ? AND deleted_at IS NULL
		`, cutoff.UTC())
		if err != nil {
			log.Printf("[LogWriter] Failed to mark logs as deleted: %v", err)
		}
	}

	log.Printf("[LogWriter] Cleaned up %d old log files (retention: %d days)", deleted, retentionDays)
	return nil
}
