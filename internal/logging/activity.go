package logging

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActivityLogger provides centralized logging of server lifecycle and
// operator activity
type ActivityLogger struct {
	db          *sql.DB
	serverID    string
	logDir      string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// Activity represents a logged activity
type Activity struct {
	Timestamp    time.Time              `json:"timestamp"`
	ServerID     string                 `json:"server_id"`
	Actor        string                 `json:"actor,omitempty"`
	ActivityType string                 `json:"activity_type"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Activity type constants
const (
	ActivityServerStart        = "server.start"
	ActivityServerStop         = "server.stop"
	ActivityServerRestart      = "server.restart"
	ActivityServerCrash        = "server.crash"
	ActivityServerCrashRestart = "server.crash_restart"
	ActivityControlLinkUp      = "rcon.connected"
	ActivityControlLinkFailed  = "rcon.login_failed"
	ActivityCommandExecute     = "command.execute"
	ActivityBackupCreate       = "backup.create"
	ActivityScheduleRun        = "schedule.run"
	ActivityAPIRequest         = "api.request"
	ActivityError              = "error"
)

// NewActivityLogger creates a new activity logger for one server instance
func NewActivityLogger(db *sql.DB, serverID, logDir string) (*ActivityLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &ActivityLogger{
		db:       db,
		serverID: serverID,
		logDir:   logDir,
	}

	log.Printf("[ActivityLogger] Initialized (log directory: %s)", logDir)

	return logger, nil
}

// LogActivity logs an activity to both database and file
func (al *ActivityLogger) LogActivity(activity *Activity) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}
	if activity.ServerID == "" {
		activity.ServerID = al.serverID
	}

	// Log to database
	if err := al.logToDatabase(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to database: %v", err)
	}

	// Log to file
	if err := al.logToFile(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to file: %v", err)
		return err
	}

	return nil
}

// RecordEvent logs a successful system event. Failures are only logged.
func (al *ActivityLogger) RecordEvent(eventType, message string, details map[string]interface{}) {
	activity := &Activity{
		ActivityType: eventType,
		Description:  message,
		Metadata:     details,
		Success:      eventType != ActivityServerCrash && eventType != ActivityControlLinkFailed && eventType != ActivityError,
	}
	if errMsg, ok := details["error"].(string); ok {
		activity.ErrorMessage = errMsg
	}
	if err := al.LogActivity(activity); err != nil {
		log.Printf("[ActivityLogger] Failed to record %s: %v", eventType, err)
	}
}

// LogCommandExecute logs a command sent over the control link
func (al *ActivityLogger) LogCommandExecute(actor, command string, response []string, cmdErr error) error {
	metadata := map[string]interface{}{
		"command": command,
	}

	output := ""
	if len(response) > 0 {
		raw, _ := json.Marshal(response)
		output = string(raw)
		// Truncate output if too long
		if len(output) > 1000 {
			metadata["response"] = output[:1000] + "... (truncated)"
		} else {
			metadata["response"] = output
		}
	}

	errorMsg := ""
	if cmdErr != nil {
		errorMsg = cmdErr.Error()
		metadata["error"] = errorMsg
	}

	if al.db != nil {
		if _, err := al.db.Exec(`
			INSERT INTO console_commands (server_id, source, command, response, success)
			VALUES (?, ?, ?, ?, ?)
		`, al.serverID, actor, command, output, cmdErr == nil); err != nil {
			log.Printf("[ActivityLogger] Error recording command history: %v", err)
		}
	}

	return al.LogActivity(&Activity{
		Actor:        actor,
		ActivityType: ActivityCommandExecute,
		Description:  fmt.Sprintf("Command executed: %s", command),
		Metadata:     metadata,
		Success:      cmdErr == nil,
		ErrorMessage: errorMsg,
	})
}

// LogError logs a general error
func (al *ActivityLogger) LogError(errorType string, errorMsg string, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	metadata["error_type"] = errorType

	return al.LogActivity(&Activity{
		ActivityType: ActivityError,
		Description:  errorType,
		Metadata:     metadata,
		Success:      false,
		ErrorMessage: errorMsg,
	})
}

// GetActivities retrieves activities from the database
func (al *ActivityLogger) GetActivities(activityType string, since time.Time, limit int) ([]*Activity, error) {
	if al.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	query := `
		SELECT timestamp, server_id, actor, activity_type, description, metadata, success, error_message
		FROM activity_log
		WHERE server_id = ?
	`
	args := []interface{}{al.serverID}

	if activityType != "" {
		query += " AND activity_type = ?"
		args = append(args, activityType)
	}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*Activity, 0)

	for rows.Next() {
		activity := &Activity{}
		var actor, description, metadataJSON, errorMessage sql.NullString

		err := rows.Scan(
			&activity.Timestamp,
			&activity.ServerID,
			&actor,
			&activity.ActivityType,
			&description,
			&metadataJSON,
			&activity.Success,
			&errorMessage,
		)

		if err != nil {
			log.Printf("[ActivityLogger] Error scanning row: %v", err)
			continue
		}

		activity.Actor = actor.String
		activity.Description = description.String
		activity.ErrorMessage = errorMessage.String

		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &activity.Metadata); err != nil {
				log.Printf("[ActivityLogger] Error unmarshaling metadata: %v", err)
			}
		}

		activities = append(activities, activity)
	}

	return activities, rows.Err()
}

// GetRecentActivities retrieves the most recent activities
func (al *ActivityLogger) GetRecentActivities(limit int) ([]*Activity, error) {
	return al.GetActivities("", time.Time{}, limit)
}

// logToDatabase logs an activity to the database
func (al *ActivityLogger) logToDatabase(activity *Activity) error {
	if al.db == nil {
		return nil // Database not configured
	}

	metadataJSON, err := json.Marshal(activity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO activity_log (
			timestamp, server_id, actor, activity_type,
			description, metadata, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = al.db.Exec(
		query,
		activity.Timestamp.UTC(),
		activity.ServerID,
		activity.Actor,
		activity.ActivityType,
		activity.Description,
		string(metadataJSON),
		activity.Success,
		activity.ErrorMessage,
	)

	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

// logToFile logs an activity to a JSON file
func (al *ActivityLogger) logToFile(activity *Activity) error {
	currentDate := time.Now().Format("2006-01-02")

	if al.currentFile == nil || al.currentDate != currentDate {
		if err := al.rotateLogFile(currentDate); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	line, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	_, err = fmt.Fprintf(al.currentFile, "%s\n", line)
	if err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	// Sync to disk for important events
	switch activity.ActivityType {
	case ActivityServerStart, ActivityServerStop, ActivityServerCrash, ActivityError:
		al.currentFile.Sync()
	}

	return nil
}

// rotateLogFile rotates the log file for a new day
func (al *ActivityLogger) rotateLogFile(date string) error {
	previous := al.currentDate
	if al.currentFile != nil {
		al.currentFile.Close()
		al.currentFile = nil
	}

	logPath := filepath.Join(al.logDir, fmt.Sprintf("activity-%s.log", date))

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	al.currentFile = file
	al.currentDate = date

	log.Printf("[ActivityLogger] Rotated log file to: %s", logPath)

	if previous != "" && previous != date {
		go al.compressLog(filepath.Join(al.logDir, fmt.Sprintf("activity-%s.log", previous)))
	}

	return nil
}

// compressLog gzips a finished daily log and removes the original
func (al *ActivityLogger) compressLog(path string) {
	if err := gzipFile(path); err != nil {
		log.Printf("[ActivityLogger] Failed to compress %s: %v", path, err)
	}
}

func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	src.Close()
	return os.Remove(path)
}

// Close closes the activity logger
func (al *ActivityLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.currentFile != nil {
		err := al.currentFile.Close()
		al.currentFile = nil
		return err
	}

	return nil
}

// CleanupOldActivities removes activities older than a specified duration
func (al *ActivityLogger) CleanupOldActivities(olderThan time.Duration) error {
	if al.db == nil {
		return fmt.Errorf("database not available")
	}

	cutoff := time.Now().Add(-olderThan).UTC()

	result, err := al.db.Exec(`
		DELETE FROM activity_log
		WHERE timestamp < ?
	`, cutoff)

	if err != nil {
		return fmt.Errorf("failed to cleanup old activities: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	log.Printf("[ActivityLogger] Cleaned up %d activities older than %v", rowsAffected, olderThan)

	return nil
}

// GetActivityStats counts activities per type since a point in time
func (al *ActivityLogger) GetActivityStats(since time.Time) (map[string]int, error) {
	if al.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	query := `
		SELECT activity_type, COUNT(*) as count
		FROM activity_log
		WHERE server_id = ?
	`
	args := []interface{}{al.serverID}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}

	query += " GROUP BY activity_type"

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var activityType string
		var count int
		if err := rows.Scan(&activityType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan activity stats: %w", err)
		}
		stats[activityType] = count
	}

	return stats, rows.Err()
}
