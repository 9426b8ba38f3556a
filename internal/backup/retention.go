package backup

import (
	"fmt"
	"log"
	"sort"
)

// RetentionManager handles count-based backup retention
type RetentionManager struct {
	backupManager *Manager
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(backupMgr *Manager) *RetentionManager {
	return &RetentionManager{backupManager: backupMgr}
}

// EnforceRetention deletes completed backups beyond the newest retentionCount
func (rm *RetentionManager) EnforceRetention(retentionCount int) error {
	if retentionCount <= 0 {
		return nil
	}

	completed, err := rm.completedBackups()
	if err != nil {
		return err
	}

	if len(completed) <= retentionCount {
		return nil
	}

	log.Printf("[Retention] Enforcing retention policy (keep %d of %d)", retentionCount, len(completed))

	deleted := 0
	for _, backup := range completed[retentionCount:] {
		log.Printf("[Retention] Deleting old backup: %s (created: %s)",
			backup.ID, backup.CreatedAt.Format("2006-01-02 15:04:05"))

		if err := rm.backupManager.DeleteBackup(backup.ID); err != nil {
			log.Printf("[Retention] Error deleting backup %s: %v", backup.ID, err)
			continue
		}
		deleted++
	}

	log.Printf("[Retention] Retention enforcement complete: deleted %d backups", deleted)
	return nil
}

// GetRetentionStats returns retention statistics
func (rm *RetentionManager) GetRetentionStats(retentionCount int) (map[string]interface{}, error) {
	completed, err := rm.completedBackups()
	if err != nil {
		return nil, err
	}

	var totalSize, deleteSize int64
	toDelete := 0
	for i, backup := range completed {
		totalSize += backup.SizeBytes
		if retentionCount > 0 && i >= retentionCount {
			toDelete++
			deleteSize += backup.SizeBytes
		}
	}

	return map[string]interface{}{
		"total_backups":     len(completed),
		"retention_limit":   retentionCount,
		"backups_to_delete": toDelete,
		"total_size_bytes":  totalSize,
		"will_delete_size":  deleteSize,
	}, nil
}

// completedBackups returns completed backups, newest first
func (rm *RetentionManager) completedBackups() ([]*BackupRecord, error) {
	backups, err := rm.backupManager.ListBackups()
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var completed []*BackupRecord
	for _, backup := range backups {
		if backup.Status == StatusCompleted {
			completed = append(completed, backup)
		}
	}

	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].CreatedAt.After(completed[j].CreatedAt)
	})
	return completed, nil
}
