package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/backup"
)

// BackupService is the backup manager surface exposed over HTTP.
type BackupService interface {
	CreateBackup(createdBy string) (*backup.BackupRecord, error)
	RestoreBackup(backupID, targetDir string) error
	DeleteBackup(backupID string) error
	ListBackups() ([]*backup.BackupRecord, error)
	GetBackup(backupID string) (*backup.BackupRecord, error)
}

// BackupHandler handles backup-related HTTP requests
type BackupHandler struct {
	backups     BackupService
	ctrl        ServerController
	instanceDir string
}

// NewBackupHandler creates a new backup handler. Restores extract into instanceDir.
func NewBackupHandler(backups BackupService, ctrl ServerController, instanceDir string) *BackupHandler {
	return &BackupHandler{
		backups:     backups,
		ctrl:        ctrl,
		instanceDir: instanceDir,
	}
}

// ListBackups lists all backups
// GET /api/v1/server/backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	backups, err := h.backups.ListBackups()
	if err != nil {
		log.Printf("[Backups] Failed to list backups: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
		return
	}

	if backups == nil {
		backups = []*backup.BackupRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"backups": backups,
		"count":   len(backups),
	})
}

// CreateBackup runs a backup synchronously and returns its record
// POST /api/v1/server/backups
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	record, err := h.backups.CreateBackup(actorFrom(c, "api"))
	if err != nil {
		if errors.Is(err, backup.ErrBackupInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[Backups] Backup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Backup failed",
			"details": err.Error(),
			"backup":  record,
		})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// GetBackup returns a single backup
// GET /api/v1/server/backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	record, err := h.backups.GetBackup(c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// DeleteBackup removes a backup from its destination
// DELETE /api/v1/server/backups/:id
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	if err := h.backups.DeleteBackup(c.Param("id")); err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted"})
}

// RestoreBackup extracts a backup over the instance directory. The server
// must be stopped first.
// POST /api/v1/server/backups/:id/restore
func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	if h.ctrl != nil && h.ctrl.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "Stop the server before restoring a backup"})
		return
	}

	id := c.Param("id")
	if err := h.backups.RestoreBackup(id, h.instanceDir); err != nil {
		h.writeLookupError(c, err)
		return
	}

	log.Printf("[Backups] Backup %s restored by %s", id, actorFrom(c, "api"))
	c.JSON(http.StatusOK, gin.H{"message": "Backup restored"})
}

func (h *BackupHandler) writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, backup.ErrBackupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
		return
	}
	log.Printf("[Backups] Request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
