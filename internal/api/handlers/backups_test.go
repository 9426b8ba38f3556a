package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/vuserver/internal/backup"
)

type fakeBackups struct {
	records   map[string]*backup.BackupRecord
	createErr error
	restored  []string
}

func (f *fakeBackups) CreateBackup(createdBy string) (*backup.BackupRecord, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	record := &backup.BackupRecord{
		ID:        fmt.Sprintf("b%d", len(f.records)+1),
		Filename:  "instance_2026-01-01_00-00-00.tar.gz",
		Status:    backup.StatusCompleted,
		CreatedAt: time.Now(),
		CreatedBy: createdBy,
	}
	f.records[record.ID] = record
	return record, nil
}

func (f *fakeBackups) RestoreBackup(backupID, targetDir string) error {
	if _, ok := f.records[backupID]; !ok {
		return fmt.Errorf("%w: %s", backup.ErrBackupNotFound, backupID)
	}
	f.restored = append(f.restored, targetDir)
	return nil
}

func (f *fakeBackups) DeleteBackup(backupID string) error {
	if _, ok := f.records[backupID]; !ok {
		return fmt.Errorf("%w: %s", backup.ErrBackupNotFound, backupID)
	}
	delete(f.records, backupID)
	return nil
}

func (f *fakeBackups) ListBackups() ([]*backup.BackupRecord, error) {
	var out []*backup.BackupRecord
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeBackups) GetBackup(backupID string) (*backup.BackupRecord, error) {
	record, ok := f.records[backupID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backup.ErrBackupNotFound, backupID)
	}
	return record, nil
}

func newBackupRouter(backups *fakeBackups, srv *fakeServer) *gin.Engine {
	h := NewBackupHandler(backups, srv, "/srv/vu/instance")
	r := gin.New()
	r.GET("/backups", h.ListBackups)
	r.POST("/backups", h.CreateBackup)
	r.GET("/backups/:id", h.GetBackup)
	r.DELETE("/backups/:id", h.DeleteBackup)
	r.POST("/backups/:id/restore", h.RestoreBackup)
	return r
}

func TestBackupEndpoints(t *testing.T) {
	backups := &fakeBackups{records: map[string]*backup.BackupRecord{}}
	r := newBackupRouter(backups, &fakeServer{})

	w := doJSON(t, r, http.MethodPost, "/backups", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "api", backups.records["b1"].CreatedBy)

	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/backups", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/backups/b1", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, r, http.MethodGet, "/backups/missing", nil).Code)

	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodPost, "/backups/b1/restore", nil).Code)
	assert.Equal(t, []string{"/srv/vu/instance"}, backups.restored)

	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodDelete, "/backups/b1", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, r, http.MethodDelete, "/backups/b1", nil).Code)
}

func TestRestoreRefusedWhileRunning(t *testing.T) {
	backups := &fakeBackups{records: map[string]*backup.BackupRecord{"b1": {ID: "b1"}}}
	r := newBackupRouter(backups, &fakeServer{running: true})

	assert.Equal(t, http.StatusConflict, doJSON(t, r, http.MethodPost, "/backups/b1/restore", nil).Code)
	assert.Empty(t, backups.restored)
}

func TestCreateBackupErrors(t *testing.T) {
	backups := &fakeBackups{records: map[string]*backup.BackupRecord{}, createErr: backup.ErrBackupInProgress}
	r := newBackupRouter(backups, &fakeServer{})
	assert.Equal(t, http.StatusConflict, doJSON(t, r, http.MethodPost, "/backups", nil).Code)

	backups.createErr = errors.New("upload failed")
	assert.Equal(t, http.StatusInternalServerError, doJSON(t, r, http.MethodPost, "/backups", nil).Code)
}
