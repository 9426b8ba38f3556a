package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/vuserver/internal/database"
	"github.com/TheGojiOG/vuserver/internal/server"
	"github.com/TheGojiOG/vuserver/internal/state"
)

type staticSource struct {
	snap server.Snapshot
}

func (s *staticSource) Snapshot() server.Snapshot {
	snap := s.snap
	snap.Timestamp = time.Now()
	return snap
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestCollectRecordsSnapshot(t *testing.T) {
	db := newTestDB(t)
	source := &staticSource{snap: server.Snapshot{
		Status:  server.StatusOnline,
		Running: true,
		Game: state.GameState{
			PlayerCount: 5,
			PlayerLimit: 64,
			Map:         "MP_Subway",
			Mode:        "RushLarge0",
		},
		Resources: server.ResourceSample{
			CPUPercent:  12.5,
			MemoryBytes: 2 << 30,
			UpTime:      90 * time.Second,
		},
	}}

	collector := NewCollector(source, "instance-1", db, time.Minute, 2)
	require.NoError(t, collector.Collect())
	require.NoError(t, collector.Collect())
	assert.False(t, collector.LastCollected().IsZero())

	samples, err := collector.GetSamples(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	s := samples[0]
	assert.Equal(t, server.StatusOnline, s.Status)
	assert.Equal(t, 12.5, s.CPUUsage)
	assert.Equal(t, int64(2<<30), s.MemoryUsed)
	assert.Equal(t, int64(90), s.UptimeSeconds)
	assert.Equal(t, 5, s.PlayerCount)
	assert.Equal(t, "MP_Subway", s.Map)
}

func TestCleanupRemovesExpiredSamples(t *testing.T) {
	db := newTestDB(t)
	collector := NewCollector(&staticSource{snap: server.Snapshot{Status: server.StatusOffline}}, "instance-1", db, time.Minute, 1)

	old := time.Now().Add(-72 * time.Hour).UTC()
	_, err := db.Exec(`INSERT INTO server_metrics (server_id, timestamp, status) VALUES (?, ?, ?)`, "instance-1", old, server.StatusOffline)
	require.NoError(t, err)

	require.NoError(t, collector.Collect())

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM server_metrics`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStartStop(t *testing.T) {
	db := newTestDB(t)
	collector := NewCollector(&staticSource{snap: server.Snapshot{Status: server.StatusOffline}}, "instance-1", db, 10*time.Millisecond, 0)
	collector.Start()

	require.Eventually(t, func() bool {
		return !collector.LastCollected().IsZero()
	}, 2*time.Second, 5*time.Millisecond)

	collector.Stop()
	collector.Stop()
}
