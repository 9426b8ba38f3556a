package metrics

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TheGojiOG/vuserver/internal/database"
	"github.com/TheGojiOG/vuserver/internal/server"
)

// SnapshotSource provides the state that is persisted on every tick.
type SnapshotSource interface {
	Snapshot() server.Snapshot
}

// Sample is one persisted row of server_metrics.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
	CPUUsage      float64   `json:"cpu_usage"`
	MemoryUsed    int64     `json:"memory_used"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	PlayerCount   int       `json:"player_count"`
	PlayerLimit   int       `json:"player_limit"`
	Map           string    `json:"map"`
	Mode          string    `json:"mode"`
}

type Collector struct {
	source        SnapshotSource
	serverID      string
	db            *database.DB
	interval      time.Duration
	retention     time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	mu            sync.Mutex
	lastCollected time.Time
	lastCleanup   time.Time
}

func NewCollector(source SnapshotSource, serverID string, db *database.DB, interval time.Duration, retentionDays int) *Collector {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Collector{
		source:    source,
		serverID:  serverID,
		db:        db,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		stopCh:    make(chan struct{}),
	}
}

func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Collect(); err != nil {
					log.Printf("[Metrics] Failed to record sample: %v", err)
				}
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// Collect records the current snapshot and prunes expired rows.
func (c *Collector) Collect() error {
	now := time.Now()
	snap := c.source.Snapshot()

	if err := c.recordSample(snap); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastCollected = now
	c.mu.Unlock()

	c.cleanupOldMetrics(now)
	return nil
}

// LastCollected returns when the last sample was written.
func (c *Collector) LastCollected() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCollected
}

func (c *Collector) recordSample(snap server.Snapshot) error {
	if c.db == nil {
		return nil
	}

	_, err := c.db.Exec(`
		INSERT INTO server_metrics (
			server_id, timestamp, status, cpu_usage, memory_used, uptime_seconds,
			player_count, player_limit, map, mode
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.serverID,
		snap.Timestamp.UTC(),
		snap.Status,
		snap.Resources.CPUPercent,
		int64(snap.Resources.MemoryBytes),
		int64(snap.Resources.UpTime/time.Second),
		snap.Game.PlayerCount,
		snap.Game.PlayerLimit,
		snap.Game.Map,
		snap.Game.Mode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metrics: %w", err)
	}
	return nil
}

func (c *Collector) cleanupOldMetrics(now time.Time) {
	if c.db == nil || c.retention <= 0 {
		return
	}

	c.mu.Lock()
	if !c.lastCleanup.IsZero() && now.Sub(c.lastCleanup) < 6*time.Hour {
		c.mu.Unlock()
		return
	}
	c.lastCleanup = now
	c.mu.Unlock()

	cutoff := now.Add(-c.retention).UTC()
	result, err := c.db.Exec("DELETE FROM server_metrics WHERE server_id = ? AND timestamp < ?", c.serverID, cutoff)
	if err != nil {
		log.Printf("[Metrics] Failed to prune samples: %v", err)
		return
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("[Metrics] Pruned %d samples older than %v", n, c.retention)
	}
}

// GetSamples returns samples newer than since, newest first.
func (c *Collector) GetSamples(since time.Time, limit int) ([]Sample, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not available")
	}
	if limit <= 0 {
		limit = 500
	}

	rows, err := c.db.Query(`
		SELECT timestamp, status, cpu_usage, memory_used, uptime_seconds,
			player_count, player_limit, map, mode
		FROM server_metrics
		WHERE server_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, c.serverID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.Timestamp, &s.Status, &s.CPUUsage, &s.MemoryUsed, &s.UptimeSeconds,
			&s.PlayerCount, &s.PlayerLimit, &s.Map, &s.Mode); err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
