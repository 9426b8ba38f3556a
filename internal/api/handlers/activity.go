package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/logging"
	"github.com/TheGojiOG/vuserver/internal/metrics"
	"github.com/TheGojiOG/vuserver/internal/scheduler"
)

// ActivityReader reads the activity log.
type ActivityReader interface {
	GetActivities(activityType string, since time.Time, limit int) ([]*logging.Activity, error)
	GetActivityStats(since time.Time) (map[string]int, error)
}

// SampleReader reads stored resource samples.
type SampleReader interface {
	GetSamples(since time.Time, limit int) ([]metrics.Sample, error)
}

// JobLister lists scheduled jobs.
type JobLister interface {
	Jobs() []scheduler.Job
}

// HistoryHandler serves the activity log, resource samples and schedule
type HistoryHandler struct {
	activity ActivityReader
	samples  SampleReader
	jobs     JobLister
}

// NewHistoryHandler creates a history handler. Any dependency may be nil.
func NewHistoryHandler(activity ActivityReader, samples SampleReader, jobs JobLister) *HistoryHandler {
	return &HistoryHandler{activity: activity, samples: samples, jobs: jobs}
}

// parseSince reads ?since as RFC3339 or a duration like 1h. Defaults to 24h ago.
func parseSince(c *gin.Context) (time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		return time.Now().Add(-24 * time.Hour), true
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// GetActivities lists activity entries
// GET /api/v1/server/activity?type=server.start&since=1h&limit=100
func (h *HistoryHandler) GetActivities(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter"})
		return
	}

	activities, err := h.activity.GetActivities(c.Query("type"), since, queryInt(c, "limit", 100, 1000))
	if err != nil {
		log.Printf("[Activity] Failed to get activities: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activities"})
		return
	}
	if activities == nil {
		activities = []*logging.Activity{}
	}

	c.JSON(http.StatusOK, gin.H{
		"activities": activities,
		"count":      len(activities),
	})
}

// GetActivityStats returns counts per activity type
// GET /api/v1/server/activity/stats
func (h *HistoryHandler) GetActivityStats(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter"})
		return
	}

	stats, err := h.activity.GetActivityStats(since)
	if err != nil {
		log.Printf("[Activity] Failed to get activity stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activity stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats, "since": since.UTC()})
}

// GetMetrics returns stored resource samples
// GET /api/v1/server/metrics?since=1h&limit=3600
func (h *HistoryHandler) GetMetrics(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter"})
		return
	}

	samples, err := h.samples.GetSamples(since, queryInt(c, "limit", 3600, 86400))
	if err != nil {
		log.Printf("[Metrics] Failed to get samples: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get metrics"})
		return
	}
	if samples == nil {
		samples = []metrics.Sample{}
	}

	c.JSON(http.StatusOK, gin.H{
		"samples": samples,
		"count":   len(samples),
	})
}

// GetSchedule lists the configured scheduled jobs
// GET /api/v1/server/schedule
func (h *HistoryHandler) GetSchedule(c *gin.Context) {
	jobs := h.jobs.Jobs()
	if jobs == nil {
		jobs = []scheduler.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}
