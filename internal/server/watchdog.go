package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TheGojiOG/vuserver/internal/logging"
)

// CrashTarget is what the watchdog needs from the supervisor.
type CrashTarget interface {
	HasExited() bool
	ExitCode() int
	Restart(ctx context.Context) error
	Log(line string)
}

// Watchdog polls for a server that exited without being stopped and
// starts it again. It never touches a server that was stopped on purpose.
type Watchdog struct {
	target   CrashTarget
	activity ActivityRecorder
	interval time.Duration
}

// NewWatchdog creates a watchdog checking target every interval.
func NewWatchdog(target CrashTarget, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watchdog{target: target, interval: interval}
}

// SetActivityRecorder sets where crash restarts are recorded.
func (w *Watchdog) SetActivityRecorder(r ActivityRecorder) {
	w.activity = r
}

// Start runs the poll loop until ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[Watchdog] Stopping crash watchdog")
				return
			case <-ticker.C:
				w.Check(ctx)
			}
		}
	}()
}

// Check restarts the server if it has exited unexpectedly. It reports
// whether a restart was attempted.
func (w *Watchdog) Check(ctx context.Context) bool {
	if !w.target.HasExited() {
		return false
	}

	code := w.target.ExitCode()
	w.target.Log(fmt.Sprintf("Server exited unexpectedly with code %d, restarting...", code))
	if w.activity != nil {
		w.activity.RecordEvent(logging.ActivityServerCrashRestart, "Restarting crashed server", map[string]interface{}{
			"exit_code": code,
		})
	}

	if err := w.target.Restart(ctx); err != nil {
		log.Printf("[Watchdog] Restart failed: %v", err)
		w.target.Log(fmt.Sprintf("Failed to restart server: %v", err))
	}
	return true
}
