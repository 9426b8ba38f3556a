package server

import (
	"log"
	"time"

	"github.com/TheGojiOG/vuserver/internal/logging"
	"github.com/TheGojiOG/vuserver/internal/state"
)

const (
	StatusOffline  = "offline"
	StatusStarting = "starting" // process running, control link not yet up
	StatusOnline   = "online"
	StatusExited   = "exited" // process died without an explicit stop
)

// ResourceSample is the last resource reading of the server process.
type ResourceSample struct {
	CPUPercent  float64       `json:"cpu_percent"`
	MemoryBytes uint64        `json:"memory_bytes"`
	UpTime      time.Duration `json:"uptime"`
}

// Snapshot is a consistent view of the supervisor at one point in time.
type Snapshot struct {
	Status          string          `json:"status"`
	Running         bool            `json:"running"`
	PID             int             `json:"pid,omitempty"`
	ExitCode        int             `json:"exit_code"`
	CanSendCommands bool            `json:"can_send_commands"`
	Game            state.GameState `json:"game"`
	Resources       ResourceSample  `json:"resources"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Snapshot returns the current supervisor state.
func (s *Supervisor) Snapshot() Snapshot {
	s.stateMu.RLock()
	lt := s.current
	sample := s.sample
	s.stateMu.RUnlock()

	snap := Snapshot{
		Status:    StatusOffline,
		Game:      s.tracker.Snapshot(),
		Resources: sample,
		Timestamp: time.Now(),
	}
	if lt == nil {
		return snap
	}

	if lt.running() {
		snap.Running = true
		snap.PID = lt.proc.Pid()
		snap.CanSendCommands = lt.session() != nil
		snap.Status = StatusStarting
		if snap.CanSendCommands {
			snap.Status = StatusOnline
		}
	} else {
		snap.Status = StatusExited
		snap.ExitCode = lt.proc.ExitCode()
	}
	return snap
}

// cpuPercent converts a CPU time delta over a wall-clock delta into a
// percentage of the whole machine.
func cpuPercent(cpuDelta, wallDelta time.Duration, cores int) float64 {
	if wallDelta <= 0 || cores <= 0 || cpuDelta < 0 {
		return 0
	}
	return float64(cpuDelta) / float64(wallDelta) / float64(cores) * 100
}

// sampleLoop refreshes the resource sample once per interval until the
// lifetime is stopped or the process exits.
func (s *Supervisor) sampleLoop(lt *lifetime) {
	defer lt.wg.Done()

	ticker := time.NewTicker(s.sampleInterval)
	defer ticker.Stop()

	lastWall := time.Now()
	var lastCPU time.Duration
	if usage, err := lt.proc.Usage(); err == nil {
		lastCPU = usage.CPUTime
	}

	for {
		select {
		case <-lt.ctx.Done():
			return
		case <-lt.proc.Done():
			s.handleExit(lt)
			return
		case now := <-ticker.C:
			usage, err := lt.proc.Usage()
			if err != nil {
				log.Printf("[Supervisor] Failed to sample process %d: %v", lt.proc.Pid(), err)
				continue
			}

			sample := ResourceSample{
				CPUPercent:  cpuPercent(usage.CPUTime-lastCPU, now.Sub(lastWall), s.cores),
				MemoryBytes: usage.MemoryBytes,
				UpTime:      now.Sub(lt.proc.StartTime()),
			}
			lastWall, lastCPU = now, usage.CPUTime

			if !s.setSample(lt, sample) {
				return
			}
			s.emitRefresh()
		}
	}
}

// handleExit runs when the process dies on its own. Restarting is left to
// the watchdog.
func (s *Supervisor) handleExit(lt *lifetime) {
	if lt.ctx.Err() != nil {
		return
	}

	code := lt.proc.ExitCode()
	log.Printf("[Supervisor] Server process %d exited with code %d", lt.proc.Pid(), code)

	lt.closeLink()

	s.stateMu.Lock()
	isCurrent := s.current == lt
	if isCurrent {
		s.sample = ResourceSample{}
	}
	s.stateMu.Unlock()

	if !isCurrent {
		return
	}
	s.tracker.Reset()
	s.recordEvent(logging.ActivityServerCrash, "Server process exited", map[string]interface{}{
		"pid":       lt.proc.Pid(),
		"exit_code": code,
	})
	s.emitRefresh()
}

func (s *Supervisor) setSample(lt *lifetime, sample ResourceSample) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.current != lt {
		return false
	}
	s.sample = sample
	return true
}
