package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/TheGojiOG/vuserver/internal/config"
	"github.com/TheGojiOG/vuserver/internal/logging"
	"github.com/TheGojiOG/vuserver/internal/rcon"
	"github.com/TheGojiOG/vuserver/internal/state"
)

// LinkFactory creates an unopened control link whose push notifications go
// to onEvent.
type LinkFactory func(onEvent rcon.EventHandler) ControlLink

// DefaultLinkFactory creates Frostbite RCON clients.
func DefaultLinkFactory(onEvent rcon.EventHandler) ControlLink {
	return rcon.NewClient(onEvent)
}

// Supervisor owns the game server process, its control link and the state
// derived from them. Start, Stop, Restart and Shutdown are serialized.
type Supervisor struct {
	opts     config.LaunchOptions
	startup  *config.StartupManager
	launcher ProcessLauncher
	newLink  LinkFactory
	tracker  *state.Tracker
	activity ActivityRecorder

	sampleInterval time.Duration
	linkTimeout    time.Duration
	cores          int

	observers observers

	opMu   sync.Mutex
	closed bool

	stateMu sync.RWMutex
	current *lifetime
	sample  ResourceSample
}

// NewSupervisor creates a supervisor for the server described by opts.
func NewSupervisor(opts config.LaunchOptions, launcher ProcessLauncher, startup *config.StartupManager) *Supervisor {
	if startup == nil {
		startup = config.NewStartupManager(opts.StartupConfigPath())
	}
	return &Supervisor{
		opts:           opts,
		startup:        startup,
		launcher:       launcher,
		newLink:        DefaultLinkFactory,
		tracker:        state.NewTracker(),
		sampleInterval: time.Second,
		linkTimeout:    15 * time.Second,
		cores:          runtime.NumCPU(),
	}
}

// SetLinkFactory replaces the control link implementation.
func (s *Supervisor) SetLinkFactory(f LinkFactory) {
	s.newLink = f
}

// SetActivityRecorder sets where lifecycle events are recorded.
func (s *Supervisor) SetActivityRecorder(r ActivityRecorder) {
	s.activity = r
}

// SetSampleInterval changes the resource sampling period.
func (s *Supervisor) SetSampleInterval(d time.Duration) {
	if d > 0 {
		s.sampleInterval = d
	}
}

// Start launches the server. It fails with ErrAlreadyRunning while a
// process is alive and with ErrMissingAdminPassword or a *LaunchError
// before anything is spawned.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.startLocked(ctx); err != nil {
		return err
	}
	s.recordEvent(logging.ActivityServerStart, "Server started", s.lifetimeDetails())
	return nil
}

// Stop closes the control link and kills the server.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.stopLocked(); err != nil {
		return err
	}
	s.recordEvent(logging.ActivityServerStop, "Server stopped", nil)
	return nil
}

// Restart stops the server if it is running, then starts it again with a
// freshly loaded startup config.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.stopLocked(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	if err := s.startLocked(ctx); err != nil {
		return err
	}
	s.recordEvent(logging.ActivityServerRestart, "Server restarted", s.lifetimeDetails())
	return nil
}

// Shutdown stops the server if it is running and refuses later starts.
// It is safe to call more than once.
func (s *Supervisor) Shutdown() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	lt := s.currentLifetime()
	if lt == nil {
		return nil
	}
	log.Printf("[Supervisor] Shutting down")
	s.release(lt)
	return nil
}

// Running reports whether the server process is alive.
func (s *Supervisor) Running() bool {
	lt := s.currentLifetime()
	return lt != nil && lt.running()
}

// HasExited reports whether the last started process died without an
// explicit stop.
func (s *Supervisor) HasExited() bool {
	lt := s.currentLifetime()
	return lt != nil && !lt.running()
}

// ExitCode returns the exit code of a process that died on its own, or 0.
func (s *Supervisor) ExitCode() int {
	lt := s.currentLifetime()
	if lt == nil || lt.running() {
		return 0
	}
	return lt.proc.ExitCode()
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	if s.closed {
		return ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	prev := s.currentLifetime()
	if prev != nil && prev.running() {
		return ErrAlreadyRunning
	}

	// A crashed lifetime stays current until the replacement has spawned,
	// so a failed start leaves the exit visible to the watchdog.
	password, err := s.startup.RequireAdminPassword()
	if err != nil {
		if errors.Is(err, ErrMissingAdminPassword) {
			return err
		}
		return fmt.Errorf("failed to load startup config: %w", err)
	}

	binary := s.opts.ServerBinaryPath()
	if _, err := os.Stat(binary); err != nil {
		return &LaunchError{Path: binary, Err: err}
	}

	spec := BuildLaunchSpec(s.opts)
	log.Printf("[Supervisor] Launching %s", FormatCommandLine(spec))

	proc, err := s.launcher.Launch(spec)
	if err != nil {
		return &LaunchError{Path: spec.Binary, Err: err}
	}

	if prev != nil {
		s.release(prev)
	}

	lt := newLifetime(proc, password)

	s.tracker.Reset()
	s.stateMu.Lock()
	s.current = lt
	s.sample = ResourceSample{}
	s.stateMu.Unlock()

	scanner := NewLogScanner(s.Log, func(port int) {
		if port != s.opts.RemotePort {
			log.Printf("[Supervisor] Remote administration reported port %d, expected %d", port, s.opts.RemotePort)
		}
		lt.wg.Add(1)
		go s.connectLink(lt)
	})

	lt.wg.Add(2)
	go s.readOutput(lt, scanner)
	go s.sampleLoop(lt)

	log.Printf("[Supervisor] Server started with pid %d", proc.Pid())
	s.emitRefresh()
	return nil
}

func (s *Supervisor) stopLocked() error {
	lt := s.currentLifetime()
	if lt == nil || !lt.running() {
		return ErrNotRunning
	}

	log.Printf("[Supervisor] Stopping server (pid %d)", lt.proc.Pid())
	s.release(lt)
	return nil
}

// release tears a lifetime down: the link is closed before the process is
// killed, then the derived state is reset.
func (s *Supervisor) release(lt *lifetime) {
	lt.cancel()
	lt.closeLink()

	if err := lt.proc.Kill(); err != nil {
		log.Printf("[Supervisor] Failed to kill process %d: %v", lt.proc.Pid(), err)
	}

	s.stateMu.Lock()
	if s.current == lt {
		s.current = nil
	}
	s.sample = ResourceSample{}
	s.stateMu.Unlock()

	s.tracker.Reset()
	lt.wg.Wait()
	s.emitRefresh()
}

func (s *Supervisor) readOutput(lt *lifetime, scanner *LogScanner) {
	defer lt.wg.Done()

	out := lt.proc.Output()
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-lt.ctx.Done():
			_ = out.Close()
		case <-finished:
		}
	}()

	if err := scanner.Run(out); err != nil && lt.ctx.Err() == nil {
		log.Printf("[Supervisor] Output reader stopped: %v", err)
	}
	_ = out.Close()
}

func (s *Supervisor) currentLifetime() *lifetime {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.current
}

func (s *Supervisor) recordEvent(eventType, message string, details map[string]interface{}) {
	if s.activity == nil {
		return
	}
	s.activity.RecordEvent(eventType, message, details)
}

func (s *Supervisor) lifetimeDetails() map[string]interface{} {
	lt := s.currentLifetime()
	if lt == nil {
		return nil
	}
	return map[string]interface{}{
		"pid":         lt.proc.Pid(),
		"instance":    s.opts.InstancePath,
		"game_port":   s.opts.GamePort,
		"remote_port": s.opts.RemotePort,
		"frequency":   s.opts.Frequency.String(),
		"environment": s.opts.Environment,
	}
}

// lifetime is everything that belongs to one spawned process.
type lifetime struct {
	proc     Process
	password string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	linkMu sync.Mutex
	link   ControlLink
}

func newLifetime(proc Process, password string) *lifetime {
	ctx, cancel := context.WithCancel(context.Background())
	return &lifetime{
		proc:     proc,
		password: password,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (lt *lifetime) running() bool {
	select {
	case <-lt.proc.Done():
		return false
	default:
		return true
	}
}

// publish stores an authenticated link unless the lifetime already ended.
func (lt *lifetime) publish(link ControlLink) bool {
	lt.linkMu.Lock()
	defer lt.linkMu.Unlock()
	if lt.ctx.Err() != nil || !lt.running() {
		return false
	}
	lt.link = link
	return true
}

// session returns the link if it is published and still open.
func (lt *lifetime) session() ControlLink {
	lt.linkMu.Lock()
	defer lt.linkMu.Unlock()
	if lt.link == nil || !lt.link.IsOpen() {
		return nil
	}
	return lt.link
}

func (lt *lifetime) closeLink() {
	lt.linkMu.Lock()
	link := lt.link
	lt.link = nil
	lt.linkMu.Unlock()

	if link != nil && link.IsOpen() {
		if err := link.Close(); err != nil {
			log.Printf("[Supervisor] Failed to close control link: %v", err)
		}
	}
}
