package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TheGojiOG/vuserver/internal/backup"
	"github.com/TheGojiOG/vuserver/internal/config"
	"github.com/TheGojiOG/vuserver/internal/logging"
	"github.com/TheGojiOG/vuserver/internal/rcon"
	"github.com/TheGojiOG/vuserver/internal/server"
)

const actor = "scheduler"

// Target is the part of the supervisor the scheduler drives.
type Target interface {
	Running() bool
	Restart(ctx context.Context) error
	CanSendCommands() bool
	SendCommand(ctx context.Context, words []string) ([]string, error)
}

// BackupCreator creates instance backups.
type BackupCreator interface {
	CreateBackup(createdBy string) (*backup.BackupRecord, error)
}

// Recorder persists scheduled command results and job outcomes.
type Recorder interface {
	RecordEvent(eventType, message string, details map[string]interface{})
	LogCommandExecute(actor, command string, response []string, cmdErr error) error
}

// Job describes one registered schedule.
type Job struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

// Runner executes restarts, RCON commands and backups on cron schedules.
type Runner struct {
	cron     *cron.Cron
	target   Target
	backups  BackupCreator
	recorder Recorder
	timeout  time.Duration

	mu    sync.Mutex
	ctx   context.Context
	names map[cron.EntryID]string
	specs map[cron.EntryID]string
}

// Parser accepts standard five-field specs, an optional seconds field and
// descriptors such as @daily.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewRunner creates a runner. backups and recorder may be nil.
func NewRunner(target Target, backups BackupCreator, recorder Recorder) *Runner {
	return &Runner{
		cron:     cron.New(cron.WithParser(Parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:   target,
		backups:  backups,
		recorder: recorder,
		timeout:  2 * time.Minute,
		ctx:      context.Background(),
		names:    make(map[cron.EntryID]string),
		specs:    make(map[cron.EntryID]string),
	}
}

// Configure registers every job described by the schedule and backup config.
func (r *Runner) Configure(schedule config.ScheduleConfig, backupCfg config.BackupConfig) error {
	if spec := strings.TrimSpace(schedule.Restart); spec != "" {
		if err := r.add("restart", spec, r.runRestart); err != nil {
			return err
		}
	}

	for i, cmd := range schedule.Commands {
		words := rcon.SplitWords(cmd.Command)
		if len(words) == 0 {
			return fmt.Errorf("schedule.commands[%d]: empty command", i)
		}
		name := fmt.Sprintf("command:%s", cmd.Command)
		if err := r.add(name, cmd.Cron, func() { r.runCommand(cmd.Command, words) }); err != nil {
			return fmt.Errorf("schedule.commands[%d]: %w", i, err)
		}
	}

	if backupCfg.Enabled && strings.TrimSpace(backupCfg.Schedule) != "" {
		if r.backups == nil {
			return errors.New("backup schedule configured without a backup manager")
		}
		if err := r.add("backup", backupCfg.Schedule, r.runBackup); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) add(name, spec string, fn func()) error {
	id, err := r.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("invalid cron spec %q for %s: %w", spec, name, err)
	}

	r.mu.Lock()
	r.names[id] = name
	r.specs[id] = spec
	r.mu.Unlock()

	log.Printf("[Scheduler] Registered %s (%s)", name, spec)
	return nil
}

// Start runs the cron loop until ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.cron.Start()
	go func() {
		<-ctx.Done()
		r.Stop()
	}()
}

// Stop stops scheduling and waits for running jobs.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// Jobs lists the registered schedules with their next run times.
func (r *Runner) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []Job
	for _, entry := range r.cron.Entries() {
		jobs = append(jobs, Job{
			Name: r.names[entry.ID],
			Spec: r.specs[entry.ID],
			Next: entry.Next,
			Prev: entry.Prev,
		})
	}
	return jobs
}

func (r *Runner) jobContext() (context.Context, context.CancelFunc) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Runner) runRestart() {
	if !r.target.Running() {
		log.Printf("[Scheduler] Skipping scheduled restart: server is not running")
		return
	}

	ctx, cancel := r.jobContext()
	defer cancel()

	log.Printf("[Scheduler] Running scheduled restart")
	err := r.target.Restart(ctx)
	if err != nil {
		log.Printf("[Scheduler] Scheduled restart failed: %v", err)
	}
	r.recordRun("restart", err)
}

func (r *Runner) runCommand(command string, words []string) {
	if !r.target.CanSendCommands() {
		log.Printf("[Scheduler] Skipping %q: RCON unavailable", command)
		return
	}

	ctx, cancel := r.jobContext()
	defer cancel()

	response, err := r.target.SendCommand(ctx, words)
	if err != nil && !errors.Is(err, server.ErrControlLinkUnavailable) {
		log.Printf("[Scheduler] Scheduled command %q failed: %v", command, err)
	}

	if r.recorder != nil {
		if recErr := r.recorder.LogCommandExecute(actor, command, response, err); recErr != nil {
			log.Printf("[Scheduler] Failed to record command: %v", recErr)
		}
	}
}

func (r *Runner) runBackup() {
	log.Printf("[Scheduler] Running scheduled backup")
	// The backup manager records its own outcome in the activity log.
	if _, err := r.backups.CreateBackup(actor); err != nil {
		log.Printf("[Scheduler] Scheduled backup failed: %v", err)
	}
}

func (r *Runner) recordRun(job string, err error) {
	if r.recorder == nil {
		return
	}
	details := map[string]interface{}{"job": job}
	if err != nil {
		details["error"] = err.Error()
		r.recorder.RecordEvent(logging.ActivityError, fmt.Sprintf("Scheduled %s failed", job), details)
		return
	}
	r.recorder.RecordEvent(logging.ActivityScheduleRun, fmt.Sprintf("Scheduled %s completed", job), details)
}
