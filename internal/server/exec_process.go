package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ExecLauncher starts the server as a local child process.
type ExecLauncher struct{}

// NewExecLauncher creates a launcher backed by os/exec.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{}
}

// Launch starts spec.Binary with stdout and stderr merged into one pipe.
func (l *ExecLauncher) Launch(spec LaunchSpec) (Process, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, err
	}
	// The child holds its own copy of the write end.
	_ = writer.Close()

	p := &execProcess{
		cmd:     cmd,
		output:  reader,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	if stat, err := process.NewProcess(int32(cmd.Process.Pid)); err == nil {
		p.stat = stat
	}

	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	output   *os.File
	stat     *process.Process
	started  time.Time
	done     chan struct{}
	exitCode atomic.Int64
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	code := 0
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	} else if err != nil {
		code = -1
	}
	p.exitCode.Store(int64(code))
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Output() io.ReadCloser {
	return p.output
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) ExitCode() int {
	return int(p.exitCode.Load())
}

func (p *execProcess) StartTime() time.Time {
	return p.started
}

func (p *execProcess) Usage() (ProcessUsage, error) {
	if p.stat == nil {
		return ProcessUsage{}, errors.New("process statistics unavailable")
	}

	times, err := p.stat.Times()
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("failed to read cpu times: %w", err)
	}
	mem, err := p.stat.MemoryInfo()
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("failed to read memory info: %w", err)
	}

	cpu := time.Duration((times.User + times.System) * float64(time.Second))
	return ProcessUsage{CPUTime: cpu, MemoryBytes: mem.VMS}, nil
}
