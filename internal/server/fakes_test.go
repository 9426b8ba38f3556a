package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/vuserver/internal/config"
	"github.com/TheGojiOG/vuserver/internal/rcon"
)

// callLog records calls across fakes so ordering can be asserted.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

type fakeProcess struct {
	pid    int
	reader *io.PipeReader
	writer *io.PipeWriter
	done   chan struct{}
	once   sync.Once
	calls  *callLog

	mu    sync.Mutex
	code  int
	usage ProcessUsage
}

func newFakeProcess(pid int, calls *callLog) *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{pid: pid, reader: r, writer: w, done: make(chan struct{}), calls: calls}
}

func (p *fakeProcess) emit(line string) {
	_, _ = fmt.Fprintln(p.writer, line)
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.code = code
		p.mu.Unlock()
		_ = p.writer.Close()
		close(p.done)
	})
}

func (p *fakeProcess) setUsage(u ProcessUsage) {
	p.mu.Lock()
	p.usage = u
	p.mu.Unlock()
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Output() io.ReadCloser { return p.reader }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) StartTime() time.Time  { return time.Now().Add(-time.Minute) }

func (p *fakeProcess) Kill() error {
	if p.calls != nil {
		p.calls.add("kill")
	}
	p.exit(-1)
	return nil
}

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *fakeProcess) Usage() (ProcessUsage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage, nil
}

type fakeLauncher struct {
	mu    sync.Mutex
	specs []LaunchSpec
	procs []*fakeProcess
	err   error
	calls *callLog
}

func (l *fakeLauncher) Launch(spec LaunchSpec) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(1000+len(l.procs), l.calls)
	l.specs = append(l.specs, spec)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

type fakeLink struct {
	onEvent rcon.EventHandler
	calls   *callLog
	openErr error
	reject  map[string]bool

	mu   sync.Mutex
	open bool
	addr string
	sent [][]string
}

func (f *fakeLink) Open(ctx context.Context, addr string) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.mu.Lock()
	f.open = true
	f.addr = addr
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeLink) SendMessage(ctx context.Context, words ...string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil, rcon.ErrNotOpen
	}
	f.sent = append(f.sent, words)
	if f.reject[words[0]] {
		return []string{"InvalidPassword"}, &rcon.RequestError{Status: "InvalidPassword", Words: []string{"InvalidPassword"}}
	}
	return []string{"OK"}, nil
}

func (f *fakeLink) Login(ctx context.Context, password string) error {
	_, err := f.SendMessage(ctx, "login.plainText", password)
	return err
}

func (f *fakeLink) EnableEvents(ctx context.Context) error {
	_, err := f.SendMessage(ctx, "admin.eventsEnabled", "true")
	return err
}

func (f *fakeLink) Close() error {
	if f.calls != nil {
		f.calls.add("link.close")
	}
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) messages() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// linkFactory hands out fakeLinks and remembers them.
type linkFactory struct {
	mu      sync.Mutex
	links   []*fakeLink
	calls   *callLog
	openErr error
	reject  map[string]bool
}

func (lf *linkFactory) create(onEvent rcon.EventHandler) ControlLink {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	link := &fakeLink{onEvent: onEvent, calls: lf.calls, openErr: lf.openErr, reject: lf.reject}
	lf.links = append(lf.links, link)
	return link
}

func (lf *linkFactory) count() int {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.links)
}

func (lf *linkFactory) last() *fakeLink {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if len(lf.links) == 0 {
		return nil
	}
	return lf.links[len(lf.links)-1]
}

type recordedEvent struct {
	eventType string
	details   map[string]interface{}
}

type fakeActivity struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (a *fakeActivity) RecordEvent(eventType, message string, details map[string]interface{}) {
	a.mu.Lock()
	a.events = append(a.events, recordedEvent{eventType: eventType, details: details})
	a.mu.Unlock()
}

func (a *fakeActivity) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.events {
		out = append(out, e.eventType)
	}
	return out
}

type harness struct {
	sup      *Supervisor
	launcher *fakeLauncher
	links    *linkFactory
	calls    *callLog
	activity *fakeActivity
	opts     config.LaunchOptions
	startup  string
}

const triggerLine = "[2024-01-01 12:00:00] [info] Remote Administration interface is listening on port 0.0.0.0:47200"

func newHarness(t *testing.T) *harness {
	t.Helper()

	vuDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(vuDir, config.ServerBinary), nil, 0755))

	instance := t.TempDir()
	adminDir := filepath.Join(instance, "Admin")
	require.NoError(t, os.MkdirAll(adminDir, 0755))
	startup := filepath.Join(adminDir, "Startup.txt")
	require.NoError(t, os.WriteFile(startup, []byte("admin.password \"letmein\"\n"), 0644))

	opts := config.DefaultLaunchOptions()
	opts.Path = vuDir
	opts.InstancePath = instance

	calls := &callLog{}
	launcher := &fakeLauncher{calls: calls}
	links := &linkFactory{calls: calls}
	activity := &fakeActivity{}

	sup := NewSupervisor(opts, launcher, nil)
	sup.SetLinkFactory(links.create)
	sup.SetActivityRecorder(activity)
	sup.SetSampleInterval(10 * time.Millisecond)
	t.Cleanup(func() { _ = sup.Shutdown() })

	return &harness{
		sup:      sup,
		launcher: launcher,
		links:    links,
		calls:    calls,
		activity: activity,
		opts:     opts,
		startup:  startup,
	}
}

var errSpawn = errors.New("exec format error")
