package handlers

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeServer struct {
	mu       sync.Mutex
	running  bool
	canSend  bool
	startErr error
	stopErr  error
	sendErr  error
	response []string
	sent     [][]string
	logged   []string
}

func (f *fakeServer) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeServer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.running = false
	return nil
}

func (f *fakeServer) Restart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeServer) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeServer) Snapshot() server.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := server.StatusOffline
	if f.running {
		status = server.StatusOnline
	}
	return server.Snapshot{Status: status, Running: f.running, CanSendCommands: f.canSend}
}

func (f *fakeServer) CanSendCommands() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canSend
}

func (f *fakeServer) SendCommand(ctx context.Context, words []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, words)
	return f.response, f.sendErr
}

func (f *fakeServer) Log(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, line)
}

func (f *fakeServer) sentCommands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.sent...)
}

type recordedCommand struct {
	actor   string
	command string
	err     error
}

type fakeRecorder struct {
	mu       sync.Mutex
	commands []recordedCommand
}

func (r *fakeRecorder) LogCommandExecute(actor, command string, response []string, cmdErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, recordedCommand{actor: actor, command: command, err: cmdErr})
	return nil
}

func (r *fakeRecorder) recorded() []recordedCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedCommand(nil), r.commands...)
}
