package console

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/TheGojiOG/vuserver/internal/rcon"
	"github.com/TheGojiOG/vuserver/internal/server"
)

// Verb identifies how an input line was handled.
type Verb string

const (
	VerbNone    Verb = ""
	VerbStart   Verb = "start"
	VerbStop    Verb = "stop"
	VerbRestart Verb = "restart"
	VerbExit    Verb = "exit"
	VerbRCON    Verb = "rcon"
)

// Controller is the supervisor surface the router drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Restart(ctx context.Context) error
	CanSendCommands() bool
	SendCommand(ctx context.Context, words []string) ([]string, error)
	Log(line string)
}

// CommandRecorder stores pass-through commands and their outcome.
type CommandRecorder interface {
	LogCommandExecute(actor, command string, response []string, err error) error
}

// Router turns operator input into supervisor operations or remote
// administration requests.
type Router struct {
	ctrl     Controller
	exit     func()
	actor    string
	recorder CommandRecorder
	timeout  time.Duration
	spawn    func(func())
}

// NewRouter creates a router. exit is called for the exit and quit verbs.
func NewRouter(ctrl Controller, exit func()) *Router {
	return &Router{
		ctrl:    ctrl,
		exit:    exit,
		actor:   "console",
		timeout: 10 * time.Second,
		spawn:   func(f func()) { go f() },
	}
}

// SetActor sets the name recorded with pass-through commands.
func (r *Router) SetActor(actor string) {
	r.actor = actor
}

// SetCommandRecorder installs the command history sink.
func (r *Router) SetCommandRecorder(rec CommandRecorder) {
	r.recorder = rec
}

// Tokenize splits an input line into words. Double-quoted spans stay one
// word and keep their quotes.
func Tokenize(line string) []string {
	return rcon.SplitWords(line)
}

// Classify returns the verb words would be dispatched as, without acting on it.
func Classify(words []string) Verb {
	if len(words) == 0 {
		return VerbNone
	}
	switch words[0] {
	case "start":
		return VerbStart
	case "stop":
		return VerbStop
	case "restart":
		return VerbRestart
	case "exit", "quit":
		return VerbExit
	}
	return VerbRCON
}

// Dispatch handles one line of operator input. Pass-through commands run
// on their own goroutine; their outcome is reported through the
// controller's log.
func (r *Router) Dispatch(ctx context.Context, line string) Verb {
	words := Tokenize(line)

	verb := Classify(words)
	switch verb {
	case VerbNone:
		return verb
	case VerbStart:
		r.start(ctx)
		return verb
	case VerbStop:
		r.stop()
		return verb
	case VerbRestart:
		r.restart(ctx)
		return verb
	case VerbExit:
		if r.exit != nil {
			r.exit()
		}
		return verb
	}

	if !r.ctrl.CanSendCommands() {
		r.ctrl.Log("[Console] RCON unavailable!")
		return VerbRCON
	}

	r.spawn(func() {
		r.send(ctx, words)
	})
	return VerbRCON
}

func (r *Router) start(ctx context.Context) {
	r.ctrl.Log("Starting server...")
	err := r.ctrl.Start(ctx)
	switch {
	case err == nil:
	case errors.Is(err, server.ErrAlreadyRunning):
		r.ctrl.Log("[Console] Server is already running")
	default:
		r.ctrl.Log(fmt.Sprintf("[Console] Failed to start server: %v", err))
	}
}

func (r *Router) stop() {
	r.ctrl.Log("Stopped server")
	if err := r.ctrl.Stop(); err != nil && !errors.Is(err, server.ErrNotRunning) {
		r.ctrl.Log(fmt.Sprintf("[Console] Failed to stop server: %v", err))
	}
}

func (r *Router) restart(ctx context.Context) {
	r.ctrl.Log("Stopping server...")
	r.ctrl.Log("Starting server...")
	if err := r.ctrl.Restart(ctx); err != nil {
		r.ctrl.Log(fmt.Sprintf("[Console] Failed to restart server: %v", err))
	}
}

func (r *Router) send(ctx context.Context, words []string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	response, err := r.ctrl.SendCommand(ctx, words)
	for _, line := range FormatResult(response, err) {
		r.ctrl.Log(line)
	}

	if r.recorder != nil {
		if recErr := r.recorder.LogCommandExecute(r.actor, strings.Join(words, " "), response, err); recErr != nil {
			log.Printf("[Console] Failed to record command: %v", recErr)
		}
	}
}

// FormatResult renders the outcome of a pass-through command as console
// lines.
func FormatResult(response []string, err error) []string {
	var reqErr *rcon.RequestError
	switch {
	case err == nil:
		return []string{"[Server] RCON: " + strings.Join(response, " ")}
	case errors.As(err, &reqErr):
		return []string{"[Server] RCON: " + reqErr.Error()}
	case errors.Is(err, rcon.ErrNotOpen), errors.Is(err, rcon.ErrClosed), errors.Is(err, server.ErrControlLinkUnavailable):
		return []string{
			"[Console] RCON: " + err.Error(),
			"[Console] RCON: Server might be offline!",
		}
	default:
		return []string{"[Console] RCON: " + err.Error()}
	}
}
