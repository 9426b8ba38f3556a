package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/vuserver/internal/logging"
	"github.com/TheGojiOG/vuserver/internal/rcon"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func TestStartTwiceFailsWithAlreadyRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sup.Start(ctx))
	require.True(t, h.sup.Running())

	err := h.sup.Start(ctx)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, 1, h.launcher.count())
}

func TestStopWithoutProcessFailsWithNotRunning(t *testing.T) {
	h := newHarness(t)

	require.ErrorIs(t, h.sup.Stop(), ErrNotRunning)
	assert.False(t, h.sup.Running())
	assert.False(t, h.sup.HasExited())
}

func TestStartRequiresAdminPassword(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.startup, []byte("vars.serverName test\n"), 0644))

	err := h.sup.Start(context.Background())
	require.ErrorIs(t, err, ErrMissingAdminPassword)
	assert.Equal(t, 0, h.launcher.count())
	assert.False(t, h.sup.Running())
}

func TestStartWithMissingBinary(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.opts.Path, "vu.exe")))

	err := h.sup.Start(context.Background())
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, filepath.Join(h.opts.Path, "vu.exe"), launchErr.Path)
	assert.Equal(t, 0, h.launcher.count())
	assert.False(t, h.sup.Running())
}

func TestStartWithSpawnFailure(t *testing.T) {
	h := newHarness(t)
	h.launcher.err = errSpawn

	err := h.sup.Start(context.Background())
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.ErrorIs(t, err, errSpawn)
	assert.False(t, h.sup.Running())
	assert.Equal(t, StatusOffline, h.sup.Snapshot().Status)
}

func TestStartPassesDeterministicArguments(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))

	h.launcher.mu.Lock()
	spec := h.launcher.specs[0]
	h.launcher.mu.Unlock()

	assert.Equal(t, filepath.Join(h.opts.Path, "vu.exe"), spec.Binary)
	assert.Equal(t, BuildArguments(h.opts), spec.Args)
	assert.Equal(t, h.opts.Path, spec.Dir)
}

func TestTriggerOpensAndAuthenticatesLink(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	require.False(t, h.sup.CanSendCommands())

	proc := h.launcher.last()
	proc.emit("[2024-01-01 12:00:00] [info] Loading level")
	proc.emit(triggerLine)

	require.Eventually(t, h.sup.CanSendCommands, waitFor, tick)

	link := h.links.last()
	assert.Equal(t, "127.0.0.1:47200", link.addr)
	msgs := link.messages()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, []string{"login.plainText", "letmein"}, msgs[0])
	assert.Equal(t, []string{"admin.eventsEnabled", "true"}, msgs[1])
	assert.Equal(t, StatusOnline, h.sup.Snapshot().Status)
	assert.Contains(t, h.activity.types(), logging.ActivityControlLinkUp)
}

func TestTriggerFiresOncePerLifetime(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))

	proc := h.launcher.last()
	proc.emit(triggerLine)
	require.Eventually(t, h.sup.CanSendCommands, waitFor, tick)
	proc.emit(triggerLine)
	proc.emit("flush")

	assert.Equal(t, 1, h.links.count())
}

func TestFailedLoginLeavesSessionAbsent(t *testing.T) {
	h := newHarness(t)
	h.links.reject = map[string]bool{"login.plainText": true}
	require.NoError(t, h.sup.Start(context.Background()))

	h.launcher.last().emit(triggerLine)

	require.Eventually(t, func() bool {
		for _, typ := range h.activity.types() {
			if typ == logging.ActivityControlLinkFailed {
				return true
			}
		}
		return false
	}, waitFor, tick)
	assert.False(t, h.sup.CanSendCommands())
	assert.False(t, h.links.last().IsOpen())

	_, err := h.sup.SendCommand(context.Background(), []string{"serverInfo"})
	assert.ErrorIs(t, err, ErrControlLinkUnavailable)
}

func TestSendCommandWithoutSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.sup.SendCommand(context.Background(), []string{"serverInfo"})
	require.ErrorIs(t, err, ErrControlLinkUnavailable)

	require.NoError(t, h.sup.Start(context.Background()))
	_, err = h.sup.SendCommand(context.Background(), []string{"serverInfo"})
	require.ErrorIs(t, err, ErrControlLinkUnavailable)
}

func TestSendCommandForwardsWords(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	h.launcher.last().emit(triggerLine)
	require.Eventually(t, h.sup.CanSendCommands, waitFor, tick)

	words, err := h.sup.SendCommand(context.Background(), []string{"admin.say", `"hello all"`, "all"})
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, words)

	msgs := h.links.last().messages()
	assert.Equal(t, []string{"admin.say", `"hello all"`, "all"}, msgs[len(msgs)-1])
}

func TestStopClosesLinkBeforeKill(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	h.launcher.last().emit(triggerLine)
	require.Eventually(t, h.sup.CanSendCommands, waitFor, tick)

	require.NoError(t, h.sup.Stop())

	assert.Equal(t, []string{"link.close", "kill"}, h.calls.list())
	assert.False(t, h.sup.Running())
	assert.False(t, h.sup.HasExited())
	assert.False(t, h.sup.CanSendCommands())
	assert.Equal(t, 0, h.sup.ExitCode())
	require.ErrorIs(t, h.sup.Stop(), ErrNotRunning)
}

func TestPushNotificationsUpdateState(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var received [][]string
	h.sup.OnData(func(words []string) {
		mu.Lock()
		received = append(received, words)
		mu.Unlock()
	})

	require.NoError(t, h.sup.Start(context.Background()))
	h.launcher.last().emit(triggerLine)
	require.Eventually(t, h.sup.CanSendCommands, waitFor, tick)

	link := h.links.last()
	link.onEvent([]string{"player.onJoin", "Soldier", "guid"})
	link.onEvent([]string{"player.onJoin", "Medic", "guid"})
	link.onEvent([]string{"server.onMaxPlayerCountChange", "64"})
	link.onEvent([]string{"server.onLevelLoaded", "MP_Subway", "SquadDeathMatch0", "0", "1"})
	link.onEvent([]string{"player.onChat", "Soldier", "hi"})

	game := h.sup.Snapshot().Game
	assert.Equal(t, 2, game.PlayerCount)
	assert.Equal(t, 64, game.PlayerLimit)
	assert.Equal(t, "MP_Subway", game.Map)
	assert.Equal(t, "SquadDeathMatch0", game.Mode)

	mu.Lock()
	assert.Len(t, received, 5)
	mu.Unlock()

	require.NoError(t, h.sup.Stop())
	assert.Equal(t, 0, h.sup.Snapshot().Game.PlayerCount)
	assert.Equal(t, "", h.sup.Snapshot().Game.Map)
}

func TestCrashIsReportedNotRestarted(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	h.launcher.last().emit(triggerLine)
	require.Eventually(t, h.sup.CanSendCommands, waitFor, tick)
	h.links.last().onEvent([]string{"player.onJoin", "A", "guid"})

	h.launcher.last().exit(3)

	require.Eventually(t, h.sup.HasExited, waitFor, tick)
	assert.False(t, h.sup.Running())
	assert.Equal(t, 3, h.sup.ExitCode())
	require.Eventually(t, func() bool { return h.sup.Snapshot().Game.PlayerCount == 0 }, waitFor, tick)
	assert.False(t, h.sup.CanSendCommands())
	assert.Equal(t, StatusExited, h.sup.Snapshot().Status)
	assert.Equal(t, 1, h.launcher.count())

	require.ErrorIs(t, h.sup.Stop(), ErrNotRunning)
	require.Eventually(t, func() bool {
		for _, typ := range h.activity.types() {
			if typ == logging.ActivityServerCrash {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestStartAfterCrashLaunchesNewProcess(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	h.launcher.last().exit(1)
	require.Eventually(t, h.sup.HasExited, waitFor, tick)

	require.NoError(t, h.sup.Start(context.Background()))
	assert.Equal(t, 2, h.launcher.count())
	assert.True(t, h.sup.Running())
	assert.False(t, h.sup.HasExited())
}

func TestRestartWhenStopped(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.sup.Restart(context.Background()))
	assert.True(t, h.sup.Running())
	assert.Equal(t, 1, h.launcher.count())

	require.NoError(t, h.sup.Restart(context.Background()))
	assert.Equal(t, 2, h.launcher.count())
	assert.Contains(t, h.activity.types(), logging.ActivityServerRestart)
}

func TestRestartReloadsStartupConfig(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))

	require.NoError(t, os.WriteFile(h.startup, []byte("admin.password changed\n"), 0644))
	require.NoError(t, h.sup.Restart(context.Background()))

	h.launcher.last().emit(triggerLine)
	require.Eventually(t, h.sup.CanSendCommands, waitFor, tick)
	assert.Equal(t, []string{"login.plainText", "changed"}, h.links.last().messages()[0])
}

func TestShutdownIsIdempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))

	require.NoError(t, h.sup.Shutdown())
	require.NoError(t, h.sup.Shutdown())
	assert.False(t, h.sup.Running())

	err := h.sup.Start(context.Background())
	require.True(t, errors.Is(err, ErrShutdown))
}

func TestShutdownAfterStop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	require.NoError(t, h.sup.Stop())

	require.NoError(t, h.sup.Shutdown())
	require.NoError(t, h.sup.Shutdown())

	assert.False(t, h.sup.Running())
	assert.False(t, h.sup.HasExited())
	assert.Equal(t, StatusOffline, h.sup.Snapshot().Status)
	assert.Equal(t, 1, h.launcher.count())

	kills := 0
	for _, call := range h.calls.list() {
		if call == "kill" {
			kills++
		}
	}
	assert.Equal(t, 1, kills)

	require.ErrorIs(t, h.sup.Stop(), ErrNotRunning)
	require.ErrorIs(t, h.sup.Start(context.Background()), ErrShutdown)
}

func TestOutputLinesReachLogObservers(t *testing.T) {
	h := newHarness(t)

	lines := make(chan string, 8)
	h.sup.OnLog(func(line string) { lines <- line })

	require.NoError(t, h.sup.Start(context.Background()))
	proc := h.launcher.last()
	proc.emit("first line\r")
	proc.emit("")
	proc.emit("second line")

	assert.Equal(t, "first line", <-lines)
	assert.Equal(t, "second line", <-lines)
}

func TestResourceSamplingPublishesRefresh(t *testing.T) {
	h := newHarness(t)

	refreshed := make(chan Snapshot, 64)
	h.sup.OnRefresh(func(s Snapshot) {
		select {
		case refreshed <- s:
		default:
		}
	})

	require.NoError(t, h.sup.Start(context.Background()))
	h.launcher.last().setUsage(ProcessUsage{CPUTime: time.Second, MemoryBytes: 4096})

	require.Eventually(t, func() bool {
		return h.sup.Snapshot().Resources.MemoryBytes == 4096
	}, waitFor, tick)
	assert.Greater(t, h.sup.Snapshot().Resources.UpTime, time.Duration(0))
	assert.NotEmpty(t, refreshed)

	require.NoError(t, h.sup.Stop())
	assert.Equal(t, ResourceSample{}, h.sup.Snapshot().Resources)
}

func TestLinkFailureIsTolerated(t *testing.T) {
	h := newHarness(t)
	h.links.openErr = errors.New("connection refused")
	require.NoError(t, h.sup.Start(context.Background()))

	lines := make(chan string, 8)
	h.sup.OnLog(func(line string) { lines <- line })
	h.launcher.last().emit(triggerLine)

	require.Eventually(t, func() bool { return h.links.count() == 1 }, waitFor, tick)
	assert.False(t, h.sup.CanSendCommands())
	assert.True(t, h.sup.Running())

	_, err := h.sup.SendCommand(context.Background(), []string{"serverInfo"})
	assert.ErrorIs(t, err, ErrControlLinkUnavailable)
	assert.False(t, errors.Is(err, rcon.ErrNotOpen))
}
