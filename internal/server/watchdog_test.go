package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/vuserver/internal/config"
	"github.com/TheGojiOG/vuserver/internal/logging"
)

type fakeCrashTarget struct {
	exited   bool
	code     int
	restarts int
	err      error
	logs     []string
}

func (f *fakeCrashTarget) HasExited() bool { return f.exited }
func (f *fakeCrashTarget) ExitCode() int   { return f.code }
func (f *fakeCrashTarget) Log(line string) { f.logs = append(f.logs, line) }
func (f *fakeCrashTarget) Restart(ctx context.Context) error {
	f.restarts++
	if f.err == nil {
		f.exited = false
	}
	return f.err
}

func TestWatchdogRestartsOnlyAfterCrash(t *testing.T) {
	target := &fakeCrashTarget{}
	w := NewWatchdog(target, time.Second)

	assert.False(t, w.Check(context.Background()))

	target.exited = true
	target.code = 139
	assert.True(t, w.Check(context.Background()))
	assert.Equal(t, 1, target.restarts)
	require.NotEmpty(t, target.logs)
	assert.Equal(t, "Server exited unexpectedly with code 139, restarting...", target.logs[0])

	assert.False(t, w.Check(context.Background()))
}

func TestWatchdogRetriesAfterFailedRestart(t *testing.T) {
	target := &fakeCrashTarget{exited: true, err: errors.New("boom")}
	w := NewWatchdog(target, time.Second)

	w.Check(context.Background())
	w.Check(context.Background())
	assert.Equal(t, 2, target.restarts)
}

func TestWatchdogIgnoresHealthyServer(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))

	w := NewWatchdog(h.sup, time.Hour)
	assert.False(t, w.Check(context.Background()))
	assert.Equal(t, 1, h.launcher.count())
}

func TestWatchdogIgnoresDeliberateStop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	require.NoError(t, h.sup.Stop())

	w := NewWatchdog(h.sup, time.Hour)
	assert.False(t, w.Check(context.Background()))
	assert.Equal(t, 1, h.launcher.count())
}

func TestWatchdogRestartsCrashedServer(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	h.launcher.last().exit(7)
	require.Eventually(t, h.sup.HasExited, waitFor, tick)

	w := NewWatchdog(h.sup, time.Hour)
	w.SetActivityRecorder(h.activity)
	assert.True(t, w.Check(context.Background()))

	assert.Equal(t, 2, h.launcher.count())
	assert.True(t, h.sup.Running())
	assert.False(t, h.sup.HasExited())
	assert.Contains(t, h.activity.types(), logging.ActivityServerCrashRestart)
}

func TestWatchdogKeepsCrashAfterFailedRestart(t *testing.T) {
	tests := []struct {
		name   string
		fail   func(t *testing.T, h *harness)
		repair func(t *testing.T, h *harness)
	}{
		{
			name: "startup config unreadable",
			fail: func(t *testing.T, h *harness) {
				require.NoError(t, os.Rename(h.startup, h.startup+".bak"))
			},
			repair: func(t *testing.T, h *harness) {
				require.NoError(t, os.Rename(h.startup+".bak", h.startup))
			},
		},
		{
			name: "admin password missing",
			fail: func(t *testing.T, h *harness) {
				require.NoError(t, os.WriteFile(h.startup, []byte("vars.serverName test\n"), 0644))
			},
			repair: func(t *testing.T, h *harness) {
				require.NoError(t, os.WriteFile(h.startup, []byte("admin.password letmein\n"), 0644))
			},
		},
		{
			name: "server binary missing",
			fail: func(t *testing.T, h *harness) {
				binary := filepath.Join(h.opts.Path, config.ServerBinary)
				require.NoError(t, os.Rename(binary, binary+".bak"))
			},
			repair: func(t *testing.T, h *harness) {
				binary := filepath.Join(h.opts.Path, config.ServerBinary)
				require.NoError(t, os.Rename(binary+".bak", binary))
			},
		},
		{
			name:   "spawn fails",
			fail:   func(t *testing.T, h *harness) { h.launcher.fail(errSpawn) },
			repair: func(t *testing.T, h *harness) { h.launcher.fail(nil) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.sup.Start(context.Background()))
			h.launcher.last().exit(5)
			require.Eventually(t, h.sup.HasExited, waitFor, tick)

			w := NewWatchdog(h.sup, time.Hour)

			tt.fail(t, h)
			assert.True(t, w.Check(context.Background()))
			assert.Equal(t, 1, h.launcher.count())
			assert.True(t, h.sup.HasExited())
			assert.False(t, h.sup.Running())
			assert.Equal(t, 5, h.sup.ExitCode())
			assert.Equal(t, StatusExited, h.sup.Snapshot().Status)

			tt.repair(t, h)
			assert.True(t, w.Check(context.Background()))
			assert.Equal(t, 2, h.launcher.count())
			assert.True(t, h.sup.Running())
			assert.False(t, h.sup.HasExited())
		})
	}
}

func TestWatchdogLoopStopsWithContext(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sup.Start(context.Background()))
	h.launcher.last().exit(1)
	require.Eventually(t, h.sup.HasExited, waitFor, tick)

	ctx, cancel := context.WithCancel(context.Background())
	NewWatchdog(h.sup, 10*time.Millisecond).Start(ctx)

	require.Eventually(t, func() bool { return h.launcher.count() == 2 }, waitFor, tick)
	cancel()
	assert.True(t, h.sup.Running())
}
