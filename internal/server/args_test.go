package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/vuserver/internal/config"
)

func TestBuildArgumentsOrder(t *testing.T) {
	opts := config.DefaultLaunchOptions()
	opts.InstancePath = "/srv/vu/instance"
	opts.GamePath = "/srv/bf3"
	opts.Unlisted = true
	opts.SkipChecksum = true
	opts.Trace = true
	opts.Frequency = config.FrequencyHigh120

	want := []string{
		"-server", "-dedicated", "-headless",
		"-serverInstancePath", "/srv/vu/instance",
		"-gamepath", "/srv/bf3",
		"-listen", "0.0.0.0:25200",
		"-mHarmonyPort", "7948",
		"-RemoteAdminPort", "0.0.0.0:47200",
		"-unlisted", "-skipChecksum",
		"-env", "prod",
		"-trace",
		"-high120",
	}

	assert.Equal(t, want, BuildArguments(opts))
}

func TestBuildArgumentsMinimal(t *testing.T) {
	opts := config.DefaultLaunchOptions()
	opts.InstancePath = "inst"

	got := FormatCommandLine(LaunchSpec{Binary: "vu.exe", Args: BuildArguments(opts)})
	assert.Equal(t, "vu.exe -server -dedicated -headless -serverInstancePath inst -listen 0.0.0.0:25200 -mHarmonyPort 7948 -RemoteAdminPort 0.0.0.0:47200 -env prod", got)
}

func TestBuildLaunchSpecWithWrapper(t *testing.T) {
	opts := config.DefaultLaunchOptions()
	opts.Path = "/opt/vu"
	opts.InstancePath = "/srv/My Instance"
	opts.Wrapper = "wine"

	spec := BuildLaunchSpec(opts)
	assert.Equal(t, "wine", spec.Binary)
	require.NotEmpty(t, spec.Args)
	assert.Equal(t, "/opt/vu/vu.com", spec.Args[0])
	assert.Equal(t, "/opt/vu", spec.Dir)
	assert.Contains(t, FormatCommandLine(spec), "wine /opt/vu/vu.com -server")
}
