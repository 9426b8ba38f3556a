package server

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TheGojiOG/vuserver/internal/config"
)

// wrappedBinary is the console entry point passed to a wrapper such as wine.
const wrappedBinary = "vu.com"

// BuildArguments returns the server command line for opts. The order is
// fixed so identical options always produce identical arguments.
func BuildArguments(opts config.LaunchOptions) []string {
	args := []string{"-server", "-dedicated", "-headless"}

	args = append(args, "-serverInstancePath", opts.InstancePath)

	if strings.TrimSpace(opts.GamePath) != "" {
		args = append(args, "-gamepath", opts.GamePath)
	}

	args = append(args,
		"-listen", fmt.Sprintf("0.0.0.0:%d", opts.GamePort),
		"-mHarmonyPort", strconv.Itoa(opts.HarmonyPort),
		"-RemoteAdminPort", fmt.Sprintf("0.0.0.0:%d", opts.RemotePort),
	)

	if opts.Unlisted {
		args = append(args, "-unlisted")
	}
	if opts.NoUpdate {
		args = append(args, "-noUpdate")
	}
	if opts.HighResTerrain {
		args = append(args, "-highResTerrain")
	}
	if opts.DisableTerrainInterop {
		args = append(args, "-disableTerrainInterop")
	}
	if opts.SkipChecksum {
		args = append(args, "-skipChecksum")
	}

	args = append(args, "-env", opts.Environment)
	if opts.PerfTrace {
		args = append(args, "-perftrace")
	}
	if opts.TraceDC {
		args = append(args, "-tracedc")
	}
	if opts.Trace {
		args = append(args, "-trace")
	}

	switch opts.Frequency {
	case config.FrequencyHigh60:
		args = append(args, "-high60")
	case config.FrequencyHigh120:
		args = append(args, "-high120")
	}

	return args
}

// BuildLaunchSpec returns what to execute for opts. With a wrapper the
// wrapper is executed and the server entry point becomes its first argument.
func BuildLaunchSpec(opts config.LaunchOptions) LaunchSpec {
	args := BuildArguments(opts)
	if opts.Wrapper != "" {
		return LaunchSpec{
			Binary: opts.Wrapper,
			Args:   append([]string{filepath.Join(opts.Path, wrappedBinary)}, args...),
			Dir:    opts.Path,
		}
	}
	return LaunchSpec{
		Binary: opts.ServerBinaryPath(),
		Args:   args,
		Dir:    opts.Path,
	}
}

// FormatCommandLine renders a spec for logging, quoting words with spaces.
func FormatCommandLine(spec LaunchSpec) string {
	parts := make([]string, 0, len(spec.Args)+1)
	for _, word := range append([]string{spec.Binary}, spec.Args...) {
		if word == "" || strings.ContainsAny(word, " \t\"") {
			word = strconv.Quote(word)
		}
		parts = append(parts, word)
	}
	return strings.Join(parts, " ")
}
