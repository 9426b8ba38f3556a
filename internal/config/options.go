package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Frequency is the server tick rate.
type Frequency int

const (
	FrequencyDefault Frequency = iota // 30 Hz
	FrequencyHigh60
	FrequencyHigh120
)

func (f Frequency) String() string {
	switch f {
	case FrequencyHigh60:
		return "high60"
	case FrequencyHigh120:
		return "high120"
	default:
		return "default"
	}
}

// ParseFrequency maps a CLI value onto a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default", "30":
		return FrequencyDefault, nil
	case "high60", "60":
		return FrequencyHigh60, nil
	case "high120", "120":
		return FrequencyHigh120, nil
	default:
		return FrequencyDefault, fmt.Errorf("unknown frequency %q", value)
	}
}

const (
	DefaultGamePort    = 25200
	DefaultHarmonyPort = 7948
	DefaultRemotePort  = 47200
	DefaultEnvironment = "prod"

	// ServerBinary is the executable expected inside LaunchOptions.Path.
	ServerBinary = "vu.exe"
	// GameBinary is the executable expected inside LaunchOptions.GamePath.
	GameBinary = "bf3.exe"
)

// LaunchOptions describes how the game server is launched. It is built
// once from the command line and not modified afterwards.
type LaunchOptions struct {
	Path         string
	InstancePath string
	GamePath     string

	GamePort    int
	HarmonyPort int
	RemotePort  int

	Frequency Frequency

	Unlisted              bool
	NoUpdate              bool
	HighResTerrain        bool
	DisableTerrainInterop bool
	SkipChecksum          bool

	Environment string
	PerfTrace   bool
	TraceDC     bool
	Trace       bool

	// Wrapper, when set, is executed with the server binary as its first
	// argument (for example "wine").
	Wrapper string
	// StartupPath overrides <instance>/Admin/Startup.txt.
	StartupPath string
}

// DefaultLaunchOptions returns options with the stock ports and environment.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{
		GamePort:    DefaultGamePort,
		HarmonyPort: DefaultHarmonyPort,
		RemotePort:  DefaultRemotePort,
		Environment: DefaultEnvironment,
	}
}

// ServerBinaryPath returns the full path of vu.exe.
func (o LaunchOptions) ServerBinaryPath() string {
	return filepath.Join(o.Path, ServerBinary)
}

// StartupConfigPath returns the location of Startup.txt.
func (o LaunchOptions) StartupConfigPath() string {
	if o.StartupPath != "" {
		return o.StartupPath
	}
	return filepath.Join(o.InstancePath, "Admin", "Startup.txt")
}

// Validate checks the options before the first launch.
func (o LaunchOptions) Validate() error {
	if strings.TrimSpace(o.InstancePath) == "" {
		return fmt.Errorf("instance path is required")
	}

	if _, err := os.Stat(o.ServerBinaryPath()); err != nil {
		return fmt.Errorf("%s not found in %q: %w", ServerBinary, o.Path, err)
	}

	if o.GamePath != "" {
		if _, err := os.Stat(filepath.Join(o.GamePath, GameBinary)); err != nil {
			return fmt.Errorf("%s not found in %q: %w", GameBinary, o.GamePath, err)
		}
	}

	for name, port := range map[string]int{
		"game port":    o.GamePort,
		"harmony port": o.HarmonyPort,
		"remote port":  o.RemotePort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s %d out of range", name, port)
		}
	}

	if strings.TrimSpace(o.Environment) == "" {
		return fmt.Errorf("environment is required")
	}

	return nil
}
