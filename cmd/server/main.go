package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/TheGojiOG/vuserver/internal/config"
	"github.com/TheGojiOG/vuserver/internal/logging"
)

// CLI maps command line flags onto LaunchOptions.
var CLI struct {
	Path     string `help:"Path to Venice Unleashed." required:"" type:"existingdir"`
	Instance string `help:"Path to the VU server instance." required:"" type:"existingdir"`
	GamePath string `name:"gamepath" help:"Path to Battlefield 3 game files." type:"existingdir"`

	GamePort    int    `name:"gameport" help:"VU server game port." default:"25200"`
	HarmonyPort int    `name:"harmonyport" help:"VU server harmony port." default:"7948"`
	RemotePort  int    `name:"remoteport" help:"VU server remote administration port." default:"47200"`
	Frequency   string `help:"Server tick rate (default, high60, high120)." default:"default" enum:"default,30,high60,60,high120,120"`

	Unlisted              bool `help:"Hide the server from the server list."`
	NoUpdate              bool `name:"noupdate" help:"Prevent automatic updates from restarting the server."`
	HighResTerrain        bool `name:"highresterrain" help:"Enable high resolution terrain."`
	DisableTerrainInterop bool `name:"disableterraininterop" help:"Disable interpolation between terrain LODs."`
	SkipChecksum          bool `name:"skipchecksum" help:"Disable level checksum validation on client connection."`

	Env       string `help:"Zeus environment to connect to." default:"prod"`
	PerfTrace bool   `name:"perftrace" help:"Write a performance profile to perftrace-server.csv."`
	TraceDC   bool   `name:"tracedc" help:"Trace DataContainer usage in VEXT."`
	Trace     bool   `help:"Enable verbose server logging."`

	Wrapper string `help:"Run vu.exe through this binary (for example wine)."`
	Startup string `help:"Override <instance>/Admin/Startup.txt." type:"path"`
	Config  string `help:"Manager configuration file." type:"path" env:"CONFIG_PATH"`
}

func launchOptions() (config.LaunchOptions, error) {
	frequency, err := config.ParseFrequency(CLI.Frequency)
	if err != nil {
		return config.LaunchOptions{}, err
	}

	return config.LaunchOptions{
		Path:                  CLI.Path,
		InstancePath:          CLI.Instance,
		GamePath:              CLI.GamePath,
		GamePort:              CLI.GamePort,
		HarmonyPort:           CLI.HarmonyPort,
		RemotePort:            CLI.RemotePort,
		Frequency:             frequency,
		Unlisted:              CLI.Unlisted,
		NoUpdate:              CLI.NoUpdate,
		HighResTerrain:        CLI.HighResTerrain,
		DisableTerrainInterop: CLI.DisableTerrainInterop,
		SkipChecksum:          CLI.SkipChecksum,
		Environment:           CLI.Env,
		PerfTrace:             CLI.PerfTrace,
		TraceDC:               CLI.TraceDC,
		Trace:                 CLI.Trace,
		Wrapper:               CLI.Wrapper,
		StartupPath:           CLI.Startup,
	}, nil
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("vuserver"),
		kong.Description("Venice Unleashed server supervisor"),
		kong.UsageOnError(),
	)

	opts, err := launchOptions()
	kctx.FatalIfErrorf(err)
	kctx.FatalIfErrorf(opts.Validate())

	if err := run(opts); err != nil {
		log.Printf("Supervisor exited with error: %v", err)
		os.Exit(1)
	}
}

func run(opts config.LaunchOptions) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if _, err := logging.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		return err
	}
	log.Println("Supervisor exited")
	return nil
}
