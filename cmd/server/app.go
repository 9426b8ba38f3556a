package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheGojiOG/vuserver/internal/api"
	"github.com/TheGojiOG/vuserver/internal/auth"
	"github.com/TheGojiOG/vuserver/internal/backup"
	"github.com/TheGojiOG/vuserver/internal/config"
	"github.com/TheGojiOG/vuserver/internal/console"
	"github.com/TheGojiOG/vuserver/internal/database"
	"github.com/TheGojiOG/vuserver/internal/logging"
	"github.com/TheGojiOG/vuserver/internal/metrics"
	"github.com/TheGojiOG/vuserver/internal/rpc"
	"github.com/TheGojiOG/vuserver/internal/scheduler"
	"github.com/TheGojiOG/vuserver/internal/server"
	"github.com/TheGojiOG/vuserver/internal/websocket"
)

// app owns every component for one supervised instance.
type app struct {
	cfg      *config.Config
	opts     config.LaunchOptions
	serverID string

	db        *database.DB
	activity  *logging.ActivityLogger
	hub       *websocket.Hub
	session   *console.Session
	sup       *server.Supervisor
	collector *metrics.Collector
	backups   *backup.Manager
	scheduler *scheduler.Runner

	authenticator *auth.Authenticator
	httpServer    *http.Server
	rpcServer     *rpc.Server
}

func newApp(cfg *config.Config, opts config.LaunchOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		opts:     opts,
		serverID: filepath.Base(filepath.Clean(opts.InstancePath)),
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	log.Printf("[Database] Running migrations on %s", db.Path())
	if err := db.Migrate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.activity, err = logging.NewActivityLogger(db.DB, a.serverID, filepath.Join(cfg.Storage.LogDir, "activity"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize activity logger: %w", err)
	}

	a.hub = websocket.NewHub()

	var logWriter *console.LogWriter
	if cfg.Console.Persist {
		logWriter, err = console.NewLogWriter(&console.LogWriterConfig{
			ServerID:   a.serverID,
			LogDir:     filepath.Join(cfg.Storage.LogDir, "console"),
			MaxSizeMB:  cfg.Console.MaxSize,
			MaxBackups: cfg.Console.MaxBackups,
			MaxAgeDays: 30,
			Compress:   true,
			DB:         db.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize console log: %w", err)
		}
	}
	a.session = console.NewSession(a.serverID, a.hub, cfg.Console.BufferLines, logWriter)

	a.sup = server.NewSupervisor(opts, server.NewExecLauncher(), config.NewStartupManager(opts.StartupConfigPath()))
	a.sup.SetActivityRecorder(a.activity)
	a.sup.OnLog(func(line string) {
		fmt.Fprintln(os.Stdout, line)
		a.session.WriteLine(line)
	})
	a.sup.OnRefresh(func(snap server.Snapshot) {
		a.hub.Publish(websocket.MessageStatus, snap)
	})
	a.sup.OnData(func(words []string) {
		a.hub.Publish(websocket.MessageRCONEvent, map[string]interface{}{"words": words})
	})

	if cfg.Metrics.Enabled {
		a.collector = metrics.NewCollector(a.sup, a.serverID, db, time.Duration(cfg.Metrics.Interval)*time.Second, cfg.Metrics.RetentionDays)
	}

	var backups scheduler.BackupCreator
	if cfg.Backup.Enabled {
		dest, err := backup.NewDestination(cfg.Backup.Destination)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize backup destination: %w", err)
		}
		a.backups = backup.NewManager(db.DB, dest, backup.Options{
			ServerID:    a.serverID,
			InstanceDir: opts.InstancePath,
			WorkDir:     filepath.Join(cfg.Storage.DataDir, "staging"),
			Compression: backup.ParseCompression(cfg.Backup.Compression),
			Retention:   cfg.Backup.Retention,
		})
		a.backups.SetEventRecorder(a.activity)
		backups = a.backups
	}

	a.scheduler = scheduler.NewRunner(a.sup, backups, a.activity)
	if err := a.scheduler.Configure(cfg.Schedule, cfg.Backup); err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	if cfg.API.Enabled || (cfg.RPC.Enabled && cfg.RPC.RequireAuth) {
		tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.AccessTokenTTL())
		a.authenticator = auth.NewAuthenticator(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, tokens)
	}

	if cfg.API.Enabled {
		router := api.SetupRouter(cfg, api.Dependencies{
			Server:        a.sup,
			Authenticator: a.authenticator,
			Activity:      a.activity,
			Session:       a.session,
			History:       console.NewCommandHistory(db.DB),
			Hub:           a.hub,
			Backups:       a.backups,
			Metrics:       a.collector,
			Scheduler:     a.scheduler,
			ServerID:      a.serverID,
			InstanceDir:   opts.InstancePath,
		})
		a.httpServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}

	if cfg.RPC.Enabled {
		var validator rpc.TokenValidator
		if cfg.RPC.RequireAuth {
			validator = a.authenticator
		}
		a.rpcServer = rpc.NewServer(rpc.NewService(a.sup, a.activity), validator)
	}

	log.Println("All supervisor components initialized")
	return a, nil
}

// Run starts the server and blocks until ctx is cancelled or the operator
// types exit. The server process is always killed before Run returns.
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(ctx)
	a.session.Start(ctx)
	defer a.session.Stop()

	if a.collector != nil {
		a.collector.Start()
		defer a.collector.Stop()
	}

	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	if a.cfg.Watchdog.Enabled {
		watchdog := server.NewWatchdog(a.sup, a.cfg.WatchdogInterval())
		watchdog.SetActivityRecorder(a.activity)
		watchdog.Start(ctx)
	}

	errCh := make(chan error, 2)

	if a.httpServer != nil {
		go func() {
			log.Printf("Starting API server on %s", a.httpServer.Addr)
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
	}

	if a.rpcServer != nil {
		lis, err := net.Listen("tcp", a.cfg.RPC.Listen)
		if err != nil {
			return fmt.Errorf("rpc listen: %w", err)
		}
		go func() {
			if err := a.rpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	defer func() {
		if err := a.sup.Shutdown(); err != nil {
			log.Printf("Failed to stop server: %v", err)
		}
	}()

	router := console.NewRouter(a.sup, cancel)
	router.SetActor("console")
	router.SetCommandRecorder(a.activity)

	if err := a.sup.Start(ctx); err != nil {
		a.sup.Log(fmt.Sprintf("[Console] Failed to start server: %v", err))
	}

	go readConsole(ctx, os.Stdin, router)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Println("Shutting down...")
	a.shutdownServers()
	return runErr
}

func (a *app) shutdownServers() {
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			log.Printf("API server forced to shutdown: %v", err)
		}
	}
	if a.rpcServer != nil {
		a.rpcServer.Stop()
	}
}

// Close releases storage. Run must have returned.
func (a *app) Close() {
	if a.backups != nil {
		a.backups.Close()
	}
	if a.activity != nil {
		a.activity.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// readConsole feeds operator input lines to the router until input closes.
func readConsole(ctx context.Context, r io.Reader, router *console.Router) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if router.Dispatch(ctx, line) == console.VerbExit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[Console] Failed to read input: %v", err)
	}
}
