package api

import (
	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/api/handlers"
	"github.com/TheGojiOG/vuserver/internal/api/middleware"
	"github.com/TheGojiOG/vuserver/internal/auth"
	"github.com/TheGojiOG/vuserver/internal/backup"
	"github.com/TheGojiOG/vuserver/internal/config"
	"github.com/TheGojiOG/vuserver/internal/console"
	"github.com/TheGojiOG/vuserver/internal/logging"
	"github.com/TheGojiOG/vuserver/internal/metrics"
	"github.com/TheGojiOG/vuserver/internal/scheduler"
	"github.com/TheGojiOG/vuserver/internal/websocket"
)

// Dependencies are the components served by the HTTP API. Server and
// Authenticator are required; routes for any other nil component are not
// registered.
type Dependencies struct {
	Server        handlers.ServerController
	Authenticator *auth.Authenticator
	Activity      *logging.ActivityLogger
	Session       *console.Session
	History       *console.CommandHistory
	Hub           *websocket.Hub
	Backups       *backup.Manager
	Metrics       *metrics.Collector
	Scheduler     *scheduler.Runner
	ServerID      string
	InstanceDir   string
}

// SetupRouter configures and returns the HTTP router
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	if deps.Activity != nil {
		router.Use(middleware.Audit(deps.Activity))
	}
	router.Use(middleware.CORS(cfg.API.CORS))
	router.Use(middleware.RateLimit(cfg.API.RateLimit))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.ContentSecurityPolicy())

	var recorder handlers.CommandRecorder
	if deps.Activity != nil {
		recorder = deps.Activity
	}

	authHandler := handlers.NewAuthHandler(deps.Authenticator)
	serverHandler := handlers.NewServerHandler(deps.Server, recorder)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.POST("/auth/login", authHandler.Login)
	}

	// Protected routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(deps.Authenticator))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		srv := protected.Group("/server")
		{
			srv.GET("/status", serverHandler.GetServerStatus)
			srv.POST("/start", serverHandler.StartServer)
			srv.POST("/stop", serverHandler.StopServer)
			srv.POST("/restart", serverHandler.RestartServer)
			srv.POST("/command", serverHandler.ExecuteCommand)
		}

		if deps.Session != nil && deps.Hub != nil {
			consoleHandler := handlers.NewConsoleHandler(
				deps.ServerID,
				deps.Server,
				deps.Session,
				deps.History,
				deps.Hub,
				recorder,
				cfg.API.CORS.AllowedOrigins,
			)
			deps.Hub.SetMessageHandler(consoleHandler.HandleClientMessage)

			srv.GET("/console", consoleHandler.GetOutput)
			srv.GET("/console/history", consoleHandler.GetCommandHistory)
			srv.GET("/console/history/search", consoleHandler.SearchCommandHistory)
			srv.GET("/console/autocomplete", consoleHandler.GetAutocomplete)
			protected.GET("/ws", consoleHandler.HandleWebSocket)
		}

		if deps.Backups != nil {
			backupHandler := handlers.NewBackupHandler(deps.Backups, deps.Server, deps.InstanceDir)
			backups := srv.Group("/backups")
			{
				backups.GET("", backupHandler.ListBackups)
				backups.POST("", backupHandler.CreateBackup)
				backups.GET("/:id", backupHandler.GetBackup)
				backups.DELETE("/:id", backupHandler.DeleteBackup)
				backups.POST("/:id/restore", backupHandler.RestoreBackup)
			}
		}

		history := handlers.NewHistoryHandler(deps.Activity, deps.Metrics, deps.Scheduler)
		if deps.Activity != nil {
			srv.GET("/activity", history.GetActivities)
			srv.GET("/activity/stats", history.GetActivityStats)
		}
		if deps.Metrics != nil {
			srv.GET("/metrics", history.GetMetrics)
		}
		if deps.Scheduler != nil {
			srv.GET("/schedule", history.GetSchedule)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}
