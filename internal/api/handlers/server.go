package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/console"
	"github.com/TheGojiOG/vuserver/internal/rcon"
	"github.com/TheGojiOG/vuserver/internal/server"
)

// ServerHandler handles lifecycle and command requests for the supervised server
type ServerHandler struct {
	ctrl           ServerController
	recorder       CommandRecorder
	commandTimeout time.Duration
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// NewServerHandler creates a new server handler. recorder may be nil.
func NewServerHandler(ctrl ServerController, recorder CommandRecorder) *ServerHandler {
	return &ServerHandler{
		ctrl:           ctrl,
		recorder:       recorder,
		commandTimeout: 10 * time.Second,
	}
}

// GetServerStatus returns the current supervisor snapshot
// GET /api/v1/server/status
func (h *ServerHandler) GetServerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

// StartServer launches the server
// POST /api/v1/server/start
func (h *ServerHandler) StartServer(c *gin.Context) {
	if err := h.ctrl.Start(c.Request.Context()); err != nil {
		log.Printf("[API] Failed to start server: %v", err)
		h.lifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Server started", "status": h.ctrl.Snapshot()})
}

// StopServer kills the server
// POST /api/v1/server/stop
func (h *ServerHandler) StopServer(c *gin.Context) {
	if err := h.ctrl.Stop(); err != nil {
		log.Printf("[API] Failed to stop server: %v", err)
		h.lifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Server stopped", "status": h.ctrl.Snapshot()})
}

// RestartServer stops the server if needed and starts it again
// POST /api/v1/server/restart
func (h *ServerHandler) RestartServer(c *gin.Context) {
	if err := h.ctrl.Restart(c.Request.Context()); err != nil {
		log.Printf("[API] Failed to restart server: %v", err)
		h.lifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Server restarted", "status": h.ctrl.Snapshot()})
}

func (h *ServerHandler) lifecycleError(c *gin.Context, err error) {
	var launchErr *server.LaunchError
	switch {
	case errors.Is(err, server.ErrAlreadyRunning), errors.Is(err, server.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, server.ErrShutdown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &launchErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to launch server", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ExecuteCommand sends one RCON command and returns the response words
// POST /api/v1/server/command
func (h *ServerHandler) ExecuteCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	command, err := console.SanitizeCommand(req.Command)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	words := rcon.SplitWords(command)
	if len(words) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": console.ErrEmptyCommand.Error()})
		return
	}

	if !h.ctrl.CanSendCommands() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "RCON unavailable"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.commandTimeout)
	defer cancel()

	response, err := h.ctrl.SendCommand(ctx, words)
	if h.recorder != nil {
		if recErr := h.recorder.LogCommandExecute(actorFrom(c, "api"), command, response, err); recErr != nil {
			log.Printf("[API] Failed to record command: %v", recErr)
		}
	}

	var reqErr *rcon.RequestError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "response": response})
	case errors.As(err, &reqErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": reqErr.Error(), "response": reqErr.Words})
	case errors.Is(err, rcon.ErrNotOpen), errors.Is(err, rcon.ErrClosed), errors.Is(err, server.ErrControlLinkUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"success": false, "error": "RCON request timed out"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}
