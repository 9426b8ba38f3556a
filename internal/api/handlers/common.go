package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/api/middleware"
	"github.com/TheGojiOG/vuserver/internal/console"
	"github.com/TheGojiOG/vuserver/internal/server"
)

// ServerController is the supervisor surface exposed over HTTP.
type ServerController interface {
	console.Controller
	Running() bool
	Snapshot() server.Snapshot
}

// CommandRecorder persists commands executed through the API.
type CommandRecorder interface {
	LogCommandExecute(actor, command string, response []string, cmdErr error) error
}

func actorFrom(c *gin.Context, fallback string) string {
	if username := c.GetString(middleware.ContextUsername); username != "" {
		return username
	}
	return fallback
}

func queryInt(c *gin.Context, key string, def, max int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil || value <= 0 {
		return def
	}
	if max > 0 && value > max {
		return max
	}
	return value
}
