package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/TheGojiOG/vuserver/internal/api/middleware"
	"github.com/TheGojiOG/vuserver/internal/console"
	ws "github.com/TheGojiOG/vuserver/internal/websocket"
)

// Client message types handled by HandleClientMessage
const (
	clientExecuteCommand = "execute_command"
	clientRequestHistory = "request_history"
)

// ConsoleHandler serves console output, command history and the live
// WebSocket stream
type ConsoleHandler struct {
	serverID       string
	ctrl           ServerController
	session        *console.Session
	history        *console.CommandHistory
	hub            *ws.Hub
	recorder       CommandRecorder
	allowedOrigins []string
}

// NewConsoleHandler creates a new console handler. history and recorder may be nil.
func NewConsoleHandler(
	serverID string,
	ctrl ServerController,
	session *console.Session,
	history *console.CommandHistory,
	hub *ws.Hub,
	recorder CommandRecorder,
	allowedOrigins []string,
) *ConsoleHandler {
	return &ConsoleHandler{
		serverID:       serverID,
		ctrl:           ctrl,
		session:        session,
		history:        history,
		hub:            hub,
		recorder:       recorder,
		allowedOrigins: allowedOrigins,
	}
}

// GetOutput returns buffered console lines, optionally filtered
// GET /api/v1/server/console?lines=200&filter=errors|search|regex&pattern=...
func (h *ConsoleHandler) GetOutput(c *gin.Context) {
	lines := queryInt(c, "lines", 200, 10000)

	filter, err := console.NewOutputFilter(c.Query("filter"), c.Query("pattern"), c.Query("case_sensitive") == "true")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	output := filter.FilterLines(h.session.GetHistoricalOutput(lines))
	c.JSON(http.StatusOK, gin.H{
		"lines":          output,
		"count":          len(output),
		"active_viewers": h.session.GetActiveViewers(),
	})
}

// GetCommandHistory returns recent commands
// GET /api/v1/server/console/history
func (h *ConsoleHandler) GetCommandHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Command history is not available"})
		return
	}

	commands, err := h.history.GetRecentCommands(h.serverID, queryInt(c, "limit", 50, 500))
	if err != nil {
		log.Printf("[Console] Failed to get command history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get command history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": commands,
		"count":    len(commands),
	})
}

// SearchCommandHistory searches command history
// GET /api/v1/server/console/history/search?q=keyword
func (h *ConsoleHandler) SearchCommandHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Command history is not available"})
		return
	}

	query := c.Query("q")
	commands, err := h.history.SearchCommands(h.serverID, query, queryInt(c, "limit", 50, 500))
	if err != nil {
		log.Printf("[Console] Failed to search command history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search command history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": commands,
		"count":    len(commands),
		"query":    query,
	})
}

// GetAutocomplete returns command autocomplete suggestions
// GET /api/v1/server/console/autocomplete?prefix=admin.
func (h *ConsoleHandler) GetAutocomplete(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"suggestions": []string{}})
		return
	}

	suggestions, err := h.history.GetAutocomplete(h.serverID, c.Query("prefix"), 10)
	if err != nil {
		log.Printf("[Console] Failed to get autocomplete: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get autocomplete"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// HandleWebSocket upgrades the connection and streams console output,
// status snapshots and RCON events to the client
// GET /api/v1/ws
func (h *ConsoleHandler) HandleWebSocket(c *gin.Context) {
	username := c.GetString(middleware.ContextUsername)

	upgrader := buildUpgrader(h.allowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Console] Failed to upgrade WebSocket: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	client := ws.NewClient(h.hub, conn, username, ws.RoomServer)
	h.hub.Register <- client

	for _, line := range h.session.GetHistoricalOutput(100) {
		client.SendMessage(ws.MessageConsoleOutput, map[string]interface{}{
			"line":       line,
			"server_id":  h.serverID,
			"historical": true,
		})
	}
	client.SendMessage(ws.MessageStatus, h.ctrl.Snapshot())

	go client.WritePump()
	go client.ReadPump()
}

// HandleClientMessage handles a message read from a WebSocket client.
// Commands go through the console router, so start/stop/restart work the
// same as on the local console and RCON output is streamed back to every viewer.
func (h *ConsoleHandler) HandleClientMessage(client *ws.Client, msg *ws.Message) {
	switch msg.Type {
	case clientExecuteCommand:
		payload, ok := msg.Payload.(map[string]interface{})
		if !ok {
			client.SendMessage(ws.MessageError, map[string]interface{}{"message": "Invalid payload"})
			return
		}

		raw, _ := payload["command"].(string)
		command, err := console.SanitizeCommand(raw)
		if err != nil {
			client.SendMessage(ws.MessageError, map[string]interface{}{"message": err.Error()})
			return
		}

		if console.Classify(console.Tokenize(command)) == console.VerbExit {
			client.SendMessage(ws.MessageError, map[string]interface{}{"message": "exit is only available on the server console"})
			return
		}

		router := console.NewRouter(h.ctrl, nil)
		router.SetActor("ws:" + client.Username)
		if h.recorder != nil {
			router.SetCommandRecorder(h.recorder)
		}

		verb := router.Dispatch(context.Background(), command)
		client.SendMessage(ws.MessageCommandExecuted, map[string]interface{}{
			"command": command,
			"verb":    verb,
		})

	case clientRequestHistory:
		lines := 100
		if payload, ok := msg.Payload.(map[string]interface{}); ok {
			if l, ok := payload["lines"].(float64); ok && l > 0 {
				lines = int(l)
			}
		}
		client.SendMessage("historical_output", map[string]interface{}{
			"lines": h.session.GetHistoricalOutput(lines),
		})

	default:
		log.Printf("[Console] Unknown message type: %s", msg.Type)
	}
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.IsOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}
}
