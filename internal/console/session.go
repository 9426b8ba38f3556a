package console

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/TheGojiOG/vuserver/internal/websocket"
)

// Session fans supervisor output out to the ring buffer, the console log
// file and connected WebSocket clients.
type Session struct {
	ServerID     string
	Hub          *websocket.Hub
	Room         string
	Buffer       *RingBuffer
	logWriter    *LogWriter
	cancel       context.CancelFunc
	done         chan struct{}
	mu           sync.RWMutex
	lastActivity time.Time
	isActive     bool
	outputChan   chan string
	dropped      int
}

// RingBuffer implements a circular buffer for console output
type RingBuffer struct {
	lines    []string
	maxLines int
	current  int
	full     bool
	mu       sync.RWMutex
}

// Match all ANSI/VT100 escape sequences including CSI, OSC, and other control sequences
var ansiEscapePattern = regexp.MustCompile(`\x1b(\[[0-9;?!]*[A-Za-z>hp]|\([B0]|[=>])`)

// NewRingBuffer creates a new ring buffer
func NewRingBuffer(maxLines int) *RingBuffer {
	if maxLines <= 0 {
		maxLines = 1000
	}
	return &RingBuffer{
		lines:    make([]string, maxLines),
		maxLines: maxLines,
		current:  0,
		full:     false,
	}
}

// Add adds a line to the buffer
func (rb *RingBuffer) Add(line string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.lines[rb.current] = line
	rb.current = (rb.current + 1) % rb.maxLines

	if rb.current == 0 {
		rb.full = true
	}
}

// GetLines returns all lines in order (oldest to newest)
func (rb *RingBuffer) GetLines() []string {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		result := make([]string, rb.current)
		copy(result, rb.lines[:rb.current])
		return result
	}

	// Rebuild in correct order
	result := make([]string, rb.maxLines)
	for i := 0; i < rb.maxLines; i++ {
		result[i] = rb.lines[(rb.current+i)%rb.maxLines]
	}
	return result
}

// GetLast returns the last N lines
func (rb *RingBuffer) GetLast(n int) []string {
	lines := rb.GetLines()
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

// NewSession creates a console session. hub and logWriter may be nil.
func NewSession(serverID string, hub *websocket.Hub, bufferLines int, logWriter *LogWriter) *Session {
	return &Session{
		ServerID:     serverID,
		Hub:          hub,
		Room:         websocket.RoomServer,
		Buffer:       NewRingBuffer(bufferLines),
		logWriter:    logWriter,
		lastActivity: time.Now(),
		outputChan:   make(chan string, 1024),
	}
}

// Start begins delivering lines written to the session.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isActive {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isActive = true
	s.mu.Unlock()

	go s.broadcastOutput(ctx)
	log.Printf("[Console] Started session for server %s", s.ServerID)
}

// Stop stops delivery and closes the console log file.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.isActive {
		s.mu.Unlock()
		return
	}
	s.isActive = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done

	if s.logWriter != nil {
		if err := s.logWriter.Close(); err != nil {
			log.Printf("[Console] Failed to close console log: %v", err)
		}
	}
	log.Printf("[Console] Stopped session for server %s", s.ServerID)
}

// WriteLine queues a line for delivery. It adds the line to the ring
// buffer immediately and never blocks; when the delivery queue is full
// the line is kept in the buffer only.
func (s *Session) WriteLine(line string) {
	clean := sanitizeConsoleLine(line)
	if clean == "" {
		return
	}

	s.Buffer.Add(clean)

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	select {
	case s.outputChan <- clean:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		if dropped == 1 || dropped%100 == 0 {
			log.Printf("[Console] Output queue full for %s, %d lines not streamed", s.ServerID, dropped)
		}
	}
}

// broadcastOutput broadcasts console output to all connected clients
func (s *Session) broadcastOutput(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return

		case line := <-s.outputChan:
			if s.Hub != nil {
				s.Hub.BroadcastToRoom(s.Room, &websocket.Message{
					Type: websocket.MessageConsoleOutput,
					Payload: map[string]interface{}{
						"line":      line,
						"server_id": s.ServerID,
					},
					Timestamp: time.Now(),
				})
			}

			// Write to log file if enabled
			if s.logWriter != nil {
				if err := s.logWriter.WriteLine(line); err != nil {
					log.Printf("[Console] Failed to persist console line: %v", err)
				}
			}
		}
	}
}

func sanitizeConsoleLine(line string) string {
	if line == "" {
		return ""
	}
	stripped := ansiEscapePattern.ReplaceAllString(line, "")
	return strings.Map(func(r rune) rune {
		// Keep tabs, remove other control characters
		if r == '\t' {
			return r
		}
		if r < 32 {
			return -1
		}
		return r
	}, stripped)
}

// SanitizeCommand validates a command line received from a remote client.
func SanitizeCommand(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", ErrEmptyCommand
	}
	if len(command) > 512 {
		return "", ErrCommandTooLong
	}
	if strings.ContainsAny(command, "\n\r") || ansiEscapePattern.MatchString(command) {
		return "", ErrInvalidCommand
	}
	return command, nil
}

// GetHistoricalOutput returns buffered output for new clients
func (s *Session) GetHistoricalOutput(lines int) []string {
	if lines <= 0 {
		lines = 100
	}
	return s.Buffer.GetLast(lines)
}

// IsActive returns whether the session is active
func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isActive
}

// LastActivity returns when the last line was written.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// GetActiveViewers returns the number of active viewers
func (s *Session) GetActiveViewers() int {
	if s.Hub == nil {
		return 0
	}
	return s.Hub.GetRoomSize(s.Room)
}
