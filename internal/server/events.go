package server

import "sync"

// LogHandler receives server output lines and supervisor messages. Output
// lines are delivered on the lifetime's reader goroutine; messages logged
// through Supervisor.Log arrive on the caller's goroutine.
type LogHandler func(line string)

// DataHandler receives remote administration push notifications on the
// control link's read goroutine.
type DataHandler func(words []string)

// RefreshHandler receives a snapshot after every resource sample and every
// lifecycle transition.
type RefreshHandler func(snapshot Snapshot)

// Handlers must return quickly; a slow handler stalls the goroutine that
// delivers to it.
type observers struct {
	mu      sync.RWMutex
	log     []LogHandler
	data    []DataHandler
	refresh []RefreshHandler
}

// OnLog registers a log handler.
func (s *Supervisor) OnLog(h LogHandler) {
	s.observers.mu.Lock()
	s.observers.log = append(s.observers.log, h)
	s.observers.mu.Unlock()
}

// OnData registers a push notification handler.
func (s *Supervisor) OnData(h DataHandler) {
	s.observers.mu.Lock()
	s.observers.data = append(s.observers.data, h)
	s.observers.mu.Unlock()
}

// OnRefresh registers a snapshot handler.
func (s *Supervisor) OnRefresh(h RefreshHandler) {
	s.observers.mu.Lock()
	s.observers.refresh = append(s.observers.refresh, h)
	s.observers.mu.Unlock()
}

// Log sends a message to every log handler.
func (s *Supervisor) Log(line string) {
	s.observers.mu.RLock()
	handlers := s.observers.log
	s.observers.mu.RUnlock()

	for _, h := range handlers {
		h(line)
	}
}

func (s *Supervisor) emitData(words []string) {
	s.observers.mu.RLock()
	handlers := s.observers.data
	s.observers.mu.RUnlock()

	for _, h := range handlers {
		h(words)
	}
}

func (s *Supervisor) emitRefresh() {
	s.observers.mu.RLock()
	handlers := s.observers.refresh
	s.observers.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	snap := s.Snapshot()
	for _, h := range handlers {
		h(snap)
	}
}
