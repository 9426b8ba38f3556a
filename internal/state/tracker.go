package state

import (
	"log"
	"strconv"

	"github.com/sasha-s/go-deadlock"
)

// Push notification names that change GameState.
const (
	EventPlayerJoin           = "player.onJoin"
	EventPlayerLeave          = "player.onLeave"
	EventMaxPlayerCountChange = "server.onMaxPlayerCountChange"
	EventLevelLoaded          = "server.onLevelLoaded"
)

// GameState is the last known in-game state of the server.
type GameState struct {
	FPS         int    `json:"fps"`
	State       string `json:"state"`
	PlayerCount int    `json:"player_count"`
	PlayerLimit int    `json:"player_limit"`
	Map         string `json:"map"`
	Mode        string `json:"mode"`
}

// Tracker applies push notifications to a GameState. Readers get copies.
type Tracker struct {
	mutex deadlock.RWMutex
	state GameState
}

// NewTracker returns a tracker holding the zero GameState.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Apply updates the state from one notification and reports whether it
// changed anything. Unknown notifications are ignored.
func (t *Tracker) Apply(words []string) bool {
	if len(words) == 0 {
		return false
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch words[0] {
	case EventPlayerJoin:
		t.state.PlayerCount++
	case EventPlayerLeave:
		// Leaves seen for players that joined before the link came up can
		// push the count below zero; it is not clamped.
		t.state.PlayerCount--
		if t.state.PlayerCount < 0 {
			log.Printf("[State] Player count went negative (%d)", t.state.PlayerCount)
		}
	case EventMaxPlayerCountChange:
		if len(words) < 2 {
			log.Printf("[State] %s without a value", words[0])
			return false
		}
		limit, err := strconv.Atoi(words[1])
		if err != nil {
			log.Printf("[State] Invalid player limit %q: %v", words[1], err)
			return false
		}
		t.state.PlayerLimit = limit
	case EventLevelLoaded:
		if len(words) < 3 {
			log.Printf("[State] %s with %d words", words[0], len(words))
			return false
		}
		t.state.Map = words[1]
		t.state.Mode = words[2]
	default:
		return false
	}
	return true
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() GameState {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.state
}

// Reset returns the state to its zero value.
func (t *Tracker) Reset() {
	t.mutex.Lock()
	t.state = GameState{}
	t.mutex.Unlock()
}
