package broadcast

import (
	"sync"

	"github.com/rs/zerolog"
)

// Broadcaster is one tab's view of the logout channel. It reacts to logout
// messages only while a user identity is registered, and only when the
// message's identity matches its own.
type Broadcaster struct {
	endpoint Endpoint
	logger   zerolog.Logger

	mu       sync.Mutex
	userID   string
	onLogout func()
	watching bool
}

func NewBroadcaster(endpoint Endpoint, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		endpoint: endpoint,
		logger:   logger.With().Str("component", "broadcast").Logger(),
	}
}

// OnLogout sets the local termination callback invoked on a matching logout
// message. The callback must not re-broadcast.
func (b *Broadcaster) OnLogout(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onLogout = handler
}

// Register records this tab's user identity and starts listening. Called on
// every login and refresh success; re-registering the same user is a no-op.
func (b *Broadcaster) Register(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.userID = userID
	if b.watching {
		return
	}
	b.watching = true
	b.endpoint.OnMessage(b.handle)
}

// BroadcastLogout announces this user's logout to the other tabs.
func (b *Broadcaster) BroadcastLogout(userID string) {
	b.endpoint.Publish(Message{Type: TypeLogout, UserID: userID})
}

// Clear drops the registered identity so this tab stops reacting to further
// logout messages for that user.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userID = ""
}

func (b *Broadcaster) handle(msg Message) {
	if msg.Type != TypeLogout {
		return
	}

	b.mu.Lock()
	matched := b.userID != "" && msg.UserID == b.userID
	handler := b.onLogout
	b.mu.Unlock()

	if !matched || handler == nil {
		return
	}

	b.logger.Info().Msg("received logout broadcast for this user, terminating session")
	handler()
}
