// Package connection announces room membership of the local session over a shared channel.
package connection

import (
	"github.com/adwski/realtime-session/backend/model"
)

// Emitter is the outbound side of a realtime channel. Implementations must
// return without waiting for delivery.
type Emitter interface {
	Emit(event string, data any) error
}

// Manager wraps the channel shared by the application. It never owns the
// channel lifecycle: whoever constructed the channel stops it.
type Manager struct {
	ch Emitter
}

func NewManager(ch Emitter) *Manager {
	return &Manager{ch: ch}
}

// Channel returns the shared channel. Callers must not reconfigure it.
func (m *Manager) Channel() Emitter {
	return m.ch
}

// JoinRoom emits a single join event for userID. The id is sent as is, nothing
// is awaited and delivery failures are left to the channel.
func (m *Manager) JoinRoom(userID string) {
	_ = m.ch.Emit(model.EventJoin, model.JoinRequest{UserID: userID})
}
