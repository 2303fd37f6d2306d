package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeLoggedIn       Type = "auth.logged_in"
	TypeLoggedOut      Type = "auth.logged_out"
	TypeSessionExpired Type = "session.expired"
	TypeCartUpdated    Type = "cart.updated"
	TypeCartSynced     Type = "cart.synced"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
}

func New(typ Type, userID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		UserID:    userID,
	}
}

// ExpiredPayload tells UI consumers where to send the user after the
// session could not be refreshed.
type ExpiredPayload struct {
	Redirect string `json:"redirect"`
	Reason   string `json:"reason,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
