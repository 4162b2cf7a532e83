package presence

import "time"

// Projection is the denormalized user record persisted alongside the
// in-memory connection set. It is a projection of registry state, never the
// source of truth for online/offline.
type Projection struct {
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name,omitempty"`
	IsOnline     bool      `json:"is_online"`
	LastActiveAt time.Time `json:"last_active_at"`
	CurrentRoom  string    `json:"current_room,omitempty"`
}

// Errors
var (
	ErrUnknownUser = errf("unknown user")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
