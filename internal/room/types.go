package room

import "time"

// Status represents a room lifecycle state.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "inProgress"
	StatusCompleted  Status = "completed"
)

// GameMode selects which game session a room runs.
type GameMode string

const (
	ModePuzzle     GameMode = "puzzle"
	ModeWhiteboard GameMode = "whiteboard"
	// ModeHome is the singleton lobby every authenticated user eventually
	// joins. It never leaves waiting and never expires.
	ModeHome GameMode = "home"
)

// Room is stored as JSON in Redis under room:<id>.
// Players keeps insertion order (join order); PendingInvitations is a set.
// creatorId is always a member of Players, and no user id may appear in both
// Players and PendingInvitations at once.
type Room struct {
	ID        string `json:"id"`
	CreatorID string `json:"creator_id"`

	Players            []string `json:"players"`
	PendingInvitations []string `json:"pending_invitations,omitempty"`

	Status           Status   `json:"status"`
	GameMode         GameMode `json:"game_mode"`
	CurrentGameID    string   `json:"current_game_id,omitempty"`
	TimeLimitMinutes int      `json:"time_limit_minutes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPlayer reports membership in Players.
func (r *Room) HasPlayer(userID string) bool {
	for _, p := range r.Players {
		if p == userID {
			return true
		}
	}
	return false
}

// HasPending reports membership in PendingInvitations.
func (r *Room) HasPending(userID string) bool {
	for _, p := range r.PendingInvitations {
		if p == userID {
			return true
		}
	}
	return false
}

func (r *Room) removePending(userID string) {
	out := r.PendingInvitations[:0]
	for _, p := range r.PendingInvitations {
		if p != userID {
			out = append(out, p)
		}
	}
	r.PendingInvitations = out
}

func (r *Room) removePlayer(userID string) {
	out := r.Players[:0]
	for _, p := range r.Players {
		if p != userID {
			out = append(out, p)
		}
	}
	r.Players = out
}

// InviteOutcome reports what an Invite call changed.
type InviteOutcome struct {
	Added   []string
	Skipped int // targets already playing or already invited
}

// Errors
var (
	ErrRoomNotFound       = errf("room not found")
	ErrNotCreator         = errf("only the room creator can do that")
	ErrCreatorIrremovable = errf("room creator cannot be removed")
	ErrNotAPlayer         = errf("user is not a player in this room")
	ErrNotInvited         = errf("user has no pending invitation for this room")
	ErrNeedMorePlayers    = errf("at least two players required to start")
	ErrAlreadyStarted     = errf("room is not waiting")
	ErrRoomFull           = errf("room is full")
	ErrHomeRoomImmutable  = errf("home room lifecycle is fixed")
	ErrConcurrentUpdate   = errf("concurrent room update, not applied")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
