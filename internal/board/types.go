package board

import (
	"encoding/json"
	"time"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	ErrBoardNotFound    = staticErr("board not found")
	ErrStrokeNotFound   = staticErr("stroke not found")
	ErrConcurrentUpdate = staticErr("concurrent board update")
)

// Stroke is one committed drawing. Data carries the client's geometry
// (points, color, width) opaquely; the server never interprets it.
type Stroke struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Board is the persisted whiteboard document. Version lives in its own
// Redis counter and is joined in on load; cursors are ephemeral and stored
// beside the document, never in it.
type Board struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Strokes   []Stroke  `json:"strokes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Version int64 `json:"version"`
}

// Cursor is a user's last reported pointer state. Visible false means the
// user hid their cursor; the record stays so the hide survives a reload,
// but snapshots must not present them as an active collaborator.
type Cursor struct {
	UserID       string    `json:"userId"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Visible      bool      `json:"visible"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// ClearScope selects whose strokes a clear removes.
type ClearScope string

const (
	ClearAll  ClearScope = "all"
	ClearSelf ClearScope = "self"
)
