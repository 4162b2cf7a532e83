package protocol

import "time"

// Outbound event type tags.
const (
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventRoomDataUpdate     = "room_data_update"
	EventRoomInvitation     = "room_invitation"
	EventRoomPlayerJoined   = "room_player_joined"
	EventRoomPlayerRemoved  = "room_player_removed"
	EventRoomClosed         = "room_closed"
	EventGameStarting       = "game_starting"
	EventGameStarted        = "game_started"
	EventPieceMoved         = "piece_moved"
	EventPuzzleCompleted    = "puzzle_completed"
	EventPuzzleReset        = "puzzle_reset"
	EventHintRevealed       = "hint_revealed"
	EventHintUsed           = "hint_used"
	EventStrokeAdded        = "whiteboard_stroke_added"
	EventStrokeRemoved      = "whiteboard_stroke_removed"
	EventBoardCleared       = "whiteboard_cleared"
	EventBoardCursor        = "whiteboard_cursor"
	EventBoardSnapshot      = "whiteboard_snapshot"
	EventDrawStartRelay     = "whiteboard_draw_start"
	EventDrawMoveRelay      = "whiteboard_draw_move"
	EventPuzzleSnapshot     = "puzzle_snapshot"
	EventError              = "error"
)

// OutEvent is the wire frame for every server-to-client event.
type OutEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func NewEvent(typ string, data any) OutEvent { return OutEvent{Type: typ, Data: data} }

type PresencePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// PlayerRemovedPayload announces a removal with a display message for
// clients that surface it as a toast.
type PlayerRemovedPayload struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Message string `json:"message,omitempty"`
}

type PieceMovedPayload struct {
	GameID            string    `json:"gameId"`
	PieceID           string    `json:"pieceId"`
	FromPosition      *Position `json:"fromPosition"`
	ToPosition        *Position `json:"toPosition"`
	IsCorrectlyPlaced bool      `json:"isCorrectlyPlaced"`
	TotalMoves        int       `json:"totalMoves"`
}

type PuzzleCompletedPayload struct {
	GameID      string    `json:"gameId"`
	CompletedAt time.Time `json:"completedAt"`
	TotalMoves  int       `json:"totalMoves"`
}

type HintRevealedPayload struct {
	GameID       string   `json:"gameId"`
	PieceID      string   `json:"pieceId"`
	HomePosition Position `json:"homePosition"`
}

type RoomClosedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type GameStartPayload struct {
	RoomID string `json:"roomId"`
	GameID string `json:"gameId"`
}

type StrokeAddedPayload struct {
	GameID  string `json:"gameId"`
	Stroke  any    `json:"stroke"`
	Version int64  `json:"version"`
}

type StrokeRemovedPayload struct {
	GameID   string `json:"gameId"`
	StrokeID string `json:"strokeId"`
	Version  int64  `json:"version"`
}

type BoardClearedPayload struct {
	GameID  string `json:"gameId"`
	UserID  string `json:"userId"`
	Scope   string `json:"scope"`
	Removed int    `json:"removed"`
	Version int64  `json:"version"`
}

type CursorPayload struct {
	GameID  string  `json:"gameId"`
	UserID  string  `json:"userId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

type BoardSnapshotPayload struct {
	GameID  string `json:"gameId"`
	Board   any    `json:"board"`
	Cursors any    `json:"cursors,omitempty"`
	Version int64  `json:"version"`
}

// DrawRelayPayload wraps transient draw traffic with its author so peers
// can attribute the in-progress stroke.
type DrawRelayPayload struct {
	GameID string `json:"gameId"`
	UserID string `json:"userId"`
	Data   any    `json:"data"`
}
