package puzzle

import "time"

// Position is a board cell. Row/Col are zero-based.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) Equal(o Position) bool { return p.Row == o.Row && p.Col == o.Col }

// Piece is one puzzle unit. CurrentPosition == nil means the piece sits in
// the bank. IsCorrectlyPlaced is derived from CurrentPosition == HomePosition
// and recomputed on every move, never trusted from the wire.
type Piece struct {
	ID                string    `json:"id"`
	HomePosition      Position  `json:"home_position"`
	CurrentPosition   *Position `json:"current_position,omitempty"`
	IsCorrectlyPlaced bool      `json:"is_correctly_placed"`
}

// Game is the persisted state of one puzzle session, stored as JSON in
// Redis under puzzle:<id>.
type Game struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`

	Pieces      []Piece    `json:"pieces"`
	Moves       int        `json:"moves"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	IsCompleted bool       `json:"is_completed"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Game) piece(id string) *Piece {
	for i := range g.Pieces {
		if g.Pieces[i].ID == id {
			return &g.Pieces[i]
		}
	}
	return nil
}

// pieceAt returns the piece occupying pos, excluding exceptID.
func (g *Game) pieceAt(pos Position, exceptID string) *Piece {
	for i := range g.Pieces {
		p := &g.Pieces[i]
		if p.ID == exceptID || p.CurrentPosition == nil {
			continue
		}
		if p.CurrentPosition.Equal(pos) {
			return p
		}
	}
	return nil
}

func (g *Game) allPlaced() bool {
	for i := range g.Pieces {
		if !g.Pieces[i].IsCorrectlyPlaced {
			return false
		}
	}
	return len(g.Pieces) > 0
}

// MoveEcho describes one applied position change for broadcast.
type MoveEcho struct {
	PieceID           string    `json:"pieceId"`
	From              *Position `json:"fromPosition,omitempty"`
	To                *Position `json:"toPosition,omitempty"`
	IsCorrectlyPlaced bool      `json:"isCorrectlyPlaced"`
}

// MoveResult reports an applied move: the mover's echo plus, when the target
// cell was occupied, a synthetic echo for the displaced piece.
type MoveResult struct {
	Game      *Game
	Moved     MoveEcho
	Displaced *MoveEcho
}

// Hint reveals a misplaced piece's home position to one requester.
type Hint struct {
	PieceID      string   `json:"pieceId"`
	HomePosition Position `json:"homePosition"`
	Remaining    int      `json:"remaining"` // misplaced pieces left, hint target included
}

// Errors
var (
	ErrGameNotFound     = errf("puzzle not found")
	ErrPieceNotFound    = errf("piece not found")
	ErrBadPosition      = errf("target position out of bounds")
	ErrNoHint           = errf("no misplaced piece to hint")
	ErrConcurrentUpdate = errf("concurrent puzzle update, not applied")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
