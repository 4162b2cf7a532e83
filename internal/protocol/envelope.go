package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the wire frame for every inbound client event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound event type tags.
const (
	TypeJoinUser           = "join_user"
	TypeGoOffline          = "go_offline"
	TypeSwitchRoom         = "switch_room"
	TypeLeaveRoom          = "leave_room"
	TypeInvitationResponse = "room_invitation_response"
	TypeRemovePlayer       = "remove_player"
	TypeCloseRoom          = "close_room"
	TypeSubscribeGame      = "subscribe_game"
	TypeMovePiece          = "move_piece"
	TypeRequestHint        = "request_hint"
	TypeResetPuzzle        = "reset_puzzle"
	TypeDrawStart          = "whiteboard_draw_start"
	TypeDrawMove           = "whiteboard_draw_move"
	TypeDrawEnd            = "whiteboard_draw_end"
	TypeBoardClear         = "whiteboard_clear"
	TypeBoardUndo          = "whiteboard_undo"
	TypeCursorPosition     = "whiteboard_cursor_position"
)

// Position is a board coordinate. Negative values are rejected at the boundary.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type JoinUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type GoOffline struct {
	UserID string `json:"userId"`
}

type SwitchRoom struct {
	UserID      string `json:"userId"`
	NewRoomID   string `json:"newRoomId"`
	LeaveRoomID string `json:"leaveRoomId,omitempty"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type InvitationResponse struct {
	RoomID   string `json:"roomId"`
	Accepted bool   `json:"accepted"`
}

type RemovePlayer struct {
	RoomID   string `json:"roomId"`
	TargetID string `json:"targetId"`
}

type CloseRoom struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

type SubscribeGame struct {
	GameID    string `json:"gameId"`
	Spectator bool   `json:"spectator,omitempty"`
}

type MovePiece struct {
	GameID       string    `json:"gameId"`
	PieceID      string    `json:"pieceId"`
	FromPosition *Position `json:"fromPosition"`
	ToPosition   *Position `json:"toPosition"`
	MoveType     string    `json:"moveType,omitempty"`
}

type RequestHint struct {
	GameID string `json:"gameId"`
}

type ResetPuzzle struct {
	GameID string `json:"gameId"`
}

// DrawTransient covers draw_start and draw_move: relayed, never persisted.
type DrawTransient struct {
	GameID string          `json:"gameId"`
	Data   json.RawMessage `json:"data"`
}

type DrawEnd struct {
	GameID     string          `json:"gameId"`
	StrokeData json.RawMessage `json:"strokeData"`
}

type BoardClear struct {
	GameID string `json:"gameId"`
	Scope  string `json:"scope"` // all|self
}

type BoardUndo struct {
	GameID   string `json:"gameId"`
	StrokeID string `json:"strokeId"`
}

type CursorPosition struct {
	GameID  string  `json:"gameId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// DecodeEnvelope parses the outer frame and rejects unknown or empty types.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, fmt.Errorf("missing event type")
	}
	return &env, nil
}

// DecodePayload unmarshals env.Data into dst and validates it.
func DecodePayload(env *Envelope, dst Validator) error {
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
	}
	return dst.Validate()
}

// Validator is implemented by every inbound payload struct.
type Validator interface {
	Validate() error
}

func requireField(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

func (p *JoinUser) Validate() error { return requireField("userId", p.UserID) }

func (p *GoOffline) Validate() error { return requireField("userId", p.UserID) }

func (p *SwitchRoom) Validate() error {
	if err := requireField("userId", p.UserID); err != nil {
		return err
	}
	return requireField("newRoomId", p.NewRoomID)
}

func (p *LeaveRoom) Validate() error { return requireField("roomId", p.RoomID) }

func (p *InvitationResponse) Validate() error { return requireField("roomId", p.RoomID) }

func (p *RemovePlayer) Validate() error {
	if err := requireField("roomId", p.RoomID); err != nil {
		return err
	}
	return requireField("targetId", p.TargetID)
}

func (p *CloseRoom) Validate() error { return requireField("roomId", p.RoomID) }

func (p *SubscribeGame) Validate() error { return requireField("gameId", p.GameID) }

func (p *MovePiece) Validate() error {
	if err := requireField("gameId", p.GameID); err != nil {
		return err
	}
	if err := requireField("pieceId", p.PieceID); err != nil {
		return err
	}
	if p.ToPosition == nil {
		return fmt.Errorf("toPosition is required")
	}
	return nil
}

func (p *RequestHint) Validate() error { return requireField("gameId", p.GameID) }

func (p *ResetPuzzle) Validate() error { return requireField("gameId", p.GameID) }

func (p *DrawTransient) Validate() error { return requireField("gameId", p.GameID) }

func (p *DrawEnd) Validate() error {
	if err := requireField("gameId", p.GameID); err != nil {
		return err
	}
	if len(p.StrokeData) == 0 {
		return fmt.Errorf("strokeData is required")
	}
	return nil
}

func (p *BoardClear) Validate() error {
	if err := requireField("gameId", p.GameID); err != nil {
		return err
	}
	if p.Scope != "all" && p.Scope != "self" {
		return fmt.Errorf("scope must be all or self")
	}
	return nil
}

func (p *BoardUndo) Validate() error {
	if err := requireField("gameId", p.GameID); err != nil {
		return err
	}
	return requireField("strokeId", p.StrokeID)
}

func (p *CursorPosition) Validate() error { return requireField("gameId", p.GameID) }
