package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/board"
	"github.com/kapu/playroom/internal/fabric"
	"github.com/kapu/playroom/internal/msgcat"
	"github.com/kapu/playroom/internal/obslog"
	"github.com/kapu/playroom/internal/protocol"
	"github.com/kapu/playroom/internal/puzzle"
	"github.com/kapu/playroom/internal/room"
)

// Server exposes the room operations that originate outside a websocket
// session: creating rooms, inviting and starting. The same managers back
// both surfaces, so an HTTP-created room is immediately live on the fabric.
type Server struct {
	rooms *room.Manager
	fab   *fabric.Fabric
	msgs  *msgcat.Catalog

	http *fasthttp.Server
	addr string
}

func NewServer(addr string, rooms *room.Manager, fab *fabric.Fabric, msgs *msgcat.Catalog) *Server {
	s := &Server{rooms: rooms, fab: fab, msgs: msgs, addr: addr}
	s.http = &fasthttp.Server{
		Handler:      s.route,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Name:         "playroom-api",
	}
	return s
}

func (s *Server) Run() error {
	obslog.L().Info("api_server_start", zap.String("addr", s.addr))
	return s.http.ListenAndServe(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.ShutdownWithContext(ctx)
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}
	switch path {
	case "/rooms":
		s.handleCreate(ctx)
	case "/rooms/invite":
		s.handleInvite(ctx)
	case "/rooms/start":
		s.handleStart(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "unknown path")
	}
}

type createRequest struct {
	CreatorID        string   `json:"creatorId"`
	Invitees         []string `json:"invitees,omitempty"`
	GameMode         string   `json:"gameMode,omitempty"`
	TimeLimitMinutes int      `json:"timeLimitMinutes,omitempty"`
}

func (s *Server) handleCreate(ctx *fasthttp.RequestCtx) {
	var req createRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	r, err := s.rooms.Create(ctx, req.CreatorID, req.Invitees, room.GameMode(req.GameMode), req.TimeLimitMinutes)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	s.notifyInvited(r, r.PendingInvitations)
	writeJSON(ctx, fasthttp.StatusCreated, r)
}

type inviteRequest struct {
	RoomID      string   `json:"roomId"`
	RequesterID string   `json:"requesterId"`
	Targets     []string `json:"targets"`
}

func (s *Server) handleInvite(ctx *fasthttp.RequestCtx) {
	var req inviteRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	r, out, err := s.rooms.Invite(ctx, req.RoomID, req.RequesterID, req.Targets)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	s.notifyInvited(r, out.Added)
	var message string
	if len(out.Added) == 0 {
		message = s.msgs.RenderOr("room.invite_noop", "no new invitations were sent",
			map[string]any{"Count": out.Skipped})
	}
	writeJSON(ctx, fasthttp.StatusOK, struct {
		Room    *room.Room `json:"room"`
		Added   []string   `json:"added"`
		Skipped int        `json:"skipped"`
		Message string     `json:"message,omitempty"`
	}{Room: r, Added: out.Added, Skipped: out.Skipped, Message: message})
}

type startRequest struct {
	RoomID      string `json:"roomId"`
	RequesterID string `json:"requesterId"`
}

func (s *Server) handleStart(ctx *fasthttp.RequestCtx) {
	var req startRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	r, err := s.rooms.Start(ctx, req.RoomID, req.RequesterID)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, r)
}

// notifyInvited pushes the invitation to each target's user channel.
// Offline targets simply have no subscribers; they see the pending entry
// when they come online.
func (s *Server) notifyInvited(r *room.Room, targets []string) {
	for _, t := range targets {
		s.fab.Publish(fabric.UserKey(t), protocol.NewEvent(protocol.EventRoomInvitation, struct {
			RoomID    string `json:"roomId"`
			CreatorID string `json:"creatorId"`
			GameMode  string `json:"gameMode"`
		}{RoomID: r.ID, CreatorID: r.CreatorID, GameMode: string(r.GameMode)}))
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		obslog.L().Warn("api_encode_error", zap.Error(err))
	}
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	writeJSON(ctx, status, struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Code: code, Message: message})
}

func writeDomainError(ctx *fasthttp.RequestCtx, err error) {
	status := fasthttp.StatusServiceUnavailable
	code := "internal"
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, puzzle.ErrGameNotFound), errors.Is(err, board.ErrBoardNotFound):
		status, code = fasthttp.StatusNotFound, "not_found"
	case errors.Is(err, room.ErrNotCreator), errors.Is(err, room.ErrNotAPlayer),
		errors.Is(err, room.ErrNotInvited), errors.Is(err, room.ErrHomeRoomImmutable),
		errors.Is(err, room.ErrCreatorIrremovable):
		status, code = fasthttp.StatusForbidden, "forbidden"
	case errors.Is(err, room.ErrNeedMorePlayers), errors.Is(err, room.ErrAlreadyStarted),
		errors.Is(err, room.ErrRoomFull):
		status, code = fasthttp.StatusConflict, "conflict"
	case errors.Is(err, room.ErrConcurrentUpdate):
		status, code = fasthttp.StatusServiceUnavailable, "concurrent_update"
	}
	writeError(ctx, status, code, err.Error())
}
