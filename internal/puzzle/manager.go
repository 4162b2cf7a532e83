package puzzle

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/obslog"
)

// moveTxAttempts bounds the WATCH retry for piece moves. Concurrent writers
// to the same document reapply against the fresh state, which is what makes
// same-piece races resolve last-writer-wins.
const moveTxAttempts = 3

// Manager owns puzzle session mutations.
type Manager struct {
	store *Store
	repo  *Repository // optional, final results only

	onCompleted func(g *Game)
}

func NewManager(store *Store) *Manager { return &Manager{store: store} }

// AttachRepository wires the database repository for persisting completed
// puzzle results.
func (m *Manager) AttachRepository(r *Repository) {
	if m != nil {
		m.repo = r
	}
}

// SetCompletionHandler wires the sink that fires exactly once when every
// piece reaches its home position.
func (m *Manager) SetCompletionHandler(fn func(g *Game)) { m.onCompleted = fn }

// Create builds a rows×cols puzzle with every piece in the bank.
func (m *Manager) Create(ctx context.Context, roomID string, rows, cols int) (*Game, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrBadPosition
	}
	now := time.Now()
	g := &Game{
		ID:        mintGameID(),
		RoomID:    roomID,
		Rows:      rows,
		Cols:      cols,
		StartTime: now,
		UpdatedAt: now,
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.Pieces = append(g.Pieces, Piece{
				ID:           fmt.Sprintf("piece-%d", r*cols+c),
				HomePosition: Position{Row: r, Col: c},
			})
		}
	}
	if err := m.store.Save(ctx, g); err != nil {
		return nil, err
	}
	obslog.L().Info("puzzle_create",
		zap.String("game_id", g.ID),
		zap.String("room_id", roomID),
		zap.Int("pieces", len(g.Pieces)),
	)
	return g, nil
}

func (m *Manager) Get(ctx context.Context, gameID string) (*Game, error) {
	g, err := m.store.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// MovePiece places pieceID on to. If another piece occupies the target cell
// it is displaced to the mover's old slot in the same commit (the swap
// rule); a swap therefore never passes through a state where two pieces
// share a cell. Each call counts one move, swap or not.
func (m *Manager) MovePiece(ctx context.Context, gameID, pieceID string, from *Position, to Position) (*MoveResult, error) {
	// 클라이언트가 범위 검사를 하지만 음수 좌표는 여기서도 방어적으로 거부한다.
	if to.Row < 0 || to.Col < 0 {
		return nil, ErrBadPosition
	}

	var res *MoveResult
	var err error
	for attempt := 0; attempt < moveTxAttempts; attempt++ {
		res, err = m.moveOnce(ctx, gameID, pieceID, from, to)
		if !errors.Is(err, ErrConcurrentUpdate) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	obslog.L().Info("puzzle_move",
		zap.String("game_id", gameID),
		zap.String("piece_id", pieceID),
		zap.Int("total_moves", res.Game.Moves),
		zap.Bool("swap", res.Displaced != nil),
		zap.Bool("placed", res.Moved.IsCorrectlyPlaced),
	)
	return res, nil
}

func (m *Manager) moveOnce(ctx context.Context, gameID, pieceID string, from *Position, to Position) (*MoveResult, error) {
	res := &MoveResult{}
	g, err := m.store.Mutate(ctx, gameID, func(g *Game) error {
		if to.Row >= g.Rows || to.Col >= g.Cols {
			return ErrBadPosition
		}
		p := g.piece(pieceID)
		if p == nil {
			return ErrPieceNotFound
		}
		// The stored slot is authoritative; the client's from hint may be
		// stale by the time the transaction runs.
		oldPos := p.CurrentPosition

		res.Displaced = nil
		if occ := g.pieceAt(to, pieceID); occ != nil {
			occFrom := occ.CurrentPosition
			occ.CurrentPosition = clonePos(oldPos)
			occ.IsCorrectlyPlaced = occ.CurrentPosition != nil && occ.CurrentPosition.Equal(occ.HomePosition)
			res.Displaced = &MoveEcho{
				PieceID:           occ.ID,
				From:              clonePos(occFrom),
				To:                clonePos(oldPos),
				IsCorrectlyPlaced: occ.IsCorrectlyPlaced,
			}
		}

		p.CurrentPosition = &Position{Row: to.Row, Col: to.Col}
		p.IsCorrectlyPlaced = p.CurrentPosition.Equal(p.HomePosition)
		g.Moves++

		res.Moved = MoveEcho{
			PieceID:           pieceID,
			From:              clonePos(oldPos),
			To:                clonePos(p.CurrentPosition),
			IsCorrectlyPlaced: p.IsCorrectlyPlaced,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Game = g
	return res, nil
}

func clonePos(p *Position) *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// ScheduleCompletionCheck runs the full-board scan on its own goroutine so
// move latency never pays for it. The completed flag is set at most once and
// never reverts; the handler fires only on the transition.
func (m *Manager) ScheduleCompletionCheck(gameID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g, completedNow, err := m.checkCompletion(ctx, gameID)
		if err != nil {
			obslog.L().Warn("puzzle_completion_check_error", zap.String("game_id", gameID), zap.Error(err))
			return
		}
		if !completedNow {
			return
		}
		obslog.L().Info("puzzle_completed",
			zap.String("game_id", g.ID),
			zap.String("room_id", g.RoomID),
			zap.Int("total_moves", g.Moves),
		)
		m.persistResult(ctx, g)
		if m.onCompleted != nil {
			m.onCompleted(g)
		}
	}()
}

func (m *Manager) checkCompletion(ctx context.Context, gameID string) (*Game, bool, error) {
	completedNow := false
	g, err := m.store.Mutate(ctx, gameID, func(g *Game) error {
		completedNow = false
		if g.IsCompleted || !g.allPlaced() {
			return nil
		}
		now := time.Now()
		g.IsCompleted = true
		g.EndTime = &now
		completedNow = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return g, completedNow, nil
}

func (m *Manager) persistResult(ctx context.Context, g *Game) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveResult(ctx, g); err != nil {
		obslog.L().Error("puzzle_result_persist_error", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	obslog.L().Info("puzzle_result_persist", zap.String("game_id", g.ID))
}

// RequestHint picks a misplaced piece uniformly at random and reveals its
// home position. The caller shows the position to the requester only; the
// rest of the room learns just that a hint was used.
func (m *Manager) RequestHint(ctx context.Context, gameID string) (*Hint, error) {
	g, err := m.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	var misplaced []*Piece
	for i := range g.Pieces {
		if !g.Pieces[i].IsCorrectlyPlaced {
			misplaced = append(misplaced, &g.Pieces[i])
		}
	}
	if len(misplaced) == 0 {
		return nil, ErrNoHint
	}
	idx := 0
	if n, rerr := rand.Int(rand.Reader, big.NewInt(int64(len(misplaced)))); rerr == nil {
		idx = int(n.Int64())
	}
	p := misplaced[idx]
	obslog.L().Info("puzzle_hint", zap.String("game_id", gameID), zap.String("piece_id", p.ID))
	return &Hint{PieceID: p.ID, HomePosition: p.HomePosition, Remaining: len(misplaced)}, nil
}

// Reset returns every piece to the bank and restarts the session clock.
func (m *Manager) Reset(ctx context.Context, gameID string) (*Game, error) {
	g, err := m.store.Mutate(ctx, gameID, func(g *Game) error {
		for i := range g.Pieces {
			g.Pieces[i].CurrentPosition = nil
			g.Pieces[i].IsCorrectlyPlaced = false
		}
		g.Moves = 0
		g.StartTime = time.Now()
		g.EndTime = nil
		g.IsCompleted = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("puzzle_reset", zap.String("game_id", gameID))
	return g, nil
}
