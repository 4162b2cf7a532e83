package puzzle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a completed puzzle result. Re-runs for the same game
// (completion check retried after a transient error) land on the same row.
func (r *Repository) SaveResult(ctx context.Context, g *Game) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	endedAt := time.Now()
	if g.EndTime != nil {
		endedAt = *g.EndTime
	}
	duration := endedAt.Sub(g.StartTime).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO puzzle_results (
        game_id, room_id, rows_count, cols_count, total_moves,
        started_at, completed_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
      ) ON CONFLICT (game_id) DO UPDATE SET
        room_id=EXCLUDED.room_id,
        rows_count=EXCLUDED.rows_count,
        cols_count=EXCLUDED.cols_count,
        total_moves=EXCLUDED.total_moves,
        started_at=EXCLUDED.started_at,
        completed_at=EXCLUDED.completed_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.ID, g.RoomID, g.Rows, g.Cols, g.Moves,
		g.StartTime, endedAt, duration,
	)
	return err
}
