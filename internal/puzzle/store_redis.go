package puzzle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps puzzle documents as JSON in Redis.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) keyGame(id string) string { return "puzzle:" + strings.TrimSpace(id) }

func (s *Store) Save(ctx context.Context, g *Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyGame(g.ID), raw, s.ttl).Err()
}

func (s *Store) Load(ctx context.Context, id string) (*Game, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Mutate applies fn inside a WATCH transaction on the game document. The
// swap rule relies on this: the displaced piece and the mover are rewritten
// in one commit, so no observer ever sees two pieces claiming one cell.
func (s *Store) Mutate(ctx context.Context, id string, fn func(g *Game) error) (*Game, error) {
	key := s.keyGame(id)
	var out *Game
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}
		var cur Game
		if jerr := json.Unmarshal(raw, &cur); jerr != nil {
			return jerr
		}
		if err := fn(&cur); err != nil {
			return err
		}
		cur.UpdatedAt = time.Now()
		newRaw, merr := json.Marshal(&cur)
		if merr != nil {
			return merr
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, s.ttl)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return perr
		}
		out = &cur
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrConcurrentUpdate
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func mintGameID() string {
	return fmt.Sprintf("game-%d-%s", time.Now().UnixNano(), randSuffix(3))
}

func randSuffix(n int) string {
	if n <= 0 {
		n = 3
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano()%1_000_000)
	}
	return hex.EncodeToString(b)
}
