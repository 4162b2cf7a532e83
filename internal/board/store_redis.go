package board

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps board documents as JSON in Redis, with the version counter
// and the cursor hash as sibling keys so cursor writes never touch the
// document or its version.
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

func (s *Store) keyBoard(id string) string   { return "board:" + strings.TrimSpace(id) }
func (s *Store) keyVersion(id string) string { return s.keyBoard(id) + ":version" }
func (s *Store) keyCursors(id string) string { return s.keyBoard(id) + ":cursors" }

func (s *Store) Save(ctx context.Context, b *Board) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyBoard(b.ID), raw, s.ttl).Err()
}

func (s *Store) Load(ctx context.Context, id string) (*Board, error) {
	raw, err := s.rdb.Get(ctx, s.keyBoard(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var b Board
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	v, err := s.Version(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Version = v
	return &b, nil
}

func (s *Store) Version(ctx context.Context, id string) (int64, error) {
	raw, err := s.rdb.Get(ctx, s.keyVersion(id)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Mutate applies fn inside a WATCH transaction and bumps the version
// counter in the same commit. The returned board carries the new version.
func (s *Store) Mutate(ctx context.Context, id string, fn func(b *Board) error) (*Board, error) {
	key := s.keyBoard(id)
	verKey := s.keyVersion(id)
	var out *Board
	var verCmd *redis.IntCmd
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrBoardNotFound
		}
		if err != nil {
			return err
		}
		var cur Board
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
		verCmd = pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, s.ttl)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return perr
		}
		out = &cur
		return nil
	}, key, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrConcurrentUpdate
	}
	if err != nil {
		return nil, err
	}
	out.Version = verCmd.Val()
	return out, nil
}

// SetCursor writes one user's cursor into the board's cursor hash. Cursors
// bypass the document on purpose: they are high-frequency and must not
// advance the version.
func (s *Store) SetCursor(ctx context.Context, id string, c Cursor) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.keyCursors(id), c.UserID, raw)
	pipe.Expire(ctx, s.keyCursors(id), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Cursors(ctx context.Context, id string) ([]Cursor, error) {
	entries, err := s.rdb.HGetAll(ctx, s.keyCursors(id)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Cursor, 0, len(entries))
	for _, raw := range entries {
		var c Cursor
		if jerr := json.Unmarshal([]byte(raw), &c); jerr != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func mintBoardID() string {
	return fmt.Sprintf("board-%d-%s", time.Now().UnixNano(), randSuffix(3))
}

func mintStrokeID() string {
	return fmt.Sprintf("stroke-%d-%s", time.Now().UnixNano(), randSuffix(3))
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
