package room

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

// Store keeps room documents as JSON in Redis.
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

func (s *Store) keyRoom(id string) string { return "room:" + strings.TrimSpace(id) }

// ttlFor pins the home room: it must never expire.
func (s *Store) ttlFor(r *Room) time.Duration {
	if r.GameMode == ModeHome {
		return 0
	}
	return s.ttl
}

// SaveNew stores a room only if no document exists under its id yet.
func (s *Store) SaveNew(ctx context.Context, r *Room) (bool, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, s.keyRoom(r.ID), raw, s.ttlFor(r)).Result()
}

func (s *Store) Save(ctx context.Context, r *Room) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyRoom(r.ID), raw, s.ttlFor(r)).Err()
}

func (s *Store) Load(ctx context.Context, id string) (*Room, error) {
	raw, err := s.rdb.Get(ctx, s.keyRoom(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Mutate applies fn to the room document inside a WATCH transaction so that
// membership changes observed after an await point are re-validated against
// the current document, not a stale copy. A concurrent writer surfaces as
// ErrConcurrentUpdate; the caller decides whether retrying is safe.
func (s *Store) Mutate(ctx context.Context, id string, fn func(r *Room) error) (*Room, error) {
	key := s.keyRoom(id)
	var out *Room
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var cur Room
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
		pipe.Set(ctx, key, newRaw, s.ttlFor(&cur))
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

// mintRoomID returns "room-" + unixnano + "-" + short hex suffix.
func mintRoomID() string {
	return fmt.Sprintf("room-%d-%s", time.Now().UnixNano(), randSuffix(3))
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
