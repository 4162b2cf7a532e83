package presence

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the user projection as a Redis hash under user:<id>.
// Hash fields are written independently so presence and current-room updates
// never race each other.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyUser(userID string) string { return "user:" + strings.TrimSpace(userID) }

func (s *Store) SetOnline(ctx context.Context, userID, userName string, online bool) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnknownUser
	}
	fields := map[string]any{
		"is_online":      strconv.FormatBool(online),
		"last_active_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if strings.TrimSpace(userName) != "" {
		fields["user_name"] = userName
	}
	return s.rdb.HSet(ctx, s.keyUser(userID), fields).Err()
}

func (s *Store) SetCurrentRoom(ctx context.Context, userID, roomID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnknownUser
	}
	if strings.TrimSpace(roomID) == "" {
		return s.rdb.HDel(ctx, s.keyUser(userID), "current_room").Err()
	}
	return s.rdb.HSet(ctx, s.keyUser(userID), "current_room", roomID).Err()
}

func (s *Store) Get(ctx context.Context, userID string) (*Projection, error) {
	m, err := s.rdb.HGetAll(ctx, s.keyUser(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	p := &Projection{UserID: strings.TrimSpace(userID)}
	p.UserName = m["user_name"]
	p.CurrentRoom = m["current_room"]
	p.IsOnline, _ = strconv.ParseBool(m["is_online"])
	if ts := m["last_active_at"]; ts != "" {
		if at, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			p.LastActiveAt = at
		}
	}
	return p, nil
}
