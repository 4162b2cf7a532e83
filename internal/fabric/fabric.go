package fabric

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/obslog"
	"github.com/kapu/playroom/internal/protocol"
)

// Kind is the channel family. Channel identity is a typed key, never a
// string-interpolated name.
type Kind uint8

const (
	KindUser Kind = iota + 1
	KindRoom
	KindGame
	KindGameSpectators
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindRoom:
		return "room"
	case KindGame:
		return "game"
	case KindGameSpectators:
		return "game_spectators"
	default:
		return "unknown"
	}
}

// Key addresses one broadcast channel.
type Key struct {
	Kind Kind
	ID   string
}

func UserKey(id string) Key           { return Key{Kind: KindUser, ID: id} }
func RoomKey(id string) Key           { return Key{Kind: KindRoom, ID: id} }
func GameKey(id string) Key           { return Key{Kind: KindGame, ID: id} }
func GameSpectatorsKey(id string) Key { return Key{Kind: KindGameSpectators, ID: id} }

// Sender is one deliverable endpoint, implemented by transport connections.
// Send must not block; it reports whether the event was accepted.
type Sender interface {
	ConnID() uuid.UUID
	Send(ev protocol.OutEvent) bool
}

// Fabric fans events out to the connections subscribed to a channel key.
type Fabric struct {
	mu   sync.RWMutex
	subs map[Key]map[uuid.UUID]Sender
	byID map[uuid.UUID]map[Key]struct{} // reverse index for UnsubscribeAll
}

func New() *Fabric {
	return &Fabric{
		subs: make(map[Key]map[uuid.UUID]Sender),
		byID: make(map[uuid.UUID]map[Key]struct{}),
	}
}

func (f *Fabric) Subscribe(key Key, s Sender) {
	id := s.ConnID()
	f.mu.Lock()
	set, ok := f.subs[key]
	if !ok {
		set = make(map[uuid.UUID]Sender)
		f.subs[key] = set
	}
	set[id] = s
	keys, ok := f.byID[id]
	if !ok {
		keys = make(map[Key]struct{})
		f.byID[id] = keys
	}
	keys[key] = struct{}{}
	f.mu.Unlock()
}

func (f *Fabric) Unsubscribe(key Key, connID uuid.UUID) {
	f.mu.Lock()
	if set, ok := f.subs[key]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(f.subs, key)
		}
	}
	if keys, ok := f.byID[connID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(f.byID, connID)
		}
	}
	f.mu.Unlock()
}

// UnsubscribeAll drops every subscription held by a connection. Called on
// transport close.
func (f *Fabric) UnsubscribeAll(connID uuid.UUID) {
	f.mu.Lock()
	for key := range f.byID[connID] {
		if set, ok := f.subs[key]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(f.subs, key)
			}
		}
	}
	delete(f.byID, connID)
	f.mu.Unlock()
}

// Publish delivers ev to every subscriber of key. Sends are non-blocking;
// a full client queue drops that client's copy and is logged, the slow
// consumer's write pump is responsible for the connection afterwards.
func (f *Fabric) Publish(key Key, ev protocol.OutEvent) int {
	f.mu.RLock()
	set := f.subs[key]
	targets := make([]Sender, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	f.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Send(ev) {
			delivered++
		} else {
			obslog.L().Warn("fabric_send_dropped",
				zap.String("channel_kind", key.Kind.String()),
				zap.String("channel_id", key.ID),
				zap.String("conn_id", s.ConnID().String()),
				zap.String("event", ev.Type),
			)
		}
	}
	return delivered
}

// PublishExcept is Publish minus one connection, used for relays the sender
// already rendered locally (transient draw traffic, cursors).
func (f *Fabric) PublishExcept(key Key, ev protocol.OutEvent, except uuid.UUID) int {
	f.mu.RLock()
	set := f.subs[key]
	targets := make([]Sender, 0, len(set))
	for id, s := range set {
		if id == except {
			continue
		}
		targets = append(targets, s)
	}
	f.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Send(ev) {
			delivered++
		}
	}
	return delivered
}

// PublishGame delivers a game event to both the room players' game channel
// and the spectator channel for the same game id.
func (f *Fabric) PublishGame(gameID string, ev protocol.OutEvent) int {
	n := f.Publish(GameKey(gameID), ev)
	n += f.Publish(GameSpectatorsKey(gameID), ev)
	return n
}

// Subscribers reports the current subscriber count for a key.
func (f *Fabric) Subscribers(key Key) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[key])
}
