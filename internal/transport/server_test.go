package transport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewServer_ProbeTimeout(t *testing.T) {
	s := NewServer(context.Background(), ":0", 750*time.Millisecond, nil, nil)
	if s.probeTimeout != 750*time.Millisecond {
		t.Fatalf("configured probe timeout not kept: %v", s.probeTimeout)
	}

	s = NewServer(context.Background(), ":0", 0, nil, nil)
	if s.probeTimeout != 5*time.Second {
		t.Fatalf("zero probe timeout should fall back to the default, got %v", s.probeTimeout)
	}
}

func TestAlive_UnknownConn(t *testing.T) {
	s := NewServer(context.Background(), ":0", time.Second, nil, nil)
	if s.Alive(context.Background(), uuid.New()) {
		t.Fatalf("an untracked connection is not alive")
	}
}
