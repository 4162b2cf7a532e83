package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/kapu/playroom/internal/obslog"
)

// Server accepts websocket sessions at /ws and tracks the live connections.
// Its Alive method doubles as the liveness probe for the presence
// reconciler.
type Server struct {
	http *http.Server

	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn

	onMessage MessageHandler
	onClose   CloseHandler

	probeTimeout time.Duration

	ctx context.Context
}

func NewServer(ctx context.Context, addr string, probeTimeout time.Duration, onMessage MessageHandler, onClose CloseHandler) *Server {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	s := &Server{
		conns:        make(map[uuid.UUID]*Conn),
		onMessage:    onMessage,
		onClose:      onClose,
		probeTimeout: probeTimeout,
		ctx:          ctx,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	c := newConn(s.ctx, ws, s.onMessage, func(c *Conn, err error) {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		obslog.L().Info("ws_conn_closed", zap.String("conn_id", c.id.String()), zap.Error(err))
		if s.onClose != nil {
			s.onClose(c, err)
		}
	})

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	obslog.L().Info("ws_conn_open",
		zap.String("conn_id", c.id.String()),
		zap.String("remote_addr", r.RemoteAddr),
	)
	c.run()
	<-c.Done()
}

// Alive pings the connection. A failed ping closes it so the dead socket
// does not linger between reconciler sweeps.
func (s *Server) Alive(ctx context.Context, connID uuid.UUID) bool {
	s.mu.RLock()
	c, ok := s.conns[connID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	if err := c.ping(pctx); err != nil {
		c.Close(err)
		return false
	}
	return true
}

func (s *Server) Run() error {
	obslog.L().Info("ws_server_start", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	open := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()
	for _, c := range open {
		c.Close(errors.New("server shutdown"))
	}
	return nil
}
