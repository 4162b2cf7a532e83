package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/playroom/internal/api"
	"github.com/kapu/playroom/internal/board"
	appcfg "github.com/kapu/playroom/internal/config"
	"github.com/kapu/playroom/internal/fabric"
	"github.com/kapu/playroom/internal/gateway"
	"github.com/kapu/playroom/internal/msgcat"
	"github.com/kapu/playroom/internal/obslog"
	"github.com/kapu/playroom/internal/presence"
	"github.com/kapu/playroom/internal/protocol"
	"github.com/kapu/playroom/internal/puzzle"
	"github.com/kapu/playroom/internal/room"
	"github.com/kapu/playroom/internal/transport"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis url parse error", zap.Error(err))
	}
	rdb := redis.NewClient(opts)
	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pctx).Err(); err != nil {
		pcancel()
		logger.Fatal("redis connect error", zap.Error(err))
	}
	pcancel()

	msgs, err := msgcat.New(os.Getenv("MESSAGE_DIR"))
	if err != nil {
		logger.Fatal("message catalog error", zap.Error(err))
	}

	userStore := presence.NewStore(rdb)
	tracker := presence.NewTracker(userStore)

	puzzleMgr := puzzle.NewManager(puzzle.NewStore(rdb, cfg.GameTTL))
	if cfg.DatabaseURL != "" {
		repo, rerr := puzzle.NewRepository(cfg.DatabaseURL)
		if rerr != nil {
			logger.Fatal("puzzle repository init error", zap.Error(rerr))
		}
		defer repo.Close()
		puzzleMgr.AttachRepository(repo)
	}
	boardMgr := board.NewManager(board.NewStore(rdb, cfg.GameTTL))

	roomMgr := room.NewManager(
		room.NewStore(rdb, cfg.RoomTTL),
		userStore,
		puzzleMgr,
		boardMgr,
		room.Params{
			HomeRoomID:     cfg.HomeRoomID,
			MaxPlayers:     cfg.MaxPlayersPerRoom,
			StartCountdown: cfg.StartCountdown,
		},
	)

	fab := fabric.New()
	gw := gateway.New(fab, tracker, roomMgr, puzzleMgr, boardMgr, msgs, cfg.HomeRoomID)

	bctx, bcancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := roomMgr.EnsureHome(bctx); err != nil {
		bcancel()
		logger.Fatal("home room init error", zap.Error(err))
	}
	bcancel()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	wsSrv := transport.NewServer(rootCtx, cfg.ListenAddr, cfg.ProbeTimeout,
		func(ctx context.Context, c *transport.Conn, env *protocol.Envelope) {
			gw.Handle(ctx, c, env)
		},
		func(c *transport.Conn, _ error) {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			gw.HandleClose(cctx, c.ConnID())
			cancel()
		},
	)

	reconciler := presence.NewReconciler(tracker, wsSrv, cfg.ReconcileInterval, gw.OfflineFromSweep)
	go reconciler.Run()

	apiSrv := api.NewServer(cfg.APIListenAddr, roomMgr, fab, msgs)

	errCh := make(chan error, 2)
	go func() { errCh <- wsSrv.Run() }()
	go func() { errCh <- apiSrv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server_error", zap.Error(err))
	}

	reconciler.Stop()
	roomMgr.StopTimers()
	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ws_shutdown_error", zap.Error(err))
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	_ = rdb.Close()
	logger.Info("shutdown_complete")
}
