package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/zlnvch/sketchrelay/api/rest"
	"github.com/zlnvch/sketchrelay/api/ws"
	"github.com/zlnvch/sketchrelay/cache"
	"github.com/zlnvch/sketchrelay/config"
	"github.com/zlnvch/sketchrelay/metrics"
	"github.com/zlnvch/sketchrelay/mq"
	"github.com/zlnvch/sketchrelay/service"
	"github.com/zlnvch/sketchrelay/store"
	"github.com/zlnvch/sketchrelay/worker"
)

// Deps are the optional backends chosen at startup. Any of them may be nil.
type Deps struct {
	Store          store.RelayStore
	Cache          cache.RelayCache
	ChatRetryQueue mq.MessageQueue
	Rooms          service.RoomDirectory
}

type RelayAPI struct {
	cfg         *config.Config
	metrics     *metrics.Metrics
	hub         *ws.Hub
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	wsUpgrader  websocket.Upgrader
	shutdownCtx context.Context
	workers     *sync.WaitGroup
}

// NewRelayAPI builds the service and hub and starts every background
// goroutine; all of them stop when shutdownCtx is cancelled.
func NewRelayAPI(cfg *config.Config, deps Deps, instanceId string, shutdownCtx context.Context) (*RelayAPI, error) {
	m := metrics.New()

	var (
		chatBatcher *worker.ChatBatcher
		canvasSaver *worker.CanvasSaver
		workers     sync.WaitGroup
	)
	if deps.Store != nil {
		// Chat writers feed the counter batcher, so it stops after them
		var chatWriters sync.WaitGroup
		counterCtx, stopCounters := context.WithCancel(context.Background())

		counterBatcher := worker.NewCounterBatcher(deps.Store, cfg.CounterFlushEvery())
		workers.Go(func() { counterBatcher.Run(counterCtx) })

		chatBatcher = worker.NewChatBatcher(
			deps.Store,
			deps.Cache,
			deps.ChatRetryQueue,
			counterBatcher,
			m,
			cfg.ChatFlushEvery(),
			cfg.Workers.ChatBacklog,
		)
		chatWriters.Go(func() { chatBatcher.Run(shutdownCtx) })

		if deps.ChatRetryQueue != nil {
			mqConsumer := worker.NewMQConsumer(deps.ChatRetryQueue, deps.Store, counterBatcher, m)
			chatWriters.Go(func() { mqConsumer.Run(shutdownCtx) })
		}

		workers.Go(func() {
			chatWriters.Wait()
			stopCounters()
		})

		canvasSaver = worker.NewCanvasSaver(deps.Store, m, cfg.CanvasFlushEvery())
		workers.Go(func() { canvasSaver.Run(shutdownCtx) })
	} else {
		slog.Warn("no store configured, chat and canvas are not persisted")
	}

	svc, err := service.NewService(deps.Store, deps.Cache, chatBatcher, canvasSaver, deps.Rooms, cfg.Auth.Secret)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(svc, deps.Cache, m, ws.Options{
		InstanceId:               instanceId,
		SendBuffer:               cfg.Relay.SendBuffer,
		MessagesPerSecond:        cfg.Relay.MessagesPerSecond,
		Burst:                    cfg.Relay.Burst,
		MaxMessageBytes:          cfg.Relay.MaxMessageBytes,
		MaxConnectionsPerAccount: cfg.Relay.MaxConnectionsPerAccount,
		MaxRoomsPerConnection:    cfg.Relay.MaxRoomsPerConnection,
		MaxChatRunes:             cfg.Relay.MaxChatRunes,
	})
	if err := hub.InitSubscriptions(shutdownCtx); err != nil {
		slog.Error("failed to start hub subscriptions", "err", err)
		return nil, err
	}
	go hub.Run(shutdownCtx)

	heartbeat := ws.NewHeartbeatMonitor(hub, cfg.HeartbeatEvery(), cfg.Relay.MissedProbes, m)
	go heartbeat.Run(shutdownCtx)

	wsHandler := ws.NewHandler(svc, hub)

	return &RelayAPI{
		cfg:         cfg,
		metrics:     m,
		hub:         hub,
		restHandler: rest.NewHandler(svc, hub),
		wsHandler:   wsHandler,
		wsUpgrader:  wsHandler.NewWsUpgrader(cfg.HTTP.AllowedOrigins),
		shutdownCtx: shutdownCtx,
		workers:     &workers,
	}, nil
}

// WaitForWorkers blocks until every background worker has run its final
// flush, or until timeout. It reports whether the workers finished.
func (a *RelayAPI) WaitForWorkers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		a.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (a *RelayAPI) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.allowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", a.metrics.Handler())

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		a.wsHandler.ServeWS(a.wsUpgrader, w, r, a.shutdownCtx)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		a.restHandler.Routes(r)
	})

	return r
}

func (a *RelayAPI) allowedOrigins() []string {
	if len(a.cfg.HTTP.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return a.cfg.HTTP.AllowedOrigins
}
