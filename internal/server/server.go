package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/a-essam23/go-classroom/internal/engine"
	"github.com/a-essam23/go-classroom/internal/router"
	"github.com/a-essam23/go-classroom/internal/server/middleware"
	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/a-essam23/go-classroom/pkg/state/statemanager"
	"github.com/a-essam23/go-classroom/pkg/transport"
	"github.com/coder/websocket"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *router.EventRouter
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, ctx context.Context, cfg *config.Config) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	registry := engine.New(logger)
	registry.RegisterCore(&engine.RegisterCoreOptions{
		Rooms:  cfg.Rooms,
		Limits: cfg.Limits,
	})
	eventRouter := router.NewEventRouter(logger, stateManager, registry)

	app := &App{
		logger:       logger.With(slog.String("component", "server")),
		stateManager: stateManager,
		eventRouter:  eventRouter,
		config:       cfg,
		ctx:          ctx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	connCounter := middleware.IPConnectionCounter(stateManager.GetIPConnectionCount)
	// Create a cycler function that closes over the stateManager and logger.
	connCycler := func(ip string) {
		oldest, found := stateManager.FindOldestIPConnection(ip)
		if found && oldest.Transport != nil {
			app.logger.Info("Cycling connection: closing oldest", slog.String("ip", ip), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	permCompiler := middleware.PermissionCompiler(config.CompilePermissions)
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(app.config.Server.TrustProxy),
			middleware.NewRequestLogger(app.logger),
			middleware.NewRecoverer(app.logger),
			middleware.NewConnectionLimiter(
				app.logger,
				connCounter,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
			middleware.NewAuthMiddleware(app.logger, app.config.Server.Auth, permCompiler),
		),
	)
	mux.HandleFunc("GET /health", app.healthHandler)

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

// Handler exposes the routes, mainly so tests can mount them on httptest.
func (a *App) Handler() http.Handler {
	return a.http.Handler
}

func (a *App) Run() error {
	go a.eventRouter.Run(a.ctx)
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("requestID", reqMeta.RequestID),
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	// no patterns configured means any origin may connect
	origins := a.config.Server.OriginPatterns
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     origins,
		InsecureSkipVerify: len(origins) == 0,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)
	stateConn, err := a.stateManager.RegisterConnection(conn, reqMeta.IP, reqMeta.UserID)
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		wsConn.Close(websocket.StatusInternalError, "registration failed")
		return
	}
	if reqMeta.GlobalPermissions != 0 {
		if err := a.stateManager.SetPermissions(stateConn.ID, reqMeta.GlobalPermissions); err != nil {
			connLogger.Error("Failed to apply token permissions", slog.Any("error", err))
			_ = a.stateManager.DeregisterConnection(stateConn.ID)
			wsConn.Close(websocket.StatusInternalError, "registration failed")
			return
		}
	}
	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	conn.SetOnCloseHandler(a.eventRouter.HandleDisconnect)

	connLogger.Info("Connection fully established", slog.String("connID", stateConn.ID.String()))
	conn.Run()
	<-conn.Done()
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(healthResponse{
		Status:      "ok",
		Rooms:       a.stateManager.RoomCount(),
		Connections: a.stateManager.ConnectionCount(),
	})
	if err != nil {
		a.logger.Warn("Failed to write health response", slog.Any("error", err))
	}
}

// Shutdown stops accepting upgrades, closes every live connection and waits
// for their pumps to exit.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.GetAllConnections() {
		if conn.Transport != nil {
			conn.Transport.Close(errors.New("graceful shutdown"))
		}
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
