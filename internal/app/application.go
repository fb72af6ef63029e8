// Package app wires the chat relay's components together and owns the HTTP
// server their endpoints hang off.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chathub/internal/api"
	"chathub/internal/config"
	"chathub/internal/hub"
	"chathub/internal/websocket"
)

// Application coordinates all system components.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	chatHub    *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication creates an application with all components initialized.
// Initialization order: Hub → API → WebSocket handler → HTTP server.
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	chatHub := hub.NewHub(cfg.Chat.HistoryLimit, logger.Named("hub"))
	apiServer := api.NewServer(chatHub, logger.Named("api"))
	wsHandler := websocket.NewHandler(chatHub, cfg.WebSocket, logger.Named("websocket"))

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	// The browser client is peripheral glue; it talks to the hub only over
	// the /ws event channel.
	mux.Handle("/", http.FileServer(http.Dir(cfg.HTTP.StaticDir)))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		chatHub:    chatHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. The hub starts first so the first upgraded
// connection already has a running event loop behind it.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting chathub", zap.String("addr", app.httpServer.Addr))

	if err := app.chatHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.chatHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("chathub started")
		return nil
	case <-ctx.Done():
		_ = app.chatHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP first so no new
// connections arrive, then the hub.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down chathub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("http server shutdown error", zap.Error(err))
	}

	if err := app.chatHub.Stop(); err != nil {
		app.logger.Warn("hub shutdown error", zap.Error(err))
	}

	app.logger.Info("chathub shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
