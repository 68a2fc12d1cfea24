// Package server реализует sync endpoint узла: WebSocket поверхность
// для координаторов партнеров плюс health check.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/docbowl/internal/peer"
	"github.com/iudanet/docbowl/internal/server/middleware"
	"github.com/iudanet/docbowl/internal/server/token"
	"github.com/iudanet/docbowl/internal/syncer"
)

// Config - настройки sync сервера
type Config struct {
	Logger *slog.Logger

	// TokenConfig включает аутентификацию peers, когда Secret непуст
	TokenConfig token.Config

	// Version отдается в health check (выставляется через ldflags)
	Version string

	// HandshakeRate ограничивает число dial-попыток с одного хоста
	// за HandshakeWindow (по умолчанию 30 за минуту)
	HandshakeRate   int
	HandshakeWindow time.Duration

	SyncOptions syncer.Options
}

// Server обслуживает sync соединения поверх общего Peer
type Server struct {
	peer     *peer.Peer
	logger   *slog.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

// New создает sync сервер над peer
func New(p *peer.Peer, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HandshakeRate <= 0 {
		cfg.HandshakeRate = 30
	}
	if cfg.HandshakeWindow <= 0 {
		cfg.HandshakeWindow = time.Minute
	}
	if cfg.SyncOptions.Logger == nil {
		cfg.SyncOptions.Logger = cfg.Logger
	}

	return &Server{
		peer:   p,
		logger: cfg.Logger,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler собирает HTTP роутер сервера со всеми middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	var sync http.Handler = http.HandlerFunc(s.handleSync)
	if len(s.cfg.TokenConfig.Secret) > 0 {
		sync = middleware.AuthMiddleware(s.logger, func(t string) (string, error) {
			return token.Validate(s.cfg.TokenConfig, t)
		})(sync)
	}
	dialLimiter := middleware.NewDialLimiter(s.cfg.HandshakeRate, s.cfg.HandshakeWindow, s.logger)
	mux.Handle("/api/v1/sync", dialLimiter.Middleware(sync))

	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(s.logger, []string{"/api/v1/health"})(handler)
	handler = middleware.Recovery(s.logger)(handler)
	return handler
}

// healthResponse представляет ответ health check
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// handleHealth обрабатывает GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.cfg.Version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// handleSync обрабатывает GET /api/v1/sync: upgrade до WebSocket
// и запуск координатора над соединением
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.logger.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	peerName, _ := middleware.PeerName(r.Context())
	s.logger.Info("Sync connection established", "remote_addr", r.RemoteAddr, "peer_name", peerName)

	conn := syncer.NewConn(syncer.NewWebsocketTransport(ws), s.logger)
	coord := syncer.NewCoordinator(s.peer, conn, s.cfg.SyncOptions)

	// Серверная сторона тоже тянет документы: синхронизация симметрична.
	// Контекст запроса не переживает hijack, поэтому handshake получает свой.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := coord.Start(ctx); err != nil {
			s.logger.Warn("Coordinator start failed", "remote_addr", r.RemoteAddr, "error", err)
		}

		<-conn.Done()
		if err := coord.Close(); err != nil && err != syncer.ErrCoordinatorClosed {
			s.logger.Warn("Coordinator close failed", "error", err)
		}
		s.logger.Info("Sync connection closed", "remote_addr", r.RemoteAddr)
	}()
}
