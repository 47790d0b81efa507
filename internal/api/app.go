package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/drivelane/convo/internal/config"
	"github.com/drivelane/convo/internal/database"
	"github.com/drivelane/convo/internal/server"
)

// App is the REST surface over the conversation store, plus the
// websocket upgrade endpoint. Every mutation it performs is relayed
// to connected participants through the chat server.
type App struct {
	log            *log.Logger
	db             database.ConversationRepository
	cs             *server.ChatServer
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
	sendLimiter    *userRateLimiter
}

func NewApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ConversationRepository, cfg *config.Config) *App {
	s := &App{
		log:            logger,
		db:             db,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		sendLimiter:    newUserRateLimiter(sendLimitWindow, sendLimitBurst),
	}

	mux.Handle("GET /healthz", http.HandlerFunc(s.healthCheck))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.Handle("POST /api/conversations", s.authMiddleware(s.startConversation))
	mux.Handle("GET /api/conversations/unread-count", s.authMiddleware(s.unreadCount))
	mux.Handle("GET /api/conversations/{id}", s.authMiddleware(s.getConversation))
	mux.Handle("DELETE /api/conversations/{id}", s.authMiddleware(s.deleteConversation))
	mux.Handle("GET /api/conversations/{id}/messages", s.authMiddleware(s.listMessages))
	mux.Handle("POST /api/conversations/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("PUT /api/conversations/{id}/read", s.authMiddleware(s.markRead))
	mux.Handle("POST /api/conversations/{id}/typing", s.authMiddleware(s.typingSignal))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
