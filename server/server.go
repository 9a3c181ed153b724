// Package server exposes the chat pipeline over a JSON HTTP API and a
// websocket endpoint. Callers are identified by the X-User-ID header, which an
// authenticating proxy in front of the service is expected to set.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	"github.com/xhad/shopmate/internal/types"
	"github.com/xhad/shopmate/pkg/catalog"
	"github.com/xhad/shopmate/pkg/history"
	"github.com/xhad/shopmate/pkg/pipeline"
	"github.com/xhad/shopmate/pkg/users"
	"go.uber.org/zap"
)

const UserHeader = "X-User-ID"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the websocket envelope in both directions.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    struct {
		ChatID string `json:"chat_id"`
	} `json:"data"`
}

type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

type ChatPipeline interface {
	HandleMessage(ctx context.Context, msg models.ChatMessage) (models.ChatReply, error)
	Reload(ctx context.Context) error
}

type ConversationStore interface {
	types.ConversationIndex
	RemoveConversationID(ctx context.Context, userID, conversationID string) error
	Owns(ctx context.Context, userID, conversationID string) error
}

type PreferencesStore interface {
	types.PreferencesStore
	SetPreferences(ctx context.Context, userID string, prefs models.Preferences) error
}

type ProductCatalog interface {
	Products() []models.Product
	Find(query string) (models.Product, error)
}

type Deps struct {
	Pipeline      ChatPipeline
	History       types.HistoryStore
	Conversations ConversationStore
	Preferences   PreferencesStore
	Catalog       ProductCatalog
}

type Server struct {
	deps   Deps
	logger *zap.Logger
	mux    *http.ServeMux
}

func New(deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: logging.OrNop(logger),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/chat-sessions", s.handleChatSessions)
	s.mux.HandleFunc("GET /api/chat-history/{id}", s.handleChatHistory)
	s.mux.HandleFunc("POST /api/new-chat", s.handleNewChat)
	s.mux.HandleFunc("DELETE /api/chat/{id}", s.handleDeleteChat)
	s.mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	s.mux.HandleFunc("POST /api/preferences", s.handleSavePreferences)
	s.mux.HandleFunc("GET /api/products", s.handleProducts)
	s.mux.HandleFunc("GET /api/products/{id}", s.handleProduct)
	s.mux.HandleFunc("POST /api/reload", s.handleReload)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Add a simple health check endpoint
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// requireUser returns the caller's user id, or writes a 401 and returns "".
func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
	}
	return userID
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var msg models.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg.UserID = userID

	reply, status, err := s.chat(r.Context(), msg)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// chat checks that a continued conversation belongs to the caller before
// handing the message to the pipeline.
func (s *Server) chat(ctx context.Context, msg models.ChatMessage) (models.ChatReply, int, error) {
	if msg.ConversationID != "" {
		if err := s.deps.Conversations.Owns(ctx, msg.UserID, msg.ConversationID); err != nil {
			if errors.Is(err, users.ErrAccessDenied) {
				return models.ChatReply{}, http.StatusForbidden, errors.New("Access denied")
			}
			s.logger.Error("conversation lookup failed", zap.Error(err))
			return models.ChatReply{}, http.StatusInternalServerError, errors.New(pipeline.ApologyAnswer)
		}
	}

	reply, err := s.deps.Pipeline.HandleMessage(ctx, msg)
	if errors.Is(err, pipeline.ErrEmptyMessage) {
		return models.ChatReply{}, http.StatusBadRequest, err
	}
	if err != nil {
		s.logger.Error("chat failed", zap.String("user_id", msg.UserID), zap.Error(err))
		return models.ChatReply{}, http.StatusInternalServerError, errors.New(pipeline.ApologyAnswer)
	}
	return reply, http.StatusOK, nil
}

func (s *Server) handleChatSessions(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	ids, err := s.deps.Conversations.ListConversationIDs(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing conversations failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list chats")
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// authorizeConversation writes a 403 or 500 and returns false when the caller
// may not touch the conversation.
func (s *Server) authorizeConversation(w http.ResponseWriter, r *http.Request, userID, id string) bool {
	err := s.deps.Conversations.Owns(r.Context(), userID, id)
	if err == nil {
		return true
	}
	if errors.Is(err, users.ErrAccessDenied) {
		writeError(w, http.StatusForbidden, "Access denied")
		return false
	}
	s.logger.Error("conversation lookup failed", zap.String("conversation_id", id), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "could not load chat")
	return false
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	id := r.PathValue("id")
	if !s.authorizeConversation(w, r, userID, id) {
		return
	}

	turns, err := s.deps.History.Load(r.Context(), id)
	if errors.Is(err, history.ErrInvalidConversationID) {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	if err != nil {
		s.logger.Error("loading history failed", zap.String("conversation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load chat")
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := pipeline.NewConversationID()
	if err := s.deps.Conversations.AddConversationID(r.Context(), userID, id); err != nil {
		s.logger.Error("registering conversation failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"chat_id": id})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	id := r.PathValue("id")
	if !s.authorizeConversation(w, r, userID, id) {
		return
	}

	if err := s.deps.History.Clear(r.Context(), id); err != nil && !errors.Is(err, history.ErrInvalidConversationID) {
		s.logger.Error("clearing history failed", zap.String("conversation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete chat")
		return
	}
	if err := s.deps.Conversations.RemoveConversationID(r.Context(), userID, id); err != nil {
		s.logger.Error("removing conversation failed", zap.String("conversation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete chat")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Chat deleted successfully", Success: true})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	prefs, err := s.deps.Preferences.GetPreferences(r.Context(), userID)
	if err != nil {
		s.logger.Error("loading preferences failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load preferences")
		return
	}
	if prefs == nil {
		prefs = &models.Preferences{Size: users.DefaultSize, Colors: []string{}, Categories: []string{}}
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var prefs models.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.deps.Preferences.SetPreferences(r.Context(), userID, prefs); err != nil {
		s.logger.Error("saving preferences failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save preferences")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Preferences saved successfully", Success: true})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog.Products())
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	product, err := s.deps.Catalog.Find(id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product "+id+" not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load product")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	s.logger.Info("reload requested", zap.String("user_id", userID))
	if err := s.deps.Pipeline.Reload(r.Context()); err != nil {
		s.logger.Error("reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Reloaded", Success: true})
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("error reading websocket message", zap.Error(err))
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Warn("error unmarshaling websocket message", zap.Error(err))
			s.sendMessage(ws, "error", "invalid message", nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(r.Context(), ws, userID, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, userID string, msg inboundMessage) {
	if msg.Type != "chat" {
		s.sendMessage(ws, "error", "unsupported message type", nil)
		return
	}

	reply, _, err := s.chat(ctx, models.ChatMessage{
		Message:        msg.Content,
		ConversationID: msg.Data.ChatID,
		UserID:         userID,
	})
	if err != nil {
		s.sendMessage(ws, "error", err.Error(), nil)
		return
	}
	s.sendMessage(ws, "response", reply.Answer, reply)
}

func (s *Server) sendMessage(ws *wsConn, msgType string, content string, data interface{}) {
	msg := Message{
		Type:    msgType,
		Content: content,
		Data:    data,
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.conn.WriteJSON(msg); err != nil {
		s.logger.Warn("error sending websocket message", zap.Error(err))
	}
}
