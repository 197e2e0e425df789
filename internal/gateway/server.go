// Package gateway serves browser clients over websocket plus a small JSON
// API for conversation management. Clients are identified by remote IP, so a
// bench machine reconnecting always finds its own conversations.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/instrumentgpt/instrumentgpt/internal/agent"
	"github.com/instrumentgpt/instrumentgpt/internal/config"
	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

// Liker queues and cancels knowledge-base summarization of liked answers.
type Liker interface {
	Like(conversationID string, lastMessageID int64) error
	Unlike(conversationID string, lastMessageID int64) error
}

// Server is the websocket gateway.
type Server struct {
	cfg    config.GatewayConfig
	engine *agent.Engine
	store  schema.ConversationStore
	liker  Liker
	logger *slog.Logger

	upgrader websocket.Upgrader
}

func New(cfg config.GatewayConfig, engine *agent.Engine, store schema.ConversationStore, liker Liker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		engine: engine,
		store:  store,
		liker:  liker,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Bench-local deployment, same-origin enforcement is off.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/conversations", s.handleConversations)
	mux.HandleFunc("/api/conversations/", s.handleConversation)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("gateway: %w", err)
	}
}

// ─── Websocket chat ────────────────────────────────────────────────────────

// askFrame is the single client → server message type.
type askFrame struct {
	Type           string `json:"type"` // "ask"
	ConversationID string `json:"conversationId,omitempty"`
	Text           string `json:"text"`
}

// frame is a server → client streaming update. Types mirror the transport
// events plus "final" carrying the confirmed response text.
type frame struct {
	Type           string `json:"type"`
	Payload        string `json:"payload,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	owner := clientIP(r)
	s.logger.Info("client connected", "owner", owner)

	// Gorilla permits one concurrent writer; streaming callbacks and the
	// final write share this mutex.
	var writeMu sync.Mutex
	send := func(f frame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(f); err != nil {
			s.logger.Debug("websocket write", "error", err)
		}
	}

	for {
		var ask askFrame
		if err := conn.ReadJSON(&ask); err != nil {
			return
		}
		if ask.Type != "ask" || strings.TrimSpace(ask.Text) == "" {
			send(frame{Type: "error", Payload: "expected an ask frame with text"})
			continue
		}
		s.serveAsk(r.Context(), owner, ask, send)
	}
}

func (s *Server) serveAsk(ctx context.Context, owner string, ask askFrame, send func(frame)) {
	id := ask.ConversationID
	if id == "" {
		var err error
		id, err = s.store.CreateConversation(owner, agent.AutoTitle(ask.Text))
		if err != nil {
			send(frame{Type: "error", Payload: err.Error()})
			return
		}
	}

	text, err := s.engine.ProcessTurn(ctx, id, ask.Text, func(ev schema.Event) {
		send(frame{Type: string(ev.Type), Payload: ev.Payload, ConversationID: id})
	})
	if err != nil {
		send(frame{Type: "error", Payload: err.Error(), ConversationID: id})
		return
	}
	send(frame{Type: "final", Payload: text, ConversationID: id})
}

// ─── Conversation API ──────────────────────────────────────────────────────

type conversationJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updatedAt"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	convs, err := s.store.Conversations(clientIP(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]conversationJSON, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationJSON{
			ID:        c.ID,
			Title:     c.Title,
			UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, out)
}

// handleConversation routes /api/conversations/{id}[/messages|/like|/unlike].
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if err := s.store.DeleteConversation(id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case action == "messages" && r.Method == http.MethodGet:
		msgs, err := s.store.Messages(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, msgs)

	case (action == "like" || action == "unlike") && r.Method == http.MethodPost:
		s.handleLike(w, r, id, action == "like")

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request, id string, like bool) {
	if s.liker == nil {
		http.Error(w, "knowledge base disabled", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		LastMessageID int64 `json:"lastMessageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.LastMessageID == 0 {
		http.Error(w, "lastMessageId required", http.StatusBadRequest)
		return
	}

	var err error
	if like {
		err = s.liker.Like(id, body.LastMessageID)
	} else {
		err = s.liker.Unlike(id, body.LastMessageID)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP returns the host portion of the request's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
