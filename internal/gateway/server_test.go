package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/instrumentgpt/instrumentgpt/internal/config"
	"github.com/instrumentgpt/instrumentgpt/internal/schema"
	"github.com/instrumentgpt/instrumentgpt/internal/store"
)

// recordingLiker records like/unlike calls.
type recordingLiker struct {
	liked   []int64
	unliked []int64
}

func (r *recordingLiker) Like(_ string, id int64) error   { r.liked = append(r.liked, id); return nil }
func (r *recordingLiker) Unlike(_ string, id int64) error { r.unliked = append(r.unliked, id); return nil }

func newTestServer(t *testing.T, liker Liker) (*Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(config.GatewayConfig{Host: "127.0.0.1", Port: 0}, nil, s, liker, nil), s
}

func request(method, path, remoteAddr, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	r.RemoteAddr = remoteAddr
	return r
}

// ─── Conversation API ──────────────────────────────────────────────────────

func TestHandleConversations_ListsCallerOwnedOnly(t *testing.T) {
	srv, s := newTestServer(t, nil)
	s.CreateConversation("10.0.0.7", "mine")
	s.CreateConversation("10.0.0.8", "someone else's")

	w := httptest.NewRecorder()
	srv.handleConversations(w, request(http.MethodGet, "/api/conversations", "10.0.0.7:4242", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out []conversationJSON
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Title != "mine" {
		t.Errorf("unexpected listing: %+v", out)
	}
}

func TestHandleConversations_RejectsNonGet(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := httptest.NewRecorder()
	srv.handleConversations(w, request(http.MethodPost, "/api/conversations", "10.0.0.7:4242", ""))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleConversation_MessagesAndDelete(t *testing.T) {
	srv, s := newTestServer(t, nil)
	id, _ := s.CreateConversation("10.0.0.7", "t")
	s.SaveTurn(id, schema.NewUserMessage("q"), schema.NewAssistantMessage("a"), "", "")

	w := httptest.NewRecorder()
	srv.handleConversation(w, request(http.MethodGet, "/api/conversations/"+id+"/messages", "10.0.0.7:4242", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("messages status = %d", w.Code)
	}
	var msgs []schema.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "a" {
		t.Errorf("unexpected messages: %+v", msgs)
	}

	w = httptest.NewRecorder()
	srv.handleConversation(w, request(http.MethodDelete, "/api/conversations/"+id, "10.0.0.7:4242", ""))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if convs, _ := s.Conversations("10.0.0.7"); len(convs) != 0 {
		t.Errorf("conversation survived delete: %+v", convs)
	}
}

func TestHandleConversation_UnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := httptest.NewRecorder()
	srv.handleConversation(w, request(http.MethodGet, "/api/conversations/abc/bogus", "10.0.0.7:4242", ""))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

// ─── Likes ─────────────────────────────────────────────────────────────────

func TestHandleLike_QueuesSummarization(t *testing.T) {
	liker := &recordingLiker{}
	srv, s := newTestServer(t, liker)
	id, _ := s.CreateConversation("10.0.0.7", "t")

	w := httptest.NewRecorder()
	srv.handleConversation(w, request(http.MethodPost,
		"/api/conversations/"+id+"/like", "10.0.0.7:4242", `{"lastMessageId": 12}`))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if len(liker.liked) != 1 || liker.liked[0] != 12 {
		t.Errorf("like not forwarded: %+v", liker.liked)
	}

	w = httptest.NewRecorder()
	srv.handleConversation(w, request(http.MethodPost,
		"/api/conversations/"+id+"/unlike", "10.0.0.7:4242", `{"lastMessageId": 12}`))
	if w.Code != http.StatusAccepted || len(liker.unliked) != 1 {
		t.Errorf("unlike not forwarded: status %d, %+v", w.Code, liker.unliked)
	}
}

func TestHandleLike_MissingMessageID(t *testing.T) {
	srv, s := newTestServer(t, &recordingLiker{})
	id, _ := s.CreateConversation("10.0.0.7", "t")

	w := httptest.NewRecorder()
	srv.handleConversation(w, request(http.MethodPost,
		"/api/conversations/"+id+"/like", "10.0.0.7:4242", `{}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleLike_DisabledWithoutLiker(t *testing.T) {
	srv, s := newTestServer(t, nil)
	id, _ := s.CreateConversation("10.0.0.7", "t")

	w := httptest.NewRecorder()
	srv.handleConversation(w, request(http.MethodPost,
		"/api/conversations/"+id+"/like", "10.0.0.7:4242", `{"lastMessageId": 3}`))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

// ─── clientIP ──────────────────────────────────────────────────────────────

func TestClientIP(t *testing.T) {
	if got := clientIP(request(http.MethodGet, "/", "10.1.1.45:51234", "")); got != "10.1.1.45" {
		t.Errorf("clientIP = %q", got)
	}
	if got := clientIP(request(http.MethodGet, "/", "unix-socket", "")); got != "unix-socket" {
		t.Errorf("clientIP fallback = %q", got)
	}
}
