package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name  string
	err   error
	sent  []string
	calls int
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, title)
	return nil
}

func (s *stubSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyDeliversToAllSenders(t *testing.T) {
	a := &stubSender{name: "a"}
	b := &stubSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "error", "Title", "body"))
	assert.Equal(t, []string{"Title"}, a.sent)
	assert.Equal(t, []string{"Title"}, b.sent)
}

func TestNotifyFiltersByEventType(t *testing.T) {
	s := &stubSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"event_needs_review"}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "heartbeat", "Title", "body"))
	assert.Zero(t, s.calls, "filtered alert must not reach senders")

	require.NoError(t, n.Notify(context.Background(), "event_needs_review", "Title", "body"))
	assert.Equal(t, 1, s.calls)
}

func TestNotifyJoinsSenderFailures(t *testing.T) {
	bad := &stubSender{name: "telegram", err: errors.New("bot offline")}
	good := &stubSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "error", "Title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Contains(t, err.Error(), "bot offline")
	assert.Equal(t, 1, good.calls, "one failing sender must not stop the others")
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("token", "chat-1")
	s.baseURL = srv.URL

	require.NoError(t, s.Send(context.Background(), "Needs review", "event evt-1"))
	assert.Equal(t, "chat-1", got["chat_id"])
	assert.Contains(t, got["text"], "Needs review")
	assert.Contains(t, got["text"], "event evt-1")
}

func TestDiscordSenderSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "Title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
