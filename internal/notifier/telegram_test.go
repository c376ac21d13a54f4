package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func telegramFake(t *testing.T, failChatID int64) (*httptest.Server, *[]int64) {
	t.Helper()

	var mu sync.Mutex
	delivered := []int64{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.ChatID == failChatID {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(sendMessageResponse{
				OK:          false,
				Description: "chat not found",
			})
			return
		}

		mu.Lock()
		delivered = append(delivered, req.ChatID)
		mu.Unlock()

		_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: true})
	}))

	return srv, &delivered
}

func TestBroadcast_FansOutToAllChats(t *testing.T) {
	srv, delivered := telegramFake(t, 0)
	defer srv.Close()

	tg := NewTelegram(discardLogger(), "token", []int64{11, 22, 33}, time.Second)
	tg.APIBase = srv.URL

	count := tg.Broadcast(context.Background(), "hello")

	assert.Equal(t, 3, count)
	assert.ElementsMatch(t, []int64{11, 22, 33}, *delivered)
}

func TestBroadcast_ContinuesPastChatFailure(t *testing.T) {
	srv, delivered := telegramFake(t, 22)
	defer srv.Close()

	tg := NewTelegram(discardLogger(), "token", []int64{11, 22, 33}, time.Second)
	tg.APIBase = srv.URL

	count := tg.Broadcast(context.Background(), "hello")

	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []int64{11, 33}, *delivered)
}

func TestHandleEvent_DeliversMessage(t *testing.T) {
	srv, delivered := telegramFake(t, 0)
	defer srv.Close()

	tg := NewTelegram(discardLogger(), "token", []int64{11}, time.Second)
	tg.APIBase = srv.URL

	body := []byte(`{"type":"deal","message":"cheap gpu"}`)

	require.NoError(t, tg.HandleEvent(context.Background(), body))
	assert.Equal(t, []int64{11}, *delivered)
}

func TestHandleEvent_DropsMalformedEvent(t *testing.T) {
	tg := NewTelegram(discardLogger(), "token", []int64{11}, time.Second)

	// Must not requeue: a malformed event never becomes deliverable.
	require.NoError(t, tg.HandleEvent(context.Background(), []byte("{not json")))
}

func TestConfigured(t *testing.T) {
	assert.True(t, NewTelegram(discardLogger(), "token", []int64{1}, 0).Configured())
	assert.False(t, NewTelegram(discardLogger(), "", []int64{1}, 0).Configured())
	assert.False(t, NewTelegram(discardLogger(), "token", nil, 0).Configured())
}
