package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kyralis/chatrelay-go/internal/relay"
)

func newTestServer(queue *relay.Queue, ready bool) *Server {
	return NewServer(Config{Host: "127.0.0.1", Port: 0}, queue,
		func() bool { return ready }, zap.NewNop())
}

func postWebhook(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_WebhookAccepted(t *testing.T) {
	queue := relay.NewQueue(10)
	s := newTestServer(queue, true)

	rec := postWebhook(t, s, `{"sender": "Thrall", "message": "hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, queue.Len())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.Equal(t, float64(1), resp["seq"])

	msg, err := queue.Pop(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "[**Thrall**]: `hello`")
}

func TestServer_WebhookQueryFallback(t *testing.T) {
	queue := relay.NewQueue(10)
	s := newTestServer(queue, true)

	req := httptest.NewRequest(http.MethodPost, "/webhook?sender=Bob&message=hi", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	msg, err := queue.Pop(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "[**Bob**]: `hi`")
}

func TestServer_WebhookMalformedBody(t *testing.T) {
	queue := relay.NewQueue(10)
	s := newTestServer(queue, true)

	rec := postWebhook(t, s, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, queue.Len(), "malformed input must never be enqueued")
}

func TestServer_WebhookMissingMessage(t *testing.T) {
	queue := relay.NewQueue(10)
	s := newTestServer(queue, true)

	rec := postWebhook(t, s, `{"sender": "Thrall"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, queue.Len())
}

func TestServer_WebhookDefaultsSender(t *testing.T) {
	queue := relay.NewQueue(10)
	s := newTestServer(queue, true)

	rec := postWebhook(t, s, `{"message": "anonymous hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	msg, err := queue.Pop(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "[**unknown**]")
}

func TestServer_WebhookMethodNotAllowed(t *testing.T) {
	queue := relay.NewQueue(10)
	s := newTestServer(queue, true)

	req := httptest.NewRequest(http.MethodGet, "/webhook?message=hi", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, queue.Len())
}

func TestServer_WebhookNotReady(t *testing.T) {
	queue := relay.NewQueue(10)
	s := newTestServer(queue, false)

	rec := postWebhook(t, s, `{"message": "hello"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, queue.Len())
}

func TestServer_WebhookQueueFull(t *testing.T) {
	queue := relay.NewQueue(1)
	s := newTestServer(queue, true)

	rec := postWebhook(t, s, `{"message": "one"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhook(t, s, `{"message": "two"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, queue.Len())
}

func TestServer_ConcurrentWebhookCalls(t *testing.T) {
	queue := relay.NewQueue(100)
	s := newTestServer(queue, true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := postWebhook(t, s, fmt.Sprintf(`{"message": "msg-%d"}`, i))
			assert.Equal(t, http.StatusOK, rec.Code)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 50, queue.Len())

	// Each accepted call got its own sequence number.
	seen := make(map[uint64]bool)
	for i := 0; i < 50; i++ {
		msg, err := queue.Pop(context.Background())
		require.NoError(t, err)
		assert.False(t, seen[msg.Seq])
		seen[msg.Seq] = true
	}
}

func TestServer_Healthz(t *testing.T) {
	queue := relay.NewQueue(10)
	queue.Enqueue("pending")
	s := newTestServer(queue, true)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["ready"])
	assert.Equal(t, float64(1), resp["pending"])
}
