// Package ingest is the local HTTP listener the game client posts chat
// events to. Accepted events are normalized and enqueued; forwarding
// happens asynchronously so the producing call never waits on delivery.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kyralis/chatrelay-go/internal/discord"
	"github.com/kyralis/chatrelay-go/internal/relay"
)

// maxBodyBytes bounds what a local producer may post in one call.
const maxBodyBytes = 64 << 10

// Config configures the ingress listener.
type Config struct {
	Host string
	Port int
}

// Server accepts webhook calls from the game client.
type Server struct {
	cfg   Config
	queue *relay.Queue
	ready func() bool
	log   *zap.Logger

	mux *http.ServeMux
	srv *http.Server
}

// webhookPayload is the JSON body of an ingress call.
type webhookPayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// NewServer creates the ingress server. ready reports whether the
// dispatcher is accepting work; while it returns false every webhook call
// is answered with a server error.
func NewServer(cfg Config, queue *relay.Queue, ready func() bool, logger *zap.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		queue: queue,
		ready: ready,
		log:   logger,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/webhook", s.handleWebhook)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the listener until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.mux,
	}

	s.log.Info("ingress listening", zap.String("addr", s.srv.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"status": "error", "detail": "use POST",
		})
		return
	}
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error", "detail": "relay not ready",
		})
		return
	}

	ev, err := s.parseEvent(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error", "detail": err.Error(),
		})
		return
	}

	msg, err := s.queue.Enqueue(discord.FormatEvent(ev))
	if err != nil {
		s.log.Warn("queue full, message discarded", zap.String("sender", ev.Sender))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error", "detail": "queue full, message discarded",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "queued", "seq": msg.Seq,
	})
}

// parseEvent builds an Event from the request: JSON body first, with
// sender/message query parameters as a fallback for game clients that can
// only fire parameterized requests.
func (s *Server) parseEvent(r *http.Request) (relay.Event, error) {
	ev := relay.Event{ReceivedAt: time.Now()}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return ev, fmt.Errorf("reading body: %w", err)
	}

	if len(body) > 0 {
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return ev, errors.New("body is not valid JSON")
		}
		ev.Sender = payload.Sender
		ev.Body = payload.Message
	} else {
		query := r.URL.Query()
		ev.Sender = query.Get("sender")
		ev.Body = query.Get("message")
	}

	if ev.Body == "" {
		return ev, errors.New("message is required")
	}
	if ev.Sender == "" {
		ev.Sender = "unknown"
	}
	return ev, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"ready":   s.ready(),
		"pending": s.queue.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
