package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/domain"
)

const (
	streamBuffer       = 32
	streamWriteTimeout = 5 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(u.Host), strings.TrimSpace(r.Host))
	},
}

// Hub fans evaluation log entries out to websocket subscribers. Slow
// subscribers miss entries rather than hold up the worker.
type Hub struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[chan domain.LogEntry]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, subs: make(map[chan domain.LogEntry]struct{})}
}

// Observe implements scheduler.Observer.
func (h *Hub) Observe(entry domain.LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- entry:
		default:
			h.logger.Debug("stream_entry_dropped", zap.String("check_id", entry.Check.ID))
		}
	}
}

func (h *Hub) subscribe() chan domain.LogEntry {
	ch := make(chan domain.LogEntry, streamBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan domain.LogEntry) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("stream_upgrade_failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	h.logger.Info("stream_connected", zap.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
