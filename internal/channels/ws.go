package channels

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/crystaldolphin/internal/bus"
)

// wsInbound is the JSON shape a WS client sends for each chat turn.
type wsInbound struct {
	ChatID  string   `json:"chat_id"`
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
}

// wsOutbound is the JSON shape written back to a connected client.
type wsOutbound struct {
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
	Progress bool   `json:"progress,omitempty"`
}

// WSChannel exposes the agent over a single-process WebSocket endpoint: one
// socket connection is one chat session, addressed by the connection's own
// generated chat ID unless the client supplies its own in wsInbound.
type WSChannel struct {
	Base
	addr     string
	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewWSChannel creates a WSChannel listening on addr (host:port).
func NewWSChannel(addr string, hub *bus.Hub) *WSChannel {
	return &WSChannel{
		Base:     NewBase(bus.ChannelWS, hub, nil),
		addr:     addr,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[string]*websocket.Conn),
	}
}

func (w *WSChannel) Name() string { return string(bus.ChannelWS) }

// Start listens for WebSocket upgrades on addr until ctx is cancelled.
func (w *WSChannel) Start(ctx context.Context) error {
	if w.addr == "" {
		slog.Warn("ws: no listen address configured")
		<-ctx.Done()
		return ctx.Err()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleUpgrade)
	w.server = &http.Server{Addr: w.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- w.server.ListenAndServe() }()

	slog.Info("ws: listening", "addr", w.addr)
	select {
	case <-ctx.Done():
		_ = w.server.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (w *WSChannel) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	chatID := r.RemoteAddr
	w.mu.Lock()
	w.conns[chatID] = conn
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.conns, chatID)
		w.mu.Unlock()
	}()

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if in.ChatID != "" {
			chatID = in.ChatID
			w.mu.Lock()
			w.conns[chatID] = conn
			w.mu.Unlock()
		}
		w.HandleMessage(chatID, chatID, in.Content, in.Media, nil)
	}
}

// Send writes an outbound reply to the connection addressed by msg.ChatID().
func (w *WSChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	w.mu.Lock()
	conn, ok := w.conns[msg.ChatID()]
	w.mu.Unlock()
	if !ok {
		return nil // client disconnected; drop silently like a closed tab
	}

	progress, _ := msg.Metadata()["_progress"].(bool)
	out := wsOutbound{ChatID: msg.ChatID(), Content: msg.Content(), Progress: progress}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
