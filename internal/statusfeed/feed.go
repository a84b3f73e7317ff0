// Package statusfeed pushes build status transitions and analysis snapshots
// to UI collaborators over websockets, and serves a polling endpoint for
// clients that prefer pulling.
package statusfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"sceneforge/internal/analyzer"
	"sceneforge/internal/logging"
	"sceneforge/internal/manager"
	"sceneforge/internal/types"
)

// writeWait bounds a single message write to a slow peer.
const writeWait = 10 * time.Second

// sendBuffer is the per-client queue; clients that fall this far behind are
// dropped rather than blocking the broadcast.
const sendBuffer = 64

// StatusSource is the polled side of the feed. The build manager satisfies
// it.
type StatusSource interface {
	Status() types.BuildStatus
	LastAnalysis() *analyzer.BuildAnalysis
	Trends() analyzer.TrendReport
}

// Message is the JSON shape pushed to every subscriber.
type Message struct {
	State      string                  `json:"state"`
	Bytes      int                     `json:"bytes,omitempty"`
	DurationMs int                     `json:"durationMs,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Analysis   *analyzer.BuildAnalysis `json:"analysis,omitempty"`
}

// Feed broadcasts build events to connected websocket clients.
type Feed struct {
	logger         logging.Logger
	source         StatusSource
	allowedOrigins []string

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a feed over the given status source.
func New(source StatusSource, allowedOrigins []string, logger logging.Logger) *Feed {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Feed{
		logger:         logger.WithComponent("statusfeed"),
		source:         source,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*client]struct{}),
	}
}

// HandleEvent is the manager subscription target; register it with
// BuildManager.Subscribe.
func (f *Feed) HandleEvent(ev manager.Event) {
	msg := Message{
		State:      ev.Status.State.String(),
		Bytes:      ev.Status.Bytes,
		DurationMs: ev.Status.DurationMs,
		Message:    ev.Status.Message,
		Analysis:   ev.Analysis,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		f.logger.Error(context.Background(), err, "encoding status message")
		return
	}
	f.broadcast(data)
}

func (f *Feed) broadcast(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			// Slow client: drop it instead of blocking the build path.
			delete(f.clients, c)
			close(c.send)
		}
	}
}

// Handler returns the HTTP handler exposing /ws and /status.
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handleWebSocket)
	mux.HandleFunc("/status", f.handleStatus)
	return mux
}

// Serve runs an HTTP server for the feed until the context is cancelled.
func (f *Feed) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           f.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (f *Feed) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: f.allowedOrigins,
	})
	if err != nil {
		f.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	go f.writePump(c)
	f.readPump(c)
}

// writePump drains the client's queue onto the wire.
func (f *Feed) writePump(c *client) {
	for data := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			f.drop(c)
			return
		}
	}
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

// readPump discards inbound frames and detects disconnect.
func (f *Feed) readPump(c *client) {
	ctx := context.Background()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			f.drop(c)
			return
		}
	}
}

func (f *Feed) drop(c *client) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

// handleStatus serves a JSON snapshot for polling clients.
func (f *Feed) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := f.source.Status()
	snapshot := struct {
		Message
		Trends analyzer.TrendReport `json:"trends"`
	}{
		Message: Message{
			State:      status.State.String(),
			Bytes:      status.Bytes,
			DurationMs: status.DurationMs,
			Message:    status.Message,
			Analysis:   f.source.LastAnalysis(),
		},
		Trends: f.source.Trends(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		f.logger.Warn(r.Context(), err, "writing status snapshot")
	}
}

// ClientCount reports connected subscribers, for tests and diagnostics.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
