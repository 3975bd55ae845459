package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/DipGo/internal/logic/motion"
)

// StatusEvent is a single SSE message: either a log line or a status snapshot.
type StatusEvent struct {
	Time   string         `json:"t"`
	Level  string         `json:"l,omitempty"`
	Msg    string         `json:"msg,omitempty"`
	Status *motion.Status `json:"status,omitempty"`
}

// StatusBroadcaster distributes status snapshots and log lines to SSE
// clients. It is also a display port: the control loop pushes the status to
// it every tick and only changes are broadcast.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}

	lastMu  sync.RWMutex
	last    motion.Status
	hasLast bool
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Show records st as the latest status and broadcasts it if it changed.
func (b *StatusBroadcaster) Show(st motion.Status) error {
	b.lastMu.Lock()
	changed := !b.hasLast || st != b.last
	b.last = st
	b.hasLast = true
	b.lastMu.Unlock()

	if changed {
		b.send(StatusEvent{Status: &st})
	}
	return nil
}

// Last returns the latest status and whether one has been shown yet.
func (b *StatusBroadcaster) Last() (motion.Status, bool) {
	b.lastMu.RLock()
	defer b.lastMu.RUnlock()
	return b.last, b.hasLast
}

// Broadcast sends a log line to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// Encode renders an event as its SSE data payload.
func Encode(evt StatusEvent) (string, error) {
	if evt.Time == "" {
		evt.Time = time.Now().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// send delivers evt to every client. Slow clients may miss messages
// (non-blocking, buffered).
func (b *StatusBroadcaster) send(evt StatusEvent) {
	payload, err := Encode(evt)
	if err != nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
