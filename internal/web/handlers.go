package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"
)

// MachineInfo describes the derived machine limits served on GET /config.
type MachineInfo struct {
	PulsesPerMM    float64 `json:"pulses_per_mm"`
	MaxPulseRate   int     `json:"max_pulse_rate"`
	MaxSpeedMmPerS float64 `json:"max_speed_mm_s"`
	MaxTravelMM    float64 `json:"max_travel_mm"`
	RunSpeedMmPerS float64 `json:"run_speed_mm_s"`
	TickMs         int     `json:"tick_ms"`
}

// Handlers holds dependencies for HTTP handlers. Every route is read-only:
// the rig is controlled from its physical buttons only.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Machine     MachineInfo
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, machine MachineInfo, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Machine:     machine,
		staticFS:    staticFS,
	}
}

// HandleConfig returns the machine limits as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Machine)
}

// HandleStatus returns the latest status snapshot as JSON, or 503 before the
// first tick.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := h.Broadcaster.Last()
	if !ok {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE. A new client first
// receives the current snapshot, then every change.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	if st, ok := h.Broadcaster.Last(); ok {
		if payload, err := Encode(StatusEvent{Status: &st}); err == nil {
			w.Write([]byte("data: " + payload + "\n\n"))
		}
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
