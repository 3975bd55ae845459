package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/DipGo/internal/logic/motion"
)

// ---------- Handler helpers ----------

var testMachine = MachineInfo{
	PulsesPerMM:    500,
	MaxPulseRate:   3750,
	MaxSpeedMmPerS: 7.5,
	MaxTravelMM:    3000,
	RunSpeedMmPerS: 5,
	TickMs:         100,
}

func newTestHandlers() *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	return NewHandlers(NewStatusBroadcaster(), testMachine, staticFS)
}

// ---------- HandleConfig ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	h.HandleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got MachineInfo
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != testMachine {
		t.Errorf("config = %+v, want %+v", got, testMachine)
	}
}

// ---------- HandleStatus ----------

func TestHandleStatus_BeforeFirstTick(t *testing.T) {
	h := newTestHandlers()
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHandleStatus_Snapshot(t *testing.T) {
	h := newTestHandlers()
	_ = h.Broadcaster.Show(motion.Status{
		Mode:        motion.ModeMovingDown,
		Reason:      motion.ReasonStartDown,
		SpeedMmPerS: -5,
		PulseRate:   -2500,
	})

	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got motion.Status
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != motion.ModeMovingDown || got.PulseRate != -2500 || got.Reason != motion.ReasonStartDown {
		t.Errorf("status = %+v", got)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<html>test</html>") {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), testMachine, fstest.MapFS{})
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------- HandleStatusStream ----------

func TestHandleStatusStream_SnapshotThenChanges(t *testing.T) {
	h := newTestHandlers()
	_ = h.Broadcaster.Show(motion.Status{Mode: motion.ModeStopped})

	srv := httptest.NewServer(http.HandlerFunc(h.HandleStatusStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				lines <- data
			}
		}
		close(lines)
	}()

	next := func() StatusEvent {
		t.Helper()
		select {
		case data, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			var evt StatusEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				t.Fatalf("unmarshal %q: %v", data, err)
			}
			return evt
		case <-ctx.Done():
			t.Fatal("timeout waiting for event")
		}
		return StatusEvent{}
	}

	if evt := next(); evt.Status == nil || evt.Status.Mode != motion.ModeStopped {
		t.Fatalf("first event = %+v, want stopped snapshot", evt)
	}

	// the subscription is registered before the snapshot is written
	_ = h.Broadcaster.Show(motion.Status{Mode: motion.ModeEmergencyStopped, EStopLatched: true})
	if evt := next(); evt.Status == nil || !evt.Status.EStopLatched {
		t.Fatalf("second event = %+v, want latched E-stop", evt)
	}

	h.Broadcaster.Broadcast("error", "stepper: gpio write failed")
	if evt := next(); evt.Msg != "stepper: gpio write failed" || evt.Level != "error" {
		t.Fatalf("third event = %+v, want log line", evt)
	}
}

// ---------- Routes ----------

func TestServerMux_Routes(t *testing.T) {
	s := NewServer(":0", NewStatusBroadcaster(), testMachine)
	mux := s.Mux()

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/config", http.StatusOK},
		{http.MethodGet, "/status", http.StatusServiceUnavailable},
		{http.MethodPost, "/status", http.StatusMethodNotAllowed},
		{http.MethodPost, "/run", http.StatusNotFound},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			if w.Code != tc.want {
				t.Errorf("%s %s = %d, want %d", tc.method, tc.path, w.Code, tc.want)
			}
		})
	}
}

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", NewStatusBroadcaster(), testMachine)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
