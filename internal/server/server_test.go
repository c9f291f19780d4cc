package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/fpang/poetry-camera/internal/engine"
	"github.com/fpang/poetry-camera/internal/feedback"
	"github.com/fpang/poetry-camera/internal/store"
	"github.com/fpang/poetry-camera/internal/trigger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEngine struct {
	mu   sync.Mutex
	mode trigger.Mode
}

func (f *fakeEngine) Status() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Status{Phase: feedback.Idle, Mode: f.mode.String()}
}

func (f *fakeEngine) Mode() trigger.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fakeEngine) SetMode(m trigger.Mode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.mode != m
	f.mode = m
	return changed
}

type recordingQueue struct {
	mu     sync.Mutex
	events []trigger.Event
}

func (q *recordingQueue) Publish(e trigger.Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

type fixture struct {
	srv     *httptest.Server
	queue   *recordingQueue
	engine  *fakeEngine
	ledger  *store.MemoryLedger
	content string

	mu    sync.Mutex
	modes []trigger.Mode
}

func newFixture(t *testing.T, perMinute int, hub *Hub) *fixture {
	t.Helper()
	f := &fixture{
		queue:   &recordingQueue{},
		engine:  &fakeEngine{mode: trigger.ModeManual},
		ledger:  store.NewMemoryLedger(),
		content: t.TempDir(),
	}
	s := New(Options{
		Engine:           f.engine,
		Triggers:         f.queue,
		Ledger:           f.ledger,
		ContentDir:       f.content,
		Hub:              hub,
		TriggerPerMinute: perMinute,
		Devices: func() map[string]Device {
			return map[string]Device{"printer": {Backend: "simulation", Simulated: true}}
		},
		OnModeChange: func(m trigger.Mode) {
			f.mu.Lock()
			f.modes = append(f.modes, m)
			f.mu.Unlock()
		},
	})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t, 0, nil)
	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/api/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	eng := body["engine"].(map[string]any)
	if eng["phase"] != "idle" || eng["mode"] != "manual" {
		t.Errorf("engine = %v", eng)
	}
	devices := body["devices"].(map[string]any)
	if devices["printer"].(map[string]any)["backend"] != "simulation" {
		t.Errorf("devices = %v", devices)
	}
}

func TestTrigger_RateLimited(t *testing.T) {
	f := newFixture(t, 2, nil)
	var codes []int
	for range 3 {
		resp, _ := f.do(t, http.MethodPost, "/api/trigger", "")
		codes = append(codes, resp.StatusCode)
	}
	want := []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("status codes mismatch (-want +got):\n%s", diff)
	}
	if f.queue.len() != 2 {
		t.Errorf("published = %d, want 2", f.queue.len())
	}
	f.queue.mu.Lock()
	src := f.queue.events[0].Source
	f.queue.mu.Unlock()
	if src != trigger.ManualButton {
		t.Errorf("source = %v", src)
	}
}

func TestSetMode(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"valid", `{"mode":"mediapipe"}`, http.StatusOK},
		{"alias", `{"mode":"tm"}`, http.StatusOK},
		{"unknown", `{"mode":"telepathy"}`, http.StatusBadRequest},
		{"empty", `{"mode":""}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	f := newFixture(t, 0, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodPost, "/api/mode", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("code = %d, want %d", resp.StatusCode, tt.wantCode)
			}
		})
	}
	f.mu.Lock()
	modes := f.modes
	f.mu.Unlock()
	if diff := cmp.Diff([]trigger.Mode{trigger.ModeMediaPipe, trigger.ModeTeachable}, modes); diff != "" {
		t.Errorf("mode changes mismatch (-want +got):\n%s", diff)
	}
	_, body := f.do(t, http.MethodGet, "/api/mode", "")
	if body["mode"] != "teachable" {
		t.Errorf("mode = %v", body["mode"])
	}
}

func TestRuns(t *testing.T) {
	f := newFixture(t, 0, nil)
	run := store.NewRun("button", "manual", time.Now())
	run.Poem = "詩"
	f.ledger.PutRun(context.Background(), run)

	resp, body := f.do(t, http.MethodGet, "/api/runs?limit=5", "")
	if resp.StatusCode != http.StatusOK || len(body["runs"].([]any)) != 1 {
		t.Errorf("list = %d %v", resp.StatusCode, body)
	}
	resp, body = f.do(t, http.MethodGet, "/api/runs/"+run.ID, "")
	if resp.StatusCode != http.StatusOK || body["poem"] != "詩" {
		t.Errorf("get = %d %v", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/runs/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing run code = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/runs?limit=0", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit code = %d", resp.StatusCode)
	}
}

func TestContent(t *testing.T) {
	f := newFixture(t, 0, nil)
	dir := filepath.Join(f.content, "20240101-000000_abcdef12")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "poem.txt"), []byte("hello\n"), 0o644)

	resp, err := http.Get(f.srv.URL + "/content/20240101-000000_abcdef12/poem.txt")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("content code = %d", resp.StatusCode)
	}
	if !containsPathTraversal("/content/../etc/passwd") || containsPathTraversal("/content/a/b") {
		t.Error("containsPathTraversal() misclassified a path")
	}
}

func TestHub_StreamsEvents(t *testing.T) {
	hub := NewHub(nil)
	f := newFixture(t, 0, hub)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Handle(feedback.Event{Phase: feedback.Countdown, Remaining: 3, RunID: "r1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg["tag"] != "countdown(3)" || msg["phase"] != "countdown" || msg["runId"] != "r1" {
		t.Errorf("message = %v", msg)
	}

	hub.Close()
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should close when the hub closes")
	}
}
