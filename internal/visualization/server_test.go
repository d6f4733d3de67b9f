package visualization

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/pool"
)

func snapshot(step int) driver.StepResult {
	return driver.StepResult{
		Step:           step,
		Picked:         pool.Item(step % 3),
		PriorWeights:   []float64{1.0 / 3, 1.0 / 3, 1.0 / 3},
		Weights:        []float64{0.5, 0, 0.5},
		PickCounts:     []int{1, 0, 1},
		Sequence:       []pool.Item{pool.Item(step % 3)},
		StepsCompleted: step,
		StepsTotal:     10,
	}
}

func TestServer_ServesHTML(t *testing.T) {
	srv := NewServer("localhost:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)

	resp, err := http.Get(ChartURL(srv.Addr()))
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(string(body), "<canvas") {
		t.Error("page has no canvas")
	}

	resp, err = http.Get("http://" + srv.Addr() + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_StateEndpoint(t *testing.T) {
	srv := NewServer("")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status before first step = %d, want 204", resp.StatusCode)
	}

	if err := srv.Render(context.Background(), snapshot(4)); err != nil {
		t.Fatalf("Render: %v", err)
	}

	resp, err = http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got driver.StepResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Step != 4 || got.StepsTotal != 10 {
		t.Errorf("state = step %d/%d, want 4/10", got.Step, got.StepsTotal)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/state", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", resp.StatusCode)
	}
}

func TestServer_WebSocketStreamsSteps(t *testing.T) {
	srv := NewServer("")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if err := srv.Render(context.Background(), snapshot(1)); err != nil {
		t.Fatalf("Render: %v", err)
	}

	conn := dial(t, ts)
	defer conn.Close()

	if got := readStep(t, conn); got.Step != 1 {
		t.Errorf("first frame step = %d, want the latest (1)", got.Step)
	}

	waitForClients(t, srv, 1)
	if err := srv.Render(context.Background(), snapshot(2)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := readStep(t, conn); got.Step != 2 {
		t.Errorf("second frame step = %d, want 2", got.Step)
	}

	conn.Close()
	waitForClients(t, srv, 0)
}

func TestServer_ShutdownClosesWebSockets(t *testing.T) {
	srv := NewServer("localhost:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.ListenAndServe(ctx) }()
	waitForServer(t, srv, 2*time.Second)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, srv, 1)

	cancel()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close on shutdown")
	}
}

func TestServer_SlowClientDropsFrames(t *testing.T) {
	srv := NewServer("")
	_, ch := srv.addClient()

	for i := 1; i <= clientBuffer+4; i++ {
		if err := srv.Render(context.Background(), snapshot(i)); err != nil {
			t.Fatalf("Render(%d): %v", i, err)
		}
	}

	if got := srv.Dropped(); got != 4 {
		t.Errorf("Dropped() = %d, want 4", got)
	}
	if len(ch) != clientBuffer {
		t.Errorf("queued = %d, want %d", len(ch), clientBuffer)
	}

	var first driver.StepResult
	if err := json.Unmarshal(<-ch, &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Step != 1 {
		t.Errorf("oldest queued step = %d, want 1", first.Step)
	}
}

func TestServer_RejectsRemoteClients(t *testing.T) {
	srv := NewServer("")
	h := srv.Handler()

	for _, path := range []string{"/", "/api/state", "/ws"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.RemoteAddr = "203.0.113.5:4000"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", rec.Code)
			}
		})
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:5000", true},
		{"[::1]:5000", true},
		{"::1", true},
		{"10.1.2.3:80", false},
		{"example.com:80", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isLoopbackRemote(tt.addr); got != tt.want {
			t.Errorf("isLoopbackRemote(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestIsLoopbackOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:8080", true},
		{"http://LOCALHOST", true},
		{"http://127.0.0.1:5000", true},
		{"http://[::1]:5000", true},
		{"http://evil.example", false},
		{"https://localhost.evil.example", false},
		{"http://10.1.2.3", false},
		{"null", false},
	}
	for _, tt := range tests {
		if got := isLoopbackOrigin(tt.origin); got != tt.want {
			t.Errorf("isLoopbackOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestServer_WebSocketChecksOrigin(t *testing.T) {
	srv := NewServer("")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws://" + strings.TrimPrefix(ts.URL, "http://") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	if err == nil {
		t.Fatal("expected a foreign origin to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign origin response = %v, want 403", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {ts.URL}})
	if err != nil {
		t.Fatalf("loopback origin rejected: %v", err)
	}
	conn.Close()
	waitForClients(t, srv, 0)
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws://" + strings.TrimPrefix(ts.URL, "http://") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func readStep(t *testing.T, conn *websocket.Conn) driver.StepResult {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var res driver.StepResult
	if err := json.Unmarshal(msg, &res); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return res
}

func waitForClients(t *testing.T, srv *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Clients() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Clients() = %d, want %d", srv.Clients(), want)
}

func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
