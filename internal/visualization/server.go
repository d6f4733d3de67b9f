package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvandessel/drawloop/internal/constants"
	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/logging"
)

// clientBuffer is how many frames a websocket client may fall behind
// before new frames are dropped for it.
const clientBuffer = 16

// Server serves the live bar chart page and pushes every rendered step to
// connected websocket clients. It implements driver.Renderer.
type Server struct {
	listen   string
	logger   *slog.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	addr       string

	mu      sync.Mutex
	latest  []byte
	clients map[uint64]chan []byte
	nextID  uint64
	dropped atomic.Uint64
}

// NewServer creates a chart server that will listen on addr. An empty addr
// means constants.DefaultListenAddr.
func NewServer(addr string) *Server {
	if addr == "" {
		addr = constants.DefaultListenAddr
	}
	return &Server{
		listen: addr,
		logger: logging.Discard(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return isLoopbackRemote(r.RemoteAddr) && isLoopbackOrigin(r.Header.Get("Origin"))
			},
		},
		clients: make(map[uint64]chan []byte),
	}
}

// SetLogger sets the logger. Nil disables logging.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.Discard()
	}
	s.logger = logger
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	s.logger.Info("chart server listening", "addr", s.addr)

	// Graceful shutdown when context is cancelled. Hijacked websocket
	// connections are not covered by Shutdown, so close their queues too.
	go func() {
		<-ctx.Done()
		s.closeClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Render implements driver.Renderer. It never blocks on a client: a client
// whose queue is full misses the frame.
func (s *Server) Render(_ context.Context, res driver.StepResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling step %d: %w", res.Step, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = b
	for id, ch := range s.clients {
		select {
		case ch <- b:
		default:
			s.dropped.Add(1)
			s.logger.Debug("frame dropped", "client", id, "step", res.Step)
		}
	}
	return nil
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns how many frames were skipped for slow clients.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

// addClient registers a queue and seeds it with the latest frame so a new
// client draws immediately.
func (s *Server) addClient() (uint64, chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ch := make(chan []byte, clientBuffer)
	if s.latest != nil {
		ch <- s.latest
	}
	s.clients[s.nextID] = ch
	return s.nextID, ch
}

func (s *Server) removeClient(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.clients[id]; ok {
		delete(s.clients, id)
		close(ch)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.clients {
		delete(s.clients, id)
		close(ch)
	}
}

// handleIndex serves the chart page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	page, err := IndexHTML()
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// handleState returns the latest snapshot, or 204 before the first step.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	s.mu.Lock()
	latest := s.latest
	s.mu.Unlock()

	if latest == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(latest)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, frames := s.addClient()
	s.logger.Debug("client connected", "client", id)

	// Writer goroutine.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for b := range frames {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				_ = conn.Close()
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	// The page never sends anything; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.removeClient(id)
	s.logger.Debug("client disconnected", "client", id)

	// Best-effort wait for the writer to stop so it doesn't outlive conn.
	select {
	case <-writeDone:
	case <-time.After(500 * time.Millisecond):
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isLoopbackOrigin reports whether a websocket Origin header names a
// loopback host. Clients that send no Origin are not browsers and pass.
func isLoopbackOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
