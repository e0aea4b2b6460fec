// Package monitor serves a small read-only HTTP endpoint for watching a
// running simulation: current step, energy and the tail of the logbook.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/abmazitov/heox/internal/logbook"
	"github.com/abmazitov/heox/internal/pipeline"
)

// Status reports the monitor's view of the run lifecycle.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusDraining Status = "draining"
)

const defaultLogTail = 20

// Logger is the printf-style sink used for server diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Server exposes GET /status and GET /log for a single run.
type Server struct {
	addr   string
	logger Logger
	book   *logbook.Logbook
	clock  func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    Status
	startTime time.Time

	runID      string
	totalSteps int
	step       int
	energy     *float64
	statistics map[string]string
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op diagnostics logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLogbook attaches the run's logbook so /log can serve its tail.
func WithLogbook(book *logbook.Logbook) Option {
	return func(s *Server) { s.book = book }
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New prepares a monitor listening on addr, e.g. "127.0.0.1:7777".
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		logger: nopLogger{},
		clock:  func() time.Time { return time.Now().UTC() },
		status: StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SetLogbook attaches or replaces the logbook served by /log. Useful when
// the monitor is constructed before the run's logbook exists.
func (s *Server) SetLogbook(book *logbook.Logbook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.book = book
}

// SetRun records the run identity shown in /status.
func (s *Server) SetRun(runID string, totalSteps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.totalSteps = totalSteps
}

// Track updates the monitor from a pipeline progress tick. It satisfies the
// pipeline's progress callback signature so it can be wired directly.
func (s *Server) Track(p pipeline.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRunning
	s.step = p.Step
	if p.TotalSteps > 0 {
		s.totalSteps = p.TotalSteps
	}
	s.energy = p.Energy
	s.statistics = p.Options
}

// Start binds the TCP listener and serves HTTP in the background.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("monitor: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("monitor: server already started")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", s.addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/log", s.handleLog)
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("monitor: serve error: %v", err)
		}
	}()
	s.logger.Printf("monitor: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL of the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return "http://" + s.addr
	}
	return "http://" + addr
}

type statusResponse struct {
	RunID         string            `json:"run_id"`
	Status        string            `json:"status"`
	Step          int               `json:"step"`
	TotalSteps    int               `json:"total_steps"`
	Energy        *float64          `json:"energy"`
	Statistics    map[string]string `json:"statistics,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	s.mu.RLock()
	resp := statusResponse{
		RunID:      s.runID,
		Status:     string(s.status),
		Step:       s.step,
		TotalSteps: s.totalSteps,
		Energy:     s.energy,
		Statistics: s.statistics,
	}
	if !s.startTime.IsZero() {
		resp.UptimeSeconds = int64(s.clock().Sub(s.startTime).Seconds())
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

type logResponse struct {
	Lines []string `json:"lines"`
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	n := defaultLogTail
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a positive integer"})
			return
		}
		n = parsed
	}
	s.mu.RLock()
	book := s.book
	s.mu.RUnlock()
	lines := book.Tail(n)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, logResponse{Lines: lines})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
