package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/abmazitov/heox/internal/logbook"
	"github.com/abmazitov/heox/internal/pipeline"
)

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	srv := New("127.0.0.1:0", opts...)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	return srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestStatusReflectsProgress(t *testing.T) {
	t.Parallel()
	fixed := time.Unix(1750000000, 0).UTC()
	srv := startServer(t, WithClock(func() time.Time { return fixed }))

	srv.SetRun("run-42", 100)
	energy := -12.5
	srv.Track(pipeline.Progress{
		Step:       7,
		TotalSteps: 100,
		Energy:     &energy,
		Options:    map[string]string{"module.swap.accepted_swaps": "3"},
	})

	var status statusResponse
	resp := getJSON(t, srv.BaseURL()+"/status", &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if status.RunID != "run-42" || status.Step != 7 || status.TotalSteps != 100 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Status != string(StatusRunning) {
		t.Fatalf("expected running, got %s", status.Status)
	}
	if status.Energy == nil || *status.Energy != -12.5 {
		t.Fatalf("unexpected energy: %+v", status.Energy)
	}
	if status.Statistics["module.swap.accepted_swaps"] != "3" {
		t.Fatalf("statistics not forwarded: %+v", status.Statistics)
	}
}

func TestStatusRejectsPost(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	resp, err := http.Post(srv.BaseURL()+"/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestLogServesTail(t *testing.T) {
	t.Parallel()
	book, err := logbook.New(filepath.Join(t.TempDir(), "logs", "run.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("line %d", i)
	}
	srv := startServer(t, WithLogbook(book))

	var logs logResponse
	resp := getJSON(t, srv.BaseURL()+"/log?n=2", &logs)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(logs.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(logs.Lines))
	}
}

func TestLogRejectsBadCount(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	resp, err := http.Get(srv.BaseURL() + "/log?n=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLogWithoutLogbook(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	var logs logResponse
	resp := getJSON(t, srv.BaseURL()+"/log", &logs)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(logs.Lines) != 0 {
		t.Fatalf("expected empty tail, got %+v", logs.Lines)
	}
}

func TestDoubleStartFails(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected error on second start")
	}
}
