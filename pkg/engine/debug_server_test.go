package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/reflow-ui/reflow/pkg/core"
	"github.com/reflow-ui/reflow/pkg/errors"
)

func startTestServer(t *testing.T) (*Engine, *DebugServer) {
	t.Helper()
	e := newTestEngine(t)
	counters := &phaseCounters{}
	_, err := e.SetRoot(columnCfg{
		Counters: counters,
		Items: []core.Config{
			labelCfg{Text: "a", W: 30, H: 10, Counters: counters},
		},
	})
	if err != nil {
		t.Fatalf("set root: %v", err)
	}
	renderFrame(t, e)

	srv, err := StartDebugServer(e, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("start debug server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return e, srv
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestDebugServerHealth(t *testing.T) {
	_, srv := startTestServer(t)
	var health struct {
		Status string `json:"status"`
	}
	getJSON(t, fmt.Sprintf("http://%s/healthz", srv.Addr()), &health)
	if health.Status != "ok" {
		t.Fatalf("status = %q", health.Status)
	}
}

func TestDebugServerTree(t *testing.T) {
	_, srv := startTestServer(t)
	var tree TreeNode
	getJSON(t, fmt.Sprintf("http://%s/api/tree", srv.Addr()), &tree)
	if tree.State != "Mounted" {
		t.Fatalf("root state = %q", tree.State)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(tree.Children))
	}
	if tree.Children[0].Size.Width != 30 {
		t.Fatalf("child width = %v", tree.Children[0].Size.Width)
	}
}

func TestDebugServerStatsAndFrames(t *testing.T) {
	_, srv := startTestServer(t)
	var stats RuntimeStats
	getJSON(t, fmt.Sprintf("http://%s/api/stats", srv.Addr()), &stats)
	if stats.Frames != 1 || stats.Nodes != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	var timeline FrameTimeline
	getJSON(t, fmt.Sprintf("http://%s/api/frames", srv.Addr()), &timeline)
	if len(timeline.Samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(timeline.Samples))
	}
}

// captureErrHandler collects reported errors for inspection.
type captureErrHandler struct {
	mu   sync.Mutex
	errs []*errors.TreeError
}

func (h *captureErrHandler) HandleError(err *errors.TreeError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *captureErrHandler) HandlePanic(err *errors.PanicError)      {}
func (h *captureErrHandler) HandleBuildError(err *errors.BuildError) {}

func (h *captureErrHandler) find(op string) *errors.TreeError {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, err := range h.errs {
		if err.Op == op {
			return err
		}
	}
	return nil
}

func TestDebugServerReportsServeFailure(t *testing.T) {
	h := &captureErrHandler{}
	errors.SetHandler(h)
	t.Cleanup(func() { errors.SetHandler(nil) })

	e := newTestEngine(t)
	srv, err := StartDebugServer(e, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("start debug server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	// Killing the listener makes Serve return a real error rather than
	// ErrServerClosed.
	srv.listener.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.find("engine.DebugServer.Serve") == nil {
		if time.Now().After(deadline) {
			t.Fatal("serve failure not reported")
		}
		time.Sleep(10 * time.Millisecond)
	}
	reported := h.find("engine.DebugServer.Serve")
	if !errors.IsKind(reported, errors.KindInit) {
		t.Fatalf("reported kind = %v, want init", reported.Kind)
	}
}

func TestDebugServerReassemble(t *testing.T) {
	e, srv := startTestServer(t)
	resp, err := http.Post(fmt.Sprintf("http://%s/api/reassemble", srv.Addr()), "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !e.NeedsFrame() {
		t.Fatal("reassemble did not request a frame")
	}
	renderFrame(t, e)
}
