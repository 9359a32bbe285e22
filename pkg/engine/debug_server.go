package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reflow-ui/reflow/pkg/arena"
	"github.com/reflow-ui/reflow/pkg/core"
	"github.com/reflow-ui/reflow/pkg/errors"
)

// TreeNode is the serialized form of one node for the debug API.
type TreeNode struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Key         any              `json:"key,omitempty"`
	State       string           `json:"state"`
	Depth       int              `json:"depth"`
	Size        SafeSize         `json:"size"`
	Offset      SafeOffset       `json:"offset"`
	Constraints *SafeConstraints `json:"constraints,omitempty"`
	NeedsBuild  bool             `json:"needsBuild"`
	NeedsLayout bool             `json:"needsLayout"`
	NeedsPaint  bool             `json:"needsPaint"`
	Children    []TreeNode       `json:"children,omitempty"`
}

// SafeFloat wraps a float64 to handle Inf/NaN in JSON encoding.
type SafeFloat float64

func (f SafeFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 1) {
		return []byte(`"Infinity"`), nil
	}
	if math.IsInf(v, -1) {
		return []byte(`"-Infinity"`), nil
	}
	if math.IsNaN(v) {
		return []byte(`"NaN"`), nil
	}
	return json.Marshal(v)
}

// SafeSize is a JSON-safe version of graphics.Size.
type SafeSize struct {
	Width  SafeFloat `json:"width"`
	Height SafeFloat `json:"height"`
}

// SafeOffset is a JSON-safe version of graphics.Offset.
type SafeOffset struct {
	X SafeFloat `json:"x"`
	Y SafeFloat `json:"y"`
}

// SafeConstraints is a JSON-safe version of layout.Constraints.
type SafeConstraints struct {
	MinWidth  SafeFloat `json:"minWidth"`
	MaxWidth  SafeFloat `json:"maxWidth"`
	MinHeight SafeFloat `json:"minHeight"`
	MaxHeight SafeFloat `json:"maxHeight"`
}

// TreeSnapshot serializes the current tree. It takes the engine lock, so
// it observes the tree between frames, never mid-phase.
func (e *Engine) TreeSnapshot() (*TreeNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	root := e.tree.Root()
	if root.IsNil() {
		return nil, nil
	}
	node, err := e.snapshotNode(root)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (e *Engine) snapshotNode(id arena.ID) (TreeNode, error) {
	n, err := e.tree.Node(id)
	if err != nil {
		return TreeNode{}, err
	}
	out := TreeNode{
		ID:          id.String(),
		Type:        configName(n.Config()),
		Key:         n.Config().Key(),
		State:       n.State().String(),
		NeedsBuild:  n.NeedsRebuild(),
		NeedsLayout: n.NeedsLayout(),
		NeedsPaint:  n.NeedsPaint(),
	}
	if depth, err := n.Depth(); err == nil {
		out.Depth = depth
	}
	if size, err := n.Size(); err == nil {
		out.Size = SafeSize{Width: SafeFloat(size.Width), Height: SafeFloat(size.Height)}
	}
	if offset, err := n.Offset(); err == nil {
		out.Offset = SafeOffset{X: SafeFloat(offset.X), Y: SafeFloat(offset.Y)}
	}
	if constraints, ok := n.Constraints(); ok {
		out.Constraints = &SafeConstraints{
			MinWidth:  SafeFloat(constraints.MinWidth),
			MaxWidth:  SafeFloat(constraints.MaxWidth),
			MinHeight: SafeFloat(constraints.MinHeight),
			MaxHeight: SafeFloat(constraints.MaxHeight),
		}
	}
	children, err := n.Children()
	if err != nil {
		return out, nil
	}
	for _, child := range children {
		childNode, err := e.snapshotNode(child)
		if err != nil {
			return TreeNode{}, err
		}
		out.Children = append(out.Children, childNode)
	}
	return out, nil
}

func configName(cfg core.Config) string {
	if cfg == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", cfg)
}

// DebugServer exposes the engine over HTTP for inspection and hot
// reconstruction.
type DebugServer struct {
	engine   *Engine
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
}

// StartDebugServer binds addr and serves the debug API. An addr with port
// 0 picks an ephemeral port, reachable via Addr.
func StartDebugServer(e *Engine, addr string) (*DebugServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("debug server listen: %w", err)
	}

	s := &DebugServer{
		engine:   e,
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/tree", s.handleTree)
	r.Get("/api/frames", s.handleFrames)
	r.Get("/api/frames/live", s.handleFramesLive)
	r.Get("/api/stats", s.handleStats)
	r.Post("/api/reassemble", s.handleReassemble)
	r.Handle("/metrics", promhttp.HandlerFor(e.metrics.registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{Handler: r}
	go func() {
		if serveErr := s.server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			errors.Report(&errors.TreeError{
				Op:   "engine.DebugServer.Serve",
				Kind: errors.KindInit,
				Err:  serveErr,
			})
		}
	}()
	return s, nil
}

// Addr returns the bound listen address.
func (s *DebugServer) Addr() string {
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *DebugServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *DebugServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *DebugServer) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.engine.TreeSnapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tree == nil {
		http.Error(w, "no tree mounted", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, tree)
}

func (s *DebugServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.trace.Snapshot())
}

// handleFramesLive streams frame samples over a websocket until the
// client disconnects.
func (s *DebugServer) handleFramesLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	id, samples := s.engine.trace.Subscribe()
	defer s.engine.trace.Unsubscribe(id)
	defer conn.Close()

	// Drain reads so close frames are processed.
	go func() {
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				s.engine.trace.Unsubscribe(id)
				return
			}
		}
	}()

	for sample := range samples {
		if writeErr := conn.WriteJSON(sample); writeErr != nil {
			return
		}
	}
}

func (s *DebugServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Stats())
}

func (s *DebugServer) handleReassemble(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reassemble(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"reassembled"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, fmt.Sprintf("json encode error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
