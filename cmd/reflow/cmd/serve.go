package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reflow-ui/reflow/pkg/basic"
	"github.com/reflow-ui/reflow/pkg/core"
	"github.com/reflow-ui/reflow/pkg/engine"
	"github.com/reflow-ui/reflow/pkg/graphics"
)

var (
	serveConfig string
	serveAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a demo engine with the debug server",
	Long: `serve mounts a small demo tree and renders frames on demand. The
debug server exposes the tree, frame timeline and metrics; edits arrive
through POST /api/reassemble.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "path to a YAML options file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8750", "debug server listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	opts := engine.DefaultOptions()
	if serveConfig != "" {
		loaded, err := engine.LoadOptions(serveConfig)
		if err != nil {
			return err
		}
		opts = loaded
	}
	if serveAddr != "" {
		opts.DebugAddr = serveAddr
	}

	e, err := engine.New(opts)
	if err != nil {
		return err
	}
	if _, err := e.SetRoot(demoTree(time.Now())); err != nil {
		return err
	}

	var srv *engine.DebugServer
	if opts.DebugAddr != "" {
		srv, err = engine.StartDebugServer(e, opts.DebugAddr)
		if err != nil {
			return err
		}
		defer srv.Close()
		fmt.Printf("debug server listening on http://%s\n", srv.Addr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The demo updates its clock line once a second; everything else
	// stays clean and serves from the caches.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	frames := make(chan struct{}, 1)
	e.OnFrameRequested(func() {
		select {
		case frames <- struct{}{}:
		default:
		}
	})
	e.RequestFrame()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if _, err := e.SetRoot(demoTree(now)); err != nil {
				return err
			}
		case <-frames:
			if _, err := e.RenderFrame(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "frame error: %v\n", err)
			}
		}
	}
}

func demoTree(now time.Time) core.Config {
	return basic.Column{Spacing: 8, Items: []core.Config{
		basic.Box{
			ID:      "header",
			Color:   graphics.ARGB(0xFF, 0x28, 0x2C, 0x34),
			Padding: 12,
			Child:   basic.Text{Content: "reflow demo", Color: graphics.ARGB(0xFF, 0xFF, 0xFF, 0xFF)},
		},
		basic.Text{
			ID:      "clock",
			Content: now.Format(time.TimeOnly),
			Color:   graphics.ARGB(0xFF, 0x61, 0xAF, 0xEF),
		},
		basic.Box{
			ID:      "footer",
			Color:   graphics.ARGB(0xFF, 0x98, 0xC3, 0x79),
			Padding: 6,
			Child:   basic.Text{Content: "POST /api/reassemble to hot-reload"},
		},
	}}
}
