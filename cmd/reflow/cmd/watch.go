package cmd

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/mod/modfile"
)

var (
	watchAddr     string
	watchDir      string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Trigger reassembly in a running engine when sources change",
	Long: `watch polls the Go sources of the module rooted at --dir and asks
the engine at --addr to reassemble whenever a file changes. Reassembly
reconstructs every renderer from retained configuration, so the running
tree picks up code changes without losing its shape.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "127.0.0.1:8750", "debug server address")
	watchCmd.Flags().StringVar(&watchDir, "dir", ".", "directory inside the module to watch")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 500*time.Millisecond, "poll interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, modulePath, err := findModuleRoot(watchDir)
	if err != nil {
		return err
	}
	fmt.Printf("watching %s (%s)\n", root, modulePath)

	client := &http.Client{Timeout: 5 * time.Second}
	last, err := scanSources(root)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for range ticker.C {
		current, err := scanSources(root)
		if err != nil {
			return err
		}
		if changed := diffSources(last, current); len(changed) > 0 {
			for _, path := range changed {
				fmt.Printf("changed: %s\n", path)
			}
			if err := postReassemble(client, watchAddr); err != nil {
				fmt.Fprintf(os.Stderr, "reassemble: %v\n", err)
			}
			last = current
		}
	}
	return nil
}

// findModuleRoot walks upward from dir to the enclosing go.mod and
// returns the module root and module path.
func findModuleRoot(dir string) (string, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	for current := abs; ; current = filepath.Dir(current) {
		modPath := filepath.Join(current, "go.mod")
		data, err := os.ReadFile(modPath)
		if err == nil {
			mod, parseErr := modfile.Parse(modPath, data, nil)
			if parseErr != nil {
				return "", "", fmt.Errorf("parse %s: %w", modPath, parseErr)
			}
			return current, mod.Module.Mod.Path, nil
		}
		if !os.IsNotExist(err) {
			return "", "", err
		}
		if filepath.Dir(current) == current {
			return "", "", fmt.Errorf("no go.mod found above %s", abs)
		}
	}
}

// scanSources records the mtime of every .go file under root, skipping
// vendored and hidden directories.
func scanSources(root string) (map[string]time.Time, error) {
	sources := make(map[string]time.Time)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sources[path] = info.ModTime()
		return nil
	})
	return sources, err
}

func diffSources(old, current map[string]time.Time) []string {
	var changed []string
	for path, mtime := range current {
		if prev, ok := old[path]; !ok || !prev.Equal(mtime) {
			changed = append(changed, path)
		}
	}
	for path := range old {
		if _, ok := current[path]; !ok {
			changed = append(changed, path)
		}
	}
	return changed
}

func postReassemble(client *http.Client, addr string) error {
	resp, err := client.Post(fmt.Sprintf("http://%s/api/reassemble", addr), "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}
	fmt.Println("reassembled")
	return nil
}
