package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var inspectAddr string

var inspectCmd = &cobra.Command{
	Use:       "inspect [tree|stats|frames]",
	Short:     "Query a running engine's debug server",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"tree", "stats", "frames"},
	RunE:      runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectAddr, "addr", "127.0.0.1:8750", "debug server address")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	var path string
	switch args[0] {
	case "tree":
		path = "/api/tree"
	case "stats":
		path = "/api/stats"
	case "frames":
		path = "/api/frames"
	default:
		return fmt.Errorf("unknown target %q", args[0])
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s%s", inspectAddr, path))
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inspect %s: %s: %s", args[0], resp.Status, body)
	}
	fmt.Println(string(body))
	return nil
}
