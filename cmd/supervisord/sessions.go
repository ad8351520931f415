package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCommand() *cobra.Command {
	var apiAddr string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions from a running supervisord instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := fetchSessions(apiAddr)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}
			printSessions(cmd, sessions)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiAddr, "api", "http://127.0.0.1:8787", "base URL of a running supervisord instance")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func fetchSessions(apiAddr string) ([]map[string]any, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(apiAddr + "/sessions")
	if err != nil {
		return nil, fmt.Errorf("contact supervisord at %s: %w", apiAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supervisord returned %s", resp.Status)
	}

	var sessions []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return sessions, nil
}

func printSessions(cmd *cobra.Command, sessions []map[string]any) {
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return
	}
	fmt.Fprintf(out, "%-36s %-10s %-10s %-10s %s\n", "ID", "KIND", "AGENT", "STATUS", "NAME")
	for _, s := range sessions {
		fmt.Fprintf(out, "%-36v %-10v %-10v %-10v %v\n", s["id"], s["kind"], s["agent"], s["status"], s["name"])
	}
}
