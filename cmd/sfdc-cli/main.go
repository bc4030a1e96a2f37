// cmd/sfdc-cli is the CLI client built with Cobra.
//
// Usage:
//
//	sfdc-cli fetch mykey --val 5        --server http://localhost:7001
//	sfdc-cli health                     --server http://localhost:7001
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sfdc/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "sfdc-cli",
		Short: "CLI client for the single-flight distributed cache/compute coordinator",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:7001", "Coordinator node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(fetchCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── fetch ──────────────────────────────────────────────────────────────────────

func fetchCmd() *cobra.Command {
	var val int64

	cmd := &cobra.Command{
		Use:   "fetch <key>",
		Short: "Fetch a key, hitting this node directly",
		Long: "Fetch asks the node at --server to resolve <key>. The node this CLI\n" +
			"talks to runs the fetch itself without consulting the ring or forwarding\n" +
			"it; this command just reports whatever comes back.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			params := map[string]any{"val": val}
			resp, err := c.Fetch(context.Background(), args[0], params)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	cmd.Flags().Int64Var(&val, "val", 1, "Numeric value added to the demo fetch counter")
	return cmd
}

// ─── health ─────────────────────────────────────────────────────────────────────

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check a node's health and self-reported identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Health(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
