// Package main provides the CLI entry point for Cueso, a conversational
// control plane for Roku TVs.
//
// Start the server:
//
//	cueso serve --config cueso.yaml
//
// The server speaks websocket chat on /ws, a small JSON API under /api,
// and Prometheus metrics on /metrics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cueso",
		Short: "Cueso - conversational Roku control plane",
		Long: `Cueso connects a chat client to a Roku TV through an LLM with tools.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)
Tools: content search, channel deep links, web search, remote keys,
plus any configured remote tool servers.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cueso %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
