// Package main is the agentrt CLI: a self-hosted LLM agent runtime that
// drives a tool-calling loop against a local OpenAI-compatible inference
// backend.
//
// # Basic Usage
//
// Start the server:
//
//	agentrt serve --config agentrt.yaml
//
// Halt and resume inference process-wide:
//
//	agentrt stop
//	agentrt resume
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "agentrt",
		Short:         "Self-hosted LLM agent runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(buildServeCmd())
	root.AddCommand(buildStopCmd())
	root.AddCommand(buildResumeCmd())
	root.AddCommand(buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentrt %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
