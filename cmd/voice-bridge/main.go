// Package main is the entry point for the voice-bridge CLI.
//
// Usage:
//
//	voice-bridge [flags] <command> [args]
//
// Commands:
//
//	start      - Run the embedded relay and connect the local agent
//	serve      - Run a standalone (hosted) relay
//	chat       - Pair with an agent from the terminal
//	history    - Inspect recorded conversation transcripts
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/hotbutter/voice/cmd/voice-bridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
