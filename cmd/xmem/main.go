// Command xmem is the entry point for the xmem memory orchestrator.
// It provides a CLI for managing memories and sources, an interactive
// chat with injected memory, and an HTTP server exposing the memory API.
package main

import (
	"fmt"
	"os"

	"github.com/olserra/xmem-go/cmd/xmem/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
