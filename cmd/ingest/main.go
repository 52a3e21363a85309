package main

import (
	"os"

	"github.com/wonny/aegis-ingest/cmd/ingest/commands"
)

// main is the entry point for the ingest CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/ingest [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
