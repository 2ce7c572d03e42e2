package main

import (
	"github.com/karmalens/karmalens/internal/cmd"
	"github.com/karmalens/karmalens/internal/server/handlers"
)

// Set via ldflags, for example:
// go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-01-15"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		cmd.Fail(err)
	}
}
