package main

import (
	"fmt"
	"os"

	"github.com/tphakala/iconforge/cmd"
	"github.com/tphakala/iconforge/internal/buildinfo"
	"github.com/tphakala/iconforge/internal/logger"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = ""
	buildDate = ""
)

func main() {
	info := buildinfo.NewContext(version, buildDate)

	rootCmd := cmd.RootCommand(info)
	err := rootCmd.Execute()

	_ = logger.Global().Flush()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
