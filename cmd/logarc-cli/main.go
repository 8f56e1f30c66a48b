// Package main is the entry point for the logarc-cli local workspace
// management tool, operating directly on a data directory without going
// through the HTTP server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/rybkr/logarc/internal/cli"
	"github.com/rybkr/logarc/internal/termcolor"
	"github.com/rybkr/logarc/internal/workspace"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	for _, a := range args {
		if a == "--version" {
			printVersion()
			os.Exit(0)
		}
	}

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("logarc-cli", version)
	app.Stderr = os.Stderr

	// mgr is declared here and assigned after dispatch determines the
	// matched command needs it. Closures capture the pointer variable,
	// which is populated before they execute.
	var mgr *workspace.Manager

	app.Register(&cli.Command{
		Name:         "create",
		Summary:      "Ingest a source directory as a new workspace",
		Usage:        "logarc-cli create [--name <name>] <source-path>",
		Examples:     []string{"logarc-cli create /var/log/app", "logarc-cli create --name prod-logs /var/log/app"},
		NeedsManager: true,
		Run:          func(args []string) int { return runCreate(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "list",
		Summary:      "List managed workspaces",
		Usage:        "logarc-cli list",
		NeedsManager: true,
		Run:          func(args []string) int { return runList(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "status",
		Summary:      "Show a workspace's state and progress",
		Usage:        "logarc-cli status <workspace-id>",
		NeedsManager: true,
		Run:          func(args []string) int { return runStatus(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "refresh",
		Summary:      "Re-ingest a workspace from an updated source",
		Usage:        "logarc-cli refresh <workspace-id> <source-path>",
		NeedsManager: true,
		Run:          func(args []string) int { return runRefresh(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "delete",
		Summary:      "Delete a workspace and reclaim its storage",
		Usage:        "logarc-cli delete <workspace-id>",
		NeedsManager: true,
		Run:          func(args []string) int { return runDelete(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "validate",
		Summary:      "Validate a workspace's index against its stored content",
		Usage:        "logarc-cli validate <workspace-id>",
		NeedsManager: true,
		Run:          func(args []string) int { return runValidate(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "metrics",
		Summary:      "Show a workspace's storage and deduplication metrics",
		Usage:        "logarc-cli metrics <workspace-id>",
		NeedsManager: true,
		Run:          func(args []string) int { return runMetrics(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "watch",
		Summary:      "Start watching a workspace's source for changes",
		Usage:        "logarc-cli watch <workspace-id>",
		NeedsManager: true,
		Run:          func(args []string) int { return runWatch(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "unwatch",
		Summary:      "Stop watching a workspace's source",
		Usage:        "logarc-cli unwatch <workspace-id>",
		NeedsManager: true,
		Run:          func(args []string) int { return runUnwatch(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:         "cancel",
		Summary:      "Cancel the in-flight ingest running against a workspace",
		Usage:        "logarc-cli cancel <workspace-id>",
		NeedsManager: true,
		Run:          func(args []string) int { return runCancel(mgr, args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "logarc-cli version",
		Run:     func([]string) int { printVersion(); return 0 },
	})

	if len(args) > 0 {
		cmd := app.Lookup(args[0])
		if cmd != nil && cmd.NeedsManager {
			dataDir := os.Getenv("LOGARC_DATA_DIR")
			if dataDir == "" {
				dataDir = "/data/workspaces"
			}
			var err error
			mgr, err = workspace.New(workspace.Config{DataDir: dataDir}, workspace.Deps{}, slog.Default())
			if err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(1)
			}
		}
	}

	os.Exit(app.Run(args, cw))
}

func printVersion() {
	fmt.Printf("logarc-cli %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
