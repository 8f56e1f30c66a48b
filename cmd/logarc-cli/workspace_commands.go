package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rybkr/logarc/internal/progress"
	"github.com/rybkr/logarc/internal/termcolor"
	"github.com/rybkr/logarc/internal/workspace"
)

func runCreate(mgr *workspace.Manager, args []string, cw *termcolor.Writer) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "Workspace name (defaults to the source path)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli create [--name <name>] <source-path>")
		return 1
	}
	sourcePath := fs.Arg(0)
	if *name == "" {
		*name = sourcePath
	}

	spin := progress.New("Creating workspace...")
	spin.Start()
	id, err := mgr.Create(context.Background(), *name, sourcePath)
	spin.Stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Printf("%s %s\n", cw.Green("created"), id)
	return 0
}

func runList(mgr *workspace.Manager, _ []string, cw *termcolor.Writer) int {
	for _, info := range mgr.List() {
		fmt.Printf("%s  %-20s %s  %s\n", info.ID, info.Name, cw.Cyan(info.State.String()), info.SourcePath)
	}
	return 0
}

func runStatus(mgr *workspace.Manager, args []string, cw *termcolor.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli status <workspace-id>")
		return 1
	}
	info, prog, err := mgr.Status(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Printf("id:       %s\n", info.ID)
	fmt.Printf("name:     %s\n", info.Name)
	fmt.Printf("state:    %s\n", cw.Cyan(info.State.String()))
	if info.Error != "" {
		fmt.Printf("error:    %s\n", cw.Red(info.Error))
	}
	if info.State == workspace.StateIngesting {
		fmt.Printf("phase:    %s\n", prog.Phase)
	}
	fmt.Printf("created:  %s\n", info.CreatedAt.Format(time.RFC3339))
	return 0
}

func runRefresh(mgr *workspace.Manager, args []string, cw *termcolor.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli refresh <workspace-id> <source-path>")
		return 1
	}
	if err := mgr.Refresh(context.Background(), args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Println(cw.Green("refresh started"))
	return 0
}

func runDelete(mgr *workspace.Manager, args []string, cw *termcolor.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli delete <workspace-id>")
		return 1
	}
	if err := mgr.Delete(context.Background(), args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Println(cw.Green("deleted"))
	return 0
}

func runValidate(mgr *workspace.Manager, args []string, cw *termcolor.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli validate <workspace-id>")
		return 1
	}
	report, err := mgr.Validate(context.Background(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Printf("total:   %d\n", report.Total)
	fmt.Printf("valid:   %s\n", cw.Green(fmt.Sprintf("%d", report.Valid)))
	fmt.Printf("invalid: %s\n", cw.Red(fmt.Sprintf("%d", report.Invalid)))
	for _, inv := range report.InvalidDetails {
		fmt.Printf("  %s: %s\n", inv.VirtualPath, inv.Reason)
	}
	for _, w := range report.Warnings {
		fmt.Printf("  %s %s\n", cw.Yellow("warning:"), w)
	}
	return 0
}

func runMetrics(mgr *workspace.Manager, args []string, _ *termcolor.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli metrics <workspace-id>")
		return 1
	}
	metrics, err := mgr.Metrics(context.Background(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Printf("total files:       %d\n", metrics.TotalFiles)
	fmt.Printf("total archives:    %d\n", metrics.TotalArchives)
	fmt.Printf("logical size:      %d bytes\n", metrics.LogicalSize)
	fmt.Printf("actual storage:    %d bytes\n", metrics.ActualStorageSize)
	fmt.Printf("space saved:       %d bytes\n", metrics.SpaceSaved)
	fmt.Printf("dedup ratio:       %.2f%%\n", metrics.DeduplicationRatio*100)
	fmt.Printf("max nesting depth: %d\n", metrics.MaxNestingDepth)
	return 0
}

func runWatch(mgr *workspace.Manager, args []string, cw *termcolor.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli watch <workspace-id>")
		return 1
	}
	if err := mgr.Watch(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Println(cw.Green("watching"))
	return 0
}

func runUnwatch(mgr *workspace.Manager, args []string, cw *termcolor.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli unwatch <workspace-id>")
		return 1
	}
	mgr.StopWatch(args[0])
	fmt.Println(cw.Green("stopped watching"))
	return 0
}

func runCancel(mgr *workspace.Manager, args []string, cw *termcolor.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: logarc-cli cancel <workspace-id>")
		return 1
	}
	if err := mgr.CancelTask(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	fmt.Println(cw.Green("task canceled"))
	return 0
}
