// Package main provides the ChainGraph CLI application
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/pkg/chaingraph"
)

// Version information set during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

func run(args []string, out *os.File) int {
	cmd := ""
	if len(args) > 1 {
		cmd = args[1]
	}

	switch cmd {
	case "version":
		fmt.Fprintf(out, "ChainGraph %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		return 0
	case "types":
		rt, err := chaingraph.NewRuntime(chaingraph.Options{})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return 1
		}
		for _, name := range rt.NodeTypes() {
			fmt.Fprintln(out, name)
		}
		return 0
	case "demo":
		if err := demo(out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintln(out, "ChainGraph - typed flow graph execution")
		fmt.Fprintln(out, "usage: chaingraph <version|types|demo>")
		return 0
	}
}

// demo submits a small built-in flow and prints its event stream.
func demo(out *os.File) error {
	rt, err := chaingraph.NewRuntime(chaingraph.Options{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := rt.Submit(ctx, &chaingraph.SubmitRequest{
		GraphID:   "demo",
		GraphName: "demo flow",
		Nodes: []chaingraph.NodeSpec{
			{ID: "greeting", Type: "core.constant.string", Inputs: map[string]chaingraph.Value{"value": port.String("hello, ")}},
			{ID: "subject", Type: "core.constant.string", Inputs: map[string]chaingraph.Value{"value": port.String("chaingraph")}},
			{ID: "join", Type: "string.concat"},
		},
		Edges: []chaingraph.EdgeSpec{
			{SourceNode: "greeting", SourcePort: "out", TargetNode: "join", TargetPort: "left"},
			{SourceNode: "subject", SourcePort: "out", TargetNode: "join", TargetPort: "right"},
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "execution %s started\n", resp.ExecutionID)

	sub, err := rt.Subscribe(ctx, resp.ExecutionID, 0)
	if err != nil {
		return err
	}
	if err := rt.Wait(ctx, resp.ExecutionID); err != nil {
		return err
	}
	for ev := range sub.Events() {
		fmt.Fprintf(out, "[%03d] %-18s %s\n", ev.Seq, ev.Kind, ev.NodeID)
	}

	status, err := rt.Status(resp.ExecutionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "state=%s completed=%d failed=%d skipped=%d\n",
		status.State, status.Completed, status.Failed, status.Skipped)
	return nil
}
