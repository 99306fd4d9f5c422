// Command creaturectl runs block scenarios against a configured creature
// registry and manages snapshot archives.
//
//	creaturectl run -scenario blocks.yaml [-config creaturecore.toml] [-restore latest] [-archive]
//	creaturectl show [-config ...] [-restore latest] [-account alice]
//	creaturectl snapshots [-config ...]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "run":
		return runCommand(ctx, args[1:], stdout, stderr)
	case "show":
		return showCommand(ctx, args[1:], stdout, stderr)
	case "snapshots":
		return snapshotsCommand(ctx, args[1:], stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: creaturectl <run|show|snapshots> [flags]")
}

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("CREATURECORE_CONFIG"), "path to TOML config")
	scenarioPath := fs.String("scenario", "", "path to YAML scenario")
	restore := fs.String("restore", "", "snapshot key to restore first (or \"latest\")")
	doArchive := fs.Bool("archive", false, "archive a snapshot after the run")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *scenarioPath == "" {
		fmt.Fprintln(stderr, "run: -scenario is required")
		return 2
	}
	sc, err := loadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	rt, err := openRuntime(ctx, *configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	defer rt.Close()

	if *restore != "" {
		if err := rt.restore(ctx, *restore); err != nil {
			rt.logger.Error("restore failed", "error", err)
			return 1
		}
	}
	if err := sc.fund(rt.ledger); err != nil {
		rt.logger.Error("fund scenario accounts", "error", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	failed := 0
	for i, block := range sc.Blocks {
		receipts, err := rt.executor.ExecuteBlock(ctx, block.Calls)
		if err != nil {
			rt.logger.Error("block aborted", "block", i+1, "error", err)
			return 1
		}
		for _, r := range receipts {
			if !r.OK() {
				failed++
			}
			if err := enc.Encode(r); err != nil {
				rt.logger.Error("write receipt", "error", err)
				return 1
			}
		}
	}

	count, err := rt.registry.Count(ctx)
	if err != nil {
		rt.logger.Error("count creatures", "error", err)
		return 1
	}
	rt.logger.Info("scenario complete", "blocks", len(sc.Blocks), "failed_calls", failed, "creatures", uint32(count))

	if *doArchive {
		info, err := rt.archive(ctx)
		if err != nil {
			rt.logger.Error("archive failed", "error", err)
			return 1
		}
		rt.logger.Info("snapshot archived", "key", info.Key, "bytes", info.Size)
	}
	return 0
}

func showCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("CREATURECORE_CONFIG"), "path to TOML config")
	restore := fs.String("restore", "", "snapshot key to restore first (or \"latest\")")
	account := fs.String("account", "", "only show creatures owned by this account")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rt, err := openRuntime(ctx, *configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "show: %v\n", err)
		return 1
	}
	defer rt.Close()

	if *restore != "" {
		if err := rt.restore(ctx, *restore); err != nil {
			rt.logger.Error("restore failed", "error", err)
			return 1
		}
	}
	records, err := rt.records(ctx, *account)
	if err != nil {
		rt.logger.Error("list creatures", "error", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 1
		}
	}
	return 0
}

func snapshotsCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("CREATURECORE_CONFIG"), "path to TOML config")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rt, err := openRuntime(ctx, *configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "snapshots: %v\n", err)
		return 1
	}
	defer rt.Close()

	arch, err := rt.archiver(ctx)
	if err != nil {
		rt.logger.Error("open archive", "error", err)
		return 1
	}
	infos, err := arch.List(ctx)
	if err != nil {
		rt.logger.Error("list snapshots", "error", err)
		return 1
	}
	for _, info := range infos {
		fmt.Fprintf(stdout, "%s\t%d\t%s\n", info.Key, info.Size, info.Metadata["count"])
	}
	return 0
}
