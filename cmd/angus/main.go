// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// angus is a command line client for an Angus gate.
//
// Usage:
//
//	angus configure -client-id ID -access-token TOKEN [-root URL]
//	angus services
//	angus describe NAME
//	angus process [-async] [-wait] [-param k=v] [-file field=path] NAME
//	angus composite [-service name[:version]] [-param k=v] [-file field=path]
//	angus stream -dir DIR [-field image] [-loop] NAME
//	angus blob upload PATH | angus blob delete URL
//	angus version
//
// Exit codes:
//   - 0: success
//   - 1: the gate or the configuration reported an error
//   - 2: usage error
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/ManuGH/angus"
	"github.com/ManuGH/angus/internal/config"
	xlog "github.com/ManuGH/angus/internal/log"
	"github.com/ManuGH/angus/internal/version"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type command func(ctx context.Context, env *cli, args []string) error

var commands = map[string]command{
	"configure": runConfigure,
	"services":  runServices,
	"describe":  runDescribe,
	"process":   runProcess,
	"composite": runComposite,
	"stream":    runStream,
	"blob":      runBlob,
	"version":   runVersion,
}

// cli carries the global flags and outputs of one invocation.
type cli struct {
	configPath string
	root       string
	stdout     io.Writer
	stderr     io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	env := &cli{stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("angus", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&env.configPath, "config", "", "configuration file (default: discovered)")
	fs.StringVar(&env.root, "root", "", "gate root URL (overrides default_root)")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		printUsage(stderr)
		return exitUsage
	}
	cmd, ok := commands[remaining[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", remaining[0])
		printUsage(stderr)
		return exitUsage
	}

	xlog.Configure(xlog.Config{Level: "warn", Output: stderr, Service: "angus", Version: version.Version})
	ctx = xlog.ContextWithCorrelationID(ctx, uuid.NewString())

	if err := cmd(ctx, env, remaining[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return exitUsage
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: angus [-config FILE] [-root URL] COMMAND [ARGS]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  configure   write client credentials to the user configuration")
	fmt.Fprintln(w, "  services    list the services of the gate")
	fmt.Fprintln(w, "  describe    print the description of a service")
	fmt.Fprintln(w, "  process     submit one job to a service")
	fmt.Fprintln(w, "  composite   submit one job to several services")
	fmt.Fprintln(w, "  stream      stream the images of a directory to a service")
	fmt.Fprintln(w, "  blob        upload or delete a blob")
	fmt.Fprintln(w, "  version     print the version")
}

// loadConfig returns the effective configuration for the global flags.
func (env *cli) loadConfig() (config.AppConfig, error) {
	cfg, err := config.NewLoader(env.configPath).Load()
	if err != nil {
		return cfg, err
	}
	xlog.Reconfigure(xlog.Config{Level: cfg.LogLevel, Output: env.stderr, Service: "angus", Version: version.Version})
	return cfg, nil
}

// connect loads the configuration and connects to the gate.
func (env *cli) connect(ctx context.Context) (*angus.Client, config.AppConfig, error) {
	cfg, err := env.loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	opts, err := angus.LoadOptions(cfg.Path)
	if err != nil {
		return nil, cfg, err
	}
	if env.root != "" {
		opts.URL = env.root
	}
	client, err := angus.Connect(ctx, opts)
	return client, cfg, err
}

func (env *cli) printJSON(v any) error {
	enc := json.NewEncoder(env.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlagSet(env *cli, name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet("angus "+name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.Usage = func() {
		fmt.Fprintf(env.stderr, "Usage: angus %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}
