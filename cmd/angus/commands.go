// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/ManuGH/angus/cloud"
	"github.com/ManuGH/angus/internal/config"
	"github.com/ManuGH/angus/internal/version"
	"github.com/ManuGH/angus/rest"
)

// paramFlag collects repeated key=value flags. Values that parse as JSON
// keep their type, others are strings.
type paramFlag struct {
	values rest.Parameters
}

func (p *paramFlag) String() string { return "" }

func (p *paramFlag) Set(s string) error {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	if p.values == nil {
		p.values = rest.Parameters{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	p.values[key] = v
	return nil
}

// fileFlag collects repeated field=path flags as lazily opened attachments.
type fileFlag struct {
	files map[string]string
}

func (f *fileFlag) String() string { return "" }

func (f *fileFlag) Set(s string) error {
	field, path, ok := strings.Cut(s, "=")
	if !ok || field == "" || path == "" {
		return fmt.Errorf("expected field=path, got %q", s)
	}
	if f.files == nil {
		f.files = map[string]string{}
	}
	f.files[field] = path
	return nil
}

// merge returns params with every file attached.
func (f *fileFlag) merge(params rest.Parameters) rest.Parameters {
	out := params.Clone()
	for field, path := range f.files {
		out[field] = rest.File(path)
	}
	return out
}

// serviceFlag collects repeated name[:version] flags.
type serviceFlag struct {
	specs []cloud.ServiceSpec
}

func (s *serviceFlag) String() string { return "" }

func (s *serviceFlag) Set(v string) error {
	name, ver, hasVersion := strings.Cut(v, ":")
	spec := cloud.Spec(name)
	if hasVersion {
		n, err := strconv.Atoi(ver)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid version in %q", v)
		}
		spec.Version = n
	}
	if spec.Name == "" {
		return fmt.Errorf("missing service name in %q", v)
	}
	s.specs = append(s.specs, spec)
	return nil
}

func runConfigure(_ context.Context, env *cli, args []string) error {
	fs := newFlagSet(env, "configure", "-client-id ID -access-token TOKEN [-root URL] [-ca-path FILE | -insecure]")
	var (
		fc       config.FileConfig
		insecure bool
	)
	fs.StringVar(&fc.ClientID, "client-id", "", "client id")
	fs.StringVar(&fc.AccessToken, "access-token", "", "access token")
	fs.StringVar(&fc.DefaultRoot, "root", "", "default gate root URL")
	fs.StringVar(&fc.CAPath, "ca-path", "", "PEM bundle of trusted roots")
	fs.BoolVar(&insecure, "insecure", false, "do not verify the gate certificate")
	file := fs.String("file", "", "file to write (default ~/.angusdk/config.json)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fc.ClientID == "" || fc.AccessToken == "" {
		fmt.Fprintln(env.stderr, "Error: -client-id and -access-token are required")
		return errUsage
	}
	if insecure {
		fc.Insecure = &insecure
	}

	path := *file
	if path == "" {
		var err error
		if path, err = config.UserPath(); err != nil {
			return err
		}
	}
	if err := config.Save(path, fc); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "configuration written to %s\n", path)
	return nil
}

func runServices(ctx context.Context, env *cli, args []string) error {
	fs := newFlagSet(env, "services", "")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	client, _, err := env.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	listing, err := client.Services.List(ctx, nil)
	if err != nil {
		return err
	}
	services, _ := listing["services"].(map[string]any)
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		url := ""
		if entry, ok := services[name].(map[string]any); ok {
			url, _ = entry["url"].(string)
		}
		fmt.Fprintf(env.stdout, "%s\t%s\n", name, url)
	}
	return nil
}

func runDescribe(ctx context.Context, env *cli, args []string) error {
	fs := newFlagSet(env, "describe", "[-version N] NAME")
	ver := fs.Int("version", rest.LatestVersion, "service version (-1 for the latest)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	client, _, err := env.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	svc, err := client.Services.GetService(ctx, fs.Arg(0), *ver)
	if err != nil {
		return err
	}
	desc, err := svc.GetDescription(ctx)
	if err != nil {
		return err
	}
	return env.printJSON(desc)
}

func runProcess(ctx context.Context, env *cli, args []string) error {
	fs := newFlagSet(env, "process", "[-version N] [-async [-wait]] [-param k=v]... [-file field=path]... NAME")
	var (
		params paramFlag
		files  fileFlag
	)
	ver := fs.Int("version", rest.LatestVersion, "service version (-1 for the latest)")
	async := fs.Bool("async", false, "ask the gate to compute in the background")
	wait := fs.Bool("wait", false, "with -async, fetch the job once before printing")
	fs.Var(&params, "param", "job parameter key=value (repeatable, JSON values allowed)")
	fs.Var(&files, "file", "binary parameter field=path (repeatable)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	client, _, err := env.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	svc, err := client.Services.GetService(ctx, fs.Arg(0), *ver)
	if err != nil {
		return err
	}
	job, err := svc.Process(ctx, files.merge(params.values), rest.CallOptions{Async: *async})
	if err != nil {
		return err
	}
	if *async && *wait {
		if err := job.Fetch(ctx); err != nil {
			return err
		}
	}
	return env.printJSON(job.Result())
}

func runComposite(ctx context.Context, env *cli, args []string) error {
	fs := newFlagSet(env, "composite", "[-service name[:version]]... [-param k=v]... [-file field=path]...")
	var (
		services serviceFlag
		params   paramFlag
		files    fileFlag
	)
	fs.Var(&services, "service", "member service name[:version] (repeatable, default: all)")
	fs.Var(&params, "param", "job parameter key=value (repeatable, JSON values allowed)")
	fs.Var(&files, "file", "binary parameter field=path (repeatable)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}

	client, _, err := env.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	composite, err := client.Services.GetServices(ctx, services.specs...)
	if err != nil {
		return err
	}
	job, err := composite.Process(ctx, files.merge(params.values), rest.CallOptions{})
	if err != nil {
		return err
	}
	return env.printJSON(job.Result())
}

func runStream(ctx context.Context, env *cli, args []string) error {
	fs := newFlagSet(env, "stream", "-dir DIR [-field image] [-loop] [-version N] [-param k=v]... NAME")
	var params paramFlag
	dir := fs.String("dir", "", "directory of frames, sent in name order")
	field := fs.String("field", "image", "parameter the frames bind to")
	loop := fs.Bool("loop", false, "repeat the frames until interrupted")
	ver := fs.Int("version", rest.LatestVersion, "service version (-1 for the latest)")
	fs.Var(&params, "param", "stream parameter key=value (repeatable, JSON values allowed)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 || *dir == "" {
		return errUsage
	}

	paths, err := framePaths(*dir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, cfg, err := env.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	// Credentials edited during a long stream apply to the next requests.
	holder := config.NewHolder(cfg, config.NewLoader(cfg.Path))
	updates := make(chan config.AppConfig, 1)
	holder.RegisterListener(updates)
	if err := holder.Start(ctx); err != nil {
		return err
	}
	defer holder.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				client.SetCredential(next.ClientID, next.AccessToken)
			}
		}
	}()

	svc, err := client.Services.GetService(ctx, fs.Arg(0), *ver)
	if err != nil {
		return err
	}
	st, err := svc.Stream(ctx, params.values, readFrames(paths, *field, *loop), rest.StreamOptions{})
	if err != nil {
		return err
	}
	for part, err := range st.All() {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		fmt.Fprintln(env.stdout, strings.TrimSpace(string(part)))
	}
	return nil
}

func framePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	slices.Sort(paths)
	return paths, nil
}

func readFrames(paths []string, field string, loop bool) iter.Seq[rest.Frame] {
	return func(yield func(rest.Frame) bool) {
		for {
			for _, p := range paths {
				// #nosec G304 -- frames come from the directory named by the user
				data, err := os.ReadFile(p)
				if err != nil {
					return
				}
				frame := rest.Frame{
					Parameters:  rest.Parameters{"file": filepath.Base(p)},
					Field:       field,
					Data:        data,
					ContentType: contentType(p),
				}
				if !yield(frame) {
					return
				}
			}
			if !loop {
				return
			}
		}
	}
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".wav":
		return "audio/wav"
	default:
		return "image/jpeg"
	}
}

func runBlob(ctx context.Context, env *cli, args []string) error {
	if len(args) != 2 || (args[0] != "upload" && args[0] != "delete") {
		fmt.Fprintln(env.stderr, "Usage: angus blob upload PATH | angus blob delete URL")
		return errUsage
	}
	client, _, err := env.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	if args[0] == "upload" {
		blob, err := client.Blobs.Create(ctx, rest.File(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintln(env.stdout, blob.Endpoint())
		return nil
	}
	return client.DeleteBlob(ctx, args[1])
}

func runVersion(_ context.Context, env *cli, _ []string) error {
	fmt.Fprintf(env.stdout, "%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
	return nil
}
