// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"golang.org/x/sync/errgroup"

	xlog "github.com/ManuGH/angus/internal/log"
	"github.com/ManuGH/angus/rest"
)

// resolveConcurrency bounds parallel lookups in GetServices.
const resolveConcurrency = 4

// ServiceSpec names one service of a composite and the version to resolve,
// rest.LatestVersion for the greatest.
type ServiceSpec struct {
	Name    string
	Version int
}

// Spec selects the latest version of name.
func Spec(name string) ServiceSpec {
	return ServiceSpec{Name: name, Version: rest.LatestVersion}
}

// ServiceDirectory lists the services known to the gate.
type ServiceDirectory struct {
	*rest.Collection
	root *Root
}

// GetService resolves name and version (rest.LatestVersion for the greatest).
func (d *ServiceDirectory) GetService(ctx context.Context, name string, version int) (*rest.Service, error) {
	const op = "get service"
	services, err := d.listing(ctx, url.Values{"name": {name}})
	if err != nil {
		return nil, err
	}
	entry, ok := services[name].(map[string]any)
	if !ok {
		return nil, &rest.Error{Sentinel: rest.ErrNoSuchService, Operation: op, Err: fmt.Errorf("service %q", name)}
	}
	target, ok := entry["url"].(string)
	if !ok || target == "" {
		return nil, &rest.Error{Sentinel: rest.ErrProtocol, Operation: op, Err: fmt.Errorf("service %q has no url", name)}
	}

	generic := rest.NewGenericService(d.Transport(), d.Endpoint(), target)
	return generic.GetService(ctx, version)
}

// GetServices resolves specs, or every known service when none are given, and
// groups them in a CompositeService. Duplicate names keep their first spec.
func (d *ServiceDirectory) GetServices(ctx context.Context, specs ...ServiceSpec) (*CompositeService, error) {
	if len(specs) == 0 {
		services, err := d.listing(ctx, nil)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(services))
		for name := range services {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			specs = append(specs, Spec(name))
		}
	}

	seen := make(map[string]bool, len(specs))
	unique := specs[:0:0]
	for _, s := range specs {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		unique = append(unique, s)
	}

	members := make([]Member, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, s := range unique {
		g.Go(func() error {
			svc, err := d.GetService(gctx, s.Name, s.Version)
			if err != nil {
				return err
			}
			members[i] = Member{Name: s.Name, Service: svc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger := xlog.WithComponentFromContext(ctx, "directory")
	logger.Debug().Int("services", len(members)).Msg("composite resolved")
	return NewCompositeService(d.root, members), nil
}

func (d *ServiceDirectory) listing(ctx context.Context, filters url.Values) (map[string]any, error) {
	body, err := d.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	services, ok := body["services"].(map[string]any)
	if !ok {
		return nil, &rest.Error{Sentinel: rest.ErrProtocol, Operation: "list services", Err: errors.New("answer has no services map")}
	}
	return services, nil
}
