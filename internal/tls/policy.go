// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tls builds the client-side TLS trust policy for gate connections.
package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrConflictingPolicy is returned when a CA bundle and no-verify are both requested.
var ErrConflictingPolicy = errors.New("tls: ca_path and insecure are mutually exclusive")

// Policy selects how the server certificate is verified.
type Policy struct {
	// CAPath points to a PEM bundle of trusted roots. Empty means system roots.
	CAPath string
	// Insecure disables certificate verification entirely.
	Insecure bool
}

// ClientConfig returns the tls.Config for the policy, or nil when the
// system defaults apply unchanged.
func ClientConfig(p Policy) (*cryptotls.Config, error) {
	if p.CAPath != "" && p.Insecure {
		return nil, ErrConflictingPolicy
	}
	if p.Insecure {
		// #nosec G402 -- explicit operator choice (do_not_verify)
		return &cryptotls.Config{InsecureSkipVerify: true, MinVersion: cryptotls.VersionTLS12}, nil
	}
	if p.CAPath == "" {
		return nil, nil
	}

	// #nosec G304 -- CA bundle path is provided by the operator
	data, err := os.ReadFile(filepath.Clean(p.CAPath))
	if err != nil {
		return nil, fmt.Errorf("read ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("ca bundle %s: no PEM certificates found", p.CAPath)
	}
	return &cryptotls.Config{RootCAs: pool, MinVersion: cryptotls.VersionTLS12}, nil
}
