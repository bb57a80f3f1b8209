// Copyright (C) 2025 Logan Ross
//
// This file is part of LogWarden.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity determines the name LogWarden reports the host as.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/miekg/dns"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/loganrossus/logwarden/pkg/config"
)

// Identity names the host in alerts and reports.
type Identity struct {
	Hostname string
	// FQDN is empty when the name could not be qualified.
	FQDN string
}

// Name returns the FQDN when known, else the short hostname.
func (i Identity) Name() string {
	if i.FQDN != "" {
		return i.FQDN
	}
	return i.Hostname
}

// FatalError means the host could not be identified at all. Runs abort on
// it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("cannot determine hostname: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Resolver resolves the host identity.
type Resolver struct {
	cfg    config.IdentityConfig
	logger *slog.Logger

	hostname func() (string, error)
	hostInfo func(ctx context.Context) (string, error)
	port     string
}

// NewResolver creates a Resolver.
func NewResolver(cfg config.IdentityConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cfg:      cfg,
		logger:   logger,
		hostname: os.Hostname,
		hostInfo: func(ctx context.Context) (string, error) {
			info, err := host.InfoWithContext(ctx)
			if err != nil {
				return "", err
			}
			return info.Hostname, nil
		},
	}
}

// Resolve returns the host identity. Only a failure to learn any hostname
// is an error; an unqualified name is logged and used as is.
func (r *Resolver) Resolve(ctx context.Context) (Identity, error) {
	name, err := r.shortName(ctx)
	if err != nil {
		return Identity{}, &FatalError{Err: err}
	}

	id := Identity{Hostname: name}
	if i := strings.IndexByte(name, '.'); i > 0 {
		id.Hostname = name[:i]
		id.FQDN = strings.TrimSuffix(name, ".")
		return id, nil
	}
	if r.cfg.DisableDNS {
		return id, nil
	}

	fqdn, err := r.qualify(ctx, name)
	if err != nil {
		r.logger.Warn("could not qualify hostname, using short name",
			"hostname", name,
			"error", err,
		)
		return id, nil
	}
	id.FQDN = fqdn
	return id, nil
}

func (r *Resolver) shortName(ctx context.Context) (string, error) {
	name, err := r.hostname()
	if err == nil && name != "" {
		return name, nil
	}
	if err == nil {
		err = errors.New("empty hostname")
	}

	r.logger.Debug("kernel hostname unavailable, asking host info", "error", err)
	fallback, ferr := r.hostInfo(ctx)
	if ferr != nil {
		return "", errors.Join(err, ferr)
	}
	if fallback == "" {
		return "", errors.Join(err, errors.New("host info reported no hostname"))
	}
	return fallback, nil
}

// qualify walks the resolv.conf search list and returns the first candidate
// that has an address record.
func (r *Resolver) qualify(ctx context.Context, short string) (string, error) {
	conf, err := dns.ClientConfigFromFile(r.cfg.ResolvConf)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", r.cfg.ResolvConf, err)
	}
	if len(conf.Servers) == 0 {
		return "", fmt.Errorf("no nameservers in %s", r.cfg.ResolvConf)
	}
	port := conf.Port
	if r.port != "" {
		port = r.port
	}

	client := &dns.Client{Timeout: r.cfg.DNSTimeout}
	var lastErr error
	for _, candidate := range conf.NameList(short) {
		if dns.CountLabel(candidate) < 2 {
			continue
		}
		msg := new(dns.Msg)
		msg.SetQuestion(candidate, dns.TypeA)

		for _, server := range conf.Servers {
			resp, _, err := client.ExchangeContext(ctx, msg, net.JoinHostPort(server, port))
			if err != nil {
				lastErr = err
				continue
			}
			if resp.Rcode == dns.RcodeSuccess && hasAddress(resp) {
				return strings.TrimSuffix(candidate, "."), nil
			}
			break
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("no search domain qualifies %q", short)
}

func hasAddress(m *dns.Msg) bool {
	for _, rr := range m.Answer {
		switch rr.(type) {
		case *dns.A, *dns.AAAA:
			return true
		}
	}
	return false
}
