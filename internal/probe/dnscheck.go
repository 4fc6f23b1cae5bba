package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DNS classes attached to transport failures.
const (
	DNSResolves       = "RESOLVES"
	DNSNXDomain       = "NXDOMAIN"
	DNSNoARecord      = "NO_A_RECORD"
	DNSServfail       = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName    = "INVALID_NAME"
	defaultDNSTimeout = 3 * time.Second
)

type DNSStatus struct {
	Domain        string
	Class         string
	IPs           []net.IP
	CNAME         string
	Nameservers   []string
	ResolverError string
}

// Resolver is the subset of *net.Resolver the classifier needs.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// ClassifyDNS explains why a host might be unreachable: it does not resolve,
// it has nameservers but no address, or the resolver itself failed.
func ClassifyDNS(ctx context.Context, r Resolver, host string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(host)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if ip := net.ParseIP(s.Domain); ip != nil {
		s.IPs = []net.IP{ip}
		s.Class = DNSResolves
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, defaultDNSTimeout)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	switch {
	case err == nil && len(ips) > 0:
		s.IPs = ips
		s.Class = DNSResolves
		return s
	case err != nil:
		s.ResolverError = err.Error()
		var de *net.DNSError
		if !errors.As(err, &de) || !de.IsNotFound {
			s.Class = DNSServfail
		}
	}

	if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}
	if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == "" {
			s.Class = DNSNoARecord
		}
	}
	if s.Class == "" {
		s.Class = DNSNXDomain
	}
	return s
}
