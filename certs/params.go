package certs

import (
	"crypto/x509/pkix"
	"fmt"
	"net"
	"strings"
)

// Params controls the key and certificate produced by every generator.
type Params struct {
	// Bits is the RSA modulus size.
	Bits int
	// Days is the validity period counted from generation time.
	Days int
	// Subject is an openssl style distinguished name such as "/CN=localhost/O=Acme".
	// An empty subject lets openssl prompt for it on the inherited terminal.
	Subject string
	// SANs are openssl style subjectAltName entries ("DNS:localhost", "IP:127.0.0.1").
	SANs []string
}

// DefaultParams returns a 2048-bit key, a 365 day certificate for localhost.
func DefaultParams() Params {
	return Params{
		Bits:    2048,
		Days:    365,
		Subject: "/CN=localhost",
		SANs:    []string{"DNS:localhost", "IP:127.0.0.1", "IP:::1"},
	}
}

// opensslArgs builds the argv passed to openssl, writing certificate and key into out.
func (p Params) opensslArgs(out string) []string {
	args := []string{
		"req",
		"-newkey", fmt.Sprintf("rsa:%d", p.Bits),
		"-x509",
		"-days", fmt.Sprintf("%d", p.Days),
		"-nodes",
		"-out", out,
		"-keyout", out,
	}
	if p.Subject != "" {
		args = append(args, "-subj", p.Subject)
	}
	if len(p.SANs) > 0 {
		args = append(args, "-addext", "subjectAltName="+strings.Join(p.SANs, ","))
	}
	return args
}

func (p Params) validate() error {
	if p.Bits < 1024 {
		return fmt.Errorf("key size %d is too small", p.Bits)
	}
	if p.Days <= 0 {
		return fmt.Errorf("validity of %d days is not positive", p.Days)
	}
	return nil
}

// subjectName converts "/CN=localhost/O=Acme" into a pkix.Name.
func (p Params) subjectName() (pkix.Name, error) {
	var name pkix.Name
	if p.Subject == "" {
		name.CommonName = "localhost"
		return name, nil
	}
	for _, part := range strings.Split(strings.TrimPrefix(p.Subject, "/"), "/") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return pkix.Name{}, fmt.Errorf("malformed subject component %q", part)
		}
		switch strings.ToUpper(key) {
		case "CN":
			name.CommonName = value
		case "O":
			name.Organization = append(name.Organization, value)
		case "OU":
			name.OrganizationalUnit = append(name.OrganizationalUnit, value)
		case "C":
			name.Country = append(name.Country, value)
		case "ST":
			name.Province = append(name.Province, value)
		case "L":
			name.Locality = append(name.Locality, value)
		default:
			return pkix.Name{}, fmt.Errorf("unsupported subject attribute %q", key)
		}
	}
	return name, nil
}

// altNames splits SANs into DNS names and IP addresses.
func (p Params) altNames() ([]string, []net.IP, error) {
	var (
		dns []string
		ips []net.IP
	)
	for _, san := range p.SANs {
		kind, value, ok := strings.Cut(san, ":")
		if !ok {
			return nil, nil, fmt.Errorf("malformed subjectAltName %q", san)
		}
		switch strings.ToUpper(kind) {
		case "DNS":
			dns = append(dns, value)
		case "IP":
			ip := net.ParseIP(value)
			if ip == nil {
				return nil, nil, fmt.Errorf("invalid IP in subjectAltName %q", san)
			}
			ips = append(ips, ip)
		default:
			return nil, nil, fmt.Errorf("unsupported subjectAltName type %q", kind)
		}
	}
	return dns, ips, nil
}
