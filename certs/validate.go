package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Report summarises a combined certificate and key file.
type Report struct {
	Path         string
	Subject      string
	Issuer       string
	NotBefore    time.Time
	NotAfter     time.Time
	DNSNames     []string
	IPAddresses  []string
	SelfSigned   bool
	IsCA         bool
	ServerAuth   bool
	ChainLength  int
	Certificates int
}

// ValidAt reports whether t falls inside the certificate's validity window.
func (r *Report) ValidAt(t time.Time) bool {
	return !t.Before(r.NotBefore) && !t.After(r.NotAfter)
}

// Inspect validates a combined file: it must hold a parsable certificate, a private key
// matching it, server authentication usage when usages are restricted, and it must
// verify against itself as the only root.
func Inspect(path string, logger *log.Logger) (*Report, error) {
	if logger == nil {
		logger = log.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	certs, err := parseAllCertificates(data, logger)
	if err != nil {
		return nil, err
	}
	leaf := certs[0]

	if !hasPrivateKey(data) {
		return nil, ErrNoPrivateKey
	}
	if _, err := tls.X509KeyPair(data, data); err != nil {
		return nil, fmt.Errorf("private key does not match certificate: %w", err)
	}

	report := &Report{
		Path:         path,
		Subject:      leaf.Subject.String(),
		Issuer:       leaf.Issuer.String(),
		NotBefore:    leaf.NotBefore,
		NotAfter:     leaf.NotAfter,
		DNSNames:     leaf.DNSNames,
		SelfSigned:   isCertSelfSigned(leaf),
		IsCA:         leaf.IsCA,
		ServerAuth:   len(leaf.ExtKeyUsage) == 0 || slices.Contains(leaf.ExtKeyUsage, x509.ExtKeyUsageServerAuth),
		Certificates: len(certs),
	}
	for _, ip := range leaf.IPAddresses {
		report.IPAddresses = append(report.IPAddresses, ip.String())
	}

	if !report.ServerAuth {
		return report, errors.New("certificate does not have server authentication capability")
	}

	if report.SelfSigned {
		if err := leaf.CheckSignatureFrom(leaf); err != nil {
			return report, fmt.Errorf("certificate signature verification failed: %w", err)
		}
	}

	chainLen, err := verifyChain(leaf, certs)
	if err != nil {
		return report, err
	}
	report.ChainLength = chainLen

	return report, nil
}

// verifyChain verifies the leaf against the self-signed certificates in the same file.
func verifyChain(leaf *x509.Certificate, certs []*x509.Certificate) (int, error) {
	roots := x509.NewCertPool()
	intermediates := x509.NewCertPool()
	for _, c := range certs {
		if isCertSelfSigned(c) {
			roots.AddCert(c)
		} else if c != leaf {
			intermediates.AddCert(c)
		}
	}

	chains, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		var unknownAuthorityError x509.UnknownAuthorityError
		if errors.As(err, &unknownAuthorityError) {
			return 0, fmt.Errorf("certificate chain verification failed (the file holds no root for this certificate): %w", err)
		}
		return 0, fmt.Errorf("certificate chain verification failed: %w", err)
	}
	if len(chains) == 0 {
		return 0, errors.New("no valid certificate chains found")
	}
	return len(chains[0]), nil
}

// parseAllCertificates parses all certificates from PEM data, skipping key blocks.
func parseAllCertificates(data []byte, logger *log.Logger) ([]*x509.Certificate, error) {
	var certificates []*x509.Certificate
	remaining := data

	for len(remaining) > 0 {
		block, rest := pem.Decode(remaining)
		if block == nil {
			break
		}
		remaining = rest

		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			logger.Warn("Failed to parse certificate in file", "error", err)
			continue
		}
		certificates = append(certificates, cert)
	}

	if len(certificates) == 0 {
		return nil, errors.New("no valid certificates found in PEM data")
	}
	return certificates, nil
}

func hasPrivateKey(data []byte) bool {
	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return false
		}
		if block.Type == "PRIVATE KEY" || strings.HasSuffix(block.Type, " PRIVATE KEY") {
			return true
		}
	}
	return false
}

// isCertSelfSigned checks if a certificate is self-signed (subject equals issuer)
func isCertSelfSigned(cert *x509.Certificate) bool {
	return cert.Subject.String() == cert.Issuer.String()
}
