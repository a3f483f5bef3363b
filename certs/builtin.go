package certs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Builtin generates certificates in-process, for hosts without openssl or docker.
type Builtin struct {
	Params Params
	// Now is used for the validity window. Defaults to time.Now.
	Now func() time.Time
}

// NewBuiltin returns a Builtin generator.
func NewBuiltin(params Params) *Builtin {
	return &Builtin{Params: params, Now: time.Now}
}

func (b *Builtin) Name() string {
	return "builtin"
}

// Generate writes the certificate followed by its PKCS#8 key. The file is created
// exclusively, so an existing file is never overwritten.
func (b *Builtin) Generate(ctx context.Context, path string) error {
	if err := b.Params.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	certPEM, keyPEM, err := b.generate()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create certificate file: %w", err)
	}
	if _, err := f.Write(append(certPEM, keyPEM...)); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write certificate file: %w", err)
	}
	return f.Close()
}

func (b *Builtin) generate() (certPEM, keyPEM []byte, err error) {
	subject, err := b.Params.subjectName()
	if err != nil {
		return nil, nil, err
	}
	dnsNames, ips, err := b.Params.altNames()
	if err != nil {
		return nil, nil, err
	}

	priv, err := rsa.GenerateKey(rand.Reader, b.Params.Bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate RSA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	notBefore := now()

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		Issuer:                subject,
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(0, 0, b.Params.Days),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
