// Package certs makes sure a combined self-signed certificate and private key file exists,
// generating one when it is missing, and inspects existing files.
package certs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
)

// Generator writes a self-signed certificate and its unencrypted key into a single file.
type Generator interface {
	// Name identifies the generator in status lines and errors.
	Name() string
	Generate(ctx context.Context, path string) error
}

// Result reports what Ensure did.
type Result struct {
	Path    string
	Created bool
}

// Provisioner ensures a certificate file exists at a path.
type Provisioner struct {
	gen    Generator
	logger *log.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger used for status lines.
func WithLogger(logger *log.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// NewProvisioner returns a Provisioner that calls gen when a file is missing.
func NewProvisioner(gen Generator, opts ...Option) *Provisioner {
	p := &Provisioner{
		gen:    gen,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ensure leaves an existing file untouched and generates one otherwise.
// Existing files are trusted as-is; they are never parsed or checked for expiry.
func (p *Provisioner) Ensure(ctx context.Context, path string) (Result, error) {
	res := Result{Path: path}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return res, fmt.Errorf("%s: %w", path, ErrNotAFile)
		}
		p.logger.Info("Certificate file detected", "file", path)
		p.logger.Info("Certificate file will not be created. Remove it or run `tls-serve cert` with another --cert to get a fresh one.")
		return res, nil
	case !errors.Is(err, fs.ErrNotExist):
		return res, fmt.Errorf("stat certificate file: %w", err)
	}

	p.logger.Info("Generating self-signed certificate", "file", path, "generator", p.gen.Name())
	if err := p.gen.Generate(ctx, path); err != nil {
		// The path was absent before Generate, so anything there now is a partial write.
		p.removePartial(path)
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return res, err
		}
		return res, &GenerationError{Tool: p.gen.Name(), Err: err}
	}

	info, err = os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		p.removePartial(path)
		return res, &GenerationError{Tool: p.gen.Name(), Err: ErrNotCreated}
	}

	p.logger.Info("Certificate file created", "file", path)
	res.Created = true
	return res, nil
}

func (p *Provisioner) removePartial(path string) {
	info, err := os.Lstat(path)
	if err != nil || info.IsDir() {
		return
	}
	if err := os.Remove(path); err != nil {
		p.logger.Warn("Failed to remove partial certificate file", "file", path, "error", err)
		return
	}
	p.logger.Debug("Removed partial certificate file", "file", path)
}
