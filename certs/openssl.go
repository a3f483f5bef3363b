package certs

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// OpenSSL generates certificates by running `openssl req`.
type OpenSSL struct {
	// Binary is the executable looked up on PATH. Defaults to "openssl".
	Binary string
	Params Params

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewOpenSSL returns an OpenSSL generator wired to the process's standard streams.
func NewOpenSSL(params Params) *OpenSSL {
	return &OpenSSL{
		Binary: "openssl",
		Params: params,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (o *OpenSSL) Name() string {
	if o.Binary == "" {
		return "openssl"
	}
	return o.Binary
}

// Args returns the argv (without the binary) used to generate path.
func (o *OpenSSL) Args(path string) []string {
	return o.Params.opensslArgs(path)
}

// Generate runs openssl with a discrete argument list; output is not captured.
func (o *OpenSSL) Generate(ctx context.Context, path string) error {
	args := o.Args(path)
	genErr := &GenerationError{Tool: o.Name(), Args: args}

	if err := o.Params.validate(); err != nil {
		genErr.Err = err
		return genErr
	}

	bin, err := exec.LookPath(o.Name())
	if err != nil {
		genErr.Err = errors.Join(ErrToolNotFound, err)
		return genErr
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = o.Stdin
	cmd.Stdout = o.Stdout
	cmd.Stderr = o.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			genErr.ExitCode = exitErr.ExitCode()
		}
		genErr.Err = err
		return genErr
	}
	return nil
}
