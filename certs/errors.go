package certs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolNotFound is returned when the certificate generation tool is not on PATH.
	ErrToolNotFound = errors.New("certificate generation tool not found")
	// ErrNotAFile is returned when the certificate path exists but is not a regular file.
	ErrNotAFile = errors.New("certificate path is not a regular file")
	// ErrNotCreated is returned when a generator reported success but left no file behind.
	ErrNotCreated = errors.New("generator did not create the certificate file")
	// ErrNoPrivateKey is returned when a combined file holds no private key block.
	ErrNoPrivateKey = errors.New("no private key found in certificate file")
)

// GenerationError describes a failed certificate generation attempt.
type GenerationError struct {
	Tool     string
	Args     []string
	ExitCode int
	Err      error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "generate certificate with %s", e.Tool)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Command returns the invoked command line, for diagnostics only.
func (e *GenerationError) Command() string {
	return strings.Join(append([]string{e.Tool}, e.Args...), " ")
}
