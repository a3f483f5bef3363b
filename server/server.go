// Package server serves a directory tree over HTTPS using a combined certificate and key file.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docker/go-connections/tlsconfig"
)

// Config is the immutable server configuration.
type Config struct {
	// Host and Port form the bind address.
	Host string
	Port int
	// CertFile holds the PEM certificate chain followed by its unencrypted key.
	CertFile string
	// Root is the served directory. Resolved to an absolute path by New.
	Root string
	// ShutdownTimeout bounds how long in-flight requests may drain after cancellation.
	ShutdownTimeout time.Duration
	// ReadHeaderTimeout of zero means no timeout.
	ReadHeaderTimeout time.Duration
	// ServeCert publishes CertFile when it lives under Root. Off by default since the
	// file carries the private key.
	ServeCert bool
}

// DefaultConfig serves the working directory on 0.0.0.0:4443 with cert.pem.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            4443,
		CertFile:        "cert.pem",
		Root:            ".",
		ShutdownTimeout: 5 * time.Second,
	}
}

// CertLoadError is returned when the certificate file cannot be turned into a TLS context.
type CertLoadError struct {
	Path string
	Err  error
}

func (e *CertLoadError) Error() string {
	return fmt.Sprintf("failed to load server certificate and key from %s: %v", e.Path, e.Err)
}

func (e *CertLoadError) Unwrap() error {
	return e.Err
}

// Server is an HTTPS static file server.
type Server struct {
	cfg        Config
	logger     *log.Logger
	tlsConfig  *tls.Config
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for lifecycle messages.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New loads the TLS context and prepares the file handler. Nothing is bound until Listen.
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}
	cfg.Root = root

	tlsConfig, err := loadTLSConfig(cfg.CertFile)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		logger:    log.Default(),
		tlsConfig: tlsConfig,
	}
	for _, opt := range opts {
		opt(s)
	}

	handler, err := s.fileHandler()
	if err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s, nil
}

// loadTLSConfig builds a TLS-only server context (TLS 1.2 minimum) from a combined file.
func loadTLSConfig(certFile string) (*tls.Config, error) {
	cfg, err := tlsconfig.Server(tlsconfig.Options{
		CertFile: certFile,
		KeyFile:  certFile,
	})
	if err != nil {
		return nil, &CertLoadError{Path: certFile, Err: err}
	}
	return cfg, nil
}

// fileHandler maps URL paths onto files under the root. net/http's file server cleans
// the path, so ".." segments never leave the root, and infers the content type.
func (s *Server) fileHandler() (http.Handler, error) {
	files := http.FileServer(http.Dir(s.cfg.Root))
	if s.cfg.ServeCert {
		return files, nil
	}

	hidden, err := s.certURLPath()
	if err != nil {
		return nil, err
	}
	if hidden == "" {
		return files, nil
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path.Clean("/"+r.URL.Path) == hidden {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}), nil
}

// certURLPath returns the URL path of the certificate file, or "" when it is outside the root.
func (s *Server) certURLPath() (string, error) {
	certAbs, err := filepath.Abs(s.cfg.CertFile)
	if err != nil {
		return "", fmt.Errorf("resolve certificate path: %w", err)
	}
	rel, err := filepath.Rel(resolveLinks(s.cfg.Root), resolveLinks(certAbs))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

// resolveLinks returns p with symlinks evaluated, or p unchanged when that fails.
func resolveLinks(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return p
}

// Listen binds the TCP socket and wraps it so every connection handshakes TLS first.
// Calling Listen more than once is a no-op.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = tls.NewListener(ln, s.tlsConfig)
	return nil
}

// Serve accepts connections until ctx is cancelled or the listener fails. On cancellation
// in-flight requests get ShutdownTimeout to finish and Serve returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	s.logger.Debug("Accepting connections", "addr", ln.Addr().String(), "root", s.cfg.Root)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPS server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	if err := s.shutdown(); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPS server error: %w", err)
	}
	return nil
}

func (s *Server) shutdown() error {
	if s.cfg.ShutdownTimeout <= 0 {
		return s.httpServer.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("Graceful shutdown timed out, closing connections", "error", err)
		return s.httpServer.Close()
	}
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Config returns the effective configuration, with Root made absolute.
func (s *Server) Config() Config {
	return s.cfg
}

// URL is the serving URL shown to users, using the configured host and the bound port.
func (s *Server) URL() string {
	port := s.cfg.Port
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	return "https://" + net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
}
