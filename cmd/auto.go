package cmd

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frgrisk/tls-serve/client"
	"github.com/frgrisk/tls-serve/server"
)

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Self test: generate a certificate, serve a sample file and fetch it back",
	RunE:  runAuto,
}

func init() {
	rootCmd.AddCommand(autoCmd)
}

// getRandomPort returns a random available port
func getRandomPort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

type autoCheck struct {
	name string
	err  error
}

func runAuto(cmd *cobra.Command, _ []string) error {
	dir, err := os.MkdirTemp("", "tls-serve-auto-*")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(dir)

	root := filepath.Join(dir, "public")
	sample := make([]byte, 4096)
	if _, err := rand.Read(sample); err != nil {
		return err
	}
	secret := []byte("outside the served root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(root, "sample.bin"), sample, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "secret.txt"), secret, 0o644); err != nil {
		return err
	}

	certFile := filepath.Join(dir, "cert.pem")
	if _, err := provisionCert(cmd.Context(), viper.GetViper(), certFile); err != nil {
		return fmt.Errorf("failed to provision certificate: %w", err)
	}

	port, err := getRandomPort()
	if err != nil {
		return fmt.Errorf("failed to get random port for HTTPS: %v", err)
	}

	logger.Info("Starting HTTPS server", "addr", net.JoinHostPort("127.0.0.1", fmt.Sprint(port)))
	srv, err := startHTTPServer(server.Config{
		Host:            "127.0.0.1",
		Port:            port,
		CertFile:        certFile,
		Root:            root,
		ShutdownTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to start HTTPS server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
	}()

	c, err := client.New(client.Options{CAFile: certFile, Timeout: 10 * time.Second})
	if err != nil {
		cancel()
		<-serveErr
		return err
	}

	checks := []autoCheck{
		{"TLS handshake and sample file", expectBody(cmd.Context(), c, srv.URL()+"/sample.bin", sample)},
		{"missing file is not found", expectStatus(cmd.Context(), c, srv.URL()+"/missing.bin", http.StatusNotFound)},
		{"traversal stays inside root", expectNoLeak(cmd.Context(), c, srv.URL()+"/../secret.txt", secret)},
	}
	c.CloseIdleConnections()

	// Clean up HTTPS server
	cancel()
	if err := <-serveErr; err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}

	var failed []error
	for _, check := range checks {
		if check.err != nil {
			logger.Error("❌ "+check.name, "error", check.err)
			failed = append(failed, fmt.Errorf("%s: %w", check.name, check.err))
			continue
		}
		logger.Info("✅ " + check.name)
	}
	return errors.Join(failed...)
}

func expectBody(ctx context.Context, c *client.Client, url string, want []byte) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if !bytes.Equal(resp.Body, want) {
		return fmt.Errorf("got %d bytes that differ from the %d byte sample", len(resp.Body), len(want))
	}
	return nil
}

func expectStatus(ctx context.Context, c *client.Client, url string, want int) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("status %d, want %d", resp.StatusCode, want)
	}
	return nil
}

func expectNoLeak(ctx context.Context, c *client.Client, url string, secret []byte) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusOK || bytes.Contains(resp.Body, secret) {
		return fmt.Errorf("content outside the root was served (status %d)", resp.StatusCode)
	}
	return nil
}
