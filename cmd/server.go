package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frgrisk/tls-serve/certs"
	"github.com/frgrisk/tls-serve/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Generate the certificate if missing and serve files over HTTPS (default)",
	RunE:  runServe,
}

var bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()
	cfg := serverConfig(v)

	// Wait for interrupt
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := provisionCert(ctx, v, cfg.CertFile); err != nil {
		return err
	}

	srv, err := startHTTPServer(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), bannerStyle.Render("Starting server @ "+srv.URL()))
	return srv.Serve(ctx)
}

// provisionCert makes sure certFile exists, generating it with the configured generator.
func provisionCert(ctx context.Context, v *viper.Viper, certFile string) (certs.Result, error) {
	gen, err := newGenerator(v)
	if err != nil {
		return certs.Result{}, err
	}
	return certs.NewProvisioner(gen, certs.WithLogger(logger)).Ensure(ctx, certFile)
}

// startHTTPServer loads the certificate and binds the listener without serving yet.
func startHTTPServer(cfg server.Config) (*server.Server, error) {
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := srv.Listen(); err != nil {
		return nil, err
	}
	logger.Debug("Listening", "addr", srv.Addr().String(), "root", srv.Config().Root, "cert", cfg.CertFile)
	return srv, nil
}
