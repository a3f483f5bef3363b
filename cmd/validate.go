package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frgrisk/tls-serve/certs"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the combined certificate and key file",
	RunE:  runValidate,
}

var (
	reportLabel = lipgloss.NewStyle().Bold(true).Width(14)
	reportBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	certFile := viper.GetString("cert")

	logger.Info("Validating certificate file...", "file", certFile)

	report, err := certs.Inspect(certFile, logger)
	if err != nil {
		logger.Error("Certificate validation failed", "file", certFile, "error", err)
		return err
	}

	logger.Info("✅ Certificate and private key match", "file", certFile)
	if !report.SelfSigned {
		logger.Warn("Certificate is not self-signed", "issuer", report.Issuer)
	}
	if report.ValidAt(time.Now()) {
		logger.Info("✅ Certificate is within its validity period", "expires", report.NotAfter.Format(time.DateOnly))
	} else {
		logger.Warn("Certificate is outside its validity period", "not_before", report.NotBefore, "not_after", report.NotAfter)
	}
	logger.Info("✅ Certificate chain verified", "chain_length", report.ChainLength)

	fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
	return nil
}

func renderReport(r *certs.Report) string {
	names := append(append([]string{}, r.DNSNames...), r.IPAddresses...)
	if len(names) == 0 {
		names = []string{"(none)"}
	}

	rows := [][2]string{
		{"File", r.Path},
		{"Subject", r.Subject},
		{"Issuer", r.Issuer},
		{"Not before", r.NotBefore.Format(time.RFC3339)},
		{"Not after", r.NotAfter.Format(time.RFC3339)},
		{"Names", strings.Join(names, ", ")},
		{"Self-signed", fmt.Sprint(r.SelfSigned)},
		{"CA", fmt.Sprint(r.IsCA)},
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, reportLabel.Render(row[0]), row[1]))
	}
	return reportBox.Render(strings.Join(lines, "\n"))
}
