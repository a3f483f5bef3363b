package cmd

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frgrisk/tls-serve/client"
)

var clientCmd = &cobra.Command{
	Use:   "client [path]",
	Short: "Fetch a path from a running server, trusting the certificate file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.Flags().Bool("insecure", false, "Skip server certificate verification")
	clientCmd.Flags().Duration("timeout", 30*time.Second, "Request timeout")
}

func runClient(cmd *cobra.Command, args []string) error {
	insecure, _ := cmd.Flags().GetBool("insecure")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	urlPath := "/"
	if len(args) == 1 {
		urlPath = "/" + strings.TrimPrefix(args[0], "/")
	}
	url := clientURL(viper.GetString("host"), viper.GetInt("port"), urlPath)

	c, err := client.New(client.Options{
		CAFile:   viper.GetString("cert"),
		Insecure: insecure,
		Timeout:  timeout,
	})
	if err != nil {
		return err
	}

	resp, err := c.Get(cmd.Context(), url)
	if err != nil {
		return err
	}
	logger.Debug("Server response", "url", url, "status", resp.StatusCode, "content_type", resp.ContentType)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %d %s", url, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	_, err = cmd.OutOrStdout().Write(resp.Body)
	return err
}

func clientURL(host string, port int, urlPath string) string {
	return "https://" + net.JoinHostPort(connectHost(host), strconv.Itoa(port)) + urlPath
}
