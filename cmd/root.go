package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frgrisk/tls-serve/certs"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "tls-serve",
		Short: "Serve the current directory over HTTPS with a self-signed certificate",
		Long: `tls-serve serves the files under the working directory over HTTPS.

When the certificate file (cert.pem by default) does not exist it is generated
first: a 2048-bit RSA key and a self-signed certificate valid for 365 days,
concatenated into one unencrypted file. Existing files are never touched.

Only use this for quick local testing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	setDefaults(viper.GetViper())

	defaults := certs.DefaultParams()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tls-serve.yaml)")
	flags.String("cert", defaultCertFile, "Path to the combined certificate and private key file")
	flags.String("host", defaultHost, "Address to serve on or connect to")
	flags.Int("port", defaultPort, "Port to serve on or connect to")
	flags.String("generator", generatorOpenSSL, "Certificate generator: openssl, docker or builtin")
	flags.String("docker-image", certs.DefaultDockerImage, "Image used by the docker generator")
	flags.String("subject", defaults.Subject, "Certificate subject; empty lets openssl prompt for it")
	flags.StringSlice("san", defaults.SANs, "Certificate subjectAltName entries")
	flags.Int("days", defaults.Days, "Certificate validity in days")
	flags.Int("bits", defaults.Bits, "RSA key size")
	flags.Bool("debug", false, "Enable debug logging")

	flags.String("root", ".", "Directory to serve")
	flags.Duration("shutdown-timeout", 5*time.Second, "Time allowed for in-flight requests after an interrupt")
	flags.Duration("read-header-timeout", 0, "Per-connection request header timeout (0 disables it)")
	flags.Bool("serve-cert", false, "Serve the certificate file when it lies under the root; it contains the private key")

	for _, name := range []string{
		"cert", "host", "port", "generator", "docker-image", "subject", "san", "days", "bits", "debug",
		"root", "shutdown-timeout", "read-header-timeout", "serve-cert",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tls-serve")
	}

	viper.SetEnvPrefix("TLS_SERVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setLogLevel(viper.GetBool("debug"))
}
