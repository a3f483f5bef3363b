package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/frgrisk/tls-serve/certs"
	"github.com/frgrisk/tls-serve/server"
)

const (
	defaultCertFile = "cert.pem"
	defaultHost     = "0.0.0.0"
	defaultPort     = 4443

	generatorOpenSSL = "openssl"
	generatorDocker  = "docker"
	generatorBuiltin = "builtin"
)

func setDefaults(v *viper.Viper) {
	srv := server.DefaultConfig()
	params := certs.DefaultParams()

	v.SetDefault("cert", defaultCertFile)
	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("root", srv.Root)
	v.SetDefault("shutdown-timeout", srv.ShutdownTimeout)
	v.SetDefault("read-header-timeout", time.Duration(0))
	v.SetDefault("serve-cert", false)
	v.SetDefault("generator", generatorOpenSSL)
	v.SetDefault("docker-image", certs.DefaultDockerImage)
	v.SetDefault("subject", params.Subject)
	v.SetDefault("san", params.SANs)
	v.SetDefault("days", params.Days)
	v.SetDefault("bits", params.Bits)
}

func serverConfig(v *viper.Viper) server.Config {
	return server.Config{
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		CertFile:          v.GetString("cert"),
		Root:              v.GetString("root"),
		ShutdownTimeout:   v.GetDuration("shutdown-timeout"),
		ReadHeaderTimeout: v.GetDuration("read-header-timeout"),
		ServeCert:         v.GetBool("serve-cert"),
	}
}

func certParams(v *viper.Viper) certs.Params {
	return certs.Params{
		Bits:    v.GetInt("bits"),
		Days:    v.GetInt("days"),
		Subject: v.GetString("subject"),
		SANs:    v.GetStringSlice("san"),
	}
}

func newGenerator(v *viper.Viper) (certs.Generator, error) {
	params := certParams(v)

	switch name := v.GetString("generator"); name {
	case generatorOpenSSL, "":
		return certs.NewOpenSSL(params), nil
	case generatorDocker:
		return certs.NewDocker(v.GetString("docker-image"), params), nil
	case generatorBuiltin:
		return certs.NewBuiltin(params), nil
	default:
		return nil, fmt.Errorf("unknown certificate generator %q (want %s, %s or %s)",
			name, generatorOpenSSL, generatorDocker, generatorBuiltin)
	}
}

// connectHost maps wildcard bind addresses onto loopback for client connections.
func connectHost(host string) string {
	switch host {
	case "", "0.0.0.0":
		return "127.0.0.1"
	case "::":
		return "::1"
	}
	return host
}
