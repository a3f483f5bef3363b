package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Generate the certificate file if it does not exist yet",
	RunE:  runCert,
}

func init() {
	rootCmd.AddCommand(certCmd)
}

func runCert(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()

	res, err := provisionCert(cmd.Context(), v, v.GetString("cert"))
	if err != nil {
		return err
	}

	if res.Created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", res.Path)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Kept existing %s\n", res.Path)
	}
	return nil
}
