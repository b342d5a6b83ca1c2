package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var catalogPath string
	root := &cobra.Command{
		Use:          "catalogctl",
		Short:        "Inspect the service catalog used by the query bridge",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&catalogPath, "catalog", os.Getenv("CATALOG_PATH"),
		"Catalog YAML file (defaults to the embedded catalog)")

	root.AddCommand(resolveCmd(&catalogPath))
	root.AddCommand(mapFieldCmd(&catalogPath))
	root.AddCommand(paramsCmd(&catalogPath))
	root.AddCommand(validateCmd(&catalogPath))
	return root
}
