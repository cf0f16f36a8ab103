package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFile string

	rootCmd = &cobra.Command{
		Use:   "memorial",
		Short: "COVID-19 memorial web back end",
		Long: `memorial serves the geo lookup, filter and form intake endpoints behind the
memorial site, and offers a few offline helpers for inspecting the geo dataset.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file merged beneath the process environment")
	rootCmd.AddCommand(serveCmd, geoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
