package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor   bool
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "dataviz",
	Short: "Ask questions about tabular data and get charts back",
	Long: `dataviz profiles uploaded CSV and Excel files and answers natural-language
questions about them, drawing charts when a question asks for one.

Run "dataviz serve" to start the API, then use the other commands against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (default from server.host and server.port)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorize(colorRed, "error: "+err.Error()))
		os.Exit(1)
	}
}
