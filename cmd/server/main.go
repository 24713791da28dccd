package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "aprilvoice",
	Short: "Streaming speech recognition server",
	Long: `aprilvoice accepts microphone audio over WebSocket and answers with
transcripts, failing over between cloud vendors and a local engine.`,
	// Running without a subcommand serves.
	RunE: runServe,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)

	addServeFlags(rootCmd)
	addServeFlags(serveCmd)
}

func initConfig() {
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
