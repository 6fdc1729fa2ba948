package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/shiftwatch/internal/api"
	"github.com/fentz26/shiftwatch/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "shiftwatch",
	Short: "shiftwatch - roster shift tracking CLI",
	Long: `shiftwatch records roster check-ins and check-outs against each member's
weekly block schedule and reports on punctuality.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("shiftwatch", api.Version)
	},
}

var (
	apiAddr    string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(memberCmd)
	rootCmd.AddCommand(shiftCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(nowCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
