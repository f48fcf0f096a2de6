package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var buildVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "shipkit",
	Short: "Command line client for the Shipkit platform",
	Long: `Command line client for the Shipkit platform.

Authenticate with 'shipkit login', then manage teams, projects and
deployments, or install template components into an existing repository.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(strings.TrimSpace(buildVersion))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
