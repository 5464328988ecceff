// Command agentrelay serves the agent relay bridge: a single-page form that
// streams an agent's progress back to the browser as it happens.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/agentrelay"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "agentrelay",
	Short: "Relay agent engine events to the browser over HTTP",
	Long: `agentrelay accepts an instruction from a web form, runs the configured
agent engine on a background goroutine and streams every assistant message,
tool invocation and saved screenshot back as HTML fragments.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "agentrelay", agentrelay.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the config")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
