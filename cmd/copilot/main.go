package main

import (
	"fmt"
	"os"

	"github.com/franz/project-copilot/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string
	cfgDir  string

	rootCmd = &cobra.Command{
		Use:   "copilot",
		Short: "Project Copilot - index local files and search their text",
		Long: `copilot indexes the files of a workspace directory into a local SQLite
store and answers full-text queries against the extracted text.

Configuration is read from a single file (--config or PROJECT_COPILOT_CONFIG_FILE)
or from a directory holding general.yaml and <env>.yaml (--config-dir,
PROJECT_COPILOT_CONFIG_DIR, default ./config; env from PROJECT_COPILOT_ENV).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "single configuration file")
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config-dir", "", "configuration directory (general.yaml + <env>.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().String("event-level", "", "minimum level written to the event log (debug, info, warning, error)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("event_level", rootCmd.PersistentFlags().Lookup("event-level"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
