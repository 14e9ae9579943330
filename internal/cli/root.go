// Package cli implements the jweave command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var (
	verbosity int
	logPath   string
)

var rootCmd = &cobra.Command{
	Use:   "jweave",
	Short: "Run JVM class files with mocked constructors and woven advice",
	Long: "jweave interprets Java class files and intercepts them while they run:\n" +
		"constructors of mocked classes skip their bodies, and methods can be\n" +
		"stubbed or wrapped in advice declared by an interception plan.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(verbosity, logPath)
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Write logs to this file instead of stderr")
}

func configureLogging(verbosity int, path string) {
	if path == "" {
		commonlog.Configure(verbosity, nil)
		return
	}
	commonlog.Configure(verbosity, &path)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
