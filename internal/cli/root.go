package cli

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - Safety monitoring for AI agents",
	Long: `Aegis monitors AI agent traffic for jailbreaks, prompt injection, unsafe
output, and dangerous tool calls, and runs red-team campaigns against
registered agents to find vulnerabilities before attackers do.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: ~/.aegis/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress log output")
}

func Execute() error {
	return rootCmd.Execute()
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	if quiet {
		log.SetOutput(io.Discard)
		return log
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
