package cli

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentdeck-dev/agentdeck/internal/config"
)

// loadConfig reads the config file named by --config, or defaults plus
// environment overrides when the flag is empty.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newLogger builds the command logger. The TUI owns the terminal, so debug
// logs go to a file; without --verbose logging is off entirely.
func newLogger(cmd *cobra.Command) (logr.Logger, func(), error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return logr.Discard(), func() {}, nil
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"agentdeck.log"}
	cfg.ErrorOutputPaths = []string{"agentdeck.log"}
	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, nil, err
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}
