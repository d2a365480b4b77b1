// Package cli wires the console commands: the interactive TUI, the history
// inspector, and version info.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root agentdeck command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentdeck",
		Short: "Terminal console for a local agent daemon",
		Long: `agentdeck is a terminal console for driving a local agent daemon.

It keeps a live transcript per session, streams model output token by
token, surfaces confirmation and decision prompts with deadlines, and
lets you browse stored conversation threads.

Available subcommands:
  console     Open the interactive console (default)
  history     List or delete stored threads
  version     Print version information

Examples:
  agentdeck console
  agentdeck console --config ~/.agentdeck.yaml
  agentdeck history list
  agentdeck history delete thread-42`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "path to a config file")
	cmd.PersistentFlags().Bool("verbose", false, "write debug logs to agentdeck.log")

	cmd.AddCommand(NewConsoleCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}
