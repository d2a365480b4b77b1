package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/agentdeck-dev/agentdeck/internal/channel"
	"github.com/agentdeck-dev/agentdeck/internal/config"
	apperrors "github.com/agentdeck-dev/agentdeck/pkg/console/errors"
	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored conversation threads",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryDeleteCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored threads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			payload, err := fetchOnce(cmd, cfg, "Fetching threads ", events.Envelope{
				Event: events.ActionGetHistory,
			}, events.EventHistoryList)
			if err != nil {
				return err
			}
			threads := events.DecodeHistoryList(payload.Payload).Threads
			if len(threads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored threads.")
				return nil
			}
			renderThreadTable(cmd, threads)
			return nil
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a stored thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			threadID := args[0]
			env, err := fetchOnce(cmd, cfg, "Deleting thread ", events.Envelope{
				Event:   events.ActionDeleteHistory,
				Payload: events.MustPayload(events.DeleteHistoryPayload{ThreadID: threadID}),
			}, events.EventHistoryDeleted)
			if err != nil {
				return err
			}
			deleted := events.DecodeHistoryDeleted(env.Payload)
			color.Green("Deleted thread %s", deleted.ThreadID)
			return nil
		},
	}
}

// fetchOnce runs a transient channel connection: emit one action, wait for
// one matching reply, tear down.
func fetchOnce(cmd *cobra.Command, cfg config.Config, message string, request events.Envelope, wantEvent string) (events.Envelope, error) {
	log, flush, err := newLogger(cmd)
	if err != nil {
		return events.Envelope{}, err
	}
	defer flush()

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " " + message
	if fileInfo, _ := os.Stdout.Stat(); fileInfo != nil && fileInfo.Mode()&os.ModeCharDevice != 0 {
		sp.Start()
		defer sp.Stop()
	}

	adapter := channel.New(channel.Options{
		URL:            cfg.Server.URL,
		InitialBackoff: cfg.Reconnect.InitialBackoff,
		MaxBackoff:     cfg.Reconnect.MaxBackoff,
		EmitBuffer:     cfg.Reconnect.EmitBuffer,
	}, channel.NewMetrics(nil), log.WithName("channel"))

	reply := make(chan events.Envelope, 1)
	adapter.Subscribe(func(env events.Envelope) {
		if env.Event == wantEvent {
			select {
			case reply <- env:
			default:
			}
		}
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() { _ = adapter.Run(ctx) }()

	if err := adapter.Emit(request); err != nil {
		return events.Envelope{}, err
	}

	select {
	case env := <-reply:
		return env, nil
	case <-time.After(cfg.Console.HistoryWait):
		return events.Envelope{}, apperrors.New(apperrors.ErrCodeHistoryFetch,
			fmt.Sprintf("no reply from %s within %s", cfg.Server.URL, cfg.Console.HistoryWait), nil)
	case <-ctx.Done():
		return events.Envelope{}, ctx.Err()
	}
}

func renderThreadTable(cmd *cobra.Command, threads []events.ThreadInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"ID", "Title", "Created"})
	for _, th := range threads {
		created := ""
		if !th.CreatedAt.IsZero() {
			created = th.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{th.ID, th.Title, created})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
