package cli

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentdeck-dev/agentdeck/internal/channel"
	"github.com/agentdeck-dev/agentdeck/internal/tui"
	"github.com/agentdeck-dev/agentdeck/pkg/console/router"
	"github.com/agentdeck-dev/agentdeck/pkg/console/session"
	"github.com/agentdeck-dev/agentdeck/pkg/console/stages"
	"github.com/agentdeck-dev/agentdeck/pkg/console/toolstate"
)

// NewConsoleCmd creates the console command
func NewConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open the interactive console",
		RunE:  runConsole,
	}
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, flush, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer flush()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	adapter := channel.New(channel.Options{
		URL:            cfg.Server.URL,
		InitialBackoff: cfg.Reconnect.InitialBackoff,
		MaxBackoff:     cfg.Reconnect.MaxBackoff,
		EmitBuffer:     cfg.Reconnect.EmitBuffer,
	}, channel.NewMetrics(prometheus.NewRegistry()), log.WithName("channel"))

	store := session.NewStore(log.WithName("store"))
	tools := toolstate.NewTracker()
	plan := stages.NewTracker()
	r := router.New(store, tools, plan, adapter, log.WithName("router"))

	adapter.Subscribe(r.HandleEvent)
	states := make(chan channel.State, 8)
	adapter.OnStateChange(func(s channel.State) {
		select {
		case states <- s:
		default:
		}
	})

	go func() {
		if err := adapter.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error(err, "channel stopped")
		}
	}()
	go r.Timers().Run(ctx)

	// Warm the thread list so ctrl+l has data by the time it is opened.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
			r.RequestHistory()
		}
	}()

	program := tea.NewProgram(
		tui.New(tui.Deps{
			Store:      store,
			Router:     r,
			Tools:      tools,
			Stages:     plan,
			ConnStates: states,
			ConnState:  adapter.State,
		}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err = program.Run()
	return err
}
