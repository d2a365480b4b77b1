package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	_ "go.uber.org/automaxprocs"

	"github.com/agentdeck-dev/agentdeck/internal/mockagent"
)

func main() {
	var (
		addr         = flag.String("addr", "127.0.0.1:8573", "listen address")
		dbPath       = flag.String("db", "mockagent.db", "sqlite thread store path")
		scenarioPath = flag.String("scenario", "", "scenario YAML file (built-in script when empty)")
		chunkDelay   = flag.Duration("chunk-delay", 35*time.Millisecond, "pause between streamed deltas")
	)
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()
	log := zapr.NewLogger(zl)

	store, err := mockagent.OpenThreadStore(*dbPath)
	if err != nil {
		log.Error(err, "failed to open thread store", "path", *dbPath)
		os.Exit(1)
	}

	var scenario *mockagent.Scenario
	if *scenarioPath != "" {
		scenario, err = mockagent.LoadScenario(*scenarioPath)
		if err != nil {
			log.Error(err, "failed to load scenario", "path", *scenarioPath)
			os.Exit(1)
		}
	}

	srv := mockagent.NewServer(store, scenario, mockagent.Options{ChunkDelay: *chunkDelay}, log)
	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("mock agent daemon listening", "addr", *addr, "ws", "ws://"+*addr+"/ws")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(err, "server stopped")
		os.Exit(1)
	}
}
