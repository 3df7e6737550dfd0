// Package app provides the docmind server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/docmind/cmd/docmind/app/options"
	"github.com/kart-io/docmind/pkg/infra/app"
)

const (
	// Name is the name of the application.
	Name = "docmind"

	// commandDesc is the description of the command.
	commandDesc = `docmind document service

Summarizes PDF documents and answers questions about them.

This server provides:
  - Asynchronous summarization with page units, quality scoring and hierarchical merge
  - Hybrid full text and vector retrieval over registered documents
  - Question answering scoped to one document or to every document of an entity
  - Per-session interaction history`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return server.Run(ctx)
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// 第二次收到信号时直接退出。
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
