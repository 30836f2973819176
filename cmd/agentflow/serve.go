package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avi3tal/agentflow/internal/metrics"
	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Starts the agentflow engine in server mode, exposing workflow validation, execution and source management over a JSON API.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		runTimeout, _ := cmd.Flags().GetDuration("run-timeout")
		log := newLogger(cmd)

		reg := registry.New(registry.WithLogger(log))
		srv := server.New(reg, metrics.New(), log, server.WithRunTimeout(runTimeout))

		serverErrors := make(chan error, 1)
		go func() {
			log.Info("server starting", "addr", addr)
			serverErrors <- srv.Start(addr)
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return err
		case sig := <-shutdown:
			log.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().Duration("run-timeout", 60*time.Second, "Per-execution timeout for the execute endpoint")
	rootCmd.AddCommand(serveCmd)
}
