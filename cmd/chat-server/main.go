// Command chat-server runs the protocol server from internal/chattest on a
// real address, for trying the client by hand.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"github.com/omochice/livechat/internal/chattest"
)

const shutdownTimeout = 5 * time.Second

func newRootCmd() *cobra.Command {
	var (
		addr     string
		users    map[string]string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "chat-server",
		Short:        "Local chat server for development",
		Long:         "Serves the chat WebSocket protocol on one address. Tokens are mapped to usernames with --user token=name.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), addr, users, logLevel)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8000", "address to listen on")
	cmd.Flags().StringToStringVar(&users, "user", map[string]string{"dev-token": "dev"}, "accepted token=username pairs")
	cmd.Flags().StringVar(&logLevel, "log-level", "INFO", "log level")
	return cmd
}

func runServer(ctx context.Context, addr string, users map[string]string, logLevel string) error {
	log := logs.GetLoggerFromString(logLevel)

	opts := []chattest.Option{chattest.WithLogger(log)}
	for token, name := range users {
		opts = append(opts, chattest.WithUser(token, name))
	}
	handler := chattest.NewHandler(opts...)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("chat server listening", "addr", addr, "users", len(users))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	// upgraded connections are hijacked and not closed by Shutdown
	handler.DropAll()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("chat server stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
