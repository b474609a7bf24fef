package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/okian/pitwall/internal/client"
	"github.com/okian/pitwall/internal/domain/delivery"
)

const (
	defaultURL         = "ws://localhost:9080/ws"
	defaultDialTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "pitwall-client",
		Short:        "Terminal client for pitwall race sessions",
		SilenceUsage: true,
	}
	cmd.AddCommand(newPlayCmd())
	return cmd
}

func newPlayCmd() *cobra.Command {
	var (
		url         string
		logFile     string
		rollback    bool
		dialTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Connect to a server and race from the terminal",
		Long: `Connects to a pitwall server and renders its race narration.

Type commands at the prompt. Besides the server's commands, the client
understands:
  /reconnect  drop the connection and start a fresh session
  /quit       close the connection and exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := client.SetupLogging(logFile); err != nil {
				return err
			}

			policy := delivery.LeaveAndAnnotate
			if rollback {
				policy = delivery.Rollback
			}
			c := client.New(url,
				client.WithOutput(cmd.OutOrStdout()),
				client.WithEchoPolicy(policy),
				client.WithDialer(&websocket.Dialer{HandshakeTimeout: dialTimeout}),
			)

			// A failed first dial is reported by the client; the user can /reconnect.
			_ = c.Connect(cmd.Context())
			if err := c.Run(cmd.Context(), cmd.InOrStdin()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Bye.")
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", defaultURL, "websocket URL of the server")
	cmd.Flags().StringVar(&logFile, "log", "", "log file (default: pitwall_client_TIMESTAMP.log)")
	cmd.Flags().BoolVar(&rollback, "rollback-rejected", false, "remove echoed commands the server rejects instead of marking them")
	cmd.Flags().DurationVar(&dialTimeout, "dial-timeout", defaultDialTimeout, "websocket handshake timeout")
	return cmd
}
