package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/solkit/client"
	natspkg "github.com/brojonat/solkit/service/nats"
	"github.com/urfave/cli/v2"
)

// streamCommand follows the server's Server-Sent Events stream.
func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream transaction events from the server (SSE)",
		ArgsUsage: "[from_address]",
		Description: `Follow transactions as the server builds and signs them.

Unlike "nats subscribe" this goes through the HTTP server, so only
--server-url is needed. Without an address every sender is streamed.

Example:
  solkit stream --type signed 8gvxAVripdzJ7nDNt1tPQWtmeHkq2nrgpe1BRYWMWUUo`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Event type: prepared or signed (default: both)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("at most one address may be given")
			}
			eventType := c.String("type")
			switch eventType {
			case "", natspkg.EventPrepared, natspkg.EventSigned:
			default:
				return fmt.Errorf("--type must be %q or %q", natspkg.EventPrepared, natspkg.EventSigned)
			}

			serverURL := c.String("server-url")
			address := c.Args().First()
			jsonOutput := c.Bool("json")

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !jsonOutput {
				target := "all senders"
				if address != "" {
					target = address
				}
				fmt.Fprintf(os.Stderr, "Streaming transactions for %s from %s (Ctrl-C to stop)\n\n", target, serverURL)
			}

			cl := client.NewClient(serverURL, &http.Client{}, nil)
			count := 0
			err := cl.Stream(ctx, address, eventType, func(event *client.TransactionEvent) error {
				count++
				return printStreamEvent(count, event, jsonOutput)
			})
			if errors.Is(err, context.Canceled) {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "\nDisconnected after %d events\n", count)
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("stream failed: %w", err)
			}
			return nil
		},
	}
}
