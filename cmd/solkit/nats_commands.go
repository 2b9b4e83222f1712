package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solkit/client"
	natspkg "github.com/brojonat/solkit/service/nats"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams transaction events, optionally for one sender.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to transaction events",
		ArgsUsage: "[from_address]",
		Description: `Subscribe to transaction events published to NATS JetStream.

Events are published to the subject: soltx.{prepared|signed}.{from_address}
Without an address, events from every sender are streamed.

Example:
  solkit --json nats subscribe --type signed 8gvxAVripdzJ7nDNt1tPQWtmeHkq2nrgpe1BRYWMWUUo`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Event type: prepared or signed (default: both)",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "solkit-cli",
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

			subject := natspkg.FilterSubject(eventType, c.Args().First())
			return streamEvents(c.String("nats-url"), subject, c.Bool("durable"), c.String("consumer-name"), c.Bool("json"))
		},
	}
}

// streamEvents consumes events matching subject from NATS and prints them
// until interrupted.
func streamEvents(natsURL, subject string, durable bool, consumerName string, jsonOutput bool) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sub, err := natspkg.NewSubscriber(natsURL, "solkit-cli", logger)
	if err != nil {
		return err
	}
	defer sub.Close()

	if !jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for transactions... (Ctrl-C to exit)\n\n")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subscription := natspkg.Subscription{Subject: subject, Replay: true}
	if durable {
		subscription.Durable = consumerName
	}

	events := make(chan *natspkg.TransactionEvent, 10)
	unsubscribe, err := sub.Subscribe(ctx, subscription, func(event *natspkg.TransactionEvent) {
		select {
		case events <- event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	count := 0
	for {
		select {
		case event := <-events:
			count++
			if err := printStreamEvent(count, busEvent(event), jsonOutput); err != nil {
				return err
			}

		case <-ctx.Done():
			if !jsonOutput {
				fmt.Printf("\n\n✅ Received %d events\n", count)
				fmt.Println("Shutting down...")
			}
			return nil
		}
	}
}

// busEvent converts a NATS event into the client's event type so both
// sources print the same way.
func busEvent(e *natspkg.TransactionEvent) *client.TransactionEvent {
	return &client.TransactionEvent{
		Type:          e.Type,
		Shape:         e.Shape,
		MessageDigest: e.MessageDigest,
		TransactionID: e.TransactionID,
		FromAddress:   e.FromAddress,
		ToAddress:     e.ToAddress,
		TokenMint:     e.TokenMint,
		Amount:        e.Amount,
		Decimals:      e.Decimals,
		Blockhash:     e.Blockhash,
		Transaction:   e.Transaction,
		PublishedAt:   e.PublishedAt,
	}
}

func printStreamEvent(n int, event *client.TransactionEvent, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Event #%d (%s)\n", n, event.Type)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Shape:        %s\n", event.Shape)
	fmt.Printf("Digest:       %s\n", event.MessageDigest)
	if event.TransactionID != "" {
		fmt.Printf("Transaction:  %s\n", event.TransactionID)
	}
	fmt.Printf("From:         %s\n", event.FromAddress)
	fmt.Printf("To:           %s\n", event.ToAddress)
	fmt.Printf("Amount:       %d\n", event.Amount)
	if event.TokenMint != nil {
		fmt.Printf("Token:        %s\n", *event.TokenMint)
	}
	fmt.Printf("Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Printf("\n")
	return nil
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the transaction event stream",
		Action: func(c *cli.Context) error {
			nc, err := natspkg.Connect(c.String("nats-url"), "solkit-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(info)
			}

			fmt.Printf("Stream: %s\n", info.Config.Name)
			fmt.Printf("─────────────────────────────────────────────────────\n")
			fmt.Printf("Description:  %s\n", info.Config.Description)
			fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
			fmt.Printf("Messages:     %d\n", info.State.Msgs)
			fmt.Printf("Bytes:        %d\n", info.State.Bytes)
			fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
			fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
			fmt.Printf("Consumers:    %d\n", info.State.Consumers)
			fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
			fmt.Printf("Storage:      %s\n", info.Config.Storage)
			fmt.Printf("\n")
			return nil
		},
	}
}
