package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "solkit",
		Usage: "Solana address and transfer transaction toolkit",
		Description: `A command-line tool for building, signing and decoding Solana transfer transactions.

Transaction and address commands run offline. The db, nats, stream and server
commands inspect a running solkit deployment.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Offline address commands
			{
				Name:  "address",
				Usage: "Address validation and derivation commands",
				Subcommands: []*cli.Command{
					validateAddressCommand(),
					addressFromSecretCommand(),
					tokenAccountCommand(),
				},
			},
			// Offline transaction commands
			{
				Name:    "tx",
				Aliases: []string{"transaction"},
				Usage:   "Transfer transaction commands",
				Subcommands: []*cli.Command{
					buildCommand(),
					signCommand(),
					decodeCommand(),
					transactionIDCommand(),
				},
			},
			// Journal inspection commands
			{
				Name:  "db",
				Usage: "Transaction journal commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					listTransactionsCommand(),
					getTransactionCommand(),
				},
			},
			// NATS transaction event commands
			{
				Name:  "nats",
				Usage: "NATS transaction event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Live transaction events through the server
			streamCommand(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for health checks and streaming",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.UintFlag{
				Name:    "token-decimals",
				Usage:   "Token precision applied when a transfer does not set --decimals",
				EnvVars: []string{"TOKEN_DECIMALS"},
				Value:   6,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
