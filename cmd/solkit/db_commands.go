package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/solkit/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the transaction journal schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Fprintln(os.Stderr, "✓ Schema applied")
			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List journaled transactions sent from or to an address",
		Aliases: []string{"txs", "ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Sender or recipient address",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many transactions",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			entries, err := store.ListByAddress(context.Background(), db.ListByAddressParams{
				Address: c.String("address"),
				Limit:   int32(c.Int("limit")),
				Offset:  int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(entries)
			}

			printEntries(entries)
			return nil
		},
	}
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-transaction",
		Usage:     "Get a journaled transaction by transaction id or message digest",
		Aliases:   []string{"get"},
		ArgsUsage: "<transaction id|message digest>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "digest",
				Usage: "Treat the argument as a hex message digest",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction id")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			key := c.Args().First()
			var entry *db.JournalEntry
			if c.Bool("digest") {
				entry, err = store.GetByDigest(context.Background(), key)
			} else {
				entry, err = store.GetByTransactionID(context.Background(), key)
			}
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(entry)
			}

			printEntry(entry)
			return nil
		},
	}
}

func printEntries(entries []*db.JournalEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DIGEST\tSHAPE\tFROM\tTO\tAMOUNT\tSTATUS\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.MessageDigest[:12],
			e.Shape,
			e.FromAddress,
			e.ToAddress,
			e.Amount,
			e.Status,
			e.CreatedAt.Format(time.RFC3339),
		)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(entries))
}

func printEntry(e *db.JournalEntry) {
	fmt.Printf("Digest:         %s\n", e.MessageDigest)
	fmt.Printf("Shape:          %s\n", e.Shape)
	fmt.Printf("From:           %s\n", e.FromAddress)
	fmt.Printf("To:             %s\n", e.ToAddress)
	if e.TokenMint != nil {
		fmt.Printf("Amount:         %d (token units)\n", e.Amount)
		fmt.Printf("Token Mint:     %s\n", *e.TokenMint)
	} else {
		fmt.Printf("Amount:         %.9f SOL (%d lamports)\n", float64(e.Amount)/1e9, e.Amount)
		fmt.Printf("Token Mint:     (native SOL)\n")
	}
	fmt.Printf("Blockhash:      %s\n", e.Blockhash)
	fmt.Printf("Status:         %s\n", e.Status)
	if e.TransactionID != nil {
		fmt.Printf("Transaction ID: %s\n", *e.TransactionID)
	}
	fmt.Printf("Created At:     %s\n", e.CreatedAt.Format(time.RFC3339))
	if e.SignedAt != nil {
		fmt.Printf("Signed At:      %s\n", e.SignedAt.Format(time.RFC3339))
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}
