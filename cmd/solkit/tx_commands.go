package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/brojonat/solkit/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v2"
)

// transferFlags describe a transfer the same way the HTTP API does.
func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "from",
			Usage:    "Sender wallet address (fee payer and signer)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "to",
			Usage:    "Recipient wallet address",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:  "amount",
			Usage: "Amount in lamports, or in token base units when --token is set",
		},
		&cli.StringFlag{
			Name:     "blockhash",
			Usage:    "Recent blockhash (base58)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "token",
			Usage: "Token mint address; omit for a native SOL transfer",
		},
		&cli.BoolFlag{
			Name:  "has-token-account",
			Usage: "Whether the recipient already holds a token account (required with --token)",
		},
		&cli.UintFlag{
			Name:  "decimals",
			Usage: "Token precision for TransferChecked",
		},
		&cli.StringFlag{
			Name:  "source-token-account",
			Usage: "Sender token account (defaults to the associated token account)",
		},
		&cli.StringFlag{
			Name:  "destination-token-account",
			Usage: "Recipient token account (defaults to the associated token account)",
		},
	}
}

// paramsFromFlags reads transferFlags into transaction parameters.
// Flags that were not set stay nil so the codec applies its defaults.
func paramsFromFlags(c *cli.Context) (solana.TransactionParameters, error) {
	params := solana.TransactionParameters{
		From:      solana.Address(c.String("from")),
		To:        solana.Address(c.String("to")),
		Amount:    c.Uint64("amount"),
		Blockhash: c.String("blockhash"),
	}

	if mint := c.String("token"); mint != "" {
		params.Token = solana.AddressPtr(solana.Address(mint))
	}
	if c.IsSet("has-token-account") {
		params.HasTokenAccount = solana.BoolPtr(c.Bool("has-token-account"))
	}
	if c.IsSet("decimals") {
		d := c.Uint("decimals")
		if d > 255 {
			return params, fmt.Errorf("--decimals must fit in a byte, got %d", d)
		}
		decimals := uint8(d)
		params.Decimals = &decimals
	}
	if src := c.String("source-token-account"); src != "" {
		params.SourceTokenAccount = solana.AddressPtr(solana.Address(src))
	}
	if dst := c.String("destination-token-account"); dst != "" {
		params.DestinationTokenAccount = solana.AddressPtr(solana.Address(dst))
	}

	if !params.IsTokenTransfer() && (params.SourceTokenAccount != nil || params.DestinationTokenAccount != nil) {
		return params, fmt.Errorf("token account flags require --token")
	}
	return params, nil
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build the unsigned message of a transfer",
		Description: `Build the message bytes that the sender must sign.

Example:
  solkit tx build --from 8gvx... --to AN6y... --amount 1000 --blockhash 7qBD...`,
		Flags: transferFlags(),
		Action: func(c *cli.Context) error {
			params, err := paramsFromFlags(c)
			if err != nil {
				return err
			}

			tx, msg, err := newCodec(c).Build(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to build transaction: %w", err)
			}
			shape, _ := tx.Shape()

			if c.Bool("json") {
				return outputJSON(map[string]interface{}{
					"shape":          shape,
					"message":        base64.StdEncoding.EncodeToString(msg),
					"message_base58": base58.Encode(msg),
					"params":         tx.Params,
				})
			}

			fmt.Printf("Shape:          %s\n", shape)
			fmt.Printf("Message:        %s\n", base64.StdEncoding.EncodeToString(msg))
			fmt.Printf("Message base58: %s\n", base58.Encode(msg))
			return nil
		},
	}
}

func signCommand() *cli.Command {
	flags := append(transferFlags(),
		&cli.StringFlag{
			Name:  "signature",
			Usage: "Base58 Ed25519 signature produced by an external signer",
		},
		&cli.StringFlag{
			Name:  "keypair",
			Usage: "Path to a Solana CLI keypair file used to sign locally",
		},
	)

	return &cli.Command{
		Name:  "sign",
		Usage: "Attach a signature to a transfer and print the wire transaction",
		Description: `Rebuild the transfer described by the flags and sign it.

Pass either --signature with a signature over the message from "solkit tx build",
or --keypair to sign with a local key. The keypair must belong to --from.`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			params, err := paramsFromFlags(c)
			if err != nil {
				return err
			}

			signature := c.String("signature")
			keypair := c.String("keypair")
			if (signature == "") == (keypair == "") {
				return fmt.Errorf("must specify exactly one of --signature or --keypair")
			}

			codec := newCodec(c)
			ctx := context.Background()

			var tx *solana.Transaction
			var wire []byte
			if keypair != "" {
				key, err := solanago.PrivateKeyFromSolanaKeygenFile(keypair)
				if err != nil {
					return fmt.Errorf("failed to load keypair: %w", err)
				}
				tx, wire, err = codec.SignWith(ctx, params, key)
				if err != nil {
					return fmt.Errorf("failed to sign transaction: %w", err)
				}
			} else {
				sig, err := base58.Decode(signature)
				if err != nil {
					return fmt.Errorf("signature must be base58 encoded: %w", err)
				}
				tx, wire, err = codec.Sign(ctx, params, sig)
				if err != nil {
					return fmt.Errorf("failed to sign transaction: %w", err)
				}
			}

			id, err := tx.ToTransactionID()
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{
					"transaction_id":     id.String(),
					"transaction":        base64.StdEncoding.EncodeToString(wire),
					"transaction_base58": base58.Encode(wire),
				})
			}

			fmt.Printf("Transaction ID: %s\n", id)
			fmt.Printf("Transaction:    %s\n", base64.StdEncoding.EncodeToString(wire))
			return nil
		},
	}
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a serialized transfer transaction",
		ArgsUsage: "<transaction|->",
		Description: `Decode a transaction produced by solkit or a compatible wallet.

Pass "-" to read the transaction from stdin. Use --jq to select fields from the
decoded JSON document; each filter prints its results on separate lines.

Example:
  solkit tx decode --encoding base58 BU8o... --jq '.params.amount'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "encoding",
				Aliases: []string{"e"},
				Usage:   "Input encoding: base64 or base58",
				Value:   "base64",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter applied to the decoded document (can be repeated)",
			},
		},
		Action: func(c *cli.Context) error {
			raw, err := readTransactionArg(c)
			if err != nil {
				return err
			}

			tx, err := newCodec(c).Decode(context.Background(), raw)
			if err != nil {
				return fmt.Errorf("failed to decode transaction: %w", err)
			}

			doc, err := decodedDocument(tx)
			if err != nil {
				return err
			}

			filters := c.StringSlice("jq")
			if len(filters) > 0 {
				return runJQ(os.Stdout, doc, filters)
			}
			return outputJSON(doc)
		},
	}
}

func transactionIDCommand() *cli.Command {
	return &cli.Command{
		Name:      "id",
		Usage:     "Print the transaction id (first signature) of a signed transaction",
		ArgsUsage: "<transaction|->",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "encoding",
				Aliases: []string{"e"},
				Usage:   "Input encoding: base64 or base58",
				Value:   "base64",
			},
		},
		Action: func(c *cli.Context) error {
			raw, err := readTransactionArg(c)
			if err != nil {
				return err
			}

			tx, err := newCodec(c).Decode(context.Background(), raw)
			if err != nil {
				return fmt.Errorf("failed to decode transaction: %w", err)
			}
			id, err := tx.ToTransactionID()
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{"transaction_id": id.String()})
			}
			fmt.Println(id)
			return nil
		},
	}
}

// decodedDocument renders a decoded transaction as a generic JSON value so it
// can be printed or queried with jq.
func decodedDocument(tx *solana.Transaction) (interface{}, error) {
	shape, _ := tx.Shape()
	out := map[string]interface{}{
		"shape":  shape,
		"signed": tx.IsSigned(),
		"params": tx.Params,
	}
	if id, err := tx.ToTransactionID(); err == nil {
		out["transaction_id"] = id.String()
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return doc, nil
}

// runJQ evaluates each filter against doc and writes every result as JSON.
func runJQ(w io.Writer, doc interface{}, filters []string) error {
	enc := json.NewEncoder(w)
	for _, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}

		iter := code.Run(doc)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				return fmt.Errorf("jq filter %q failed: %w", filter, err)
			}
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// readTransactionArg decodes the single positional argument, or stdin for "-".
func readTransactionArg(c *cli.Context) ([]byte, error) {
	if c.NArg() != 1 {
		return nil, fmt.Errorf("requires exactly one argument: transaction (or - for stdin)")
	}

	input := c.Args().First()
	if input == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		input = string(b)
	}
	return decodeEncoded(strings.TrimSpace(input), c.String("encoding"))
}

func decodeEncoded(s, encoding string) ([]byte, error) {
	switch encoding {
	case "base64":
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("transaction is not valid base64: %w", err)
		}
		return b, nil
	case "base58":
		b, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("transaction is not valid base58: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("encoding must be base64 or base58, got %q", encoding)
	}
}

// newCodec builds an offline codec. Only errors are logged, to stderr.
func newCodec(c *cli.Context) *solana.Codec {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return solana.NewCodec(uint8(c.Uint("token-decimals")), nil, logger)
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
