package main

import (
	"context"
	"fmt"

	"github.com/brojonat/solkit/service/solana"
	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v2"
)

func validateAddressCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check that an address is a well formed base58 public key",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: address")
			}

			address := c.Args().First()
			codec := newCodec(c)
			_, err := codec.ValidateAddress(context.Background(), address)

			onCurve := false
			if err == nil {
				_, pkErr := solana.ParsePublicKey(address)
				onCurve = pkErr == nil
			}

			if c.Bool("json") {
				out := map[string]interface{}{
					"address":  address,
					"valid":    err == nil,
					"on_curve": onCurve,
				}
				if err != nil {
					out["error"] = err.Error()
				}
				return outputJSON(out)
			}

			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			fmt.Printf("✓ %s is valid\n", address)
			if !onCurve {
				fmt.Printf("  (off curve: program derived, no private key)\n")
			}
			return nil
		},
	}
}

func addressFromSecretCommand() *cli.Command {
	return &cli.Command{
		Name:      "from-secret",
		Usage:     "Derive the address of a 32 byte secret scalar",
		ArgsUsage: "<base58 secret>",
		Description: `Derive an address by multiplying the Ed25519 base point by the secret.

The argument is a base58 encoded 32 byte secret, or a 64 byte keypair whose
first half is used. The bytes are treated as a scalar and reduced modulo the
group order. They are not hashed first.`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: secret")
			}

			secret, err := parseSecret(c.Args().First())
			if err != nil {
				return err
			}

			addr, err := solana.AddressFromSecretKey(secret)
			if err != nil {
				return fmt.Errorf("failed to derive address: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{"address": addr.String()})
			}
			fmt.Println(addr)
			return nil
		},
	}
}

func tokenAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "ata",
		Aliases:   []string{"token-account"},
		Usage:     "Derive the associated token account of a wallet for a mint",
		ArgsUsage: "<wallet> <mint>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: wallet and mint")
			}

			wallet, err := solana.ParseAddress(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("wallet: %w", err)
			}
			mint, err := solana.ParseAddress(c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("mint: %w", err)
			}

			ata, err := wallet.AssociatedTokenAddress(mint)
			if err != nil {
				return fmt.Errorf("failed to derive token account: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{
					"wallet":        wallet.String(),
					"mint":          mint.String(),
					"token_account": ata.String(),
				})
			}
			fmt.Println(ata)
			return nil
		},
	}
}

// parseSecret decodes a base58 secret scalar or keypair.
func parseSecret(s string) ([32]byte, error) {
	var secret [32]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return secret, fmt.Errorf("secret must be base58 encoded: %w", err)
	}
	if len(raw) != 32 && len(raw) != 64 {
		return secret, fmt.Errorf("secret must decode to 32 or 64 bytes, got %d", len(raw))
	}
	copy(secret[:], raw[:32])
	return secret, nil
}
