package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// MaxAddressLength is the longest base58 string a 32-byte key can encode to.
const MaxAddressLength = 44

// Address is a base58-encoded 32-byte Solana public key.
//
// The zero value is not a valid address. Use ParseAddress for untrusted input.
type Address string

// ParseAddress validates s and returns it as an Address.
func ParseAddress(s string) (Address, error) {
	if len(s) > MaxAddressLength {
		return "", fmt.Errorf("%w: %d", ErrInvalidAddressLength, len(s))
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBase58, err)
	}
	if len(raw) != PublicKeyLength {
		return "", fmt.Errorf("%w: %s decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}
	return Address(s), nil
}

// MustParseAddress is like ParseAddress but panics on invalid input.
// Intended for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsValidAddress reports whether s parses as an Address.
func IsValidAddress(s string) bool {
	_, err := ParseAddress(s)
	return err == nil
}

// AddressFromPublicKey encodes the raw key bytes as base58.
func AddressFromPublicKey(pk PublicKey) Address {
	return Address(base58.Encode(pk[:]))
}

// AddressFromSecretKey derives the address owned by a secret scalar.
func AddressFromSecretKey(secret [32]byte) (Address, error) {
	pk, err := PublicKeyFromSecretKey(secret)
	if err != nil {
		return "", err
	}
	return pk.ToAddress(), nil
}

// AddressFromSolanaKey converts a solana-go key into an Address.
func AddressFromSolanaKey(key solana.PublicKey) Address {
	return Address(key.String())
}

func (a Address) String() string {
	return string(a)
}

// Pubkey returns the address as a solana-go key.
func (a Address) Pubkey() (solana.PublicKey, error) {
	if _, err := ParseAddress(string(a)); err != nil {
		return solana.PublicKey{}, err
	}
	return solana.MustPublicKeyFromBase58(string(a)), nil
}

// AssociatedTokenAddress returns the associated token account that holds
// mint tokens for this wallet.
func (a Address) AssociatedTokenAddress(mint Address) (Address, error) {
	wallet, err := a.Pubkey()
	if err != nil {
		return "", fmt.Errorf("wallet: %w", err)
	}
	mintKey, err := mint.Pubkey()
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	ata, err := associatedTokenAddress(wallet, mintKey)
	if err != nil {
		return "", err
	}
	return AddressFromSolanaKey(ata), nil
}

func associatedTokenAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return ata, nil
}
