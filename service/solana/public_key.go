package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an Ed25519 public key in bytes.
const PublicKeyLength = 32

// PublicKey is an Ed25519 verifying key. Values built through the
// constructors in this file always hold a valid curve point encoding.
type PublicKey [PublicKeyLength]byte

// PublicKeyFromSecretKey multiplies the secret scalar by the Ed25519 base
// point. The secret is read little-endian and reduced modulo the group
// order, so any 32 bytes are accepted.
//
// This is raw scalar multiplication, not RFC 8032 key expansion: the input
// is the scalar itself, not a seed to be hashed.
func PublicKeyFromSecretKey(secret [32]byte) (PublicKey, error) {
	// SetUniformBytes wants 64 bytes; zero high bytes leave the value unchanged
	// before the reduction.
	var wide [64]byte
	copy(wide[:], secret[:])

	scalar, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKeyEncoding, err)
	}
	point := new(edwards25519.Point).ScalarBaseMult(scalar)
	return PublicKeyFromBytes(point.Bytes())
}

// PublicKeyFromBytes validates b as a compressed Edwards point.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != PublicKeyLength {
		return PublicKey{}, fmt.Errorf("%w: %d", ErrInvalidPublicKeyLength, len(b))
	}
	if _, err := new(edwards25519.Point).SetBytes(b); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKeyEncoding, err)
	}
	var pk PublicKey
	copy(pk[:], b)
	return pk, nil
}

// ParsePublicKey decodes a base58 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	if len(s) > MaxAddressLength {
		return PublicKey{}, fmt.Errorf("%w: %d", ErrInvalidPublicKeyLength, len(s))
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: base58: %v", ErrInvalidPublicKeyEncoding, err)
	}
	return PublicKeyFromBytes(raw)
}

// ToAddress returns the base58 address for this key.
func (pk PublicKey) ToAddress() Address {
	return AddressFromPublicKey(pk)
}

// Solana returns the key as a solana-go key.
func (pk PublicKey) Solana() solana.PublicKey {
	return solana.PublicKeyFromBytes(pk[:])
}

func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}
