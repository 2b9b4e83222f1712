package solana

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// SignatureLength is the size of an Ed25519 signature in bytes.
const SignatureLength = 64

// Transaction is a transfer plus an optional fee payer signature.
//
// The instruction list is never stored. It is derived from Params each time
// the transaction is encoded, so the same parameters always produce the same
// bytes.
type Transaction struct {
	Params    TransactionParameters
	signature []byte
}

// NewTransaction returns an unsigned transaction for params.
func NewTransaction(params TransactionParameters) *Transaction {
	return &Transaction{Params: params}
}

// IsSigned reports whether a signature has been attached.
func (tx *Transaction) IsSigned() bool {
	return tx.signature != nil
}

// Signature returns a copy of the attached signature, or nil.
func (tx *Transaction) Signature() []byte {
	if tx.signature == nil {
		return nil
	}
	out := make([]byte, len(tx.signature))
	copy(out, tx.signature)
	return out
}

// Shape reports which instruction layout the transaction compiles to.
func (tx *Transaction) Shape() (Shape, error) {
	return tx.Params.Shape()
}

func (tx *Transaction) compile() (*solana.Message, error) {
	instructions, err := tx.Params.Instructions()
	if err != nil {
		return nil, err
	}
	payer, err := tx.Params.From.Pubkey()
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	blockhash, err := solana.HashFromBase58(tx.Params.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBlockhash, tx.Params.Blockhash, err)
	}
	return compileMessage(payer, instructions, blockhash)
}

// Message returns the serialized message. These are the bytes the fee payer signs.
func (tx *Transaction) Message() ([]byte, error) {
	msg, err := tx.compile()
	if err != nil {
		return nil, err
	}
	out, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}
	return out, nil
}

// ToBytes serializes the transaction.
//
// An unsigned transaction serializes to its message bytes alone. A signed one
// serializes to the full wire transaction: a compact-u16 signature count,
// the signature, then the message.
func (tx *Transaction) ToBytes() ([]byte, error) {
	if tx.signature == nil {
		return tx.Message()
	}
	return tx.encodeSigned(tx.signature)
}

func (tx *Transaction) encodeSigned(sig []byte) ([]byte, error) {
	msg, err := tx.compile()
	if err != nil {
		return nil, err
	}
	wire := solana.Transaction{
		Signatures: []solana.Signature{solana.SignatureFromBytes(sig)},
		Message:    *msg,
	}
	out, err := wire.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return out, nil
}

// ToBase58 returns ToBytes encoded as base58.
func (tx *Transaction) ToBase58() (string, error) {
	b, err := tx.ToBytes()
	if err != nil {
		return "", err
	}
	return base58.Encode(b), nil
}

// ToBase64 returns ToBytes encoded as standard base64, the encoding RPC
// nodes accept for sendTransaction.
func (tx *Transaction) ToBase64() (string, error) {
	b, err := tx.ToBytes()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Sign attaches an externally produced fee payer signature and returns the
// signed wire bytes. The signature is not verified; see VerifySignature.
//
// A signature that is not exactly 64 bytes is rejected and the transaction
// is left as it was.
func (tx *Transaction) Sign(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("%w %d", ErrInvalidSignatureLength, len(sig))
	}
	stored := make([]byte, SignatureLength)
	copy(stored, sig)

	out, err := tx.encodeSigned(stored)
	if err != nil {
		return nil, err
	}
	tx.signature = stored
	return out, nil
}

// SignWith signs the message with key and attaches the result.
// The key must belong to the fee payer.
func (tx *Transaction) SignWith(key solana.PrivateKey) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	from, err := tx.Params.From.Pubkey()
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if !key.PublicKey().Equals(from) {
		return nil, fmt.Errorf("%w: key %s does not match fee payer %s", ErrInvalidParameters, key.PublicKey(), from)
	}

	msg, err := tx.Message()
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return tx.Sign(sig[:])
}

// VerifySignature checks the attached signature against the fee payer key.
func (tx *Transaction) VerifySignature() error {
	if tx.signature == nil {
		return ErrNotSigned
	}
	// Only an on-curve key can have produced a signature.
	from, err := ParsePublicKey(tx.Params.From.String())
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	if !from.Solana().Verify(msg, solana.SignatureFromBytes(tx.signature)) {
		return fmt.Errorf("%w: signature does not verify against %s", ErrTransaction, from)
	}
	return nil
}

// ToTransactionID returns the identifier of a signed transaction.
func (tx *Transaction) ToTransactionID() (TransactionID, error) {
	var id TransactionID
	if tx.signature == nil {
		return id, ErrNotSigned
	}
	copy(id[:], tx.signature)
	return id, nil
}
