package solana

import (
	"errors"
	"fmt"
)

// Error categories. Every specific error below wraps exactly one of these so
// callers can branch on the category with errors.Is.
var (
	ErrAddress     = errors.New("address error")
	ErrPublicKey   = errors.New("public key error")
	ErrTransaction = errors.New("transaction error")
)

// Address errors
var (
	ErrInvalidAddressLength = fmt.Errorf("%w: invalid character length", ErrAddress)
	ErrInvalidBase58        = fmt.Errorf("%w: invalid base58", ErrAddress)
	ErrInvalidAddress       = fmt.Errorf("%w: invalid address", ErrAddress)
)

// Public key errors
var (
	ErrInvalidPublicKeyLength   = fmt.Errorf("%w: invalid byte length", ErrPublicKey)
	ErrInvalidPublicKeyEncoding = fmt.Errorf("%w: invalid encoding", ErrPublicKey)
)

// Transaction errors
var (
	ErrInvalidSignatureLength      = fmt.Errorf("%w: invalid signature length", ErrTransaction)
	ErrTokenAccountFlagMissing     = fmt.Errorf("%w: 'has_token_account' is not provided", ErrTransaction)
	ErrInvalidBlockhash            = fmt.Errorf("%w: invalid blockhash", ErrTransaction)
	ErrInvalidParameters           = fmt.Errorf("%w: invalid parameters", ErrTransaction)
	ErrMalformedTransaction        = fmt.Errorf("%w: malformed transaction", ErrTransaction)
	ErrUnsupportedInstruction      = fmt.Errorf("%w: unsupported instruction", ErrTransaction)
	ErrUnsupportedProgram          = fmt.Errorf("%w: unsupported program", ErrTransaction)
	ErrUnsupportedInstructionCount = fmt.Errorf("%w: unsupported instruction amount", ErrTransaction)
	ErrAccountLayout               = fmt.Errorf("%w: unexpected account layout", ErrTransaction)
	ErrNotSigned                   = fmt.Errorf("%w: transaction is not signed", ErrTransaction)
)
