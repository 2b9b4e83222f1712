package solana

import (
	"github.com/mr-tron/base58"
)

// DefaultTokenDecimals is the precision written into TransferChecked when the
// caller does not supply one. It is not read from the mint.
const DefaultTokenDecimals uint8 = 6

// TransactionParameters describes a single transfer.
// This is our domain model, independent of the wire format.
type TransactionParameters struct {
	Token           *Address `json:"token,omitempty"`             // nil for native SOL transfers
	HasTokenAccount *bool    `json:"has_token_account,omitempty"` // required when Token is set
	From            Address  `json:"from"`
	To              Address  `json:"to"`
	Amount          uint64   `json:"amount"`
	Blockhash       string   `json:"blockhash"`

	Decimals *uint8 `json:"decimals,omitempty"` // nil means DefaultTokenDecimals

	// Explicit token accounts. nil means the associated token account of
	// From (source) or To (destination) for Token.
	SourceTokenAccount      *Address `json:"source_token_account,omitempty"`
	DestinationTokenAccount *Address `json:"destination_token_account,omitempty"`
}

// IsTokenTransfer reports whether the parameters describe an SPL token transfer.
func (p TransactionParameters) IsTokenTransfer() bool {
	return p.Token != nil
}

// TokenDecimals returns the decimals used for TransferChecked.
func (p TransactionParameters) TokenDecimals() uint8 {
	if p.Decimals == nil {
		return DefaultTokenDecimals
	}
	return *p.Decimals
}

// TransactionID identifies a signed transaction. It is the fee payer's signature.
type TransactionID [SignatureLength]byte

func (id TransactionID) String() string {
	return base58.Encode(id[:])
}

// Bytes returns a copy of the raw signature.
func (id TransactionID) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}

// Shape names the instruction layout a set of parameters compiles to.
type Shape string

const (
	ShapeSystemTransfer        Shape = "system_transfer"
	ShapeTokenTransfer         Shape = "token_transfer"
	ShapeCreateAccountTransfer Shape = "create_account_and_token_transfer"
)

// BoolPtr returns a pointer to b. Handy for HasTokenAccount.
func BoolPtr(b bool) *bool {
	return &b
}

// AddressPtr returns a pointer to a.
func AddressPtr(a Address) *Address {
	return &a
}
