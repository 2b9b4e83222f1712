package solana

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/mr-tron/base58"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.SystemProgramID

	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.TokenProgramID

	// AssociatedTokenProgramID is the SPL Associated Token Account program
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
)

// Minimum account counts for the instructions we decode. Extra trailing
// accounts (multisig signers, the legacy rent sysvar) are tolerated.
const (
	systemTransferAccounts        = 2 // [funding, recipient]
	transferCheckedAccounts       = 4 // [source, mint, destination, owner]
	associatedTokenCreateAccounts = 4 // [funding, ata, wallet, mint, ...]
)

// createProgramAccounts are the programs an associated token create lists
// after its four data accounts, when present.
var createProgramAccounts = []solana.PublicKey{
	SystemProgramID,
	TokenProgramID,
}

// instructionShape maps an ordered list of programs to the decoder that turns
// a matching instruction list into transfer parameters.
type instructionShape struct {
	name     Shape
	programs []solana.PublicKey
	decode   func(insts []resolvedInstruction) (*TransactionParameters, error)
}

// shapes is the dispatch table for TransactionFromBytes. Add a row to accept
// a new instruction layout.
var shapes = []instructionShape{
	{
		name:     ShapeSystemTransfer,
		programs: []solana.PublicKey{SystemProgramID},
		decode:   decodeSystemTransfer,
	},
	{
		name:     ShapeTokenTransfer,
		programs: []solana.PublicKey{TokenProgramID},
		decode:   decodeTokenTransfer,
	},
	{
		name:     ShapeCreateAccountTransfer,
		programs: []solana.PublicKey{AssociatedTokenProgramID, TokenProgramID},
		decode:   decodeCreateAccountTransfer,
	},
}

// TransactionFromBytes decodes wire bytes produced by ToBytes, or by any
// wallet emitting one of the supported instruction layouts.
//
// Both full transactions and bare messages are accepted. The first
// signature, if present and non-zero, is attached to the result.
func TransactionFromBytes(b []byte) (*Transaction, error) {
	msg, signatures, err := decodeWire(b)
	if err != nil {
		return nil, err
	}

	params, err := parseMessage(msg)
	if err != nil {
		return nil, err
	}

	tx := NewTransaction(*params)
	if len(signatures) > 0 && !signatures[0].IsZero() {
		tx.signature = make([]byte, SignatureLength)
		copy(tx.signature, signatures[0][:])
	}
	return tx, nil
}

// TransactionFromBase58 decodes a base58 string produced by ToBase58.
func TransactionFromBase58(s string) (*Transaction, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base58: %v", ErrMalformedTransaction, err)
	}
	return TransactionFromBytes(b)
}

// TransactionFromBase64 decodes a standard base64 string produced by ToBase64.
func TransactionFromBase64(s string) (*Transaction, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedTransaction, err)
	}
	return TransactionFromBytes(b)
}

// decodeWire splits b into a message and its signatures.
//
// A full transaction must consume every byte and carry exactly as many
// signatures as the header requires. Anything else is retried as a bare
// message, which has no signatures.
func decodeWire(b []byte) (*solana.Message, []solana.Signature, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: empty input", ErrMalformedTransaction)
	}

	var tx solana.Transaction
	dec := bin.NewBinDecoder(b)
	if err := tx.UnmarshalWithDecoder(dec); err == nil &&
		dec.Remaining() == 0 &&
		len(tx.Signatures) == int(tx.Message.Header.NumRequiredSignatures) {
		if err := checkLegacy(&tx.Message); err != nil {
			return nil, nil, err
		}
		return &tx.Message, tx.Signatures, nil
	}

	var msg solana.Message
	dec = bin.NewBinDecoder(b)
	if err := msg.UnmarshalWithDecoder(dec); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if dec.Remaining() != 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, dec.Remaining())
	}
	if err := checkLegacy(&msg); err != nil {
		return nil, nil, err
	}
	return &msg, nil, nil
}

func checkLegacy(msg *solana.Message) error {
	if msg.IsVersioned() {
		return fmt.Errorf("%w: versioned messages are not supported", ErrMalformedTransaction)
	}
	return nil
}

// parseMessage classifies the message by instruction count and program IDs,
// then hands it to the matching shape decoder.
func parseMessage(msg *solana.Message) (*TransactionParameters, error) {
	insts, err := resolveInstructions(msg)
	if err != nil {
		return nil, err
	}

	shape, err := matchShape(insts)
	if err != nil {
		return nil, err
	}

	params, err := shape.decode(insts)
	if err != nil {
		return nil, err
	}
	params.Blockhash = msg.RecentBlockhash.String()
	return params, nil
}

func matchShape(insts []resolvedInstruction) (*instructionShape, error) {
	var candidates []*instructionShape
	for i := range shapes {
		if len(shapes[i].programs) == len(insts) {
			candidates = append(candidates, &shapes[i])
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedInstructionCount, len(insts))
	}

	// Report the mismatch of the candidate that matched the longest prefix.
	mismatchAt := -1
	for _, candidate := range candidates {
		pos := firstMismatch(candidate.programs, insts)
		if pos == len(insts) {
			return candidate, nil
		}
		if pos > mismatchAt {
			mismatchAt = pos
		}
	}
	return nil, fmt.Errorf("%w %s at instruction %d", ErrUnsupportedProgram, insts[mismatchAt].programID, mismatchAt)
}

func firstMismatch(programs []solana.PublicKey, insts []resolvedInstruction) int {
	for i, program := range programs {
		if !insts[i].programID.Equals(program) {
			return i
		}
	}
	return len(programs)
}

// decodeSystemTransfer handles a lone System Program instruction.
// Only Transfer is accepted.
func decodeSystemTransfer(insts []resolvedInstruction) (*TransactionParameters, error) {
	inst := insts[0]
	decoded, err := system.DecodeInstruction(inst.accounts, inst.data)
	if err != nil {
		return nil, fmt.Errorf("%w: system instruction: %v", ErrMalformedTransaction, err)
	}

	transfer, ok := decoded.Impl.(*system.Transfer)
	if !ok {
		return nil, fmt.Errorf("%w: system instruction %s", ErrUnsupportedInstruction, system.InstructionIDToName(decoded.TypeID.Uint32()))
	}
	if len(inst.accounts) < systemTransferAccounts {
		return nil, fmt.Errorf("%w: system transfer has %d accounts, want %d", ErrAccountLayout, len(inst.accounts), systemTransferAccounts)
	}
	if transfer.Lamports == nil {
		return nil, fmt.Errorf("%w: system transfer without lamports", ErrMalformedTransaction)
	}

	return &TransactionParameters{
		From:   AddressFromSolanaKey(transfer.GetFundingAccount().PublicKey),
		To:     AddressFromSolanaKey(transfer.GetRecipientAccount().PublicKey),
		Amount: *transfer.Lamports,
	}, nil
}

// checkedTransfer holds the named accounts of a TransferChecked instruction.
type checkedTransfer struct {
	amount   uint64
	decimals uint8
	source   solana.PublicKey
	mint     solana.PublicKey
	dest     solana.PublicKey
	owner    solana.PublicKey
}

func decodeTransferChecked(inst resolvedInstruction) (*checkedTransfer, error) {
	decoded, err := token.DecodeInstruction(inst.accounts, inst.data)
	if err != nil {
		return nil, fmt.Errorf("%w: token instruction: %v", ErrMalformedTransaction, err)
	}
	transfer, ok := decoded.Impl.(*token.TransferChecked)
	if !ok {
		return nil, fmt.Errorf("%w: token instruction %s", ErrUnsupportedInstruction, token.InstructionIDToName(decoded.TypeID.Uint8()))
	}
	// The account getters below index without bounds checks.
	if len(inst.accounts) < transferCheckedAccounts {
		return nil, fmt.Errorf("%w: token transfer has %d accounts, want at least %d", ErrAccountLayout, len(inst.accounts), transferCheckedAccounts)
	}
	if transfer.Amount == nil || transfer.Decimals == nil {
		return nil, fmt.Errorf("%w: token transfer without amount or decimals", ErrMalformedTransaction)
	}

	return &checkedTransfer{
		amount:   *transfer.Amount,
		decimals: *transfer.Decimals,
		source:   transfer.GetSourceAccount().PublicKey,
		mint:     transfer.GetMintAccount().PublicKey,
		dest:     transfer.GetDestinationAccount().PublicKey,
		owner:    transfer.GetOwnerAccount().PublicKey,
	}, nil
}

// decodeTokenTransfer handles a lone SPL Token instruction. Only
// TransferChecked is accepted.
//
// The recipient wallet cannot be recovered from a token account, so To is
// the destination token account itself.
func decodeTokenTransfer(insts []resolvedInstruction) (*TransactionParameters, error) {
	transfer, err := decodeTransferChecked(insts[0])
	if err != nil {
		return nil, err
	}

	mint := AddressFromSolanaKey(transfer.mint)
	params := &TransactionParameters{
		Token:           &mint,
		HasTokenAccount: BoolPtr(true),
		From:            AddressFromSolanaKey(transfer.owner),
		To:              AddressFromSolanaKey(transfer.dest),
		Amount:          transfer.amount,
	}
	if err := params.setTokenDetails(transfer); err != nil {
		return nil, err
	}
	return params, nil
}

// decodeCreateAccountTransfer handles Create (Associated Token Account)
// followed by TransferChecked. The first instruction names the funding and
// funded wallets and the mint; the second carries the amount.
func decodeCreateAccountTransfer(insts []resolvedInstruction) (*TransactionParameters, error) {
	create := insts[0]
	if len(create.accounts) < associatedTokenCreateAccounts {
		return nil, fmt.Errorf("%w: associated token create has %d accounts, want at least %d", ErrAccountLayout, len(create.accounts), associatedTokenCreateAccounts)
	}
	// Older clients send Create with empty data.
	if len(create.data) > 0 && create.data[0] != AssociatedTokenCreateInstruction {
		return nil, fmt.Errorf("%w: associated token instruction %d", ErrUnsupportedInstruction, create.data[0])
	}

	var (
		funding = create.accounts[0].PublicKey
		ata     = create.accounts[1].PublicKey
		wallet  = create.accounts[2].PublicKey
		mint    = create.accounts[3].PublicKey
	)
	for i, program := range createProgramAccounts {
		idx := associatedTokenCreateAccounts + i
		if idx >= len(create.accounts) {
			break
		}
		if got := create.accounts[idx].PublicKey; !got.Equals(program) {
			return nil, fmt.Errorf("%w: associated token create account %d is %s, want %s", ErrAccountLayout, idx, got, program)
		}
	}

	transfer, err := decodeTransferChecked(insts[1])
	if err != nil {
		return nil, err
	}
	switch {
	case !transfer.mint.Equals(mint):
		return nil, fmt.Errorf("%w: transfer mint %s differs from created account mint %s", ErrAccountLayout, transfer.mint, mint)
	case !transfer.dest.Equals(ata):
		return nil, fmt.Errorf("%w: transfer destination %s is not the created account %s", ErrAccountLayout, transfer.dest, ata)
	case !transfer.owner.Equals(funding):
		return nil, fmt.Errorf("%w: transfer owner %s is not the funding account %s", ErrAccountLayout, transfer.owner, funding)
	}

	mintAddr := AddressFromSolanaKey(mint)
	params := &TransactionParameters{
		Token:           &mintAddr,
		HasTokenAccount: BoolPtr(false),
		From:            AddressFromSolanaKey(funding),
		To:              AddressFromSolanaKey(wallet),
		Amount:          transfer.amount,
	}
	if err := params.setTokenDetails(transfer); err != nil {
		return nil, err
	}
	return params, nil
}

// setTokenDetails records whatever the builder cannot re-derive on its own,
// so that re-encoding the decoded parameters reproduces the same bytes.
func (p *TransactionParameters) setTokenDetails(transfer *checkedTransfer) error {
	if transfer.decimals != DefaultTokenDecimals {
		decimals := transfer.decimals
		p.Decimals = &decimals
	}

	from, err := p.From.Pubkey()
	if err != nil {
		return err
	}
	to, err := p.To.Pubkey()
	if err != nil {
		return err
	}

	derivedSource, err := associatedTokenAddress(from, transfer.mint)
	if err != nil {
		return err
	}
	if !derivedSource.Equals(transfer.source) {
		p.SourceTokenAccount = AddressPtr(AddressFromSolanaKey(transfer.source))
	}

	derivedDest, err := associatedTokenAddress(to, transfer.mint)
	if err != nil {
		return err
	}
	if !derivedDest.Equals(transfer.dest) {
		p.DestinationTokenAccount = AddressPtr(AddressFromSolanaKey(transfer.dest))
	}
	return nil
}
