package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Associated Token Account program instruction discriminants.
const (
	AssociatedTokenCreateInstruction = uint8(0)
)

// resolvedParameters holds TransactionParameters decoded into solana-go keys.
type resolvedParameters struct {
	from      solana.PublicKey
	to        solana.PublicKey
	blockhash solana.Hash
	mint      solana.PublicKey
	source    solana.PublicKey // token account debited
	dest      solana.PublicKey // token account credited
}

func (p TransactionParameters) resolve() (*resolvedParameters, error) {
	var (
		r   resolvedParameters
		err error
	)
	if r.from, err = p.From.Pubkey(); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if r.to, err = p.To.Pubkey(); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	if r.blockhash, err = solana.HashFromBase58(p.Blockhash); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBlockhash, p.Blockhash, err)
	}
	if !p.IsTokenTransfer() {
		return &r, nil
	}

	if r.mint, err = p.Token.Pubkey(); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if r.source, err = tokenAccount(p.SourceTokenAccount, r.from, r.mint); err != nil {
		return nil, fmt.Errorf("source token account: %w", err)
	}
	if r.dest, err = tokenAccount(p.DestinationTokenAccount, r.to, r.mint); err != nil {
		return nil, fmt.Errorf("destination token account: %w", err)
	}
	return &r, nil
}

func tokenAccount(explicit *Address, wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	if explicit != nil {
		return explicit.Pubkey()
	}
	return associatedTokenAddress(wallet, mint)
}

// Shape reports which instruction layout the parameters compile to.
func (p TransactionParameters) Shape() (Shape, error) {
	if !p.IsTokenTransfer() {
		return ShapeSystemTransfer, nil
	}
	if p.HasTokenAccount == nil {
		return "", ErrTokenAccountFlagMissing
	}
	if *p.HasTokenAccount {
		return ShapeTokenTransfer, nil
	}
	return ShapeCreateAccountTransfer, nil
}

// Instructions derives the instruction list for the parameters.
//
// A token transfer without HasTokenAccount fails before any instruction is
// built.
func (p TransactionParameters) Instructions() ([]solana.Instruction, error) {
	shape, err := p.Shape()
	if err != nil {
		return nil, err
	}
	r, err := p.resolve()
	if err != nil {
		return nil, err
	}

	switch shape {
	case ShapeSystemTransfer:
		return []solana.Instruction{
			system.NewTransferInstruction(p.Amount, r.from, r.to).Build(),
		}, nil

	case ShapeTokenTransfer:
		return []solana.Instruction{
			newTransferChecked(p, r),
		}, nil

	case ShapeCreateAccountTransfer:
		ata, err := associatedTokenAddress(r.to, r.mint)
		if err != nil {
			return nil, err
		}
		if !ata.Equals(r.dest) {
			return nil, fmt.Errorf("%w: destination token account %s is not the associated token account of %s", ErrInvalidParameters, r.dest, r.to)
		}
		return []solana.Instruction{
			newCreateAssociatedTokenAccount(r.from, r.dest, r.to, r.mint),
			newTransferChecked(p, r),
		}, nil

	default:
		return nil, fmt.Errorf("%w: shape %q", ErrInvalidParameters, shape)
	}
}

func newTransferChecked(p TransactionParameters, r *resolvedParameters) solana.Instruction {
	return token.NewTransferCheckedInstruction(
		p.Amount,
		p.TokenDecimals(),
		r.source,
		r.mint,
		r.dest,
		r.from,
		nil,
	).Build()
}

// newCreateAssociatedTokenAccount builds the Associated Token Account
// program's Create instruction.
//
// The associatedtokenaccount package in solana-go encodes Create with empty
// data. Current wallets and the on-chain SDK send the explicit discriminant
// [0], so the instruction is assembled by hand to produce identical bytes.
//
// Account layout:
//
//	[0] = [WRITE, SIGNER] funding account
//	[1] = [WRITE] associated token account
//	[2] = [] wallet
//	[3] = [] mint
//	[4] = [] system program
//	[5] = [] token program
func newCreateAssociatedTokenAccount(funding, ata, wallet, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.Meta(funding).WRITE().SIGNER(),
			solana.Meta(ata).WRITE(),
			solana.Meta(wallet),
			solana.Meta(mint),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(solana.TokenProgramID),
		},
		[]byte{AssociatedTokenCreateInstruction},
	)
}
