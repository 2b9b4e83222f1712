package solana

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
)

// maxAccountKeys is the most keys a legacy message can index with a u8.
const maxAccountKeys = 256

type keyFlags struct {
	signer   bool
	writable bool
}

// compileMessage builds a legacy message for the given instructions.
//
// Account keys are laid out the way the Solana runtime SDK compiles them, so
// the serialized bytes match what validators and other wallets produce:
//
//	[payer] [writable signers] [readonly signers] [writable] [readonly]
//
// Within each group keys are ordered by their raw bytes. A key referenced by
// several instructions gets the union of its signer and writable flags.
// Program IDs enter as readonly non-signers.
//
// solana.NewTransaction keeps insertion order instead, which yields a valid
// but different byte layout, so it is not used here.
func compileMessage(payer solana.PublicKey, instructions []solana.Instruction, blockhash solana.Hash) (*solana.Message, error) {
	flags := map[solana.PublicKey]*keyFlags{
		payer: {signer: true, writable: true},
	}
	lookup := func(key solana.PublicKey) *keyFlags {
		f, ok := flags[key]
		if !ok {
			f = &keyFlags{}
			flags[key] = f
		}
		return f
	}

	for _, inst := range instructions {
		lookup(inst.ProgramID())
		for _, meta := range inst.Accounts() {
			f := lookup(meta.PublicKey)
			f.signer = f.signer || meta.IsSigner
			f.writable = f.writable || meta.IsWritable
		}
	}

	var writableSigners, readonlySigners, writable, readonly solana.PublicKeySlice
	for key, f := range flags {
		if key.Equals(payer) {
			continue
		}
		switch {
		case f.signer && f.writable:
			writableSigners = append(writableSigners, key)
		case f.signer:
			readonlySigners = append(readonlySigners, key)
		case f.writable:
			writable = append(writable, key)
		default:
			readonly = append(readonly, key)
		}
	}
	for _, group := range []solana.PublicKeySlice{writableSigners, readonlySigners, writable, readonly} {
		sortKeys(group)
	}

	keys := make(solana.PublicKeySlice, 0, len(flags))
	keys = append(keys, payer)
	keys = append(keys, writableSigners...)
	keys = append(keys, readonlySigners...)
	keys = append(keys, writable...)
	keys = append(keys, readonly...)
	if len(keys) > maxAccountKeys {
		return nil, fmt.Errorf("%w: %d account keys exceeds %d", ErrInvalidParameters, len(keys), maxAccountKeys)
	}

	index := make(map[solana.PublicKey]uint16, len(keys))
	for i, key := range keys {
		index[key] = uint16(i)
	}

	msg := &solana.Message{
		AccountKeys: keys,
		Header: solana.MessageHeader{
			NumRequiredSignatures:       uint8(1 + len(writableSigners) + len(readonlySigners)),
			NumReadonlySignedAccounts:   uint8(len(readonlySigners)),
			NumReadonlyUnsignedAccounts: uint8(len(readonly)),
		},
		RecentBlockhash: blockhash,
	}

	for i, inst := range instructions {
		data, err := inst.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to encode instruction %d: %w", i, err)
		}
		accounts := inst.Accounts()
		compiled := solana.CompiledInstruction{
			ProgramIDIndex: index[inst.ProgramID()],
			Accounts:       make([]uint16, len(accounts)),
			Data:           data,
		}
		for j, meta := range accounts {
			compiled.Accounts[j] = index[meta.PublicKey]
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}

	return msg, nil
}

func sortKeys(keys solana.PublicKeySlice) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
}

// resolvedInstruction is a compiled instruction with its indices replaced by keys.
type resolvedInstruction struct {
	programID solana.PublicKey
	accounts  solana.AccountMetaSlice
	data      []byte
}

// resolveInstructions maps every compiled instruction back to account metas,
// failing on any index outside the key table.
func resolveInstructions(msg *solana.Message) ([]resolvedInstruction, error) {
	out := make([]resolvedInstruction, 0, len(msg.Instructions))
	for i, inst := range msg.Instructions {
		programID, err := msg.ResolveProgramIDIndex(inst.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: instruction %d: program index %d: %v", ErrMalformedTransaction, i, inst.ProgramIDIndex, err)
		}
		metas := make(solana.AccountMetaSlice, 0, len(inst.Accounts))
		for _, idx := range inst.Accounts {
			if int(idx) >= len(msg.AccountKeys) {
				return nil, fmt.Errorf("%w: instruction %d: account index %d out of range", ErrMalformedTransaction, i, idx)
			}
			key := msg.AccountKeys[idx]
			metas = append(metas, solana.NewAccountMeta(key, msg.IsWritableStatic(key), msg.IsSigner(key)))
		}
		out = append(out, resolvedInstruction{
			programID: programID,
			accounts:  metas,
			data:      inst.Data,
		})
	}
	return out, nil
}
