package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyOf(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	return k
}

func TestCompileMessage_GroupOrdering(t *testing.T) {
	// Setup
	payer := keyOf(0x90)
	program := keyOf(0x05)
	inst := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(keyOf(0x40)),                  // readonly
		solana.Meta(keyOf(0x30)).WRITE(),          // writable
		solana.Meta(keyOf(0x20)).SIGNER(),         // readonly signer
		solana.Meta(keyOf(0x10)).WRITE().SIGNER(), // writable signer
		solana.Meta(keyOf(0x31)).WRITE(),
	}, []byte{1})

	// Act
	msg, err := compileMessage(payer, []solana.Instruction{inst}, solana.Hash{})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, solana.PublicKeySlice{
		payer,
		keyOf(0x10),
		keyOf(0x20),
		keyOf(0x30), keyOf(0x31),
		keyOf(0x05), keyOf(0x40),
	}, msg.AccountKeys)
	assert.Equal(t, solana.MessageHeader{
		NumRequiredSignatures:       3,
		NumReadonlySignedAccounts:   1,
		NumReadonlyUnsignedAccounts: 2,
	}, msg.Header)

	require.Len(t, msg.Instructions, 1)
	assert.Equal(t, uint16(5), msg.Instructions[0].ProgramIDIndex)
	assert.Equal(t, []uint16{6, 3, 2, 1, 4}, msg.Instructions[0].Accounts)
}

func TestCompileMessage_MergesFlags(t *testing.T) {
	payer := keyOf(0x90)
	shared := keyOf(0x10)
	program := keyOf(0x05)

	first := solana.NewInstruction(program, solana.AccountMetaSlice{solana.Meta(shared)}, nil)
	second := solana.NewInstruction(program, solana.AccountMetaSlice{solana.Meta(shared).WRITE()}, nil)

	msg, err := compileMessage(payer, []solana.Instruction{first, second}, solana.Hash{})
	require.NoError(t, err)

	// Each key appears once, with the union of its flags.
	require.Len(t, msg.AccountKeys, 3)
	assert.Equal(t, shared, msg.AccountKeys[1])
	assert.True(t, msg.IsWritableStatic(shared))
	assert.Equal(t, uint8(1), msg.Header.NumReadonlyUnsignedAccounts)
}

func TestCompileMessage_PayerAlwaysFirst(t *testing.T) {
	payer := keyOf(0xff)
	inst := solana.NewInstruction(keyOf(0x01), solana.AccountMetaSlice{
		solana.Meta(keyOf(0x02)).WRITE().SIGNER(),
		solana.Meta(payer),
	}, nil)

	msg, err := compileMessage(payer, []solana.Instruction{inst}, solana.Hash{})
	require.NoError(t, err)

	assert.Equal(t, payer, msg.AccountKeys[0])
	assert.True(t, msg.IsSigner(payer))
	assert.True(t, msg.IsWritableStatic(payer))
}

func TestCompileMessage_TooManyKeys(t *testing.T) {
	metas := make(solana.AccountMetaSlice, 0, maxAccountKeys)
	for i := 0; i < maxAccountKeys; i++ {
		var k solana.PublicKey
		k[0] = byte(i)
		k[1] = 1
		metas = append(metas, solana.Meta(k))
	}
	inst := solana.NewInstruction(keyOf(0x01), metas, nil)

	_, err := compileMessage(keyOf(0x02), []solana.Instruction{inst}, solana.Hash{})
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestResolveInstructions_OutOfRange(t *testing.T) {
	msg := &solana.Message{
		AccountKeys: solana.PublicKeySlice{keyOf(1), keyOf(2)},
		Header:      solana.MessageHeader{NumRequiredSignatures: 1},
		Instructions: []solana.CompiledInstruction{
			{ProgramIDIndex: 1, Accounts: []uint16{0, 7}},
		},
	}

	_, err := resolveInstructions(msg)
	assert.ErrorIs(t, err, ErrMalformedTransaction)

	msg.Instructions[0] = solana.CompiledInstruction{ProgramIDIndex: 9}
	_, err = resolveInstructions(msg)
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestResolveInstructions_RestoresFlags(t *testing.T) {
	payer := keyOf(0x90)
	inst := solana.NewInstruction(keyOf(0x05), solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(keyOf(0x10)).WRITE(),
		solana.Meta(keyOf(0x20)),
	}, []byte{7, 8})

	msg, err := compileMessage(payer, []solana.Instruction{inst}, solana.Hash{})
	require.NoError(t, err)

	resolved, err := resolveInstructions(msg)
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	got := resolved[0]
	assert.Equal(t, keyOf(0x05), got.programID)
	assert.Equal(t, []byte{7, 8}, got.data)
	require.Len(t, got.accounts, 3)
	assert.True(t, got.accounts[0].IsSigner)
	assert.True(t, got.accounts[0].IsWritable)
	assert.True(t, got.accounts[1].IsWritable)
	assert.False(t, got.accounts[1].IsSigner)
	assert.False(t, got.accounts[2].IsWritable)
}
