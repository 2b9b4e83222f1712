package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A mainnet-style USDT transfer that creates the recipient's token account
// first. Produced by the reference Rust SDK.
const createAccountTransferBase58 = "BU8oN58NjvzGdbuQ8zGKF9cJ7N25iWRRgnLodf42gEVDnzcQ3g5y7eygBviCRQHH4sC335gt575JA2NfjpX3P7m1vZ5WYWxHem7wW3Pc4S6YYi4ftivYiGqTMr6eKtUVCbBZabwyMuZ7iGjUtTB6L7LnfQj6wGduNUqwpGPy2xD8aFps6zRfgwNAXe9tpoa3tQvTnyU8WgkpiZjkBFdfXFw8abhsUZLZsxaYra2CHmqrXwG6VFUfhTdYANPTXcBcZ2a75RmqC19d5rYJPexmpGJV529A4WXgE4Pm5Gk5AUB7LcNmAxfkKxJk3ikGohb9n3B7vJ3T9zJZg4i6xEGapobavsLwMuYkCjnRBQ69rouMCJEtz33XNuwx1ZN84cGimZV1KSbwQgcPDFzgdZR2ZisViDWAJUXkadfCfADNEME1jxmHDy7oX9gTYJvkeZAnoFjxVhKrVZft8FaADcRgNcdZJPdt9rMMSpCJXBFgBVsGaqo6iteJqg79qQrEoScRviUh6scB7iwCh"

// messageFor compiles arbitrary instructions with the same layout rules used
// for real transactions.
func messageFor(t *testing.T, instructions ...solana.Instruction) []byte {
	t.Helper()
	payer := testFrom
	payerKey, err := payer.Pubkey()
	require.NoError(t, err)

	msg, err := compileMessage(payerKey, instructions, solana.MustHashFromBase58(testBlockhash))
	require.NoError(t, err)
	b, err := msg.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestTransactionFromBase58_ReferenceVector(t *testing.T) {
	// Act
	tx, err := TransactionFromBase58(createAccountTransferBase58)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, tx.Params.Token)
	assert.Equal(t, testMint, *tx.Params.Token)
	require.NotNil(t, tx.Params.HasTokenAccount)
	assert.False(t, *tx.Params.HasTokenAccount)
	assert.Equal(t, testFrom, tx.Params.From)
	assert.Equal(t, testTo, tx.Params.To)
	assert.Equal(t, uint64(300_000), tx.Params.Amount)
	assert.Equal(t, testBlockhash, tx.Params.Blockhash)
	assert.Nil(t, tx.Params.Decimals)
	assert.Nil(t, tx.Params.SourceTokenAccount)
	assert.Nil(t, tx.Params.DestinationTokenAccount)

	id, err := tx.ToTransactionID()
	require.NoError(t, err)
	assert.Equal(t, "5ucaYpo8b1eRCN1qhadjXppnWrRMrjFaW1W6Pp223p57r7rjwvjmgyx7kR4r7nahMrZEK5sxFYSgfxByXE6u7PBa", id.String())

	assert.NoError(t, tx.VerifySignature())
}

func TestTransactionFromBase58_ReferenceVectorReencodes(t *testing.T) {
	tx, err := TransactionFromBase58(createAccountTransferBase58)
	require.NoError(t, err)

	// Re-encoding the decoded parameters reproduces the reference bytes.
	out, err := tx.ToBase58()
	require.NoError(t, err)
	assert.Equal(t, createAccountTransferBase58, out)

	// A freshly built transaction with the same parameters matches too.
	fresh := NewTransaction(tokenTransfer(BoolPtr(false)))
	_, err = fresh.Sign(tx.Signature())
	require.NoError(t, err)
	freshOut, err := fresh.ToBase58()
	require.NoError(t, err)
	assert.Equal(t, createAccountTransferBase58, freshOut)
}

func TestTransactionFromBytes_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		params TransactionParameters
	}{
		{"plain transfer", plainTransfer()},
		{"token transfer with account", tokenTransfer(BoolPtr(true))},
		{"token transfer creating account", tokenTransfer(BoolPtr(false))},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/unsigned", func(t *testing.T) {
			b, err := NewTransaction(tt.params).ToBytes()
			require.NoError(t, err)

			decoded, err := TransactionFromBytes(b)
			require.NoError(t, err)
			assert.False(t, decoded.IsSigned())
			assert.Equal(t, tt.params.From, decoded.Params.From)
			assert.Equal(t, tt.params.Amount, decoded.Params.Amount)
			assert.Equal(t, tt.params.Blockhash, decoded.Params.Blockhash)

			again, err := decoded.ToBytes()
			require.NoError(t, err)
			assert.Equal(t, b, again)
		})

		t.Run(tt.name+"/signed", func(t *testing.T) {
			tx := NewTransaction(tt.params)
			b, err := tx.Sign(fakeSignature(0xab))
			require.NoError(t, err)

			decoded, err := TransactionFromBytes(b)
			require.NoError(t, err)
			assert.Equal(t, fakeSignature(0xab), decoded.Signature())

			again, err := decoded.ToBytes()
			require.NoError(t, err)
			assert.Equal(t, b, again)
		})
	}
}

func TestTransactionFromBytes_PlainTransferFields(t *testing.T) {
	b, err := NewTransaction(plainTransfer()).ToBytes()
	require.NoError(t, err)

	decoded, err := TransactionFromBytes(b)
	require.NoError(t, err)

	assert.Equal(t, plainTransfer(), decoded.Params)
}

func TestTransactionFromBytes_TokenTransferUsesTokenAccount(t *testing.T) {
	b, err := NewTransaction(tokenTransfer(BoolPtr(true))).ToBytes()
	require.NoError(t, err)

	decoded, err := TransactionFromBytes(b)
	require.NoError(t, err)

	destATA, err := testTo.AssociatedTokenAddress(testMint)
	require.NoError(t, err)

	// Only the destination token account is on the wire, so it stands in for To.
	assert.Equal(t, destATA, decoded.Params.To)
	require.NotNil(t, decoded.Params.DestinationTokenAccount)
	assert.Equal(t, destATA, *decoded.Params.DestinationTokenAccount)
	assert.Nil(t, decoded.Params.SourceTokenAccount)
	assert.True(t, *decoded.Params.HasTokenAccount)
}

func TestTransactionFromBytes_ZeroSignatureIsUnsigned(t *testing.T) {
	tx := NewTransaction(plainTransfer())
	b, err := tx.Sign(make([]byte, SignatureLength))
	require.NoError(t, err)

	decoded, err := TransactionFromBytes(b)
	require.NoError(t, err)
	assert.False(t, decoded.IsSigned())

	_, err = decoded.ToTransactionID()
	assert.ErrorIs(t, err, ErrNotSigned)
}

func TestTransactionFromBytes_KeepsNonDefaultDecimals(t *testing.T) {
	params := tokenTransfer(BoolPtr(false))
	decimals := uint8(2)
	params.Decimals = &decimals

	b, err := NewTransaction(params).ToBytes()
	require.NoError(t, err)

	decoded, err := TransactionFromBytes(b)
	require.NoError(t, err)
	require.NotNil(t, decoded.Params.Decimals)
	assert.Equal(t, uint8(2), *decoded.Params.Decimals)
}

func TestTransactionFromBytes_Unsupported(t *testing.T) {
	from := solana.MustPublicKeyFromBase58(testFrom.String())
	to := solana.MustPublicKeyFromBase58(testTo.String())
	mint := solana.MustPublicKeyFromBase58(testMint.String())
	transfer := func() solana.Instruction {
		return system.NewTransferInstruction(1, from, to).Build()
	}

	tests := []struct {
		name    string
		message []byte
		wantErr error
	}{
		{
			name:    "three instructions",
			message: messageFor(t, transfer(), transfer(), transfer()),
			wantErr: ErrUnsupportedInstructionCount,
		},
		{
			name:    "zero instructions",
			message: messageFor(t),
			wantErr: ErrUnsupportedInstructionCount,
		},
		{
			name:    "unknown single program",
			message: messageFor(t, solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{solana.Meta(from).SIGNER()}, []byte("hi"))),
			wantErr: ErrUnsupportedProgram,
		},
		{
			name:    "two system transfers",
			message: messageFor(t, transfer(), transfer()),
			wantErr: ErrUnsupportedProgram,
		},
		{
			name: "token before associated token",
			message: messageFor(t,
				token.NewTransferCheckedInstruction(1, 6, from, mint, to, from, nil).Build(),
				newCreateAssociatedTokenAccount(from, to, to, mint),
			),
			wantErr: ErrUnsupportedProgram,
		},
		{
			name:    "system assign",
			message: messageFor(t, system.NewAssignInstruction(to, from).Build()),
			wantErr: ErrUnsupportedInstruction,
		},
		{
			name:    "token plain transfer",
			message: messageFor(t, token.NewTransferInstruction(1, from, to, from, nil).Build()),
			wantErr: ErrUnsupportedInstruction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := TransactionFromBytes(tt.message)
			require.Error(t, err)
			assert.Nil(t, tx)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrTransaction)
			assert.Contains(t, err.Error(), "unsupported")
		})
	}
}

func TestTransactionFromBytes_ShortAccountList(t *testing.T) {
	from := solana.MustPublicKeyFromBase58(testFrom.String())
	mint := solana.MustPublicKeyFromBase58(testMint.String())

	// TransferChecked data with only three accounts
	data := []byte{12, 1, 0, 0, 0, 0, 0, 0, 0, 6}
	inst := solana.NewInstruction(solana.TokenProgramID, solana.AccountMetaSlice{
		solana.Meta(from).WRITE().SIGNER(),
		solana.Meta(mint),
		solana.Meta(from).WRITE(),
	}, data)

	_, err := TransactionFromBytes(messageFor(t, inst))
	assert.ErrorIs(t, err, ErrAccountLayout)
}

func TestTransactionFromBytes_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"garbage", []byte{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TransactionFromBytes(tt.input)
			assert.ErrorIs(t, err, ErrMalformedTransaction)
		})
	}

	b, err := NewTransaction(plainTransfer()).ToBytes()
	require.NoError(t, err)
	_, err = TransactionFromBytes(append(b, 0))
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestTransactionFromBase58_InvalidEncoding(t *testing.T) {
	_, err := TransactionFromBase58("0OIl")
	assert.ErrorIs(t, err, ErrMalformedTransaction)

	_, err = TransactionFromBase64("!!!")
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

// createAccountTransferMessage pairs an associated token create, laid out with
// layout and createData, with a TransferChecked into the new account.
func createAccountTransferMessage(t *testing.T, layout func(from, ata, wallet, mint solana.PublicKey) solana.AccountMetaSlice, createData []byte) []byte {
	t.Helper()
	key := func(a Address) solana.PublicKey {
		k, err := a.Pubkey()
		require.NoError(t, err)
		return k
	}
	from, wallet, mint := key(testFrom), key(testTo), key(testMint)

	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	source, _, err := solana.FindAssociatedTokenAddress(from, mint)
	require.NoError(t, err)

	create := solana.NewInstruction(AssociatedTokenProgramID, layout(from, ata, wallet, mint), createData)
	transfer := token.NewTransferCheckedInstruction(300_000, DefaultTokenDecimals, source, mint, ata, from, nil).Build()
	return messageFor(t, create, transfer)
}

func createAccounts(programs ...solana.PublicKey) func(from, ata, wallet, mint solana.PublicKey) solana.AccountMetaSlice {
	return func(from, ata, wallet, mint solana.PublicKey) solana.AccountMetaSlice {
		metas := solana.AccountMetaSlice{
			solana.Meta(from).WRITE().SIGNER(),
			solana.Meta(ata).WRITE(),
			solana.Meta(wallet),
			solana.Meta(mint),
		}
		for _, p := range programs {
			metas = append(metas, solana.Meta(p))
		}
		return metas
	}
}

func TestTransactionFromBytes_AssociatedTokenCreateVariants(t *testing.T) {
	tests := []struct {
		name     string
		accounts func(from, ata, wallet, mint solana.PublicKey) solana.AccountMetaSlice
		data     []byte
		wantErr  error
	}{
		{
			name:     "create",
			accounts: createAccounts(SystemProgramID, TokenProgramID),
			data:     []byte{AssociatedTokenCreateInstruction},
		},
		{
			name:     "legacy create with empty data",
			accounts: createAccounts(SystemProgramID, TokenProgramID),
			data:     nil,
		},
		{
			name:     "data accounts only",
			accounts: createAccounts(),
			data:     []byte{AssociatedTokenCreateInstruction},
		},
		{
			name:     "create idempotent",
			accounts: createAccounts(SystemProgramID, TokenProgramID),
			data:     []byte{1},
			wantErr:  ErrUnsupportedInstruction,
		},
		{
			name:     "wrong system program",
			accounts: createAccounts(solana.MemoProgramID, TokenProgramID),
			data:     []byte{AssociatedTokenCreateInstruction},
			wantErr:  ErrAccountLayout,
		},
		{
			name:     "wrong token program",
			accounts: createAccounts(SystemProgramID, solana.Token2022ProgramID),
			data:     []byte{AssociatedTokenCreateInstruction},
			wantErr:  ErrAccountLayout,
		},
		{
			name:     "programs swapped",
			accounts: createAccounts(TokenProgramID, SystemProgramID),
			data:     []byte{AssociatedTokenCreateInstruction},
			wantErr:  ErrAccountLayout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			tx, err := TransactionFromBytes(createAccountTransferMessage(t, tt.accounts, tt.data))

			// Assert
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, tx)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testFrom, tx.Params.From)
			assert.Equal(t, testTo, tx.Params.To, "To is the wallet, not the created account")
			assert.Equal(t, uint64(300_000), tx.Params.Amount)
			require.NotNil(t, tx.Params.Token)
			assert.Equal(t, testMint, *tx.Params.Token)
			require.NotNil(t, tx.Params.HasTokenAccount)
			assert.False(t, *tx.Params.HasTokenAccount)
			assert.True(t, tx.Params.IsTokenTransfer())
		})
	}
}
