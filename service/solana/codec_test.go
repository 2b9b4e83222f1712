package solana

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/solkit/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, decimals uint8) (*Codec, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCodec(decimals, metrics.NewMetrics(reg), logger), reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metricLoop:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metricLoop
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCodec_BuildAppliesDefaultDecimals(t *testing.T) {
	// Setup
	codec, reg := newTestCodec(t, 9)

	// Act
	tx, msg, err := codec.Build(context.Background(), tokenTransfer(BoolPtr(true)))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, tx.Params.Decimals)
	assert.Equal(t, uint8(9), *tx.Params.Decimals)

	decoded := decodeMessage(t, msg)
	data := decoded.Instructions[0].Data
	assert.Equal(t, byte(9), data[len(data)-1])

	assert.Equal(t, 1.0, counterValue(t, reg, "transactions_encoded_total", map[string]string{
		"shape":  string(ShapeTokenTransfer),
		"status": "success",
	}))
}

func TestCodec_BuildKeepsExplicitDecimals(t *testing.T) {
	codec, _ := newTestCodec(t, 9)
	params := tokenTransfer(BoolPtr(true))
	decimals := uint8(2)
	params.Decimals = &decimals

	tx, _, err := codec.Build(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), *tx.Params.Decimals)
}

func TestCodec_BuildLeavesPlainTransferAlone(t *testing.T) {
	codec, _ := newTestCodec(t, 9)

	tx, _, err := codec.Build(context.Background(), plainTransfer())
	require.NoError(t, err)
	assert.Nil(t, tx.Params.Decimals)
}

func TestCodec_BuildError(t *testing.T) {
	codec, reg := newTestCodec(t, DefaultTokenDecimals)

	_, _, err := codec.Build(context.Background(), tokenTransfer(nil))
	assert.ErrorIs(t, err, ErrTokenAccountFlagMissing)
	assert.Equal(t, 1.0, counterValue(t, reg, "transactions_encoded_total", map[string]string{
		"status": "error",
	}))
}

func TestCodec_SignAndDecode(t *testing.T) {
	codec, reg := newTestCodec(t, DefaultTokenDecimals)
	ctx := context.Background()

	tx, out, err := codec.Sign(ctx, tokenTransfer(BoolPtr(false)), fakeSignature(4))
	require.NoError(t, err)
	assert.True(t, tx.IsSigned())

	decoded, err := codec.Decode(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, tx.Params, decoded.Params)
	assert.Equal(t, fakeSignature(4), decoded.Signature())

	assert.Equal(t, 1.0, counterValue(t, reg, "transactions_signed_total", map[string]string{
		"mode":   "external",
		"status": "success",
	}))
	assert.Equal(t, 1.0, counterValue(t, reg, "transactions_decoded_total", map[string]string{
		"shape":  string(ShapeCreateAccountTransfer),
		"status": "success",
	}))
}

func TestCodec_SignRejectsBadSignature(t *testing.T) {
	codec, reg := newTestCodec(t, DefaultTokenDecimals)

	tx, out, err := codec.Sign(context.Background(), plainTransfer(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSignatureLength)
	assert.Nil(t, tx)
	assert.Nil(t, out)
	assert.Equal(t, 1.0, counterValue(t, reg, "transactions_signed_total", map[string]string{
		"mode":   "external",
		"status": "error",
	}))
}

func TestCodec_SignWith(t *testing.T) {
	codec, _ := newTestCodec(t, DefaultTokenDecimals)
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	params := plainTransfer()
	params.From = AddressFromSolanaKey(key.PublicKey())

	tx, _, err := codec.SignWith(context.Background(), params, key)
	require.NoError(t, err)
	assert.NoError(t, tx.VerifySignature())
}

func TestCodec_DecodeError(t *testing.T) {
	codec, reg := newTestCodec(t, DefaultTokenDecimals)

	_, err := codec.Decode(context.Background(), []byte{0xde, 0xad})
	assert.ErrorIs(t, err, ErrMalformedTransaction)
	assert.Equal(t, 1.0, counterValue(t, reg, "transactions_decoded_total", map[string]string{
		"status": "error",
	}))
}

func TestCodec_ValidateAddress(t *testing.T) {
	codec, reg := newTestCodec(t, DefaultTokenDecimals)
	ctx := context.Background()

	addr, err := codec.ValidateAddress(ctx, testFrom.String())
	require.NoError(t, err)
	assert.Equal(t, testFrom, addr)

	_, err = codec.ValidateAddress(ctx, "nope")
	assert.ErrorIs(t, err, ErrAddress)

	assert.Equal(t, 1.0, counterValue(t, reg, "address_validations_total", map[string]string{"result": "valid"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "address_validations_total", map[string]string{"result": "invalid"}))
}

func TestCodec_NilMetrics(t *testing.T) {
	codec := NewCodec(DefaultTokenDecimals, nil, nil)

	assert.NotPanics(t, func() {
		_, _, _ = codec.Build(context.Background(), plainTransfer())
		_, _ = codec.Decode(context.Background(), nil)
	})
	assert.Equal(t, DefaultTokenDecimals, codec.DefaultDecimals())
}
