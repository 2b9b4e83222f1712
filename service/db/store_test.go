package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brojonat/solkit/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFrom = "8gvxAVripdzJ7nDNt1tPQWtmeHkq2nrgpe1BRYWMWUUo"
	testTo   = "AN6yLuRMsyCsj178nhihPdX3DaKUYsaRdD5L3DfNWPDZ"
	testMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

func preparedParams(message []byte) RecordPreparedParams {
	mint := testMint
	decimals := uint8(6)
	return RecordPreparedParams{
		Shape:       "token_transfer",
		FromAddress: testFrom,
		ToAddress:   testTo,
		TokenMint:   &mint,
		Amount:      10_000_000_000_000_000_000,
		Decimals:    &decimals,
		Blockhash:   "7qBDZrk4jHFY4cix2FiAtPW5WqExahsB4w9PcBFkctvi",
		Message:     message,
	}
}

func TestMessageDigest(t *testing.T) {
	a := MessageDigest([]byte{1, 2, 3})
	b := MessageDigest([]byte{1, 2, 3})
	c := MessageDigest([]byte{1, 2, 4})

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRecordPrepared(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	params := preparedParams([]byte("message-1"))

	t.Run("insert", func(t *testing.T) {
		entry, err := store.RecordPrepared(ctx, params)
		require.NoError(t, err)

		assert.Equal(t, MessageDigest(params.Message), entry.MessageDigest)
		assert.Equal(t, "token_transfer", entry.Shape)
		assert.Equal(t, testFrom, entry.FromAddress)
		assert.Equal(t, testTo, entry.ToAddress)
		require.NotNil(t, entry.TokenMint)
		assert.Equal(t, testMint, *entry.TokenMint)
		// Above the int64 range; stored as NUMERIC.
		assert.Equal(t, uint64(10_000_000_000_000_000_000), entry.Amount)
		require.NotNil(t, entry.Decimals)
		assert.Equal(t, uint8(6), *entry.Decimals)
		assert.Equal(t, StatusPrepared, entry.Status)
		assert.Nil(t, entry.TransactionID)
		assert.Nil(t, entry.SignedAt)
		assert.WithinDuration(t, time.Now(), entry.CreatedAt, 5*time.Second)
	})

	t.Run("idempotent", func(t *testing.T) {
		again, err := store.RecordPrepared(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, StatusPrepared, again.Status)
	})

	t.Run("native transfer", func(t *testing.T) {
		native := preparedParams([]byte("message-2"))
		native.Shape = "system_transfer"
		native.TokenMint = nil
		native.Decimals = nil
		native.Amount = 1

		entry, err := store.RecordPrepared(ctx, native)
		require.NoError(t, err)
		assert.Nil(t, entry.TokenMint)
		assert.Nil(t, entry.Decimals)
	})
}

func TestRecordSigned(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	params := preparedParams([]byte("message-signed"))
	_, err := store.RecordPrepared(ctx, params)
	require.NoError(t, err)

	entry, err := store.RecordSigned(ctx, RecordSignedParams{
		Message:           params.Message,
		TransactionID:     "txid-1",
		SignedTransaction: []byte("signed-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSigned, entry.Status)
	require.NotNil(t, entry.TransactionID)
	assert.Equal(t, "txid-1", *entry.TransactionID)
	assert.Equal(t, []byte("signed-bytes"), entry.SignedTransaction)
	assert.NotNil(t, entry.SignedAt)

	byID, err := store.GetByTransactionID(ctx, "txid-1")
	require.NoError(t, err)
	assert.Equal(t, entry.MessageDigest, byID.MessageDigest)

	_, err = store.RecordSigned(ctx, RecordSignedParams{Message: []byte("unknown"), TransactionID: "txid-2"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetNotFound(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()

	ctx := context.Background()
	_, err := store.GetByDigest(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByTransactionID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByAddress(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	for _, m := range []string{"a", "b", "c"} {
		_, err := store.RecordPrepared(ctx, preparedParams([]byte(m)))
		require.NoError(t, err)
	}

	entries, err := store.ListByAddress(ctx, ListByAddressParams{Address: testTo, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	page, err := store.ListByAddress(ctx, ListByAddressParams{Address: testFrom, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	none, err := store.ListByAddress(ctx, ListByAddressParams{Address: "nobody", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// dbOperations sums db_operations_total by status label.
func dbOperations(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "db_operations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" {
					counts[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return counts
}

func TestStoreObserve(t *testing.T) {
	// Setup
	reg := prometheus.NewRegistry()
	s := &Store{metrics: metrics.NewMetrics(reg)}

	// Act
	for _, err := range []error{
		nil,
		ErrNotFound,
		fmt.Errorf("lookup: %w", ErrNotFound),
		errors.New("connection reset"),
	} {
		func() {
			defer s.observe("get_by_digest", &err)()
		}()
	}

	// Assert
	counts := dbOperations(t, reg)
	assert.Equal(t, 3.0, counts["success"])
	assert.Equal(t, 1.0, counts["error"])
}

func TestStoreObserve_NilMetrics(t *testing.T) {
	s := &Store{}
	var err error
	assert.NotPanics(t, func() {
		s.observe("get_by_digest", &err)()
	})
}
