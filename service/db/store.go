package db

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/brojonat/solkit/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const table = "solana_transactions"

// Journal entry statuses.
const (
	StatusPrepared = "prepared"
	StatusSigned   = "signed"
)

// ErrNotFound is returned when no journal entry matches a lookup.
var ErrNotFound = errors.New("journal entry not found")

// Store journals built and signed transactions in Postgres.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// JournalEntry is one transaction message seen by the service, keyed by the
// digest of its unsigned message bytes.
type JournalEntry struct {
	MessageDigest     string
	Shape             string
	FromAddress       string
	ToAddress         string
	TokenMint         *string // nil for native SOL
	Amount            uint64
	Decimals          *uint8
	Blockhash         string
	Message           []byte
	Status            string
	TransactionID     *string
	SignedTransaction []byte
	CreatedAt         time.Time
	SignedAt          *time.Time
}

// RecordPreparedParams contains the parameters for journaling a built message.
type RecordPreparedParams struct {
	Shape       string
	FromAddress string
	ToAddress   string
	TokenMint   *string
	Amount      uint64
	Decimals    *uint8
	Blockhash   string
	Message     []byte
}

// RecordSignedParams contains the parameters for marking a message as signed.
type RecordSignedParams struct {
	Message           []byte
	TransactionID     string
	SignedTransaction []byte
}

// ListByAddressParams contains pagination parameters.
type ListByAddressParams struct {
	Address string
	Limit   int32
	Offset  int32
}

// MessageDigest returns the journal key for an unsigned message.
func MessageDigest(message []byte) string {
	sum := sha256.Sum256(message)
	return hex.EncodeToString(sum[:])
}

// Migrate creates the journal table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const entryColumns = `message_digest, shape, from_address, to_address, token_mint,
	amount::text, decimals, blockhash, message, status, transaction_id,
	signed_transaction, created_at, signed_at`

// RecordPrepared journals a built message. Recording the same message twice
// returns the existing entry unchanged.
func (s *Store) RecordPrepared(ctx context.Context, params RecordPreparedParams) (entry *JournalEntry, err error) {
	defer s.observe("record_prepared", &err)()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO solana_transactions (
			message_digest, shape, from_address, to_address, token_mint,
			amount, decimals, blockhash, message
		) VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8, $9)
		ON CONFLICT (message_digest) DO UPDATE
			SET message_digest = EXCLUDED.message_digest
		RETURNING `+entryColumns,
		MessageDigest(params.Message),
		params.Shape,
		params.FromAddress,
		params.ToAddress,
		pgtextFromStringPtr(params.TokenMint),
		strconv.FormatUint(params.Amount, 10),
		pgint2FromUint8Ptr(params.Decimals),
		params.Blockhash,
		params.Message,
	)

	entry, err = scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to record prepared transaction: %w", err)
	}
	return entry, nil
}

// RecordSigned attaches a signature to a journaled message.
// Returns ErrNotFound if the message was never recorded.
func (s *Store) RecordSigned(ctx context.Context, params RecordSignedParams) (entry *JournalEntry, err error) {
	defer s.observe("record_signed", &err)()
	row := s.pool.QueryRow(ctx, `
		UPDATE solana_transactions
		SET status = $2,
			transaction_id = $3,
			signed_transaction = $4,
			signed_at = NOW()
		WHERE message_digest = $1
		RETURNING `+entryColumns,
		MessageDigest(params.Message),
		StatusSigned,
		params.TransactionID,
		params.SignedTransaction,
	)

	entry, err = scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to record signed transaction: %w", err)
	}
	return entry, nil
}

// GetByDigest retrieves a journal entry by its message digest.
func (s *Store) GetByDigest(ctx context.Context, digest string) (entry *JournalEntry, err error) {
	defer s.observe("get_by_digest", &err)()
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM solana_transactions WHERE message_digest = $1`,
		digest,
	)

	return scanEntry(row)
}

// GetByTransactionID retrieves a signed journal entry by its transaction id.
func (s *Store) GetByTransactionID(ctx context.Context, transactionID string) (entry *JournalEntry, err error) {
	defer s.observe("get_by_transaction_id", &err)()
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM solana_transactions WHERE transaction_id = $1`,
		transactionID,
	)

	return scanEntry(row)
}

// ListByAddress retrieves entries sent from or to an address, newest first.
func (s *Store) ListByAddress(ctx context.Context, params ListByAddressParams) (entries []*JournalEntry, err error) {
	defer s.observe("list_by_address", &err)()
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM solana_transactions
		WHERE from_address = $1 OR to_address = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		params.Address,
		params.Limit,
		params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	entries = make([]*JournalEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return entries, nil
}

// observe times a query. The returned func records it with the error the
// query finished with; a missing row is not a failed query.
func (s *Store) observe(operation string, err *error) func() {
	return metrics.Timer(time.Now(), func(seconds float64) {
		if s.metrics == nil {
			return
		}
		qerr := *err
		if errors.Is(qerr, ErrNotFound) {
			qerr = nil
		}
		s.metrics.RecordDBQuery(operation, table, seconds, qerr)
	})
}

// scanEntry reads one row selected with entryColumns.
func scanEntry(row pgx.Row) (*JournalEntry, error) {
	var (
		entry         JournalEntry
		tokenMint     pgtype.Text
		amount        string
		decimals      pgtype.Int2
		transactionID pgtype.Text
		signedAt      pgtype.Timestamptz
	)
	err := row.Scan(
		&entry.MessageDigest,
		&entry.Shape,
		&entry.FromAddress,
		&entry.ToAddress,
		&tokenMint,
		&amount,
		&decimals,
		&entry.Blockhash,
		&entry.Message,
		&entry.Status,
		&transactionID,
		&entry.SignedTransaction,
		&entry.CreatedAt,
		&signedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entry.Amount, err = strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	entry.TokenMint = stringPtrFromPgtext(tokenMint)
	entry.Decimals = uint8PtrFromPgint2(decimals)
	entry.TransactionID = stringPtrFromPgtext(transactionID)
	entry.SignedAt = timePtrFromPgTimestamptz(signedAt)
	return &entry, nil
}

// Helper functions to convert between pgtype and domain types

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func pgint2FromUint8Ptr(v *uint8) pgtype.Int2 {
	if v == nil {
		return pgtype.Int2{Valid: false}
	}
	return pgtype.Int2{Int16: int16(*v), Valid: true}
}

func uint8PtrFromPgint2(i pgtype.Int2) *uint8 {
	if !i.Valid {
		return nil
	}
	v := uint8(i.Int16)
	return &v
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
