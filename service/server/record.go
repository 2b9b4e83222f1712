package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/solkit/service/db"
	natspkg "github.com/brojonat/solkit/service/nats"
	"github.com/brojonat/solkit/service/solana"
)

// Journal persists transactions handled by the server.
// *db.Store and *db.MockStore implement it.
type Journal interface {
	RecordPrepared(ctx context.Context, params db.RecordPreparedParams) (*db.JournalEntry, error)
	RecordSigned(ctx context.Context, params db.RecordSignedParams) (*db.JournalEntry, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*db.JournalEntry, error)
	ListByAddress(ctx context.Context, params db.ListByAddressParams) ([]*db.JournalEntry, error)
}

// recorder fans a built or signed transaction out to the journal and the
// event stream. Either may be nil.
type recorder struct {
	journal   Journal
	publisher natspkg.Publisher
	logger    *slog.Logger
}

// prepared journals a freshly built message and announces it.
// Journal failures are returned; publish failures are only logged.
func (rec *recorder) prepared(ctx context.Context, tx *solana.Transaction, msg []byte) error {
	if rec.journal != nil {
		if _, err := rec.journal.RecordPrepared(ctx, preparedParams(tx, msg)); err != nil {
			return err
		}
	}
	rec.publish(ctx, natspkg.EventPrepared, tx, msg, msg)
	return nil
}

// signed journals a signed transaction and announces it. The message is
// journaled first so signatures for messages built elsewhere are still kept.
func (rec *recorder) signed(ctx context.Context, tx *solana.Transaction, msg, wire []byte) error {
	if rec.journal != nil {
		if _, err := rec.journal.RecordPrepared(ctx, preparedParams(tx, msg)); err != nil {
			return err
		}
		id, err := tx.ToTransactionID()
		if err != nil {
			return err
		}
		if _, err := rec.journal.RecordSigned(ctx, db.RecordSignedParams{
			Message:           msg,
			TransactionID:     id.String(),
			SignedTransaction: wire,
		}); err != nil {
			return fmt.Errorf("failed to record signature: %w", err)
		}
	}
	rec.publish(ctx, natspkg.EventSigned, tx, msg, wire)
	return nil
}

func (rec *recorder) publish(ctx context.Context, eventType string, tx *solana.Transaction, msg, wire []byte) {
	if rec.publisher == nil {
		return
	}
	event, err := natspkg.NewTransactionEvent(eventType, tx, msg, wire)
	if err != nil {
		rec.logger.WarnContext(ctx, "failed to build transaction event", "type", eventType, "error", err)
		return
	}
	if err := rec.publisher.PublishTransaction(ctx, event); err != nil {
		rec.logger.ErrorContext(ctx, "failed to publish transaction event",
			"subject", event.Subject(),
			"message_digest", event.MessageDigest,
			"error", err,
		)
	}
}

func preparedParams(tx *solana.Transaction, msg []byte) db.RecordPreparedParams {
	shape, _ := tx.Shape()
	params := db.RecordPreparedParams{
		Shape:       string(shape),
		FromAddress: tx.Params.From.String(),
		ToAddress:   tx.Params.To.String(),
		Amount:      tx.Params.Amount,
		Decimals:    tx.Params.Decimals,
		Blockhash:   tx.Params.Blockhash,
		Message:     msg,
	}
	if tx.Params.IsTokenTransfer() {
		mint := tx.Params.Token.String()
		params.TokenMint = &mint
	}
	return params
}
