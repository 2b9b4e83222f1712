package nats

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/brojonat/solkit/service/db"
	"github.com/brojonat/solkit/service/solana"
)

// Event types, also used as the second subject token.
const (
	EventPrepared = "prepared"
	EventSigned   = "signed"
)

// TransactionEvent is published to "soltx.{type}.{from_address}" whenever the
// service builds or signs a transaction.
type TransactionEvent struct {
	Type          string `json:"type"`
	Shape         string `json:"shape"`
	MessageDigest string `json:"message_digest"`
	TransactionID string `json:"transaction_id,omitempty"`

	// Transfer details
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	TokenMint   *string `json:"token_mint,omitempty"`
	Amount      uint64  `json:"amount"`
	Decimals    *uint8  `json:"decimals,omitempty"`
	Blockhash   string  `json:"blockhash"`

	// Base64 wire bytes: the message for prepared events, the full
	// transaction for signed ones.
	Transaction string `json:"transaction"`

	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject the event is published to.
func (e *TransactionEvent) Subject() string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, e.Type, e.FromAddress)
}

// MsgID is the JetStream deduplication id. A message can be signed more
// than once with different signatures, so signed events are keyed by the
// transaction id as well as the digest.
func (e *TransactionEvent) MsgID() string {
	if e.TransactionID != "" {
		return e.Type + ":" + e.MessageDigest + ":" + e.TransactionID
	}
	return e.Type + ":" + e.MessageDigest
}

// NewTransactionEvent builds an event for tx. message is the unsigned message
// and wire the bytes to carry in the event.
func NewTransactionEvent(eventType string, tx *solana.Transaction, message, wire []byte) (*TransactionEvent, error) {
	shape, err := tx.Shape()
	if err != nil {
		return nil, fmt.Errorf("failed to classify transaction: %w", err)
	}

	event := &TransactionEvent{
		Type:          eventType,
		Shape:         string(shape),
		MessageDigest: db.MessageDigest(message),
		FromAddress:   tx.Params.From.String(),
		ToAddress:     tx.Params.To.String(),
		Amount:        tx.Params.Amount,
		Decimals:      tx.Params.Decimals,
		Blockhash:     tx.Params.Blockhash,
		Transaction:   base64.StdEncoding.EncodeToString(wire),
		PublishedAt:   time.Now().UTC(),
	}

	if tx.Params.IsTokenTransfer() {
		mint := tx.Params.Token.String()
		event.TokenMint = &mint
	}
	if tx.IsSigned() {
		id, err := tx.ToTransactionID()
		if err != nil {
			return nil, err
		}
		event.TransactionID = id.String()
	}

	return event, nil
}
