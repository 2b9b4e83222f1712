package solana

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/solkit/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// Codec wraps the transaction functions with logging, metrics and a
// configurable default token precision. It holds no per-call state and is
// safe for concurrent use.
type Codec struct {
	decimals uint8
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewCodec creates a new Codec.
// defaultDecimals is applied to token transfers that do not set Decimals.
// If metrics is nil, no metrics will be recorded.
func NewCodec(defaultDecimals uint8, m *metrics.Metrics, logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{
		decimals: defaultDecimals,
		metrics:  m,
		logger:   logger,
	}
}

// DefaultDecimals returns the precision applied when parameters leave it unset.
func (c *Codec) DefaultDecimals() uint8 {
	return c.decimals
}

func (c *Codec) withDefaults(params TransactionParameters) TransactionParameters {
	if params.IsTokenTransfer() && params.Decimals == nil && c.decimals != DefaultTokenDecimals {
		decimals := c.decimals
		params.Decimals = &decimals
	}
	return params
}

// observe starts timing a codec call. The returned func hands the elapsed
// seconds to record when metrics are enabled.
func (c *Codec) observe(record func(m *metrics.Metrics, seconds float64)) func() {
	return metrics.Timer(time.Now(), func(seconds float64) {
		if c.metrics != nil {
			record(c.metrics, seconds)
		}
	})
}

// Build creates an unsigned transaction and returns it with its message bytes.
func (c *Codec) Build(ctx context.Context, params TransactionParameters) (tx *Transaction, msg []byte, err error) {
	var shape Shape
	defer c.observe(func(m *metrics.Metrics, seconds float64) {
		m.RecordEncode(string(shape), err, seconds)
	})()

	tx = NewTransaction(c.withDefaults(params))
	shape, _ = tx.Shape()

	msg, err = tx.Message()
	if err != nil {
		c.logger.WarnContext(ctx, "failed to build transaction",
			"from", params.From,
			"to", params.To,
			"error", err,
		)
		return nil, nil, err
	}

	c.logger.DebugContext(ctx, "built transaction",
		"shape", shape,
		"from", params.From,
		"to", params.To,
		"amount", params.Amount,
		"message_bytes", len(msg),
	)
	return tx, msg, nil
}

// Sign rebuilds the transaction for params and attaches an externally
// produced signature.
func (c *Codec) Sign(ctx context.Context, params TransactionParameters, signature []byte) (tx *Transaction, out []byte, err error) {
	defer c.observe(func(m *metrics.Metrics, seconds float64) {
		m.RecordSign("external", err, seconds)
	})()

	tx = NewTransaction(c.withDefaults(params))
	out, err = tx.Sign(signature)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to sign transaction",
			"from", params.From,
			"signature_length", len(signature),
			"error", err,
		)
		return nil, nil, err
	}

	id, _ := tx.ToTransactionID()
	c.logger.InfoContext(ctx, "signed transaction",
		"transaction_id", id.String(),
		"from", params.From,
	)
	return tx, out, nil
}

// SignWith rebuilds the transaction for params and signs it with key.
func (c *Codec) SignWith(ctx context.Context, params TransactionParameters, key solana.PrivateKey) (tx *Transaction, out []byte, err error) {
	defer c.observe(func(m *metrics.Metrics, seconds float64) {
		m.RecordSign("keypair", err, seconds)
	})()

	tx = NewTransaction(c.withDefaults(params))
	out, err = tx.SignWith(key)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to sign transaction with key",
			"from", params.From,
			"error", err,
		)
		return nil, nil, err
	}

	id, _ := tx.ToTransactionID()
	c.logger.InfoContext(ctx, "signed transaction with key",
		"transaction_id", id.String(),
		"from", params.From,
	)
	return tx, out, nil
}

// Decode parses wire bytes into a transaction.
func (c *Codec) Decode(ctx context.Context, b []byte) (tx *Transaction, err error) {
	var shape Shape
	defer c.observe(func(m *metrics.Metrics, seconds float64) {
		m.RecordDecode(string(shape), err, seconds)
	})()

	tx, err = TransactionFromBytes(b)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to decode transaction",
			"bytes", len(b),
			"error", err,
		)
		return nil, err
	}

	shape, _ = tx.Shape()
	c.logger.DebugContext(ctx, "decoded transaction",
		"shape", shape,
		"from", tx.Params.From,
		"signed", tx.IsSigned(),
	)
	return tx, nil
}

// ValidateAddress parses s and records the outcome.
func (c *Codec) ValidateAddress(ctx context.Context, s string) (Address, error) {
	addr, err := ParseAddress(s)
	if c.metrics != nil {
		c.metrics.RecordAddressValidation(err == nil)
	}
	if err != nil {
		c.logger.DebugContext(ctx, "invalid address", "address", s, "error", err)
	}
	return addr, err
}
