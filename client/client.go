package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/solkit/service/solana"
)

// BuiltTransaction is an unsigned transaction returned by the server.
type BuiltTransaction struct {
	Shape         string                       `json:"shape"`
	Message       string                       `json:"message"`        // base64
	MessageBase58 string                       `json:"message_base58"` // what wallets sign
	MessageDigest string                       `json:"message_digest"`
	Params        solana.TransactionParameters `json:"params"`
}

// SignedTransaction is a transaction with its fee payer signature attached.
type SignedTransaction struct {
	TransactionID     string `json:"transaction_id"`
	Transaction       string `json:"transaction"` // base64
	TransactionBase58 string `json:"transaction_base58"`
	MessageDigest     string `json:"message_digest"`
	Shape             string `json:"shape"`
}

// DecodedTransaction is the result of parsing serialized transaction bytes.
type DecodedTransaction struct {
	Shape         string                       `json:"shape"`
	Signed        bool                         `json:"signed"`
	TransactionID string                       `json:"transaction_id,omitempty"`
	MessageDigest string                       `json:"message_digest"`
	Params        solana.TransactionParameters `json:"params"`
}

// AddressInfo reports whether an address is well formed.
type AddressInfo struct {
	Address string `json:"address"`
	Valid   bool   `json:"valid"`
	OnCurve bool   `json:"on_curve"`
	Error   string `json:"error,omitempty"`
}

// TokenAccount is the associated token account of a wallet for a mint.
type TokenAccount struct {
	Wallet       string `json:"wallet"`
	Mint         string `json:"mint"`
	TokenAccount string `json:"token_account"`
}

// JournalEntry is a transaction recorded by the server.
type JournalEntry struct {
	MessageDigest string     `json:"message_digest"`
	Shape         string     `json:"shape"`
	FromAddress   string     `json:"from_address"`
	ToAddress     string     `json:"to_address"`
	TokenMint     *string    `json:"token_mint,omitempty"`
	Amount        uint64     `json:"amount"`
	Decimals      *uint8     `json:"decimals,omitempty"`
	Blockhash     string     `json:"blockhash"`
	Status        string     `json:"status"` // prepared, signed
	TransactionID *string    `json:"transaction_id,omitempty"`
	Transaction   string     `json:"transaction"`
	CreatedAt     time.Time  `json:"created_at"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
}

// TransactionEvent is a build or sign event delivered by Stream.
type TransactionEvent struct {
	Type          string    `json:"type"` // prepared, signed
	Shape         string    `json:"shape"`
	MessageDigest string    `json:"message_digest"`
	TransactionID string    `json:"transaction_id,omitempty"`
	FromAddress   string    `json:"from_address"`
	ToAddress     string    `json:"to_address"`
	TokenMint     *string   `json:"token_mint,omitempty"`
	Amount        uint64    `json:"amount"`
	Decimals      *uint8    `json:"decimals,omitempty"`
	Blockhash     string    `json:"blockhash"`
	Transaction   string    `json:"transaction"` // base64
	PublishedAt   time.Time `json:"published_at"`
}

// APIError is returned for any non-success response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: %s", e.Message)
}

// Client is the HTTP client for the solkit transaction service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new transaction service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Build asks the server for the unsigned message of a transfer.
func (c *Client) Build(ctx context.Context, params solana.TransactionParameters) (*BuiltTransaction, error) {
	var out BuiltTransaction
	if err := c.do(ctx, "POST", "/api/v1/transactions", params, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("transaction built", "shape", out.Shape, "digest", out.MessageDigest)
	return &out, nil
}

// Sign attaches a base58 signature to the transaction described by params.
func (c *Client) Sign(ctx context.Context, params solana.TransactionParameters, signature string) (*SignedTransaction, error) {
	body := struct {
		solana.TransactionParameters
		Signature string `json:"signature"`
	}{params, signature}

	var out SignedTransaction
	if err := c.do(ctx, "POST", "/api/v1/transactions/sign", body, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("transaction signed", "transaction_id", out.TransactionID)
	return &out, nil
}

// Decode parses serialized transaction bytes. encoding is "base64" or "base58".
func (c *Client) Decode(ctx context.Context, transaction, encoding string) (*DecodedTransaction, error) {
	body := map[string]string{
		"transaction": transaction,
		"encoding":    encoding,
	}

	var out DecodedTransaction
	if err := c.do(ctx, "POST", "/api/v1/transactions/decode", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransaction retrieves a journaled transaction by id.
func (c *Client) GetTransaction(ctx context.Context, id string) (*JournalEntry, error) {
	var out JournalEntry
	if err := c.do(ctx, "GET", "/api/v1/transactions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTransactions retrieves journaled transactions sent from or to an address.
func (c *Client) ListTransactions(ctx context.Context, address string, limit, offset int) ([]*JournalEntry, error) {
	q := url.Values{}
	q.Set("address", address)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}

	var out struct {
		Transactions []*JournalEntry `json:"transactions"`
	}
	if err := c.do(ctx, "GET", "/api/v1/transactions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// ValidateAddress asks the server whether address is well formed.
func (c *Client) ValidateAddress(ctx context.Context, address string) (*AddressInfo, error) {
	var out AddressInfo
	if err := c.do(ctx, "GET", "/api/v1/addresses/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TokenAccount derives the associated token account of wallet for mint.
func (c *Client) TokenAccount(ctx context.Context, wallet, mint string) (*TokenAccount, error) {
	path := fmt.Sprintf("/api/v1/addresses/%s/token-accounts/%s", url.PathEscape(wallet), url.PathEscape(mint))
	var out TokenAccount
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// Stream follows the server's transaction event stream and calls handle for
// each event until ctx is done, the server hangs up or handle returns an
// error. address and eventType are optional filters.
func (c *Client) Stream(ctx context.Context, address, eventType string, handle func(*TransactionEvent) error) error {
	path := "/api/v1/stream/transactions"
	if address != "" {
		path += "/" + url.PathEscape(address)
	}
	if eventType != "" {
		path += "?" + url.Values{"type": {eventType}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream has no natural end, so the client timeout cannot apply.
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var name, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := c.dispatchEvent(name, data, handle); err != nil {
				return err
			}
			name, data = "", ""
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}

func (c *Client) dispatchEvent(name, data string, handle func(*TransactionEvent) error) error {
	switch name {
	case "transaction":
		var event TransactionEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("failed to decode stream event: %w", err)
		}
		return handle(&event)
	case "connected":
		c.logger.Debug("stream connected", "info", data)
	case "error":
		return &APIError{StatusCode: http.StatusOK, Message: data}
	}
	return nil
}

// do sends a JSON request and decodes a 200 response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
