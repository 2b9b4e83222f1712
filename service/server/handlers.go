package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/solkit/service/db"
	"github.com/brojonat/solkit/service/solana"
	"github.com/mr-tron/base58"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// errJournalDisabled is reported when no database is configured.
const errJournalDisabled = "transaction journal is not configured"

// buildResponse is the JSON response for a built, unsigned transaction.
type buildResponse struct {
	Shape         string                       `json:"shape"`
	Message       string                       `json:"message"`
	MessageBase58 string                       `json:"message_base58"`
	MessageDigest string                       `json:"message_digest"`
	Params        solana.TransactionParameters `json:"params"`
}

// signRequest is a set of transfer parameters plus a base58 signature.
type signRequest struct {
	solana.TransactionParameters
	Signature string `json:"signature"`
}

// signResponse is the JSON response for a signed transaction.
type signResponse struct {
	TransactionID     string `json:"transaction_id"`
	Transaction       string `json:"transaction"`
	TransactionBase58 string `json:"transaction_base58"`
	MessageDigest     string `json:"message_digest"`
	Shape             string `json:"shape"`
}

// decodeRequest carries serialized transaction bytes.
type decodeRequest struct {
	Transaction string `json:"transaction"`
	Encoding    string `json:"encoding"` // "base64" (default) or "base58"
}

// decodeResponse is the JSON response for a decoded transaction.
type decodeResponse struct {
	Shape         string                       `json:"shape"`
	Signed        bool                         `json:"signed"`
	TransactionID string                       `json:"transaction_id,omitempty"`
	MessageDigest string                       `json:"message_digest"`
	Params        solana.TransactionParameters `json:"params"`
}

// addressResponse is the JSON response for address validation.
type addressResponse struct {
	Address string `json:"address"`
	Valid   bool   `json:"valid"`
	OnCurve bool   `json:"on_curve"`
	Error   string `json:"error,omitempty"`
}

// tokenAccountResponse is the JSON response for associated token account derivation.
type tokenAccountResponse struct {
	Wallet       string `json:"wallet"`
	Mint         string `json:"mint"`
	TokenAccount string `json:"token_account"`
}

// journalEntryResponse is the JSON response format for a journaled transaction.
type journalEntryResponse struct {
	MessageDigest string     `json:"message_digest"`
	Shape         string     `json:"shape"`
	FromAddress   string     `json:"from_address"`
	ToAddress     string     `json:"to_address"`
	TokenMint     *string    `json:"token_mint,omitempty"`
	Amount        uint64     `json:"amount"`
	Decimals      *uint8     `json:"decimals,omitempty"`
	Blockhash     string     `json:"blockhash"`
	Status        string     `json:"status"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	Transaction   string     `json:"transaction"`
	CreatedAt     time.Time  `json:"created_at"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
}

// handleBuildTransaction returns a handler that builds an unsigned transaction.
// POST /api/v1/transactions
func handleBuildTransaction(codec *solana.Codec, rec *recorder, maxBody int64, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		var params solana.TransactionParameters
		if !decodeBody(w, r, &params, logger) {
			return
		}

		tx, msg, err := codec.Build(r.Context(), params)
		if err != nil {
			writeCodecError(w, err, logger)
			return
		}
		shape, _ := tx.Shape()

		if err := rec.prepared(r.Context(), tx, msg); err != nil {
			logger.ErrorContext(r.Context(), "failed to journal transaction", "from", params.From, "error", err)
			writeError(w, "failed to journal transaction", http.StatusInternalServerError)
			return
		}

		writeJSON(w, buildResponse{
			Shape:         string(shape),
			Message:       base64.StdEncoding.EncodeToString(msg),
			MessageBase58: base58.Encode(msg),
			MessageDigest: db.MessageDigest(msg),
			Params:        tx.Params,
		}, http.StatusOK)
	})
}

// handleSignTransaction returns a handler that attaches a signature to a transaction.
// POST /api/v1/transactions/sign
func handleSignTransaction(codec *solana.Codec, rec *recorder, maxBody int64, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		var req signRequest
		if !decodeBody(w, r, &req, logger) {
			return
		}
		if req.Signature == "" {
			writeError(w, "signature is required", http.StatusBadRequest)
			return
		}
		sig, err := base58.Decode(req.Signature)
		if err != nil {
			writeError(w, "signature must be base58 encoded", http.StatusBadRequest)
			return
		}

		tx, signed, err := codec.Sign(r.Context(), req.TransactionParameters, sig)
		if err != nil {
			writeCodecError(w, err, logger)
			return
		}
		msg, err := tx.Message()
		if err != nil {
			writeCodecError(w, err, logger)
			return
		}
		id, err := tx.ToTransactionID()
		if err != nil {
			writeCodecError(w, err, logger)
			return
		}
		shape, _ := tx.Shape()

		if err := rec.signed(r.Context(), tx, msg, signed); err != nil {
			logger.ErrorContext(r.Context(), "failed to journal signed transaction", "transaction_id", id.String(), "error", err)
			writeError(w, "failed to journal transaction", http.StatusInternalServerError)
			return
		}

		writeJSON(w, signResponse{
			TransactionID:     id.String(),
			Transaction:       base64.StdEncoding.EncodeToString(signed),
			TransactionBase58: base58.Encode(signed),
			MessageDigest:     db.MessageDigest(msg),
			Shape:             string(shape),
		}, http.StatusOK)
	})
}

// handleDecodeTransaction returns a handler that parses serialized transaction bytes.
// POST /api/v1/transactions/decode
func handleDecodeTransaction(codec *solana.Codec, maxBody int64, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		var req decodeRequest
		if !decodeBody(w, r, &req, logger) {
			return
		}
		if req.Transaction == "" {
			writeError(w, "transaction is required", http.StatusBadRequest)
			return
		}

		var raw []byte
		var err error
		switch req.Encoding {
		case "", "base64":
			raw, err = base64.StdEncoding.DecodeString(req.Transaction)
		case "base58":
			raw, err = base58.Decode(req.Transaction)
		default:
			writeError(w, "encoding must be base64 or base58", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeError(w, fmt.Sprintf("transaction is not valid %s", encodingName(req.Encoding)), http.StatusBadRequest)
			return
		}

		tx, err := codec.Decode(r.Context(), raw)
		if err != nil {
			writeCodecError(w, err, logger)
			return
		}
		msg, err := tx.Message()
		if err != nil {
			writeCodecError(w, err, logger)
			return
		}
		shape, _ := tx.Shape()

		resp := decodeResponse{
			Shape:         string(shape),
			Signed:        tx.IsSigned(),
			MessageDigest: db.MessageDigest(msg),
			Params:        tx.Params,
		}
		if id, err := tx.ToTransactionID(); err == nil {
			resp.TransactionID = id.String()
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleGetTransaction returns a handler that looks up a journaled transaction.
// GET /api/v1/transactions/{id}
func handleGetTransaction(journal Journal, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if journal == nil {
			writeError(w, errJournalDisabled, http.StatusNotFound)
			return
		}

		raw, err := base58.Decode(id)
		if err != nil || len(raw) != solana.SignatureLength {
			writeError(w, "transaction id must be a base58 encoded 64 byte signature", http.StatusBadRequest)
			return
		}

		entry, err := journal.GetByTransactionID(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get transaction", "transaction_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, entryToResponse(entry), http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists journaled transactions for an address.
// GET /api/v1/transactions?address=ADDRESS&limit=N&offset=N
func handleListTransactions(journal Journal, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		address := query.Get("address")

		if journal == nil {
			writeError(w, errJournalDisabled, http.StatusNotFound)
			return
		}

		if address == "" {
			writeError(w, "address query parameter is required", http.StatusBadRequest)
			return
		}
		if _, err := solana.ParseAddress(address); err != nil {
			logger.DebugContext(r.Context(), "invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit := int32(defaultListLimit)
		if limitStr := query.Get("limit"); limitStr != "" {
			var parsedLimit int
			if _, err := fmt.Sscanf(limitStr, "%d", &parsedLimit); err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedLimit < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if parsedLimit > maxListLimit {
				writeError(w, fmt.Sprintf("limit cannot exceed %d", maxListLimit), http.StatusBadRequest)
				return
			}
			limit = int32(parsedLimit)
		}

		offset := int32(0)
		if offsetStr := query.Get("offset"); offsetStr != "" {
			var parsedOffset int
			if _, err := fmt.Sscanf(offsetStr, "%d", &parsedOffset); err != nil {
				writeError(w, "invalid offset parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedOffset < 0 {
				writeError(w, "offset cannot be negative", http.StatusBadRequest)
				return
			}
			offset = int32(parsedOffset)
		}

		entries, err := journal.ListByAddress(r.Context(), db.ListByAddressParams{
			Address: address,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list transactions", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]journalEntryResponse, len(entries))
		for i := range entries {
			resp[i] = entryToResponse(entries[i])
		}

		writeJSON(w, map[string]interface{}{
			"transactions": resp,
			"count":        len(resp),
			"limit":        limit,
			"offset":       offset,
		}, http.StatusOK)
	})
}

// handleValidateAddress returns a handler that reports whether an address is valid.
// GET /api/v1/addresses/{address}
func handleValidateAddress(codec *solana.Codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		resp := addressResponse{Address: address}
		addr, err := codec.ValidateAddress(r.Context(), address)
		if err != nil {
			resp.Error = err.Error()
			writeJSON(w, resp, http.StatusOK)
			return
		}
		resp.Valid = true

		// Program derived addresses are valid but have no private key.
		if _, err := solana.ParsePublicKey(addr.String()); err == nil {
			resp.OnCurve = true
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleTokenAccount returns a handler that derives an associated token account.
// GET /api/v1/addresses/{address}/token-accounts/{mint}
func handleTokenAccount(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet, err := solana.ParseAddress(r.PathValue("address"))
		if err != nil {
			writeError(w, fmt.Sprintf("wallet: %v", err), http.StatusBadRequest)
			return
		}
		mint, err := solana.ParseAddress(r.PathValue("mint"))
		if err != nil {
			writeError(w, fmt.Sprintf("mint: %v", err), http.StatusBadRequest)
			return
		}

		ata, err := wallet.AssociatedTokenAddress(mint)
		if err != nil {
			logger.DebugContext(r.Context(), "failed to derive token account", "wallet", wallet, "mint", mint, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, tokenAccountResponse{
			Wallet:       wallet.String(),
			Mint:         mint.String(),
			TokenAccount: ata.String(),
		}, http.StatusOK)
	})
}

// entryToResponse converts a journal entry to a response format.
func entryToResponse(e *db.JournalEntry) journalEntryResponse {
	wire := e.Message
	if e.SignedTransaction != nil {
		wire = e.SignedTransaction
	}
	return journalEntryResponse{
		MessageDigest: e.MessageDigest,
		Shape:         e.Shape,
		FromAddress:   e.FromAddress,
		ToAddress:     e.ToAddress,
		TokenMint:     e.TokenMint,
		Amount:        e.Amount,
		Decimals:      e.Decimals,
		Blockhash:     e.Blockhash,
		Status:        e.Status,
		TransactionID: e.TransactionID,
		Transaction:   base64.StdEncoding.EncodeToString(wire),
		CreatedAt:     e.CreatedAt,
		SignedAt:      e.SignedAt,
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, logger *slog.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.DebugContext(r.Context(), "failed to decode request", "path", r.URL.Path, "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, fmt.Sprintf("request body too large: maximum size is %d bytes", maxErr.Limit), http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// writeCodecError maps codec errors to 400 and anything else to 500.
func writeCodecError(w http.ResponseWriter, err error, logger *slog.Logger) {
	if errors.Is(err, solana.ErrAddress) || errors.Is(err, solana.ErrPublicKey) || errors.Is(err, solana.ErrTransaction) {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.Error("codec failure", "error", err)
	writeError(w, "internal server error", http.StatusInternalServerError)
}

func encodingName(encoding string) string {
	if encoding == "" {
		return "base64"
	}
	return strings.ToLower(encoding)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
