package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	natspkg "github.com/brojonat/solkit/service/nats"
	"github.com/brojonat/solkit/service/solana"
)

// sseKeepalive is how often an idle stream gets a comment line so proxies
// do not close it.
var sseKeepalive = 15 * time.Second

// streamBuffer bounds the events queued for a slow client. Events beyond it
// are dropped rather than stalling the consumer.
const streamBuffer = 32

// handleStreamTransactions streams transaction events as Server-Sent Events.
// GET /api/v1/stream/transactions
// GET /api/v1/stream/transactions/{address}
//
// An address limits the stream to transfers sent from it. The optional type
// query parameter selects prepared or signed events.
func handleStreamTransactions(events natspkg.Subscriber, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		address := r.PathValue("address")
		if address != "" {
			if _, err := solana.ParseAddress(address); err != nil {
				writeError(w, fmt.Sprintf("address: %v", err), http.StatusBadRequest)
				return
			}
		}
		eventType := r.URL.Query().Get("type")
		switch eventType {
		case "", natspkg.EventPrepared, natspkg.EventSigned:
		default:
			writeError(w, fmt.Sprintf("type must be %q or %q", natspkg.EventPrepared, natspkg.EventSigned), http.StatusBadRequest)
			return
		}
		subject := natspkg.FilterSubject(eventType, address)

		queue := make(chan *natspkg.TransactionEvent, streamBuffer)
		stop, err := events.Subscribe(ctx, natspkg.Subscription{Subject: subject}, func(event *natspkg.TransactionEvent) {
			select {
			case queue <- event:
			default:
				logger.WarnContext(ctx, "stream client too slow, dropping event",
					"subject", subject,
					"message_digest", event.MessageDigest,
				)
			}
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to transaction events",
				"subject", subject,
				"error", err,
			)
			writeError(w, "failed to subscribe to transaction events", http.StatusServiceUnavailable)
			return
		}
		defer stop()

		rc := http.NewResponseController(w)
		// Streams outlive the server's write timeout.
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		send := func(name string, data interface{}) error {
			b, err := json.Marshal(data)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b); err != nil {
				return err
			}
			return rc.Flush()
		}

		if err := send("connected", map[string]string{"subject": subject, "address": address}); err != nil {
			return
		}
		logger.DebugContext(ctx, "stream client connected",
			"subject", subject,
			"remote_addr", r.RemoteAddr,
		)

		keepalive := time.NewTicker(sseKeepalive)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}

			case event := <-queue:
				if err := send("transaction", event); err != nil {
					logger.DebugContext(ctx, "stream write failed", "error", err)
					return
				}

			case <-ctx.Done():
				logger.DebugContext(ctx, "stream client disconnected",
					"subject", subject,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
