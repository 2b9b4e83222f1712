package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware records request count and latency for one route.
// route should be the registered pattern, e.g. "/api/v1/transactions/{id}",
// so that path parameters do not explode label cardinality. A nil m turns
// the middleware into a pass-through.
func HTTPMetricsMiddleware(m *Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			defer Timer(time.Now(), func(seconds float64) {
				m.RecordHTTPRequest(route, r.Method, sw.status, seconds)
			})()
			next.ServeHTTP(sw, r)
		})
	}
}

// statusWriter remembers the status code a handler wrote.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so streaming handlers keep working
// behind the middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Timer starts a stopwatch at start. Calling the returned func reports the
// elapsed seconds to record, typically from a defer:
//
//	defer metrics.Timer(time.Now(), func(s float64) { m.RecordSomething(s) })()
func Timer(start time.Time, record func(seconds float64)) func() {
	return func() {
		record(time.Since(start).Seconds())
	}
}
