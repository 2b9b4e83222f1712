package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Codec Metrics
	transactionsEncodedTotal *prometheus.CounterVec
	transactionsDecodedTotal *prometheus.CounterVec
	transactionsSignedTotal  *prometheus.CounterVec
	codecOperationDuration   *prometheus.HistogramVec
	addressValidationsTotal  *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Codec Metrics
		transactionsEncodedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_encoded_total",
				Help: "Total number of transactions encoded by shape and status",
			},
			[]string{"shape", "status"},
		),
		transactionsDecodedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_decoded_total",
				Help: "Total number of transactions decoded by shape and status",
			},
			[]string{"shape", "status"},
		),
		transactionsSignedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_signed_total",
				Help: "Total number of signatures attached to transactions",
			},
			[]string{"mode", "status"},
		),
		codecOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codec_operation_duration_seconds",
				Help:    "Duration of transaction codec operations in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"operation"},
		),
		addressValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "address_validations_total",
				Help: "Total number of address validations by result",
			},
			[]string{"result"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Codec metric helpers

// RecordEncode records a transaction build or serialization.
func (m *Metrics) RecordEncode(shape string, err error, duration float64) {
	m.transactionsEncodedTotal.WithLabelValues(shapeLabel(shape), errStatus(err)).Inc()
	m.codecOperationDuration.WithLabelValues("encode").Observe(duration)
}

// RecordDecode records a transaction decode attempt.
func (m *Metrics) RecordDecode(shape string, err error, duration float64) {
	m.transactionsDecodedTotal.WithLabelValues(shapeLabel(shape), errStatus(err)).Inc()
	m.codecOperationDuration.WithLabelValues("decode").Observe(duration)
}

// RecordSign records a signature being attached. mode is "external" for a
// caller-supplied signature and "keypair" for local signing.
func (m *Metrics) RecordSign(mode string, err error, duration float64) {
	m.transactionsSignedTotal.WithLabelValues(mode, errStatus(err)).Inc()
	m.codecOperationDuration.WithLabelValues("sign").Observe(duration)
}

// RecordAddressValidation records the outcome of an address check.
func (m *Metrics) RecordAddressValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.addressValidationsTotal.WithLabelValues(result).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, errStatus(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func errStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func shapeLabel(shape string) string {
	if shape == "" {
		return "unknown"
	}
	return shape
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
