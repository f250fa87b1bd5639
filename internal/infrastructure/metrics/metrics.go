package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/iho/golend/internal/domain"
)

// Metrics holds all Prometheus metrics. It implements usecase.Recorder.
type Metrics struct {
	reg prometheus.Registerer

	// Registry metrics
	LoansCreated prometheus.Counter
	CacheLookups *prometheus.CounterVec

	// Pool metrics
	PoolOperations *prometheus.CounterVec
	PoolDuration   *prometheus.HistogramVec
	PoolAmount     *prometheus.HistogramVec

	// Asset book metrics
	AssetTransfers *prometheus.CounterVec
	TransferAmount prometheus.Histogram

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits prometheus.Counter

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
}

var amountBuckets = []float64{1, 10, 100, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9, 1e12}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		LoansCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "golend_loans_created_total",
			Help: "Total number of loans created",
		}),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "golend_loan_cache_lookups_total",
				Help: "Loan metadata cache lookups by result",
			},
			[]string{"result"},
		),

		PoolOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "golend_pool_operations_total",
				Help: "Pool operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		PoolDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "golend_pool_operation_duration_seconds",
				Help:    "Duration of pool operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PoolAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "golend_pool_amount_base_units",
				Help:    "Amounts pledged, withdrawn, released, repaid and claimed",
				Buckets: amountBuckets,
			},
			[]string{"operation"},
		),

		AssetTransfers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "golend_asset_transfers_total",
				Help: "Asset book transfers by result",
			},
			[]string{"result"},
		),
		TransferAmount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "golend_asset_transfer_amount_base_units",
			Help:    "Asset book transfer amounts",
			Buckets: amountBuckets,
		}),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "golend_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "golend_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "golend_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),

		RateLimitHits: f.NewCounter(prometheus.CounterOpts{
			Name: "golend_rate_limit_hits_total",
			Help: "Total requests rejected by the rate limiter",
		}),

		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "golend_outbox_events_published_total",
				Help: "Outbox events published by type",
			},
			[]string{"event_type"},
		),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "golend_outbox_publish_errors_total",
			Help: "Outbox events that failed to publish",
		}),
	}
}

// TrackDBConnections exposes the value of acquired as a gauge.
func (m *Metrics) TrackDBConnections(acquired func() float64) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "golend_db_connections",
		Help: "Database connections currently acquired",
	}, acquired)
}

// LoanCreated counts a created loan.
func (m *Metrics) LoanCreated() {
	m.LoansCreated.Inc()
}

// PoolOperation records the outcome of a pool operation.
func (m *Metrics) PoolOperation(operation string, err error, elapsed time.Duration, amount *uint256.Int) {
	m.PoolOperations.WithLabelValues(operation, Result(err)).Inc()
	m.PoolDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if err == nil && amount != nil && !amount.IsZero() {
		m.PoolAmount.WithLabelValues(operation).Observe(toFloat(amount))
	}
}

// AssetTransfer records the outcome of an asset book transfer.
func (m *Metrics) AssetTransfer(err error, amount *uint256.Int) {
	m.AssetTransfers.WithLabelValues(Result(err)).Inc()
	if err == nil && amount != nil {
		m.TransferAmount.Observe(toFloat(amount))
	}
}

// CacheLookup counts a loan metadata cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// HTTPRequest records a served request. path is the route pattern.
func (m *Metrics) HTTPRequest(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// AuthFailed counts a rejected credential.
func (m *Metrics) AuthFailed(reason string) {
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// RateLimited counts a request rejected by the rate limiter.
func (m *Metrics) RateLimited() {
	m.RateLimitHits.Inc()
}

// EventPublished counts a published outbox event.
func (m *Metrics) EventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// PublishFailed counts an outbox event that could not be published.
func (m *Metrics) PublishFailed() {
	m.PublishErrors.Inc()
}

// Result maps an operation error to a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, domain.ErrInsufficientPledge):
		return "insufficient_pledge"
	case errors.Is(err, domain.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyFinalized):
		return "invalid_state"
	case errors.Is(err, domain.ErrNoFundsPledged), errors.Is(err, domain.ErrNothingToClaim):
		return "nothing_to_do"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrLoanNotFound), errors.Is(err, domain.ErrPoolNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidTerms), errors.Is(err, domain.ErrSameAccount):
		return "invalid"
	case errors.Is(err, domain.ErrVersionConflict):
		return "conflict"
	default:
		return "error"
	}
}

func toFloat(a *uint256.Int) float64 {
	return decimal.NewFromBigInt(a.ToBig(), 0).InexactFloat64()
}
