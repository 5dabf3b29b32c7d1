package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("event-gateway/broker/kafka")

const (
	roleProducer = "producer"
	roleConsumer = "consumer"

	resultOK    = "ok"
	resultError = "error"

	outcomeHandled      = "handled"
	outcomeHandlerError = "handler_error"
	outcomeNoHandler    = "no_handler"
	outcomeEmpty        = "empty"
	outcomeDecodeError  = "decode_error"
)

var (
	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_gateway",
		Subsystem: "kafka",
		Name:      "connect_attempts_total",
		Help:      "Connection attempts by role.",
	}, []string{"role"})

	connectErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_gateway",
		Subsystem: "kafka",
		Name:      "connect_errors_total",
		Help:      "Failed connection attempts by role and classified cause.",
	}, []string{"role", "cause"})

	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_gateway",
		Subsystem: "kafka",
		Name:      "publish_total",
		Help:      "Published records by topic and result.",
	}, []string{"topic", "result"})

	publishLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "event_gateway",
		Subsystem: "kafka",
		Name:      "publish_latency_seconds",
		Help:      "Time from send to broker acknowledgement.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_gateway",
		Subsystem: "kafka",
		Name:      "records_total",
		Help:      "Consumed records by topic and dispatch outcome.",
	}, []string{"topic", "outcome"})
)
