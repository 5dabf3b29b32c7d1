package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/twmb/franz-go/pkg/kerr"
	"go.uber.org/multierr"
)

// ConfigurationError reports invalid or missing settings.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("kafka %s: configuration: %s", e.Component, e.Reason)
}

// ConnectionCause classifies why a connection attempt failed. It is used
// for diagnostics only.
type ConnectionCause string

const (
	CauseAuthentication ConnectionCause = "authentication"
	CauseRefused        ConnectionCause = "connection_refused"
	CauseAuthorization  ConnectionCause = "authorization"
	CauseTimeout        ConnectionCause = "timeout"
	CauseUnknown        ConnectionCause = "unknown"
)

// ConnectionError reports a network, authentication or authorization
// failure while connecting.
type ConnectionError struct {
	Component string
	Cause     ConnectionCause
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("kafka %s: connect (%s): %v", e.Component, e.Cause, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports a publish that could not be delivered.
type SendError struct {
	// Topic is empty for batch failures spanning several topics.
	Topic string
	Err   error
}

func (e *SendError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("kafka producer: send: %v", e.Err)
	}
	return fmt.Sprintf("kafka producer: send to %s: %v", e.Topic, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Failures returns the individual failures of a batch publish, in entry order.
func (e *SendError) Failures() []error {
	return multierr.Errors(e.Err)
}

// HandlerError reports a failure raised while handling one record.
type HandlerError struct {
	Topic     string
	Partition int32
	Offset    int64
	// Panic holds the recovered value when the handler panicked.
	Panic any
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("kafka consumer: handler for %s[%d]@%d: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

var errNotInitialized = errors.New("producer is not initialized, check that Kafka brokers are configured")

// classifyConnectError maps a connect failure onto a ConnectionCause.
func classifyConnectError(err error) ConnectionCause {
	if err == nil {
		return CauseUnknown
	}
	switch {
	case errors.Is(err, kerr.SaslAuthenticationFailed),
		errors.Is(err, kerr.UnsupportedSaslMechanism),
		errors.Is(err, kerr.IllegalSaslState):
		return CauseAuthentication
	case errors.Is(err, kerr.TopicAuthorizationFailed),
		errors.Is(err, kerr.GroupAuthorizationFailed),
		errors.Is(err, kerr.ClusterAuthorizationFailed):
		return CauseAuthorization
	case errors.Is(err, syscall.ECONNREFUSED):
		return CauseRefused
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "sasl"):
		return CauseAuthentication
	case strings.Contains(msg, "authorization"):
		return CauseAuthorization
	case strings.Contains(msg, "connection refused"):
		return CauseRefused
	case strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "deadline exceeded"):
		return CauseTimeout
	default:
		return CauseUnknown
	}
}

// connectHint is the operator-facing explanation logged alongside a cause.
func connectHint(c ConnectionCause) string {
	switch c {
	case CauseAuthentication:
		return "SASL authentication failed. Check the credentials and mechanism."
	case CauseRefused:
		return "Connection refused. Check that the Kafka brokers are running and reachable."
	case CauseAuthorization:
		return "Authorization failed. Check the ACLs for this client's topics and consumer group."
	case CauseTimeout:
		return "Connection timed out. Check network reachability and the connection timeout."
	default:
		return ""
	}
}
