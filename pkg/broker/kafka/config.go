package kafka

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Defaults applied by BuildConfig to zero-valued settings.
const (
	DefaultClientID              = "user-service"
	DefaultGroupID               = "user-service-group"
	DefaultConnectionTimeout     = 10 * time.Second
	DefaultAuthenticationTimeout = 10 * time.Second
	DefaultSessionTimeout        = 30 * time.Second
	DefaultHeartbeatInterval     = 10 * time.Second
	DefaultMaxInFlightRequests   = 5
)

// RawSettings are the unvalidated connection settings as read from flags,
// environment or a config file.
type RawSettings struct {
	Brokers  []string
	ClientID string
	GroupID  string

	// TLS is nil when the operator did not set it explicitly.
	TLS *bool

	Mechanism             string
	Username              string
	Password              string
	AccessKeyID           string
	SecretAccessKey       string
	SessionToken          string
	AuthorizationIdentity string

	ConnectionTimeout     time.Duration
	AuthenticationTimeout time.Duration
	SessionTimeout        time.Duration
	HeartbeatInterval     time.Duration
}

// ConnectionConfig is the resolved configuration shared by the producer and
// the consumer. It is only produced by BuildConfig and never modified.
type ConnectionConfig struct {
	brokers    []string
	clientID   string
	groupID    string
	tls        bool
	credential Credential

	connectionTimeout     time.Duration
	authenticationTimeout time.Duration
	sessionTimeout        time.Duration
	heartbeatInterval     time.Duration
	maxInFlightRequests   int
}

// Brokers returns a copy of the seed broker list.
func (c ConnectionConfig) Brokers() []string {
	out := make([]string, len(c.brokers))
	copy(out, c.brokers)
	return out
}

func (c ConnectionConfig) ClientID() string { return c.clientID }
func (c ConnectionConfig) GroupID() string  { return c.groupID }
func (c ConnectionConfig) TLSEnabled() bool { return c.tls }

// Credential returns the SASL credential, or nil when unauthenticated.
func (c ConnectionConfig) Credential() Credential { return c.credential }

func (c ConnectionConfig) ConnectionTimeout() time.Duration     { return c.connectionTimeout }
func (c ConnectionConfig) AuthenticationTimeout() time.Duration { return c.authenticationTimeout }
func (c ConnectionConfig) SessionTimeout() time.Duration        { return c.sessionTimeout }
func (c ConnectionConfig) HeartbeatInterval() time.Duration     { return c.heartbeatInterval }
func (c ConnectionConfig) MaxInFlightRequests() int             { return c.maxInFlightRequests }

// mechanismName is safe to log.
func (c ConnectionConfig) mechanismName() string {
	if c.credential == nil {
		return ""
	}
	return string(c.credential.Mechanism())
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(s string) []string {
	return normalizeBrokers(strings.Split(s, ","))
}

func normalizeBrokers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		// a single entry may still carry a comma separated list
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// BuildConfig resolves raw settings into a ConnectionConfig.
//
// Missing brokers and unusable credentials are not errors: the first is
// left for the caller to judge, the second downgrades the connection to
// unauthenticated. Both are reported with a single warning each.
func BuildConfig(raw RawSettings, log *zap.Logger) ConnectionConfig {
	log = log.Named("kafka.config")

	cfg := ConnectionConfig{
		brokers:               normalizeBrokers(raw.Brokers),
		clientID:              orDefault(strings.TrimSpace(raw.ClientID), DefaultClientID),
		groupID:               orDefault(strings.TrimSpace(raw.GroupID), DefaultGroupID),
		connectionTimeout:     durationOrDefault(raw.ConnectionTimeout, DefaultConnectionTimeout),
		authenticationTimeout: durationOrDefault(raw.AuthenticationTimeout, DefaultAuthenticationTimeout),
		sessionTimeout:        durationOrDefault(raw.SessionTimeout, DefaultSessionTimeout),
		heartbeatInterval:     durationOrDefault(raw.HeartbeatInterval, DefaultHeartbeatInterval),
		maxInFlightRequests:   DefaultMaxInFlightRequests,
	}

	if len(cfg.brokers) == 0 {
		log.Warn("No Kafka brokers configured. Kafka functionality will be disabled.")
	}

	if strings.TrimSpace(raw.Mechanism) != "" {
		m, ok := ParseMechanism(raw.Mechanism)
		if !ok {
			log.Warn("Unsupported SASL mechanism, continuing without authentication",
				zap.String("mechanism", raw.Mechanism))
		} else if cred, err := newCredential(m, raw); err != nil {
			log.Warn("SASL mechanism specified but no credentials provided, continuing without authentication",
				zap.String("mechanism", string(m)), zap.Error(err))
		} else {
			cfg.credential = cred
		}
	}

	switch {
	case raw.TLS != nil:
		cfg.tls = *raw.TLS
	case cfg.credential != nil:
		cfg.tls = true
	}

	log.Debug("Kafka configuration loaded",
		zap.Strings("brokers", cfg.brokers),
		zap.String("client_id", cfg.clientID),
		zap.String("group_id", cfg.groupID),
		zap.Bool("tls", cfg.tls),
		zap.Bool("has_sasl", cfg.credential != nil),
		zap.String("sasl_mechanism", cfg.mechanismName()),
	)
	return cfg
}

// clientOpts returns the options common to producer and consumer clients.
func (c ConnectionConfig) clientOpts(log *zap.Logger) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.brokers...),
		kgo.ClientID(c.clientID),
		kgo.DialTimeout(c.connectionTimeout),
		// bounds every request without its own timeout, the SASL handshake included
		kgo.RequestTimeoutOverhead(c.authenticationTimeout),
		kgo.WithLogger(&kgoLogger{log}),
	}
	if c.tls {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if c.credential != nil {
		opts = append(opts, kgo.SASL(c.credential.saslMechanism()))
	}
	return opts
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOrDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
