// Package config loads gateway settings from flags, environment and an
// optional config file through viper.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/tnewman/event-gateway/pkg/broker/kafka"
	"github.com/tnewman/event-gateway/pkg/proxy"
)

// Keys are the viper keys, also used as flag names.
const (
	KeyKafkaBrokers               = "kafka-brokers"
	KeyKafkaClientID              = "kafka-client-id"
	KeyKafkaGroupID               = "kafka-group-id"
	KeyKafkaSSL                   = "kafka-ssl"
	KeyKafkaSASLMechanism         = "kafka-sasl-mechanism"
	KeyKafkaSASLUsername          = "kafka-sasl-username"
	KeyKafkaSASLPassword          = "kafka-sasl-password"
	KeyKafkaSASLAccessKeyID       = "kafka-sasl-access-key-id"
	KeyKafkaSASLSecretAccessKey   = "kafka-sasl-secret-access-key"
	KeyKafkaSASLSessionToken      = "kafka-sasl-session-token"
	KeyKafkaSASLAuthorizationID   = "kafka-sasl-authorization-identity"
	KeyKafkaConnectionTimeout     = "kafka-connection-timeout"
	KeyKafkaAuthenticationTimeout = "kafka-authentication-timeout"
	KeyKafkaSessionTimeout        = "kafka-session-timeout"
	KeyKafkaHeartbeatInterval     = "kafka-heartbeat-interval"
	KeyDatabaseURL                = "database-url"
	KeyGRPCPort                   = "grpc-port"
	KeyMetricsAddr                = "metrics-addr"
	KeyLogLevel                   = "log-level"
	KeyMaxPendingPublishes        = "max-pending-publishes"
)

// envNames maps keys to the environment variables deployments already use.
var envNames = map[string]string{
	KeyKafkaBrokers:               "KAFKA_BROKERS",
	KeyKafkaClientID:              "KAFKA_CLIENT_ID",
	KeyKafkaGroupID:               "KAFKA_GROUP_ID",
	KeyKafkaSSL:                   "KAFKA_SSL",
	KeyKafkaSASLMechanism:         "KAFKA_SASL_MECHANISM",
	KeyKafkaSASLUsername:          "KAFKA_SASL_USERNAME",
	KeyKafkaSASLPassword:          "KAFKA_SASL_PASSWORD",
	KeyKafkaSASLAccessKeyID:       "KAFKA_SASL_ACCESS_KEY_ID",
	KeyKafkaSASLSecretAccessKey:   "KAFKA_SASL_SECRET_ACCESS_KEY",
	KeyKafkaSASLSessionToken:      "KAFKA_SASL_SESSION_TOKEN",
	KeyKafkaSASLAuthorizationID:   "KAFKA_SASL_AUTHORIZATION_IDENTITY",
	KeyKafkaConnectionTimeout:     "KAFKA_CONNECTION_TIMEOUT",
	KeyKafkaAuthenticationTimeout: "KAFKA_AUTHENTICATION_TIMEOUT",
	KeyKafkaSessionTimeout:        "KAFKA_SESSION_TIMEOUT",
	KeyKafkaHeartbeatInterval:     "KAFKA_HEARTBEAT_INTERVAL",
	KeyDatabaseURL:                "DATABASE_URL",
	KeyGRPCPort:                   "GRPC_PORT",
	KeyMetricsAddr:                "METRICS_ADDR",
	KeyLogLevel:                   "LOG_LEVEL",
	KeyMaxPendingPublishes:        "MAX_PENDING_PUBLISHES",
}

// Config holds all configurable parameters for the gateway.
type Config struct {
	Kafka kafka.RawSettings

	// DatabaseURL selects the Postgres user store; empty means in-memory.
	DatabaseURL         string
	GRPCPort            string
	MetricsAddr         string
	LogLevel            zapcore.Level
	MaxPendingPublishes int
}

// BindEnv binds every key to its environment variable and sets defaults.
func BindEnv(v *viper.Viper) error {
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	v.SetDefault(KeyGRPCPort, "50051")
	v.SetDefault(KeyMetricsAddr, ":9090")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMaxPendingPublishes, proxy.DefaultMaxPendingPublishes)
	return nil
}

// Load reads the configuration from v. Kafka defaults are left to
// kafka.BuildConfig; Load only rejects values it cannot parse.
func Load(v *viper.Viper) (Config, error) {
	if err := BindEnv(v); err != nil {
		return Config{}, err
	}

	raw := kafka.RawSettings{
		Brokers:               kafka.ParseBrokers(strings.Join(v.GetStringSlice(KeyKafkaBrokers), ",")),
		ClientID:              v.GetString(KeyKafkaClientID),
		GroupID:               v.GetString(KeyKafkaGroupID),
		Mechanism:             v.GetString(KeyKafkaSASLMechanism),
		Username:              v.GetString(KeyKafkaSASLUsername),
		Password:              v.GetString(KeyKafkaSASLPassword),
		AccessKeyID:           v.GetString(KeyKafkaSASLAccessKeyID),
		SecretAccessKey:       v.GetString(KeyKafkaSASLSecretAccessKey),
		SessionToken:          v.GetString(KeyKafkaSASLSessionToken),
		AuthorizationIdentity: v.GetString(KeyKafkaSASLAuthorizationID),
	}

	if v.IsSet(KeyKafkaSSL) {
		tls, err := parseBool(v.GetString(KeyKafkaSSL))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envNames[KeyKafkaSSL], err)
		}
		raw.TLS = &tls
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{KeyKafkaConnectionTimeout, &raw.ConnectionTimeout},
		{KeyKafkaAuthenticationTimeout, &raw.AuthenticationTimeout},
		{KeyKafkaSessionTimeout, &raw.SessionTimeout},
		{KeyKafkaHeartbeatInterval, &raw.HeartbeatInterval},
	}
	for _, d := range durations {
		parsed, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envNames[d.key], err)
		}
		*d.dst = parsed
	}

	level, err := zapcore.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", envNames[KeyLogLevel], err)
	}

	return Config{
		Kafka:               raw,
		DatabaseURL:         v.GetString(KeyDatabaseURL),
		GRPCPort:            v.GetString(KeyGRPCPort),
		MetricsAddr:         v.GetString(KeyMetricsAddr),
		LogLevel:            level,
		MaxPendingPublishes: v.GetInt(KeyMaxPendingPublishes),
	}, nil
}

// parseBool accepts "true" and "1" as true. Anything else strconv accepts is
// false or true as usual.
func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

// parseDuration accepts a bare integer as milliseconds, otherwise a Go
// duration string such as "10s". Empty means unset.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
