package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func boolPtr(b bool) *bool { return &b }

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092,"))
	assert.Empty(t, ParseBrokers(""))
}

func TestBuildConfig_Defaults(t *testing.T) {
	cfg := BuildConfig(RawSettings{Brokers: []string{"a:9092,b:9092"}}, zap.NewNop())

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())
	assert.Equal(t, DefaultClientID, cfg.ClientID())
	assert.Equal(t, DefaultGroupID, cfg.GroupID())
	assert.False(t, cfg.TLSEnabled())
	assert.Nil(t, cfg.Credential())
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout())
	assert.Equal(t, 10*time.Second, cfg.AuthenticationTimeout())
	assert.Equal(t, 30*time.Second, cfg.SessionTimeout())
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 5, cfg.MaxInFlightRequests())
}

func TestBuildConfig_BrokersAreCopied(t *testing.T) {
	cfg := testConfig("a:9092")
	cfg.Brokers()[0] = "mutated"
	assert.Equal(t, []string{"a:9092"}, cfg.Brokers())
}

func TestBuildConfig_NoBrokersWarns(t *testing.T) {
	log, logs := observedLogger()
	cfg := BuildConfig(RawSettings{}, log)

	assert.Empty(t, cfg.Brokers())
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestBuildConfig_MissingCredentialsDowngrade(t *testing.T) {
	tests := map[string]RawSettings{
		"plain without password": {Mechanism: "plain", Username: "u"},
		"scram without username": {Mechanism: "scram-sha-256", Password: "p"},
		"scram512 without both":  {Mechanism: "SCRAM-SHA-512"},
		"aws without secret":     {Mechanism: "aws", AccessKeyID: "AKID", SessionToken: "tok"},
		"unknown mechanism":      {Mechanism: "oauthbearer", Username: "u", Password: "p"},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			raw.Brokers = []string{"a:9092"}
			log, logs := observedLogger()

			cfg := BuildConfig(raw, log)

			assert.Nil(t, cfg.Credential())
			assert.False(t, cfg.TLSEnabled())
			assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
		})
	}
}

func TestBuildConfig_CredentialForcesTLS(t *testing.T) {
	log, logs := observedLogger()
	cfg := BuildConfig(RawSettings{
		Brokers:   []string{"a:9092"},
		Mechanism: "scram-sha-512",
		Username:  "u",
		Password:  "p",
	}, log)

	require.NotNil(t, cfg.Credential())
	assert.Equal(t, MechanismScramSha512, cfg.Credential().Mechanism())
	assert.True(t, cfg.TLSEnabled())
	assert.Zero(t, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestBuildConfig_ExplicitTLS(t *testing.T) {
	withCred := RawSettings{Brokers: []string{"a:9092"}, Mechanism: "plain", Username: "u", Password: "p", TLS: boolPtr(false)}
	assert.False(t, BuildConfig(withCred, zap.NewNop()).TLSEnabled())

	noCred := RawSettings{Brokers: []string{"a:9092"}, TLS: boolPtr(true)}
	assert.True(t, BuildConfig(noCred, zap.NewNop()).TLSEnabled())
}

func TestBuildConfig_AwsOptionalFields(t *testing.T) {
	cfg := BuildConfig(RawSettings{
		Brokers:         []string{"a:9092"},
		Mechanism:       "aws",
		AccessKeyID:     "AKID",
		SecretAccessKey: "secret",
	}, zap.NewNop())

	cred, ok := cfg.Credential().(*AwsIamCredential)
	require.True(t, ok)
	_, hasToken := cred.SessionToken()
	assert.False(t, hasToken)
	_, hasIdentity := cred.AuthorizationIdentity()
	assert.False(t, hasIdentity)
}

func TestBuildConfig_DebugLogOmitsSecrets(t *testing.T) {
	log, logs := observedLogger()
	BuildConfig(RawSettings{Brokers: []string{"a:9092"}, Mechanism: "plain", Username: "u", Password: "hunter2"}, log)

	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			assert.NotEqual(t, "hunter2", f.String)
		}
	}
}

func TestClientOpts(t *testing.T) {
	plain := BuildConfig(RawSettings{Brokers: []string{"a:9092"}}, zap.NewNop())
	secured := BuildConfig(RawSettings{Brokers: []string{"a:9092"}, Mechanism: "plain", Username: "u", Password: "p"}, zap.NewNop())

	assert.Len(t, secured.clientOpts(zap.NewNop()), len(plain.clientOpts(zap.NewNop()))+2)
}
