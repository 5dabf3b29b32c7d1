package kafka

import (
	"errors"
	"strings"

	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/aws"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// Mechanism is a SASL mechanism name as configured by operators.
type Mechanism string

// Mechanism names are matched on the wire by peers, keep them bit-exact.
const (
	MechanismPlain       Mechanism = "plain"
	MechanismScramSha256 Mechanism = "scram-sha-256"
	MechanismScramSha512 Mechanism = "scram-sha-512"
	MechanismAwsIam      Mechanism = "aws"
)

// ParseMechanism normalizes name and reports whether it is supported.
func ParseMechanism(name string) (Mechanism, bool) {
	m := Mechanism(strings.ToLower(strings.TrimSpace(name)))
	switch m {
	case MechanismPlain, MechanismScramSha256, MechanismScramSha512, MechanismAwsIam:
		return m, true
	default:
		return m, false
	}
}

var (
	errMissingUserPass = errors.New("username and password are required")
	errMissingAwsKeys  = errors.New("access key id and secret access key are required")
	errNotScram        = errors.New("mechanism is not a SCRAM variant")
)

// Credential is the authentication material for one mechanism. The
// implementations below are the only ones; each can only be obtained from
// its constructor, which rejects missing required fields.
type Credential interface {
	Mechanism() Mechanism
	saslMechanism() sasl.Mechanism
}

// PlainCredential authenticates with SASL/PLAIN.
type PlainCredential struct {
	username string
	password string
}

// NewPlainCredential returns a PLAIN credential.
func NewPlainCredential(username, password string) (*PlainCredential, error) {
	if username == "" || password == "" {
		return nil, errMissingUserPass
	}
	return &PlainCredential{username: username, password: password}, nil
}

func (c *PlainCredential) Mechanism() Mechanism { return MechanismPlain }
func (c *PlainCredential) Username() string     { return c.username }

func (c *PlainCredential) saslMechanism() sasl.Mechanism {
	return plain.Auth{User: c.username, Pass: c.password}.AsMechanism()
}

// ScramCredential authenticates with SCRAM-SHA-256 or SCRAM-SHA-512.
type ScramCredential struct {
	mechanism Mechanism
	username  string
	password  string
}

// NewScramCredential returns a SCRAM credential for mechanism.
func NewScramCredential(mechanism Mechanism, username, password string) (*ScramCredential, error) {
	if mechanism != MechanismScramSha256 && mechanism != MechanismScramSha512 {
		return nil, errNotScram
	}
	if username == "" || password == "" {
		return nil, errMissingUserPass
	}
	return &ScramCredential{mechanism: mechanism, username: username, password: password}, nil
}

func (c *ScramCredential) Mechanism() Mechanism { return c.mechanism }
func (c *ScramCredential) Username() string     { return c.username }

func (c *ScramCredential) saslMechanism() sasl.Mechanism {
	auth := scram.Auth{User: c.username, Pass: c.password}
	if c.mechanism == MechanismScramSha512 {
		return auth.AsSha512Mechanism()
	}
	return auth.AsSha256Mechanism()
}

// AwsIamCredential authenticates with AWS IAM against managed brokers.
type AwsIamCredential struct {
	accessKeyID           string
	secretAccessKey       string
	sessionToken          *string
	authorizationIdentity *string
}

// AwsIamOption sets an optional AwsIamCredential field.
type AwsIamOption func(*AwsIamCredential)

// WithSessionToken attaches a temporary session token. Empty tokens are ignored.
func WithSessionToken(token string) AwsIamOption {
	return func(c *AwsIamCredential) {
		if token != "" {
			c.sessionToken = &token
		}
	}
}

// WithAuthorizationIdentity attaches the authorization identity. Empty values are ignored.
func WithAuthorizationIdentity(id string) AwsIamOption {
	return func(c *AwsIamCredential) {
		if id != "" {
			c.authorizationIdentity = &id
		}
	}
}

// NewAwsIamCredential returns an AWS IAM credential.
func NewAwsIamCredential(accessKeyID, secretAccessKey string, opts ...AwsIamOption) (*AwsIamCredential, error) {
	if accessKeyID == "" || secretAccessKey == "" {
		return nil, errMissingAwsKeys
	}
	c := &AwsIamCredential{accessKeyID: accessKeyID, secretAccessKey: secretAccessKey}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *AwsIamCredential) Mechanism() Mechanism { return MechanismAwsIam }
func (c *AwsIamCredential) AccessKeyID() string  { return c.accessKeyID }

// SessionToken returns the session token and whether one was supplied.
func (c *AwsIamCredential) SessionToken() (string, bool) {
	if c.sessionToken == nil {
		return "", false
	}
	return *c.sessionToken, true
}

// AuthorizationIdentity returns the authorization identity and whether one was supplied.
func (c *AwsIamCredential) AuthorizationIdentity() (string, bool) {
	if c.authorizationIdentity == nil {
		return "", false
	}
	return *c.authorizationIdentity, true
}

// The MSK IAM signer derives the principal from the keys, so the
// authorization identity is not sent on the wire.
func (c *AwsIamCredential) saslMechanism() sasl.Mechanism {
	auth := aws.Auth{
		AccessKey: c.accessKeyID,
		SecretKey: c.secretAccessKey,
	}
	if c.sessionToken != nil {
		auth.SessionToken = *c.sessionToken
	}
	return auth.AsManagedStreamingIAMMechanism()
}

// newCredential builds the credential for mechanism from raw settings.
func newCredential(m Mechanism, raw RawSettings) (Credential, error) {
	var (
		cred Credential
		err  error
	)
	switch m {
	case MechanismPlain:
		var c *PlainCredential
		if c, err = NewPlainCredential(raw.Username, raw.Password); err == nil {
			cred = c
		}
	case MechanismScramSha256, MechanismScramSha512:
		var c *ScramCredential
		if c, err = NewScramCredential(m, raw.Username, raw.Password); err == nil {
			cred = c
		}
	case MechanismAwsIam:
		var c *AwsIamCredential
		c, err = NewAwsIamCredential(raw.AccessKeyID, raw.SecretAccessKey,
			WithSessionToken(raw.SessionToken),
			WithAuthorizationIdentity(raw.AuthorizationIdentity),
		)
		if err == nil {
			cred = c
		}
	default:
		err = errors.New("unsupported SASL mechanism")
	}
	return cred, err
}
