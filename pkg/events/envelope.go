// Package events defines the versioned envelope carried on every topic and
// the payload shapes of the user and auth domain events.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is stamped on envelopes created by NewEnvelope.
const CurrentVersion = "1"

// TimestampLayout is the ISO-8601 layout used for envelope timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope wraps every payload published to the broker.
// It is created once by the publisher and never mutated afterwards.
type Envelope[T any] struct {
	EventID   string `json:"eventId"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Payload   T      `json:"payload"`
}

// RawEnvelope is an envelope whose payload has not been decoded yet.
type RawEnvelope = Envelope[json.RawMessage]

// NewEnvelope wraps payload with a fresh event id and the current time.
func NewEnvelope[T any](payload T) Envelope[T] {
	return Envelope[T]{
		EventID:   uuid.NewString(),
		Timestamp: FormatTime(time.Now()),
		Version:   CurrentVersion,
		Payload:   payload,
	}
}

// FormatTime renders t in UTC using TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Open decodes a wire value into a RawEnvelope.
func Open(data []byte) (RawEnvelope, error) {
	var env RawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RawEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Decode converts a raw envelope into a typed one, keeping the metadata.
func Decode[T any](raw RawEnvelope) (Envelope[T], error) {
	out := Envelope[T]{
		EventID:   raw.EventID,
		Timestamp: raw.Timestamp,
		Version:   raw.Version,
	}
	if len(raw.Payload) == 0 {
		return out, fmt.Errorf("envelope %s has no payload", raw.EventID)
	}
	if err := json.Unmarshal(raw.Payload, &out.Payload); err != nil {
		return out, fmt.Errorf("decode payload of envelope %s: %w", raw.EventID, err)
	}
	return out, nil
}
