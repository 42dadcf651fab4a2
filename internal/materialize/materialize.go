// Package materialize turns raw sealed registrations into decoded,
// cross-referenced registrations. Decryption is best-effort per item: one
// corrupted envelope never blocks the rest of the batch.
package materialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/venuekit/turnstile/internal/types"
	"github.com/venuekit/turnstile/pkg/sealedbox"
)

// ErrDecodeFailed reports plaintext that decrypted fine but did not match
// any known payload shape.
var ErrDecodeFailed = errors.New("materialize: payload decode failed")

// attendeeEnvelope is the versioned plaintext carried inside a sealed
// registration. The version field gates the decode switch; payload-shape
// breaking changes bump it.
type attendeeEnvelope struct {
	Version  int             `json:"v"`
	Attendee json.RawMessage `json:"attendee"`
}

// Materializer decorates sealed registration batches. The key pair is
// borrowed per call and never retained.
type Materializer struct {
	logger *slog.Logger
}

// New creates a materializer. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{logger: logger}
}

// Registrations materializes a batch: every input item is emitted exactly
// once, with the attendee decrypted when the envelope is present and valid
// and absent otherwise, then cross-referenced against the group set. Decrypt
// and decode failures are logged per item without key material, ciphertext
// or attendee data.
func (m *Materializer) Registrations(sealed []types.SealedRegistration, groups []types.Group, kp sealedbox.KeyPair) []types.Registration {
	byID := make(map[string]*types.Group, len(groups))
	for i := range groups {
		byID[groups[i].ID] = &groups[i]
	}

	out := make([]types.Registration, 0, len(sealed))
	for _, reg := range sealed {
		attendee, err := m.openAttendee(reg, kp)
		if err != nil {
			m.logger.Warn("registration payload unavailable",
				"component", "materialize",
				"action", "decrypt_failed",
				"registration", reg.ID,
				"error", err,
			)
		}
		out = append(out, types.Registration{
			ID:       reg.ID,
			Group:    byID[reg.GroupID],
			Attendee: attendee,
		})
	}
	return out
}

// openAttendee recovers one registration's attendee record. A missing
// envelope is reported as an error so the caller logs a diagnostic, but the
// registration is still emitted either way.
func (m *Materializer) openAttendee(reg types.SealedRegistration, kp sealedbox.KeyPair) (*types.Attendee, error) {
	if reg.Sealed == "" {
		return nil, errors.New("no sealed envelope present")
	}

	plaintext, err := sealedbox.Open(reg.Sealed, kp)
	if err != nil {
		return nil, err
	}
	return decodeAttendee(plaintext)
}

// decodeAttendee decodes the versioned plaintext envelope.
func decodeAttendee(plaintext []byte) (*types.Attendee, error) {
	var env attendeeEnvelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	switch env.Version {
	case 1:
		var attendee types.Attendee
		if err := json.Unmarshal(env.Attendee, &attendee); err != nil {
			return nil, fmt.Errorf("%w: v1 attendee: %v", ErrDecodeFailed, err)
		}
		return &attendee, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload version %d", ErrDecodeFailed, env.Version)
	}
}
