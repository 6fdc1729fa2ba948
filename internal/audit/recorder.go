// Package audit records state-changing decisions for later review.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/store"
)

// Actions recorded by the service and the sweeper.
const (
	ActionMemberCreate   = "member.create"
	ActionMemberSchedule = "member.schedule"
	ActionMemberDelete   = "member.delete"
	ActionShiftCheckin   = "shift.checkin"
	ActionShiftCheckout  = "shift.checkout"
	ActionShiftExcuse    = "shift.excuse"
	ActionShiftUnclosed  = "shift.unclosed"
)

// Recorder writes audit records into the store.
type Recorder struct {
	store *store.Store
	log   zerolog.Logger
}

// NewRecorder creates a recorder. Write failures are logged to log.
func NewRecorder(s *store.Store, log zerolog.Logger) *Recorder {
	return &Recorder{store: s, log: log}
}

// Record writes an audit record for action on subject. inputs are hashed,
// not stored.
func (r *Recorder) Record(ctx context.Context, action string, inputs any, outcome, subject, details string) (*models.AuditRecord, error) {
	rec, err := r.store.WriteAudit(ctx, action, subject, hashInputs(inputs), outcome, details)
	if err != nil {
		r.log.Error().Err(err).Str("action", action).Str("subject", subject).Msg("audit write failed")
		return nil, err
	}
	return rec, nil
}

// Seen reports whether action was already recorded for subject.
func (r *Recorder) Seen(ctx context.Context, action, subject string) (bool, error) {
	return r.store.HasAudit(ctx, action, subject)
}

// hashInputs creates a SHA256 hash of the JSON encoding of inputs.
func hashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
