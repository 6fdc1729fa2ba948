// Package models defines the core domain types for shiftwatch.
package models

import "time"

// Member is a roster member with a weekly schedule.
type Member struct {
	ID        string    `json:"id"`
	Rol       int64     `json:"rol"`
	Mail      string    `json:"mail"`
	Name      string    `json:"name"`
	Nick      string    `json:"nick,omitempty"`
	Schedule  string    `json:"schedule"` // compact encoding, e.g. "l0,2x1"
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the nickname when set, the full name otherwise.
func (m Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.Name
}

// Shift is one recorded check-in, closed by an optional check-out.
type Shift struct {
	ID       string     `json:"id"`
	MemberID string     `json:"member_id"`
	Checkin  time.Time  `json:"checkin"`
	Checkout *time.Time `json:"checkout,omitempty"`
}

// Open reports whether the shift has no check-out yet.
func (s Shift) Open() bool { return s.Checkout == nil }

// Clone returns a copy that shares no pointers with s.
func (s Shift) Clone() Shift {
	if s.Checkout != nil {
		out := *s.Checkout
		s.Checkout = &out
	}
	return s
}

// ExcusedOccurrence marks a block on a date as excused for every member.
type ExcusedOccurrence struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"` // local midnight
	Block     int       `json:"block"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditRecord is an append-only record of a state-changing decision.
type AuditRecord struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Subject    string    `json:"subject,omitempty"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
