// Package store provides SQLite-backed persistence for shiftwatch.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fentz26/shiftwatch/internal/models"
)

// Instants are stored as naive local text so that ordering and range
// queries work on the raw column.
const (
	stampLayout = "2006-01-02 15:04:05"
	dayLayout   = "2006-01-02"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = fmt.Errorf("not found")

// ErrDuplicate indicates a uniqueness constraint was violated.
var ErrDuplicate = fmt.Errorf("already exists")

// ErrShiftClosed indicates the shift already has a check-out.
var ErrShiftClosed = fmt.Errorf("shift already closed")

// Store provides access to the shiftwatch SQLite database.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// New creates a new Store at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s, err := FromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// FromDB wraps an already opened database and runs migrations. Instants are
// read back in the local zone.
func FromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db, loc: time.Local}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		rol INTEGER NOT NULL UNIQUE,
		mail TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		nick TEXT,
		schedule TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		checkin TEXT NOT NULL,
		checkout TEXT,
		FOREIGN KEY (member_id) REFERENCES members(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS excused (
		id TEXT PRIMARY KEY,
		day TEXT NOT NULL,
		block INTEGER NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (day, block)
	);

	CREATE TABLE IF NOT EXISTS audit (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		subject TEXT,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		details TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shifts_member_checkin ON shifts(member_id, checkin);
	CREATE INDEX IF NOT EXISTS idx_shifts_open ON shifts(checkout) WHERE checkout IS NULL;
	CREATE INDEX IF NOT EXISTS idx_audit_action_subject ON audit(action, subject);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) now() time.Time { return time.Now().In(s.loc).Truncate(time.Second) }

func stamp(t time.Time) string { return t.Format(stampLayout) }

func (s *Store) parseStamp(v string) (time.Time, error) {
	t, err := time.ParseInLocation(stampLayout, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored instant %q: %w", v, err)
	}
	return t, nil
}

func isUnique(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "unique constraint")
}

type scanner interface {
	Scan(dest ...any) error
}

// --- Member Operations ---

const memberColumns = `id, rol, mail, name, nick, schedule, created_at`

// CreateMember inserts a member. Mail is stored lower-cased; a repeated mail
// or rol yields ErrDuplicate.
func (s *Store) CreateMember(ctx context.Context, m models.Member) (*models.Member, error) {
	m.ID = uuid.New().String()
	m.Mail = strings.ToLower(strings.TrimSpace(m.Mail))
	m.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Rol, m.Mail, m.Name, m.Nick, m.Schedule, stamp(m.CreatedAt),
	)
	if err != nil {
		if isUnique(err) {
			return nil, fmt.Errorf("insert member %s: %w", m.Mail, ErrDuplicate)
		}
		return nil, fmt.Errorf("insert member: %w", err)
	}
	return &m, nil
}

func (s *Store) scanMember(row scanner) (*models.Member, error) {
	var m models.Member
	var nick sql.NullString
	var created string
	if err := row.Scan(&m.ID, &m.Rol, &m.Mail, &m.Name, &nick, &m.Schedule, &created); err != nil {
		return nil, err
	}
	m.Nick = nick.String
	t, err := s.parseStamp(created)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = t
	return &m, nil
}

// GetMember retrieves a member by ID.
func (s *Store) GetMember(ctx context.Context, id string) (*models.Member, error) {
	m, err := s.scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	return m, nil
}

// GetMemberByMail retrieves a member by mail, case-insensitively.
func (s *Store) GetMemberByMail(ctx context.Context, mail string) (*models.Member, error) {
	mail = strings.ToLower(strings.TrimSpace(mail))
	m, err := s.scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE mail = ?`, mail))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %s: %w", mail, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	return m, nil
}

// ListMembers returns all members ordered by rol.
func (s *Store) ListMembers(ctx context.Context) ([]models.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY rol`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		m, err := s.scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// UpdateMemberSchedule replaces a member's schedule encoding. The caller
// verifies the encoding first.
func (s *Store) UpdateMemberSchedule(ctx context.Context, id, schedule string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE members SET schedule = ? WHERE id = ?`, schedule, id)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return expectRow(res, "member "+id)
}

// DeleteMember removes a member and, through the foreign key, their shifts.
func (s *Store) DeleteMember(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return expectRow(res, "member "+id)
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// --- Shift Operations ---

const shiftColumns = `id, member_id, checkin, checkout`

// CreateShift records a check-in for member at checkin.
func (s *Store) CreateShift(ctx context.Context, memberID string, checkin time.Time) (*models.Shift, error) {
	sh := &models.Shift{
		ID:       uuid.New().String(),
		MemberID: memberID,
		Checkin:  checkin.In(s.loc).Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shifts (`+shiftColumns+`) VALUES (?, ?, ?, NULL)`,
		sh.ID, sh.MemberID, stamp(sh.Checkin),
	)
	if err != nil {
		return nil, fmt.Errorf("insert shift: %w", err)
	}
	return sh, nil
}

func (s *Store) scanShift(row scanner) (*models.Shift, error) {
	var sh models.Shift
	var checkin string
	var checkout sql.NullString
	if err := row.Scan(&sh.ID, &sh.MemberID, &checkin, &checkout); err != nil {
		return nil, err
	}
	t, err := s.parseStamp(checkin)
	if err != nil {
		return nil, err
	}
	sh.Checkin = t
	if checkout.Valid {
		out, err := s.parseStamp(checkout.String)
		if err != nil {
			return nil, err
		}
		sh.Checkout = &out
	}
	return &sh, nil
}

func (s *Store) queryShifts(ctx context.Context, query string, args ...any) ([]models.Shift, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []models.Shift
	for rows.Next() {
		sh, err := s.scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, *sh)
	}
	return shifts, rows.Err()
}

// GetShift retrieves a shift by ID.
func (s *Store) GetShift(ctx context.Context, id string) (*models.Shift, error) {
	sh, err := s.scanShift(s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shift %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query shift: %w", err)
	}
	return sh, nil
}

// CloseShift sets the check-out of an open shift. A shift that is already
// closed yields ErrShiftClosed and is left unchanged.
func (s *Store) CloseShift(ctx context.Context, id string, checkout time.Time) (*models.Shift, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sh, err := s.scanShift(tx.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shift %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query shift: %w", err)
	}
	if sh.Checkout != nil {
		return nil, fmt.Errorf("shift %s: %w", id, ErrShiftClosed)
	}

	out := checkout.In(s.loc).Truncate(time.Second)
	if _, err := tx.ExecContext(ctx,
		`UPDATE shifts SET checkout = ? WHERE id = ? AND checkout IS NULL`, stamp(out), id,
	); err != nil {
		return nil, fmt.Errorf("update shift: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	sh.Checkout = &out
	return sh, nil
}

// ListShifts returns a member's shifts with from <= checkin < to, oldest
// first.
func (s *Store) ListShifts(ctx context.Context, memberID string, from, to time.Time) ([]models.Shift, error) {
	return s.queryShifts(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE member_id = ? AND checkin >= ? AND checkin < ? ORDER BY checkin`,
		memberID, stamp(from.In(s.loc)), stamp(to.In(s.loc)))
}

// ListShiftsSince returns every member's shifts with checkin >= from,
// oldest first.
func (s *Store) ListShiftsSince(ctx context.Context, from time.Time) ([]models.Shift, error) {
	return s.queryShifts(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE checkin >= ? ORDER BY checkin`,
		stamp(from.In(s.loc)))
}

// OpenShift returns the member's open shift checked in on day's date.
func (s *Store) OpenShift(ctx context.Context, memberID string, day time.Time) (*models.Shift, error) {
	d := day.In(s.loc).Format(dayLayout)
	sh, err := s.scanShift(s.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts
		 WHERE member_id = ? AND checkout IS NULL AND substr(checkin, 1, 10) = ?
		 ORDER BY checkin DESC LIMIT 1`,
		memberID, d))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("open shift for %s on %s: %w", memberID, d, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query open shift: %w", err)
	}
	return sh, nil
}

// ListStaleOpenShifts returns open shifts checked in before the given
// instant, oldest first.
func (s *Store) ListStaleOpenShifts(ctx context.Context, before time.Time) ([]models.Shift, error) {
	return s.queryShifts(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE checkout IS NULL AND checkin < ? ORDER BY checkin`,
		stamp(before.In(s.loc)))
}

// --- Excused Occurrence Operations ---

// CreateExcused marks block on date as excused. Excusing the same
// occurrence twice yields ErrDuplicate.
func (s *Store) CreateExcused(ctx context.Context, date time.Time, block int, reason string) (*models.ExcusedOccurrence, error) {
	y, m, d := date.In(s.loc).Date()
	ex := &models.ExcusedOccurrence{
		ID:        uuid.New().String(),
		Date:      time.Date(y, m, d, 0, 0, 0, 0, s.loc),
		Block:     block,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO excused (id, day, block, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		ex.ID, ex.Date.Format(dayLayout), ex.Block, ex.Reason, stamp(ex.CreatedAt),
	)
	if err != nil {
		if isUnique(err) {
			return nil, fmt.Errorf("excuse %s block %d: %w", ex.Date.Format(dayLayout), block, ErrDuplicate)
		}
		return nil, fmt.Errorf("insert excused: %w", err)
	}
	return ex, nil
}

// ListExcused returns every excused occurrence ordered by date, then block.
func (s *Store) ListExcused(ctx context.Context) ([]models.ExcusedOccurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, day, block, reason, created_at FROM excused ORDER BY day, block`)
	if err != nil {
		return nil, fmt.Errorf("query excused: %w", err)
	}
	defer rows.Close()

	var out []models.ExcusedOccurrence
	for rows.Next() {
		var ex models.ExcusedOccurrence
		var day, created string
		var reason sql.NullString
		if err := rows.Scan(&ex.ID, &day, &ex.Block, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan excused: %w", err)
		}
		if ex.Date, err = time.ParseInLocation(dayLayout, day, s.loc); err != nil {
			return nil, fmt.Errorf("parse excused day %q: %w", day, err)
		}
		if ex.CreatedAt, err = s.parseStamp(created); err != nil {
			return nil, err
		}
		ex.Reason = reason.String
		out = append(out, ex)
	}
	return out, rows.Err()
}

// --- Audit Operations ---

// WriteAudit appends an audit record.
func (s *Store) WriteAudit(ctx context.Context, action, subject, inputsHash, outcome, details string) (*models.AuditRecord, error) {
	rec := &models.AuditRecord{
		ID:         uuid.New().String(),
		Action:     action,
		Subject:    subject,
		InputsHash: inputsHash,
		Outcome:    outcome,
		Details:    details,
		Timestamp:  s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (id, action, subject, inputs_hash, outcome, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Action, rec.Subject, rec.InputsHash, rec.Outcome, rec.Details, stamp(rec.Timestamp),
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit: %w", err)
	}
	return rec, nil
}

// ListAudit returns the most recent audit records, newest first. A
// non-positive limit returns them all.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	query := `SELECT id, action, subject, inputs_hash, outcome, details, timestamp FROM audit ORDER BY timestamp DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var subject, details sql.NullString
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Action, &subject, &rec.InputsHash, &rec.Outcome, &details, &ts); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if rec.Timestamp, err = s.parseStamp(ts); err != nil {
			return nil, err
		}
		rec.Subject = subject.String
		rec.Details = details.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HasAudit reports whether any record exists for action on subject.
func (s *Store) HasAudit(ctx context.Context, action, subject string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit WHERE action = ? AND subject = ?`, action, subject,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query audit: %w", err)
	}
	return n > 0, nil
}
