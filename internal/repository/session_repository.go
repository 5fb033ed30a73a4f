package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

const sessionColumns = `id, class_id, time_slot_id, tutor_id, subject, scheduled_start, scheduled_end, price, status,
       cancellation_reason, cancellation_kind, created_at, updated_at`

var openSessionStatuses = pq.StringArray{string(models.SessionStatusPending), string(models.SessionStatusConfirmed)}

// SessionRepository persists materialized sessions. Rows are never deleted.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// IdentityTaken reports whether (class, start, end) is held by a live session or by an occurrence
// cancellation. ignoreCancelled only considers live sessions.
func (r *SessionRepository) IdentityTaken(ctx context.Context, exec sqlx.ExtContext, classID string, start, end time.Time, ignoreCancelled bool) (bool, error) {
	const query = `SELECT EXISTS (
    SELECT 1 FROM sessions
    WHERE class_id = $1 AND scheduled_start = $2 AND scheduled_end = $3
      AND (status <> 'CANCELLED' OR (NOT $4 AND cancellation_kind = 'OCCURRENCE'))
)`
	var taken bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &taken, query, classID, start, end, ignoreCancelled); err != nil {
		return false, fmt.Errorf("check session identity: %w", err)
	}
	return taken, nil
}

// CreateIfAbsent inserts the session unless a non-cancelled row already holds its identity key.
// It reports false when the insert was skipped by the key.
func (r *SessionRepository) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, session *models.Session) (bool, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusPending
	}

	const query = `INSERT INTO sessions (id, class_id, time_slot_id, tutor_id, subject, scheduled_start, scheduled_end, price, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (class_id, scheduled_start, scheduled_end) WHERE status <> 'CANCELLED' DO NOTHING
RETURNING id`
	var id string
	err := r.exec(exec).QueryRowxContext(ctx, query,
		session.ID, session.ClassID, session.TimeSlotID, session.TutorID, session.Subject,
		session.ScheduledStart, session.ScheduledEnd, session.Price, session.Status,
		session.CreatedAt, session.UpdatedAt,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create session: %w", err)
	}
	return true, nil
}

// ListStarts returns the distinct start instants of every session ever generated for a class subject.
func (r *SessionRepository) ListStarts(ctx context.Context, exec sqlx.ExtContext, classID, subject string) ([]time.Time, error) {
	const query = `SELECT DISTINCT scheduled_start FROM sessions WHERE class_id = $1 AND subject = $2 ORDER BY scheduled_start ASC`
	var starts []time.Time
	if err := sqlx.SelectContext(ctx, r.exec(exec), &starts, query, classID, subject); err != nil {
		return nil, fmt.Errorf("list session starts: %w", err)
	}
	return starts, nil
}

// ListOpen returns PENDING and CONFIRMED sessions of a class subject starting in [from, to).
// A zero to leaves the range open-ended.
func (r *SessionRepository) ListOpen(ctx context.Context, exec sqlx.ExtContext, classID, subject string, from, to time.Time) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
WHERE class_id = $1 AND subject = $2 AND status = ANY($3) AND scheduled_start >= $4`
	args := []interface{}{classID, subject, openSessionStatuses, from}
	if !to.IsZero() {
		query += ` AND scheduled_start < $5`
		args = append(args, to)
	}
	query += ` ORDER BY scheduled_start ASC`
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	return sessions, nil
}

// ListUnassigned returns PENDING sessions without a tutor starting at or after from.
// An empty subject selects every subject of the class.
func (r *SessionRepository) ListUnassigned(ctx context.Context, exec sqlx.ExtContext, classID, subject string, from, to time.Time) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
WHERE class_id = $1 AND status = $2 AND tutor_id IS NULL AND scheduled_start >= $3`
	args := []interface{}{classID, models.SessionStatusPending, from}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND scheduled_start < $%d", len(args))
	}
	if subject != "" {
		args = append(args, subject)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	query += ` ORDER BY scheduled_start ASC`
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list unassigned sessions: %w", err)
	}
	return sessions, nil
}

// CountActiveInRange counts non-cancelled sessions of a class starting in [from, to).
func (r *SessionRepository) CountActiveInRange(ctx context.Context, exec sqlx.ExtContext, classID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions
WHERE class_id = $1 AND status <> 'CANCELLED' AND scheduled_start >= $2 AND scheduled_start < $3`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, classID, from, to); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// Cancel marks the given open sessions CANCELLED with reason and kind and returns how many changed.
func (r *SessionRepository) Cancel(ctx context.Context, exec sqlx.ExtContext, ids []string, reason string, kind models.CancellationKind) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE sessions SET status = 'CANCELLED', cancellation_reason = $2, cancellation_kind = $5, updated_at = $3
WHERE id = ANY($1) AND status = ANY($4)`
	result, err := r.exec(exec).ExecContext(ctx, query, pq.StringArray(ids), reason, time.Now().UTC(), openSessionStatuses, string(kind))
	if err != nil {
		return 0, fmt.Errorf("cancel sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel sessions rows: %w", err)
	}
	return int(affected), nil
}

// Assign stores the resolved tutor, price and status of a PENDING session.
func (r *SessionRepository) Assign(ctx context.Context, exec sqlx.ExtContext, assignment models.SessionAssignment) error {
	const query = `UPDATE sessions SET tutor_id = $2, price = $3, status = $4, updated_at = $5
WHERE id = $1 AND status = 'PENDING'`
	if _, err := r.exec(exec).ExecContext(ctx, query,
		assignment.SessionID, assignment.TutorID, assignment.Price, assignment.Status, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("assign session tutor: %w", err)
	}
	return nil
}

// List returns sessions of a class matching filter ordered by start.
func (r *SessionRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.SessionFilter) ([]models.Session, error) {
	conditions := []string{"class_id = $1"}
	args := []interface{}{filter.ClassID}

	if filter.Subject != "" {
		args = append(args, filter.Subject)
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("scheduled_start >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("scheduled_start < $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make(pq.StringArray, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY scheduled_start ASC, subject ASC`
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
