package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

const tutorAssignmentColumns = `id, class_id, time_slot_id, subject, tutor_id, recurrence_pattern, recurrence_config,
       start_date, end_date, status, is_active, created_at, updated_at`

// TutorAssignmentRepository persists rotation assignments.
type TutorAssignmentRepository struct {
	db *sqlx.DB
}

// NewTutorAssignmentRepository constructs the repository.
func NewTutorAssignmentRepository(db *sqlx.DB) *TutorAssignmentRepository {
	return &TutorAssignmentRepository{db: db}
}

func (r *TutorAssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns an assignment.
func (r *TutorAssignmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TutorAssignment, error) {
	query := `SELECT ` + tutorAssignmentColumns + ` FROM tutor_assignments WHERE id = $1`
	var assignment models.TutorAssignment
	if err := sqlx.GetContext(ctx, r.exec(exec), &assignment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get tutor assignment: %w", err)
	}
	return &assignment, nil
}

// ListByClass returns all assignments of a class in creation order.
func (r *TutorAssignmentRepository) ListByClass(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.TutorAssignment, error) {
	query := `SELECT ` + tutorAssignmentColumns + ` FROM tutor_assignments WHERE class_id = $1 ORDER BY created_at ASC, id ASC`
	var assignments []models.TutorAssignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query, classID); err != nil {
		return nil, fmt.Errorf("list tutor assignments: %w", err)
	}
	return assignments, nil
}

// ListParticipating returns active ACCEPTED assignments of a class in creation order.
func (r *TutorAssignmentRepository) ListParticipating(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.TutorAssignment, error) {
	query := `SELECT ` + tutorAssignmentColumns + ` FROM tutor_assignments
WHERE class_id = $1 AND is_active = TRUE AND status = $2 ORDER BY created_at ASC, id ASC`
	var assignments []models.TutorAssignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query, classID, models.AssignmentStatusAccepted); err != nil {
		return nil, fmt.Errorf("list participating assignments: %w", err)
	}
	return assignments, nil
}

// Create inserts an assignment.
func (r *TutorAssignmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.TutorAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	if len(assignment.RecurrenceConfig) == 0 {
		assignment.RecurrenceConfig = []byte("{}")
	}
	const query = `INSERT INTO tutor_assignments (id, class_id, time_slot_id, subject, tutor_id, recurrence_pattern, recurrence_config,
    start_date, end_date, status, is_active, created_at, updated_at)
VALUES (:id, :class_id, :time_slot_id, :subject, :tutor_id, :recurrence_pattern, :recurrence_config,
    :start_date, :end_date, :status, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment); err != nil {
		return fmt.Errorf("create tutor assignment: %w", err)
	}
	return nil
}

// UpdateStatus records the tutor's response and the resulting active flag.
func (r *TutorAssignmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AssignmentStatus, active bool) error {
	const query = `UPDATE tutor_assignments SET status = $2, is_active = $3, updated_at = $4 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, status, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update tutor assignment status: %w", err)
	}
	return requireAffected(result, "update tutor assignment status")
}

// Deactivate removes an assignment from rotation without deleting it.
func (r *TutorAssignmentRepository) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE tutor_assignments SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate tutor assignment: %w", err)
	}
	return requireAffected(result, "deactivate tutor assignment")
}
