package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

const tutorColumns = `id, full_name, hourly_rate, subjects, availability, is_active, created_at, updated_at`

// TutorRepository reads tutor records.
type TutorRepository struct {
	db *sqlx.DB
}

// NewTutorRepository constructs the repository.
func NewTutorRepository(db *sqlx.DB) *TutorRepository {
	return &TutorRepository{db: db}
}

func (r *TutorRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a tutor.
func (r *TutorRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tutor, error) {
	query := `SELECT ` + tutorColumns + ` FROM tutors WHERE id = $1`
	var tutor models.Tutor
	if err := sqlx.GetContext(ctx, r.exec(exec), &tutor, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get tutor: %w", err)
	}
	return &tutor, nil
}

// FindByIDs returns the tutors with the given ids; missing ids are omitted.
func (r *TutorRepository) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Tutor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + tutorColumns + ` FROM tutors WHERE id = ANY($1)`
	var tutors []models.Tutor
	if err := sqlx.SelectContext(ctx, r.exec(exec), &tutors, query, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}
	return tutors, nil
}
