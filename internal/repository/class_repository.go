package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/session-scheduler-api/internal/models"
)

// ClassRepository reads classes and their rosters.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a class.
func (r *ClassRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	const query = `SELECT id, name, owner_id, subjects, is_active, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &class, nil
}

// ListActiveMemberIDs returns the user ids of active class members.
func (r *ClassRepository) ListActiveMemberIDs(ctx context.Context, exec sqlx.ExtContext, classID string) ([]string, error) {
	const query = `SELECT user_id FROM class_members WHERE class_id = $1 AND is_active = TRUE ORDER BY joined_at ASC`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, classID); err != nil {
		return nil, fmt.Errorf("list class members: %w", err)
	}
	return ids, nil
}

// CountActiveMembers returns the roster size used for pricing.
func (r *ClassRepository) CountActiveMembers(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM class_members WHERE class_id = $1 AND is_active = TRUE`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, classID); err != nil {
		return 0, fmt.Errorf("count class members: %w", err)
	}
	return count, nil
}

// ListActiveIDs returns every active class id.
func (r *ClassRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM classes WHERE is_active = TRUE ORDER BY created_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list active classes: %w", err)
	}
	return ids, nil
}
