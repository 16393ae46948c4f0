package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/teranga-edu/gesco-api/internal/models"
)

// ClassRepository manages persistence for class records.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = "id, name, level, track, head_teacher, max_capacity, school_year, enrollment, created_at, updated_at"

// List returns classes matching the filter, ordered by level then name.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	query := fmt.Sprintf("SELECT %s FROM classes WHERE %s ORDER BY level, name", classColumns, strings.Join(conditions, " AND "))

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindByID fetches a class by ID, or sql.ErrNoRows.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE id = $1", classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByNameAndLevel resolves a class by its (name, level, school year)
// natural key, or sql.ErrNoRows.
func (r *ClassRepository) FindByNameAndLevel(ctx context.Context, name, level, schoolYear string) (*models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE name = $1 AND level = $2 AND school_year = $3", classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, name, level, schoolYear); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create inserts a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, level, track, head_teacher, max_capacity, school_year, enrollment, created_at, updated_at)
        VALUES (:id, :name, :level, :track, :head_teacher, :max_capacity, :school_year, :enrollment, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies an existing class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, level = :level, track = :track, head_teacher = :head_teacher,
        max_capacity = :max_capacity, school_year = :school_year, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class record.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM classes WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountStudents returns the live number of students referencing the class.
func (r *ClassRepository) CountStudents(ctx context.Context, classID string) (int, error) {
	const query = "SELECT COUNT(id) FROM students WHERE class_id = $1"
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return count, nil
}

// RefreshEnrollment recomputes the cached enrollment from a full recount.
// A recount rather than an increment keeps the cache correct across
// interleaved or partially failed operations.
func (r *ClassRepository) RefreshEnrollment(ctx context.Context, classID string) (int, error) {
	const query = `UPDATE classes
        SET enrollment = (SELECT COUNT(id) FROM students WHERE class_id = $1), updated_at = $2
        WHERE id = $1
        RETURNING enrollment`
	var enrollment int
	if err := r.db.GetContext(ctx, &enrollment, query, classID, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("refresh enrollment: %w", err)
	}
	return enrollment, nil
}

// LevelStats aggregates class counts, enrollment and capacity per level.
func (r *ClassRepository) LevelStats(ctx context.Context) ([]models.LevelStats, error) {
	const query = `SELECT level, COUNT(id) AS class_count, COALESCE(SUM(enrollment), 0) AS enrollment,
        COALESCE(SUM(max_capacity), 0) AS total_capacity
        FROM classes GROUP BY level ORDER BY level`
	var stats []models.LevelStats
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("level stats: %w", err)
	}
	return stats, nil
}
