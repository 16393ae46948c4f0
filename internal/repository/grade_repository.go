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

// GradeRepository manages persistence for grade records.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = "g.id, g.student_id, g.subject, g.kind, g.mark, g.coefficient, g.term, g.school_year, g.evaluated_at, g.remark, g.created_at, g.updated_at"

// List returns grades matching the filter. A class filter is expanded
// through the students table.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	base := "FROM grades g"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.ClassID != "" {
		base += " JOIN students s ON s.id = g.student_id"
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("g.subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("g.kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if filter.Term != 0 {
		conditions = append(conditions, fmt.Sprintf("g.term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("g.school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY g.term, g.subject, g.kind", gradeColumns, base, strings.Join(conditions, " AND "))

	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// FindByID fetches a grade by ID, or sql.ErrNoRows.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades g WHERE g.id = $1", gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FindByKey resolves a grade by its uniqueness tuple, or sql.ErrNoRows.
// Duplicate detection runs through this lookup before every insert.
func (r *GradeRepository) FindByKey(ctx context.Context, key models.GradeKey) (*models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades g
        WHERE g.student_id = $1 AND g.subject = $2 AND g.kind = $3 AND g.term = $4 AND g.school_year = $5`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, key.StudentID, key.Subject, key.Kind, key.Term, key.SchoolYear); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByStudentTerm returns every grade of one student for a term and year.
func (r *GradeRepository) ListByStudentTerm(ctx context.Context, studentID string, term int, schoolYear string) ([]models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades g
        WHERE g.student_id = $1 AND g.term = $2 AND g.school_year = $3 ORDER BY g.subject, g.kind`, gradeColumns)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, studentID, term, schoolYear); err != nil {
		return nil, fmt.Errorf("list student term grades: %w", err)
	}
	return grades, nil
}

// Create inserts a new grade record.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	if grade.EvaluatedAt.IsZero() {
		grade.EvaluatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, student_id, subject, kind, mark, coefficient, term, school_year, evaluated_at, remark, created_at, updated_at)
        VALUES (:id, :student_id, :subject, :kind, :mark, :coefficient, :term, :school_year, :evaluated_at, :remark, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update modifies an existing grade.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET subject = :subject, kind = :kind, mark = :mark, coefficient = :coefficient,
        term = :term, school_year = :school_year, evaluated_at = :evaluated_at, remark = :remark,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade record.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM grades WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByStudent removes every grade of one student. Student deletion
// cascades through this call.
func (r *GradeRepository) DeleteByStudent(ctx context.Context, studentID string) error {
	const query = `DELETE FROM grades WHERE student_id = $1`
	if _, err := r.db.ExecContext(ctx, query, studentID); err != nil {
		return fmt.Errorf("delete student grades: %w", err)
	}
	return nil
}
