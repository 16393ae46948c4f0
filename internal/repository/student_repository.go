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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `s.id, s.matricule, s.last_name, s.first_name, s.birth_date, s.birth_place, s.gender,
        s.address, s.phone, s.email, s.class_id, s.father_name, s.father_occupation, s.mother_name,
        s.mother_occupation, s.guardian_phone, s.status, s.nationality, s.enrolled_at, s.created_at, s.updated_at`

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN classes c ON c.id = s.class_id"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.last_name) LIKE $%d OR LOWER(s.first_name) LIKE $%d OR LOWER(s.matricule) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"last_name":  "s.last_name",
		"matricule":  "s.matricule",
		"created_at": "s.created_at",
	}
	if sortBy == "" {
		sortBy = "last_name"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.last_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, c.name AS class_name, c.level AS class_level
        %s ORDER BY %s %s, s.first_name ASC LIMIT %d OFFSET %d`, studentColumns, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(s.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, c.name AS class_name, c.level AS class_level
        FROM students s LEFT JOIN classes c ON c.id = s.class_id WHERE s.id = $1`, studentColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByMatricule fetches a student by matricule, or sql.ErrNoRows.
func (r *StudentRepository) FindByMatricule(ctx context.Context, matricule string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.matricule = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, matricule); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByIdentity resolves a student by the import identity key
// (surname, given name, class), or sql.ErrNoRows.
func (r *StudentRepository) FindByIdentity(ctx context.Context, identity models.StudentIdentity) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s
        WHERE s.last_name = $1 AND s.first_name = $2 AND s.class_id = $3`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, identity.LastName, identity.FirstName, identity.ClassID); err != nil {
		return nil, err
	}
	return &student, nil
}

// CountByMatriculePrefix counts students whose matricule starts with prefix.
// Matricule generation derives the next sequence number from this count.
func (r *StudentRepository) CountByMatriculePrefix(ctx context.Context, prefix string) (int, error) {
	const query = "SELECT COUNT(id) FROM students WHERE matricule LIKE $1"
	var count int
	if err := r.db.GetContext(ctx, &count, query, prefix+"%"); err != nil {
		return 0, fmt.Errorf("count matricule prefix: %w", err)
	}
	return count, nil
}

// ListByClass returns every student of one class ordered by name.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.class_id = $1 ORDER BY s.last_name, s.first_name", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	if student.EnrolledAt.IsZero() {
		student.EnrolledAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, matricule, last_name, first_name, birth_date, birth_place, gender,
        address, phone, email, class_id, father_name, father_occupation, mother_name, mother_occupation,
        guardian_phone, status, nationality, enrolled_at, created_at, updated_at)
        VALUES (:id, :matricule, :last_name, :first_name, :birth_date, :birth_place, :gender,
        :address, :phone, :email, :class_id, :father_name, :father_occupation, :mother_name, :mother_occupation,
        :guardian_phone, :status, :nationality, :enrolled_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student. The matricule is immutable and is
// deliberately left out of the statement.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET last_name = :last_name, first_name = :first_name, birth_date = :birth_date,
        birth_place = :birth_place, gender = :gender, address = :address, phone = :phone, email = :email,
        class_id = :class_id, father_name = :father_name, father_occupation = :father_occupation,
        mother_name = :mother_name, mother_occupation = :mother_occupation, guardian_phone = :guardian_phone,
        status = :status, nationality = :nationality, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student record.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM students WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
