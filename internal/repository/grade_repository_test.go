package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranga-edu/gesco-api/internal/models"
)

func newGradeMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var gradeRowColumns = []string{"id", "student_id", "subject", "kind", "mark", "coefficient", "term", "school_year", "evaluated_at", "remark", "created_at", "updated_at"}

func gradeRowValues(id, kind string, mark float64) []driver.Value {
	now := time.Now()
	return []driver.Value{id, "stu-1", "Mathématiques", kind, mark, 4, 1, "2024-2025", now, "", now, now}
}

func TestGradeRepositoryFindByKey(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery("SELECT .+ FROM grades g\\s+WHERE g.student_id").
		WithArgs("stu-1", "Mathématiques", models.GradeKindExamination, 1, "2024-2025").
		WillReturnRows(sqlmock.NewRows(gradeRowColumns).AddRow(gradeRowValues("grade-1", models.GradeKindExamination, 15)...))

	grade, err := repo.FindByKey(context.Background(), models.GradeKey{
		StudentID:  "stu-1",
		Subject:    "Mathématiques",
		Kind:       models.GradeKindExamination,
		Term:       1,
		SchoolYear: "2024-2025",
	})
	require.NoError(t, err)
	assert.Equal(t, "grade-1", grade.ID)
	assert.Equal(t, 15.0, grade.Mark)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryFindByKeyNotFound(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery("SELECT .+ FROM grades g\\s+WHERE g.student_id").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByKey(context.Background(), models.GradeKey{StudentID: "stu-1", Subject: "Anglais", Kind: models.GradeKindFirstAssignment, Term: 1, SchoolYear: "2024-2025"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGradeRepositoryListByStudentTerm(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows(gradeRowColumns).
		AddRow(gradeRowValues("grade-1", models.GradeKindFirstAssignment, 12)...).
		AddRow(gradeRowValues("grade-2", models.GradeKindSecondAssignment, 14)...)
	mock.ExpectQuery("SELECT .+ FROM grades g\\s+WHERE g.student_id = \\$1 AND g.term").
		WithArgs("stu-1", 1, "2024-2025").
		WillReturnRows(rows)

	grades, err := repo.ListByStudentTerm(context.Background(), "stu-1", 1, "2024-2025")
	require.NoError(t, err)
	require.Len(t, grades, 2)
	assert.Equal(t, models.GradeKindSecondAssignment, grades[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListFilterByClassJoinsStudents(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery("FROM grades g JOIN students s ON s.id = g.student_id WHERE 1=1 AND s.class_id").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows(gradeRowColumns).AddRow(gradeRowValues("grade-1", models.GradeKindFirstAssignment, 12)...))

	grades, err := repo.List(context.Background(), models.GradeFilter{ClassID: "class-1"})
	require.NoError(t, err)
	assert.Len(t, grades, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec("INSERT INTO grades").
		WillReturnResult(sqlmock.NewResult(1, 1))

	grade := &models.Grade{StudentID: "stu-1", Subject: "Mathématiques", Kind: models.GradeKindFirstAssignment, Mark: 14, Coefficient: 4, Term: 1, SchoolYear: "2024-2025"}
	err := repo.Create(context.Background(), grade)
	require.NoError(t, err)
	assert.NotEmpty(t, grade.ID)
	assert.False(t, grade.EvaluatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec("DELETE FROM grades WHERE id").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGradeRepositoryDeleteByStudent(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec("DELETE FROM grades WHERE student_id").
		WithArgs("stu-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.DeleteByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
