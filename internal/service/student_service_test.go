package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
)

type mockStudentRepo struct {
	students map[string]*models.StudentDetail
	deleted  []string
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]*models.StudentDetail)}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var result []models.StudentDetail
	for _, s := range m.students {
		result = append(result, *s)
	}
	return result, len(result), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByMatricule(ctx context.Context, matricule string) (*models.Student, error) {
	for _, s := range m.students {
		if s.Matricule == matricule {
			student := s.Student
			return &student, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	var result []models.Student
	for _, s := range m.students {
		if s.ClassID == classID {
			result = append(result, s.Student)
		}
	}
	return result, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = fmt.Sprintf("stu-%d", len(m.students)+1)
	m.students[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockStudentClassRepo struct {
	classes   map[string]*models.Class
	refreshed []string
}

func (m *mockStudentClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentClassRepo) RefreshEnrollment(ctx context.Context, classID string) (int, error) {
	m.refreshed = append(m.refreshed, classID)
	return 0, nil
}

type mockStudentGradeRepo struct {
	grades         map[string][]models.Grade
	deletedStudent []string
}

func (m *mockStudentGradeRepo) ListByStudentTerm(ctx context.Context, studentID string, term int, schoolYear string) ([]models.Grade, error) {
	var result []models.Grade
	for _, g := range m.grades[studentID] {
		if g.Term == term && g.SchoolYear == schoolYear {
			result = append(result, g)
		}
	}
	return result, nil
}

func (m *mockStudentGradeRepo) DeleteByStudent(ctx context.Context, studentID string) error {
	m.deletedStudent = append(m.deletedStudent, studentID)
	delete(m.grades, studentID)
	return nil
}

func createStudentRequest(classID string) CreateStudentRequest {
	return CreateStudentRequest{
		LastName:      "Diop",
		FirstName:     "Awa",
		BirthDate:     time.Date(2010, time.March, 15, 0, 0, 0, 0, time.UTC),
		BirthPlace:    "Dakar",
		Gender:        "F",
		Address:       "Médina, Dakar",
		ClassID:       classID,
		FatherName:    "Mamadou Diop",
		MotherName:    "Fatou Sall",
		GuardianPhone: "771234567",
	}
}

func studentServiceFixture() (*StudentService, *mockStudentRepo, *mockStudentClassRepo, *mockStudentGradeRepo) {
	students := newMockStudentRepo()
	classes := &mockStudentClassRepo{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "6ème A", Level: "6ème", MaxCapacity: 40, Enrollment: 10},
		"class-2": {ID: "class-2", Name: "6ème B", Level: "6ème", MaxCapacity: 40, Enrollment: 39},
		"class-3": {ID: "class-3", Name: "6ème C", Level: "6ème", MaxCapacity: 40, Enrollment: 40},
	}}
	grades := &mockStudentGradeRepo{grades: make(map[string][]models.Grade)}
	svc := NewStudentService(students, classes, grades, &mockMatriculeGenerator{}, "2024-2025", nil, zap.NewNop())
	return svc, students, classes, grades
}

func TestStudentCreateGeneratesMatricule(t *testing.T) {
	svc, students, classes, _ := studentServiceFixture()

	student, err := svc.Create(context.Background(), createStudentRequest("class-1"))
	require.NoError(t, err)
	assert.Equal(t, "SN24D001", student.Matricule)
	assert.Equal(t, models.StudentStatusNew, student.Status)
	assert.Equal(t, "Sénégalaise", student.Nationality)
	assert.Len(t, students.students, 1)
	assert.Equal(t, []string{"class-1"}, classes.refreshed)
}

func TestStudentCreateRejectsFullClass(t *testing.T) {
	svc, students, _, _ := studentServiceFixture()

	_, err := svc.Create(context.Background(), createStudentRequest("class-3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacité")
	assert.Empty(t, students.students)
}

func TestStudentCreateRejectsDuplicateMatricule(t *testing.T) {
	svc, students, _, _ := studentServiceFixture()
	students.students["stu-existing"] = &models.StudentDetail{Student: models.Student{ID: "stu-existing", Matricule: "SN24D009", ClassID: "class-1"}}

	req := createStudentRequest("class-1")
	req.Matricule = "SN24D009"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matricule déjà utilisé")
}

func TestStudentCreateRejectsBadMatriculeFormat(t *testing.T) {
	svc, _, _, _ := studentServiceFixture()

	req := createStudentRequest("class-1")
	req.Matricule = "MAT-001"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
}

func TestStudentUpdateTransferRecountsBothClasses(t *testing.T) {
	svc, students, classes, _ := studentServiceFixture()
	students.students["stu-1"] = &models.StudentDetail{Student: models.Student{
		ID: "stu-1", Matricule: "SN24D001", LastName: "Diop", FirstName: "Awa", ClassID: "class-1", Status: models.StudentStatusNew,
	}}

	req := UpdateStudentRequest{
		LastName:      "Diop",
		FirstName:     "Awa",
		BirthDate:     time.Date(2010, time.March, 15, 0, 0, 0, 0, time.UTC),
		BirthPlace:    "Dakar",
		Gender:        "F",
		Address:       "Médina, Dakar",
		ClassID:       "class-2",
		FatherName:    "Mamadou Diop",
		MotherName:    "Fatou Sall",
		GuardianPhone: "771234567",
	}
	updated, err := svc.Update(context.Background(), "stu-1", req)
	require.NoError(t, err)
	assert.Equal(t, "class-2", updated.ClassID)
	// matricule untouched by updates
	assert.Equal(t, "SN24D001", updated.Matricule)
	assert.Equal(t, []string{"class-1", "class-2"}, classes.refreshed)
}

func TestStudentUpdateTransferToFullClassFails(t *testing.T) {
	svc, students, _, _ := studentServiceFixture()
	students.students["stu-1"] = &models.StudentDetail{Student: models.Student{
		ID: "stu-1", Matricule: "SN24D001", ClassID: "class-1",
	}}

	req := UpdateStudentRequest{
		LastName:      "Diop",
		FirstName:     "Awa",
		BirthDate:     time.Date(2010, time.March, 15, 0, 0, 0, 0, time.UTC),
		BirthPlace:    "Dakar",
		Gender:        "F",
		Address:       "Médina, Dakar",
		ClassID:       "class-3",
		FatherName:    "Mamadou Diop",
		MotherName:    "Fatou Sall",
		GuardianPhone: "771234567",
	}
	_, err := svc.Update(context.Background(), "stu-1", req)
	require.Error(t, err)
}

func TestStudentDeleteCascadesGrades(t *testing.T) {
	svc, students, classes, grades := studentServiceFixture()
	students.students["stu-1"] = &models.StudentDetail{Student: models.Student{ID: "stu-1", ClassID: "class-1"}}
	grades.grades["stu-1"] = subjectSet("stu-1", "Mathématiques", 4, 12, 14, 12)

	err := svc.Delete(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, grades.deletedStudent)
	assert.Equal(t, []string{"stu-1"}, students.deleted)
	assert.Equal(t, []string{"class-1"}, classes.refreshed)
}

func TestStudentGetGroupsGradesByTerm(t *testing.T) {
	svc, students, _, grades := studentServiceFixture()
	students.students["stu-1"] = &models.StudentDetail{Student: models.Student{ID: "stu-1", ClassID: "class-1"}}
	grades.grades["stu-1"] = subjectSet("stu-1", "Mathématiques", 2, 10, 12, 14)

	record, err := svc.Get(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, record.Terms, 3)
	assert.Equal(t, 1, record.Terms[0].Term)
	assert.Len(t, record.Terms[0].Grades, 3)
	require.NotNil(t, record.Terms[0].Mean)
	// unweighted within a subject: equal coefficients give the plain mean
	assert.Equal(t, 12.0, *record.Terms[0].Mean)
	assert.Empty(t, record.Terms[1].Grades)
	assert.Nil(t, record.Terms[1].Mean)
}

func TestStudentDemographics(t *testing.T) {
	svc, students, _, _ := studentServiceFixture()
	students.students["a"] = &models.StudentDetail{Student: models.Student{ID: "a", ClassID: "class-1", Gender: "M", Status: models.StudentStatusNew}}
	students.students["b"] = &models.StudentDetail{Student: models.Student{ID: "b", ClassID: "class-1", Gender: "F", Status: models.StudentStatusReEnrolled}}
	students.students["c"] = &models.StudentDetail{Student: models.Student{ID: "c", ClassID: "class-1", Gender: "F", Status: models.StudentStatusNew}}
	students.students["d"] = &models.StudentDetail{Student: models.Student{ID: "d", ClassID: "class-2", Gender: "M", Status: models.StudentStatusNew}}

	stats, err := svc.Demographics(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Boys)
	assert.Equal(t, 2, stats.Girls)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, 1, stats.ReEnrolled)
}
