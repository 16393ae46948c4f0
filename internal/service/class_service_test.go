package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
)

type mockClassRepo struct {
	classes  map[string]*models.Class
	counts   map[string]int
	deleted  []string
	levelAgg []models.LevelStats
}

func newMockClassRepo() *mockClassRepo {
	return &mockClassRepo{classes: make(map[string]*models.Class), counts: make(map[string]int)}
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error) {
	var result []models.Class
	for _, c := range m.classes {
		if filter.Level != "" && c.Level != filter.Level {
			continue
		}
		if filter.SchoolYear != "" && c.SchoolYear != filter.SchoolYear {
			continue
		}
		result = append(result, *c)
	}
	return result, nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) FindByNameAndLevel(ctx context.Context, name, level, schoolYear string) (*models.Class, error) {
	for _, c := range m.classes {
		if c.Name == name && c.Level == level && c.SchoolYear == schoolYear {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	class.ID = fmt.Sprintf("class-%d", len(m.classes)+1)
	m.classes[class.ID] = class
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	m.classes[class.ID] = class
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	delete(m.classes, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockClassRepo) CountStudents(ctx context.Context, classID string) (int, error) {
	return m.counts[classID], nil
}

func (m *mockClassRepo) LevelStats(ctx context.Context) ([]models.LevelStats, error) {
	return m.levelAgg, nil
}

type mockClassStudentRepo struct {
	students map[string][]models.Student
}

func (m *mockClassStudentRepo) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	return m.students[classID], nil
}

func classServiceFixture() (*ClassService, *mockClassRepo, *mockClassStudentRepo) {
	classes := newMockClassRepo()
	students := &mockClassStudentRepo{students: make(map[string][]models.Student)}
	svc := NewClassService(classes, students, ClassDefaults{SchoolYear: "2024-2025"}, nil, zap.NewNop())
	return svc, classes, students
}

func TestClassCreateAppliesDefaults(t *testing.T) {
	svc, _, _ := classServiceFixture()

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "6ème A", Level: "6ème"})
	require.NoError(t, err)
	assert.Equal(t, "2024-2025", class.SchoolYear)
	assert.Equal(t, 40, class.MaxCapacity)
	assert.Equal(t, "À définir", class.HeadTeacher)
}

func TestClassCreateRejectsDuplicate(t *testing.T) {
	svc, _, _ := classServiceFixture()

	_, err := svc.Create(context.Background(), CreateClassRequest{Name: "6ème A", Level: "6ème"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateClassRequest{Name: "6ème A", Level: "6ème"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrClassExists.Code, appErr.Code)
}

func TestClassCreateRejectsUnknownLevel(t *testing.T) {
	svc, _, _ := classServiceFixture()

	_, err := svc.Create(context.Background(), CreateClassRequest{Name: "L1 Info", Level: "Licence 1"})
	require.Error(t, err)
}

func TestClassCreateRejectsUnknownTrack(t *testing.T) {
	svc, _, _ := classServiceFixture()

	track := "Z"
	_, err := svc.Create(context.Background(), CreateClassRequest{Name: "1ère Z", Level: "1ère", Track: &track})
	require.Error(t, err)
}

func TestClassCreateAcceptsTrack(t *testing.T) {
	svc, _, _ := classServiceFixture()

	track := "S"
	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "1ère S1", Level: "1ère", Track: &track})
	require.NoError(t, err)
	require.NotNil(t, class.Track)
	assert.Equal(t, "S", *class.Track)
}

func TestClassUpdateRenameToExistingFails(t *testing.T) {
	svc, _, _ := classServiceFixture()

	first, err := svc.Create(context.Background(), CreateClassRequest{Name: "6ème A", Level: "6ème"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateClassRequest{Name: "6ème B", Level: "6ème"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), first.ID, UpdateClassRequest{Name: "6ème B", Level: "6ème"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrClassExists.Code, appErr.Code)
}

func TestClassUpdateKeepsNameAllowed(t *testing.T) {
	svc, _, _ := classServiceFixture()

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "6ème A", Level: "6ème"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), class.ID, UpdateClassRequest{Name: "6ème A", Level: "6ème", HeadTeacher: "M. Ndiaye", MaxCapacity: 50})
	require.NoError(t, err)
	assert.Equal(t, "M. Ndiaye", updated.HeadTeacher)
	assert.Equal(t, 50, updated.MaxCapacity)
}

func TestClassDeleteRefusesNonEmpty(t *testing.T) {
	svc, classes, _ := classServiceFixture()

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "6ème A", Level: "6ème"})
	require.NoError(t, err)
	classes.counts[class.ID] = 12

	err = svc.Delete(context.Background(), class.ID)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrClassNotEmpty.Code, appErr.Code)
	assert.Empty(t, classes.deleted)
}

func TestClassDeleteEmpty(t *testing.T) {
	svc, classes, _ := classServiceFixture()

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "6ème A", Level: "6ème"})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), class.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{class.ID}, classes.deleted)
}

func TestClassRoster(t *testing.T) {
	svc, _, students := classServiceFixture()

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "6ème A", Level: "6ème"})
	require.NoError(t, err)
	students.students[class.ID] = []models.Student{{ID: "stu-1", ClassID: class.ID}}

	roster, err := svc.Roster(context.Background(), class.ID)
	require.NoError(t, err)
	assert.Equal(t, class.ID, roster.Class.ID)
	assert.Len(t, roster.Students, 1)
}

func TestClassListDefaultsToCurrentYear(t *testing.T) {
	svc, classes, _ := classServiceFixture()
	classes.classes["old"] = &models.Class{ID: "old", Name: "6ème A", Level: "6ème", SchoolYear: "2023-2024"}
	classes.classes["new"] = &models.Class{ID: "new", Name: "6ème A", Level: "6ème", SchoolYear: "2024-2025"}

	result, err := svc.List(context.Background(), models.ClassFilter{})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "new", result[0].ID)
}
