package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	"github.com/teranga-edu/gesco-api/internal/service"
)

type importStudentRepoMock struct {
	created []*models.Student
}

func (m *importStudentRepoMock) FindByMatricule(ctx context.Context, matricule string) (*models.Student, error) {
	return nil, sql.ErrNoRows
}

func (m *importStudentRepoMock) FindByIdentity(ctx context.Context, identity models.StudentIdentity) (*models.Student, error) {
	return nil, sql.ErrNoRows
}

func (m *importStudentRepoMock) Create(ctx context.Context, student *models.Student) error {
	student.ID = fmt.Sprintf("stu-%d", len(m.created)+1)
	m.created = append(m.created, student)
	return nil
}

func (m *importStudentRepoMock) Update(ctx context.Context, student *models.Student) error {
	return nil
}

type importClassRepoMock struct {
	created []*models.Class
}

func (m *importClassRepoMock) FindByNameAndLevel(ctx context.Context, name, level, schoolYear string) (*models.Class, error) {
	for _, c := range m.created {
		if c.Name == name && c.Level == level {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *importClassRepoMock) Create(ctx context.Context, class *models.Class) error {
	class.ID = fmt.Sprintf("class-%d", len(m.created)+1)
	m.created = append(m.created, class)
	return nil
}

func (m *importClassRepoMock) RefreshEnrollment(ctx context.Context, classID string) (int, error) {
	return 0, nil
}

type matriculeGeneratorMock struct {
	sequence int
}

func (m *matriculeGeneratorMock) Generate(ctx context.Context, lastName string) (string, error) {
	m.sequence++
	return fmt.Sprintf("SN24%c%03d", lastName[0], m.sequence), nil
}

func newImportHandler() (*ImportHandler, *importStudentRepoMock) {
	students := &importStudentRepoMock{}
	imports := service.NewImportService(students, &importClassRepoMock{}, &matriculeGeneratorMock{}, service.ImportDefaults{SchoolYear: "2024-2025"}, zap.NewNop())
	return NewImportHandler(imports), students
}

func uploadRequest(t *testing.T, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "eleves.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/imports/validate", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestImportHandlerValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newImportHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	// short record: the trailing columns must land as empty fields
	c.Request = uploadRequest(t, "Nom,Prénom,Classe,Niveau,Nom Père,Nom Mère,Téléphone Parent\nDiop,Awa,6ème A,6ème,Mamadou Diop,Fatou Sall,771234567\nNdiaye,Moussa\n")

	handler.Validate(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.ValidationReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.Valid)
	// the second data row reports as row 4 under the offset numbering
	require.NotEmpty(t, envelope.Data.Errors)
	for _, violation := range envelope.Data.Errors {
		assert.Equal(t, 4, violation.Row)
	}
	assert.Len(t, envelope.Data.Errors, 5)
}

func TestImportHandlerValidateMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newImportHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodPost, "/imports/validate", nil)
	require.NoError(t, err)
	c.Request = req

	handler.Validate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandlerValidateEmptyFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newImportHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = uploadRequest(t, "")

	handler.Validate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandlerReconcile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, students := newImportHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = uploadRequest(t, "Nom,Prénom,Classe,Niveau,Nom Père,Nom Mère,Téléphone Parent\nDiop,Awa,6ème A,6ème,Mamadou Diop,Fatou Sall,771234567\n")

	handler.Reconcile(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.ImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.Created)
	require.Len(t, students.created, 1)
	assert.Equal(t, "SN24D001", students.created[0].Matricule)
}

func TestImportHandlerTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newImportHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, "/imports/template", nil)
	require.NoError(t, err)
	c.Request = req

	handler.Template(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "modele_import_eleves.csv")
	assert.Contains(t, w.Body.String(), models.FieldMatricule)
	assert.Contains(t, w.Body.String(), models.FieldGuardianPhone)
}
