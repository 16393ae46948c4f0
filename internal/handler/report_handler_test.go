package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	"github.com/teranga-edu/gesco-api/internal/service"
)

type rankingGradeRepoMock struct {
	grades map[string][]models.Grade
}

func (m *rankingGradeRepoMock) ListByStudentTerm(ctx context.Context, studentID string, term int, schoolYear string) ([]models.Grade, error) {
	return m.grades[studentID], nil
}

type rankingStudentRepoMock struct {
	students []models.Student
}

func (m *rankingStudentRepoMock) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	return m.students, nil
}

func newRankingHandler() *ReportHandler {
	grades := &rankingGradeRepoMock{grades: map[string][]models.Grade{
		"stu-1": {
			{StudentID: "stu-1", Subject: "Maths", Coefficient: 2, Kind: models.GradeKindFirstAssignment, Mark: 12, Term: 1, SchoolYear: "2024-2025"},
			{StudentID: "stu-1", Subject: "Maths", Coefficient: 2, Kind: models.GradeKindSecondAssignment, Mark: 14, Term: 1, SchoolYear: "2024-2025"},
			{StudentID: "stu-1", Subject: "Maths", Coefficient: 2, Kind: models.GradeKindExamination, Mark: 13, Term: 1, SchoolYear: "2024-2025"},
		},
	}}
	students := &rankingStudentRepoMock{students: []models.Student{
		{ID: "stu-1", Matricule: "SN24D001", LastName: "Diop", FirstName: "Awa", Gender: "F"},
	}}
	averages := service.NewAverageService(grades, students, nil, time.Minute, zap.NewNop())
	return NewReportHandler(nil, averages, nil, "2024-2025")
}

func TestReportHandlerRankingInvalidTerm(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRankingHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, "/classes/class-1/ranking?term=5", nil)
	require.NoError(t, err)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.Ranking(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "trimestre invalide")
}

func TestReportHandlerRanking(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRankingHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, "/classes/class-1/ranking?term=1", nil)
	require.NoError(t, err)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.Ranking(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.ClassRanking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "class-1", envelope.Data.ClassID)
	assert.Equal(t, "2024-2025", envelope.Data.SchoolYear)
	require.Len(t, envelope.Data.Entries, 1)
	entry := envelope.Data.Entries[0]
	require.NotNil(t, entry.Average)
	assert.InDelta(t, 13.0, *entry.Average, 0.001)
	require.NotNil(t, entry.Rank)
	assert.Equal(t, 1, *entry.Rank)
}

func TestReportHandlerRankingExportUnsupportedFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRankingHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, "/classes/class-1/ranking/export?format=xlsx", nil)
	require.NoError(t, err)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.RankingExport(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "format non supporté")
}

func TestReportHandlerSubjectAverage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRankingHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, "/students/stu-1/averages/subject?subject=Maths&term=1", nil)
	require.NoError(t, err)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}

	handler.SubjectAverage(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.SubjectAverage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Complete)
	assert.InDelta(t, 13.0, envelope.Data.Average, 0.001)
}
