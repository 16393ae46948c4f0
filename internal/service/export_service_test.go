package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	"github.com/teranga-edu/gesco-api/pkg/export"
)

type mockCSVRenderer struct {
	datasets []export.Dataset
}

func (m *mockCSVRenderer) Render(data export.Dataset) ([]byte, error) {
	m.datasets = append(m.datasets, data)
	return []byte("csv"), nil
}

type mockPDFRenderer struct {
	datasets []export.Dataset
	titles   []string
	meta     [][]export.MetaLine
}

func (m *mockPDFRenderer) Render(data export.Dataset, title string, meta []export.MetaLine) ([]byte, error) {
	m.datasets = append(m.datasets, data)
	m.titles = append(m.titles, title)
	m.meta = append(m.meta, meta)
	return []byte("pdf"), nil
}

type mockExportArchive struct {
	stored map[string]string
	fail   bool
}

func (m *mockExportArchive) Store(category, filename string, data []byte) (string, error) {
	if m.fail {
		return "", errors.New("disk full")
	}
	if m.stored == nil {
		m.stored = make(map[string]string)
	}
	m.stored[filename] = category
	return category + "/" + filename, nil
}

type exportFixture struct {
	svc      *ExportService
	csv      *mockCSVRenderer
	pdf      *mockPDFRenderer
	archive  *mockExportArchive
	classes  *mockClassRepo
	students *mockClassStudentRepo
}

func newExportFixture(t *testing.T, gradeStore map[string][]models.Grade, roster []models.Student) *exportFixture {
	t.Helper()
	grades := &mockAverageGradeRepo{grades: gradeStore}
	classStudents := &mockAverageStudentRepo{students: roster}
	averages := NewAverageService(grades, classStudents, nil, 0, zap.NewNop())

	className := "6ème A"
	level := "6ème"
	reportStudents := &mockReportStudentRepo{students: map[string]*models.StudentDetail{}}
	for _, s := range roster {
		detail := &models.StudentDetail{Student: s, ClassName: &className, ClassLevel: &level}
		reportStudents.students[s.ID] = detail
	}
	reports := NewReportService(reportStudents, averages, zap.NewNop())

	classes := newMockClassRepo()
	classes.classes["class-1"] = &models.Class{ID: "class-1", Name: "6ème A", Level: "6ème", SchoolYear: "2024-2025"}
	students := &mockClassStudentRepo{students: map[string][]models.Student{"class-1": roster}}

	csv := &mockCSVRenderer{}
	pdf := &mockPDFRenderer{}
	archive := &mockExportArchive{}
	svc := NewExportService(reports, averages, classes, students, csv, pdf, archive, zap.NewNop())
	return &exportFixture{svc: svc, csv: csv, pdf: pdf, archive: archive, classes: classes, students: students}
}

func exportRoster() []models.Student {
	return []models.Student{
		{ID: "stu-1", Matricule: "SN24D001", LastName: "Diop", FirstName: "Awa", Gender: "F", ClassID: "class-1", Status: models.StudentStatusNew, GuardianPhone: "771234567"},
		{ID: "stu-2", Matricule: "SN24B001", LastName: "Ba", FirstName: "Omar", Gender: "M", ClassID: "class-1", Status: models.StudentStatusReEnrolled, GuardianPhone: "781234567"},
	}
}

func TestExportReportCardPDF(t *testing.T) {
	f := newExportFixture(t, map[string][]models.Grade{
		"stu-1": subjectSet("stu-1", "Mathématiques", 4, 12, 14, 12),
	}, exportRoster())

	file, err := f.svc.ReportCardPDF(context.Background(), "stu-1", 1, "2024-2025")
	require.NoError(t, err)
	assert.Equal(t, "bulletin_SN24D001_T1.pdf", file.Filename)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, []byte("pdf"), file.Data)

	require.Len(t, f.pdf.datasets, 1)
	dataset := f.pdf.datasets[0]
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "12.50", dataset.Rows[0]["Moyenne"])
	assert.Equal(t, "Oui", dataset.Rows[0]["Admis"])
	assert.Equal(t, [][]string{
		{"Moyenne générale", "12.50"},
		{"Mention", "Bien"},
		{"Appréciation", "Bien"},
	}, dataset.Footer)

	require.Len(t, f.pdf.meta, 1)
	assert.Equal(t, export.MetaLine{Label: "Élève", Value: "Diop Awa"}, f.pdf.meta[0][0])
	assert.Equal(t, "bulletins", f.archive.stored["bulletin_SN24D001_T1.pdf"])
}

func TestExportRankingCSV(t *testing.T) {
	f := newExportFixture(t, map[string][]models.Grade{
		"stu-1": subjectSet("stu-1", "Mathématiques", 4, 12, 14, 12),
		"stu-2": {
			{StudentID: "stu-2", Subject: "Mathématiques", Kind: models.GradeKindFirstAssignment, Mark: 9, Coefficient: 4, Term: 1, SchoolYear: "2024-2025"},
		},
	}, exportRoster())

	file, err := f.svc.RankingCSV(context.Background(), "class-1", 1, "2024-2025")
	require.NoError(t, err)
	assert.Equal(t, "classement_6ème A_T1.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	require.Len(t, f.csv.datasets, 1)
	dataset := f.csv.datasets[0]
	require.Len(t, dataset.Rows, 2)
	assert.Equal(t, "1", dataset.Rows[0]["Rang"])
	assert.Equal(t, "12.50", dataset.Rows[0]["Moyenne"])
	// incomplete student trails without rank or average
	assert.Equal(t, "", dataset.Rows[1]["Rang"])
	assert.Equal(t, models.NotEvaluated, dataset.Rows[1]["Moyenne"])
	assert.Equal(t, []string{"Effectif", "2"}, dataset.Footer[0])
	assert.Equal(t, "classements", f.archive.stored[file.Filename])
}

func TestExportRankingPDFMeta(t *testing.T) {
	f := newExportFixture(t, map[string][]models.Grade{
		"stu-1": subjectSet("stu-1", "Mathématiques", 4, 12, 14, 12),
	}, exportRoster())

	file, err := f.svc.RankingPDF(context.Background(), "class-1", 2, "2024-2025")
	require.NoError(t, err)
	assert.Equal(t, "classement_6ème A_T2.pdf", file.Filename)
	require.Len(t, f.pdf.meta, 1)
	assert.Equal(t, export.MetaLine{Label: "Classe", Value: "6ème A"}, f.pdf.meta[0][0])
	assert.Equal(t, "Classement de la classe", f.pdf.titles[0])
}

func TestExportRosterCSV(t *testing.T) {
	f := newExportFixture(t, map[string][]models.Grade{}, exportRoster())

	file, err := f.svc.RosterCSV(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Contains(t, file.Filename, "liste_6ème A_")

	require.Len(t, f.csv.datasets, 1)
	dataset := f.csv.datasets[0]
	assert.Equal(t, models.FieldMatricule, dataset.Headers[0])
	require.Len(t, dataset.Rows, 2)
	assert.Equal(t, "SN24D001", dataset.Rows[0][models.FieldMatricule])
	assert.Equal(t, "771234567", dataset.Rows[0][models.FieldGuardianPhone])
}

func TestExportArchiveFailureDoesNotFailDownload(t *testing.T) {
	f := newExportFixture(t, map[string][]models.Grade{
		"stu-1": subjectSet("stu-1", "Mathématiques", 4, 12, 14, 12),
	}, exportRoster())
	f.archive.fail = true

	file, err := f.svc.ReportCardPDF(context.Background(), "stu-1", 1, "2024-2025")
	require.NoError(t, err)
	assert.NotEmpty(t, file.Data)
}

func TestExportUnknownClass(t *testing.T) {
	f := newExportFixture(t, map[string][]models.Grade{}, exportRoster())

	_, err := f.svc.RankingCSV(context.Background(), "ghost", 1, "2024-2025")
	require.Error(t, err)
}
