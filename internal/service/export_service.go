package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	"github.com/teranga-edu/gesco-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, meta []export.MetaLine) ([]byte, error)
}

type exportArchive interface {
	Store(category, filename string, data []byte) (string, error)
}

// ExportFile is a rendered document ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders report cards and class rankings into downloadable
// documents.
type ExportService struct {
	reports  *ReportService
	averages *AverageService
	classes  classRepo
	students classStudentRepo
	csv      csvRenderer
	pdf      pdfRenderer
	archive  exportArchive
	logger   *zap.Logger
}

// NewExportService constructs an ExportService. archive may be nil, which
// disables keeping dated copies of generated documents.
func NewExportService(reports *ReportService, averages *AverageService, classes classRepo, students classStudentRepo, csv csvRenderer, pdf pdfRenderer, archive exportArchive, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		reports:  reports,
		averages: averages,
		classes:  classes,
		students: students,
		csv:      csv,
		pdf:      pdf,
		archive:  archive,
		logger:   logger,
	}
}

// archiveCopy stores a best-effort dated copy of a generated document. A
// failed write never fails the download itself.
func (s *ExportService) archiveCopy(category string, file *ExportFile) {
	if s.archive == nil {
		return
	}
	rel, err := s.archive.Store(category, file.Filename, file.Data)
	if err != nil {
		s.logger.Warn("export archive write failed", zap.String("filename", file.Filename), zap.Error(err))
		return
	}
	s.logger.Debug("export archived", zap.String("path", rel))
}

// ReportCardPDF renders one student's term report card.
func (s *ExportService) ReportCardPDF(ctx context.Context, studentID string, term int, schoolYear string) (*ExportFile, error) {
	card, err := s.reports.BuildReport(ctx, studentID, term, schoolYear)
	if err != nil {
		return nil, err
	}

	headers := []string{"Matière", "Coef", "Devoir 1", "Devoir 2", "Composition", "Moyenne", "Admis"}
	dataset := export.Dataset{Headers: headers}
	for _, subject := range card.Subjects {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Matière":     subject.Subject,
			"Coef":        strconv.Itoa(subject.Coefficient),
			"Devoir 1":    formatMark(subject.Marks.FirstAssignment),
			"Devoir 2":    formatMark(subject.Marks.SecondAssignment),
			"Composition": formatMark(subject.Marks.Examination),
			"Moyenne":     formatMark(subject.Average),
			"Admis":       formatAdmission(subject.Admitted),
		})
	}
	dataset.Footer = [][]string{
		{"Moyenne générale", formatMark(card.OverallAverage)},
		{"Mention", card.Mention},
		{"Appréciation", card.Appreciation},
	}

	className := ""
	if card.Student.ClassName != nil {
		className = *card.Student.ClassName
	}
	meta := []export.MetaLine{
		{Label: "Élève", Value: card.Student.LastName + " " + card.Student.FirstName},
		{Label: "Matricule", Value: card.Student.Matricule},
		{Label: "Classe", Value: className},
		{Label: "Trimestre", Value: strconv.Itoa(card.Term)},
		{Label: "Année scolaire", Value: card.SchoolYear},
	}

	data, err := s.pdf.Render(dataset, "Bulletin de notes", meta)
	if err != nil {
		return nil, fmt.Errorf("render report card: %w", err)
	}
	file := &ExportFile{
		Filename:    fmt.Sprintf("bulletin_%s_T%d.pdf", card.Student.Matricule, card.Term),
		ContentType: "application/pdf",
		Data:        data,
	}
	s.archiveCopy("bulletins", file)
	return file, nil
}

// RankingCSV renders a class ranking table with its summary statistics.
func (s *ExportService) RankingCSV(ctx context.Context, classID string, term int, schoolYear string) (*ExportFile, error) {
	dataset, class, _, err := s.rankingDataset(ctx, classID, term, schoolYear)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(*dataset)
	if err != nil {
		return nil, fmt.Errorf("render ranking csv: %w", err)
	}
	file := &ExportFile{
		Filename:    fmt.Sprintf("classement_%s_T%d.csv", class.Name, term),
		ContentType: "text/csv",
		Data:        data,
	}
	s.archiveCopy("classements", file)
	return file, nil
}

// RankingPDF renders the same ranking table as a PDF document.
func (s *ExportService) RankingPDF(ctx context.Context, classID string, term int, schoolYear string) (*ExportFile, error) {
	dataset, class, ranking, err := s.rankingDataset(ctx, classID, term, schoolYear)
	if err != nil {
		return nil, err
	}
	meta := []export.MetaLine{
		{Label: "Classe", Value: class.Name},
		{Label: "Niveau", Value: class.Level},
		{Label: "Trimestre", Value: strconv.Itoa(term)},
		{Label: "Année scolaire", Value: ranking.SchoolYear},
	}
	data, err := s.pdf.Render(*dataset, "Classement de la classe", meta)
	if err != nil {
		return nil, fmt.Errorf("render ranking pdf: %w", err)
	}
	file := &ExportFile{
		Filename:    fmt.Sprintf("classement_%s_T%d.pdf", class.Name, term),
		ContentType: "application/pdf",
		Data:        data,
	}
	s.archiveCopy("classements", file)
	return file, nil
}

// RosterCSV renders a class roster listing.
func (s *ExportService) RosterCSV(ctx context.Context, classID string) (*ExportFile, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("load class: %w", err)
	}
	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}

	headers := []string{models.FieldMatricule, models.FieldLastName, models.FieldFirstName, models.FieldGender, models.FieldStatus, models.FieldGuardianPhone}
	dataset := export.Dataset{Headers: headers}
	for _, student := range students {
		dataset.Rows = append(dataset.Rows, map[string]string{
			models.FieldMatricule:     student.Matricule,
			models.FieldLastName:      student.LastName,
			models.FieldFirstName:     student.FirstName,
			models.FieldGender:        student.Gender,
			models.FieldStatus:        student.Status,
			models.FieldGuardianPhone: student.GuardianPhone,
		})
	}

	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render roster csv: %w", err)
	}
	file := &ExportFile{
		Filename:    fmt.Sprintf("liste_%s_%s.csv", class.Name, time.Now().UTC().Format("2006-01-02")),
		ContentType: "text/csv",
		Data:        data,
	}
	s.archiveCopy("listes", file)
	return file, nil
}

func (s *ExportService) rankingDataset(ctx context.Context, classID string, term int, schoolYear string) (*export.Dataset, *models.Class, *models.ClassRanking, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load class: %w", err)
	}
	ranking, err := s.averages.ClassRanking(ctx, classID, term, schoolYear)
	if err != nil {
		return nil, nil, nil, err
	}

	headers := []string{"Rang", "Matricule", "Nom", "Prénom", "Moyenne"}
	dataset := &export.Dataset{Headers: headers}
	for _, entry := range ranking.Entries {
		rank := ""
		if entry.Rank != nil {
			rank = strconv.Itoa(*entry.Rank)
		}
		average := models.NotEvaluated
		if entry.Average != nil {
			average = fmt.Sprintf("%.2f", *entry.Average)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Rang":      rank,
			"Matricule": entry.Matricule,
			"Nom":       entry.LastName,
			"Prénom":    entry.FirstName,
			"Moyenne":   average,
		})
	}
	dataset.Footer = [][]string{
		{"Effectif", strconv.Itoa(ranking.Stats.Total)},
		{"Classés", strconv.Itoa(ranking.Stats.Complete)},
		{"Non classés", strconv.Itoa(ranking.Stats.Incomplete)},
		{"Moyenne de classe", fmt.Sprintf("%.2f", ranking.Stats.ClassMean)},
		{"Meilleure moyenne", fmt.Sprintf("%.2f", ranking.Stats.Best)},
		{"Moyenne la plus basse", fmt.Sprintf("%.2f", ranking.Stats.Worst)},
	}
	return dataset, class, ranking, nil
}

func formatMark(mark *float64) string {
	if mark == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *mark)
}

func formatAdmission(admitted *bool) string {
	if admitted == nil {
		return "-"
	}
	if *admitted {
		return "Oui"
	}
	return "Non"
}
