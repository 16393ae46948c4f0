package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
)

type reportStudentRepo interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// mentionBand maps an inclusive lower bound to its qualitative labels.
// Bands are ordered highest first; the first matching bound wins. The
// mention and appreciation tables differ only at the top band, where the
// mention takes the feminine form.
type mentionBand struct {
	bound        float64
	mention      string
	appreciation string
}

var mentionBands = []mentionBand{
	{16, "Excellente", "Excellent"},
	{14, "Très Bien", "Très Bien"},
	{12, "Bien", "Bien"},
	{10, "Assez Bien", "Assez Bien"},
	{8, "Passable", "Passable"},
}

const insufficientLabel = "Insuffisant"

// MentionFor returns the mention label for an overall average.
func MentionFor(average float64) string {
	for _, band := range mentionBands {
		if average >= band.bound {
			return band.mention
		}
	}
	return insufficientLabel
}

// AppreciationFor returns the appreciation label for an overall average.
func AppreciationFor(average float64) string {
	for _, band := range mentionBands {
		if average >= band.bound {
			return band.appreciation
		}
	}
	return insufficientLabel
}

// ReportService assembles term report cards.
type ReportService struct {
	students reportStudentRepo
	averages *AverageService
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(students reportStudentRepo, averages *AverageService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{students: students, averages: averages, logger: logger, now: time.Now}
}

// BuildReport produces the report card for one student and term: identity,
// per-subject breakdown with admission flags, overall average and the
// qualitative labels derived from it. Students without an overall average
// report "Non évalué" and absent numeric fields.
func (s *ReportService) BuildReport(ctx context.Context, studentID string, term int, schoolYear string) (*models.ReportCard, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "élève non trouvé")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	overall, err := s.averages.OverallAverage(ctx, studentID, term, schoolYear)
	if err != nil {
		return nil, err
	}

	report := &models.ReportCard{
		Student:      *student,
		Term:         term,
		SchoolYear:   schoolYear,
		Mention:      models.NotEvaluated,
		Appreciation: models.NotEvaluated,
		GeneratedAt:  s.now().UTC(),
	}

	for _, subject := range overall.Subjects {
		line := models.ReportSubject{
			Subject:     subject.Subject,
			Coefficient: subject.Coefficient,
			Marks:       subject.Marks,
		}
		if subject.Complete {
			avg := subject.Average
			admitted := avg >= models.AdmissionThreshold
			line.Average = &avg
			line.Admitted = &admitted
		}
		report.Subjects = append(report.Subjects, line)
	}

	if overall.Complete {
		avg := overall.Average
		report.OverallAverage = &avg
		report.TotalCoefficients = overall.TotalCoefficients
		report.Mention = MentionFor(avg)
		report.Appreciation = AppreciationFor(avg)
	}

	return report, nil
}
