package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
)

type gradeRepo interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	FindByKey(ctx context.Context, key models.GradeKey) (*models.Grade, error)
	ListByStudentTerm(ctx context.Context, studentID string, term int, schoolYear string) ([]models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
}

type gradeStudentRepo interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// CreateGradeRequest records one mark for a student.
type CreateGradeRequest struct {
	StudentID   string  `json:"student_id" validate:"required"`
	Subject     string  `json:"subject" validate:"required"`
	Kind        string  `json:"kind" validate:"required"`
	Mark        float64 `json:"mark" validate:"min=0,max=20"`
	Coefficient int     `json:"coefficient" validate:"required,min=1,max=5"`
	Term        int     `json:"term" validate:"required,min=1,max=3"`
	SchoolYear  string  `json:"school_year"`
	Remark      string  `json:"remark"`
}

// UpdateGradeRequest edits the mutable parts of a mark. The identifying
// tuple (student, subject, kind, term, year) stays fixed.
type UpdateGradeRequest struct {
	Mark        float64 `json:"mark" validate:"min=0,max=20"`
	Coefficient int     `json:"coefficient" validate:"required,min=1,max=5"`
	Remark      string  `json:"remark"`
}

// SubjectCompleteness reports which assessment kinds are still missing for
// one subject in a term.
type SubjectCompleteness struct {
	Subject  string   `json:"subject"`
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing,omitempty"`
}

// TermCompleteness is the completeness check over all graded subjects of a
// student's term.
type TermCompleteness struct {
	StudentID  string                `json:"student_id"`
	Term       int                   `json:"term"`
	SchoolYear string                `json:"school_year"`
	Complete   bool                  `json:"complete"`
	Subjects   []SubjectCompleteness `json:"subjects"`
}

type classWarmer interface {
	WarmClass(classID string)
}

// GradeService orchestrates mark entry and the uniqueness rule guarding it.
type GradeService struct {
	grades     gradeRepo
	students   gradeStudentRepo
	averages   *AverageService
	warmer     classWarmer
	schoolYear string
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewGradeService constructs a GradeService. warmer may be nil, which
// disables background ranking recomputation after grade writes.
func NewGradeService(grades gradeRepo, students gradeStudentRepo, averages *AverageService, warmer classWarmer, schoolYear string, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:     grades,
		students:   students,
		averages:   averages,
		warmer:     warmer,
		schoolYear: schoolYear,
		validator:  validate,
		logger:     logger,
	}
}

// List returns grades matching the filter.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	if filter.SchoolYear == "" {
		filter.SchoolYear = s.schoolYear
	}
	grades, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// Get returns one grade.
func (s *GradeService) Get(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.grades.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "note non trouvée")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

// Create records a mark. The (student, subject, kind, term, year) tuple must
// be free; a second mark for the same assessment is rejected rather than
// silently overwritten.
func (s *GradeService) Create(ctx context.Context, req CreateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !models.IsValidSubject(req.Subject) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "matière invalide: "+req.Subject)
	}
	if !models.IsValidGradeKind(req.Kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "type d'évaluation invalide: "+req.Kind)
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "élève non trouvé")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	schoolYear := req.SchoolYear
	if schoolYear == "" {
		schoolYear = s.schoolYear
	}

	key := models.GradeKey{
		StudentID:  req.StudentID,
		Subject:    req.Subject,
		Kind:       req.Kind,
		Term:       req.Term,
		SchoolYear: schoolYear,
	}
	if _, err := s.grades.FindByKey(ctx, key); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateGrade, "une note existe déjà pour cette évaluation")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grade")
	}

	grade := &models.Grade{
		StudentID:   req.StudentID,
		Subject:     req.Subject,
		Kind:        req.Kind,
		Mark:        req.Mark,
		Coefficient: req.Coefficient,
		Term:        req.Term,
		SchoolYear:  schoolYear,
		EvaluatedAt: time.Now().UTC(),
		Remark:      req.Remark,
	}
	if err := s.grades.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}
	s.invalidateRanking(ctx, student.ClassID)
	return grade, nil
}

// Update edits the mark, coefficient or remark of an existing grade.
func (s *GradeService) Update(ctx context.Context, id string, req UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	grade, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	grade.Mark = req.Mark
	grade.Coefficient = req.Coefficient
	grade.Remark = req.Remark
	if err := s.grades.Update(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}
	s.invalidateStudentRanking(ctx, grade.StudentID)
	return grade, nil
}

// Delete removes a grade.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	grade, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.grades.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	s.invalidateStudentRanking(ctx, grade.StudentID)
	return nil
}

// Completeness reports, subject by subject, whether a student's term has the
// three marks required for an average.
func (s *GradeService) Completeness(ctx context.Context, studentID string, term int, schoolYear string) (*TermCompleteness, error) {
	if schoolYear == "" {
		schoolYear = s.schoolYear
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "élève non trouvé")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	grades, err := s.grades.ListByStudentTerm(ctx, studentID, term, schoolYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}

	kinds := make(map[string]map[string]bool)
	for _, g := range grades {
		if kinds[g.Subject] == nil {
			kinds[g.Subject] = make(map[string]bool)
		}
		kinds[g.Subject][g.Kind] = true
	}

	report := &TermCompleteness{
		StudentID:  studentID,
		Term:       term,
		SchoolYear: schoolYear,
		Complete:   len(kinds) > 0,
	}
	subjects := make([]string, 0, len(kinds))
	for subject := range kinds {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	for _, subject := range subjects {
		entry := SubjectCompleteness{Subject: subject, Complete: true}
		for _, kind := range models.GradeKinds {
			if !kinds[subject][kind] {
				entry.Complete = false
				entry.Missing = append(entry.Missing, kind)
			}
		}
		if !entry.Complete {
			report.Complete = false
		}
		report.Subjects = append(report.Subjects, entry)
	}
	return report, nil
}

func (s *GradeService) invalidateRanking(ctx context.Context, classID string) {
	if s.averages == nil || classID == "" {
		return
	}
	s.averages.InvalidateClass(ctx, classID)
	if s.warmer != nil {
		s.warmer.WarmClass(classID)
	}
}

func (s *GradeService) invalidateStudentRanking(ctx context.Context, studentID string) {
	if s.averages == nil {
		return
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		s.logger.Warn("ranking invalidation skipped", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	s.invalidateRanking(ctx, student.ClassID)
}
