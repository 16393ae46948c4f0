package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
)

type averageGradeRepo interface {
	ListByStudentTerm(ctx context.Context, studentID string, term int, schoolYear string) ([]models.Grade, error)
}

type averageStudentRepo interface {
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

type rankingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AverageService computes subject averages, overall weighted averages and
// class rankings following the national grading model: each subject mark is
// (Devoir1 + Devoir2 + 2×Composition) / 4, and the term average weights
// complete subjects by their coefficient.
type AverageService struct {
	grades   averageGradeRepo
	students averageStudentRepo
	cache    rankingCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewAverageService constructs an AverageService. cache may be nil, which
// disables ranking caching.
func NewAverageService(grades averageGradeRepo, students averageStudentRepo, cache rankingCache, cacheTTL time.Duration, logger *zap.Logger) *AverageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AverageService{grades: grades, students: students, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// subjectAverageOf folds the grades of one subject into a SubjectAverage.
// The coefficient is read off whichever record comes first; the three
// records of a subject are expected to agree on it.
func subjectAverageOf(subject string, grades []models.Grade) models.SubjectAverage {
	result := models.SubjectAverage{Subject: subject}
	for _, g := range grades {
		if result.Coefficient == 0 {
			result.Coefficient = g.Coefficient
		}
		mark := g.Mark
		switch g.Kind {
		case models.GradeKindFirstAssignment:
			result.Marks.FirstAssignment = &mark
		case models.GradeKindSecondAssignment:
			result.Marks.SecondAssignment = &mark
		case models.GradeKindExamination:
			result.Marks.Examination = &mark
		}
	}

	if result.Marks.FirstAssignment == nil || result.Marks.SecondAssignment == nil || result.Marks.Examination == nil {
		return result
	}

	// Examination counts double: (D1 + D2 + 2×Compo) / 4.
	result.Average = round2((*result.Marks.FirstAssignment + *result.Marks.SecondAssignment + 2**result.Marks.Examination) / 4)
	result.Complete = true
	return result
}

// SubjectAverage computes one subject's average for a student and term.
// An incomplete set of component marks yields Complete=false, not an error.
func (s *AverageService) SubjectAverage(ctx context.Context, studentID, subject string, term int, schoolYear string) (*models.SubjectAverage, error) {
	if !models.IsValidSubject(subject) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("matière inconnue: %s", subject))
	}
	grades, err := s.grades.ListByStudentTerm(ctx, studentID, term, schoolYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	var subjectGrades []models.Grade
	for _, g := range grades {
		if g.Subject == subject {
			subjectGrades = append(subjectGrades, g)
		}
	}
	result := subjectAverageOf(subject, subjectGrades)
	return &result, nil
}

// OverallAverage computes the coefficient-weighted mean over complete
// subjects only. A student with no complete subject has no overall average.
func (s *AverageService) OverallAverage(ctx context.Context, studentID string, term int, schoolYear string) (*models.OverallAverage, error) {
	grades, err := s.grades.ListByStudentTerm(ctx, studentID, term, schoolYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	result := overallAverageOf(grades)
	return &result, nil
}

func overallAverageOf(grades []models.Grade) models.OverallAverage {
	bySubject := make(map[string][]models.Grade)
	var order []string
	for _, g := range grades {
		if _, seen := bySubject[g.Subject]; !seen {
			order = append(order, g.Subject)
		}
		bySubject[g.Subject] = append(bySubject[g.Subject], g)
	}
	sort.Strings(order)

	result := models.OverallAverage{}
	totalPoints := 0.0
	for _, subject := range order {
		avg := subjectAverageOf(subject, bySubject[subject])
		result.Subjects = append(result.Subjects, avg)
		if !avg.Complete {
			continue
		}
		totalPoints += avg.Average * float64(avg.Coefficient)
		result.TotalCoefficients += avg.Coefficient
	}

	if result.TotalCoefficients == 0 {
		return result
	}
	result.Average = round2(totalPoints / float64(result.TotalCoefficients))
	result.Complete = true
	return result
}

// ClassRanking ranks every student of the class by overall average.
// Students without an overall average are appended after the ranked ones,
// carrying no rank. Ties are broken by matricule so the ordering is
// deterministic.
func (s *AverageService) ClassRanking(ctx context.Context, classID string, term int, schoolYear string) (*models.ClassRanking, error) {
	cacheKey := rankingCacheKey(classID, term, schoolYear)
	if s.cache != nil {
		var cached models.ClassRanking
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class students")
	}

	ranking := &models.ClassRanking{ClassID: classID, Term: term, SchoolYear: schoolYear}
	var ranked, unranked []models.RankingEntry

	for _, student := range students {
		grades, err := s.grades.ListByStudentTerm(ctx, student.ID, term, schoolYear)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		entry := models.RankingEntry{
			StudentID: student.ID,
			Matricule: student.Matricule,
			LastName:  student.LastName,
			FirstName: student.FirstName,
			Gender:    student.Gender,
		}
		overall := overallAverageOf(grades)
		if overall.Complete {
			avg := overall.Average
			entry.Average = &avg
			ranked = append(ranked, entry)
		} else {
			unranked = append(unranked, entry)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if *ranked[i].Average != *ranked[j].Average {
			return *ranked[i].Average > *ranked[j].Average
		}
		return ranked[i].Matricule < ranked[j].Matricule
	})
	for i := range ranked {
		rank := i + 1
		ranked[i].Rank = &rank
	}

	ranking.Entries = append(ranked, unranked...)
	ranking.Stats = rankingStatsOf(ranked, len(students))

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, ranking, s.cacheTTL); err != nil {
			s.logger.Warn("ranking cache write failed", zap.String("class_id", classID), zap.Error(err))
		}
	}
	return ranking, nil
}

// InvalidateClass drops cached rankings for one class after a grade write.
func (s *AverageService) InvalidateClass(ctx context.Context, classID string) {
	if s.cache == nil || classID == "" {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("ranking:%s:*", classID)); err != nil {
		s.logger.Warn("ranking cache invalidation failed", zap.String("class_id", classID), zap.Error(err))
	}
}

func rankingCacheKey(classID string, term int, schoolYear string) string {
	return fmt.Sprintf("ranking:%s:%d:%s", classID, term, schoolYear)
}

func rankingStatsOf(ranked []models.RankingEntry, total int) models.RankingStats {
	stats := models.RankingStats{
		Total:      total,
		Complete:   len(ranked),
		Incomplete: total - len(ranked),
	}
	if len(ranked) == 0 {
		return stats
	}
	sum := 0.0
	for _, entry := range ranked {
		sum += *entry.Average
	}
	// The class mean is an unweighted mean across students.
	stats.ClassMean = round2(sum / float64(len(ranked)))
	stats.Best = *ranked[0].Average
	stats.Worst = *ranked[len(ranked)-1].Average
	return stats
}
