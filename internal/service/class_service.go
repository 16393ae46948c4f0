package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
)

type classRepo interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindByNameAndLevel(ctx context.Context, name, level, schoolYear string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	CountStudents(ctx context.Context, classID string) (int, error)
	LevelStats(ctx context.Context) ([]models.LevelStats, error)
}

type classStudentRepo interface {
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

// CreateClassRequest is the class creation payload.
type CreateClassRequest struct {
	Name        string  `json:"name" validate:"required"`
	Level       string  `json:"level" validate:"required"`
	Track       *string `json:"track"`
	HeadTeacher string  `json:"head_teacher"`
	MaxCapacity int     `json:"max_capacity" validate:"omitempty,min=1,max=120"`
	SchoolYear  string  `json:"school_year"`
}

// UpdateClassRequest is the class edition payload.
type UpdateClassRequest struct {
	Name        string  `json:"name" validate:"required"`
	Level       string  `json:"level" validate:"required"`
	Track       *string `json:"track"`
	HeadTeacher string  `json:"head_teacher"`
	MaxCapacity int     `json:"max_capacity" validate:"omitempty,min=1,max=120"`
}

// ClassDefaults carries the school-level fallbacks applied to new classes.
type ClassDefaults struct {
	SchoolYear         string
	Capacity           int
	PlaceholderTeacher string
}

// ClassService orchestrates class management.
type ClassService struct {
	classes   classRepo
	students  classStudentRepo
	defaults  ClassDefaults
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService.
func NewClassService(classes classRepo, students classStudentRepo, defaults ClassDefaults, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Capacity <= 0 {
		defaults.Capacity = 40
	}
	if defaults.PlaceholderTeacher == "" {
		defaults.PlaceholderTeacher = "À définir"
	}
	return &ClassService{
		classes:   classes,
		students:  students,
		defaults:  defaults,
		validator: validate,
		logger:    logger,
	}
}

// List returns classes matching the filter, defaulting to the current
// school year.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error) {
	if filter.SchoolYear == "" {
		filter.SchoolYear = s.defaults.SchoolYear
	}
	classes, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// Get returns one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classe non trouvée")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Roster returns a class with its students.
func (s *ClassService) Roster(ctx context.Context, id string) (*models.ClassRoster, error) {
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	students, err := s.students.ListByClass(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class students")
	}
	return &models.ClassRoster{Class: *class, Students: students}, nil
}

// Create opens a class, rejecting duplicates on name, level and school year.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if !models.IsValidLevel(req.Level) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "niveau invalide: "+req.Level)
	}
	if req.Track != nil && !models.IsValidTrack(*req.Track) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "série invalide: "+*req.Track)
	}

	schoolYear := req.SchoolYear
	if schoolYear == "" {
		schoolYear = s.defaults.SchoolYear
	}

	if _, err := s.classes.FindByNameAndLevel(ctx, req.Name, req.Level, schoolYear); err == nil {
		return nil, appErrors.Clone(appErrors.ErrClassExists, "une classe "+req.Name+" existe déjà pour ce niveau")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class")
	}

	class := &models.Class{
		Name:        req.Name,
		Level:       req.Level,
		Track:       req.Track,
		HeadTeacher: req.HeadTeacher,
		MaxCapacity: req.MaxCapacity,
		SchoolYear:  schoolYear,
	}
	if class.MaxCapacity <= 0 {
		class.MaxCapacity = s.defaults.Capacity
	}
	if class.HeadTeacher == "" {
		class.HeadTeacher = s.defaults.PlaceholderTeacher
	}

	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update edits a class.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if !models.IsValidLevel(req.Level) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "niveau invalide: "+req.Level)
	}
	if req.Track != nil && !models.IsValidTrack(*req.Track) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "série invalide: "+*req.Track)
	}

	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != class.Name || req.Level != class.Level {
		if other, err := s.classes.FindByNameAndLevel(ctx, req.Name, req.Level, class.SchoolYear); err == nil && other.ID != id {
			return nil, appErrors.Clone(appErrors.ErrClassExists, "une classe "+req.Name+" existe déjà pour ce niveau")
		} else if err != nil && err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class")
		}
	}

	class.Name = req.Name
	class.Level = req.Level
	class.Track = req.Track
	if req.HeadTeacher != "" {
		class.HeadTeacher = req.HeadTeacher
	}
	if req.MaxCapacity > 0 {
		class.MaxCapacity = req.MaxCapacity
	}

	if err := s.classes.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete closes a class. A class that still has students cannot be deleted.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.classes.CountStudents(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class students")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrClassNotEmpty, "impossible de supprimer une classe non vide")
	}
	if err := s.classes.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

// LevelStats aggregates class counts and enrollment per level.
func (s *ClassService) LevelStats(ctx context.Context) ([]models.LevelStats, error) {
	stats, err := s.classes.LevelStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate level stats")
	}
	return stats, nil
}
