package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
)

type studentRepo interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByMatricule(ctx context.Context, matricule string) (*models.Student, error)
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type studentClassRepo interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	RefreshEnrollment(ctx context.Context, classID string) (int, error)
}

type studentGradeRepo interface {
	ListByStudentTerm(ctx context.Context, studentID string, term int, schoolYear string) ([]models.Grade, error)
	DeleteByStudent(ctx context.Context, studentID string) error
}

// CreateStudentRequest is the registration payload. A missing matricule is
// generated from the surname.
type CreateStudentRequest struct {
	Matricule        string    `json:"matricule"`
	LastName         string    `json:"last_name" validate:"required"`
	FirstName        string    `json:"first_name" validate:"required"`
	BirthDate        time.Time `json:"birth_date" validate:"required"`
	BirthPlace       string    `json:"birth_place" validate:"required"`
	Gender           string    `json:"gender" validate:"required,oneof=M F"`
	Address          string    `json:"address" validate:"required"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email" validate:"omitempty,email"`
	ClassID          string    `json:"class_id" validate:"required"`
	FatherName       string    `json:"father_name" validate:"required"`
	FatherOccupation string    `json:"father_occupation"`
	MotherName       string    `json:"mother_name" validate:"required"`
	MotherOccupation string    `json:"mother_occupation"`
	GuardianPhone    string    `json:"guardian_phone" validate:"required"`
	Status           string    `json:"status" validate:"omitempty,oneof=Nouveau Inscrit Réinscrit Démission Exclu"`
	Nationality      string    `json:"nationality"`
}

// UpdateStudentRequest mirrors the create payload; the matricule cannot be
// changed and is therefore absent.
type UpdateStudentRequest struct {
	LastName         string    `json:"last_name" validate:"required"`
	FirstName        string    `json:"first_name" validate:"required"`
	BirthDate        time.Time `json:"birth_date" validate:"required"`
	BirthPlace       string    `json:"birth_place" validate:"required"`
	Gender           string    `json:"gender" validate:"required,oneof=M F"`
	Address          string    `json:"address" validate:"required"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email" validate:"omitempty,email"`
	ClassID          string    `json:"class_id" validate:"required"`
	FatherName       string    `json:"father_name" validate:"required"`
	FatherOccupation string    `json:"father_occupation"`
	MotherName       string    `json:"mother_name" validate:"required"`
	MotherOccupation string    `json:"mother_occupation"`
	GuardianPhone    string    `json:"guardian_phone" validate:"required"`
	Status           string    `json:"status" validate:"omitempty,oneof=Nouveau Inscrit Réinscrit Démission Exclu"`
	Nationality      string    `json:"nationality"`
}

// TermGrades groups one term's grade rows with a provisional weighted mean
// over the raw marks. The mean is informative only; report cards go through
// the averaging engine instead.
type TermGrades struct {
	Term   int            `json:"term"`
	Grades []models.Grade `json:"grades"`
	Mean   *float64       `json:"mean,omitempty"`
}

// StudentRecord is the detailed view of one student with per-term grades.
type StudentRecord struct {
	Student models.StudentDetail `json:"student"`
	Terms   []TermGrades         `json:"terms"`
}

// StudentService orchestrates the student registry.
type StudentService struct {
	students   studentRepo
	classes    studentClassRepo
	grades     studentGradeRepo
	matricules matriculeGenerator
	schoolYear string
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(students studentRepo, classes studentClassRepo, grades studentGradeRepo, matricules matriculeGenerator, schoolYear string, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		students:   students,
		classes:    classes,
		grades:     grades,
		matricules: matricules,
		schoolYear: schoolYear,
		validator:  validate,
		logger:     logger,
	}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student with grades grouped per term.
func (s *StudentService) Get(ctx context.Context, id string) (*StudentRecord, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "élève non trouvé")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	record := &StudentRecord{Student: *student}
	for term := 1; term <= 3; term++ {
		grades, err := s.grades.ListByStudentTerm(ctx, id, term, s.schoolYear)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		termGrades := TermGrades{Term: term, Grades: grades}
		if mean, ok := weightedMean(grades); ok {
			termGrades.Mean = &mean
		}
		record.Terms = append(record.Terms, termGrades)
	}
	return record, nil
}

// Create registers a new student, enforcing class capacity and matricule
// uniqueness before insert.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classe non trouvée")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Enrollment >= class.MaxCapacity {
		return nil, appErrors.Clone(appErrors.ErrClassFull, "la classe a atteint sa capacité maximale")
	}

	matricule := req.Matricule
	if matricule != "" {
		if !IsValidMatricule(matricule) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "format de matricule invalide")
		}
		if _, err := s.students.FindByMatricule(ctx, matricule); err == nil {
			return nil, appErrors.Clone(appErrors.ErrDuplicateMatricule, "matricule déjà utilisé: "+matricule)
		} else if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check matricule")
		}
	} else {
		matricule, err = s.matricules.Generate(ctx, req.LastName)
		if err != nil {
			return nil, err
		}
	}

	student := &models.Student{
		Matricule:        matricule,
		LastName:         req.LastName,
		FirstName:        req.FirstName,
		BirthDate:        req.BirthDate,
		BirthPlace:       req.BirthPlace,
		Gender:           req.Gender,
		Address:          req.Address,
		Phone:            req.Phone,
		Email:            req.Email,
		ClassID:          req.ClassID,
		FatherName:       req.FatherName,
		FatherOccupation: req.FatherOccupation,
		MotherName:       req.MotherName,
		MotherOccupation: req.MotherOccupation,
		GuardianPhone:    req.GuardianPhone,
		Status:           req.Status,
		Nationality:      req.Nationality,
	}
	if student.Status == "" {
		student.Status = models.StudentStatusNew
	}
	if student.Nationality == "" {
		student.Nationality = "Sénégalaise"
	}

	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	if _, err := s.classes.RefreshEnrollment(ctx, req.ClassID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh enrollment")
	}
	return student, nil
}

// Update edits a student. Moving the student to another class recounts the
// enrollment of both classes.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	existing, err := s.students.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "élève non trouvé")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	previousClassID := existing.ClassID
	if req.ClassID != previousClassID {
		class, err := s.classes.FindByID(ctx, req.ClassID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "classe non trouvée")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
		if class.Enrollment >= class.MaxCapacity {
			return nil, appErrors.Clone(appErrors.ErrClassFull, "la classe a atteint sa capacité maximale")
		}
	}

	student := existing.Student
	student.LastName = req.LastName
	student.FirstName = req.FirstName
	student.BirthDate = req.BirthDate
	student.BirthPlace = req.BirthPlace
	student.Gender = req.Gender
	student.Address = req.Address
	student.Phone = req.Phone
	student.Email = req.Email
	student.ClassID = req.ClassID
	student.FatherName = req.FatherName
	student.FatherOccupation = req.FatherOccupation
	student.MotherName = req.MotherName
	student.MotherOccupation = req.MotherOccupation
	student.GuardianPhone = req.GuardianPhone
	if req.Status != "" {
		student.Status = req.Status
	}
	if req.Nationality != "" {
		student.Nationality = req.Nationality
	}

	if err := s.students.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	if req.ClassID != previousClassID {
		for _, classID := range []string{previousClassID, req.ClassID} {
			if _, err := s.classes.RefreshEnrollment(ctx, classID); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh enrollment")
			}
		}
	}
	return &student, nil
}

// Delete removes a student, cascading the deletion of their grades and
// recounting the owning class.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "élève non trouvé")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.grades.DeleteByStudent(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grades")
	}
	if err := s.students.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if _, err := s.classes.RefreshEnrollment(ctx, student.ClassID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh enrollment")
	}
	return nil
}

// Demographics summarises one class roster by gender and status.
func (s *StudentService) Demographics(ctx context.Context, classID string) (*models.ClassDemographics, error) {
	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class students")
	}
	stats := &models.ClassDemographics{Total: len(students)}
	for _, student := range students {
		switch student.Gender {
		case models.GenderMale:
			stats.Boys++
		case models.GenderFemale:
			stats.Girls++
		}
		switch student.Status {
		case models.StudentStatusNew:
			stats.New++
		case models.StudentStatusReEnrolled:
			stats.ReEnrolled++
		}
	}
	return stats, nil
}

// weightedMean folds raw marks weighted by coefficient. It reports false
// when there is nothing to average.
func weightedMean(grades []models.Grade) (float64, bool) {
	if len(grades) == 0 {
		return 0, false
	}
	points := 0.0
	coefficients := 0
	for _, g := range grades {
		points += g.Mark * float64(g.Coefficient)
		coefficients += g.Coefficient
	}
	if coefficients == 0 {
		return 0, false
	}
	return round2(points / float64(coefficients)), true
}
