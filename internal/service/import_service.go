package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/teranga-edu/gesco-api/internal/models"
)

// Row numbers reported to users are offset from the 1-based data row
// position, so the first data row of the file reports as row 3.
const importRowOffset = 2

type importStudentRepo interface {
	FindByMatricule(ctx context.Context, matricule string) (*models.Student, error)
	FindByIdentity(ctx context.Context, identity models.StudentIdentity) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

type importClassRepo interface {
	FindByNameAndLevel(ctx context.Context, name, level, schoolYear string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	RefreshEnrollment(ctx context.Context, classID string) (int, error)
}

type matriculeGenerator interface {
	Generate(ctx context.Context, lastName string) (string, error)
}

// ImportDefaults carries institution-wide fallbacks applied to rows that
// omit optional columns.
type ImportDefaults struct {
	SchoolYear         string
	ClassCapacity      int
	PlaceholderTeacher string
	Nationality        string
	PreviewSampleSize  int
}

// ImportService validates roster batches and reconciles them against the
// student and class registries. Rows are processed strictly in order: a
// generated matricule counts rows already persisted by the same batch.
type ImportService struct {
	students   importStudentRepo
	classes    importClassRepo
	matricules matriculeGenerator
	defaults   ImportDefaults
	logger     *zap.Logger
}

// NewImportService constructs an ImportService.
func NewImportService(students importStudentRepo, classes importClassRepo, matricules matriculeGenerator, defaults ImportDefaults, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.PreviewSampleSize <= 0 {
		defaults.PreviewSampleSize = 5
	}
	if defaults.ClassCapacity <= 0 {
		defaults.ClassCapacity = 40
	}
	if defaults.PlaceholderTeacher == "" {
		defaults.PlaceholderTeacher = "À définir"
	}
	if defaults.Nationality == "" {
		defaults.Nationality = "Sénégalaise"
	}
	return &ImportService{students: students, classes: classes, matricules: matricules, defaults: defaults, logger: logger}
}

// batchAccumulator gathers aggregate statistics, updated once per record.
type batchAccumulator struct {
	withMatricule     int
	withoutMatricule  int
	validMatricules   int
	invalidMatricules int
	classes           map[string]struct{}
	levels            map[string]struct{}
	initials          map[string]struct{}
}

func newBatchAccumulator() *batchAccumulator {
	return &batchAccumulator{
		classes:  make(map[string]struct{}),
		levels:   make(map[string]struct{}),
		initials: make(map[string]struct{}),
	}
}

func (a *batchAccumulator) observe(row models.ImportRow) {
	if matricule := field(row, models.FieldMatricule); matricule != "" {
		a.withMatricule++
		if IsValidMatricule(matricule) {
			a.validMatricules++
		} else {
			a.invalidMatricules++
		}
	} else {
		a.withoutMatricule++
	}
	if class := field(row, models.FieldClass); class != "" {
		a.classes[class] = struct{}{}
	}
	if level := field(row, models.FieldLevel); level != "" {
		a.levels[level] = struct{}{}
	}
	if lastName := field(row, models.FieldLastName); lastName != "" {
		// first rune, not first byte: accented surnames are common here
		a.initials[string(unicode.ToUpper([]rune(lastName)[0]))] = struct{}{}
	}
}

func (a *batchAccumulator) stats() models.BatchStats {
	return models.BatchStats{
		WithMatricule:     a.withMatricule,
		WithoutMatricule:  a.withoutMatricule,
		ValidMatricules:   a.validMatricules,
		InvalidMatricules: a.invalidMatricules,
		Classes:           sortedKeys(a.classes),
		Levels:            sortedKeys(a.levels),
		Initials:          sortedKeys(a.initials),
	}
}

// ValidateBatch checks every row against the required-field, format and
// enumeration constraints, collecting all violations rather than stopping
// at the first. The input is never mutated.
func (s *ImportService) ValidateBatch(rows []models.ImportRow) models.ValidationReport {
	report := models.ValidationReport{Valid: true}
	acc := newBatchAccumulator()

	for i, row := range rows {
		line := i + 1 + importRowOffset

		for _, name := range models.RequiredImportFields {
			if field(row, name) == "" {
				report.Errors = append(report.Errors, models.FieldViolation{Row: line, Field: name, Message: "champ requis manquant"})
				report.Valid = false
			}
		}

		if matricule := field(row, models.FieldMatricule); matricule != "" && !IsValidMatricule(matricule) {
			report.Errors = append(report.Errors, models.FieldViolation{
				Row: line, Field: models.FieldMatricule,
				Message: "format invalide, attendu: SN + année + lettre + 3 chiffres (ex: SN24D001)",
			})
			report.Valid = false
		}

		if gender := field(row, models.FieldGender); gender != "" {
			if normalized := strings.ToUpper(gender); normalized != models.GenderMale && normalized != models.GenderFemale {
				report.Errors = append(report.Errors, models.FieldViolation{Row: line, Field: models.FieldGender, Message: "le sexe doit être M ou F"})
				report.Valid = false
			}
		}

		if level := field(row, models.FieldLevel); level != "" && !models.IsValidLevel(level) {
			report.Errors = append(report.Errors, models.FieldViolation{
				Row: line, Field: models.FieldLevel,
				Message: fmt.Sprintf("niveau invalide, valeurs acceptées: %s", strings.Join(models.Levels, ", ")),
			})
			report.Valid = false
		}

		if birthDate := field(row, models.FieldBirthDate); birthDate != "" {
			if _, err := parseImportDate(birthDate); err != nil {
				report.Errors = append(report.Errors, models.FieldViolation{Row: line, Field: models.FieldBirthDate, Message: "format de date invalide, utilisez AAAA-MM-JJ"})
				report.Valid = false
			}
		}

		acc.observe(row)
	}

	report.Stats = acc.stats()
	return report
}

// Reconcile imports the batch row by row. Every failure is recorded against
// its row and processing continues; a partial failure never aborts the batch.
func (s *ImportService) Reconcile(ctx context.Context, rows []models.ImportRow) (*models.ImportResult, error) {
	result := &models.ImportResult{Total: len(rows)}

	for i, row := range rows {
		line := i + 1 + importRowOffset
		outcome, err := s.reconcileRow(ctx, row, line)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, models.RowError{Row: line, Message: err.Error()})
			continue
		}
		result.Matricules = append(result.Matricules, *outcome)
		if outcome.Action == models.MatriculeActionCreated {
			result.Created++
		} else {
			result.Updated++
		}
	}

	s.logger.Info("import reconciled",
		zap.Int("total", result.Total),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *ImportService) reconcileRow(ctx context.Context, row models.ImportRow, line int) (*models.MatriculeOutcome, error) {
	var missing []string
	for _, name := range models.RequiredImportFields {
		if field(row, name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("champs manquants: %s", strings.Join(missing, ", "))
	}

	matricule := field(row, models.FieldMatricule)
	if matricule != "" {
		if !IsValidMatricule(matricule) {
			return nil, fmt.Errorf("format de matricule invalide, attendu: SN + année + lettre + 3 chiffres (ex: SN24D001)")
		}
		if _, err := s.students.FindByMatricule(ctx, matricule); err == nil {
			return nil, fmt.Errorf("matricule déjà utilisé: %s", matricule)
		} else if err != sql.ErrNoRows {
			return nil, fmt.Errorf("recherche du matricule %s: %w", matricule, err)
		}
	} else {
		generated, err := s.matricules.Generate(ctx, field(row, models.FieldLastName))
		if err != nil {
			return nil, err
		}
		matricule = generated
	}

	level := field(row, models.FieldLevel)
	if !models.IsValidLevel(level) {
		return nil, fmt.Errorf("niveau invalide: %s", level)
	}

	class, _, err := s.findOrCreateClass(ctx, field(row, models.FieldClass), level)
	if err != nil {
		return nil, err
	}

	identity := models.StudentIdentity{
		LastName:  field(row, models.FieldLastName),
		FirstName: field(row, models.FieldFirstName),
		ClassID:   class.ID,
	}
	existing, err := s.students.FindByIdentity(ctx, identity)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("recherche de l'élève: %w", err)
	}

	student := s.studentFromRow(row, class.ID, matricule)

	if existing != nil {
		// The matricule is immutable: an update keeps the one already
		// assigned, even when the row proposed another.
		student.ID = existing.ID
		student.Matricule = existing.Matricule
		student.EnrolledAt = existing.EnrolledAt
		student.CreatedAt = existing.CreatedAt
		if err := s.students.Update(ctx, student); err != nil {
			return nil, fmt.Errorf("mise à jour de l'élève: %w", err)
		}
		return &models.MatriculeOutcome{Row: line, Matricule: existing.Matricule, Previous: matricule, Action: models.MatriculeActionUpdated}, nil
	}

	if err := s.students.Create(ctx, student); err != nil {
		return nil, fmt.Errorf("création de l'élève: %w", err)
	}
	if _, err := s.classes.RefreshEnrollment(ctx, class.ID); err != nil {
		return nil, fmt.Errorf("recalcul de l'effectif: %w", err)
	}
	return &models.MatriculeOutcome{Row: line, Matricule: matricule, Action: models.MatriculeActionCreated}, nil
}

// Preview runs the validation pass without persisting anything and proposes
// matricules for a bounded prefix of the batch.
func (s *ImportService) Preview(ctx context.Context, rows []models.ImportRow) (*models.ImportPreview, error) {
	preview := &models.ImportPreview{
		TotalRows:  len(rows),
		Validation: s.ValidateBatch(rows),
	}

	if len(rows) > 0 {
		for name := range rows[0] {
			preview.Headers = append(preview.Headers, name)
		}
		sort.Strings(preview.Headers)
	}

	sample := s.defaults.PreviewSampleSize
	if sample > len(rows) {
		sample = len(rows)
	}
	preview.Sample = rows[:sample]

	for i := 0; i < sample; i++ {
		lastName := field(rows[i], models.FieldLastName)
		if lastName == "" {
			continue
		}
		proposed, err := s.matricules.Generate(ctx, lastName)
		if err != nil {
			return nil, err
		}
		preview.Proposals = append(preview.Proposals, models.MatriculeProposal{
			Row:       i + 1 + importRowOffset,
			LastName:  lastName,
			FirstName: field(rows[i], models.FieldFirstName),
			Matricule: proposed,
		})
	}

	return preview, nil
}

func (s *ImportService) findOrCreateClass(ctx context.Context, name, level string) (*models.Class, bool, error) {
	class, err := s.classes.FindByNameAndLevel(ctx, name, level, s.defaults.SchoolYear)
	if err == nil {
		return class, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("recherche de la classe %s: %w", name, err)
	}

	class = &models.Class{
		Name:        name,
		Level:       level,
		HeadTeacher: s.defaults.PlaceholderTeacher,
		MaxCapacity: s.defaults.ClassCapacity,
		SchoolYear:  s.defaults.SchoolYear,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, false, fmt.Errorf("création de la classe %s: %w", name, err)
	}
	return class, true, nil
}

func (s *ImportService) studentFromRow(row models.ImportRow, classID, matricule string) *models.Student {
	student := &models.Student{
		Matricule:        matricule,
		LastName:         field(row, models.FieldLastName),
		FirstName:        field(row, models.FieldFirstName),
		BirthPlace:       fieldOr(row, models.FieldBirthPlace, "Non spécifié"),
		Gender:           strings.ToUpper(fieldOr(row, models.FieldGender, models.GenderMale)),
		Address:          fieldOr(row, models.FieldAddress, "Non spécifiée"),
		Phone:            field(row, models.FieldPhone),
		Email:            field(row, models.FieldEmail),
		ClassID:          classID,
		FatherName:       field(row, models.FieldFatherName),
		FatherOccupation: field(row, models.FieldFatherOccupation),
		MotherName:       field(row, models.FieldMotherName),
		MotherOccupation: field(row, models.FieldMotherOccupation),
		GuardianPhone:    field(row, models.FieldGuardianPhone),
		Status:           fieldOr(row, models.FieldStatus, models.StudentStatusNew),
		Nationality:      fieldOr(row, models.FieldNationality, s.defaults.Nationality),
	}

	if raw := field(row, models.FieldBirthDate); raw != "" {
		if parsed, err := parseImportDate(raw); err == nil {
			student.BirthDate = parsed
		}
	}
	if student.BirthDate.IsZero() {
		student.BirthDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	return student
}

func field(row models.ImportRow, name string) string {
	return strings.TrimSpace(row[name])
}

func fieldOr(row models.ImportRow, name, fallback string) string {
	if v := field(row, name); v != "" {
		return v
	}
	return fallback
}

func parseImportDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(raw))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
