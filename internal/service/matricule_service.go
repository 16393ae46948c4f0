package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	appErrors "github.com/teranga-edu/gesco-api/pkg/errors"
)

// matriculePattern is the national registration code shape:
// SN + two-digit year + surname initial + three-digit sequence.
var matriculePattern = regexp.MustCompile(`^SN\d{2}[A-Z]\d{3}$`)

// IsValidMatricule reports whether raw matches the registration code format.
func IsValidMatricule(raw string) bool {
	return matriculePattern.MatchString(raw)
}

type matriculeCounter interface {
	CountByMatriculePrefix(ctx context.Context, prefix string) (int, error)
}

// MatriculeService allocates student registration codes. Generation counts
// existing codes under the (year, initial) prefix, so callers performing a
// batch must invoke it sequentially and persist between calls; uniqueness
// under concurrent writers is left to the database unique constraint.
type MatriculeService struct {
	students matriculeCounter
	logger   *zap.Logger
	now      func() time.Time
}

// NewMatriculeService constructs a MatriculeService.
func NewMatriculeService(students matriculeCounter, logger *zap.Logger) *MatriculeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatriculeService{students: students, logger: logger, now: time.Now}
}

// Generate produces the next matricule for a surname:
// "SN" + YY + uppercased initial + zero-padded sequence.
func (s *MatriculeService) Generate(ctx context.Context, lastName string) (string, error) {
	lastName = strings.TrimSpace(lastName)
	if lastName == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "surname is required to generate a matricule")
	}

	year := s.now().Year() % 100
	initial := unicode.ToUpper([]rune(lastName)[0])
	prefix := fmt.Sprintf("SN%02d%c", year, initial)

	count, err := s.students.CountByMatriculePrefix(ctx, prefix)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count matricule prefix")
	}

	return fmt.Sprintf("%s%03d", prefix, count+1), nil
}
