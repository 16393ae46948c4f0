package models

import "time"

// Subjects taught across the curriculum.
var Subjects = []string{
	"Mathématiques", "Français", "Anglais", "Histoire-Géo",
	"Sciences", "Physique-Chimie", "SVT", "Philosophie",
	"Informatique", "EPS", "Arts", "Arabe", "Wolof",
	"Éducation Civique", "Technologie", "Espagnol",
}

// Assessment kinds making up one subject grade for a term. Each term mark
// is composed of two assignments and one examination; the examination
// counts double in the subject average.
const (
	GradeKindFirstAssignment  = "Devoir1"
	GradeKindSecondAssignment = "Devoir2"
	GradeKindExamination      = "Composition"
)

// GradeKinds lists the assessment kinds in averaging order.
var GradeKinds = []string{
	GradeKindFirstAssignment,
	GradeKindSecondAssignment,
	GradeKindExamination,
}

// IsValidSubject reports whether subject belongs to the taught enumeration.
func IsValidSubject(subject string) bool {
	for _, s := range Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// IsValidGradeKind reports whether kind is a recognised assessment type.
func IsValidGradeKind(kind string) bool {
	for _, k := range GradeKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Grade stores one mark. At most one grade may exist per
// (student, subject, kind, term, school year) tuple.
type Grade struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	Subject     string    `db:"subject" json:"subject"`
	Kind        string    `db:"kind" json:"kind"`
	Mark        float64   `db:"mark" json:"mark"`
	Coefficient int       `db:"coefficient" json:"coefficient"`
	Term        int       `db:"term" json:"term"`
	SchoolYear  string    `db:"school_year" json:"school_year"`
	EvaluatedAt time.Time `db:"evaluated_at" json:"evaluated_at"`
	Remark      string    `db:"remark" json:"remark"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GradeFilter narrows grade listings.
type GradeFilter struct {
	StudentID  string
	ClassID    string
	Subject    string
	Kind       string
	Term       int
	SchoolYear string
}

// GradeKey identifies the uniqueness tuple enforced before insert.
type GradeKey struct {
	StudentID  string
	Subject    string
	Kind       string
	Term       int
	SchoolYear string
}
