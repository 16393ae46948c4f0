package models

import "time"

// Levels covers the national curriculum from the first primary year through
// the terminal secondary year, in ascending order.
var Levels = []string{
	"CI", "CP", "CE1", "CE2", "CM1", "CM2",
	"6ème", "5ème", "4ème", "3ème",
	"2nd", "1ère", "Tle",
}

// Tracks lists the upper-secondary series a class may carry.
var Tracks = []string{"Générale", "L", "S", "ES", "Technique"}

// IsValidLevel reports whether level belongs to the national enumeration.
func IsValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// IsValidTrack reports whether track is a known series. Empty is allowed
// outside upper secondary.
func IsValidTrack(track string) bool {
	if track == "" {
		return true
	}
	for _, t := range Tracks {
		if t == track {
			return true
		}
	}
	return false
}

// Class represents one teaching group for a school year. Enrollment is a
// cached count, recomputed from the student table after every roster change.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Level       string    `db:"level" json:"level"`
	Track       *string   `db:"track" json:"track,omitempty"`
	HeadTeacher string    `db:"head_teacher" json:"head_teacher"`
	MaxCapacity int       `db:"max_capacity" json:"max_capacity"`
	SchoolYear  string    `db:"school_year" json:"school_year"`
	Enrollment  int       `db:"enrollment" json:"enrollment"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFilter narrows class listings.
type ClassFilter struct {
	Level      string
	SchoolYear string
}

// ClassRoster pairs a class with its students.
type ClassRoster struct {
	Class    Class     `json:"class"`
	Students []Student `json:"students"`
}

// LevelStats aggregates enrollment per education level.
type LevelStats struct {
	Level         string `db:"level" json:"level"`
	ClassCount    int    `db:"class_count" json:"class_count"`
	Enrollment    int    `db:"enrollment" json:"enrollment"`
	TotalCapacity int    `db:"total_capacity" json:"total_capacity"`
}
