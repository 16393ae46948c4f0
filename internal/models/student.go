package models

import "time"

// Enrollment statuses carried on a student record. Values match the
// registry vocabulary used on paper records, hence the French labels.
const (
	StudentStatusNew        = "Nouveau"
	StudentStatusEnrolled   = "Inscrit"
	StudentStatusReEnrolled = "Réinscrit"
	StudentStatusWithdrawn  = "Démission"
	StudentStatusExpelled   = "Exclu"
)

// StudentStatuses lists the accepted enrollment statuses.
var StudentStatuses = []string{
	StudentStatusEnrolled,
	StudentStatusReEnrolled,
	StudentStatusNew,
	StudentStatusWithdrawn,
	StudentStatusExpelled,
}

// Genders accepted on student records.
const (
	GenderMale   = "M"
	GenderFemale = "F"
)

// Student represents a learner registered in the institution. The matricule
// is assigned once and never rewritten afterwards.
type Student struct {
	ID               string    `db:"id" json:"id"`
	Matricule        string    `db:"matricule" json:"matricule"`
	LastName         string    `db:"last_name" json:"last_name"`
	FirstName        string    `db:"first_name" json:"first_name"`
	BirthDate        time.Time `db:"birth_date" json:"birth_date"`
	BirthPlace       string    `db:"birth_place" json:"birth_place"`
	Gender           string    `db:"gender" json:"gender"`
	Address          string    `db:"address" json:"address"`
	Phone            string    `db:"phone" json:"phone"`
	Email            string    `db:"email" json:"email"`
	ClassID          string    `db:"class_id" json:"class_id"`
	FatherName       string    `db:"father_name" json:"father_name"`
	FatherOccupation string    `db:"father_occupation" json:"father_occupation"`
	MotherName       string    `db:"mother_name" json:"mother_name"`
	MotherOccupation string    `db:"mother_occupation" json:"mother_occupation"`
	GuardianPhone    string    `db:"guardian_phone" json:"guardian_phone"`
	Status           string    `db:"status" json:"status"`
	Nationality      string    `db:"nationality" json:"nationality"`
	EnrolledAt       time.Time `db:"enrolled_at" json:"enrolled_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ClassID   string
	Status    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentDetail contains student information with class context.
type StudentDetail struct {
	Student
	ClassName  *string `db:"class_name" json:"class_name,omitempty"`
	ClassLevel *string `db:"class_level" json:"class_level,omitempty"`
}

// StudentIdentity is the natural key used by imports to decide between
// updating an existing student and inserting a new one. It is distinct
// from the matricule.
type StudentIdentity struct {
	LastName  string
	FirstName string
	ClassID   string
}

// ClassDemographics summarises the composition of one class roster.
type ClassDemographics struct {
	Total      int `json:"total"`
	Boys       int `json:"boys"`
	Girls      int `json:"girls"`
	New        int `json:"new"`
	ReEnrolled int `json:"re_enrolled"`
}
