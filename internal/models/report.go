package models

import "time"

// NotEvaluated is the qualitative label reported while the overall average
// cannot be computed yet.
const NotEvaluated = "Non évalué"

// AdmissionThreshold is the subject pass mark out of 20.
const AdmissionThreshold = 10.0

// ReportSubject is one line of a report card.
type ReportSubject struct {
	Subject     string       `json:"subject"`
	Coefficient int          `json:"coefficient"`
	Marks       SubjectMarks `json:"marks"`
	Average     *float64     `json:"average"`
	Admitted    *bool        `json:"admitted"`
}

// ReportCard assembles identity, per-subject results and the qualitative
// labels derived from the overall average.
type ReportCard struct {
	Student           StudentDetail   `json:"student"`
	Term              int             `json:"term"`
	SchoolYear        string          `json:"school_year"`
	Subjects          []ReportSubject `json:"subjects"`
	OverallAverage    *float64        `json:"overall_average"`
	TotalCoefficients int             `json:"total_coefficients"`
	Mention           string          `json:"mention"`
	Appreciation      string          `json:"appreciation"`
	GeneratedAt       time.Time       `json:"generated_at"`
}
