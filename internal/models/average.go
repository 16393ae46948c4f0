package models

// SubjectMarks exposes the three component marks backing a subject average.
// Pointers stay nil for missing components so callers can show partial state.
type SubjectMarks struct {
	FirstAssignment  *float64 `json:"first_assignment"`
	SecondAssignment *float64 `json:"second_assignment"`
	Examination      *float64 `json:"examination"`
}

// SubjectAverage is the outcome of averaging one subject for one term.
// Complete is false while any of the three component marks is missing;
// an incomplete average is an expected state, not an error.
type SubjectAverage struct {
	Subject     string       `json:"subject"`
	Coefficient int          `json:"coefficient"`
	Average     float64      `json:"average"`
	Complete    bool         `json:"complete"`
	Marks       SubjectMarks `json:"marks"`
}

// OverallAverage aggregates complete subject averages, weighted by
// coefficient. Complete is false when no subject is complete; Average is
// meaningless in that case and serialised as zero.
type OverallAverage struct {
	Average           float64          `json:"average"`
	Complete          bool             `json:"complete"`
	TotalCoefficients int              `json:"total_coefficients"`
	Subjects          []SubjectAverage `json:"subjects"`
}

// RankingEntry positions one student inside a class ranking. Rank is nil
// for students whose overall average could not be computed; they sort after
// every ranked student.
type RankingEntry struct {
	StudentID string   `json:"student_id"`
	Matricule string   `json:"matricule"`
	LastName  string   `json:"last_name"`
	FirstName string   `json:"first_name"`
	Gender    string   `json:"gender"`
	Average   *float64 `json:"average"`
	Rank      *int     `json:"rank"`
}

// RankingStats summarises a class ranking run.
type RankingStats struct {
	Total      int     `json:"total"`
	Complete   int     `json:"complete"`
	Incomplete int     `json:"incomplete"`
	ClassMean  float64 `json:"class_mean"`
	Best       float64 `json:"best"`
	Worst      float64 `json:"worst"`
}

// ClassRanking is the full ranking output for one class and term.
type ClassRanking struct {
	ClassID    string         `json:"class_id"`
	Term       int            `json:"term"`
	SchoolYear string         `json:"school_year"`
	Entries    []RankingEntry `json:"entries"`
	Stats      RankingStats   `json:"stats"`
}
