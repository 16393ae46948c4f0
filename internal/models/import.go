package models

// ImportRow is one raw record from an uploaded roster file, keyed by the
// original column headers. Values arrive untrimmed.
type ImportRow map[string]string

// Import file column headers. The reconciler addresses fields by these
// names so files exported from the official template round-trip untouched.
const (
	FieldMatricule        = "Matricule"
	FieldLastName         = "Nom"
	FieldFirstName        = "Prénom"
	FieldBirthDate        = "Date Naissance"
	FieldBirthPlace       = "Lieu Naissance"
	FieldGender           = "Sexe"
	FieldAddress          = "Adresse"
	FieldPhone            = "Téléphone"
	FieldEmail            = "Email"
	FieldClass            = "Classe"
	FieldLevel            = "Niveau"
	FieldFatherName       = "Nom Père"
	FieldFatherOccupation = "Profession Père"
	FieldMotherName       = "Nom Mère"
	FieldMotherOccupation = "Profession Mère"
	FieldGuardianPhone    = "Téléphone Parent"
	FieldStatus           = "Situation"
	FieldNationality      = "Nationalité"
)

// RequiredImportFields must be non-empty for a row to be imported.
var RequiredImportFields = []string{
	FieldLastName,
	FieldFirstName,
	FieldClass,
	FieldLevel,
	FieldFatherName,
	FieldMotherName,
	FieldGuardianPhone,
}

// ImportHeaders lists every column of the roster template, in file order.
var ImportHeaders = []string{
	FieldMatricule, FieldLastName, FieldFirstName, FieldBirthDate,
	FieldBirthPlace, FieldGender, FieldAddress, FieldPhone, FieldEmail,
	FieldClass, FieldLevel, FieldFatherName, FieldFatherOccupation,
	FieldMotherName, FieldMotherOccupation, FieldGuardianPhone,
	FieldStatus, FieldNationality,
}

// FieldViolation flags one constraint breach on one row. Row numbers are
// file line numbers: data starts at line 2, under the header.
type FieldViolation struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BatchStats accumulates aggregate facts across a validated batch.
// Distinct sets are reported as sorted slices.
type BatchStats struct {
	WithMatricule     int      `json:"with_matricule"`
	WithoutMatricule  int      `json:"without_matricule"`
	ValidMatricules   int      `json:"valid_matricules"`
	InvalidMatricules int      `json:"invalid_matricules"`
	Classes           []string `json:"classes"`
	Levels            []string `json:"levels"`
	Initials          []string `json:"initials"`
}

// ValidationReport is the full outcome of validating a batch.
type ValidationReport struct {
	Valid  bool             `json:"valid"`
	Errors []FieldViolation `json:"errors"`
	Stats  BatchStats       `json:"stats"`
}

// Matricule assignment outcomes recorded during reconciliation.
const (
	MatriculeActionCreated = "created"
	MatriculeActionUpdated = "updated"
)

// MatriculeOutcome records the matricule decision for one reconciled row.
type MatriculeOutcome struct {
	Row       int    `json:"row"`
	Matricule string `json:"matricule"`
	Previous  string `json:"previous,omitempty"`
	Action    string `json:"action"`
}

// RowError captures why a row was skipped during reconciliation.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarises one reconciliation run. Skipped rows never abort
// the batch; their errors are returned in file order.
type ImportResult struct {
	Total      int                `json:"total"`
	Created    int                `json:"created"`
	Updated    int                `json:"updated"`
	Skipped    int                `json:"skipped"`
	Errors     []RowError         `json:"errors"`
	Matricules []MatriculeOutcome `json:"matricules"`
}

// MatriculeProposal previews the matricule a row would receive.
type MatriculeProposal struct {
	Row       int    `json:"row"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Matricule string `json:"matricule"`
}

// ImportPreview is the dry-run analysis returned before committing an import.
type ImportPreview struct {
	TotalRows  int                 `json:"total_rows"`
	Headers    []string            `json:"headers"`
	Sample     []ImportRow         `json:"sample"`
	Validation ValidationReport    `json:"validation"`
	Proposals  []MatriculeProposal `json:"proposals"`
}
