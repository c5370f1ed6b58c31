package penalty

// Code is a closed compliance-violation classification. Adding a code is a
// data-model change, not runtime configuration.
type Code int

const (
	CodeTutorAbsenceBooked   Code = 301 // tutor absent from a booked session
	CodeTutorAbsenceUnbooked Code = 302 // tutor absent from an unbooked open slot
	CodeShortNoticeClosure   Code = 303 // open slot closed within the 48h notice window
	CodeSubstitution         Code = 401 // substitution or temporary closure
	CodeSystemIssue          Code = 501 // system or student-side issue, tutor compensated
	CodeStudentNoShow        Code = 502 // student no-show, informational
	CodeAutoBlock            Code = 601 // automatic temporary block after repeated absence
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Meta carries the fixed attributes of a code.
type Meta struct {
	Label               string
	Severity            Severity
	AffectsCompensation bool
}

var codeMeta = map[Code]Meta{
	CodeTutorAbsenceBooked:   {Label: "tutor absence (booked session)", Severity: SeverityCritical, AffectsCompensation: true},
	CodeTutorAbsenceUnbooked: {Label: "tutor absence (unbooked slot)", Severity: SeverityHigh, AffectsCompensation: true},
	CodeShortNoticeClosure:   {Label: "short-notice slot closure", Severity: SeverityMedium, AffectsCompensation: true},
	CodeSubstitution:         {Label: "substitution / temporary closure", Severity: SeverityLow, AffectsCompensation: false},
	CodeSystemIssue:          {Label: "system or student issue", Severity: SeverityLow, AffectsCompensation: false},
	CodeStudentNoShow:        {Label: "student no-show", Severity: SeverityLow, AffectsCompensation: false},
	CodeAutoBlock:            {Label: "automatic block (repeated absence)", Severity: SeverityCritical, AffectsCompensation: true},
}

// MetaFor returns the fixed metadata for a known code.
func MetaFor(code Code) (Meta, bool) {
	m, ok := codeMeta[code]
	return m, ok
}

// Circumstances describes the situation around a session or slot outcome.
// Pointer fields distinguish "not recorded" from an explicit value.
type Circumstances struct {
	WasBooked               bool
	CancellationNoticeHours *float64
	TutorPresent            bool
	StudentPresent          *bool
	SystemIssue             bool
	IsSubstitution          bool
}

// DeterminePenaltyCode maps circumstances to a penalty code. Evaluation is
// in strict priority order and the first match wins; substitution always
// outranks absence, absence outranks short notice.
func DeterminePenaltyCode(c Circumstances) (Code, bool) {
	if c.IsSubstitution {
		return CodeSubstitution, true
	}

	studentAbsent := c.StudentPresent != nil && !*c.StudentPresent
	if c.SystemIssue || (c.WasBooked && studentAbsent && c.TutorPresent) {
		if studentAbsent {
			return CodeStudentNoShow, true
		}
		return CodeSystemIssue, true
	}

	if !c.TutorPresent {
		if c.WasBooked {
			return CodeTutorAbsenceBooked, true
		}
		return CodeTutorAbsenceUnbooked, true
	}

	if !c.WasBooked && c.CancellationNoticeHours != nil && *c.CancellationNoticeHours < 48 {
		return CodeShortNoticeClosure, true
	}

	return 0, false
}
