package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/pagination"
)

// Sort keys accepted by Search.
const (
	SortDate    = "date"
	SortPatient = "patient"
	SortDoctor  = "doctor"
	SortStatus  = "status"
)

// Filter narrows an appointment search. Zero values mean "no constraint".
type Filter struct {
	DoctorID       *uuid.UUID
	PatientID      *uuid.UUID
	Status         *Status
	Specialization string
	From           *time.Time
	To             *time.Time
	UpcomingOnly   bool
	Term           string
	SortBy         string
	Desc           bool
	Page           pagination.Page
}

// normalize applies defaults; unknown sort keys fall back to date.
func (f Filter) normalize() Filter {
	f.SortBy = strings.ToLower(strings.TrimSpace(f.SortBy))
	switch f.SortBy {
	case SortDate, SortPatient, SortDoctor, SortStatus:
	default:
		f.SortBy = SortDate
	}
	f.Page = pagination.NewPage(f.Page.Number, f.Page.Size)
	f.Term = strings.TrimSpace(f.Term)
	f.Specialization = strings.TrimSpace(f.Specialization)
	return f
}

const appointmentFrom = `
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
	JOIN users u ON u.id = d.user_id
	WHERE p.is_deleted = FALSE`

// statusRank orders statuses by lifecycle rather than alphabetically.
var statusRank = func() string {
	var b strings.Builder
	b.WriteString("CASE a.status")
	for i, st := range allStatuses {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", st, i)
	}
	b.WriteString(" END")
	return b.String()
}()

type searchSQL struct {
	where string
	args  []interface{}
	order string
}

// buildSearch renders the WHERE conditions and ORDER BY for f. Conditions are
// appended to appointmentFrom; placeholders start at $1.
func buildSearch(f Filter, now time.Time) searchSQL {
	var (
		b    strings.Builder
		args []interface{}
		idx  = 1
	)
	add := func(cond string, arg interface{}) {
		b.WriteString(" AND ")
		b.WriteString(fmt.Sprintf(cond, idx))
		args = append(args, arg)
		idx++
	}

	if f.DoctorID != nil {
		add("a.doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("a.status = $%d", string(*f.Status))
	}
	if f.Specialization != "" {
		add("d.specialization ILIKE $%d", likePattern(f.Specialization))
	}
	if f.From != nil {
		add("a.appointment_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("a.appointment_at <= $%d", *f.To)
	}
	if f.UpcomingOnly {
		add("a.appointment_at > $%d", now)
	}
	if f.Term != "" {
		b.WriteString(fmt.Sprintf(` AND ((p.first_name || ' ' || p.last_name) ILIKE $%[1]d
		OR u.full_name ILIKE $%[1]d OR COALESCE(a.notes, '') ILIKE $%[1]d)`, idx))
		args = append(args, likePattern(f.Term))
		idx++
	}

	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	var order string
	switch f.SortBy {
	case SortPatient:
		order = fmt.Sprintf("p.first_name %[1]s, p.last_name %[1]s", dir)
	case SortDoctor:
		order = "u.full_name " + dir
	case SortStatus:
		order = statusRank + " " + dir
	default:
		order = "a.appointment_at " + dir
	}
	order += ", a.id ASC"

	return searchSQL{where: b.String(), args: args, order: order}
}

// likePattern wraps s for a substring ILIKE match, escaping wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
