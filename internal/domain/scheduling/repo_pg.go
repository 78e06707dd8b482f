package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

// slotIndex guards against two scheduled appointments in one doctor slot.
const slotIndex = "uq_appointments_doctor_slot"

var (
	errWindowNotFound      = apperr.NotFound("schedule not found")
	errAppointmentNotFound = apperr.NotFound("appointment not found")
	errSlotTaken           = apperr.Conflict("This time slot is already booked")
)

func pgClock(c ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: int64(time.Duration(c) / time.Microsecond), Valid: true}
}

func fromPGClock(t pgtype.Time) ClockTime {
	return ClockTime(time.Duration(t.Microseconds) * time.Microsecond)
}

// =========== Window Repository ===========

type windowRepoPG struct{ pool *pgxpool.Pool }

func NewWindowRepoPG(pool *pgxpool.Pool) WindowRepository { return &windowRepoPG{pool: pool} }

func (r *windowRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const windowCols = `s.id, s.doctor_id, u.full_name, d.specialization, s.day_of_week,
	s.start_time, s.end_time, s.created_at, s.updated_at`

const windowFrom = ` FROM doctor_schedules s
	JOIN doctors d ON d.id = s.doctor_id
	JOIN users u ON u.id = d.user_id`

func (r *windowRepoPG) scanWindow(row pgx.Row) (*Window, error) {
	var (
		w          Window
		day        int16
		start, end pgtype.Time
	)
	err := row.Scan(&w.ID, &w.DoctorID, &w.DoctorName, &w.Specialization, &day,
		&start, &end, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.DayOfWeek = time.Weekday(day)
	w.DayName = w.DayOfWeek.String()
	w.Start = fromPGClock(start)
	w.End = fromPGClock(end)
	return &w, nil
}

func (r *windowRepoPG) Create(ctx context.Context, w *Window) error {
	w.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_schedules (id, doctor_id, day_of_week, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		w.ID, w.DoctorID, int16(w.DayOfWeek), pgClock(w.Start), pgClock(w.End),
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	w.DayName = w.DayOfWeek.String()
	return nil
}

func (r *windowRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Window, error) {
	w, err := r.scanWindow(r.conn(ctx).QueryRow(ctx, `SELECT `+windowCols+windowFrom+` WHERE s.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, errWindowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return w, nil
}

func (r *windowRepoPG) Update(ctx context.Context, w *Window) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_schedules SET start_time = $2, end_time = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		w.ID, pgClock(w.Start), pgClock(w.End),
	).Scan(&w.UpdatedAt)
	if db.IsNoRows(err) {
		return errWindowNotFound
	}
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

func (r *windowRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_schedules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete schedule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *windowRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Window, error) {
	return r.list(ctx, `SELECT `+windowCols+windowFrom+`
		WHERE s.doctor_id = $1
		ORDER BY s.day_of_week, s.start_time`, doctorID)
}

func (r *windowRepoPG) ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]*Window, error) {
	return r.list(ctx, `SELECT `+windowCols+windowFrom+`
		WHERE s.doctor_id = $1 AND s.day_of_week = $2
		ORDER BY s.start_time`, doctorID, int16(day))
}

func (r *windowRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Window, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	var items []*Window
	for rows.Next() {
		w, err := r.scanWindow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `a.id, a.patient_id, p.first_name || ' ' || p.last_name, COALESCE(p.email, ''), p.phone,
	a.doctor_id, u.full_name, d.specialization,
	a.appointment_at, a.status, a.notes, a.created_at, a.updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.PatientEmail, &a.PatientPhone,
		&a.DoctorID, &a.DoctorName, &a.DoctorSpecialization,
		&a.AppointmentAt, &status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentAt, string(a.Status), a.Notes,
	).Scan(&a.CreatedAt)
	if db.IsUniqueViolation(err, slotIndex) {
		return errSlotTaken
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+appointmentFrom+` AND a.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, errAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET appointment_at = $2, status = $3, notes = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.AppointmentAt, string(a.Status), a.Notes,
	).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return errAppointmentNotFound
	}
	if db.IsUniqueViolation(err, slotIndex) {
		return errSlotTaken
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if db.IsUniqueViolation(err, slotIndex) {
		return errSlotTaken
	}
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ExistsScheduledAt(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND appointment_at = $2 AND status = 'scheduled'
				AND ($3::uuid IS NULL OR id <> $3)
		)`, doctorID, at, exclude).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check booked slot: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepoPG) ScheduledBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_at FROM appointments
		WHERE doctor_id = $1 AND status = 'scheduled'
			AND appointment_at >= $2 AND appointment_at < $3`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) Search(ctx context.Context, f Filter, now time.Time) ([]*Appointment, int, error) {
	q := buildSearch(f, now)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+appointmentFrom+q.where, q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	args := append(q.args, f.Page.Limit(), f.Page.Offset())
	query := `SELECT ` + apptCols + appointmentFrom + q.where +
		` ORDER BY ` + q.order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(q.args)+1, len(q.args)+2)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search appointments: %w", err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) CountByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE doctor_id = $1`, doctorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count doctor appointments: %w", err)
	}
	return n, nil
}

func (r *appointmentRepoPG) AddReschedule(ctx context.Context, rs *Reschedule) error {
	rs.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_reschedules (id, appointment_id, previous_at, new_at, changed_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING changed_at`,
		rs.ID, rs.AppointmentID, rs.PreviousAt, rs.NewAt, rs.ChangedBy,
	).Scan(&rs.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert reschedule: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) ListReschedules(ctx context.Context, appointmentID uuid.UUID) ([]*Reschedule, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, appointment_id, previous_at, new_at, changed_by, changed_at
		FROM appointment_reschedules
		WHERE appointment_id = $1
		ORDER BY changed_at, id`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list reschedules: %w", err)
	}
	defer rows.Close()
	var items []*Reschedule
	for rows.Next() {
		var rs Reschedule
		if err := rows.Scan(&rs.ID, &rs.AppointmentID, &rs.PreviousAt, &rs.NewAt, &rs.ChangedBy, &rs.ChangedAt); err != nil {
			return nil, err
		}
		items = append(items, &rs)
	}
	return items, rows.Err()
}
