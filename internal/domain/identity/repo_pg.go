package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/pagination"
)

const (
	patientEmailIndex = "uq_patients_email"
	doctorUserIndex   = "uq_doctors_user"
)

var (
	errPatientNotFound = apperr.NotFound("patient not found")
	errDoctorNotFound  = apperr.NotFound("doctor not found")
)

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `p.id, p.first_name, p.last_name, p.date_of_birth, p.gender, p.phone,
	p.email, p.address, p.is_deleted, p.deleted_at, p.created_at, p.updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob time.Time
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &dob, &p.Gender, &p.Phone,
		&p.Email, &p.Address, &p.IsDeleted, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.DateOfBirth = Date{dob}
	p.FullName = p.FirstName + " " + p.LastName
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, date_of_birth, gender, phone, email, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth.Time, p.Gender, p.Phone, p.Email, p.Address,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, patientEmailIndex) {
		return errPatientEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	p.FullName = p.FirstName + " " + p.LastName
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.get(ctx, id, false)
}

func (r *patientRepoPG) GetDeleted(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.get(ctx, id, true)
}

func (r *patientRepoPG) get(ctx context.Context, id uuid.UUID, deleted bool) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients p WHERE p.id = $1 AND p.is_deleted = $2`, id, deleted))
	if db.IsNoRows(err) {
		return nil, errPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET first_name = $2, last_name = $3, date_of_birth = $4, gender = $5,
			phone = $6, email = $7, address = $8, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth.Time, p.Gender, p.Phone, p.Email, p.Address,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return errPatientNotFound
	}
	if db.IsUniqueViolation(err, patientEmailIndex) {
		return errPatientEmailInUse
	}
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	p.FullName = p.FirstName + " " + p.LastName
	return nil
}

func (r *patientRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET is_deleted = TRUE, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("delete patient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) Restore(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET is_deleted = FALSE, deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND is_deleted = TRUE`, id)
	if db.IsUniqueViolation(err, patientEmailIndex) {
		return false, errPatientEmailInUse
	}
	if err != nil {
		return false, fmt.Errorf("restore patient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) List(ctx context.Context, f PatientFilter, page pagination.Page) ([]*Patient, int, error) {
	where, args := patientWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients p`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query := `SELECT ` + patientCols + ` FROM patients p` + where +
		` ORDER BY p.last_name, p.first_name, p.id` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// patientWhere builds the WHERE clause of a patient listing.
func patientWhere(f PatientFilter) (string, []interface{}) {
	conds := []string{"p.is_deleted = FALSE"}
	var args []interface{}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM appointments a WHERE a.patient_id = p.id AND a.doctor_id = $%d)", len(args)))
	}
	if term := strings.TrimSpace(f.Term); term != "" {
		args = append(args, likePattern(term))
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(p.first_name || ' ' || p.last_name ILIKE $%d OR COALESCE(p.email, '') ILIKE $%d OR p.phone ILIKE $%d)", n, n, n))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string { return "%" + likeEscaper.Replace(s) + "%" }

func (r *patientRepoPG) EmailTaken(ctx context.Context, email string, exclude *uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patients
			WHERE lower(email) = lower($1) AND is_deleted = FALSE
				AND ($2::uuid IS NULL OR id <> $2)
		)`, email, exclude).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check patient email: %w", err)
	}
	return taken, nil
}

func (r *patientRepoPG) SeenByDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var seen bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE patient_id = $1 AND doctor_id = $2)`,
		patientID, doctorID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check doctor patient: %w", err)
	}
	return seen, nil
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `d.id, d.user_id, u.full_name, u.email, COALESCE(u.phone, ''),
	d.specialization, d.license_number, d.created_at, d.updated_at`

const doctorFrom = ` FROM doctors d JOIN users u ON u.id = d.user_id`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.FullName, &d.Email, &d.Phone,
		&d.Specialization, &d.LicenseNumber, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctors (id, user_id, specialization, license_number)
		VALUES ($1, $2, $3, $4)`,
		d.ID, d.UserID, d.Specialization, d.LicenseNumber)
	if db.IsUniqueViolation(err, doctorUserIndex) {
		return errDoctorExists
	}
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	got, err := r.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	*d = *got
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.getWhere(ctx, `d.id = $1`, id)
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return r.getWhere(ctx, `d.user_id = $1`, userID)
}

func (r *doctorRepoPG) getWhere(ctx context.Context, cond string, arg interface{}) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE `+cond, arg))
	if db.IsNoRows(err) {
		return nil, errDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

// Update writes the doctor profile and the account phone number.
func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctors SET specialization = $2, license_number = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Specialization, d.LicenseNumber,
	).Scan(&d.UpdatedAt)
	if db.IsNoRows(err) {
		return errDoctorNotFound
	}
	if err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx,
		`UPDATE users SET phone = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`, d.UserID, d.Phone)
	if err != nil {
		return fmt.Errorf("update doctor account: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM users WHERE id = (SELECT user_id FROM doctors WHERE id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("delete doctor: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *doctorRepoPG) List(ctx context.Context, specialization string, page pagination.Page) ([]*Doctor, int, error) {
	where := ""
	var args []interface{}
	if s := strings.TrimSpace(specialization); s != "" {
		args = append(args, likePattern(s))
		where = ` WHERE d.specialization ILIKE $1`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+doctorFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	query := `SELECT ` + doctorCols + doctorFrom + where +
		` ORDER BY u.full_name, d.id` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
