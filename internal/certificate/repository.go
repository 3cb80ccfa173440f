package certificate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound é retornado quando o código não existe.
	ErrNotFound = errors.New("certificado não encontrado")
	// ErrDuplicateCode indica colisão no código único gerado.
	ErrDuplicateCode = errors.New("código de certificado já utilizado")
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela certificates.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const certificateColumns = `
	id, certificate_code, enrollment_id, pre_enrollment_id, student_name,
	course_name, course_hours, issue_date, completion_date, status,
	verification_url, created_at
`

func scanCertificate(row pgx.Row) (Certificate, error) {
	var c Certificate
	if err := row.Scan(
		&c.ID, &c.Code, &c.EnrollmentID, &c.PreEnrollmentID, &c.StudentName,
		&c.CourseName, &c.CourseHours, &c.IssueDate, &c.CompletionDate, &c.Status,
		&c.VerificationURL, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Certificate{}, ErrNotFound
		}
		return Certificate{}, err
	}
	return c, nil
}

// InsertParams carrega os dados do certificado a emitir.
type InsertParams struct {
	Code            string
	EnrollmentID    uuid.UUID
	PreEnrollmentID uuid.UUID
	StudentName     string
	CourseName      string
	CourseHours     int
	IssueDate       time.Time
	CompletionDate  *time.Time
	VerificationURL string
}

// Insert grava o certificado; colisão no código único vira ErrDuplicateCode.
func (r *Repository) Insert(ctx context.Context, params InsertParams) (Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO certificates (
			certificate_code, enrollment_id, pre_enrollment_id, student_name,
			course_name, course_hours, issue_date, completion_date, status, verification_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active', $9)
		RETURNING `+certificateColumns+`
	`,
		params.Code, params.EnrollmentID, params.PreEnrollmentID, params.StudentName,
		params.CourseName, params.CourseHours, params.IssueDate, params.CompletionDate,
		params.VerificationURL,
	)

	c, err := scanCertificate(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Certificate{}, ErrDuplicateCode
		}
		return Certificate{}, err
	}
	return c, nil
}

// GetByCode é a consulta pública de verificação.
func (r *Repository) GetByCode(ctx context.Context, code string) (Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates
		WHERE certificate_code = $1
	`, code)
	return scanCertificate(row)
}

// GetByEnrollment devolve o certificado da matrícula, se já emitido.
func (r *Repository) GetByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates
		WHERE enrollment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, enrollmentID)

	c, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// List devolve certificados emitidos, mais recentes primeiro.
func (r *Repository) List(ctx context.Context) ([]Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+certificateColumns+` FROM certificates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetStatus ativa/desativa um certificado emitido.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `UPDATE certificates SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
