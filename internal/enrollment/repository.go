package enrollment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound é retornado quando o registro não existe.
	ErrNotFound = errors.New("pré-matrícula não encontrada")
	// ErrStatusConflict indica que o registro mudou de estado sob o
	// chamador (update condicional não afetou linhas).
	ErrStatusConflict = errors.New("estado alterado por outra operação")
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso às tabelas pre_enrollments e enrollments.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const preEnrollmentColumns = `
	id, user_id, course_id, nome, cpf, email, whatsapp, data_nascimento,
	endereco, cidade, uf, cep, status, organ_type_id, custom_hours,
	organ_approval_status, organ_approval_confirmed, manual_approval,
	admin_notes, created_at, updated_at
`

func scanPreEnrollment(row pgx.Row) (PreEnrollment, error) {
	var p PreEnrollment
	if err := row.Scan(
		&p.ID, &p.UserID, &p.CourseID, &p.Nome, &p.CPF, &p.Email, &p.Whatsapp, &p.DataNascimento,
		&p.Endereco, &p.Cidade, &p.UF, &p.CEP, &p.Status, &p.OrganTypeID, &p.CustomHours,
		&p.OrganApprovalStatus, &p.OrganApprovalConfirmed, &p.ManualApproval,
		&p.AdminNotes, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PreEnrollment{}, ErrNotFound
		}
		return PreEnrollment{}, err
	}
	return p, nil
}

// InsertParams carrega os dados do formulário de inscrição.
type InsertParams struct {
	UserID         *uuid.UUID
	CourseID       uuid.UUID
	Nome           string
	CPF            string
	Email          string
	Whatsapp       string
	DataNascimento *time.Time
	Endereco       *string
	Cidade         *string
	UF             *string
	CEP            *string
	OrganTypeID    *uuid.UUID
	CustomHours    *int
}

// Insert cria a pré-matrícula em estado pending.
func (r *Repository) Insert(ctx context.Context, params InsertParams) (PreEnrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO pre_enrollments (
			user_id, course_id, nome, cpf, email, whatsapp, data_nascimento,
			endereco, cidade, uf, cep, status, organ_type_id, custom_hours,
			organ_approval_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', $12, $13, 'pending')
		RETURNING `+preEnrollmentColumns+`
	`,
		params.UserID, params.CourseID, params.Nome, params.CPF, params.Email, params.Whatsapp,
		params.DataNascimento, params.Endereco, params.Cidade, params.UF, params.CEP,
		params.OrganTypeID, params.CustomHours,
	)
	return scanPreEnrollment(row)
}

// GetByID busca a pré-matrícula pelo identificador.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (PreEnrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `SELECT `+preEnrollmentColumns+` FROM pre_enrollments WHERE id = $1`, id)
	return scanPreEnrollment(row)
}

// GetByUser devolve a pré-matrícula mais recente do aluno autenticado.
func (r *Repository) GetByUser(ctx context.Context, userID uuid.UUID) (PreEnrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+preEnrollmentColumns+`
		FROM pre_enrollments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	return scanPreEnrollment(row)
}

// List devolve pré-matrículas com filtro opcional de status.
func (r *Repository) List(ctx context.Context, status *Status) ([]PreEnrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT ` + preEnrollmentColumns + ` FROM pre_enrollments`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PreEnrollment
	for rows.Next() {
		p, err := scanPreEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TransitionStatus aplica a mudança de estado em um único UPDATE
// condicional. Se a linha não estiver mais no estado esperado, devolve
// ErrStatusConflict em vez de sobrescrever (evita corrida
// ler-depois-gravar entre duas ações administrativas).
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE pre_enrollments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

// SetOrganApproval grava o status do órgão. Ao sair de approved o flag
// de confirmação é zerado para manter o invariante confirmed ⇒ approved.
func (r *Repository) SetOrganApproval(ctx context.Context, id uuid.UUID, status OrganStatus) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE pre_enrollments
		SET organ_approval_status = $2,
		    organ_approval_confirmed = CASE WHEN $2 = 'approved' THEN organ_approval_confirmed ELSE FALSE END,
		    updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmOrganApproval liga o flag de confirmação apenas quando o órgão
// já consta como aprovado; caso contrário devolve ErrStatusConflict.
func (r *Repository) ConfirmOrganApproval(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE pre_enrollments
		SET organ_approval_confirmed = TRUE, updated_at = now()
		WHERE id = $1 AND organ_approval_status = 'approved'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

// SetManualApproval registra o override de cortesia junto com o estado aprovado.
func (r *Repository) SetManualApproval(ctx context.Context, id uuid.UUID, notes *string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE pre_enrollments
		SET status = 'approved', manual_approval = TRUE,
		    admin_notes = COALESCE($2, admin_notes), updated_at = now()
		WHERE id = $1
	`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAdminNotes atualiza as observações internas da equipe.
func (r *Repository) SetAdminNotes(ctx context.Context, id uuid.UUID, notes string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE pre_enrollments SET admin_notes = $2, updated_at = now() WHERE id = $1
	`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const enrollmentColumns = `
	id, user_id, course_id, pre_enrollment_id, status, payment_status,
	enrollment_date, enrollment_amount::text, created_at
`

func scanEnrollment(row pgx.Row) (Enrollment, error) {
	var e Enrollment
	var amount string
	if err := row.Scan(
		&e.ID, &e.UserID, &e.CourseID, &e.PreEnrollmentID, &e.Status, &e.PaymentStatus,
		&e.EnrollmentDate, &amount, &e.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Enrollment{}, err
	}
	e.EnrollmentAmount = parsed
	return e, nil
}

// InsertEnrollment cria a matrícula aguardando pagamento.
func (r *Repository) InsertEnrollment(ctx context.Context, userID *uuid.UUID, courseID, preEnrollmentID uuid.UUID, amount decimal.Decimal) (Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO enrollments (user_id, course_id, pre_enrollment_id, status, payment_status, enrollment_amount)
		VALUES ($1, $2, $3, 'awaiting_payment', 'pending', $4::numeric)
		RETURNING `+enrollmentColumns+`
	`, userID, courseID, preEnrollmentID, amount.String())
	return scanEnrollment(row)
}

// GetEnrollmentByPreEnrollment devolve a matrícula vinculada, se houver.
func (r *Repository) GetEnrollmentByPreEnrollment(ctx context.Context, preEnrollmentID uuid.UUID) (*Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE pre_enrollment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, preEnrollmentID)

	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ActivateEnrollment marca a matrícula como ativa na confirmação do pagamento.
func (r *Repository) ActivateEnrollment(ctx context.Context, id uuid.UUID, enrollmentDate time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE enrollments
		SET status = 'active', payment_status = 'paid', enrollment_date = $2
		WHERE id = $1 AND status = 'awaiting_payment'
	`, id, enrollmentDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ListEnrollments devolve matrículas ordenadas da mais recente.
func (r *Repository) ListEnrollments(ctx context.Context) ([]Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+enrollmentColumns+` FROM enrollments ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
