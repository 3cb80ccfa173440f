package payment

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
	// ErrNotFound é retornado quando nenhuma cobrança é encontrada.
	ErrNotFound = errors.New("cobrança não encontrada")
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela payments.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const paymentColumns = `
	id, pre_enrollment_id, enrollment_id, kind, amount::text, status,
	gateway_id, pix_qr_image, pix_payload, pix_expiration, paid_at,
	created_at, updated_at
`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var amount string
	if err := row.Scan(
		&p.ID, &p.PreEnrollmentID, &p.EnrollmentID, &p.Kind, &amount, &p.Status,
		&p.GatewayID, &p.PixQRImage, &p.PixPayload, &p.PixExpiration, &p.PaidAt,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Payment{}, err
	}
	p.Amount = parsed
	return p, nil
}

// ListByKind retorna todas as cobranças de uma pré-matrícula para o tipo informado.
func (r *Repository) ListByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind) ([]Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE pre_enrollment_id = $1 AND kind = $2
		ORDER BY created_at
	`, preEnrollmentID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetByGatewayID localiza a cobrança pelo identificador externo do gateway.
func (r *Repository) GetByGatewayID(ctx context.Context, gatewayID string) (Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE gateway_id = $1
	`, gatewayID)
	return scanPayment(row)
}

// FindSettledByKind devolve a primeira cobrança confirmada/recebida do tipo, se houver.
func (r *Repository) FindSettledByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE pre_enrollment_id = $1 AND kind = $2 AND status IN ('confirmed', 'received')
		ORDER BY created_at
		LIMIT 1
	`, preEnrollmentID, kind)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindPendingByKind devolve a cobrança pendente mais recente do tipo, se houver.
func (r *Repository) FindPendingByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE pre_enrollment_id = $1 AND kind = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`, preEnrollmentID, kind)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// InsertParams carrega os campos necessários para registrar uma cobrança.
type InsertParams struct {
	PreEnrollmentID uuid.UUID
	EnrollmentID    *uuid.UUID
	Kind            Kind
	Amount          decimal.Decimal
	Status          Status
	GatewayID       *string
	PixQRImage      *string
	PixPayload      *string
	PixExpiration   *time.Time
	PaidAt          *time.Time
}

// Insert registra uma nova cobrança e devolve a linha persistida.
func (r *Repository) Insert(ctx context.Context, params InsertParams) (Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO payments (
			pre_enrollment_id, enrollment_id, kind, amount, status,
			gateway_id, pix_qr_image, pix_payload, pix_expiration, paid_at
		)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)
		RETURNING `+paymentColumns+`
	`,
		params.PreEnrollmentID, params.EnrollmentID, params.Kind, params.Amount.String(), params.Status,
		params.GatewayID, params.PixQRImage, params.PixPayload, params.PixExpiration, params.PaidAt,
	)
	return scanPayment(row)
}

// MarkStatus atualiza o status e o paid_at de uma cobrança.
func (r *Repository) MarkStatus(ctx context.Context, id uuid.UUID, status Status, paidAt *time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $2, paid_at = COALESCE($3, paid_at), updated_at = now()
		WHERE id = $1
	`, id, status, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachEnrollment vincula a cobrança de matrícula ao registro de matrícula criado.
func (r *Repository) AttachEnrollment(ctx context.Context, id, enrollmentID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET enrollment_id = $2, updated_at = now() WHERE id = $1
	`, id, enrollmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
