package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distingue cobranças de pré-matrícula e de matrícula.
type Kind string

const (
	KindPreEnrollment Kind = "pre_enrollment"
	KindEnrollment    Kind = "enrollment"
)

// Status reflete o ciclo de vida de uma cobrança no gateway.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReceived  Status = "received"
	StatusOverdue   Status = "overdue"
	StatusFailed    Status = "failed"
)

// Payment representa uma cobrança PIX vinculada a uma pré-matrícula.
type Payment struct {
	ID              uuid.UUID       `json:"id"`
	PreEnrollmentID uuid.UUID       `json:"pre_enrollment_id"`
	EnrollmentID    *uuid.UUID      `json:"enrollment_id,omitempty"`
	Kind            Kind            `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	Status          Status          `json:"status"`
	GatewayID       *string         `json:"gateway_id,omitempty"`
	PixQRImage      *string         `json:"pix_qr_image,omitempty"`
	PixPayload      *string         `json:"pix_payload,omitempty"`
	PixExpiration   *time.Time      `json:"pix_expiration,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

// Settled informa se a cobrança conta como paga para fins de desconto.
func (p Payment) Settled() bool {
	return p.Status == StatusConfirmed || p.Status == StatusReceived
}

// Expired indica QR Code vencido segundo o relógio informado.
func (p Payment) Expired(now time.Time) bool {
	return p.PixExpiration != nil && p.PixExpiration.Before(now)
}

// Reusable indica cobrança pendente com QR Code ainda válido.
func (p Payment) Reusable(now time.Time) bool {
	return p.Status == StatusPending && !p.Expired(now)
}

// SumSettled soma os valores confirmados/recebidos de uma lista de
// cobranças. Pagamentos parciais múltiplos (correção manual + cobrança
// do gateway) precisam ser somados, nunca apenas o mais recente.
func SumSettled(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Settled() {
			total = total.Add(p.Amount)
		}
	}
	return total
}
