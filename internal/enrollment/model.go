package enrollment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status acompanha a pré-matrícula do envio até a aprovação.
type Status string

const (
	StatusPending          Status = "pending"
	StatusPendingPayment   Status = "pending_payment"
	StatusPaymentConfirmed Status = "payment_confirmed"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
)

// OrganStatus acompanha a aprovação do órgão, ortogonal ao Status.
type OrganStatus string

const (
	OrganPending  OrganStatus = "pending"
	OrganApproved OrganStatus = "approved"
	OrganRejected OrganStatus = "rejected"
)

// PreEnrollment é a inscrição do aluno antes da matrícula formal.
type PreEnrollment struct {
	ID                     uuid.UUID   `json:"id"`
	UserID                 *uuid.UUID  `json:"user_id,omitempty"`
	CourseID               uuid.UUID   `json:"course_id"`
	Nome                   string      `json:"nome"`
	CPF                    string      `json:"cpf"`
	Email                  string      `json:"email"`
	Whatsapp               string      `json:"whatsapp"`
	DataNascimento         *time.Time  `json:"data_nascimento,omitempty"`
	Endereco               *string     `json:"endereco,omitempty"`
	Cidade                 *string     `json:"cidade,omitempty"`
	UF                     *string     `json:"uf,omitempty"`
	CEP                    *string     `json:"cep,omitempty"`
	Status                 Status      `json:"status"`
	OrganTypeID            *uuid.UUID  `json:"organ_type_id,omitempty"`
	CustomHours            *int        `json:"custom_hours,omitempty"`
	OrganApprovalStatus    OrganStatus `json:"organ_approval_status"`
	OrganApprovalConfirmed bool        `json:"organ_approval_confirmed"`
	ManualApproval         bool        `json:"manual_approval"`
	AdminNotes             *string     `json:"admin_notes,omitempty"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              *time.Time  `json:"updated_at,omitempty"`
}

// EnrollmentStatus reflete a matrícula formal pós-aprovação.
type EnrollmentStatus string

const (
	EnrollmentAwaitingPayment EnrollmentStatus = "awaiting_payment"
	EnrollmentActive          EnrollmentStatus = "active"
	EnrollmentCompleted       EnrollmentStatus = "completed"
	EnrollmentCancelled       EnrollmentStatus = "cancelled"
)

// Enrollment é a matrícula criada após a confirmação do órgão.
type Enrollment struct {
	ID               uuid.UUID        `json:"id"`
	UserID           *uuid.UUID       `json:"user_id,omitempty"`
	CourseID         uuid.UUID        `json:"course_id"`
	PreEnrollmentID  uuid.UUID        `json:"pre_enrollment_id"`
	Status           EnrollmentStatus `json:"status"`
	PaymentStatus    string           `json:"payment_status"`
	EnrollmentDate   *time.Time       `json:"enrollment_date,omitempty"`
	EnrollmentAmount decimal.Decimal  `json:"enrollment_amount"`
	CreatedAt        time.Time        `json:"created_at"`
}

// EffectiveStatus deriva "completed" em tempo de leitura: a matrícula
// ativa vira concluída quando enrollment_date + duração do curso já
// passou. Nunca é persistido.
func (e Enrollment) EffectiveStatus(now time.Time, durationDays int) EnrollmentStatus {
	if e.Status == EnrollmentActive && e.EnrollmentDate != nil {
		if now.After(e.EnrollmentDate.AddDate(0, 0, durationDays)) {
			return EnrollmentCompleted
		}
	}
	return e.Status
}

// CertificateEligibleAt devolve o instante a partir do qual o aluno pode
// emitir certificado. O dia extra cobre a contagem inclusiva do dia de
// início.
func (e Enrollment) CertificateEligibleAt(durationDays int) *time.Time {
	if e.EnrollmentDate == nil {
		return nil
	}
	t := e.EnrollmentDate.AddDate(0, 0, durationDays+1)
	return &t
}
