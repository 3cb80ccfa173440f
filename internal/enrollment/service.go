package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/portalcapacita/api/internal/course"
	"github.com/portalcapacita/api/internal/fees"
	"github.com/portalcapacita/api/internal/payment"
	"github.com/portalcapacita/api/internal/webhook"
)

var (
	// ErrUnsupportedDuration indica duração de curso sem taxa definida.
	// Nunca aceitamos a inscrição com taxa zerada por omissão da tabela.
	ErrUnsupportedDuration = errors.New("duração de curso sem taxa definida")
	// ErrOrganNotConfirmed indica matrícula solicitada antes da
	// confirmação da aprovação do órgão.
	ErrOrganNotConfirmed = errors.New("aprovação do órgão ainda não confirmada")
	// ErrNotEligible indica certificado solicitado antes do prazo.
	ErrNotEligible = errors.New("matrícula ainda não elegível para certificado")
	// ErrPaymentRequired indica ação que exige pagamento confirmado.
	ErrPaymentRequired = errors.New("pagamento ainda não confirmado")
	// ErrOrganRejected indica autorrelato sobre um desfecho do órgão já
	// rejeitado; somente a equipe reabre.
	ErrOrganRejected = errors.New("aprovação do órgão rejeitada; procure a secretaria para reabrir")
)

// EnrollmentRepository define a persistência usada pelo serviço.
type EnrollmentRepository interface {
	Insert(ctx context.Context, params InsertParams) (PreEnrollment, error)
	GetByID(ctx context.Context, id uuid.UUID) (PreEnrollment, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (PreEnrollment, error)
	List(ctx context.Context, status *Status) ([]PreEnrollment, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	SetOrganApproval(ctx context.Context, id uuid.UUID, status OrganStatus) error
	ConfirmOrganApproval(ctx context.Context, id uuid.UUID) error
	SetManualApproval(ctx context.Context, id uuid.UUID, notes *string) error
	SetAdminNotes(ctx context.Context, id uuid.UUID, notes string) error
	InsertEnrollment(ctx context.Context, userID *uuid.UUID, courseID, preEnrollmentID uuid.UUID, amount decimal.Decimal) (Enrollment, error)
	GetEnrollmentByPreEnrollment(ctx context.Context, preEnrollmentID uuid.UUID) (*Enrollment, error)
	ActivateEnrollment(ctx context.Context, id uuid.UUID, enrollmentDate time.Time) error
	ListEnrollments(ctx context.Context) ([]Enrollment, error)
}

// PaymentProcessor cobre o que o serviço precisa do módulo de pagamentos.
type PaymentProcessor interface {
	Checkout(ctx context.Context, input payment.CheckoutInput) (payment.Payment, error)
	SynthesizeManual(ctx context.Context, preEnrollmentID uuid.UUID, kind payment.Kind, amount decimal.Decimal) (bool, error)
	DiscountedEnrollmentAmount(ctx context.Context, preEnrollmentID uuid.UUID, enrollmentFee decimal.Decimal) (decimal.Decimal, error)
	ApplyGatewayEvent(ctx context.Context, gatewayID string, event payment.GatewayEvent) (payment.Payment, error)
	AttachEnrollment(ctx context.Context, paymentID, enrollmentID uuid.UUID) error
}

// CourseCatalog resolve cursos e tipos de órgão.
type CourseCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (course.Course, error)
	GetOrganType(ctx context.Context, id uuid.UUID) (course.OrganType, error)
}

// Notifier publica eventos de ciclo de vida em melhor esforço.
type Notifier interface {
	Trigger(ctx context.Context, event webhook.Event)
}

// Service concentra o fluxo pré-matrícula → pagamento → aprovação →
// matrícula.
type Service struct {
	repo     EnrollmentRepository
	payments PaymentProcessor
	catalog  CourseCatalog
	notifier Notifier
	now      func() time.Time
}

func NewService(repo EnrollmentRepository, payments PaymentProcessor, catalog CourseCatalog, notifier Notifier) *Service {
	return &Service{repo: repo, payments: payments, catalog: catalog, notifier: notifier, now: time.Now}
}

func (s *Service) trigger(ctx context.Context, event webhook.Event) {
	if s.notifier != nil {
		s.notifier.Trigger(ctx, event)
	}
}

// SubmitInput carrega o formulário público de inscrição.
type SubmitInput struct {
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
}

// Submit registra a inscrição e avança para pending_payment, já que a
// taxa de pré-matrícula é sempre devida. Durações fora da tabela de
// taxas são rejeitadas na entrada.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (PreEnrollment, error) {
	c, err := s.catalog.GetByID(ctx, input.CourseID)
	if err != nil {
		return PreEnrollment{}, err
	}
	if !fees.Supported(c.DurationDays) {
		return PreEnrollment{}, ErrUnsupportedDuration
	}

	params := InsertParams{
		UserID:         input.UserID,
		CourseID:       input.CourseID,
		Nome:           input.Nome,
		CPF:            input.CPF,
		Email:          input.Email,
		Whatsapp:       input.Whatsapp,
		DataNascimento: input.DataNascimento,
		Endereco:       input.Endereco,
		Cidade:         input.Cidade,
		UF:             input.UF,
		CEP:            input.CEP,
		OrganTypeID:    input.OrganTypeID,
	}

	if input.OrganTypeID != nil {
		organ, err := s.catalog.GetOrganType(ctx, *input.OrganTypeID)
		if err != nil {
			return PreEnrollment{}, err
		}
		hours := organ.CustomHours(c.Hours)
		params.CustomHours = &hours
	}

	record, err := s.repo.Insert(ctx, params)
	if err != nil {
		return PreEnrollment{}, err
	}

	if err := s.transition(ctx, &record, EventFeeDue); err != nil {
		return PreEnrollment{}, err
	}

	s.trigger(ctx, webhook.Event{Type: webhook.EventPreEnrollmentCreated, PreEnrollmentID: record.ID})
	return record, nil
}

// transition resolve o destino pela tabela e persiste via update
// condicional, mantendo record.Status coerente em memória.
func (s *Service) transition(ctx context.Context, record *PreEnrollment, event Event) error {
	to, err := Decide(record.Status, event)
	if err != nil {
		return err
	}
	if err := s.repo.TransitionStatus(ctx, record.ID, record.Status, to); err != nil {
		return err
	}
	record.Status = to
	return nil
}

// PreEnrollmentCheckout gera (ou reaproveita) a cobrança PIX da taxa de
// pré-matrícula.
func (s *Service) PreEnrollmentCheckout(ctx context.Context, preEnrollmentID uuid.UUID) (payment.Payment, error) {
	record, err := s.repo.GetByID(ctx, preEnrollmentID)
	if err != nil {
		return payment.Payment{}, err
	}
	if record.Status != StatusPending && record.Status != StatusPendingPayment {
		return payment.Payment{}, ErrTransitionDenied{From: record.Status, Event: EventFeeDue}
	}

	c, err := s.catalog.GetByID(ctx, record.CourseID)
	if err != nil {
		return payment.Payment{}, err
	}
	resolved := fees.Resolve(c.DurationDays)

	return s.payments.Checkout(ctx, payment.CheckoutInput{
		PreEnrollmentID: record.ID,
		Kind:            payment.KindPreEnrollment,
		Amount:          resolved.PreEnrollment,
		Description:     "Taxa de pré-matrícula - " + c.Titulo,
		Payer:           payment.Payer{Name: record.Nome, CPF: record.CPF, Email: record.Email, Phone: record.Whatsapp},
	})
}

// ManualConfirmResult informa o resultado da baixa manual da equipe.
type ManualConfirmResult struct {
	PreEnrollment PreEnrollment `json:"pre_enrollment"`
	// Warning é preenchido quando a aprovação foi aplicada mas o
	// registro sintético de pagamento falhou — o desconto do aluno
	// pode não refletir corretamente.
	Warning string `json:"warning,omitempty"`
}

// ConfirmPaymentManually dá baixa de pagamento pela equipe. Também
// sintetiza a cobrança confirmada para a contabilidade de desconto;
// a falha nessa síntese não desfaz a baixa, apenas gera aviso.
func (s *Service) ConfirmPaymentManually(ctx context.Context, preEnrollmentID uuid.UUID) (ManualConfirmResult, error) {
	record, err := s.repo.GetByID(ctx, preEnrollmentID)
	if err != nil {
		return ManualConfirmResult{}, err
	}

	previous := string(record.Status)
	if err := s.transition(ctx, &record, EventPaymentSettled); err != nil {
		return ManualConfirmResult{}, err
	}

	result := ManualConfirmResult{PreEnrollment: record}

	c, err := s.catalog.GetByID(ctx, record.CourseID)
	if err == nil {
		resolved := fees.Resolve(c.DurationDays)
		if _, synthErr := s.payments.SynthesizeManual(ctx, record.ID, payment.KindPreEnrollment, resolved.PreEnrollment); synthErr != nil {
			log.Warn().Err(synthErr).Str("pre_enrollment_id", record.ID.String()).
				Msg("baixa manual confirmada, mas o registro de pagamento falhou")
			result.Warning = "pagamento confirmado, mas o registro para cálculo de desconto falhou; o desconto do aluno pode não aparecer corretamente"
		}
	} else {
		result.Warning = "pagamento confirmado, mas o curso não foi localizado para registrar o valor pago"
	}

	s.trigger(ctx, webhook.Event{
		Type:            webhook.EventPaymentConfirmed,
		PreEnrollmentID: record.ID,
		PreviousStatus:  &previous,
	})
	return result, nil
}

// HandleGatewayEvent processa o callback do gateway e avança o fluxo.
func (s *Service) HandleGatewayEvent(ctx context.Context, gatewayID string, event payment.GatewayEvent) error {
	p, err := s.payments.ApplyGatewayEvent(ctx, gatewayID, event)
	if err != nil {
		return err
	}
	if !p.Settled() {
		return nil
	}

	switch p.Kind {
	case payment.KindPreEnrollment:
		record, err := s.repo.GetByID(ctx, p.PreEnrollmentID)
		if err != nil {
			return err
		}
		previous := string(record.Status)
		if err := s.transition(ctx, &record, EventPaymentSettled); err != nil {
			var denied ErrTransitionDenied
			if errors.As(err, &denied) {
				// Webhook repetido após baixa manual: nada a fazer.
				log.Info().Str("pre_enrollment_id", record.ID.String()).Msg("pagamento já refletido no estado")
				return nil
			}
			return err
		}
		s.trigger(ctx, webhook.Event{
			Type:            webhook.EventPaymentConfirmed,
			PreEnrollmentID: record.ID,
			PreviousStatus:  &previous,
		})

	case payment.KindEnrollment:
		enr, err := s.repo.GetEnrollmentByPreEnrollment(ctx, p.PreEnrollmentID)
		if err != nil {
			return err
		}
		if enr == nil {
			return fmt.Errorf("cobrança de matrícula sem matrícula vinculada: %s", gatewayID)
		}
		if err := s.repo.ActivateEnrollment(ctx, enr.ID, s.now()); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return nil
			}
			return err
		}
		s.trigger(ctx, webhook.Event{
			Type:            webhook.EventEnrollmentActive,
			PreEnrollmentID: p.PreEnrollmentID,
			EnrollmentID:    &enr.ID,
		})
	}
	return nil
}

// Reject encerra a pré-matrícula. Estado terminal: só o override manual
// da equipe reabre.
func (s *Service) Reject(ctx context.Context, preEnrollmentID uuid.UUID, notes *string) (PreEnrollment, error) {
	record, err := s.repo.GetByID(ctx, preEnrollmentID)
	if err != nil {
		return PreEnrollment{}, err
	}
	previous := string(record.Status)
	if err := s.transition(ctx, &record, EventRejected); err != nil {
		return PreEnrollment{}, err
	}
	if notes != nil {
		_ = s.repo.SetAdminNotes(ctx, record.ID, *notes)
	}
	s.trigger(ctx, webhook.Event{
		Type:            webhook.EventStatusRejected,
		PreEnrollmentID: record.ID,
		PreviousStatus:  &previous,
	})
	return record, nil
}

// SetOrganApproval registra o auto-relato do aluno sobre o desfecho do
// órgão. Exige pagamento confirmado; ao aprovar, o status administrativo
// acompanha. Desfecho rejeitado é beco sem saída para o aluno: só a
// equipe reabre via StaffSetOrganApproval ou override manual.
func (s *Service) SetOrganApproval(ctx context.Context, preEnrollmentID uuid.UUID, status OrganStatus) (PreEnrollment, error) {
	return s.setOrganApproval(ctx, preEnrollmentID, status, false)
}

// StaffSetOrganApproval é a reabertura pela equipe: aceita mudar um
// desfecho já rejeitado.
func (s *Service) StaffSetOrganApproval(ctx context.Context, preEnrollmentID uuid.UUID, status OrganStatus) (PreEnrollment, error) {
	return s.setOrganApproval(ctx, preEnrollmentID, status, true)
}

func (s *Service) setOrganApproval(ctx context.Context, preEnrollmentID uuid.UUID, status OrganStatus, staff bool) (PreEnrollment, error) {
	record, err := s.repo.GetByID(ctx, preEnrollmentID)
	if err != nil {
		return PreEnrollment{}, err
	}
	if record.Status == StatusPending || record.Status == StatusPendingPayment {
		return PreEnrollment{}, ErrPaymentRequired
	}
	if !staff && record.OrganApprovalStatus == OrganRejected {
		return PreEnrollment{}, ErrOrganRejected
	}

	if err := s.repo.SetOrganApproval(ctx, record.ID, status); err != nil {
		return PreEnrollment{}, err
	}
	record.OrganApprovalStatus = status
	if status != OrganApproved {
		record.OrganApprovalConfirmed = false
	}

	eventType := webhook.EventOrganApproved
	if status == OrganRejected {
		eventType = webhook.EventOrganRejected
	}

	if status == OrganApproved && record.Status == StatusPaymentConfirmed {
		if err := s.transition(ctx, &record, EventApproved); err != nil {
			return PreEnrollment{}, err
		}
	}

	s.trigger(ctx, webhook.Event{Type: eventType, PreEnrollmentID: record.ID})
	return record, nil
}

// ConfirmOrganApproval liga o segundo flag: o aluno tomou ciência da
// aprovação do órgão. Só então a matrícula é desbloqueada.
func (s *Service) ConfirmOrganApproval(ctx context.Context, preEnrollmentID uuid.UUID) (PreEnrollment, error) {
	if err := s.repo.ConfirmOrganApproval(ctx, preEnrollmentID); err != nil {
		return PreEnrollment{}, err
	}
	return s.repo.GetByID(ctx, preEnrollmentID)
}

// ManualOverride é a cortesia/correção de pagamento: aprova sem exigir
// cobrança confirmada, mas sintetiza o registro de pagamento para a
// conta de desconto continuar consistente.
func (s *Service) ManualOverride(ctx context.Context, preEnrollmentID uuid.UUID, notes *string) (ManualConfirmResult, error) {
	record, err := s.repo.GetByID(ctx, preEnrollmentID)
	if err != nil {
		return ManualConfirmResult{}, err
	}

	if _, err := Decide(record.Status, EventManualOverride); err != nil {
		return ManualConfirmResult{}, err
	}
	if err := s.repo.SetManualApproval(ctx, record.ID, notes); err != nil {
		return ManualConfirmResult{}, err
	}
	record.Status = StatusApproved
	record.ManualApproval = true

	result := ManualConfirmResult{PreEnrollment: record}

	c, err := s.catalog.GetByID(ctx, record.CourseID)
	if err == nil {
		resolved := fees.Resolve(c.DurationDays)
		if _, synthErr := s.payments.SynthesizeManual(ctx, record.ID, payment.KindPreEnrollment, resolved.PreEnrollment); synthErr != nil {
			log.Warn().Err(synthErr).Str("pre_enrollment_id", record.ID.String()).
				Msg("override aplicado, mas o registro sintético de pagamento falhou")
			result.Warning = "aprovação aplicada, mas o registro para cálculo de desconto falhou; o desconto do aluno pode não aparecer corretamente"
		}
	}

	return result, nil
}

// EnrollmentCheckoutResult agrupa matrícula e cobrança gerada.
type EnrollmentCheckoutResult struct {
	Enrollment Enrollment      `json:"enrollment"`
	Payment    payment.Payment `json:"payment"`
	Amount     decimal.Decimal `json:"amount"`
}

// EnrollmentCheckout cria (se preciso) a matrícula aguardando pagamento
// e gera a cobrança com o desconto do que já foi pago na pré-matrícula.
func (s *Service) EnrollmentCheckout(ctx context.Context, preEnrollmentID uuid.UUID) (EnrollmentCheckoutResult, error) {
	record, err := s.repo.GetByID(ctx, preEnrollmentID)
	if err != nil {
		return EnrollmentCheckoutResult{}, err
	}
	if !record.OrganApprovalConfirmed {
		return EnrollmentCheckoutResult{}, ErrOrganNotConfirmed
	}

	c, err := s.catalog.GetByID(ctx, record.CourseID)
	if err != nil {
		return EnrollmentCheckoutResult{}, err
	}
	if !fees.Supported(c.DurationDays) {
		return EnrollmentCheckoutResult{}, ErrUnsupportedDuration
	}

	resolved := fees.Resolve(c.DurationDays)
	amount, err := s.payments.DiscountedEnrollmentAmount(ctx, record.ID, resolved.Enrollment)
	if err != nil {
		return EnrollmentCheckoutResult{}, err
	}

	enr, err := s.repo.GetEnrollmentByPreEnrollment(ctx, record.ID)
	if err != nil {
		return EnrollmentCheckoutResult{}, err
	}
	if enr == nil {
		created, err := s.repo.InsertEnrollment(ctx, record.UserID, record.CourseID, record.ID, amount)
		if err != nil {
			return EnrollmentCheckoutResult{}, err
		}
		enr = &created
		s.trigger(ctx, webhook.Event{
			Type:            webhook.EventEnrollmentCreated,
			PreEnrollmentID: record.ID,
			EnrollmentID:    &created.ID,
		})
	}

	p, err := s.payments.Checkout(ctx, payment.CheckoutInput{
		PreEnrollmentID: record.ID,
		EnrollmentID:    &enr.ID,
		Kind:            payment.KindEnrollment,
		Amount:          amount,
		Description:     "Taxa de matrícula - " + c.Titulo,
		Payer:           payment.Payer{Name: record.Nome, CPF: record.CPF, Email: record.Email, Phone: record.Whatsapp},
	})
	if err != nil {
		return EnrollmentCheckoutResult{}, err
	}
	if p.EnrollmentID == nil {
		_ = s.payments.AttachEnrollment(ctx, p.ID, enr.ID)
	}

	return EnrollmentCheckoutResult{Enrollment: *enr, Payment: p, Amount: amount}, nil
}

// CertificateEligibility descreve se e quando o aluno pode emitir o certificado.
type CertificateEligibility struct {
	Eligible   bool       `json:"eligible"`
	EligibleAt *time.Time `json:"eligible_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// CheckCertificateEligibility valida aprovação confirmada do órgão,
// matrícula ativa e prazo decorrido (duração + 1 dia).
func (s *Service) CheckCertificateEligibility(ctx context.Context, preEnrollmentID uuid.UUID) (CertificateEligibility, error) {
	record, err := s.repo.GetByID(ctx, preEnrollmentID)
	if err != nil {
		return CertificateEligibility{}, err
	}
	if !record.OrganApprovalConfirmed {
		return CertificateEligibility{Reason: "aprovação do órgão não confirmada"}, nil
	}

	enr, err := s.repo.GetEnrollmentByPreEnrollment(ctx, record.ID)
	if err != nil {
		return CertificateEligibility{}, err
	}
	if enr == nil || enr.Status == EnrollmentAwaitingPayment || enr.Status == EnrollmentCancelled {
		return CertificateEligibility{Reason: "matrícula não está ativa"}, nil
	}

	c, err := s.catalog.GetByID(ctx, record.CourseID)
	if err != nil {
		return CertificateEligibility{}, err
	}

	eligibleAt := enr.CertificateEligibleAt(c.DurationDays)
	if eligibleAt == nil {
		return CertificateEligibility{Reason: "matrícula sem data de início"}, nil
	}
	if s.now().Before(*eligibleAt) {
		return CertificateEligibility{EligibleAt: eligibleAt, Reason: "período do curso ainda em andamento"}, nil
	}
	return CertificateEligibility{Eligible: true, EligibleAt: eligibleAt}, nil
}

// SetAdminNotes grava as observações internas da equipe.
func (s *Service) SetAdminNotes(ctx context.Context, preEnrollmentID uuid.UUID, notes string) (PreEnrollment, error) {
	if err := s.repo.SetAdminNotes(ctx, preEnrollmentID, notes); err != nil {
		return PreEnrollment{}, err
	}
	return s.repo.GetByID(ctx, preEnrollmentID)
}

// GetByID expõe a pré-matrícula para handlers.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (PreEnrollment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUser expõe a pré-matrícula do aluno autenticado.
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) (PreEnrollment, error) {
	return s.repo.GetByUser(ctx, userID)
}

// List expõe a listagem administrativa.
func (s *Service) List(ctx context.Context, status *Status) ([]PreEnrollment, error) {
	return s.repo.List(ctx, status)
}

// ListEnrollments expõe as matrículas para o back-office.
func (s *Service) ListEnrollments(ctx context.Context) ([]Enrollment, error) {
	return s.repo.ListEnrollments(ctx)
}

// GetEnrollment expõe a matrícula vinculada a uma pré-matrícula.
func (s *Service) GetEnrollment(ctx context.Context, preEnrollmentID uuid.UUID) (*Enrollment, error) {
	return s.repo.GetEnrollmentByPreEnrollment(ctx, preEnrollmentID)
}
