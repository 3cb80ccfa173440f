package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/portalcapacita/api/internal/asaas"
	"github.com/portalcapacita/api/internal/fees"
)

var (
	// ErrGatewayUnavailable indica que o gateway PIX ainda não foi configurado.
	ErrGatewayUnavailable = errors.New("gateway de pagamento não configurado")
)

// Gateway abstrai o cliente Asaas para permitir stubs em teste.
type Gateway interface {
	CreateCustomer(ctx context.Context, input asaas.CreateCustomerInput) (*asaas.Customer, error)
	CreateCharge(ctx context.Context, input asaas.CreateChargeInput) (*asaas.Charge, error)
	GetPixQRCode(ctx context.Context, chargeID string) (*asaas.PixQRCode, error)
}

// PaymentRepository define a dependência de persistência do serviço.
type PaymentRepository interface {
	ListByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind) ([]Payment, error)
	GetByGatewayID(ctx context.Context, gatewayID string) (Payment, error)
	FindSettledByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind) (*Payment, error)
	FindPendingByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind) (*Payment, error)
	Insert(ctx context.Context, params InsertParams) (Payment, error)
	MarkStatus(ctx context.Context, id uuid.UUID, status Status, paidAt *time.Time) error
	AttachEnrollment(ctx context.Context, id, enrollmentID uuid.UUID) error
}

// Service concentra cobrança, reconciliação e baixa de pagamentos.
type Service struct {
	repo PaymentRepository

	mu      sync.RWMutex
	gateway Gateway

	now func() time.Time
}

func NewService(repo PaymentRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetGateway troca o cliente do gateway em tempo de execução. Usado no
// boot e quando o back-office salva novas credenciais.
func (s *Service) SetGateway(gw Gateway) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = gw
}

func (s *Service) currentGateway() (Gateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	return s.gateway, nil
}

// Payer identifica o pagador perante o gateway.
type Payer struct {
	Name  string
	CPF   string
	Email string
	Phone string
}

// CheckoutInput descreve uma solicitação de cobrança PIX.
type CheckoutInput struct {
	PreEnrollmentID uuid.UUID
	EnrollmentID    *uuid.UUID
	Kind            Kind
	Amount          decimal.Decimal
	Description     string
	Payer           Payer
}

// Checkout devolve uma cobrança PIX vigente para a pré-matrícula,
// reutilizando o QR Code pendente quando ainda válido. Cobranças
// pendentes vencidas são marcadas overdue e substituídas por uma
// cobrança nova; o payload vencido nunca é reaproveitado.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (Payment, error) {
	existing, err := s.repo.FindPendingByKind(ctx, input.PreEnrollmentID, input.Kind)
	if err != nil {
		return Payment{}, err
	}
	if existing != nil {
		if existing.Reusable(s.now()) {
			return *existing, nil
		}
		if err := s.repo.MarkStatus(ctx, existing.ID, StatusOverdue, nil); err != nil {
			return Payment{}, fmt.Errorf("expirar cobrança anterior: %w", err)
		}
	}

	gw, err := s.currentGateway()
	if err != nil {
		return Payment{}, err
	}

	customer, err := gw.CreateCustomer(ctx, asaas.CreateCustomerInput{
		Name:    input.Payer.Name,
		CPFCNPJ: input.Payer.CPF,
		Email:   input.Payer.Email,
		Phone:   input.Payer.Phone,
	})
	if err != nil {
		return Payment{}, fmt.Errorf("criar pagador: %w", err)
	}

	charge, err := gw.CreateCharge(ctx, asaas.CreateChargeInput{
		Customer:    customer.ID,
		Value:       input.Amount,
		Description: input.Description,
		ExternalRef: input.PreEnrollmentID.String(),
	})
	if err != nil {
		return Payment{}, fmt.Errorf("criar cobrança: %w", err)
	}

	qr, err := gw.GetPixQRCode(ctx, charge.ID)
	if err != nil {
		return Payment{}, fmt.Errorf("buscar qr code: %w", err)
	}

	params := InsertParams{
		PreEnrollmentID: input.PreEnrollmentID,
		EnrollmentID:    input.EnrollmentID,
		Kind:            input.Kind,
		Amount:          input.Amount,
		Status:          StatusPending,
		GatewayID:       &charge.ID,
		PixQRImage:      &qr.EncodedImage,
		PixPayload:      &qr.Payload,
	}
	if exp, err := qr.Expiration(); err == nil {
		params.PixExpiration = &exp
	}

	return s.repo.Insert(ctx, params)
}

// SynthesizeManual registra uma cobrança confirmada sem passar pelo
// gateway (aprovação manual/cortesia). É idempotente: se já existe
// cobrança confirmada/recebida do mesmo tipo, nada é criado — evita
// desconto duplicado.
func (s *Service) SynthesizeManual(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind, amount decimal.Decimal) (bool, error) {
	settled, err := s.repo.FindSettledByKind(ctx, preEnrollmentID, kind)
	if err != nil {
		return false, err
	}
	if settled != nil {
		return false, nil
	}

	paidAt := s.now()
	_, err = s.repo.Insert(ctx, InsertParams{
		PreEnrollmentID: preEnrollmentID,
		Kind:            kind,
		Amount:          amount,
		Status:          StatusConfirmed,
		PaidAt:          &paidAt,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// TotalSettled soma tudo que já foi confirmado/recebido para o tipo.
func (s *Service) TotalSettled(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind) (decimal.Decimal, error) {
	payments, err := s.repo.ListByKind(ctx, preEnrollmentID, kind)
	if err != nil {
		return decimal.Zero, err
	}
	return SumSettled(payments), nil
}

// DiscountedEnrollmentAmount calcula o valor da matrícula descontando o
// que já foi pago na pré-matrícula, respeitando o piso do gateway.
func (s *Service) DiscountedEnrollmentAmount(ctx context.Context, preEnrollmentID uuid.UUID, enrollmentFee decimal.Decimal) (decimal.Decimal, error) {
	paid, err := s.TotalSettled(ctx, preEnrollmentID, KindPreEnrollment)
	if err != nil {
		return decimal.Zero, err
	}
	return fees.Discount(enrollmentFee, paid), nil
}

// GatewayEvent nomeia os callbacks aceitos do webhook do Asaas.
type GatewayEvent string

const (
	EventPaymentConfirmed GatewayEvent = "PAYMENT_CONFIRMED"
	EventPaymentReceived  GatewayEvent = "PAYMENT_RECEIVED"
	EventPaymentOverdue   GatewayEvent = "PAYMENT_OVERDUE"
)

// ErrUnknownEvent indica tipo de evento fora da lista aceita.
var ErrUnknownEvent = errors.New("evento de gateway desconhecido")

// ApplyGatewayEvent dá baixa na cobrança a partir do callback do
// gateway e devolve a cobrança atualizada para o chamador avançar o
// fluxo de matrícula. Cobranças já liquidadas são ignoradas.
func (s *Service) ApplyGatewayEvent(ctx context.Context, gatewayID string, event GatewayEvent) (Payment, error) {
	p, err := s.repo.GetByGatewayID(ctx, gatewayID)
	if err != nil {
		return Payment{}, err
	}

	if p.Settled() {
		log.Info().Str("gateway_id", gatewayID).Str("event", string(event)).Msg("cobrança já liquidada, evento ignorado")
		return p, nil
	}

	var status Status
	var paidAt *time.Time
	switch event {
	case EventPaymentConfirmed:
		status = StatusConfirmed
		now := s.now()
		paidAt = &now
	case EventPaymentReceived:
		status = StatusReceived
		now := s.now()
		paidAt = &now
	case EventPaymentOverdue:
		status = StatusOverdue
	default:
		return Payment{}, ErrUnknownEvent
	}

	if err := s.repo.MarkStatus(ctx, p.ID, status, paidAt); err != nil {
		return Payment{}, err
	}
	p.Status = status
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	return p, nil
}

// AttachEnrollment vincula a cobrança a uma matrícula criada.
func (s *Service) AttachEnrollment(ctx context.Context, paymentID, enrollmentID uuid.UUID) error {
	return s.repo.AttachEnrollment(ctx, paymentID, enrollmentID)
}

// ListByKind expõe as cobranças de uma pré-matrícula por tipo.
func (s *Service) ListByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind Kind) ([]Payment, error) {
	return s.repo.ListByKind(ctx, preEnrollmentID, kind)
}
