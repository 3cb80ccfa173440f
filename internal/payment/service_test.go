package payment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalcapacita/api/internal/asaas"
)

type stubRepo struct {
	payments []Payment
	inserted []InsertParams
	marked   map[uuid.UUID]Status
}

func newStubRepo(payments ...Payment) *stubRepo {
	return &stubRepo{payments: payments, marked: map[uuid.UUID]Status{}}
}

func (s *stubRepo) ListByKind(ctx context.Context, preID uuid.UUID, kind Kind) ([]Payment, error) {
	var out []Payment
	for _, p := range s.payments {
		if p.PreEnrollmentID == preID && p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) GetByGatewayID(ctx context.Context, gatewayID string) (Payment, error) {
	for _, p := range s.payments {
		if p.GatewayID != nil && *p.GatewayID == gatewayID {
			return p, nil
		}
	}
	return Payment{}, ErrNotFound
}

func (s *stubRepo) FindSettledByKind(ctx context.Context, preID uuid.UUID, kind Kind) (*Payment, error) {
	for _, p := range s.payments {
		if p.PreEnrollmentID == preID && p.Kind == kind && p.Settled() {
			settled := p
			return &settled, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) FindPendingByKind(ctx context.Context, preID uuid.UUID, kind Kind) (*Payment, error) {
	for i := len(s.payments) - 1; i >= 0; i-- {
		p := s.payments[i]
		if p.PreEnrollmentID == preID && p.Kind == kind && p.Status == StatusPending {
			pending := p
			return &pending, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) Insert(ctx context.Context, params InsertParams) (Payment, error) {
	s.inserted = append(s.inserted, params)
	p := Payment{
		ID:              uuid.New(),
		PreEnrollmentID: params.PreEnrollmentID,
		EnrollmentID:    params.EnrollmentID,
		Kind:            params.Kind,
		Amount:          params.Amount,
		Status:          params.Status,
		GatewayID:       params.GatewayID,
		PixQRImage:      params.PixQRImage,
		PixPayload:      params.PixPayload,
		PixExpiration:   params.PixExpiration,
		PaidAt:          params.PaidAt,
		CreatedAt:       time.Now(),
	}
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *stubRepo) MarkStatus(ctx context.Context, id uuid.UUID, status Status, paidAt *time.Time) error {
	s.marked[id] = status
	for i := range s.payments {
		if s.payments[i].ID == id {
			s.payments[i].Status = status
			if paidAt != nil {
				s.payments[i].PaidAt = paidAt
			}
		}
	}
	return nil
}

func (s *stubRepo) AttachEnrollment(ctx context.Context, id, enrollmentID uuid.UUID) error {
	return nil
}

type stubGateway struct {
	charges int
}

func (g *stubGateway) CreateCustomer(ctx context.Context, input asaas.CreateCustomerInput) (*asaas.Customer, error) {
	return &asaas.Customer{ID: "cus_stub", Name: input.Name}, nil
}

func (g *stubGateway) CreateCharge(ctx context.Context, input asaas.CreateChargeInput) (*asaas.Charge, error) {
	g.charges++
	return &asaas.Charge{ID: "pay_stub", Value: input.Value, Status: "PENDING"}, nil
}

func (g *stubGateway) GetPixQRCode(ctx context.Context, chargeID string) (*asaas.PixQRCode, error) {
	return &asaas.PixQRCode{
		EncodedImage:   "aW1n",
		Payload:        "00020126",
		ExpirationDate: time.Now().Add(24 * time.Hour).Format("2006-01-02 15:04:05"),
	}, nil
}

func newTestService(repo *stubRepo) (*Service, *stubGateway) {
	svc := NewService(repo)
	gw := &stubGateway{}
	svc.SetGateway(gw)
	return svc, gw
}

func TestSumSettledIgnoraPendentes(t *testing.T) {
	preID := uuid.New()
	payments := []Payment{
		{PreEnrollmentID: preID, Kind: KindPreEnrollment, Amount: decimal.NewFromInt(57), Status: StatusConfirmed},
		{PreEnrollmentID: preID, Kind: KindPreEnrollment, Amount: decimal.NewFromInt(10), Status: StatusPending},
		{PreEnrollmentID: preID, Kind: KindPreEnrollment, Amount: decimal.NewFromInt(20), Status: StatusReceived},
	}

	total := SumSettled(payments)
	assert.True(t, total.Equal(decimal.NewFromInt(77)), "total = %s", total)
}

func TestCheckoutReutilizaCobrancaPendenteValida(t *testing.T) {
	preID := uuid.New()
	exp := time.Now().Add(time.Hour)
	existing := Payment{
		ID:              uuid.New(),
		PreEnrollmentID: preID,
		Kind:            KindPreEnrollment,
		Status:          StatusPending,
		Amount:          decimal.NewFromInt(57),
		PixExpiration:   &exp,
	}
	repo := newStubRepo(existing)
	svc, gw := newTestService(repo)

	got, err := svc.Checkout(context.Background(), CheckoutInput{
		PreEnrollmentID: preID,
		Kind:            KindPreEnrollment,
		Amount:          decimal.NewFromInt(57),
		Payer:           Payer{Name: "Maria", CPF: "52998224725"},
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	assert.Zero(t, gw.charges, "não deve criar nova cobrança")
}

func TestCheckoutSubstituiCobrancaVencida(t *testing.T) {
	preID := uuid.New()
	exp := time.Now().Add(-time.Hour)
	expired := Payment{
		ID:              uuid.New(),
		PreEnrollmentID: preID,
		Kind:            KindPreEnrollment,
		Status:          StatusPending,
		Amount:          decimal.NewFromInt(57),
		PixExpiration:   &exp,
		PixPayload:      ptr("payload-antigo"),
	}
	repo := newStubRepo(expired)
	svc, gw := newTestService(repo)

	got, err := svc.Checkout(context.Background(), CheckoutInput{
		PreEnrollmentID: preID,
		Kind:            KindPreEnrollment,
		Amount:          decimal.NewFromInt(57),
		Payer:           Payer{Name: "Maria", CPF: "52998224725"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOverdue, repo.marked[expired.ID], "cobrança vencida vira overdue")
	assert.Equal(t, 1, gw.charges)
	assert.NotEqual(t, expired.ID, got.ID)
	require.NotNil(t, got.PixPayload)
	assert.NotEqual(t, "payload-antigo", *got.PixPayload, "payload vencido não é reaproveitado")
}

func TestCheckoutSemGateway(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	_, err := svc.Checkout(context.Background(), CheckoutInput{
		PreEnrollmentID: uuid.New(),
		Kind:            KindPreEnrollment,
		Amount:          decimal.NewFromInt(57),
	})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestSynthesizeManualIdempotente(t *testing.T) {
	preID := uuid.New()
	repo := newStubRepo()
	svc, _ := newTestService(repo)

	created, err := svc.SynthesizeManual(context.Background(), preID, KindPreEnrollment, decimal.NewFromInt(57))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.SynthesizeManual(context.Background(), preID, KindPreEnrollment, decimal.NewFromInt(57))
	require.NoError(t, err)
	assert.False(t, created, "segunda chamada não cria registro")
	assert.Len(t, repo.inserted, 1)
}

func TestDiscountedEnrollmentAmount(t *testing.T) {
	preID := uuid.New()
	repo := newStubRepo(Payment{
		PreEnrollmentID: preID,
		Kind:            KindPreEnrollment,
		Amount:          decimal.NewFromInt(57),
		Status:          StatusConfirmed,
	})
	svc, _ := newTestService(repo)

	got, err := svc.DiscountedEnrollmentAmount(context.Background(), preID, decimal.NewFromInt(294))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(237)), "got %s", got)
}

func TestApplyGatewayEvent(t *testing.T) {
	gwID := "pay_123"
	p := Payment{ID: uuid.New(), GatewayID: &gwID, Status: StatusPending, Amount: decimal.NewFromInt(57)}
	repo := newStubRepo(p)
	svc, _ := newTestService(repo)

	updated, err := svc.ApplyGatewayEvent(context.Background(), gwID, EventPaymentReceived)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, updated.Status)
	assert.NotNil(t, updated.PaidAt)

	// Evento repetido sobre cobrança liquidada é ignorado.
	again, err := svc.ApplyGatewayEvent(context.Background(), gwID, EventPaymentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, again.Status)

	_, err = svc.ApplyGatewayEvent(context.Background(), "pay_inexistente", EventPaymentConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)

	p2 := Payment{ID: uuid.New(), GatewayID: ptr("pay_456"), Status: StatusPending}
	repo.payments = append(repo.payments, p2)
	_, err = svc.ApplyGatewayEvent(context.Background(), "pay_456", GatewayEvent("PAYMENT_CHARGEBACK"))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func ptr[T any](v T) *T { return &v }
