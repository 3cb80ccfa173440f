package enrollment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalcapacita/api/internal/course"
	"github.com/portalcapacita/api/internal/payment"
	"github.com/portalcapacita/api/internal/webhook"
)

type memRepo struct {
	records     map[uuid.UUID]*PreEnrollment
	enrollments map[uuid.UUID]*Enrollment
}

func newMemRepo() *memRepo {
	return &memRepo{
		records:     map[uuid.UUID]*PreEnrollment{},
		enrollments: map[uuid.UUID]*Enrollment{},
	}
}

func (m *memRepo) Insert(ctx context.Context, params InsertParams) (PreEnrollment, error) {
	p := PreEnrollment{
		ID:                  uuid.New(),
		UserID:              params.UserID,
		CourseID:            params.CourseID,
		Nome:                params.Nome,
		CPF:                 params.CPF,
		Email:               params.Email,
		Whatsapp:            params.Whatsapp,
		Status:              StatusPending,
		OrganTypeID:         params.OrganTypeID,
		CustomHours:         params.CustomHours,
		OrganApprovalStatus: OrganPending,
		CreatedAt:           time.Now(),
	}
	m.records[p.ID] = &p
	return p, nil
}

func (m *memRepo) GetByID(ctx context.Context, id uuid.UUID) (PreEnrollment, error) {
	if p, ok := m.records[id]; ok {
		return *p, nil
	}
	return PreEnrollment{}, ErrNotFound
}

func (m *memRepo) GetByUser(ctx context.Context, userID uuid.UUID) (PreEnrollment, error) {
	for _, p := range m.records {
		if p.UserID != nil && *p.UserID == userID {
			return *p, nil
		}
	}
	return PreEnrollment{}, ErrNotFound
}

func (m *memRepo) List(ctx context.Context, status *Status) ([]PreEnrollment, error) {
	var out []PreEnrollment
	for _, p := range m.records {
		if status == nil || p.Status == *status {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrStatusConflict
	}
	p.Status = to
	return nil
}

func (m *memRepo) SetOrganApproval(ctx context.Context, id uuid.UUID, status OrganStatus) error {
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	p.OrganApprovalStatus = status
	if status != OrganApproved {
		p.OrganApprovalConfirmed = false
	}
	return nil
}

func (m *memRepo) ConfirmOrganApproval(ctx context.Context, id uuid.UUID) error {
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if p.OrganApprovalStatus != OrganApproved {
		return ErrStatusConflict
	}
	p.OrganApprovalConfirmed = true
	return nil
}

func (m *memRepo) SetManualApproval(ctx context.Context, id uuid.UUID, notes *string) error {
	p, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = StatusApproved
	p.ManualApproval = true
	if notes != nil {
		p.AdminNotes = notes
	}
	return nil
}

func (m *memRepo) SetAdminNotes(ctx context.Context, id uuid.UUID, notes string) error {
	if p, ok := m.records[id]; ok {
		p.AdminNotes = &notes
	}
	return nil
}

func (m *memRepo) InsertEnrollment(ctx context.Context, userID *uuid.UUID, courseID, preEnrollmentID uuid.UUID, amount decimal.Decimal) (Enrollment, error) {
	e := Enrollment{
		ID:               uuid.New(),
		UserID:           userID,
		CourseID:         courseID,
		PreEnrollmentID:  preEnrollmentID,
		Status:           EnrollmentAwaitingPayment,
		PaymentStatus:    "pending",
		EnrollmentAmount: amount,
		CreatedAt:        time.Now(),
	}
	m.enrollments[e.ID] = &e
	return e, nil
}

func (m *memRepo) GetEnrollmentByPreEnrollment(ctx context.Context, preEnrollmentID uuid.UUID) (*Enrollment, error) {
	for _, e := range m.enrollments {
		if e.PreEnrollmentID == preEnrollmentID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ActivateEnrollment(ctx context.Context, id uuid.UUID, enrollmentDate time.Time) error {
	e, ok := m.enrollments[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != EnrollmentAwaitingPayment {
		return ErrStatusConflict
	}
	e.Status = EnrollmentActive
	e.PaymentStatus = "paid"
	e.EnrollmentDate = &enrollmentDate
	return nil
}

func (m *memRepo) ListEnrollments(ctx context.Context) ([]Enrollment, error) {
	var out []Enrollment
	for _, e := range m.enrollments {
		out = append(out, *e)
	}
	return out, nil
}

type stubPayments struct {
	settled   map[payment.Kind]decimal.Decimal
	checkouts []payment.CheckoutInput
	synth     []decimal.Decimal
	synthErr  error
	byGateway map[string]payment.Payment
}

func newStubPayments() *stubPayments {
	return &stubPayments{
		settled:   map[payment.Kind]decimal.Decimal{},
		byGateway: map[string]payment.Payment{},
	}
}

func (s *stubPayments) Checkout(ctx context.Context, input payment.CheckoutInput) (payment.Payment, error) {
	s.checkouts = append(s.checkouts, input)
	gwID := "pay_" + uuid.NewString()
	p := payment.Payment{
		ID:              uuid.New(),
		PreEnrollmentID: input.PreEnrollmentID,
		EnrollmentID:    input.EnrollmentID,
		Kind:            input.Kind,
		Amount:          input.Amount,
		Status:          payment.StatusPending,
		GatewayID:       &gwID,
	}
	s.byGateway[gwID] = p
	return p, nil
}

func (s *stubPayments) SynthesizeManual(ctx context.Context, preID uuid.UUID, kind payment.Kind, amount decimal.Decimal) (bool, error) {
	if s.synthErr != nil {
		return false, s.synthErr
	}
	s.synth = append(s.synth, amount)
	s.settled[kind] = s.settled[kind].Add(amount)
	return true, nil
}

func (s *stubPayments) DiscountedEnrollmentAmount(ctx context.Context, preID uuid.UUID, fee decimal.Decimal) (decimal.Decimal, error) {
	final := fee.Sub(s.settled[payment.KindPreEnrollment])
	minimum := decimal.NewFromInt(5)
	if final.LessThan(minimum) {
		return minimum, nil
	}
	return final, nil
}

func (s *stubPayments) ApplyGatewayEvent(ctx context.Context, gatewayID string, event payment.GatewayEvent) (payment.Payment, error) {
	p, ok := s.byGateway[gatewayID]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	switch event {
	case payment.EventPaymentConfirmed:
		p.Status = payment.StatusConfirmed
	case payment.EventPaymentReceived:
		p.Status = payment.StatusReceived
	case payment.EventPaymentOverdue:
		p.Status = payment.StatusOverdue
	}
	if p.Settled() {
		s.settled[p.Kind] = s.settled[p.Kind].Add(p.Amount)
	}
	s.byGateway[gatewayID] = p
	return p, nil
}

func (s *stubPayments) AttachEnrollment(ctx context.Context, paymentID, enrollmentID uuid.UUID) error {
	return nil
}

type stubCatalog struct {
	courses map[uuid.UUID]course.Course
	organs  map[uuid.UUID]course.OrganType
}

func (s stubCatalog) GetByID(ctx context.Context, id uuid.UUID) (course.Course, error) {
	if c, ok := s.courses[id]; ok {
		return c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (s stubCatalog) GetOrganType(ctx context.Context, id uuid.UUID) (course.OrganType, error) {
	if o, ok := s.organs[id]; ok {
		return o, nil
	}
	return course.OrganType{}, course.ErrNotFound
}

type recordingNotifier struct {
	events []webhook.Event
}

func (r *recordingNotifier) Trigger(ctx context.Context, event webhook.Event) {
	r.events = append(r.events, event)
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	payments *stubPayments
	notifier *recordingNotifier
	catalog  stubCatalog
	courseID uuid.UUID
	organID  uuid.UUID
}

func newFixture(t *testing.T, durationDays int) *fixture {
	t.Helper()
	repo := newMemRepo()
	payments := newStubPayments()
	notifier := &recordingNotifier{}
	courseID := uuid.New()
	organID := uuid.New()

	catalog := stubCatalog{
		courses: map[uuid.UUID]course.Course{
			courseID: {ID: courseID, Titulo: "Gestão Pública", DurationDays: durationDays, Hours: 80},
		},
		organs: map[uuid.UUID]course.OrganType{
			organID: {ID: organID, Nome: "Federal", HoursMultiplier: 1.5},
		},
	}

	svc := NewService(repo, payments, catalog, notifier)
	return &fixture{svc: svc, repo: repo, payments: payments, notifier: notifier, catalog: catalog, courseID: courseID, organID: organID}
}

func (f *fixture) submit(t *testing.T) PreEnrollment {
	t.Helper()
	record, err := f.svc.Submit(context.Background(), SubmitInput{
		CourseID:    f.courseID,
		Nome:        "Maria Souza",
		CPF:         "52998224725",
		Email:       "maria@example.com",
		Whatsapp:    "83999990000",
		OrganTypeID: &f.organID,
	})
	require.NoError(t, err)
	return record
}

func TestSubmitAvancaParaPendingPayment(t *testing.T) {
	f := newFixture(t, 30)
	record := f.submit(t)

	assert.Equal(t, StatusPendingPayment, record.Status)
	require.NotNil(t, record.CustomHours)
	assert.Equal(t, 120, *record.CustomHours, "80h x 1.5")
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, webhook.EventPreEnrollmentCreated, f.notifier.events[0].Type)
}

func TestSubmitRejeitaDuracaoSemTaxa(t *testing.T) {
	f := newFixture(t, 120)
	_, err := f.svc.Submit(context.Background(), SubmitInput{
		CourseID: f.courseID,
		Nome:     "Maria",
		CPF:      "52998224725",
		Email:    "maria@example.com",
	})
	assert.ErrorIs(t, err, ErrUnsupportedDuration)
}

func TestFluxoCompletoCurso30Dias(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	// Inscrição → pending_payment.
	record := f.submit(t)

	// Cobrança da pré-matrícula de 57.00.
	p, err := f.svc.PreEnrollmentCheckout(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(57)), "amount = %s", p.Amount)

	// Gateway confirma 57.00 → payment_confirmed.
	require.NoError(t, f.svc.HandleGatewayEvent(ctx, *p.GatewayID, payment.EventPaymentConfirmed))
	record, err = f.svc.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentConfirmed, record.Status)

	// Aluno relata aprovação do órgão → approved + organ approved.
	record, err = f.svc.SetOrganApproval(ctx, record.ID, OrganApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, record.Status)
	assert.Equal(t, OrganApproved, record.OrganApprovalStatus)
	assert.False(t, record.OrganApprovalConfirmed)

	// Aluno confirma ciência.
	record, err = f.svc.ConfirmOrganApproval(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, record.OrganApprovalConfirmed)

	// Checkout de matrícula com desconto: max(294-57, 5) = 237.
	result, err := f.svc.EnrollmentCheckout(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(237)), "amount = %s", result.Amount)
	assert.Equal(t, EnrollmentAwaitingPayment, result.Enrollment.Status)

	// Pagamento da matrícula ativa a matrícula.
	require.NoError(t, f.svc.HandleGatewayEvent(ctx, *result.Payment.GatewayID, payment.EventPaymentReceived))
	enr, err := f.svc.GetEnrollment(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, EnrollmentActive, enr.Status)
	assert.NotNil(t, enr.EnrollmentDate)
}

func TestConfirmPaymentManuallySintetizaPagamento(t *testing.T) {
	f := newFixture(t, 30)
	record := f.submit(t)

	result, err := f.svc.ConfirmPaymentManually(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentConfirmed, result.PreEnrollment.Status)
	assert.Empty(t, result.Warning)
	require.Len(t, f.payments.synth, 1)
	assert.True(t, f.payments.synth[0].Equal(decimal.NewFromInt(57)))
}

func TestConfirmPaymentManuallyAvisaQuandoSinteseFalha(t *testing.T) {
	f := newFixture(t, 30)
	record := f.submit(t)
	f.payments.synthErr = errors.New("insert falhou")

	result, err := f.svc.ConfirmPaymentManually(context.Background(), record.ID)
	require.NoError(t, err, "a baixa nunca é desfeita pela falha do registro")
	assert.Equal(t, StatusPaymentConfirmed, result.PreEnrollment.Status)
	assert.NotEmpty(t, result.Warning)
}

func TestRejectedNaoAprovaSemOverride(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()
	record := f.submit(t)

	_, err := f.svc.Reject(ctx, record.ID, nil)
	require.NoError(t, err)

	// Organ approval não anda com status rejected.
	_, err = f.svc.SetOrganApproval(ctx, record.ID, OrganApproved)
	require.NoError(t, err) // organ é ortogonal, mas...

	record, err = f.svc.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, record.Status, "status segue rejected")

	// Só o override manual reabre.
	result, err := f.svc.ManualOverride(ctx, record.ID, ptr("cortesia"))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, result.PreEnrollment.Status)
	assert.True(t, result.PreEnrollment.ManualApproval)
	require.NotEmpty(t, f.payments.synth, "override sintetiza pagamento para o desconto")
}

func TestSetOrganApprovalExigePagamento(t *testing.T) {
	f := newFixture(t, 30)
	record := f.submit(t)

	_, err := f.svc.SetOrganApproval(context.Background(), record.ID, OrganApproved)
	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestOrganRejectedNaoEscapaPorAutorrelato(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()
	record := f.submit(t)

	_, err := f.svc.ConfirmPaymentManually(ctx, record.ID)
	require.NoError(t, err)
	_, err = f.svc.StaffSetOrganApproval(ctx, record.ID, OrganRejected)
	require.NoError(t, err)

	// O aluno não reabre um desfecho rejeitado relatando approved.
	_, err = f.svc.SetOrganApproval(ctx, record.ID, OrganApproved)
	assert.ErrorIs(t, err, ErrOrganRejected)

	record, err = f.svc.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, OrganRejected, record.OrganApprovalStatus)
	assert.Equal(t, StatusPaymentConfirmed, record.Status, "status administrativo não anda")
	assert.False(t, record.OrganApprovalConfirmed)

	_, err = f.svc.ConfirmOrganApproval(ctx, record.ID)
	assert.ErrorIs(t, err, ErrStatusConflict)

	// Só a equipe reabre.
	record, err = f.svc.StaffSetOrganApproval(ctx, record.ID, OrganApproved)
	require.NoError(t, err)
	assert.Equal(t, OrganApproved, record.OrganApprovalStatus)
	assert.Equal(t, StatusApproved, record.Status)
}

func TestConfirmOrganApprovalExigeOrgaoAprovado(t *testing.T) {
	f := newFixture(t, 30)
	record := f.submit(t)

	_, err := f.svc.ConfirmOrganApproval(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestEnrollmentCheckoutExigeConfirmacaoDoOrgao(t *testing.T) {
	f := newFixture(t, 30)
	record := f.submit(t)

	_, err := f.svc.EnrollmentCheckout(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrOrganNotConfirmed)
}

func TestCertificateEligibility(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()
	record := f.submit(t)

	_, err := f.svc.ConfirmPaymentManually(ctx, record.ID)
	require.NoError(t, err)
	_, err = f.svc.SetOrganApproval(ctx, record.ID, OrganApproved)
	require.NoError(t, err)
	_, err = f.svc.ConfirmOrganApproval(ctx, record.ID)
	require.NoError(t, err)

	result, err := f.svc.EnrollmentCheckout(ctx, record.ID)
	require.NoError(t, err)

	// Matrícula ainda aguardando pagamento: não elegível.
	elig, err := f.svc.CheckCertificateEligibility(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)

	require.NoError(t, f.svc.HandleGatewayEvent(ctx, *result.Payment.GatewayID, payment.EventPaymentConfirmed))

	// Ativa, mas dentro do período do curso: ainda não elegível.
	elig, err = f.svc.CheckCertificateEligibility(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
	require.NotNil(t, elig.EligibleAt)

	// Avança o relógio para além de duração + 1 dia.
	f.svc.now = func() time.Time { return time.Now().AddDate(0, 0, 32) }
	elig, err = f.svc.CheckCertificateEligibility(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, elig.Eligible)
}

func TestEffectiveStatusInfereConclusao(t *testing.T) {
	start := time.Now().AddDate(0, 0, -40)
	e := Enrollment{Status: EnrollmentActive, EnrollmentDate: &start}

	assert.Equal(t, EnrollmentCompleted, e.EffectiveStatus(time.Now(), 30))
	assert.Equal(t, EnrollmentActive, e.EffectiveStatus(time.Now(), 60))

	// Nunca inferido para matrículas não ativas.
	e.Status = EnrollmentAwaitingPayment
	assert.Equal(t, EnrollmentAwaitingPayment, e.EffectiveStatus(time.Now(), 30))
}

func ptr[T any](v T) *T { return &v }
