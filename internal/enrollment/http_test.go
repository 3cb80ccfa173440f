package enrollment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalcapacita/api/internal/certificate"
	"github.com/portalcapacita/api/internal/document"
	httpmiddleware "github.com/portalcapacita/api/internal/http/middleware"
	"github.com/portalcapacita/api/internal/payment"
)

// ListByKind completa a interface PaymentLister sobre o stub de pagamentos.
func (s *stubPayments) ListByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind payment.Kind) ([]payment.Payment, error) {
	var out []payment.Payment
	for _, p := range s.byGateway {
		if p.PreEnrollmentID == preEnrollmentID && p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubCerts struct {
	byEnrollment map[uuid.UUID]*certificate.Certificate
}

func newStubCerts() *stubCerts {
	return &stubCerts{byEnrollment: map[uuid.UUID]*certificate.Certificate{}}
}

func (s *stubCerts) Issue(ctx context.Context, input certificate.IssueInput) (certificate.Certificate, error) {
	if _, ok := s.byEnrollment[input.EnrollmentID]; ok {
		return certificate.Certificate{}, certificate.ErrAlreadyIssued
	}
	cert := certificate.Certificate{
		ID:              uuid.New(),
		Code:            "CERT-TEST-AAAA-2026",
		EnrollmentID:    input.EnrollmentID,
		PreEnrollmentID: input.PreEnrollmentID,
		StudentName:     input.StudentName,
		CourseName:      input.CourseName,
		CourseHours:     input.CourseHours,
		IssueDate:       time.Now(),
		CompletionDate:  input.CompletionDate,
		Status:          certificate.StatusActive,
		VerificationURL: "https://portal.example.com/verificar/CERT-TEST-AAAA-2026",
	}
	s.byEnrollment[input.EnrollmentID] = &cert
	return cert, nil
}

func (s *stubCerts) GetByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*certificate.Certificate, error) {
	return s.byEnrollment[enrollmentID], nil
}

type stubDocs struct {
	produced []document.DocType
	lastData document.Data
}

func (s *stubDocs) Produce(ctx context.Context, docType document.DocType, data document.Data) ([]byte, error) {
	s.produced = append(s.produced, docType)
	s.lastData = data
	return []byte("%PDF-1.4 fake"), nil
}

type httpFixture struct {
	*fixture
	certs  *stubCerts
	docs   *stubDocs
	router chi.Router
	userID uuid.UUID
}

func newHTTPFixture(t *testing.T, durationDays int) *httpFixture {
	t.Helper()
	f := newFixture(t, durationDays)
	certs := newStubCerts()
	docs := &stubDocs{}
	handler := NewHandler(f.svc, certs, docs, f.catalog, f.payments)

	router := chi.NewRouter()
	Mount(router, handler)

	return &httpFixture{fixture: f, certs: certs, docs: docs, router: router, userID: uuid.New()}
}

// submitAs cria a pré-matrícula vinculada ao aluno autenticado.
func (f *httpFixture) submitAs(t *testing.T) PreEnrollment {
	t.Helper()
	record, err := f.svc.Submit(context.Background(), SubmitInput{
		UserID:      &f.userID,
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

func (f *httpFixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := context.WithValue(req.Context(), httpmiddleware.ContextKeySubject, f.userID.String())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	envelope := struct {
		Data  json.RawMessage `json:"data"`
		Error any             `json:"error"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

// activate leva a pré-matrícula até a matrícula ativa.
func (f *httpFixture) activate(t *testing.T, record PreEnrollment) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.ConfirmPaymentManually(ctx, record.ID)
	require.NoError(t, err)
	_, err = f.svc.SetOrganApproval(ctx, record.ID, OrganApproved)
	require.NoError(t, err)
	_, err = f.svc.ConfirmOrganApproval(ctx, record.ID)
	require.NoError(t, err)
	result, err := f.svc.EnrollmentCheckout(ctx, record.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleGatewayEvent(ctx, *result.Payment.GatewayID, payment.EventPaymentConfirmed))
}

func TestHandlerMyPreEnrollment(t *testing.T) {
	f := newHTTPFixture(t, 30)
	record := f.submitAs(t)
	f.activate(t, record)

	rec := f.request(t, http.MethodGet, "/pre-matricula", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		PreMatricula        PreEnrollment     `json:"pre_matricula"`
		PagamentosMatricula []payment.Payment `json:"pagamentos_matricula"`
		Matricula           *Enrollment       `json:"matricula"`
		Certificado         struct {
			Eligible bool `json:"eligible"`
		} `json:"certificado"`
	}
	decodeData(t, rec, &data)

	assert.Equal(t, record.ID, data.PreMatricula.ID)
	assert.Equal(t, StatusApproved, data.PreMatricula.Status)
	require.Len(t, data.PagamentosMatricula, 1)
	require.NotNil(t, data.Matricula)
	assert.Equal(t, EnrollmentActive, data.Matricula.Status)
	assert.False(t, data.Certificado.Eligible, "dentro do período do curso")
}

func TestHandlerSemIdentificacao(t *testing.T) {
	f := newHTTPFixture(t, 30)
	f.submitAs(t)

	req := httptest.NewRequest(http.MethodGet, "/pre-matricula", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerPreCheckout(t *testing.T) {
	f := newHTTPFixture(t, 30)
	f.submitAs(t)

	rec := f.request(t, http.MethodPost, "/pre-matricula/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Pagamento payment.Payment `json:"pagamento"`
	}
	decodeData(t, rec, &data)
	assert.Equal(t, payment.KindPreEnrollment, data.Pagamento.Kind)
	assert.True(t, data.Pagamento.Amount.Equal(decimal.NewFromInt(57)), "amount = %s", data.Pagamento.Amount)
}

func TestHandlerOrganSelfReport(t *testing.T) {
	f := newHTTPFixture(t, 30)
	record := f.submitAs(t)

	// Sem pagamento confirmado a autoaprovação é bloqueada.
	rec := f.request(t, http.MethodPost, "/orgao/aprovacao", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err := f.svc.ConfirmPaymentManually(context.Background(), record.ID)
	require.NoError(t, err)

	rec = f.request(t, http.MethodPost, "/orgao/aprovacao", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pending não é um autorrelato válido")

	rec = f.request(t, http.MethodPost, "/orgao/aprovacao", map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		PreMatricula PreEnrollment `json:"pre_matricula"`
	}
	decodeData(t, rec, &data)
	assert.Equal(t, StatusApproved, data.PreMatricula.Status)
	assert.Equal(t, OrganApproved, data.PreMatricula.OrganApprovalStatus)

	rec = f.request(t, http.MethodPost, "/orgao/confirmacao", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &data)
	assert.True(t, data.PreMatricula.OrganApprovalConfirmed)
}

func TestHandlerOrganSelfReportNaoReabreRejeitado(t *testing.T) {
	f := newHTTPFixture(t, 30)
	record := f.submitAs(t)
	ctx := context.Background()
	_, err := f.svc.ConfirmPaymentManually(ctx, record.ID)
	require.NoError(t, err)
	_, err = f.svc.StaffSetOrganApproval(ctx, record.ID, OrganRejected)
	require.NoError(t, err)

	rec := f.request(t, http.MethodPost, "/orgao/aprovacao", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.request(t, http.MethodPost, "/orgao/confirmacao", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerEnrollmentCheckoutExigeOrgao(t *testing.T) {
	f := newHTTPFixture(t, 30)
	record := f.submitAs(t)
	_, err := f.svc.ConfirmPaymentManually(context.Background(), record.ID)
	require.NoError(t, err)

	rec := f.request(t, http.MethodPost, "/matricula/checkout", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerCertificado(t *testing.T) {
	f := newHTTPFixture(t, 30)
	record := f.submitAs(t)
	f.activate(t, record)

	// Dentro do período do curso: 409 com a data prevista.
	rec := f.request(t, http.MethodPost, "/certificado", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.request(t, http.MethodGet, "/certificado/elegibilidade", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var elig CertificateEligibility
	decodeData(t, rec, &elig)
	assert.False(t, elig.Eligible)
	require.NotNil(t, elig.EligibleAt)

	// Prazo decorrido: emite.
	f.svc.now = func() time.Time { return time.Now().AddDate(0, 0, 32) }
	rec = f.request(t, http.MethodPost, "/certificado", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var data struct {
		Certificado certificate.Certificate `json:"certificado"`
	}
	decodeData(t, rec, &data)
	assert.Equal(t, "CERT-TEST-AAAA-2026", data.Certificado.Code)
	assert.Equal(t, "Maria Souza", data.Certificado.StudentName)
	assert.Equal(t, 120, data.Certificado.CourseHours, "carga ajustada pelo órgão")

	// Segunda solicitação devolve o certificado já emitido.
	rec = f.request(t, http.MethodPost, "/certificado", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &data)
	assert.Equal(t, "CERT-TEST-AAAA-2026", data.Certificado.Code)
}

func TestHandlerDocumentos(t *testing.T) {
	f := newHTTPFixture(t, 30)
	record := f.submitAs(t)

	// Plano de estudos sai desde a pré-matrícula.
	rec := f.request(t, http.MethodGet, "/documentos/plano", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte("%PDF-1.4 fake"), rec.Body.Bytes())
	assert.Equal(t, "Maria Souza", f.docs.lastData.Vars["student_name"])

	// Declaração exige matrícula.
	rec = f.request(t, http.MethodGet, "/documentos/declaracao", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.request(t, http.MethodGet, "/documentos/contrato", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.activate(t, record)
	rec = f.request(t, http.MethodGet, "/documentos/declaracao", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.docs.produced, 2)
	assert.Equal(t, document.DocDeclaration, f.docs.produced[1])
}

func TestHandlerDocumentoCertificadoExigeEmissao(t *testing.T) {
	f := newHTTPFixture(t, 30)
	record := f.submitAs(t)
	f.activate(t, record)
	f.svc.now = func() time.Time { return time.Now().AddDate(0, 0, 32) }

	// Elegível mas ainda sem certificado emitido.
	rec := f.request(t, http.MethodGet, "/documentos/certificado", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.request(t, http.MethodPost, "/certificado", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.request(t, http.MethodGet, "/documentos/certificado", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CERT-TEST-AAAA-2026", f.docs.lastData.Vars["certificate_code"])
	assert.NotEmpty(t, f.docs.lastData.Vars["verification_url"])
}
