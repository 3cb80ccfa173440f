package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/portalcapacita/api/internal/certificate"
	"github.com/portalcapacita/api/internal/course"
	"github.com/portalcapacita/api/internal/document"
	httpmiddleware "github.com/portalcapacita/api/internal/http/middleware"
	"github.com/portalcapacita/api/internal/payment"
)

// CertificateIssuer cobre o que o aluno precisa do módulo de certificados.
type CertificateIssuer interface {
	Issue(ctx context.Context, input certificate.IssueInput) (certificate.Certificate, error)
	GetByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*certificate.Certificate, error)
}

// DocumentProducer renderiza os PDFs do aluno.
type DocumentProducer interface {
	Produce(ctx context.Context, docType document.DocType, data document.Data) ([]byte, error)
}

// CourseSource resolve os dados do curso para documentos e telas.
type CourseSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (course.Course, error)
}

// PaymentLister lista as cobranças exibidas ao aluno.
type PaymentLister interface {
	ListByKind(ctx context.Context, preEnrollmentID uuid.UUID, kind payment.Kind) ([]payment.Payment, error)
}

// Handler orquestra as rotas autenticadas do aluno.
type Handler struct {
	svc      *Service
	certs    CertificateIssuer
	docs     DocumentProducer
	courses  CourseSource
	payments PaymentLister
}

func NewHandler(svc *Service, certs CertificateIssuer, docs DocumentProducer, courses CourseSource, payments PaymentLister) *Handler {
	return &Handler{svc: svc, certs: certs, docs: docs, courses: courses, payments: payments}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/pre-matricula", h.handleMyPreEnrollment)
	r.Post("/pre-matricula/checkout", h.handlePreCheckout)
	r.Post("/orgao/aprovacao", h.handleOrganSelfReport)
	r.Post("/orgao/confirmacao", h.handleOrganConfirm)
	r.Post("/matricula/checkout", h.handleEnrollmentCheckout)
	r.Get("/certificado/elegibilidade", h.handleCertificateEligibility)
	r.Post("/certificado", h.handleRequestCertificate)
	r.Get("/documentos/{tipo}", h.handleDocument)
}

// handleMyPreEnrollment devolve a inscrição do aluno com as cobranças
// e a elegibilidade de certificado.
func (h *Handler) handleMyPreEnrollment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	userID, err := subjectAsUUID(ctx)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	record, err := h.svc.GetByUser(ctx, userID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	prePayments, err := h.payments.ListByKind(ctx, record.ID, payment.KindPreEnrollment)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	enrPayments, err := h.payments.ListByKind(ctx, record.ID, payment.KindEnrollment)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	eligibility, err := h.svc.CheckCertificateEligibility(ctx, record.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	enr, err := h.svc.GetEnrollment(ctx, record.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	payload := map[string]any{
		"pre_matricula":        record,
		"pagamentos_pre":       prePayments,
		"pagamentos_matricula": enrPayments,
		"certificado":          eligibility,
	}
	if enr != nil {
		c, err := h.courses.GetByID(ctx, record.CourseID)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		view := *enr
		view.Status = enr.EffectiveStatus(time.Now(), c.DurationDays)
		payload["matricula"] = view
	}

	logRequest(ctx, "GET /aluno/pre-matricula", userID, start)
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handlePreCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	record, ok := h.myRecord(w, r)
	if !ok {
		return
	}

	p, err := h.svc.PreEnrollmentCheckout(ctx, record.ID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /aluno/pre-matricula/checkout", record.ID, start)
	writeJSON(w, http.StatusOK, map[string]any{"pagamento": p})
}

func (h *Handler) handleOrganSelfReport(w http.ResponseWriter, r *http.Request) {
	record, ok := h.myRecord(w, r)
	if !ok {
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	status := OrganStatus(payload.Status)
	if status != OrganApproved && status != OrganRejected {
		writeError(w, http.StatusBadRequest, "VALIDATION", "status deve ser approved ou rejected", nil)
		return
	}

	updated, err := h.svc.SetOrganApproval(r.Context(), record.ID, status)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pre_matricula": updated})
}

func (h *Handler) handleOrganConfirm(w http.ResponseWriter, r *http.Request) {
	record, ok := h.myRecord(w, r)
	if !ok {
		return
	}

	updated, err := h.svc.ConfirmOrganApproval(r.Context(), record.ID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pre_matricula": updated})
}

func (h *Handler) handleEnrollmentCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	record, ok := h.myRecord(w, r)
	if !ok {
		return
	}

	result, err := h.svc.EnrollmentCheckout(ctx, record.ID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /aluno/matricula/checkout", record.ID, start)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCertificateEligibility(w http.ResponseWriter, r *http.Request) {
	record, ok := h.myRecord(w, r)
	if !ok {
		return
	}

	eligibility, err := h.svc.CheckCertificateEligibility(r.Context(), record.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibility)
}

// handleRequestCertificate emite o certificado quando o aluno está
// elegível. Reemissão devolve o certificado já existente.
func (h *Handler) handleRequestCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, ok := h.myRecord(w, r)
	if !ok {
		return
	}

	eligibility, err := h.svc.CheckCertificateEligibility(ctx, record.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !eligibility.Eligible {
		writeError(w, http.StatusConflict, "CONFLICT", eligibility.Reason, map[string]any{"eligible_at": eligibility.EligibleAt})
		return
	}

	enr, err := h.svc.GetEnrollment(ctx, record.ID)
	if err != nil || enr == nil {
		writeInternalError(w, fmt.Errorf("matrícula ausente para pré-matrícula %s", record.ID))
		return
	}

	c, err := h.courses.GetByID(ctx, record.CourseID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	cert, err := h.certs.Issue(ctx, certificate.IssueInput{
		EnrollmentID:    enr.ID,
		PreEnrollmentID: record.ID,
		StudentName:     record.Nome,
		CourseName:      c.Titulo,
		CourseHours:     courseHours(record, c),
		CompletionDate:  completionDate(enr, c),
	})
	if err != nil {
		if errors.Is(err, certificate.ErrAlreadyIssued) {
			if existing, lookupErr := h.certs.GetByEnrollment(ctx, enr.ID); lookupErr == nil && existing != nil {
				writeJSON(w, http.StatusOK, map[string]any{"certificado": existing})
				return
			}
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"certificado": cert})
}

// handleDocument gera o PDF pedido: plano (plano de estudos),
// declaracao (declaração de matrícula) ou certificado.
func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, ok := h.myRecord(w, r)
	if !ok {
		return
	}

	var docType document.DocType
	switch chi.URLParam(r, "tipo") {
	case "plano":
		docType = document.DocStudyPlan
	case "declaracao":
		docType = document.DocDeclaration
	case "certificado":
		docType = document.DocCertificate
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "documento desconhecido", nil)
		return
	}

	c, err := h.courses.GetByID(ctx, record.CourseID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	enr, err := h.svc.GetEnrollment(ctx, record.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	// Declaração e certificado exigem matrícula; o plano de estudos é
	// liberado desde a pré-matrícula.
	if docType != document.DocStudyPlan && enr == nil {
		writeError(w, http.StatusConflict, "CONFLICT", "matrícula ainda não criada", nil)
		return
	}

	data := document.Data{
		Vars:    h.buildVars(ctx, record, c, enr),
		Modules: toModuleRows(c.ParseModules()),
	}
	if enr != nil && enr.EnrollmentDate != nil {
		data.StartDate = *enr.EnrollmentDate
	} else {
		data.StartDate = record.CreatedAt
	}

	if docType == document.DocCertificate {
		eligibility, err := h.svc.CheckCertificateEligibility(ctx, record.ID)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		if !eligibility.Eligible {
			writeError(w, http.StatusConflict, "CONFLICT", eligibility.Reason, nil)
			return
		}
		cert, err := h.certs.GetByEnrollment(ctx, enr.ID)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		if cert == nil {
			writeError(w, http.StatusConflict, "CONFLICT", "certificado ainda não emitido", nil)
			return
		}
		data.Vars["certificate_code"] = cert.Code
		data.Vars["verification_url"] = cert.VerificationURL
	}

	pdf, err := h.docs.Produce(ctx, docType, data)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", chi.URLParam(r, "tipo")))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) buildVars(ctx context.Context, record PreEnrollment, c course.Course, enr *Enrollment) document.VariableBag {
	vars := document.VariableBag{
		"student_name": record.Nome,
		"student_cpf":  record.CPF,
		"course_name":  c.Titulo,
		"course_hours": strconv.Itoa(courseHours(record, c)),
	}
	start := record.CreatedAt
	if enr != nil && enr.EnrollmentDate != nil {
		start = *enr.EnrollmentDate
	}
	vars["start_date"] = start.Format("02/01/2006")
	if end := completionDate(enr, c); end != nil {
		vars["completion_date"] = end.Format("02/01/2006")
	}
	return vars
}

// courseHours prioriza a carga horária ajustada pelo órgão.
func courseHours(record PreEnrollment, c course.Course) int {
	if record.CustomHours != nil && *record.CustomHours > 0 {
		return *record.CustomHours
	}
	return c.Hours
}

func completionDate(enr *Enrollment, c course.Course) *time.Time {
	if enr == nil || enr.EnrollmentDate == nil {
		return nil
	}
	t := enr.EnrollmentDate.AddDate(0, 0, c.DurationDays)
	return &t
}

func toModuleRows(modules []course.Module) []document.ModuleRow {
	rows := make([]document.ModuleRow, 0, len(modules))
	for _, m := range modules {
		rows = append(rows, document.ModuleRow{Titulo: m.Titulo, Hours: m.Hours, Topicos: m.Topicos})
	}
	return rows
}

// myRecord resolve a pré-matrícula do aluno autenticado.
func (h *Handler) myRecord(w http.ResponseWriter, r *http.Request) (PreEnrollment, bool) {
	userID, err := subjectAsUUID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return PreEnrollment{}, false
	}

	record, err := h.svc.GetByUser(r.Context(), userID)
	if err != nil {
		handleDomainError(w, err)
		return PreEnrollment{}, false
	}
	return record, true
}

func subjectAsUUID(ctx context.Context) (uuid.UUID, error) {
	subject := httpmiddleware.GetSubject(ctx)
	return uuid.Parse(subject)
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "registro não encontrado", nil)
	case errors.Is(err, ErrStatusConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "estado alterado por outra operação", nil)
	case errors.Is(err, ErrUnsupportedDuration):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrOrganNotConfirmed), errors.Is(err, ErrPaymentRequired), errors.Is(err, ErrNotEligible), errors.Is(err, ErrOrganRejected):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeError(w, http.StatusServiceUnavailable, "GATEWAY", err.Error(), nil)
	default:
		var denied ErrTransitionDenied
		if errors.As(err, &denied) {
			writeError(w, http.StatusConflict, "CONFLICT", denied.Error(), nil)
			return
		}
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("erro no handler do aluno")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func logRequest(ctx context.Context, label string, id uuid.UUID, start time.Time) {
	logger := log.Ctx(ctx)
	if logger == nil {
		logger = &log.Logger
	}
	reqID := chimiddleware.GetReqID(ctx)
	logger.Info().Str("request_id", reqID).Str("id", id.String()).Str("label", label).Dur("duration", time.Since(start)).Msg("aluno_request")
}

// Helpers de resposta JSON compatíveis com o resto do projeto.
type successEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

type errorEnvelope struct {
	Data  any            `json:"data"`
	Error *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: payload, Error: nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Data: nil, Error: &errorResponse{Code: code, Message: message, Details: details}})
}
