package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/portalcapacita/api/internal/certificate"
	"github.com/portalcapacita/api/internal/course"
	"github.com/portalcapacita/api/internal/document"
	"github.com/portalcapacita/api/internal/enrollment"
	"github.com/portalcapacita/api/internal/fees"
	"github.com/portalcapacita/api/internal/payment"
	"github.com/portalcapacita/api/internal/repo"
	"github.com/portalcapacita/api/internal/service"
	"github.com/portalcapacita/api/internal/settings"
	"github.com/portalcapacita/api/internal/util"
	"github.com/portalcapacita/api/internal/webhook"
)

func urlParamUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", name+" inválido", nil)
		return uuid.Nil, false
	}
	return id, true
}

// ListPreEnrollments lista as inscrições, com filtro opcional por
// status (?status=pending_payment).
func (h *Handler) ListPreEnrollments(w http.ResponseWriter, r *http.Request) {
	var filter *enrollment.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := enrollment.Status(raw)
		switch status {
		case enrollment.StatusPending, enrollment.StatusPendingPayment,
			enrollment.StatusPaymentConfirmed, enrollment.StatusApproved, enrollment.StatusRejected:
			filter = &status
		default:
			WriteError(w, http.StatusBadRequest, "VALIDATION", "status desconhecido", nil)
			return
		}
	}

	records, err := h.enrollments.List(r.Context(), filter)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

// GetPreEnrollment devolve a inscrição com cobranças e matrícula.
func (h *Handler) GetPreEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	record, err := h.enrollments.GetByID(ctx, id)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}

	prePayments, err := h.payments.ListByKind(ctx, record.ID, payment.KindPreEnrollment)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	enrPayments, err := h.payments.ListByKind(ctx, record.ID, payment.KindEnrollment)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}

	payload := map[string]any{
		"pre_matricula":        record,
		"pagamentos_pre":       prePayments,
		"pagamentos_matricula": enrPayments,
	}

	if enr, err := h.enrollments.GetEnrollment(ctx, record.ID); err == nil && enr != nil {
		view := *enr
		if c, err := h.courses.GetByID(ctx, record.CourseID); err == nil {
			view.Status = enr.EffectiveStatus(time.Now(), c.DurationDays)
		}
		payload["matricula"] = view
	}

	WriteJSON(w, http.StatusOK, payload)
}

// ConfirmPaymentManually dá baixa de pagamento pela equipe.
func (h *Handler) ConfirmPaymentManually(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.enrollments.ConfirmPaymentManually(r.Context(), id)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// RejectPreEnrollment encerra a inscrição com observação opcional.
func (h *Handler) RejectPreEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Observacoes *string `json:"observacoes"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	record, err := h.enrollments.Reject(r.Context(), id, payload.Observacoes)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// SetOrganApproval registra o desfecho do órgão pela equipe.
func (h *Handler) SetOrganApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	status := enrollment.OrganStatus(payload.Status)
	if status != enrollment.OrganApproved && status != enrollment.OrganRejected && status != enrollment.OrganPending {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "status deve ser pending, approved ou rejected", nil)
		return
	}

	record, err := h.enrollments.StaffSetOrganApproval(r.Context(), id, status)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// ConfirmOrganApproval liga o flag de ciência da aprovação do órgão.
func (h *Handler) ConfirmOrganApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	record, err := h.enrollments.ConfirmOrganApproval(r.Context(), id)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// ManualOverride aprova a inscrição sem cobrança confirmada (cortesia
// ou correção), registrando a justificativa.
func (h *Handler) ManualOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Observacoes *string `json:"observacoes"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	result, err := h.enrollments.ManualOverride(r.Context(), id, payload.Observacoes)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// SetAdminNotes grava observações internas da equipe.
func (h *Handler) SetAdminNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Observacoes string `json:"observacoes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	record, err := h.enrollments.SetAdminNotes(r.Context(), id, payload.Observacoes)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// IssueCertificate emite o certificado pela equipe, com as mesmas
// regras de elegibilidade do aluno.
func (h *Handler) IssueCertificate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	record, err := h.enrollments.GetByID(ctx, id)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}

	eligibility, err := h.enrollments.CheckCertificateEligibility(ctx, record.ID)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	if !eligibility.Eligible {
		WriteError(w, http.StatusConflict, "CONFLICT", eligibility.Reason, map[string]any{"eligible_at": eligibility.EligibleAt})
		return
	}

	enr, err := h.enrollments.GetEnrollment(ctx, record.ID)
	if err != nil || enr == nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", fmt.Sprintf("matrícula ausente para pré-matrícula %s", record.ID), nil)
		return
	}

	c, err := h.courses.GetByID(ctx, record.CourseID)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}

	hours := c.Hours
	if record.CustomHours != nil && *record.CustomHours > 0 {
		hours = *record.CustomHours
	}
	var completion *time.Time
	if enr.EnrollmentDate != nil {
		t := enr.EnrollmentDate.AddDate(0, 0, c.DurationDays)
		completion = &t
	}

	cert, err := h.certificates.Issue(ctx, certificate.IssueInput{
		EnrollmentID:    enr.ID,
		PreEnrollmentID: record.ID,
		StudentName:     record.Nome,
		CourseName:      c.Titulo,
		CourseHours:     hours,
		CompletionDate:  completion,
	})
	if err != nil {
		if errors.Is(err, certificate.ErrAlreadyIssued) {
			if existing, lookupErr := h.certificates.GetByEnrollment(ctx, enr.ID); lookupErr == nil && existing != nil {
				WriteJSON(w, http.StatusOK, existing)
				return
			}
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível emitir certificado", nil)
		return
	}

	WriteJSON(w, http.StatusCreated, cert)
}

// ListEnrollments expõe as matrículas formais.
func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	enrollments, err := h.enrollments.ListEnrollments(r.Context())
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, enrollments)
}

// ListCertificates expõe os certificados emitidos.
func (h *Handler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := h.certificates.svc.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar certificados", nil)
		return
	}
	WriteJSON(w, http.StatusOK, certs)
}

// DeactivateCertificate desativa um certificado emitido; a verificação
// pública passa a respondê-lo como inexistente.
func (h *Handler) DeactivateCertificate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.certificates.svc.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, certificate.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível desativar certificado", nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "inactive"})
}

type coursePayload struct {
	Titulo       string          `json:"titulo" validate:"required,min=3,max=200"`
	Slug         string          `json:"slug" validate:"required,min=3,max=120"`
	AreaID       *string         `json:"area_id" validate:"omitempty,uuid"`
	Descricao    *string         `json:"descricao"`
	DurationDays int             `json:"duration_days" validate:"required,gt=0"`
	Hours        int             `json:"hours" validate:"required,gt=0"`
	Modules      json.RawMessage `json:"modules"`
	ImageURL     *string         `json:"image_url" validate:"omitempty,url"`
	Ativo        bool            `json:"ativo"`
}

func (p coursePayload) toSaveParams(w http.ResponseWriter) (course.SaveParams, bool) {
	if !fees.Supported(p.DurationDays) {
		WriteError(w, http.StatusUnprocessableEntity, "VALIDATION", "duração sem taxa definida", map[string]any{"durations": fees.Durations()})
		return course.SaveParams{}, false
	}

	params := course.SaveParams{
		Titulo:       strings.TrimSpace(p.Titulo),
		Slug:         strings.ToLower(strings.TrimSpace(p.Slug)),
		Descricao:    p.Descricao,
		DurationDays: p.DurationDays,
		Hours:        p.Hours,
		Modules:      p.Modules,
		ImageURL:     p.ImageURL,
		Ativo:        p.Ativo,
	}
	if p.AreaID != nil && *p.AreaID != "" {
		id, err := uuid.Parse(*p.AreaID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "area_id inválido", nil)
			return course.SaveParams{}, false
		}
		params.AreaID = &id
	}
	return params, true
}

// AdminListCourses lista todos os cursos, inclusive inativos.
func (h *Handler) AdminListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListAll(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar cursos", nil)
		return
	}
	WriteJSON(w, http.StatusOK, courses)
}

// GetCourse devolve o curso pelo id.
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.courses.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "curso não encontrado", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar curso", nil)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

// CreateCourse cadastra um curso.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var payload coursePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	params, ok := payload.toSaveParams(w)
	if !ok {
		return
	}

	c, err := h.courses.Insert(r.Context(), params)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível criar curso", nil)
		return
	}
	WriteJSON(w, http.StatusCreated, c)
}

// UpdateCourse altera um curso existente.
func (h *Handler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	var payload coursePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	params, ok := payload.toSaveParams(w)
	if !ok {
		return
	}

	c, err := h.courses.Update(r.Context(), id, params)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "curso não encontrado", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível atualizar curso", nil)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

// CreateArea cadastra uma área de curso.
func (h *Handler) CreateArea(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Nome string `json:"nome" validate:"required,min=2,max=120"`
		Slug string `json:"slug" validate:"required,min=2,max=120"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	area, err := h.courses.InsertArea(r.Context(), strings.TrimSpace(payload.Nome), strings.ToLower(strings.TrimSpace(payload.Slug)))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível criar área", nil)
		return
	}
	WriteJSON(w, http.StatusCreated, area)
}

// CreateOrganType cadastra um tipo de órgão com multiplicador de carga
// horária.
func (h *Handler) CreateOrganType(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Nome            string  `json:"nome" validate:"required,min=2,max=120"`
		HoursMultiplier float64 `json:"hours_multiplier" validate:"required,gt=0,lte=10"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	organ, err := h.courses.InsertOrganType(r.Context(), strings.TrimSpace(payload.Nome), payload.HoursMultiplier)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível criar tipo de órgão", nil)
		return
	}
	WriteJSON(w, http.StatusCreated, organ)
}

type templatePayload struct {
	Nome    string          `json:"nome" validate:"required,min=3,max=160"`
	DocType string          `json:"doc_type" validate:"required"`
	Blocks  json.RawMessage `json:"blocks" validate:"required"`
	Ativo   bool            `json:"ativo"`
}

func (p templatePayload) toSaveParams(w http.ResponseWriter) (document.SaveParams, bool) {
	docType := document.DocType(p.DocType)
	if !document.KnownDocType(docType) {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "doc_type desconhecido", nil)
		return document.SaveParams{}, false
	}

	var blocks []document.ContentBlock
	if err := json.Unmarshal(p.Blocks, &blocks); err != nil || len(blocks) == 0 {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "blocks deve ser uma lista não vazia de blocos", nil)
		return document.SaveParams{}, false
	}

	normalized, err := json.Marshal(document.NormalizeOrder(blocks))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível normalizar blocos", nil)
		return document.SaveParams{}, false
	}

	return document.SaveParams{
		Nome:    strings.TrimSpace(p.Nome),
		DocType: docType,
		Blocks:  normalized,
		Ativo:   p.Ativo,
	}, true
}

// ListTemplates expõe os templates de documento.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar templates", nil)
		return
	}
	WriteJSON(w, http.StatusOK, templates)
}

// GetTemplate devolve um template pelo id.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	tpl, err := h.templates.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar template", nil)
		return
	}
	WriteJSON(w, http.StatusOK, tpl)
}

// CreateTemplate cadastra um template; marcado como ativo, desativa os
// demais do mesmo tipo.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var payload templatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	params, ok := payload.toSaveParams(w)
	if !ok {
		return
	}

	tpl, err := h.templates.Insert(r.Context(), params)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível criar template", nil)
		return
	}
	WriteJSON(w, http.StatusCreated, tpl)
}

// UpdateTemplate altera um template existente.
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	var payload templatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	params, ok := payload.toSaveParams(w)
	if !ok {
		return
	}

	tpl, err := h.templates.Update(r.Context(), id, params)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível atualizar template", nil)
		return
	}
	WriteJSON(w, http.StatusOK, tpl)
}

// DeleteTemplate remove um template.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.templates.Delete(r.Context(), id); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível remover template", nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PreviewTemplate renderiza os blocos informados com dados de exemplo,
// para o editor mostrar o PDF antes de salvar.
func (h *Handler) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DocType string          `json:"doc_type"`
		Blocks  json.RawMessage `json:"blocks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	docType := document.DocType(payload.DocType)
	if !document.KnownDocType(docType) {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "doc_type desconhecido", nil)
		return
	}

	var blocks []document.ContentBlock
	if len(payload.Blocks) > 0 {
		if err := json.Unmarshal(payload.Blocks, &blocks); err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "blocks inválidos", nil)
			return
		}
	}
	if len(blocks) == 0 {
		blocks = document.DefaultBlocks(docType)
	}

	ctx := r.Context()
	inst, err := h.settings.Institution(ctx)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar instituição", nil)
		return
	}

	start := time.Now().AddDate(0, 0, -30)
	completion := time.Now()
	data := document.Data{
		Vars: document.VariableBag{
			"student_name":     "Maria Aparecida dos Santos",
			"student_cpf":      "123.456.789-09",
			"course_name":      "Gestão Pública Municipal",
			"course_hours":     "120",
			"start_date":       start.Format("02/01/2006"),
			"completion_date":  completion.Format("02/01/2006"),
			"certificate_code": "CERT-EXEM-PLO2-026X",
			"verification_url": strings.TrimRight(h.cfg.VerificationBase, "/") + "/CERT-EXEM-PLO2-026X",
			"institution_name": inst.Nome,
			"city":             inst.Cidade,
			"current_date":     time.Now().Format("02/01/2006"),
		},
		Institution: document.Institution{
			Nome:          inst.Nome,
			CNPJ:          inst.CNPJ,
			Endereco:      inst.Endereco,
			Cidade:        inst.Cidade,
			Telefone:      inst.Telefone,
			Email:         inst.Email,
			LogoURL:       inst.LogoURL,
			DiretorNome:   inst.DiretorNome,
			AssinaturaURL: inst.AssinaturaDiretorURL,
		},
		Modules: []document.ModuleRow{
			{Titulo: "Fundamentos da administração pública", Hours: 40, Topicos: []string{"Princípios constitucionais", "Estrutura do Estado"}},
			{Titulo: "Licitações e contratos", Hours: 40, Topicos: []string{"Lei 14.133/2021", "Fases da licitação"}},
			{Titulo: "Gestão orçamentária", Hours: 40, Topicos: []string{"PPA, LDO e LOA", "Execução da despesa"}},
		},
		StartDate: start,
	}

	pdf, err := h.renderer.Render(ctx, document.NormalizeOrder(blocks), data)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível renderizar prévia", nil)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="preview.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// GetInstitutionSettings devolve os dados institucionais.
func (h *Handler) GetInstitutionSettings(w http.ResponseWriter, r *http.Request) {
	inst, err := h.settings.Institution(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar configurações", nil)
		return
	}
	WriteJSON(w, http.StatusOK, inst)
}

// UpdateInstitutionSettings grava os dados institucionais.
func (h *Handler) UpdateInstitutionSettings(w http.ResponseWriter, r *http.Request) {
	updatedBy, err := h.subjectUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	var payload struct {
		Nome                 string `json:"nome" validate:"required,min=3,max=200"`
		CNPJ                 string `json:"cnpj" validate:"required,min=14,max=18"`
		Endereco             string `json:"endereco" validate:"required"`
		Cidade               string `json:"cidade" validate:"required"`
		Telefone             string `json:"telefone"`
		Email                string `json:"email" validate:"omitempty,email"`
		LogoURL              string `json:"logo_url" validate:"omitempty,url"`
		AssinaturaDiretorURL string `json:"assinatura_diretor_url" validate:"omitempty,url"`
		DiretorNome          string `json:"diretor_nome"`
		VerificationBaseURL  string `json:"verification_base_url" validate:"omitempty,url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	saved, err := h.settings.SaveInstitution(r.Context(), settings.InstitutionSettings{
		Nome:                 strings.TrimSpace(payload.Nome),
		CNPJ:                 strings.TrimSpace(payload.CNPJ),
		Endereco:             strings.TrimSpace(payload.Endereco),
		Cidade:               strings.TrimSpace(payload.Cidade),
		Telefone:             strings.TrimSpace(payload.Telefone),
		Email:                strings.ToLower(strings.TrimSpace(payload.Email)),
		LogoURL:              strings.TrimSpace(payload.LogoURL),
		AssinaturaDiretorURL: strings.TrimSpace(payload.AssinaturaDiretorURL),
		DiretorNome:          strings.TrimSpace(payload.DiretorNome),
		VerificationBaseURL:  strings.TrimRight(strings.TrimSpace(payload.VerificationBaseURL), "/"),
	}, updatedBy)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível salvar configurações", nil)
		return
	}
	WriteJSON(w, http.StatusOK, saved)
}

// GetPaymentSettings devolve as credenciais do gateway com a chave
// mascarada.
func (h *Handler) GetPaymentSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Payment(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar configurações", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"asaas_api_key": cfg.MaskedKey(),
		"sandbox":       cfg.Sandbox,
		"base_url":      cfg.BaseURL,
		"configured":    cfg.Configured(),
		"updated_at":    cfg.UpdatedAt,
	})
}

// UpdatePaymentSettings grava as credenciais do gateway. Chave vazia
// preserva a atual, permitindo alternar sandbox sem redigitar o token.
func (h *Handler) UpdatePaymentSettings(w http.ResponseWriter, r *http.Request) {
	updatedBy, err := h.subjectUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	var payload struct {
		AsaasAPIKey string `json:"asaas_api_key"`
		Sandbox     bool   `json:"sandbox"`
		BaseURL     string `json:"base_url" validate:"omitempty,url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	ctx := r.Context()
	key := strings.TrimSpace(payload.AsaasAPIKey)
	if key == "" {
		current, err := h.settings.Payment(ctx)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar configurações", nil)
			return
		}
		key = current.AsaasAPIKey
	}

	saved, err := h.settings.SavePayment(ctx, settings.PaymentSettings{
		AsaasAPIKey: key,
		Sandbox:     payload.Sandbox,
		BaseURL:     strings.TrimSpace(payload.BaseURL),
	}, updatedBy)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível salvar configurações", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"asaas_api_key": saved.MaskedKey(),
		"sandbox":       saved.Sandbox,
		"base_url":      saved.BaseURL,
		"configured":    saved.Configured(),
		"updated_at":    saved.UpdatedAt,
	})
}

var knownWebhookEvents = []webhook.EventType{
	webhook.EventPreEnrollmentCreated,
	webhook.EventPaymentConfirmed,
	webhook.EventOrganApproved,
	webhook.EventOrganRejected,
	webhook.EventEnrollmentCreated,
	webhook.EventEnrollmentActive,
	webhook.EventCertificateIssued,
	webhook.EventStatusRejected,
}

// GetWebhookSettings devolve o destino dos webhooks de saída.
func (h *Handler) GetWebhookSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Webhook(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar configurações", nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"url":              cfg.URL,
		"events":           cfg.Events,
		"available_events": knownWebhookEvents,
		"updated_at":       cfg.UpdatedAt,
	})
}

// UpdateWebhookSettings grava o destino dos webhooks. URL vazia
// desativa o envio.
func (h *Handler) UpdateWebhookSettings(w http.ResponseWriter, r *http.Request) {
	updatedBy, err := h.subjectUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	var payload struct {
		URL    string   `json:"url" validate:"omitempty,url"`
		Events []string `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	events := make([]webhook.EventType, 0, len(payload.Events))
	for _, raw := range payload.Events {
		ev := webhook.EventType(raw)
		known := false
		for _, candidate := range knownWebhookEvents {
			if ev == candidate {
				known = true
				break
			}
		}
		if !known {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "evento desconhecido: "+raw, nil)
			return
		}
		events = append(events, ev)
	}

	saved, err := h.settings.SaveWebhook(r.Context(), settings.WebhookSettings{
		URL:    strings.TrimSpace(payload.URL),
		Events: events,
	}, updatedBy)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível salvar configurações", nil)
		return
	}
	WriteJSON(w, http.StatusOK, saved)
}

// ListStaffUsers lista os usuários do back-office.
func (h *Handler) ListStaffUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.staff.ListUsers(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar usuários", nil)
		return
	}
	WriteJSON(w, http.StatusOK, users)
}

// CreateStaffUser cadastra um usuário do back-office.
func (h *Handler) CreateStaffUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Nome  string `json:"nome"`
		Email string `json:"email"`
		Papel string `json:"papel"`
		Senha string `json:"senha"`
		Ativo *bool  `json:"ativo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	active := true
	if payload.Ativo != nil {
		active = *payload.Ativo
	}

	user, err := h.staff.CreateUser(r.Context(), payload.Nome, payload.Email, payload.Papel, payload.Senha, active)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	WriteJSON(w, http.StatusCreated, user)
}

// UpdateStaffUser altera papel e situação de um usuário.
func (h *Handler) UpdateStaffUser(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamUUID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Papel string `json:"papel"`
		Ativo bool   `json:"ativo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	role := service.NormalizeRole(payload.Papel)
	if !service.IsValidRole(role) {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "papel deve ser ADMIN ou STAFF", nil)
		return
	}

	if err := h.staff.UpdateUserRole(r.Context(), id, role, payload.Ativo); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "usuário não encontrado", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível atualizar usuário", nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
