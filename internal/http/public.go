package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/portalcapacita/api/internal/certificate"
	"github.com/portalcapacita/api/internal/course"
	"github.com/portalcapacita/api/internal/enrollment"
	"github.com/portalcapacita/api/internal/payment"
	"github.com/portalcapacita/api/internal/util"
)

// ListCourses expõe o catálogo público (apenas cursos ativos).
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListActive(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar cursos", nil)
		return
	}
	WriteJSON(w, http.StatusOK, courses)
}

// GetCourseBySlug resolve a página pública do curso.
func (h *Handler) GetCourseBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	c, err := h.courses.GetBySlug(r.Context(), slug)
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

// ListAreas expõe as áreas de curso.
func (h *Handler) ListAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.courses.ListAreas(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar áreas", nil)
		return
	}
	WriteJSON(w, http.StatusOK, areas)
}

// ListOrganTypes expõe os tipos de órgão aceitos na inscrição.
func (h *Handler) ListOrganTypes(w http.ResponseWriter, r *http.Request) {
	organs, err := h.courses.ListOrganTypes(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível listar órgãos", nil)
		return
	}
	WriteJSON(w, http.StatusOK, organs)
}

type submitPayload struct {
	CursoID        string  `json:"curso_id" validate:"required,uuid"`
	Nome           string  `json:"nome" validate:"required,min=3,max=160"`
	CPF            string  `json:"cpf" validate:"required,cpf"`
	Email          string  `json:"email" validate:"required,email"`
	Whatsapp       string  `json:"whatsapp" validate:"required,min=10,max=20"`
	DataNascimento *string `json:"data_nascimento" validate:"omitempty,datetime=2006-01-02"`
	Endereco       *string `json:"endereco"`
	Cidade         *string `json:"cidade"`
	UF             *string `json:"uf" validate:"omitempty,len=2"`
	CEP            *string `json:"cep"`
	OrgaoTipoID    *string `json:"orgao_tipo_id" validate:"omitempty,uuid"`
	Senha          string  `json:"senha" validate:"omitempty,min=8"`
}

// SubmitPreEnrollment recebe o formulário público: cria (ou reaproveita)
// a conta do aluno pelo CPF e registra a pré-matrícula já com a taxa
// devida.
func (h *Handler) SubmitPreEnrollment(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "dados inválidos", err.Error())
		return
	}

	courseID, err := uuid.Parse(payload.CursoID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "curso_id inválido", nil)
		return
	}

	var organTypeID *uuid.UUID
	if payload.OrgaoTipoID != nil && *payload.OrgaoTipoID != "" {
		id, err := uuid.Parse(*payload.OrgaoTipoID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "orgao_tipo_id inválido", nil)
			return
		}
		organTypeID = &id
	}

	var dataNascimento *time.Time
	if payload.DataNascimento != nil && *payload.DataNascimento != "" {
		parsed, err := time.Parse("2006-01-02", *payload.DataNascimento)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "data_nascimento inválida", nil)
			return
		}
		dataNascimento = &parsed
	}

	ctx := r.Context()
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	whatsapp := strings.TrimSpace(payload.Whatsapp)

	aluno, err := h.authService.RegisterAluno(ctx, payload.Nome, payload.CPF, &email, &whatsapp, payload.Senha)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	record, err := h.enrollments.Submit(ctx, enrollment.SubmitInput{
		UserID:         &aluno.ID,
		CourseID:       courseID,
		Nome:           strings.TrimSpace(payload.Nome),
		CPF:            util.NormalizeCPF(payload.CPF),
		Email:          email,
		Whatsapp:       whatsapp,
		DataNascimento: dataNascimento,
		Endereco:       payload.Endereco,
		Cidade:         payload.Cidade,
		UF:             payload.UF,
		CEP:            payload.CEP,
		OrganTypeID:    organTypeID,
	})
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"pre_enrollment": record,
		"aluno_id":       aluno.ID,
	})
}

// VerifyCertificate é a consulta pública por código; certificados
// desativados respondem como inexistentes.
func (h *Handler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	cert, err := h.certificates.svc.Verify(r.Context(), code)
	if err != nil {
		if errors.Is(err, certificate.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "certificado não encontrado", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível verificar certificado", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"valid":            true,
		"certificate_code": cert.Code,
		"student_name":     cert.StudentName,
		"course_name":      cert.CourseName,
		"course_hours":     cert.CourseHours,
		"issue_date":       cert.IssueDate,
		"completion_date":  cert.CompletionDate,
	})
}

// AsaasWebhook recebe os callbacks de cobrança do gateway. Respostas
// não-2xx fazem o Asaas reentregar, então eventos fora do fluxo são
// reconhecidos e descartados, nunca rejeitados.
func (h *Handler) AsaasWebhook(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AsaasWebhookToken != "" && r.Header.Get("asaas-access-token") != h.cfg.AsaasWebhookToken {
		WriteError(w, http.StatusUnauthorized, "AUTH", "token inválido", nil)
		return
	}

	var payload struct {
		Event   string `json:"event"`
		Payment struct {
			ID string `json:"id"`
		} `json:"payment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if payload.Payment.ID == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "payment.id ausente", nil)
		return
	}

	err := h.enrollments.HandleGatewayEvent(r.Context(), payload.Payment.ID, payment.GatewayEvent(payload.Event))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrUnknownEvent):
			WriteJSON(w, http.StatusOK, map[string]any{"ignored": true, "reason": "evento não tratado"})
			return
		case errors.Is(err, payment.ErrNotFound):
			log.Warn().Str("gateway_id", payload.Payment.ID).Msg("webhook para cobrança desconhecida")
			WriteJSON(w, http.StatusOK, map[string]any{"ignored": true, "reason": "cobrança desconhecida"})
			return
		default:
			log.Error().Err(err).Str("gateway_id", payload.Payment.ID).Msg("falha ao processar webhook do gateway")
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "falha ao processar evento", nil)
			return
		}
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// writeEnrollmentError traduz os erros do fluxo de matrícula para o
// envelope HTTP. Compartilhado pelos handlers público e administrativo.
func (h *Handler) writeEnrollmentError(w http.ResponseWriter, err error) {
	var denied enrollment.ErrTransitionDenied
	switch {
	case errors.Is(err, enrollment.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, course.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, enrollment.ErrUnsupportedDuration):
		WriteError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
	case errors.Is(err, enrollment.ErrStatusConflict):
		WriteError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, enrollment.ErrOrganNotConfirmed),
		errors.Is(err, enrollment.ErrPaymentRequired),
		errors.Is(err, enrollment.ErrNotEligible),
		errors.Is(err, enrollment.ErrOrganRejected):
		WriteError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.As(err, &denied):
		WriteError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("erro interno no fluxo de matrícula")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
	}
}
