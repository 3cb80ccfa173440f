package certificate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyIssued indica que a matrícula já possui certificado ativo.
var ErrAlreadyIssued = errors.New("certificado já emitido para esta matrícula")

// CertificateRepository define a persistência usada pelo serviço.
type CertificateRepository interface {
	Insert(ctx context.Context, params InsertParams) (Certificate, error)
	GetByCode(ctx context.Context, code string) (Certificate, error)
	GetByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*Certificate, error)
	List(ctx context.Context) ([]Certificate, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
}

// Service emite e verifica certificados.
type Service struct {
	repo CertificateRepository
	// verificationBase é a URL pública da página de verificação.
	verificationBase string
	now              func() time.Time
}

func NewService(repo CertificateRepository, verificationBase string) *Service {
	return &Service{
		repo:             repo,
		verificationBase: strings.TrimRight(verificationBase, "/"),
		now:              time.Now,
	}
}

// IssueInput carrega os dados da emissão.
type IssueInput struct {
	EnrollmentID    uuid.UUID
	PreEnrollmentID uuid.UUID
	StudentName     string
	CourseName      string
	CourseHours     int
	CompletionDate  *time.Time
}

// Issue emite um certificado único para a matrícula. Reemissão sobre
// matrícula já certificada devolve ErrAlreadyIssued. Colisões do código
// gerado são raríssimas; ainda assim, tenta de novo algumas vezes antes
// de desistir.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Certificate, error) {
	existing, err := s.repo.GetByEnrollment(ctx, input.EnrollmentID)
	if err != nil {
		return Certificate{}, err
	}
	if existing != nil && existing.Status == StatusActive {
		return Certificate{}, ErrAlreadyIssued
	}

	for attempt := 0; attempt < 3; attempt++ {
		code, err := NewCode()
		if err != nil {
			return Certificate{}, err
		}

		cert, err := s.repo.Insert(ctx, InsertParams{
			Code:            code,
			EnrollmentID:    input.EnrollmentID,
			PreEnrollmentID: input.PreEnrollmentID,
			StudentName:     input.StudentName,
			CourseName:      input.CourseName,
			CourseHours:     input.CourseHours,
			IssueDate:       s.now(),
			CompletionDate:  input.CompletionDate,
			VerificationURL: s.verificationBase + "/" + code,
		})
		if err != nil {
			if errors.Is(err, ErrDuplicateCode) {
				continue
			}
			return Certificate{}, err
		}
		return cert, nil
	}
	return Certificate{}, ErrDuplicateCode
}

// Verify é a consulta pública: código inexistente ou desativado devolve
// ErrNotFound, nunca detalhes internos.
func (s *Service) Verify(ctx context.Context, code string) (Certificate, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return Certificate{}, ErrNotFound
	}

	cert, err := s.repo.GetByCode(ctx, normalized)
	if err != nil {
		return Certificate{}, err
	}
	if cert.Status != StatusActive {
		return Certificate{}, ErrNotFound
	}
	return cert, nil
}

// GetByEnrollment devolve o certificado da matrícula, ou nil se ainda
// não emitido.
func (s *Service) GetByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*Certificate, error) {
	return s.repo.GetByEnrollment(ctx, enrollmentID)
}

// List expõe os certificados para o back-office.
func (s *Service) List(ctx context.Context) ([]Certificate, error) {
	return s.repo.List(ctx)
}

// Deactivate desativa um certificado emitido.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, id, StatusInactive)
}
