package certificate

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	byCode map[string]Certificate
}

func newMemRepo() *memRepo {
	return &memRepo{byCode: map[string]Certificate{}}
}

func (m *memRepo) Insert(ctx context.Context, params InsertParams) (Certificate, error) {
	if _, exists := m.byCode[params.Code]; exists {
		return Certificate{}, ErrDuplicateCode
	}
	c := Certificate{
		ID:              uuid.New(),
		Code:            params.Code,
		EnrollmentID:    params.EnrollmentID,
		PreEnrollmentID: params.PreEnrollmentID,
		StudentName:     params.StudentName,
		CourseName:      params.CourseName,
		CourseHours:     params.CourseHours,
		IssueDate:       params.IssueDate,
		CompletionDate:  params.CompletionDate,
		Status:          StatusActive,
		VerificationURL: params.VerificationURL,
		CreatedAt:       time.Now(),
	}
	m.byCode[params.Code] = c
	return c, nil
}

func (m *memRepo) GetByCode(ctx context.Context, code string) (Certificate, error) {
	if c, ok := m.byCode[code]; ok {
		return c, nil
	}
	return Certificate{}, ErrNotFound
}

func (m *memRepo) GetByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*Certificate, error) {
	for _, c := range m.byCode {
		if c.EnrollmentID == enrollmentID {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memRepo) List(ctx context.Context) ([]Certificate, error) {
	var out []Certificate
	for _, c := range m.byCode {
		out = append(out, c)
	}
	return out, nil
}

func (m *memRepo) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	for code, c := range m.byCode {
		if c.ID == id {
			c.Status = status
			m.byCode[code] = c
			return nil
		}
	}
	return ErrNotFound
}

var codePattern = regexp.MustCompile(`^CERT(-[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{4}){3}$`)

func TestNewCodeFormato(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
	}
}

func TestIssueGeraCodigosDistintos(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, "https://portal.example.com/verificar")

	a, err := svc.Issue(context.Background(), IssueInput{
		EnrollmentID: uuid.New(), PreEnrollmentID: uuid.New(),
		StudentName: "Maria", CourseName: "Gestão Pública", CourseHours: 120,
	})
	require.NoError(t, err)

	b, err := svc.Issue(context.Background(), IssueInput{
		EnrollmentID: uuid.New(), PreEnrollmentID: uuid.New(),
		StudentName: "João", CourseName: "Gestão Pública", CourseHours: 120,
	})
	require.NoError(t, err)

	assert.NotEqual(t, a.Code, b.Code)
	assert.Equal(t, "https://portal.example.com/verificar/"+a.Code, a.VerificationURL)
}

func TestIssueNaoDuplicaPorMatricula(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, "https://portal.example.com/verificar")
	enrollmentID := uuid.New()

	_, err := svc.Issue(context.Background(), IssueInput{EnrollmentID: enrollmentID, PreEnrollmentID: uuid.New(), StudentName: "Maria", CourseName: "Curso"})
	require.NoError(t, err)

	_, err = svc.Issue(context.Background(), IssueInput{EnrollmentID: enrollmentID, PreEnrollmentID: uuid.New(), StudentName: "Maria", CourseName: "Curso"})
	assert.ErrorIs(t, err, ErrAlreadyIssued)
}

func TestVerify(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, "https://portal.example.com/verificar")

	cert, err := svc.Issue(context.Background(), IssueInput{EnrollmentID: uuid.New(), PreEnrollmentID: uuid.New(), StudentName: "Maria", CourseName: "Curso"})
	require.NoError(t, err)

	// Aceita código com espaços e caixa baixa (digitação manual).
	got, err := svc.Verify(context.Background(), "  "+cert.Code+"  ")
	require.NoError(t, err)
	assert.Equal(t, cert.ID, got.ID)

	_, err = svc.Verify(context.Background(), "CERT-XXXX-XXXX-XXXX")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)

	// Certificado desativado some da verificação pública.
	require.NoError(t, svc.Deactivate(context.Background(), cert.ID))
	_, err = svc.Verify(context.Background(), cert.Code)
	assert.ErrorIs(t, err, ErrNotFound)
}
