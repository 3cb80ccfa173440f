package certificate

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

// Status de um certificado emitido.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Certificate é a credencial verificável de conclusão de curso.
type Certificate struct {
	ID              uuid.UUID  `json:"id"`
	Code            string     `json:"certificate_code"`
	EnrollmentID    uuid.UUID  `json:"enrollment_id"`
	PreEnrollmentID uuid.UUID  `json:"pre_enrollment_id"`
	StudentName     string     `json:"student_name"`
	CourseName      string     `json:"course_name"`
	CourseHours     int        `json:"course_hours"`
	IssueDate       time.Time  `json:"issue_date"`
	CompletionDate  *time.Time `json:"completion_date,omitempty"`
	Status          Status     `json:"status"`
	VerificationURL string     `json:"verification_url"`
	CreatedAt       time.Time  `json:"created_at"`
}

// codeAlphabet exclui glifos ambíguos (0/O, 1/I/L) porque o código é
// digitado manualmente na página pública de verificação.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// NewCode gera um código no formato CERT-XXXX-XXXX-XXXX.
func NewCode() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, 0, 19)
	out = append(out, 'C', 'E', 'R', 'T')
	for i, b := range buf {
		if i%4 == 0 {
			out = append(out, '-')
		}
		out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return string(out), nil
}
