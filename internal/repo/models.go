package repo

import (
	"time"

	"github.com/google/uuid"
)

// Usuario representa colaborador do back-office.
type Usuario struct {
	ID        uuid.UUID
	Nome      string
	Email     string
	SenhaHash string
	Papel     string
	Ativo     bool
	CriadoEm  time.Time
}

// Aluno representa o estudante do portal. A senha é opcional: contas
// criadas pela pré-matrícula podem definir senha depois.
type Aluno struct {
	ID        uuid.UUID
	Nome      string
	CPF       string
	Email     *string
	Whatsapp  *string
	SenhaHash *string
	Ativo     bool
	CriadoEm  time.Time
}

// TokenRefresh modela tabela de refresh tokens.
type TokenRefresh struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	Audience  string
	TokenHash string
	Expiracao time.Time
	CriadoEm  time.Time
	Revogado  bool
}

// InsertRefreshTokenParams agrupa os campos do insert de refresh.
type InsertRefreshTokenParams struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	Audience  string
	TokenHash string
	Expiracao time.Time
	CriadoEm  time.Time
}
