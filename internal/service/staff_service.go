package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/portalcapacita/api/internal/auth"
	"github.com/portalcapacita/api/internal/repo"
	"github.com/portalcapacita/api/internal/util"
)

// Papéis aceitos no back-office.
var staffRoles = map[string]bool{"ADMIN": true, "STAFF": true}

// NormalizeRole padroniza o papel informado.
func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

// IsValidRole confere se o papel é reconhecido.
func IsValidRole(role string) bool {
	return staffRoles[role]
}

// StaffService centraliza casos de uso de administração de equipe.
type StaffService struct {
	repo *repo.Queries
}

// NewStaffService cria nova instância do serviço.
func NewStaffService(r *repo.Queries) *StaffService {
	return &StaffService{repo: r}
}

// ListUsers retorna os colaboradores cadastrados.
func (s *StaffService) ListUsers(ctx context.Context) ([]repo.Usuario, error) {
	return s.repo.ListUsuarios(ctx)
}

// CreateUser cria um colaborador ativo (senha bruta será hasheada).
func (s *StaffService) CreateUser(ctx context.Context, nome, email, role, password string, active bool) (repo.Usuario, error) {
	if err := util.RequireString(nome, "nome"); err != nil {
		return repo.Usuario{}, err
	}
	if err := util.ValidateEmail(email); err != nil {
		return repo.Usuario{}, err
	}
	if err := util.ValidatePassword(password); err != nil {
		return repo.Usuario{}, err
	}

	normalized := NormalizeRole(role)
	if !IsValidRole(normalized) {
		return repo.Usuario{}, errors.New("papel inválido")
	}

	hash, err := auth.Hash(strings.TrimSpace(password))
	if err != nil {
		return repo.Usuario{}, err
	}

	return s.repo.InsertUsuario(ctx, strings.TrimSpace(nome), strings.TrimSpace(email), hash, normalized, active)
}

// UpdateUserRole atualiza papel e estado do colaborador.
func (s *StaffService) UpdateUserRole(ctx context.Context, id uuid.UUID, role string, active bool) error {
	normalized := NormalizeRole(role)
	if !IsValidRole(normalized) {
		return errors.New("papel inválido")
	}
	return s.repo.SetUsuarioPapel(ctx, id, normalized, active)
}
