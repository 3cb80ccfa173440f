package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/portalcapacita/api/internal/auth"
	"github.com/portalcapacita/api/internal/repo"
)

type stubAuthRepo struct {
	user   repo.Usuario
	aluno  repo.Aluno
	tokens map[string]repo.TokenRefresh

	insertedAluno *repo.Aluno
	senhaSet      *string
}

func (s *stubAuthRepo) GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error) {
	if strings.EqualFold(email, s.user.Email) {
		return s.user, nil
	}
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubAuthRepo) GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	if id == s.user.ID {
		return s.user, nil
	}
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubAuthRepo) UpdateUsuario(ctx context.Context, id uuid.UUID, nome, email string) error {
	return nil
}

func (s *stubAuthRepo) GetAlunoByEmail(ctx context.Context, email string) (repo.Aluno, error) {
	if s.aluno.Email != nil && strings.EqualFold(email, *s.aluno.Email) {
		return s.aluno, nil
	}
	return repo.Aluno{}, repo.ErrNotFound
}

func (s *stubAuthRepo) GetAlunoByCPF(ctx context.Context, cpf string) (repo.Aluno, error) {
	if cpf == s.aluno.CPF {
		return s.aluno, nil
	}
	return repo.Aluno{}, repo.ErrNotFound
}

func (s *stubAuthRepo) GetAlunoByID(ctx context.Context, id uuid.UUID) (repo.Aluno, error) {
	if id == s.aluno.ID {
		return s.aluno, nil
	}
	return repo.Aluno{}, repo.ErrNotFound
}

func (s *stubAuthRepo) InsertAluno(ctx context.Context, nome, cpf string, email, whatsapp, senhaHash *string) (repo.Aluno, error) {
	if cpf == s.aluno.CPF {
		// conflito de CPF devolve a conta existente
		return s.aluno, nil
	}
	created := repo.Aluno{ID: uuid.New(), Nome: nome, CPF: cpf, Email: email, Whatsapp: whatsapp, SenhaHash: senhaHash, Ativo: true}
	s.insertedAluno = &created
	return created, nil
}

func (s *stubAuthRepo) SetAlunoSenha(ctx context.Context, id uuid.UUID, senhaHash string) error {
	s.senhaSet = &senhaHash
	return nil
}

func (s *stubAuthRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (repo.TokenRefresh, error) {
	if t, ok := s.tokens[hash]; ok {
		return t, nil
	}
	return repo.TokenRefresh{}, repo.ErrNotFound
}

func (s *stubAuthRepo) InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.TokenRefresh, error) {
	t := repo.TokenRefresh{ID: arg.ID, Subject: arg.Subject, Audience: arg.Audience, TokenHash: arg.TokenHash, Expiracao: arg.Expiracao, CriadoEm: arg.CriadoEm}
	if s.tokens == nil {
		s.tokens = map[string]repo.TokenRefresh{}
	}
	s.tokens[arg.TokenHash] = t
	return t, nil
}

func (s *stubAuthRepo) InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, audience, keepHash string) error {
	return nil
}

func (s *stubAuthRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	if t, ok := s.tokens[hash]; ok {
		t.Revogado = true
		s.tokens[hash] = t
		return nil
	}
	return repo.ErrNotFound
}

type stubRedis struct {
	store map[string]string
}

func (s *stubRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if s.store == nil {
		s.store = map[string]string{}
	}
	s.store[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := s.store[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (s *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(s.store, k)
	}
	return redis.NewIntResult(1, nil)
}

func newTestAuthService(t *testing.T, r *stubAuthRepo) *AuthService {
	t.Helper()
	return &AuthService{
		repo:       r,
		redis:      &stubRedis{},
		jwt:        auth.NewJWTManager(strings.Repeat("s", 32), 15*time.Minute),
		refreshTTL: time.Hour,
	}
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := auth.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

func TestLoginBackofficeAdminHerdaStaff(t *testing.T) {
	r := &stubAuthRepo{user: repo.Usuario{
		ID:        uuid.New(),
		Nome:      "Ana",
		Email:     "ana@portal.gov.br",
		SenhaHash: hashOf(t, "senha-segura"),
		Papel:     "ADMIN",
		Ativo:     true,
	}}
	svc := newTestAuthService(t, r)

	result, err := svc.LoginBackoffice(context.Background(), "Ana@portal.gov.br", "senha-segura")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Audience != AudienceBackoffice {
		t.Fatalf("audience inesperada: %s", result.Audience)
	}
	if len(result.Roles) != 2 || result.Roles[0] != "ADMIN" || result.Roles[1] != "STAFF" {
		t.Fatalf("ADMIN deveria herdar STAFF: %v", result.Roles)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("tokens vazios")
	}
}

func TestLoginBackofficeSenhaErrada(t *testing.T) {
	r := &stubAuthRepo{user: repo.Usuario{
		ID:        uuid.New(),
		Email:     "ana@portal.gov.br",
		SenhaHash: hashOf(t, "senha-segura"),
		Papel:     "STAFF",
		Ativo:     true,
	}}
	svc := newTestAuthService(t, r)

	if _, err := svc.LoginBackoffice(context.Background(), "ana@portal.gov.br", "outra"); err != ErrInvalidCredentials {
		t.Fatalf("esperava ErrInvalidCredentials, veio %v", err)
	}
}

func TestLoginBackofficeContaInativa(t *testing.T) {
	r := &stubAuthRepo{user: repo.Usuario{
		ID:        uuid.New(),
		Email:     "ana@portal.gov.br",
		SenhaHash: hashOf(t, "senha-segura"),
		Papel:     "STAFF",
		Ativo:     false,
	}}
	svc := newTestAuthService(t, r)

	if _, err := svc.LoginBackoffice(context.Background(), "ana@portal.gov.br", "senha-segura"); err != ErrAccountDisabled {
		t.Fatalf("esperava ErrAccountDisabled, veio %v", err)
	}
}

func TestLoginAlunoPorCPFeEmail(t *testing.T) {
	email := "joao@example.com"
	hash := hashOf(t, "minha-senha")
	r := &stubAuthRepo{aluno: repo.Aluno{
		ID:        uuid.New(),
		Nome:      "João",
		CPF:       "52998224725",
		Email:     &email,
		SenhaHash: &hash,
		Ativo:     true,
	}}
	svc := newTestAuthService(t, r)

	byCPF, err := svc.LoginAluno(context.Background(), "529.982.247-25", "minha-senha")
	if err != nil {
		t.Fatalf("login por cpf: %v", err)
	}
	if byCPF.Audience != AudienceAluno || byCPF.Roles[0] != "STUDENT" {
		t.Fatalf("sessão inesperada: %s %v", byCPF.Audience, byCPF.Roles)
	}

	byEmail, err := svc.LoginAluno(context.Background(), "joao@example.com", "minha-senha")
	if err != nil {
		t.Fatalf("login por email: %v", err)
	}
	if byEmail.Subject != r.aluno.ID {
		t.Fatal("subject divergente")
	}
}

func TestLoginAlunoSemSenhaCadastrada(t *testing.T) {
	r := &stubAuthRepo{aluno: repo.Aluno{
		ID:    uuid.New(),
		CPF:   "52998224725",
		Ativo: true,
	}}
	svc := newTestAuthService(t, r)

	if _, err := svc.LoginAluno(context.Background(), "52998224725", "qualquer"); err != ErrInvalidCredentials {
		t.Fatalf("conta sem senha deveria recusar: %v", err)
	}
}

func TestRegisterAlunoRejeitaCPFInvalido(t *testing.T) {
	svc := newTestAuthService(t, &stubAuthRepo{})

	if _, err := svc.RegisterAluno(context.Background(), "Maria", "111.111.111-11", nil, nil, "senha-valida"); err == nil {
		t.Fatal("cpf inválido deveria falhar")
	}
}

func TestRegisterAlunoReaproveitaContaEDefineSenha(t *testing.T) {
	r := &stubAuthRepo{aluno: repo.Aluno{
		ID:    uuid.New(),
		Nome:  "João",
		CPF:   "52998224725",
		Ativo: true,
	}}
	svc := newTestAuthService(t, r)

	aluno, err := svc.RegisterAluno(context.Background(), "João Pereira", "529.982.247-25", nil, nil, "senha-nova-123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if aluno.ID != r.aluno.ID {
		t.Fatal("deveria reaproveitar a conta existente pelo CPF")
	}
	if r.senhaSet == nil {
		t.Fatal("conta sem senha deveria receber a senha informada")
	}
}

func TestRefreshRotacionaToken(t *testing.T) {
	r := &stubAuthRepo{user: repo.Usuario{
		ID:        uuid.New(),
		Nome:      "Ana",
		Email:     "ana@portal.gov.br",
		SenhaHash: hashOf(t, "senha-segura"),
		Papel:     "ADMIN",
		Ativo:     true,
	}}
	svc := newTestAuthService(t, r)
	ctx := context.Background()

	first, err := svc.LoginBackoffice(ctx, "ana@portal.gov.br", "senha-segura")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := svc.Refresh(ctx, AudienceBackoffice, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh deveria rotacionar o token")
	}

	// token antigo revogado não entra de novo
	if _, err := svc.Refresh(ctx, AudienceBackoffice, first.RefreshToken); err != ErrRefreshInvalid {
		t.Fatalf("token antigo deveria estar revogado: %v", err)
	}
}
