package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/portalcapacita/api/internal/auth"
	"github.com/portalcapacita/api/internal/repo"
	"github.com/portalcapacita/api/internal/util"
)

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrAccountDisabled indica conta desativada.
	ErrAccountDisabled = errors.New("conta desativada")
	// ErrRefreshInvalid indica refresh token inválido ou expirado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
	// ErrNoEligibleRoles indica ausência de papéis autorizados.
	ErrNoEligibleRoles = errors.New("usuário sem papel elegível")
)

// Audiences reconhecidas nos tokens.
const (
	AudienceBackoffice = "backoffice"
	AudienceAluno      = "aluno"
)

type authRepository interface {
	GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error)
	GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	UpdateUsuario(ctx context.Context, id uuid.UUID, nome, email string) error
	GetAlunoByEmail(ctx context.Context, email string) (repo.Aluno, error)
	GetAlunoByCPF(ctx context.Context, cpf string) (repo.Aluno, error)
	GetAlunoByID(ctx context.Context, id uuid.UUID) (repo.Aluno, error)
	InsertAluno(ctx context.Context, nome, cpf string, email, whatsapp, senhaHash *string) (repo.Aluno, error)
	SetAlunoSenha(ctx context.Context, id uuid.UUID, senhaHash string) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.TokenRefresh, error)
	InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.TokenRefresh, error)
	InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, audience, keepHash string) error
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra regras de autenticação e sessões.
type AuthService struct {
	repo       authRepository
	redis      redisCommander
	jwt        *auth.JWTManager
	refreshTTL time.Duration
	pool       *pgxpool.Pool
}

// NewAuthService cria novo serviço.
func NewAuthService(r *repo.Queries, pool *pgxpool.Pool, redisClient *redis.Client, jwtMgr *auth.JWTManager, refreshTTL time.Duration) *AuthService {
	return &AuthService{repo: r, pool: pool, redis: redisClient, jwt: jwtMgr, refreshTTL: refreshTTL}
}

// JWT expõe gerenciador de JWT (útil em middlewares).
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// LoginResult representa retorno padrão de autenticações.
type LoginResult struct {
	Audience      string
	AccessToken   string
	RefreshToken  string
	Subject       uuid.UUID
	Roles         []string
	Profile       any
	RefreshHash   string
	RefreshExpiry time.Time
}

type PasskeyCredential struct {
	ID           uuid.UUID
	UsuarioID    uuid.UUID
	CredentialID []byte
	PublicKey    []byte
	SignCount    uint32
	Transports   []string
	AAGUID       []byte
	Nickname     *string
	Cloned       bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// BackofficeProfile descreve usuária(o) do back-office.
type BackofficeProfile struct {
	ID    string `json:"id"`
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Papel string `json:"papel"`
}

// AlunoProfile descreve o estudante autenticado.
type AlunoProfile struct {
	ID       string  `json:"id"`
	Nome     string  `json:"nome"`
	CPF      string  `json:"cpf"`
	Email    *string `json:"email"`
	Whatsapp *string `json:"whatsapp"`
}

// LoginBackoffice autentica colaboradores internos.
func (s *AuthService) LoginBackoffice(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.GetUsuarioByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login backoffice: usuário não encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.SenhaHash)
	if err != nil {
		log.Warn().Err(err).Msg("login backoffice: verificação de senha falhou")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Msg("login backoffice: senha inválida")
		return nil, ErrInvalidCredentials
	}

	return s.loginBackofficeFromUser(ctx, user)
}

// LoginBackofficeWithUser emite sessão para um usuário já autenticado
// por passkey.
func (s *AuthService) LoginBackofficeWithUser(ctx context.Context, user repo.Usuario) (*LoginResult, error) {
	return s.loginBackofficeFromUser(ctx, user)
}

func (s *AuthService) loginBackofficeFromUser(ctx context.Context, user repo.Usuario) (*LoginResult, error) {
	if !user.Ativo {
		return nil, ErrAccountDisabled
	}

	roles := backofficeRoles(user)
	if len(roles) == 0 {
		return nil, ErrNoEligibleRoles
	}

	token, _, err := s.jwt.GenerateAccessToken(user.ID.String(), AudienceBackoffice, roles)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expires := util.Now().Add(s.refreshTTL)
	if err := s.persistRefresh(ctx, user.ID, AudienceBackoffice, refreshHash, expires); err != nil {
		return nil, err
	}

	return &LoginResult{
		Audience:      AudienceBackoffice,
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Subject:       user.ID,
		Roles:         roles,
		Profile:       backofficeProfile(user),
		RefreshHash:   refreshHash,
		RefreshExpiry: expires,
	}, nil
}

func backofficeProfile(user repo.Usuario) *BackofficeProfile {
	return &BackofficeProfile{
		ID:    user.ID.String(),
		Nome:  user.Nome,
		Email: user.Email,
		Papel: strings.ToUpper(strings.TrimSpace(user.Papel)),
	}
}

// backofficeRoles deriva papéis do cadastro. ADMIN herda STAFF para
// simplificar checagens de rota.
func backofficeRoles(user repo.Usuario) []string {
	papel := strings.ToUpper(strings.TrimSpace(user.Papel))
	switch papel {
	case "ADMIN":
		return []string{"ADMIN", "STAFF"}
	case "STAFF":
		return []string{"STAFF"}
	}
	return nil
}

func (s *AuthService) GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	return s.repo.GetUsuarioByID(ctx, id)
}

func (s *AuthService) GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error) {
	return s.repo.GetUsuarioByEmail(ctx, strings.ToLower(email))
}

func (s *AuthService) ListPasskeys(ctx context.Context, usuarioID uuid.UUID) ([]PasskeyCredential, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, usuario_id, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned, created_at, updated_at
        FROM webauthn_credentials
        WHERE usuario_id = $1
        ORDER BY created_at DESC
    `, usuarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []PasskeyCredential
	for rows.Next() {
		var (
			cred PasskeyCredential
			sign int64
		)
		if err := rows.Scan(&cred.ID, &cred.UsuarioID, &cred.CredentialID, &cred.PublicKey, &sign, &cred.Transports, &cred.AAGUID, &cred.Nickname, &cred.Cloned, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
			return nil, err
		}
		if sign < 0 {
			sign = 0
		}
		cred.SignCount = uint32(sign)
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *AuthService) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (*PasskeyCredential, error) {
	var (
		cred PasskeyCredential
		sign int64
	)
	err := s.pool.QueryRow(ctx, `
        SELECT id, usuario_id, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned, created_at, updated_at
        FROM webauthn_credentials
        WHERE credential_id = $1
    `, credentialID).Scan(&cred.ID, &cred.UsuarioID, &cred.CredentialID, &cred.PublicKey, &sign, &cred.Transports, &cred.AAGUID, &cred.Nickname, &cred.Cloned, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	if sign < 0 {
		sign = 0
	}
	cred.SignCount = uint32(sign)
	return &cred, nil
}

func (s *AuthService) CreatePasskey(ctx context.Context, usuarioID uuid.UUID, credentialID, publicKey []byte, signCount uint32, transports []string, aaguid []byte, nickname *string, cloned bool) (*PasskeyCredential, error) {
	var (
		cred      PasskeyCredential
		updatedAt *time.Time
		signVal   int64
	)
	err := s.pool.QueryRow(ctx, `
        INSERT INTO webauthn_credentials (usuario_id, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, usuario_id, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned, created_at, updated_at
    `, usuarioID, credentialID, publicKey, int64(signCount), transports, aaguid, nickname, cloned).Scan(
		&cred.ID,
		&cred.UsuarioID,
		&cred.CredentialID,
		&cred.PublicKey,
		&signVal,
		&cred.Transports,
		&cred.AAGUID,
		&cred.Nickname,
		&cred.Cloned,
		&cred.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if signVal < 0 {
		signVal = 0
	}
	cred.SignCount = uint32(signVal)
	cred.UpdatedAt = updatedAt
	return &cred, nil
}

func (s *AuthService) UpdatePasskeyCounter(ctx context.Context, credentialID uuid.UUID, signCount uint32, cloned bool) error {
	cmd, err := s.pool.Exec(ctx, `
        UPDATE webauthn_credentials
        SET sign_count = $2, cloned = $3, updated_at = now()
        WHERE id = $1
    `, credentialID, int64(signCount), cloned)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// LoginAluno autentica o estudante por e-mail ou CPF.
func (s *AuthService) LoginAluno(ctx context.Context, login, password string) (*LoginResult, error) {
	login = strings.TrimSpace(login)

	var (
		aluno repo.Aluno
		err   error
	)
	if strings.Contains(login, "@") {
		aluno, err = s.repo.GetAlunoByEmail(ctx, strings.ToLower(login))
	} else {
		aluno, err = s.repo.GetAlunoByCPF(ctx, util.NormalizeCPF(login))
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login aluno: conta não encontrada")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !aluno.Ativo {
		return nil, ErrAccountDisabled
	}
	if aluno.SenhaHash == nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := auth.Verify(password, *aluno.SenhaHash)
	if err != nil {
		log.Warn().Err(err).Msg("login aluno: verificação de senha falhou")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Msg("login aluno: senha inválida")
		return nil, ErrInvalidCredentials
	}

	return s.loginAlunoFromRecord(ctx, aluno)
}

// RegisterAluno cria (ou reaproveita) a conta do estudante durante a
// pré-matrícula e define a senha quando informada.
func (s *AuthService) RegisterAluno(ctx context.Context, nome, cpf string, email, whatsapp *string, senha string) (repo.Aluno, error) {
	cpf = util.NormalizeCPF(cpf)
	if !util.ValidCPF(cpf) {
		return repo.Aluno{}, errors.New("cpf inválido")
	}

	var senhaHash *string
	if senha != "" {
		if err := util.ValidatePassword(senha); err != nil {
			return repo.Aluno{}, err
		}
		hash, err := auth.Hash(senha)
		if err != nil {
			return repo.Aluno{}, err
		}
		senhaHash = &hash
	}

	aluno, err := s.repo.InsertAluno(ctx, strings.TrimSpace(nome), cpf, email, whatsapp, senhaHash)
	if err != nil {
		return repo.Aluno{}, err
	}

	// Conta reaproveitada sem senha ganha a senha informada agora.
	if aluno.SenhaHash == nil && senhaHash != nil {
		if err := s.repo.SetAlunoSenha(ctx, aluno.ID, *senhaHash); err != nil {
			return repo.Aluno{}, err
		}
		aluno.SenhaHash = senhaHash
	}
	return aluno, nil
}

func (s *AuthService) GetAlunoByID(ctx context.Context, id uuid.UUID) (repo.Aluno, error) {
	return s.repo.GetAlunoByID(ctx, id)
}

func (s *AuthService) loginAlunoFromRecord(ctx context.Context, aluno repo.Aluno) (*LoginResult, error) {
	roles := []string{"STUDENT"}
	token, _, err := s.jwt.GenerateAccessToken(aluno.ID.String(), AudienceAluno, roles)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expires := util.Now().Add(s.refreshTTL)
	if err := s.persistRefresh(ctx, aluno.ID, AudienceAluno, refreshHash, expires); err != nil {
		return nil, err
	}

	return &LoginResult{
		Audience:      AudienceAluno,
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Subject:       aluno.ID,
		Roles:         roles,
		Profile:       alunoProfile(aluno),
		RefreshHash:   refreshHash,
		RefreshExpiry: expires,
	}, nil
}

func alunoProfile(aluno repo.Aluno) *AlunoProfile {
	return &AlunoProfile{
		ID:       aluno.ID.String(),
		Nome:     aluno.Nome,
		CPF:      aluno.CPF,
		Email:    aluno.Email,
		Whatsapp: aluno.Whatsapp,
	}
}

// Refresh troca refresh token por novos tokens.
func (s *AuthService) Refresh(ctx context.Context, audience, rawToken string) (*LoginResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	hash := auth.HashRefreshToken(rawToken)
	record, err := s.repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if record.Revogado || time.Now().UTC().After(record.Expiracao) || record.Audience != audience {
		return nil, ErrRefreshInvalid
	}

	redisKey := auth.RefreshRedisKey(audience, hash)
	status, err := s.redis.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	if status != "active" {
		return nil, ErrRefreshInvalid
	}

	var result *LoginResult
	switch audience {
	case AudienceBackoffice:
		user, err := s.repo.GetUsuarioByID(ctx, record.Subject)
		if err != nil {
			return nil, err
		}
		result, err = s.loginBackofficeFromUser(ctx, user)
		if err != nil {
			return nil, err
		}
	case AudienceAluno:
		aluno, err := s.repo.GetAlunoByID(ctx, record.Subject)
		if err != nil {
			return nil, err
		}
		if !aluno.Ativo {
			return nil, ErrAccountDisabled
		}
		result, err = s.loginAlunoFromRecord(ctx, aluno)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrRefreshInvalid
	}

	// Revoga token anterior (DB + Redis)
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	return result, nil
}

// Logout revoga refresh token atual.
func (s *AuthService) Logout(ctx context.Context, audience, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	hash := auth.HashRefreshToken(rawToken)
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	redisKey := auth.RefreshRedisKey(audience, hash)
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// GetMe retorna perfil completo para subject/audience.
func (s *AuthService) GetMe(ctx context.Context, audience string, subject uuid.UUID) (any, []string, error) {
	switch audience {
	case AudienceBackoffice:
		user, err := s.repo.GetUsuarioByID(ctx, subject)
		if err != nil {
			return nil, nil, err
		}
		roles := backofficeRoles(user)
		if len(roles) == 0 {
			return nil, nil, ErrNoEligibleRoles
		}
		return backofficeProfile(user), roles, nil
	case AudienceAluno:
		aluno, err := s.repo.GetAlunoByID(ctx, subject)
		if err != nil {
			return nil, nil, err
		}
		return alunoProfile(aluno), []string{"STUDENT"}, nil
	default:
		return nil, nil, errors.New("audience desconhecida")
	}
}

func (s *AuthService) persistRefresh(ctx context.Context, subject uuid.UUID, audience, hash string, expires time.Time) error {
	_, err := s.repo.InsertRefreshToken(ctx, repo.InsertRefreshTokenParams{
		ID:        uuid.New(),
		Subject:   subject,
		Audience:  audience,
		TokenHash: hash,
		Expiracao: expires,
		CriadoEm:  util.Now(),
	})
	if err != nil {
		return err
	}

	if err := s.repo.InvalidateOtherRefreshTokens(ctx, subject, audience, hash); err != nil {
		return err
	}

	return s.redis.Set(ctx, auth.RefreshRedisKey(audience, hash), "active", time.Until(expires)).Err()
}
