package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Queries concentra o acesso às tabelas de identidade.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries cria o repositório de identidade.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const usuarioColumns = `id, nome, email, senha_hash, papel, ativo, criado_em`

func scanUsuario(row pgx.Row) (Usuario, error) {
	var u Usuario
	err := row.Scan(&u.ID, &u.Nome, &u.Email, &u.SenhaHash, &u.Papel, &u.Ativo, &u.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return Usuario{}, ErrNotFound
	}
	return u, err
}

func (q *Queries) GetUsuarioByEmail(ctx context.Context, email string) (Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanUsuario(q.pool.QueryRow(ctx, `
        SELECT `+usuarioColumns+` FROM usuarios WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

func (q *Queries) GetUsuarioByID(ctx context.Context, id uuid.UUID) (Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanUsuario(q.pool.QueryRow(ctx, `
        SELECT `+usuarioColumns+` FROM usuarios WHERE id = $1`, id))
}

func (q *Queries) ListUsuarios(ctx context.Context) ([]Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.pool.Query(ctx, `
        SELECT `+usuarioColumns+` FROM usuarios ORDER BY nome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// InsertUsuario cria um colaborador do back-office.
func (q *Queries) InsertUsuario(ctx context.Context, nome, email, senhaHash, papel string, ativo bool) (Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanUsuario(q.pool.QueryRow(ctx, `
        INSERT INTO usuarios (nome, email, senha_hash, papel, ativo)
        VALUES ($1, lower($2), $3, $4, $5)
        RETURNING `+usuarioColumns, nome, email, senhaHash, papel, ativo))
}

func (q *Queries) UpdateUsuario(ctx context.Context, id uuid.UUID, nome, email string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := q.pool.Exec(ctx, `
        UPDATE usuarios SET nome = $2, email = lower($3) WHERE id = $1`, id, nome, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUsuarioPapel altera papel e estado de um colaborador.
func (q *Queries) SetUsuarioPapel(ctx context.Context, id uuid.UUID, papel string, ativo bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := q.pool.Exec(ctx, `
        UPDATE usuarios SET papel = $2, ativo = $3 WHERE id = $1`, id, papel, ativo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const alunoColumns = `id, nome, cpf, email, whatsapp, senha_hash, ativo, criado_em`

func scanAluno(row pgx.Row) (Aluno, error) {
	var a Aluno
	err := row.Scan(&a.ID, &a.Nome, &a.CPF, &a.Email, &a.Whatsapp, &a.SenhaHash, &a.Ativo, &a.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return Aluno{}, ErrNotFound
	}
	return a, err
}

func (q *Queries) GetAlunoByEmail(ctx context.Context, email string) (Aluno, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanAluno(q.pool.QueryRow(ctx, `
        SELECT `+alunoColumns+` FROM alunos WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

func (q *Queries) GetAlunoByCPF(ctx context.Context, cpf string) (Aluno, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanAluno(q.pool.QueryRow(ctx, `
        SELECT `+alunoColumns+` FROM alunos WHERE cpf = $1`, cpf))
}

func (q *Queries) GetAlunoByID(ctx context.Context, id uuid.UUID) (Aluno, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanAluno(q.pool.QueryRow(ctx, `
        SELECT `+alunoColumns+` FROM alunos WHERE id = $1`, id))
}

// InsertAluno cria a conta do estudante. CPF é único: conflito devolve
// o registro existente para a pré-matrícula reaproveitar a conta.
func (q *Queries) InsertAluno(ctx context.Context, nome, cpf string, email, whatsapp, senhaHash *string) (Aluno, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	aluno, err := scanAluno(q.pool.QueryRow(ctx, `
        INSERT INTO alunos (nome, cpf, email, whatsapp, senha_hash, ativo)
        VALUES ($1, $2, $3, $4, $5, TRUE)
        ON CONFLICT (cpf) DO UPDATE SET
            nome = EXCLUDED.nome,
            email = COALESCE(EXCLUDED.email, alunos.email),
            whatsapp = COALESCE(EXCLUDED.whatsapp, alunos.whatsapp)
        RETURNING `+alunoColumns, nome, cpf, email, whatsapp, senhaHash))
	if err != nil {
		return Aluno{}, err
	}
	return aluno, nil
}

// SetAlunoSenha define ou troca a senha do estudante.
func (q *Queries) SetAlunoSenha(ctx context.Context, id uuid.UUID, senhaHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := q.pool.Exec(ctx, `
        UPDATE alunos SET senha_hash = $2 WHERE id = $1`, id, senhaHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t TokenRefresh
	err := q.pool.QueryRow(ctx, `
        SELECT id, subject, audience, token_hash, expiracao, criado_em, revogado
          FROM tokens_refresh
         WHERE token_hash = $1`, tokenHash).
		Scan(&t.ID, &t.Subject, &t.Audience, &t.TokenHash, &t.Expiracao, &t.CriadoEm, &t.Revogado)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenRefresh{}, ErrNotFound
	}
	return t, err
}

func (q *Queries) InsertRefreshToken(ctx context.Context, arg InsertRefreshTokenParams) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t TokenRefresh
	err := q.pool.QueryRow(ctx, `
        INSERT INTO tokens_refresh (id, subject, audience, token_hash, expiracao, criado_em, revogado)
        VALUES ($1, $2, $3, $4, $5, $6, FALSE)
        RETURNING id, subject, audience, token_hash, expiracao, criado_em, revogado`,
		arg.ID, arg.Subject, arg.Audience, arg.TokenHash, arg.Expiracao, arg.CriadoEm).
		Scan(&t.ID, &t.Subject, &t.Audience, &t.TokenHash, &t.Expiracao, &t.CriadoEm, &t.Revogado)
	return t, err
}

// InvalidateOtherRefreshTokens revoga as demais sessões do sujeito.
func (q *Queries) InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, audience, keepHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.pool.Exec(ctx, `
        UPDATE tokens_refresh
           SET revogado = TRUE
         WHERE subject = $1 AND audience = $2 AND token_hash <> $3 AND NOT revogado`,
		subject, audience, keepHash)
	return err
}

func (q *Queries) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := q.pool.Exec(ctx, `
        UPDATE tokens_refresh SET revogado = TRUE WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
