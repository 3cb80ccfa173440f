package document

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indica template inexistente.
var ErrNotFound = errors.New("template não encontrado")

const dbTimeout = 3 * time.Second

// Repository persiste templates de documento em Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, nome, doc_type, blocks, ativo, created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Nome, &t.DocType, &t.Blocks, &t.Ativo, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// List devolve todos os templates, mais recentes primeiro.
func (r *Repository) List(ctx context.Context) ([]Template, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
        SELECT `+templateColumns+`
          FROM document_templates
         ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetByID busca um template pelo id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Template, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t, err := scanTemplate(r.pool.QueryRow(ctx, `
        SELECT `+templateColumns+`
          FROM document_templates
         WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	return t, err
}

// ActiveByType busca o template ativo de um tipo de documento. Sem
// template cadastrado, retorna ErrNotFound e o chamador usa o layout
// padrão.
func (r *Repository) ActiveByType(ctx context.Context, docType DocType) (Template, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t, err := scanTemplate(r.pool.QueryRow(ctx, `
        SELECT `+templateColumns+`
          FROM document_templates
         WHERE doc_type = $1 AND ativo = TRUE
         ORDER BY updated_at DESC
         LIMIT 1`, docType))
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	return t, err
}

// SaveParams reúne os campos editáveis de um template.
type SaveParams struct {
	Nome    string
	DocType DocType
	Blocks  json.RawMessage
	Ativo   bool
}

// Insert cria um template. Quando ativo, desativa os demais do mesmo
// tipo dentro da mesma transação.
func (r *Repository) Insert(ctx context.Context, p SaveParams) (Template, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Template{}, err
	}
	defer tx.Rollback(ctx)

	if p.Ativo {
		if _, err := tx.Exec(ctx, `
            UPDATE document_templates SET ativo = FALSE, updated_at = NOW()
             WHERE doc_type = $1 AND ativo = TRUE`, p.DocType); err != nil {
			return Template{}, err
		}
	}

	t, err := scanTemplate(tx.QueryRow(ctx, `
        INSERT INTO document_templates (nome, doc_type, blocks, ativo)
        VALUES ($1, $2, $3, $4)
        RETURNING `+templateColumns, p.Nome, p.DocType, p.Blocks, p.Ativo))
	if err != nil {
		return Template{}, err
	}
	return t, tx.Commit(ctx)
}

// Update altera um template existente.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p SaveParams) (Template, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Template{}, err
	}
	defer tx.Rollback(ctx)

	if p.Ativo {
		if _, err := tx.Exec(ctx, `
            UPDATE document_templates SET ativo = FALSE, updated_at = NOW()
             WHERE doc_type = $1 AND ativo = TRUE AND id <> $2`, p.DocType, id); err != nil {
			return Template{}, err
		}
	}

	t, err := scanTemplate(tx.QueryRow(ctx, `
        UPDATE document_templates
           SET nome = $2, doc_type = $3, blocks = $4, ativo = $5, updated_at = NOW()
         WHERE id = $1
        RETURNING `+templateColumns, id, p.Nome, p.DocType, p.Blocks, p.Ativo))
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	if err != nil {
		return Template{}, err
	}
	return t, tx.Commit(ctx)
}

// Delete remove um template.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM document_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
