package course

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound é retornado quando curso, área ou órgão não existe.
	ErrNotFound = errors.New("registro não encontrado")
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso a courses, areas e organ_types.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const courseColumns = `
	id, titulo, slug, area_id, descricao, duration_days, hours, modules,
	image_url, ativo, created_at, updated_at
`

func scanCourse(row pgx.Row) (Course, error) {
	var c Course
	if err := row.Scan(
		&c.ID, &c.Titulo, &c.Slug, &c.AreaID, &c.Descricao, &c.DurationDays, &c.Hours,
		&c.Modules, &c.ImageURL, &c.Ativo, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, err
	}
	return c, nil
}

// ListActive devolve os cursos publicados para o catálogo público.
func (r *Repository) ListActive(ctx context.Context) ([]Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+courseColumns+`
		FROM courses
		WHERE ativo = TRUE
		ORDER BY titulo
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCourses(rows)
}

// ListAll devolve todos os cursos para o back-office.
func (r *Repository) ListAll(ctx context.Context) ([]Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY titulo`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCourses(rows)
}

func collectCourses(rows pgx.Rows) ([]Course, error) {
	var out []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByID busca curso pelo identificador.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	return scanCourse(row)
}

// GetBySlug busca curso publicado pelo slug público.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+courseColumns+`
		FROM courses
		WHERE slug = $1 AND ativo = TRUE
	`, strings.ToLower(strings.TrimSpace(slug)))
	return scanCourse(row)
}

// SaveParams carrega os campos editáveis de um curso.
type SaveParams struct {
	Titulo       string
	Slug         string
	AreaID       *uuid.UUID
	Descricao    *string
	DurationDays int
	Hours        int
	Modules      json.RawMessage
	ImageURL     *string
	Ativo        bool
}

// Insert cria um curso.
func (r *Repository) Insert(ctx context.Context, params SaveParams) (Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO courses (titulo, slug, area_id, descricao, duration_days, hours, modules, image_url, ativo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+courseColumns+`
	`,
		params.Titulo, strings.ToLower(strings.TrimSpace(params.Slug)), params.AreaID, params.Descricao,
		params.DurationDays, params.Hours, params.Modules, params.ImageURL, params.Ativo,
	)
	return scanCourse(row)
}

// Update substitui os campos editáveis do curso.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, params SaveParams) (Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		UPDATE courses
		SET titulo = $2, slug = $3, area_id = $4, descricao = $5, duration_days = $6,
		    hours = $7, modules = $8, image_url = $9, ativo = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+courseColumns+`
	`,
		id, params.Titulo, strings.ToLower(strings.TrimSpace(params.Slug)), params.AreaID, params.Descricao,
		params.DurationDays, params.Hours, params.Modules, params.ImageURL, params.Ativo,
	)
	return scanCourse(row)
}

// ListAreas devolve as áreas em ordem alfabética.
func (r *Repository) ListAreas(ctx context.Context) ([]Area, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT id, nome, slug, created_at FROM areas ORDER BY nome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Area
	for rows.Next() {
		var a Area
		if err := rows.Scan(&a.ID, &a.Nome, &a.Slug, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertArea cria uma área.
func (r *Repository) InsertArea(ctx context.Context, nome, slug string) (Area, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO areas (nome, slug) VALUES ($1, $2)
		RETURNING id, nome, slug, created_at
	`, nome, strings.ToLower(strings.TrimSpace(slug)))

	var a Area
	if err := row.Scan(&a.ID, &a.Nome, &a.Slug, &a.CreatedAt); err != nil {
		return Area{}, err
	}
	return a, nil
}

// ListOrganTypes devolve os tipos de órgão cadastrados.
func (r *Repository) ListOrganTypes(ctx context.Context) ([]OrganType, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT id, nome, hours_multiplier, created_at FROM organ_types ORDER BY nome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrganType
	for rows.Next() {
		var o OrganType
		if err := rows.Scan(&o.ID, &o.Nome, &o.HoursMultiplier, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetOrganType busca um tipo de órgão pelo identificador.
func (r *Repository) GetOrganType(ctx context.Context, id uuid.UUID) (OrganType, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `SELECT id, nome, hours_multiplier, created_at FROM organ_types WHERE id = $1`, id)

	var o OrganType
	if err := row.Scan(&o.ID, &o.Nome, &o.HoursMultiplier, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrganType{}, ErrNotFound
		}
		return OrganType{}, err
	}
	return o, nil
}

// InsertOrganType cria um tipo de órgão.
func (r *Repository) InsertOrganType(ctx context.Context, nome string, multiplier float64) (OrganType, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO organ_types (nome, hours_multiplier) VALUES ($1, $2)
		RETURNING id, nome, hours_multiplier, created_at
	`, nome, multiplier)

	var o OrganType
	if err := row.Scan(&o.ID, &o.Nome, &o.HoursMultiplier, &o.CreatedAt); err != nil {
		return OrganType{}, err
	}
	return o, nil
}
