package settings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portalcapacita/api/internal/webhook"
)

// ErrNotFound indica que o registro singleton ainda não foi criado.
var ErrNotFound = errors.New("configuração não encontrada")

// Repository persiste as configurações em tabelas de linha única.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetInstitution(ctx context.Context) (*InstitutionSettings, error) {
	const query = `
        SELECT nome, cnpj, endereco, cidade, telefone, email,
               logo_url, assinatura_diretor_url, diretor_nome, verification_base_url,
               created_at, updated_at, updated_by
          FROM institution_settings
         WHERE singleton = TRUE
         LIMIT 1
    `

	var cfg InstitutionSettings
	err := r.pool.QueryRow(ctx, query).Scan(
		&cfg.Nome, &cfg.CNPJ, &cfg.Endereco, &cfg.Cidade, &cfg.Telefone, &cfg.Email,
		&cfg.LogoURL, &cfg.AssinaturaDiretorURL, &cfg.DiretorNome, &cfg.VerificationBaseURL,
		&cfg.CreatedAt, &cfg.UpdatedAt, &cfg.UpdatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Repository) SaveInstitution(ctx context.Context, cfg InstitutionSettings, updatedBy uuid.UUID) (*InstitutionSettings, error) {
	const query = `
        INSERT INTO institution_settings (singleton, nome, cnpj, endereco, cidade, telefone, email,
                                          logo_url, assinatura_diretor_url, diretor_nome, verification_base_url, updated_by)
        VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (singleton)
        DO UPDATE SET
            nome = EXCLUDED.nome,
            cnpj = EXCLUDED.cnpj,
            endereco = EXCLUDED.endereco,
            cidade = EXCLUDED.cidade,
            telefone = EXCLUDED.telefone,
            email = EXCLUDED.email,
            logo_url = EXCLUDED.logo_url,
            assinatura_diretor_url = EXCLUDED.assinatura_diretor_url,
            diretor_nome = EXCLUDED.diretor_nome,
            verification_base_url = EXCLUDED.verification_base_url,
            updated_by = EXCLUDED.updated_by,
            updated_at = NOW()
        RETURNING created_at, updated_at, updated_by
    `

	out := cfg
	err := r.pool.QueryRow(ctx, query,
		cfg.Nome, cfg.CNPJ, cfg.Endereco, cfg.Cidade, cfg.Telefone, cfg.Email,
		cfg.LogoURL, cfg.AssinaturaDiretorURL, cfg.DiretorNome, cfg.VerificationBaseURL, updatedBy,
	).Scan(&out.CreatedAt, &out.UpdatedAt, &out.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) GetPayment(ctx context.Context) (*PaymentSettings, error) {
	const query = `
        SELECT asaas_api_key, sandbox, base_url, created_at, updated_at, updated_by
          FROM payment_settings
         WHERE singleton = TRUE
         LIMIT 1
    `

	var cfg PaymentSettings
	err := r.pool.QueryRow(ctx, query).Scan(
		&cfg.AsaasAPIKey, &cfg.Sandbox, &cfg.BaseURL,
		&cfg.CreatedAt, &cfg.UpdatedAt, &cfg.UpdatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Repository) SavePayment(ctx context.Context, cfg PaymentSettings, updatedBy uuid.UUID) (*PaymentSettings, error) {
	const query = `
        INSERT INTO payment_settings (singleton, asaas_api_key, sandbox, base_url, updated_by)
        VALUES (TRUE, $1, $2, $3, $4)
        ON CONFLICT (singleton)
        DO UPDATE SET
            asaas_api_key = EXCLUDED.asaas_api_key,
            sandbox = EXCLUDED.sandbox,
            base_url = EXCLUDED.base_url,
            updated_by = EXCLUDED.updated_by,
            updated_at = NOW()
        RETURNING created_at, updated_at, updated_by
    `

	out := cfg
	err := r.pool.QueryRow(ctx, query, cfg.AsaasAPIKey, cfg.Sandbox, cfg.BaseURL, updatedBy).
		Scan(&out.CreatedAt, &out.UpdatedAt, &out.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) GetWebhook(ctx context.Context) (*WebhookSettings, error) {
	const query = `
        SELECT url, events, created_at, updated_at, updated_by
          FROM webhook_settings
         WHERE singleton = TRUE
         LIMIT 1
    `

	var cfg WebhookSettings
	var events []string
	err := r.pool.QueryRow(ctx, query).Scan(
		&cfg.URL, &events, &cfg.CreatedAt, &cfg.UpdatedAt, &cfg.UpdatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		cfg.Events = append(cfg.Events, webhook.EventType(ev))
	}
	return &cfg, nil
}

func (r *Repository) SaveWebhook(ctx context.Context, cfg WebhookSettings, updatedBy uuid.UUID) (*WebhookSettings, error) {
	const query = `
        INSERT INTO webhook_settings (singleton, url, events, updated_by)
        VALUES (TRUE, $1, $2, $3)
        ON CONFLICT (singleton)
        DO UPDATE SET
            url = EXCLUDED.url,
            events = EXCLUDED.events,
            updated_by = EXCLUDED.updated_by,
            updated_at = NOW()
        RETURNING created_at, updated_at, updated_by
    `

	events := make([]string, 0, len(cfg.Events))
	for _, ev := range cfg.Events {
		events = append(events, string(ev))
	}

	out := cfg
	err := r.pool.QueryRow(ctx, query, cfg.URL, events, updatedBy).
		Scan(&out.CreatedAt, &out.UpdatedAt, &out.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
